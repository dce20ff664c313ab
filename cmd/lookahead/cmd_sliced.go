package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dudecon/SpaceWheat/internal/utils"
)

func newSlicedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sliced",
		Short: "Compute the lookahead in bounded time slices, one per frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHost(cmd)
			if err != nil {
				return err
			}

			budget, _ := cmd.Flags().GetDuration("budget")
			if budget == 0 {
				budget = h.cfg.SliceBudget
			}
			frame, _ := cmd.Flags().GetDuration("frame")

			id, err := h.sched.Start(h.states, h.scenario.Steps, h.scenario.Dt, h.scenario.MaxSubstep)
			if err != nil {
				return err
			}

			stats := utils.FrameStats{Name: "lookahead:sliced", Budget: budget}
			for {
				frameStart := time.Now()
				done, err := h.sched.Continue(budget)
				stats.Record(time.Since(frameStart))
				if err != nil {
					return err
				}
				if done {
					break
				}
				h.log.Debug().
					Int("frame", stats.Frames).
					Float64("progress", h.sched.Progress()).
					Msg("Frame")
				if frame > 0 {
					time.Sleep(frame)
				}
			}

			result, err := h.sched.Result()
			if err != nil {
				return err
			}
			h.log.Info().Str("computation_id", id).Msg("Sliced lookahead complete")
			stats.LogMetrics(h.log)
			return h.report(cmd, result)
		},
	}

	cmd.Flags().Duration("budget", 0, "Work budget per frame (default LOOKAHEAD_SLICE_MS)")
	cmd.Flags().Duration("frame", 0, "Idle time between frames, simulating the rest of a frame")
	return cmd
}
