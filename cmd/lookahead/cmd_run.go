package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudecon/SpaceWheat/internal/modules/lookahead"
	"github.com/dudecon/SpaceWheat/internal/utils"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the whole lookahead in one call",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHost(cmd)
			if err != nil {
				return err
			}

			timer := utils.NewTimer("lookahead:run", time.Second, h.log)
			result, err := h.sched.EvolveAllLookahead(h.states, h.scenario.Steps, h.scenario.Dt, h.scenario.MaxSubstep)
			if err != nil {
				return err
			}
			timer.Stop(map[string]any{"subsystems": len(result.Trajectories), "steps": result.StepCount})

			if trace, _ := cmd.Flags().GetBool("trace"); trace {
				printTrace(cmd.OutOrStdout(), h, result)
			}
			return h.report(cmd, result)
		},
	}

	cmd.Flags().Bool("trace", false, "Print purity and pairwise mutual information for every step")
	return cmd
}

func printTrace(w io.Writer, h *host, result *lookahead.Result) {
	for _, traj := range result.Trajectories {
		fmt.Fprintf(w, "# %s\n", h.scenario.Subsystems[traj.SubsystemID].Name)
		labels := pairs(traj.NumQubits)
		for k, step := range traj.Steps {
			cells := make([]string, len(step.MutualInfo))
			for p, mi := range step.MutualInfo {
				cells[p] = fmt.Sprintf("%s=%.4f", labels[p], mi)
			}
			fmt.Fprintf(w, "t=%.3f purity=%.4f %s\n",
				float64(k+1)*result.Dt, step.Purity, strings.Join(cells, " "))
		}
	}
}
