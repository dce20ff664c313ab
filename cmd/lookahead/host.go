package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dudecon/SpaceWheat/internal/config"
	"github.com/dudecon/SpaceWheat/internal/modules/evolution"
	"github.com/dudecon/SpaceWheat/internal/modules/lookahead"
	"github.com/dudecon/SpaceWheat/internal/work"
	"github.com/dudecon/SpaceWheat/pkg/logger"
)

// host is a loaded scenario with its scheduler ready to run.
type host struct {
	cfg      *config.Config
	scenario *config.Scenario
	sched    *lookahead.Scheduler
	states   [][]float64
	log      zerolog.Logger
}

func newHost(cmd *cobra.Command) (*host, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: cmd.ErrOrStderr(),
	})
	logger.SetGlobalLogger(log)

	path, _ := cmd.Flags().GetString("scenario")
	scenario, err := config.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	scenario.Apply(cfg)
	if steps, _ := cmd.Flags().GetInt("steps"); steps > 0 {
		scenario.Steps = steps
	}

	emitter := work.EmitterFunc(func(event string, data any) {
		log.Debug().Str("event", event).Interface("data", data).Msg("Lookahead event")
	})
	sched := lookahead.NewScheduler(
		lookahead.WithLogger(log),
		lookahead.WithPacing(cfg.PacingDelay, cfg.CPUGuard),
		lookahead.WithMIOptions(cfg.MIOptions()),
		lookahead.WithModulationScale(cfg.ModulationScale),
		lookahead.WithEmitter(emitter),
	)

	h := &host{cfg: cfg, scenario: scenario, sched: sched, log: log}
	for i := range scenario.Subsystems {
		sub := &scenario.Subsystems[i]
		id, err := sched.RegisterSubsystem(sub.Registration())
		if err != nil {
			return nil, fmt.Errorf("subsystem %q: %w", sub.Name, err)
		}
		if sub.Reservoir != nil {
			if err := sched.EnableModulator(id, sub.Reservoir.Hidden, sub.Reservoir.Seed); err != nil {
				return nil, fmt.Errorf("subsystem %q: %w", sub.Name, err)
			}
		}
		if len(sub.Frozen) > 0 {
			if err := sched.SetFrozen(id, sub.Frozen); err != nil {
				return nil, err
			}
		}
		h.states = append(h.states, sub.InitialPacked())
	}

	log.Info().
		Str("scenario", scenario.Name).
		Int("subsystems", len(h.states)).
		Int("steps", scenario.Steps).
		Float64("dt", scenario.Dt).
		Msg("Scenario loaded")
	return h, nil
}

// summary is the per-subsystem line printed after a run.
type summary struct {
	Name         string    `json:"name"`
	Qubits       int       `json:"qubits"`
	Steps        int       `json:"steps"`
	FinalPurity  float64   `json:"final_purity"`
	MaxMutualInf float64   `json:"max_mutual_info"`
	Populations  []string  `json:"populations,omitempty"`
	Weights      []float64 `json:"weights,omitempty"`
}

func summarize(scenario *config.Scenario, result *lookahead.Result) []summary {
	out := make([]summary, 0, len(result.Trajectories))
	for _, traj := range result.Trajectories {
		s := summary{
			Name:   scenario.Subsystems[traj.SubsystemID].Name,
			Qubits: traj.NumQubits,
			Steps:  len(traj.Steps),
		}
		if n := len(traj.Steps); n > 0 {
			s.FinalPurity = traj.Steps[n-1].Purity
		}
		for _, mi := range traj.LastMutualInfo() {
			s.MaxMutualInf = max(s.MaxMutualInf, mi)
		}
		if pm := traj.Populations; pm != nil {
			s.Populations = pm.Labels
			s.Weights = pm.Weights
		}
		out = append(out, s)
	}
	return out
}

func (h *host) report(cmd *cobra.Command, result *lookahead.Result) error {
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		data, err := result.MarshalBinary()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
		h.log.Info().Str("path", path).Int("bytes", len(data)).Msg("Result written")
	}

	rows := summarize(h.scenario, result)
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
			"id":         result.ID,
			"steps":      result.StepCount,
			"dt":         result.Dt,
			"subsystems": rows,
		})
	}
	return printTable(cmd.OutOrStdout(), rows)
}

func printTable(w io.Writer, rows []summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBSYSTEM\tQUBITS\tSTEPS\tPURITY\tMAX MI\tLEADING POLE")
	for _, r := range rows {
		leading := "-"
		if len(r.Populations) > 0 {
			leading = fmt.Sprintf("%s (%.3f)", r.Populations[0], r.Weights[0]/float64(max(r.Steps, 1)))
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\t%.4f\t%s\n", r.Name, r.Qubits, r.Steps, r.FinalPurity, r.MaxMutualInf, leading)
	}
	return tw.Flush()
}

// pairs returns "i-j" labels in PairIndex order, for verbose output.
func pairs(numQubits int) []string {
	out := make([]string, evolution.PairCount(numQubits))
	for i := 0; i < numQubits; i++ {
		for j := i + 1; j < numQubits; j++ {
			out[evolution.PairIndex(i, j, numQubits)] = fmt.Sprintf("%d-%d", i, j)
		}
	}
	return out
}
