// File: cmd/metrics.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/helix-cli/internal/circuit"
	"github.com/xkilldash9x/helix-cli/internal/observability"
)

// newMetricsCmd creates the 'metrics' command, which summarizes the durable
// circuit counters and names the phase that kills the most proposals.
func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Prints circuit pass/fail counters and the killer phase.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig()
			if err != nil {
				return err
			}

			store := circuit.NewMetricsStore(observability.GetLogger(), cfg.MetricsPath())
			m, err := store.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "attempts: %d\npasses:   %d\nrate:     %.1f%%\n",
				m.Attempts, m.Passes, m.PassRate()*100)
			if phase, count := m.KillerPhase(); phase != "" {
				fmt.Fprintf(out, "killer phase: %s (%d failures)\n", phase, count)
			}
			for phase, count := range m.PhaseFailures {
				fmt.Fprintf(out, "  %-20s %d\n", phase, count)
			}
			return nil
		},
	}
}
