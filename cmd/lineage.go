// File: cmd/lineage.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	"github.com/xkilldash9x/helix-cli/internal/observability"
)

// newLineageCmd creates the 'lineage' command for inspecting the evolution
// archive: ancestry chains, best performers and fitness trends.
func newLineageCmd() *cobra.Command {
	var (
		entryID   string
		component string
		best      int
		trend     bool
		children  bool
	)

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Inspects the evolution archive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfig()
			if err != nil {
				return err
			}

			arch, cleanup, err := openArchive(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			switch {
			case trend:
				return printTrend(ctx, out, arch, component)
			case best > 0:
				return printBest(ctx, out, arch, best, component)
			case children && entryID != "":
				return printChildren(ctx, out, arch, entryID)
			case entryID != "":
				return printLineage(ctx, out, arch, entryID)
			default:
				return fmt.Errorf("specify --id, --best or --trend")
			}
		},
	}

	cmd.Flags().StringVar(&entryID, "id", "", "Entry whose ancestry chain to print.")
	cmd.Flags().StringVar(&component, "component", "", "Restrict --best/--trend to one component.")
	cmd.Flags().IntVar(&best, "best", 0, "Print the N highest-fitness applied entries.")
	cmd.Flags().BoolVar(&trend, "trend", false, "Print fitness over time.")
	cmd.Flags().BoolVar(&children, "children", false, "With --id, print direct children instead of ancestors.")

	return cmd
}

func printLineage(ctx context.Context, out io.Writer, arch schemas.LineageArchive, id string) error {
	chain, err := arch.GetLineage(ctx, id)
	if err != nil {
		return err
	}
	for i, e := range chain {
		fmt.Fprintf(out, "%*s%s\n", i*2, "", formatEntry(e))
	}
	return nil
}

func printChildren(ctx context.Context, out io.Writer, arch schemas.LineageArchive, id string) error {
	kids, err := arch.GetChildren(ctx, id)
	if err != nil {
		return err
	}
	if len(kids) == 0 {
		fmt.Fprintf(out, "%s has no children\n", id)
		return nil
	}
	for _, e := range kids {
		fmt.Fprintln(out, formatEntry(e))
	}
	return nil
}

func printBest(ctx context.Context, out io.Writer, arch schemas.LineageArchive, n int, component string) error {
	entries, err := arch.GetBest(ctx, n, component)
	if err != nil {
		return err
	}
	for i, e := range entries {
		fmt.Fprintf(out, "%2d. %s\n", i+1, formatEntry(e))
	}
	return nil
}

func printTrend(ctx context.Context, out io.Writer, arch schemas.LineageArchive, component string) error {
	points, err := arch.FitnessOverTime(ctx, component)
	if err != nil {
		return err
	}
	for _, p := range points {
		fmt.Fprintf(out, "%s  %.3f\n", p.Timestamp.Format(time.RFC3339), p.Fitness)
	}
	return nil
}

func formatEntry(e *schemas.EvolutionEntry) string {
	return fmt.Sprintf("%s  [%s] %s fitness=%.3f %s",
		e.ID, e.Status, e.Component, e.Fitness.Total, e.Description)
}
