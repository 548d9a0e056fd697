// File: cmd/evolve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	"github.com/xkilldash9x/helix-cli/internal/archive"
	"github.com/xkilldash9x/helix-cli/internal/astcheck"
	"github.com/xkilldash9x/helix-cli/internal/circuit"
	"github.com/xkilldash9x/helix-cli/internal/config"
	"github.com/xkilldash9x/helix-cli/internal/gates"
	"github.com/xkilldash9x/helix-cli/internal/observability"
	"github.com/xkilldash9x/helix-cli/internal/proposer"
	"github.com/xkilldash9x/helix-cli/internal/selector"
	"github.com/xkilldash9x/helix-cli/internal/vcs"
	"github.com/xkilldash9x/helix-cli/internal/voting"
)

// evolveOptions carries the flag values of one evolve invocation.
type evolveOptions struct {
	Component string
	Strategy  string
	Focus     string
	DryRun    bool
	Mock      bool
	Root      string
}

// newEvolveCmd creates the 'evolve' command. It selects a lineage parent,
// obtains a proposed change, and drives it through the six-phase mutation
// circuit. The core logic lives in runEvolve so tests can inject collaborators.
func newEvolveCmd() *cobra.Command {
	var opts evolveOptions

	cmd := &cobra.Command{
		Use:   "evolve --component <path>",
		Short: "Runs one evolution attempt against a target component.",
		Long: `The evolve command drives a single proposed change through the mutation
circuit: build, test, adversarial review, bloat reduction, consensus review and
final verification. Every terminal outcome is recorded in the lineage archive.
WARNING: outside dry-run mode this modifies the local codebase.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfig()
			if err != nil {
				return err
			}
			if opts.Root == "" {
				if opts.Root, err = os.Getwd(); err != nil {
					return fmt.Errorf("failed to resolve working directory: %w", err)
				}
			}
			return runEvolve(ctx, cfg, logger, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Component, "component", "t", "", "Target component path, relative to the project root (required).")
	cmd.Flags().StringVarP(&opts.Strategy, "strategy", "s", "", "Parent selection strategy: elite, tournament, roulette or diverse.")
	cmd.Flags().StringVarP(&opts.Focus, "focus", "f", "", "Improvement focus passed to the proposal generator.")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Skip commits and record the outcome as dry_run.")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "Use the deterministic mock proposer instead of the configured backend.")
	cmd.Flags().StringVar(&opts.Root, "root", "", "Project root (default is the working directory).")
	_ = cmd.MarkFlagRequired("component")

	return cmd
}

// runEvolve wires the subsystems and executes one full selection, proposal and
// circuit cycle.
func runEvolve(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts evolveOptions) error {
	arch, cleanup, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	strategyName := opts.Strategy
	if strategyName == "" {
		strategyName = cfg.Selector.Strategy
	}
	strategy, err := selector.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	sel := selector.New(logger, arch, cfg.Selector, time.Now().UnixNano())
	selection, err := sel.SelectParent(ctx, opts.Component, strategy)
	if err != nil {
		return fmt.Errorf("parent selection failed: %w", err)
	}

	prop, err := buildProposer(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	proposal, err := prop.Propose(ctx, schemas.ProposalRequest{
		Component:     opts.Component,
		ParentContext: selection.Parent,
		Focus:         opts.Focus,
	})
	if err != nil {
		return fmt.Errorf("proposal generation failed: %w", err)
	}
	if selection.Parent != nil {
		proposal.ParentID = selection.Parent.ID
	}

	circ := buildCircuit(cfg, logger, opts, arch)
	result, err := circ.Run(ctx, proposal)
	if err != nil {
		return err
	}

	if result.Passed {
		fmt.Printf("PASSED phase %d/%d (%s); archived as %s\n",
			result.Phase, len(result.PhaseResults), result.PhaseName, result.EntryID)
		return nil
	}
	fmt.Printf("FAILED at phase %d (%s): %s; archived as %s\n",
		result.Phase, result.PhaseName, result.Reason, result.EntryID)
	return nil
}

// openArchive builds the configured archive backend and returns it with a
// cleanup function.
func openArchive(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.LineageArchive, func(), error) {
	switch cfg.Archive.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Archive.Postgres.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres archive: %w", err)
		}
		arch, err := archive.NewPostgresArchive(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return arch, pool.Close, nil
	default:
		if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		arch, err := archive.NewFileArchive(cfg.Archive.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return arch, func() { _ = arch.Close() }, nil
	}
}

// buildProposer selects the proposal backend.
func buildProposer(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts evolveOptions) (schemas.Proposer, error) {
	guard := proposer.NewPathGuard(cfg.Circuit.ForbiddenPatterns)
	if opts.Mock || cfg.Proposer.Mode == "mock" {
		return proposer.NewMockProposer(logger, guard, opts.Root), nil
	}
	return proposer.NewGeminiProposer(ctx, logger, guard, cfg.Proposer, opts.Root)
}

// buildCircuit assembles the six-phase circuit with its production gates.
func buildCircuit(cfg *config.Config, logger *zap.Logger, opts evolveOptions, arch schemas.LineageArchive) *circuit.Circuit {
	elegance := gates.NewStructuralEleganceScorer(logger)
	ethics := gates.NewKeywordEthicsChecker(logger)
	panel := voting.NewPanel(logger, cfg.Voting, voting.NewHeuristicPool(cfg.Voting.Categories, cfg.Voting.RequiredVotes))

	vcsCfg := cfg.VCS
	if opts.DryRun {
		vcsCfg.DryRun = true
	}

	deps := circuit.Deps{
		Archive:   arch,
		Tests:     gates.NewGoTestRunner(logger, opts.Root),
		Scanner:   gates.NewHeuristicScanner(logger),
		Slimmer:   gates.NewStructuralSlimmer(logger),
		Ethics:    ethics,
		Elegance:  elegance,
		Evaluator: gates.NewCompositeEvaluator(logger, elegance, ethics, cfg.Fitness),
		VCS:       vcs.New(logger, vcsCfg, opts.Root),
		Panel:     panel,
		Checker:   astcheck.New(),
		Metrics:   circuit.NewMetricsStore(logger, cfg.MetricsPath()),
		Locks:     circuit.NewLockManager(logger, cfg.LocksDir(), cfg.Circuit.LockTTL),
	}
	return circuit.New(logger, cfg.Circuit, opts.Root, opts.DryRun || vcsCfg.DryRun, deps)
}
