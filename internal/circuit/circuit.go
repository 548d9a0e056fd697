// File: internal/circuit/circuit.go

// Package circuit drives a mutation proposal through the six ordered
// validation phases, with per-phase retry accounting, automatic rollback and
// durable phase-kill metrics. Phases run strictly sequentially; concurrency
// exists only across independent circuit runs, guarded by per-file locks.
package circuit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	"github.com/xkilldash9x/helix-cli/internal/astcheck"
	"github.com/xkilldash9x/helix-cli/internal/config"
)

// ConsensusPanel is the phase-5 collaborator.
type ConsensusPanel interface {
	Review(ctx context.Context, proposal *schemas.MutationProposal) (schemas.VotingResult, error)
}

// SyntaxChecker validates candidate sources and extracts their imports.
type SyntaxChecker interface {
	Parse(ctx context.Context, source string) (astcheck.ParseReport, error)
}

// Deps bundles every collaborator a Circuit needs.
type Deps struct {
	Archive   schemas.LineageArchive
	Tests     schemas.TestRunner
	Scanner   schemas.VulnScanner
	Slimmer   schemas.SlimmingAnalyzer
	Ethics    schemas.EthicsChecker
	Elegance  schemas.EleganceScorer
	Evaluator schemas.FitnessEvaluator
	VCS       schemas.VersionControl
	Panel     ConsensusPanel
	Checker   SyntaxChecker
	Metrics   *MetricsStore
	Locks     *LockManager
}

// Circuit is the mutation-circuit state machine.
type Circuit struct {
	logger  *zap.Logger
	cfg     config.CircuitConfig
	root    string
	dryRun  bool
	archive schemas.LineageArchive

	tests     schemas.TestRunner
	scanner   schemas.VulnScanner
	slimmer   schemas.SlimmingAnalyzer
	ethics    schemas.EthicsChecker
	elegance  schemas.EleganceScorer
	evaluator schemas.FitnessEvaluator
	vcs       schemas.VersionControl
	panel     ConsensusPanel
	checker   SyntaxChecker

	metrics *MetricsStore
	locks   *LockManager
}

// New assembles a Circuit over the project root. dryRun marks archived
// successes as dry_run instead of applied.
func New(logger *zap.Logger, cfg config.CircuitConfig, root string, dryRun bool, deps Deps) *Circuit {
	return &Circuit{
		logger:    logger.Named("circuit"),
		cfg:       cfg,
		root:      root,
		dryRun:    dryRun,
		archive:   deps.Archive,
		tests:     deps.Tests,
		scanner:   deps.Scanner,
		slimmer:   deps.Slimmer,
		ethics:    deps.Ethics,
		elegance:  deps.Elegance,
		evaluator: deps.Evaluator,
		vcs:       deps.VCS,
		panel:     deps.Panel,
		checker:   deps.Checker,
		metrics:   deps.Metrics,
		locks:     deps.Locks,
	}
}

// Run drives one proposal through all six phases and writes exactly one
// terminal entry to the archive. The returned error covers only conditions
// that must reach the caller: lock contention, forbidden-path violations and
// archive integrity failures. Every phase-level failure is captured in the
// CircuitResult instead.
func (c *Circuit) Run(ctx context.Context, proposal *schemas.MutationProposal) (*schemas.CircuitResult, error) {
	if proposal == nil || proposal.Component == "" {
		return nil, fmt.Errorf("proposal must name a target component")
	}

	release, err := c.locks.Acquire(proposal.Component)
	if err != nil {
		return nil, err
	}
	defer release()

	st := &runState{
		proposal:   proposal,
		targetPath: filepath.Join(c.root, filepath.FromSlash(proposal.Component)),
	}
	result := &schemas.CircuitResult{}

	c.logger.Info("Circuit run starting.",
		zap.String("component", proposal.Component),
		zap.String("change_type", string(proposal.ChangeType)),
		zap.String("risk", string(proposal.Risk)),
	)

	for idx, name := range phaseNames {
		// Abort between phases, never mid-phase.
		if ctx.Err() != nil {
			c.rollback(st)
			result.Phase = idx + 1
			result.PhaseName = name
			result.Reason = "run aborted: " + ctx.Err().Error()
			return result, c.finish(ctx, st, result, schemas.StatusRolledBack)
		}

		started := time.Now()
		out, retries := c.runPhase(ctx, idx, st)
		pr := schemas.PhaseResult{
			Phase:      name,
			Status:     schemas.PhasePassed,
			Message:    out.message,
			Details:    out.details,
			Retries:    retries,
			Feedback:   out.feedback,
			Infra:      out.infra,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		if out.kind == outcomeFailed {
			pr.Status = schemas.PhaseFailed
		}
		result.PhaseResults = append(result.PhaseResults, pr)
		result.Phase = idx + 1
		result.PhaseName = name

		if out.kind == outcomeFailed {
			if idx >= 1 {
				c.rollback(st)
			}
			result.Reason = out.message
			status := schemas.StatusRejected
			if out.infra {
				status = schemas.StatusRolledBack
			}
			c.logger.Warn("Circuit run failed.",
				zap.String("component", proposal.Component),
				zap.String("phase", name),
				zap.String("reason", out.message),
			)
			return result, c.finish(ctx, st, result, status)
		}
	}

	result.Passed = true
	result.ReadyToPush = true
	c.logger.Info("Circuit run passed all phases.", zap.String("component", proposal.Component))

	status := schemas.StatusApplied
	if c.dryRun {
		status = schemas.StatusDryRun
	}
	return result, c.finish(ctx, st, result, status)
}

// runPhase executes one phase with retry accounting. The returned retries
// value counts re-attempts beyond the first, so a phase that exhausts its
// budget ran exactly MaxRetries+1 times.
func (c *Circuit) runPhase(ctx context.Context, idx int, st *runState) (phaseOutcome, int) {
	name := phaseNames[idx]
	run := c.phaseFunc(idx)

	for attempt := 0; ; attempt++ {
		started := time.Now()
		out := run(ctx, st, attempt)
		c.logger.Debug("Phase attempt finished.",
			zap.String("phase", name),
			zap.Int("attempt", attempt+1),
			zap.String("message", out.message),
			zap.Duration("elapsed", time.Since(started)),
		)

		if out.kind != outcomeRetry {
			return out, attempt
		}
		if attempt >= c.cfg.MaxRetries {
			out.kind = outcomeFailed
			out.message += "; max retries exceeded"
			return out, attempt
		}
		c.logger.Info("Phase retrying.",
			zap.String("phase", name),
			zap.Int("attempt", attempt+1),
			zap.String("feedback", out.feedback),
		)
		c.applyFeedback(st, out.feedback)
	}
}

// applyFeedback threads phase feedback into the in-flight proposal so a
// retried attempt (and any downstream collaborator) sees what to adjust.
func (c *Circuit) applyFeedback(st *runState, feedback string) {
	if feedback == "" {
		return
	}
	st.proposal.Rationale = st.proposal.Rationale + "\n[retry feedback] " + feedback
}

// rollback restores the pre-run content of the target file, or deletes it if
// the file did not exist before phase 1. Rollback trouble is logged and never
// masks the failure that triggered it.
func (c *Circuit) rollback(st *runState) {
	if !st.written {
		return
	}
	var err error
	if st.proposal.TargetExisted {
		err = os.WriteFile(st.targetPath, []byte(st.proposal.OriginalCode), 0o644)
	} else {
		err = os.Remove(st.targetPath)
		if os.IsNotExist(err) {
			err = nil
		}
	}
	if err != nil {
		c.logger.Error("Rollback failed; target may be dirty.",
			zap.String("target", st.targetPath),
			zap.Error(err),
		)
		return
	}
	st.written = false
	c.logger.Info("Rolled back target file.", zap.String("target", st.targetPath))
}

// finish computes fitness for passing runs, commits when appropriate, writes
// the terminal archive entry, and records durable metrics.
func (c *Circuit) finish(ctx context.Context, st *runState, result *schemas.CircuitResult, status schemas.EntryStatus) error {
	// The terminal archive write must happen even when the run was aborted.
	ctx = context.WithoutCancel(ctx)
	p := st.proposal
	entry := &schemas.EvolutionEntry{
		ParentID:    p.ParentID,
		Component:   p.Component,
		ChangeType:  p.ChangeType,
		Description: p.Rationale,
		Diff:        p.Diff,
		Status:      status,
		Reason:      result.Reason,
		Timestamp:   time.Now().UTC(),
	}
	for _, pr := range result.PhaseResults {
		if pr.Status == schemas.PhasePassed {
			entry.GatesPassed = append(entry.GatesPassed, pr.Phase)
		} else {
			entry.GatesFailed = append(entry.GatesFailed, pr.Phase)
		}
	}

	if result.Passed {
		fitness, err := c.evaluator.Evaluate(ctx, p, result.PhaseResults)
		if err != nil {
			c.logger.Warn("Fitness evaluation failed; archiving zero fitness.", zap.Error(err))
		} else {
			entry.Fitness = fitness
		}

		files := p.AffectedFiles
		if len(files) == 0 {
			files = []string{p.Component}
		}
		message := fmt.Sprintf("evolve(%s): %s", p.Component, firstLine(p.Rationale))
		commitID, err := c.vcs.Commit(ctx, files, message)
		if err != nil {
			c.logger.Warn("Commit failed; entry archived without commit id.", zap.Error(err))
			result.ReadyToPush = false
		} else {
			entry.CommitID = commitID
		}
	}

	// Salt the id so identical candidates archived within the same second
	// still get distinct entries.
	entry.ID = schemas.NewEntryID(entry.Timestamp, p.Component+"\n"+p.NewContent+"\n"+uuid.NewString())

	id, err := c.archive.AddEntry(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to archive circuit result: %w", err)
	}
	result.EntryID = id

	if merr := c.metrics.Record(result.Passed, failedPhaseName(result)); merr != nil {
		c.logger.Warn("Failed to persist circuit metrics.", zap.Error(merr))
	}
	return nil
}

func (c *Circuit) unresolvedImports(imports []string) []string {
	return astcheck.UnresolvedImports(imports, c.root)
}

func failedPhaseName(result *schemas.CircuitResult) string {
	if result.Passed {
		return ""
	}
	return result.PhaseName
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
