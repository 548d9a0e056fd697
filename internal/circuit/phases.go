// File: internal/circuit/phases.go
package circuit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// Phase order is fixed; the index into phaseNames is the 1-based phase number
// minus one everywhere in this package.
var phaseNames = []string{
	"build",
	"test",
	"adversarial_review",
	"bloat_reduction",
	"consensus_review",
	"final_verification",
}

// outcomeKind is the closed set of per-attempt transitions.
type outcomeKind int

const (
	outcomePassed outcomeKind = iota
	outcomeRetry
	outcomeFailed
)

// phaseOutcome is one attempt's result before retry accounting.
type phaseOutcome struct {
	kind     outcomeKind
	message  string
	feedback string
	details  map[string]string
	infra    bool
}

func passed(message string) phaseOutcome {
	return phaseOutcome{kind: outcomePassed, message: message}
}

func retry(message, feedback string) phaseOutcome {
	return phaseOutcome{kind: outcomeRetry, message: message, feedback: feedback}
}

func failed(message string) phaseOutcome {
	return phaseOutcome{kind: outcomeFailed, message: message}
}

func infraFailed(message string) phaseOutcome {
	return phaseOutcome{kind: outcomeFailed, message: message, infra: true}
}

func (o phaseOutcome) withDetails(d map[string]string) phaseOutcome {
	o.details = d
	return o
}

// runState is the mutable candidate state threaded through the phases of one
// circuit run.
type runState struct {
	proposal   *schemas.MutationProposal
	targetPath string
	written    bool
}

func (c *Circuit) phaseFunc(idx int) func(ctx context.Context, st *runState, attempt int) phaseOutcome {
	switch idx {
	case 0:
		return c.phaseBuild
	case 1:
		return c.phaseTest
	case 2:
		return c.phaseAdversarialReview
	case 3:
		return c.phaseBloatReduction
	case 4:
		return c.phaseConsensusReview
	case 5:
		return c.phaseFinalVerification
	default:
		panic(fmt.Sprintf("unknown phase index %d", idx))
	}
}

// phaseBuild validates syntax and imports, then writes the candidate to its
// target location after snapshotting the original for rollback.
func (c *Circuit) phaseBuild(ctx context.Context, st *runState, attempt int) phaseOutcome {
	report, err := c.checker.Parse(ctx, st.proposal.NewContent)
	if err != nil {
		return infraFailed(fmt.Sprintf("syntax check unavailable: %v", err))
	}
	if !report.Valid {
		return failed(fmt.Sprintf("candidate does not parse (%d errors, first at %s)",
			report.ErrorCount, report.FirstError))
	}

	if unresolved := c.unresolvedImports(report.Imports); len(unresolved) > 0 {
		list := strings.Join(unresolved, ", ")
		return retry(
			fmt.Sprintf("unresolved imports: %s", list),
			fmt.Sprintf("remove or replace unresolvable imports: %s", list),
		)
	}

	if !st.written {
		original, err := os.ReadFile(st.targetPath)
		switch {
		case err == nil:
			st.proposal.OriginalCode = string(original)
			st.proposal.TargetExisted = true
		case os.IsNotExist(err):
			st.proposal.TargetExisted = false
		default:
			return infraFailed(fmt.Sprintf("failed to snapshot %s: %v", st.proposal.Component, err))
		}
	}

	if err := os.MkdirAll(filepath.Dir(st.targetPath), 0o755); err != nil {
		return infraFailed(fmt.Sprintf("failed to create target dir: %v", err))
	}
	if err := os.WriteFile(st.targetPath, []byte(st.proposal.NewContent), 0o644); err != nil {
		return infraFailed(fmt.Sprintf("failed to write candidate: %v", err))
	}
	st.written = true

	return passed("candidate parses and all imports resolve").withDetails(map[string]string{
		"imports": strconv.Itoa(len(report.Imports)),
	})
}

// phaseTest runs the external test suite against the affected scope.
func (c *Circuit) phaseTest(ctx context.Context, st *runState, attempt int) phaseOutcome {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	report, err := c.tests.Run(callCtx, st.proposal.Component)
	if err != nil {
		if isTimeout(callCtx, err) {
			return retry(fmt.Sprintf("test run timed out after %s", c.cfg.CallTimeout), "test run timed out; reduce scope or cost of the change")
		}
		return infraFailed(fmt.Sprintf("test runner unavailable: %v", err))
	}

	details := map[string]string{
		"passed":      strconv.Itoa(report.Passed),
		"failed":      strconv.Itoa(report.Failed),
		"coverage":    strconv.FormatFloat(report.CoveragePercent, 'f', 1, 64),
		"tests_found": strconv.FormatBool(report.Passed+report.Failed+report.Errored > 0),
	}

	if report.Failed > 0 || report.Errored > 0 {
		names := strings.Join(report.FailedTests, ", ")
		out := failed(fmt.Sprintf("%d tests failed: %s", report.Failed+report.Errored, names))
		out.feedback = fmt.Sprintf("fix failing tests: %s", names)
		return out.withDetails(details)
	}
	if report.Passed == 0 {
		return passed("no tests discovered for scope; continuing without test evidence").withDetails(details)
	}
	if report.CoveragePercent < c.cfg.CoverageFloor {
		return retry(
			fmt.Sprintf("coverage %.1f%% below floor %.1f%%", report.CoveragePercent, c.cfg.CoverageFloor),
			"add tests covering the changed paths",
		).withDetails(details)
	}
	return passed(fmt.Sprintf("%d tests passed, coverage %.1f%%", report.Passed, report.CoveragePercent)).withDetails(details)
}

// phaseAdversarialReview scans the candidate for vulnerabilities. A critical
// finding is fatal regardless of retry budget.
func (c *Circuit) phaseAdversarialReview(ctx context.Context, st *runState, attempt int) phaseOutcome {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	report, err := c.scanner.Scan(callCtx, st.proposal.NewContent)
	if err != nil {
		return infraFailed(fmt.Sprintf("vulnerability scanner unavailable: %v", err))
	}

	critical := report.Count(schemas.SeverityCritical)
	high := report.Count(schemas.SeverityHigh)
	details := map[string]string{
		"critical_findings": strconv.Itoa(critical),
		"high_findings":     strconv.Itoa(high),
		"medium_findings":   strconv.Itoa(report.Count(schemas.SeverityMedium)),
	}

	if critical > 0 {
		first := firstAtSeverity(report, schemas.SeverityCritical)
		return failed(fmt.Sprintf("critical vulnerability: %s (%s at %s)",
			first.Description, first.Vector, first.Location)).withDetails(details)
	}
	if high > 0 && c.cfg.StrictMode {
		first := firstAtSeverity(report, schemas.SeverityHigh)
		return retry(
			fmt.Sprintf("%d high-severity findings under strict mode", high),
			fmt.Sprintf("resolve high-severity finding: %s (%s)", first.Description, first.Vector),
		).withDetails(details)
	}
	return passed(fmt.Sprintf("no critical findings (%d high, %s medium)",
		high, details["medium_findings"])).withDetails(details)
}

// phaseBloatReduction measures structural bloat and swaps in the slimmed
// candidate when the analyzer removed anything.
func (c *Circuit) phaseBloatReduction(ctx context.Context, st *runState, attempt int) phaseOutcome {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	report, err := c.slimmer.Analyze(callCtx, st.proposal.NewContent)
	if err != nil {
		return infraFailed(fmt.Sprintf("slimming analyzer unavailable: %v", err))
	}

	details := map[string]string{
		"bloat_score":   strconv.FormatFloat(report.BloatScore, 'f', 3, 64),
		"bytes_removed": strconv.Itoa(report.BytesRemoved),
	}
	if report.BloatScore > c.cfg.BloatThreshold {
		items := report.BloatItems
		if len(items) > 3 {
			items = items[:3]
		}
		out := failed(fmt.Sprintf("bloat score %.3f exceeds threshold %.3f",
			report.BloatScore, c.cfg.BloatThreshold))
		out.feedback = "remove bloat: " + strings.Join(items, "; ")
		return out.withDetails(details)
	}

	if report.BytesRemoved > 0 && report.SlimmedCode != "" {
		st.proposal.NewContent = report.SlimmedCode
		if err := os.WriteFile(st.targetPath, []byte(report.SlimmedCode), 0o644); err != nil {
			return infraFailed(fmt.Sprintf("failed to write slimmed candidate: %v", err))
		}
		return passed(fmt.Sprintf("slimmed candidate adopted (%d bytes removed, score %.3f)",
			report.BytesRemoved, report.BloatScore)).withDetails(details)
	}
	return passed(fmt.Sprintf("bloat score %.3f within threshold", report.BloatScore)).withDetails(details)
}

// phaseConsensusReview delegates to the voting panel and maps its outcome
// directly onto the phase transition.
func (c *Circuit) phaseConsensusReview(ctx context.Context, st *runState, attempt int) phaseOutcome {
	result, err := c.panel.Review(ctx, st.proposal)
	if err != nil {
		return infraFailed(fmt.Sprintf("consensus panel unavailable: %v", err))
	}

	details := map[string]string{
		"votes_total":     strconv.Itoa(result.VotesTotal),
		"approval_ratio":  strconv.FormatFloat(result.ApprovalRatio, 'f', 3, 64),
		"diversity_score": strconv.FormatFloat(result.DiversityScore, 'f', 3, 64),
	}
	switch result.Outcome {
	case schemas.ReviewApproved:
		return passed(fmt.Sprintf("approved by %.0f%% of %d votes (diversity %.2f)",
			result.ApprovalRatio*100, result.VotesTotal, result.DiversityScore)).withDetails(details)
	case schemas.ReviewRetry:
		return retry(
			fmt.Sprintf("panel requested changes (%.0f%% approval)", result.ApprovalRatio*100),
			strings.Join(result.Feedback, "; "),
		).withDetails(details)
	case schemas.ReviewRejected:
		msg := fmt.Sprintf("panel rejected the change (%.0f%% approval, diversity %.2f)",
			result.ApprovalRatio*100, result.DiversityScore)
		if len(result.Feedback) > 0 {
			msg += ": " + strings.Join(result.Feedback, "; ")
		}
		return failed(msg).withDetails(details)
	default:
		return infraFailed(fmt.Sprintf("unknown review outcome %q", result.Outcome))
	}
}

// phaseFinalVerification re-runs the safety and quality checks against the
// final candidate. Absolute-tier safety violations are fatal; persistent minor
// concerns are accepted after one retry.
func (c *Circuit) phaseFinalVerification(ctx context.Context, st *runState, attempt int) phaseOutcome {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	ethics, err := c.ethics.Evaluate(callCtx, st.proposal.Rationale, st.proposal.NewContent)
	if err != nil {
		if isTimeout(callCtx, err) {
			return retry("ethics check timed out", "ethics check timed out")
		}
		return infraFailed(fmt.Sprintf("ethics checker unavailable: %v", err))
	}
	if ethics.AbsoluteViolation() {
		return failed("absolute-tier safety violation: " + failedCheckNames(ethics))
	}

	parse, err := c.checker.Parse(ctx, st.proposal.NewContent)
	if err != nil {
		return infraFailed(fmt.Sprintf("syntax check unavailable: %v", err))
	}
	if !parse.Valid {
		return failed(fmt.Sprintf("final candidate no longer parses (first error at %s)", parse.FirstError))
	}

	elegance, err := c.elegance.Score(callCtx, st.proposal.NewContent)
	if err != nil {
		return infraFailed(fmt.Sprintf("elegance scorer unavailable: %v", err))
	}

	report, err := c.tests.Run(callCtx, st.proposal.Component)
	if err != nil {
		if isTimeout(callCtx, err) {
			return retry("final test pass timed out", "final test pass timed out")
		}
		return infraFailed(fmt.Sprintf("test runner unavailable: %v", err))
	}
	if report.Failed > 0 || report.Errored > 0 {
		return failed(fmt.Sprintf("final test pass regressed: %s", strings.Join(report.FailedTests, ", ")))
	}

	details := map[string]string{
		"alignment_score": strconv.FormatFloat(ethics.AlignmentScore, 'f', 3, 64),
		"elegance_score":  strconv.FormatFloat(elegance, 'f', 3, 64),
	}

	var concerns []string
	if !ethics.Passed {
		concerns = append(concerns, "non-absolute safety concerns: "+failedCheckNames(ethics))
	}
	if elegance < 0.3 {
		concerns = append(concerns, fmt.Sprintf("low elegance score %.2f", elegance))
	}
	if len(concerns) > 0 {
		// One retry for cosmetic concerns, then accept rather than block forever.
		if attempt == 0 {
			return retry("minor concerns remain", strings.Join(concerns, "; ")).withDetails(details)
		}
		return passed("accepting persistent minor concerns: " + strings.Join(concerns, "; ")).withDetails(details)
	}
	return passed(fmt.Sprintf("final checks clean (alignment %.2f, elegance %.2f)",
		ethics.AlignmentScore, elegance)).withDetails(details)
}

func (c *Circuit) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

// isTimeout distinguishes a per-call deadline from every other collaborator
// failure, without misreading a caller-level cancellation as a timeout.
func isTimeout(callCtx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(callCtx.Err(), context.DeadlineExceeded)
}

func firstAtSeverity(report schemas.ScanReport, sev schemas.Severity) schemas.Vulnerability {
	for _, v := range report.Vulnerabilities {
		if v.Severity == sev {
			return v
		}
	}
	return schemas.Vulnerability{}
}

func failedCheckNames(report schemas.EthicsReport) string {
	var names []string
	for _, check := range report.Checks {
		if !check.Passed {
			names = append(names, check.Name)
		}
	}
	return strings.Join(names, ", ")
}
