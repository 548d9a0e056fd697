// File: api/schemas/collaborators.go
package schemas

import (
	"context"
	"errors"
	"time"
)

// ErrForbiddenPath is returned when a proposal would touch a path matching a
// forbidden pattern (secrets, credentials, keys). It is a safety violation and
// must propagate to the caller rather than being absorbed into a phase result.
var ErrForbiddenPath = errors.New("proposal targets a forbidden path")

// ProposalRequest is the input to a Proposer.
type ProposalRequest struct {
	Component     string
	ParentContext *EvolutionEntry
	Focus         string
}

// Proposer generates candidate changes. The production implementation is
// LLM-backed; tests and mock mode run against a deterministic stub.
type Proposer interface {
	Propose(ctx context.Context, req ProposalRequest) (*MutationProposal, error)
}

// TestReport is the parsed output of one external test-runner invocation.
type TestReport struct {
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	Errored         int     `json:"errored"`
	CoveragePercent float64 `json:"coverage_percent"`
	FailedTests     []string
	RawOutput       string `json:"raw_output"`
}

// TestRunner invokes the external test suite for a scope.
type TestRunner interface {
	Run(ctx context.Context, scope string) (TestReport, error)
}

// Severity grades a vulnerability finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Vulnerability is a single scanner finding.
type Vulnerability struct {
	Severity    Severity `json:"severity"`
	Vector      string   `json:"vector"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
}

// ScanReport is the result of one vulnerability scan.
type ScanReport struct {
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Recommendation  string          `json:"recommendation"`
}

// Count returns the number of findings at the given severity.
func (r ScanReport) Count(sev Severity) int {
	n := 0
	for _, v := range r.Vulnerabilities {
		if v.Severity == sev {
			n++
		}
	}
	return n
}

// VulnScanner is the external adversarial-review collaborator.
type VulnScanner interface {
	Scan(ctx context.Context, code string) (ScanReport, error)
}

// SlimReport is the output of the bloat/slimming analyzer.
type SlimReport struct {
	BloatScore   float64  `json:"bloat_score"`
	BloatItems   []string `json:"bloat_items"`
	SlimmedCode  string   `json:"slimmed_code"`
	BytesRemoved int      `json:"bytes_removed"`
}

// SlimmingAnalyzer detects structural bloat and offers a slimmed variant.
type SlimmingAnalyzer interface {
	Analyze(ctx context.Context, code string) (SlimReport, error)
}

// EthicsTier ranks how severe a failed ethics check is.
type EthicsTier string

const (
	TierAbsolute EthicsTier = "absolute"
	TierStrong   EthicsTier = "strong"
	TierBasic    EthicsTier = "basic"
)

// EthicsCheck is one named heuristic check result.
type EthicsCheck struct {
	Name   string     `json:"name"`
	Tier   EthicsTier `json:"tier"`
	Passed bool       `json:"passed"`
	Detail string     `json:"detail,omitempty"`
}

// EthicsReport aggregates the heuristic safety checks for one action.
type EthicsReport struct {
	Passed         bool          `json:"passed"`
	Checks         []EthicsCheck `json:"checks"`
	AlignmentScore float64       `json:"alignment_score"`
}

// AbsoluteViolation reports whether any absolute-tier check failed.
// Absolute failures are fatal and never retried.
func (r EthicsReport) AbsoluteViolation() bool {
	for _, c := range r.Checks {
		if !c.Passed && c.Tier == TierAbsolute {
			return true
		}
	}
	return false
}

// EthicsChecker is the keyword-heuristic safety gate.
type EthicsChecker interface {
	Evaluate(ctx context.Context, action, actionContext string) (EthicsReport, error)
}

// EleganceScorer rates structural code quality in [0,1].
type EleganceScorer interface {
	Score(ctx context.Context, code string) (float64, error)
}

// FitnessEvaluator computes the final multi-dimensional fitness of a
// candidate that survived all six phases.
type FitnessEvaluator interface {
	Evaluate(ctx context.Context, proposal *MutationProposal, gates []PhaseResult) (FitnessScore, error)
}

// VersionControl commits and pushes accepted changes. Under dry-run both
// operations are no-ops returning deterministic placeholder identifiers.
type VersionControl interface {
	Commit(ctx context.Context, files []string, message string) (string, error)
	Push(ctx context.Context, branch string) error
}

// Reviewer is one independent consensus participant.
type Reviewer interface {
	// Review returns this reviewer's verdict on the proposal.
	Review(ctx context.Context, proposal *MutationProposal) (VoteRecord, error)
	// Category names the reviewer bloc used for diversity accounting.
	Category() string
}

// LineageArchive is the read/write contract over the append-only evolution
// history. The circuit is the only writer; everything else reads.
type LineageArchive interface {
	AddEntry(ctx context.Context, entry *EvolutionEntry) (string, error)
	GetEntry(ctx context.Context, id string) (*EvolutionEntry, error)
	GetLineage(ctx context.Context, id string) ([]*EvolutionEntry, error)
	GetChildren(ctx context.Context, id string) ([]*EvolutionEntry, error)
	GetBest(ctx context.Context, n int, component string) ([]*EvolutionEntry, error)
	FitnessOverTime(ctx context.Context, component string) ([]FitnessPoint, error)
	Applied(ctx context.Context, component string) ([]*EvolutionEntry, error)
	Recent(ctx context.Context, n int) ([]*EvolutionEntry, error)
}

// FitnessPoint is one sample in a fitness-over-time series.
type FitnessPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Fitness   float64   `json:"fitness"`
}
