// File: api/schemas/evolution.go
package schemas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ChangeType tags the kind of modification an evolution attempt made.
type ChangeType string

const (
	ChangeMutation  ChangeType = "mutation"
	ChangeCrossover ChangeType = "crossover"
	ChangeAblation  ChangeType = "ablation"
)

// EntryStatus tracks where an evolution attempt sits in its lifecycle.
type EntryStatus string

const (
	StatusProposed        EntryStatus = "proposed"
	StatusNeedsConsent    EntryStatus = "needs_consent"
	StatusAwaitingConsent EntryStatus = "awaiting_consent"
	StatusApplied         EntryStatus = "applied"
	StatusRejected        EntryStatus = "rejected"
	StatusRolledBack      EntryStatus = "rolled_back"
	StatusDryRun          EntryStatus = "dry_run"
)

// RiskLevel classifies how dangerous a proposed change is considered.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FitnessWeights controls how the five fitness dimensions combine into a total.
// The defaults mirror the historical weighting and are configuration, not protocol.
type FitnessWeights struct {
	Correctness float64 `mapstructure:"correctness" json:"correctness"`
	Alignment   float64 `mapstructure:"alignment" json:"alignment"`
	Elegance    float64 `mapstructure:"elegance" json:"elegance"`
	Efficiency  float64 `mapstructure:"efficiency" json:"efficiency"`
	Safety      float64 `mapstructure:"safety" json:"safety"`
}

// DefaultFitnessWeights returns the status-quo weighting.
func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{
		Correctness: 0.30,
		Alignment:   0.25,
		Elegance:    0.15,
		Efficiency:  0.10,
		Safety:      0.20,
	}
}

// FitnessScore holds the five bounded [0,1] quality dimensions of a change
// plus the weighted total.
type FitnessScore struct {
	Correctness float64 `json:"correctness"`
	Alignment   float64 `json:"alignment"`
	Elegance    float64 `json:"elegance"`
	Efficiency  float64 `json:"efficiency"`
	Safety      float64 `json:"safety"`
	Total       float64 `json:"total"`
}

// WithTotal returns a copy of the score with Total recomputed from the weights.
func (f FitnessScore) WithTotal(w FitnessWeights) FitnessScore {
	f.Total = clamp01(f.Correctness)*w.Correctness +
		clamp01(f.Alignment)*w.Alignment +
		clamp01(f.Elegance)*w.Elegance +
		clamp01(f.Efficiency)*w.Efficiency +
		clamp01(f.Safety)*w.Safety
	return f
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EvolutionEntry is one recorded attempt to change one component.
// Entries are append-only; once archived they are never deleted.
type EvolutionEntry struct {
	ID          string       `json:"id"`
	ParentID    string       `json:"parent_id,omitempty"`
	Component   string       `json:"component"`
	ChangeType  ChangeType   `json:"change_type"`
	Description string       `json:"description"`
	Diff        string       `json:"diff,omitempty"`
	CommitID    string       `json:"commit_id,omitempty"`
	Fitness     FitnessScore `json:"fitness"`
	GatesPassed []string     `json:"gates_passed,omitempty"`
	GatesFailed []string     `json:"gates_failed,omitempty"`
	Status      EntryStatus  `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// NewEntryID derives a sortable, collision-resistant identifier from the
// creation time and a content hash.
func NewEntryID(ts time.Time, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s-%s", ts.UTC().Format("20060102T150405"), hex.EncodeToString(sum[:6]))
}

// MutationProposal is the in-flight candidate a single circuit run owns.
// It is never persisted directly; its outcome is captured in an EvolutionEntry.
type MutationProposal struct {
	Component        string     `json:"component"`
	NewContent       string     `json:"new_content"`
	Diff             string     `json:"diff,omitempty"`
	Rationale        string     `json:"rationale"`
	Risk             RiskLevel  `json:"risk"`
	ChangeType       ChangeType `json:"change_type"`
	ParentID         string     `json:"parent_id,omitempty"`
	AffectedFiles    []string   `json:"affected_files,omitempty"`
	EstimatedFitness float64    `json:"estimated_fitness"`

	// OriginalCode snapshots the pre-change file content so a failed run
	// can restore it. Empty means the target file did not exist.
	OriginalCode string `json:"-"`
	// TargetExisted distinguishes an empty original file from a missing one.
	TargetExisted bool `json:"-"`
}

// PhaseStatus is the closed set of per-attempt phase states.
type PhaseStatus string

const (
	PhasePending PhaseStatus = "pending"
	PhaseRunning PhaseStatus = "running"
	PhasePassed  PhaseStatus = "passed"
	PhaseFailed  PhaseStatus = "failed"
	PhaseRetry   PhaseStatus = "retry"
	PhaseSkipped PhaseStatus = "skipped"
)

// PhaseResult is the per-phase outcome of one circuit attempt.
type PhaseResult struct {
	Phase      string            `json:"phase"`
	Status     PhaseStatus       `json:"status"`
	Message    string            `json:"message,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Retries    int               `json:"retries"`
	Feedback   string            `json:"feedback,omitempty"`
	Infra      bool              `json:"infrastructure,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Verdict is a single reviewer's position on a proposal.
type Verdict string

const (
	VerdictApprove        Verdict = "approve"
	VerdictRequestChanges Verdict = "request_changes"
	VerdictReject         Verdict = "reject"
)

// VoteRecord is one reviewer's verdict. Votes are ephemeral; they are
// summarized into a VotingResult and then discarded.
type VoteRecord struct {
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Category   string  `json:"category"`
}

// Approved reports whether the vote counts toward approval.
func (v VoteRecord) Approved() bool { return v.Verdict == VerdictApprove }

// ReviewOutcome is the closed set of consensus decisions.
type ReviewOutcome string

const (
	ReviewApproved ReviewOutcome = "approved"
	ReviewRetry    ReviewOutcome = "retry"
	ReviewRejected ReviewOutcome = "rejected"
)

// VotingResult summarizes a completed consensus round.
type VotingResult struct {
	Outcome        ReviewOutcome `json:"outcome"`
	Approved       bool          `json:"approved"`
	VotesTotal     int           `json:"votes_total"`
	ApprovalRatio  float64       `json:"approval_ratio"`
	DiversityScore float64       `json:"diversity_score"`
	Feedback       []string      `json:"feedback,omitempty"`
}

// CircuitResult is the terminal outcome of one full circuit run.
type CircuitResult struct {
	Passed       bool          `json:"passed"`
	Phase        int           `json:"phase"`
	PhaseName    string        `json:"phase_name"`
	ReadyToPush  bool          `json:"ready_to_push"`
	EntryID      string        `json:"entry_id"`
	Reason       string        `json:"reason,omitempty"`
	PhaseResults []PhaseResult `json:"phase_results"`
}
