// File: internal/voting/reviewers.go
package voting

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// HeuristicReviewer is the deterministic local reviewer used in mock mode and
// tests. Each instance inspects the proposal through the lens of its category
// and always returns the same verdict for the same input.
type HeuristicReviewer struct {
	category string
	seat     int
}

// NewHeuristicPool builds a reviewer pool of the given size, round-robining
// seats across the configured categories.
func NewHeuristicPool(categories []string, size int) []schemas.Reviewer {
	pool := make([]schemas.Reviewer, 0, size)
	for i := 0; i < size; i++ {
		pool = append(pool, &HeuristicReviewer{
			category: categories[i%len(categories)],
			seat:     i,
		})
	}
	return pool
}

// Category names the reviewer bloc used for diversity accounting.
func (r *HeuristicReviewer) Category() string { return r.category }

// Review scores the proposal with cheap structural heuristics. High-risk
// proposals and suspicious content draw dissent; everything else approves.
func (r *HeuristicReviewer) Review(ctx context.Context, proposal *schemas.MutationProposal) (schemas.VoteRecord, error) {
	if err := ctx.Err(); err != nil {
		return schemas.VoteRecord{}, err
	}

	vote := schemas.VoteRecord{
		Verdict:    schemas.VerdictApprove,
		Confidence: 0.9,
		Category:   r.category,
	}

	code := proposal.NewContent
	switch {
	case proposal.Risk == schemas.RiskHigh && r.dissents(proposal, 3):
		vote.Verdict = schemas.VerdictRequestChanges
		vote.Confidence = 0.6
		vote.Reasoning = fmt.Sprintf("%s: high-risk change needs a narrower diff", r.category)
	case strings.Contains(code, "panic(") && r.category == "testing":
		vote.Verdict = schemas.VerdictRequestChanges
		vote.Confidence = 0.7
		vote.Reasoning = "testing: replace panic with an error return"
	case strings.Contains(code, "TODO") && r.dissents(proposal, 5):
		vote.Verdict = schemas.VerdictRequestChanges
		vote.Confidence = 0.5
		vote.Reasoning = fmt.Sprintf("%s: unresolved TODO left in the change", r.category)
	default:
		vote.Reasoning = fmt.Sprintf("%s: no objections", r.category)
	}
	return vote, nil
}

// dissents derives a stable pseudo-random dissent decision from the proposal
// content and this reviewer's seat, so panels behave deterministically.
func (r *HeuristicReviewer) dissents(proposal *schemas.MutationProposal, oneIn int) bool {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", proposal.Component+proposal.NewContent, r.seat)))
	return int(sum[0])%oneIn == 0
}
