// File: internal/voting/voting.go

// Package voting gates a proposal behind a quorum of independent reviews.
// Approval needs both a minimum approval ratio and minimum reviewer
// diversity, so a homogeneous bloc cannot rubber-stamp a change.
package voting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	"github.com/xkilldash9x/helix-cli/internal/config"
)

// Panel fans a proposal out to independent reviewers and tallies the verdicts.
// Reviewers are polled once per circuit attempt, never resampled mid-vote.
type Panel struct {
	log       *zap.Logger
	cfg       config.VotingConfig
	reviewers []schemas.Reviewer
	limiter   *rate.Limiter
	sem       *semaphore.Weighted
}

// NewPanel wires a review panel over a fixed reviewer pool.
func NewPanel(logger *zap.Logger, cfg config.VotingConfig, reviewers []schemas.Reviewer) *Panel {
	maxConc := cfg.MaxConcurrent
	if maxConc < 1 {
		maxConc = 1
	}
	pollRate := cfg.PollRate
	if pollRate <= 0 {
		pollRate = float64(rate.Inf)
	}
	return &Panel{
		log:       logger.Named("voting"),
		cfg:       cfg,
		reviewers: reviewers,
		limiter:   rate.NewLimiter(rate.Limit(pollRate), maxConc),
		sem:       semaphore.NewWeighted(int64(maxConc)),
	}
}

// Review polls every reviewer in parallel (bounded fan-out, per-review
// timeout, panel deadline), then applies the consensus policy. Branches share
// no mutable state; votes are merged only after all branches complete.
func (p *Panel) Review(ctx context.Context, proposal *schemas.MutationProposal) (schemas.VotingResult, error) {
	if proposal == nil {
		return schemas.VotingResult{}, fmt.Errorf("voting: nil proposal")
	}

	panelCtx := ctx
	if p.cfg.PanelTimeout > 0 {
		var cancel context.CancelFunc
		panelCtx, cancel = context.WithTimeout(ctx, p.cfg.PanelTimeout)
		defer cancel()
	}

	p.log.Info("Consensus review started.",
		zap.String("component", proposal.Component),
		zap.Int("reviewers", len(p.reviewers)),
		zap.Int("required_votes", p.cfg.RequiredVotes),
	)

	votes := make([]schemas.VoteRecord, len(p.reviewers))
	cast := make([]bool, len(p.reviewers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(panelCtx)
	for i, reviewer := range p.reviewers {
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return nil // Panel deadline elapsed; merge what we have.
			}
			if err := p.sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer p.sem.Release(1)

			reviewCtx := gctx
			if p.cfg.PerReviewTimeout > 0 {
				var cancel context.CancelFunc
				reviewCtx, cancel = context.WithTimeout(gctx, p.cfg.PerReviewTimeout)
				defer cancel()
			}

			vote, err := reviewer.Review(reviewCtx, proposal)
			if err != nil {
				// A failed reviewer abstains; it must not sink the panel.
				p.log.Debug("Reviewer abstained.",
					zap.String("category", reviewer.Category()), zap.Error(err))
				return nil
			}
			if vote.Category == "" {
				vote.Category = reviewer.Category()
			}

			mu.Lock()
			votes[i] = vote
			cast[i] = true
			mu.Unlock()
			return nil
		})
	}
	// Reviewer goroutines only return nil; Wait is for fan-in.
	_ = g.Wait()

	collected := make([]schemas.VoteRecord, 0, len(votes))
	for i, ok := range cast {
		if ok {
			collected = append(collected, votes[i])
		}
	}

	result := p.tally(collected)
	p.log.Info("Consensus review finished.",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("votes", result.VotesTotal),
		zap.Float64("approval_ratio", result.ApprovalRatio),
		zap.Float64("diversity", result.DiversityScore),
	)
	return result, nil
}

// tally applies the consensus policy to a completed vote set.
func (p *Panel) tally(votes []schemas.VoteRecord) schemas.VotingResult {
	result := schemas.VotingResult{VotesTotal: len(votes)}

	if len(votes) < p.cfg.RequiredVotes {
		result.Outcome = schemas.ReviewRetry
		result.Feedback = []string{
			fmt.Sprintf("insufficient quorum: %d of %d required votes", len(votes), p.cfg.RequiredVotes),
		}
		return result
	}

	approvals := 0
	byCategory := make(map[string]int)
	var requestChanges, rejects []schemas.VoteRecord
	for _, v := range votes {
		byCategory[v.Category]++
		switch v.Verdict {
		case schemas.VerdictApprove:
			approvals++
		case schemas.VerdictRequestChanges:
			requestChanges = append(requestChanges, v)
		case schemas.VerdictReject:
			rejects = append(rejects, v)
		}
	}

	result.ApprovalRatio = float64(approvals) / float64(len(votes))
	maxShare := 0.0
	dominant := ""
	for cat, n := range byCategory {
		share := float64(n) / float64(len(votes))
		if share > maxShare {
			maxShare, dominant = share, cat
		}
		// A bloc above the cap rejects outright, regardless of approval ratio.
		if n > p.cfg.CategoryCap {
			result.DiversityScore = 1 - share
			result.Outcome = schemas.ReviewRejected
			result.Feedback = []string{
				fmt.Sprintf("homogeneous bloc: %d votes from category %q exceed the cap of %d", n, cat, p.cfg.CategoryCap),
			}
			return result
		}
	}
	result.DiversityScore = 1 - maxShare

	if result.DiversityScore <= p.cfg.DiversityFloor {
		result.Outcome = schemas.ReviewRejected
		result.Feedback = []string{
			fmt.Sprintf("diversity %.2f at or below floor %.2f (dominant category %q)",
				result.DiversityScore, p.cfg.DiversityFloor, dominant),
		}
		return result
	}

	if result.ApprovalRatio > p.cfg.ApprovalRatio {
		result.Approved = true
		result.Outcome = schemas.ReviewApproved
		return result
	}

	// Approval failed. If dissent is predominantly "request changes", signal a
	// retry with aggregated feedback instead of a hard rejection.
	if len(requestChanges) > len(rejects) {
		result.Outcome = schemas.ReviewRetry
		result.Feedback = distinctReasons(requestChanges, p.cfg.FeedbackCap)
		return result
	}

	result.Outcome = schemas.ReviewRejected
	result.Feedback = distinctReasons(append(rejects, requestChanges...), p.cfg.FeedbackCap)
	return result
}

// distinctReasons returns up to limit distinct dissent reasons in first-seen
// order, which is deterministic because votes are merged in reviewer order.
func distinctReasons(votes []schemas.VoteRecord, limit int) []string {
	if limit < 1 {
		limit = 3
	}
	seen := make(map[string]bool)
	var reasons []string
	for _, v := range votes {
		if v.Reasoning == "" || seen[v.Reasoning] {
			continue
		}
		seen[v.Reasoning] = true
		reasons = append(reasons, v.Reasoning)
	}
	if len(reasons) > limit {
		reasons = reasons[:limit]
	}
	return reasons
}

// PollDeadline reports how long one full panel round may take, for operators
// sizing circuit call timeouts.
func (p *Panel) PollDeadline() time.Duration {
	if p.cfg.PanelTimeout > 0 {
		return p.cfg.PanelTimeout
	}
	return 0
}
