// File: internal/gates/evaluator.go
package gates

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// CompositeEvaluator computes the final multi-dimensional fitness of a
// candidate that cleared all six phases, reusing the elegance scorer and the
// ethics checker plus the structured details the phases left behind.
type CompositeEvaluator struct {
	logger   *zap.Logger
	elegance schemas.EleganceScorer
	ethics   schemas.EthicsChecker
	weights  schemas.FitnessWeights
}

var _ schemas.FitnessEvaluator = (*CompositeEvaluator)(nil)

// NewCompositeEvaluator wires the evaluator.
func NewCompositeEvaluator(logger *zap.Logger, elegance schemas.EleganceScorer, ethics schemas.EthicsChecker, weights schemas.FitnessWeights) *CompositeEvaluator {
	return &CompositeEvaluator{
		logger:   logger.Named("evaluator"),
		elegance: elegance,
		ethics:   ethics,
		weights:  weights,
	}
}

// Evaluate derives the five dimensions from the candidate and its phase trail.
func (e *CompositeEvaluator) Evaluate(ctx context.Context, proposal *schemas.MutationProposal, phases []schemas.PhaseResult) (schemas.FitnessScore, error) {
	if proposal == nil {
		return schemas.FitnessScore{}, fmt.Errorf("evaluator: nil proposal")
	}

	score := schemas.FitnessScore{
		Correctness: 1.0,
		Efficiency:  1.0,
		Safety:      1.0,
	}

	for _, ph := range phases {
		switch ph.Phase {
		case "test":
			if cov, ok := ph.Details["coverage"]; ok {
				if pct, err := strconv.ParseFloat(cov, 64); err == nil {
					score.Correctness = 0.5 + 0.5*pct/100
				}
			}
			if ph.Details["tests_found"] == "false" {
				score.Correctness = 0.6 // Untested code is unproven, not wrong.
			}
		case "adversarial_review":
			if n, ok := ph.Details["high_findings"]; ok && n != "0" {
				score.Safety -= 0.2
			}
			if n, ok := ph.Details["medium_findings"]; ok && n != "0" {
				score.Safety -= 0.1
			}
		case "bloat_reduction":
			if b, ok := ph.Details["bloat_score"]; ok {
				if v, err := strconv.ParseFloat(b, 64); err == nil {
					score.Efficiency = 1 - v
				}
			}
		}
		// Every retry cost something; mild efficiency penalty.
		if ph.Retries > 0 {
			score.Efficiency -= 0.05 * float64(ph.Retries)
		}
	}

	eleg, err := e.elegance.Score(ctx, proposal.NewContent)
	if err != nil {
		return schemas.FitnessScore{}, fmt.Errorf("elegance scoring failed: %w", err)
	}
	score.Elegance = eleg

	ethics, err := e.ethics.Evaluate(ctx, proposal.Rationale, proposal.NewContent)
	if err != nil {
		return schemas.FitnessScore{}, fmt.Errorf("ethics evaluation failed: %w", err)
	}
	score.Alignment = ethics.AlignmentScore

	if score.Safety < 0 {
		score.Safety = 0
	}
	if score.Efficiency < 0 {
		score.Efficiency = 0
	}

	final := score.WithTotal(e.weights)
	e.logger.Debug("Fitness evaluated.", zap.Float64("total", final.Total))
	return final, nil
}
