// File: internal/gates/elegance.go
package gates

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// StructuralEleganceScorer rates code structure in [0,1]: shorter functions,
// limited nesting and the presence of error handling score well. It is a
// heuristic, not a style judge.
type StructuralEleganceScorer struct {
	logger *zap.Logger
}

var _ schemas.EleganceScorer = (*StructuralEleganceScorer)(nil)

// NewStructuralEleganceScorer builds the scorer.
func NewStructuralEleganceScorer(logger *zap.Logger) *StructuralEleganceScorer {
	return &StructuralEleganceScorer{logger: logger.Named("elegance")}
}

// Score inspects the candidate line by line.
func (s *StructuralEleganceScorer) Score(ctx context.Context, code string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	lines := strings.Split(code, "\n")
	if len(lines) == 0 {
		return 0.5, nil
	}

	score := 1.0
	longLines := 0
	deepNesting := 0
	errChecks := 0
	funcs := 0
	maxFuncLen := 0
	curFuncLen := 0

	for _, line := range lines {
		if len(line) > 120 {
			longLines++
		}
		indent := len(line) - len(strings.TrimLeft(line, "\t"))
		if indent >= 4 {
			deepNesting++
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "func ") {
			funcs++
			curFuncLen = 0
		}
		curFuncLen++
		if curFuncLen > maxFuncLen {
			maxFuncLen = curFuncLen
		}
		if strings.Contains(trimmed, "if err != nil") {
			errChecks++
		}
	}

	n := float64(len(lines))
	score -= 0.3 * float64(longLines) / n * 5
	score -= 0.3 * float64(deepNesting) / n * 3
	if maxFuncLen > 80 {
		score -= 0.2
	}
	// Reward visible error handling in non-trivial code.
	if funcs > 0 && errChecks == 0 && len(lines) > 30 {
		score -= 0.15
	}

	score = clamp(score)
	s.logger.Debug("Elegance scored.", zap.Float64("score", score))
	return score, nil
}
