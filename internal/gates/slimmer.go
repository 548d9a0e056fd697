// File: internal/gates/slimmer.go
package gates

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

var (
	trailingSpaceRegex = regexp.MustCompile(`[ \t]+$`)
	commentedCodeRegex = regexp.MustCompile(`^\s*//\s*(func |if |for |return |var |:=|fmt\.)`)
)

// StructuralSlimmer is the default bloat analyzer. It measures structural
// growth signals (duplicate lines, commented-out code, run-on blank space)
// and produces a slimmed variant of the candidate.
type StructuralSlimmer struct {
	logger *zap.Logger
}

var _ schemas.SlimmingAnalyzer = (*StructuralSlimmer)(nil)

// NewStructuralSlimmer builds the analyzer.
func NewStructuralSlimmer(logger *zap.Logger) *StructuralSlimmer {
	return &StructuralSlimmer{logger: logger.Named("slimmer")}
}

// Analyze scores bloat in [0,1] and returns a slimmed variant when any bytes
// could be removed.
func (s *StructuralSlimmer) Analyze(ctx context.Context, code string) (schemas.SlimReport, error) {
	if err := ctx.Err(); err != nil {
		return schemas.SlimReport{}, err
	}

	lines := strings.Split(code, "\n")
	if len(lines) == 0 {
		return schemas.SlimReport{}, nil
	}

	var report schemas.SlimReport
	seen := make(map[string]int)
	duplicates := 0
	commentedCode := 0
	blankRun := 0

	slimmed := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Collapse runs of blank lines to a single one.
		if trimmed == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
			slimmed = append(slimmed, "")
			continue
		}
		blankRun = 0

		if commentedCodeRegex.MatchString(line) {
			commentedCode++
			report.BloatItems = appendCapped(report.BloatItems, fmt.Sprintf("commented-out code: %q", truncate(trimmed, 60)))
			continue
		}

		// Track duplicated substantive lines (not braces or imports).
		if len(trimmed) > 20 && !strings.HasPrefix(trimmed, "//") {
			seen[trimmed]++
			if seen[trimmed] == 2 {
				duplicates++
				report.BloatItems = appendCapped(report.BloatItems, fmt.Sprintf("duplicated line: %q", truncate(trimmed, 60)))
			}
		}

		slimmed = append(slimmed, trailingSpaceRegex.ReplaceAllString(line, ""))
	}

	slimmedCode := strings.Join(slimmed, "\n")
	report.BytesRemoved = len(code) - len(slimmedCode)
	if report.BytesRemoved > 0 {
		report.SlimmedCode = slimmedCode
	}

	// Weighted score: duplication dominates, dead comments and removable
	// whitespace contribute the rest.
	n := float64(len(lines))
	report.BloatScore = clamp(0.6*float64(duplicates)/n*10 +
		0.3*float64(commentedCode)/n*10 +
		0.1*float64(report.BytesRemoved)/float64(len(code)+1))

	s.logger.Debug("Bloat analysis completed.",
		zap.Float64("score", report.BloatScore),
		zap.Int("bytes_removed", report.BytesRemoved),
	)
	return report, nil
}

func appendCapped(items []string, item string) []string {
	const maxItems = 10
	if len(items) >= maxItems {
		return items
	}
	return append(items, item)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
