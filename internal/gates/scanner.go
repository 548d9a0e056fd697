// File: internal/gates/scanner.go
package gates

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// vulnPattern pairs a detection regex with the finding it produces.
type vulnPattern struct {
	re          *regexp.Regexp
	severity    schemas.Severity
	vector      string
	description string
}

var defaultVulnPatterns = []vulnPattern{
	{
		re:          regexp.MustCompile(`(?i)exec\.Command\([^)]*\+`),
		severity:    schemas.SeverityCritical,
		vector:      "command-injection",
		description: "shell command assembled from concatenated input",
	},
	{
		re:          regexp.MustCompile(`(?i)(query|exec)\([^)]*fmt\.Sprintf`),
		severity:    schemas.SeverityCritical,
		vector:      "sql-injection",
		description: "SQL statement built with Sprintf instead of placeholders",
	},
	{
		re:          regexp.MustCompile(`(?i)(api[_-]?key|password|secret)\s*[:=]\s*"[^"]{8,}"`),
		severity:    schemas.SeverityHigh,
		vector:      "hardcoded-credential",
		description: "credential literal embedded in source",
	},
	{
		re:          regexp.MustCompile(`InsecureSkipVerify:\s*true`),
		severity:    schemas.SeverityHigh,
		vector:      "tls-verification-disabled",
		description: "TLS certificate verification disabled",
	},
	{
		re:          regexp.MustCompile(`(?i)math/rand.*(token|key|secret|nonce)`),
		severity:    schemas.SeverityMedium,
		vector:      "weak-randomness",
		description: "non-cryptographic randomness used for a secret value",
	},
	{
		re:          regexp.MustCompile(`http\.ListenAndServe\("[^"]*0\.0\.0\.0`),
		severity:    schemas.SeverityLow,
		vector:      "broad-bind",
		description: "service bound to all interfaces",
	},
}

// HeuristicScanner is the default adversarial-review collaborator: a
// pattern-based vulnerability scan over the candidate source.
type HeuristicScanner struct {
	logger   *zap.Logger
	patterns []vulnPattern
}

var _ schemas.VulnScanner = (*HeuristicScanner)(nil)

// NewHeuristicScanner builds the scanner with the default pattern set.
func NewHeuristicScanner(logger *zap.Logger) *HeuristicScanner {
	return &HeuristicScanner{logger: logger.Named("scanner"), patterns: defaultVulnPatterns}
}

// Scan inspects code line by line and reports findings by severity.
func (s *HeuristicScanner) Scan(ctx context.Context, code string) (schemas.ScanReport, error) {
	if err := ctx.Err(); err != nil {
		return schemas.ScanReport{}, err
	}

	var report schemas.ScanReport
	for lineNo, line := range strings.Split(code, "\n") {
		for _, p := range s.patterns {
			if p.re.MatchString(line) {
				report.Vulnerabilities = append(report.Vulnerabilities, schemas.Vulnerability{
					Severity:    p.severity,
					Vector:      p.vector,
					Location:    fmt.Sprintf("line %d", lineNo+1),
					Description: p.description,
				})
			}
		}
	}

	switch {
	case report.Count(schemas.SeverityCritical) > 0:
		report.Recommendation = "block: critical findings must be fixed before merge"
	case report.Count(schemas.SeverityHigh) > 0:
		report.Recommendation = "revise: high findings should be addressed"
	case len(report.Vulnerabilities) > 0:
		report.Recommendation = "review remaining low-severity findings"
	default:
		report.Recommendation = "no findings"
	}

	s.logger.Debug("Scan completed.", zap.Int("findings", len(report.Vulnerabilities)))
	return report, nil
}
