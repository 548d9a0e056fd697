// File: internal/gates/ethics.go
package gates

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// ethicsRule is one keyword-heuristic check.
type ethicsRule struct {
	name     string
	tier     schemas.EthicsTier
	keywords []string
	detail   string
}

// The rule set is deliberately blunt: it is a tripwire, not a judge. Absolute
// rules are fatal and never retried; strong and basic rules accumulate as
// feedback.
var defaultEthicsRules = []ethicsRule{
	{
		name:     "no-credential-exfiltration",
		tier:     schemas.TierAbsolute,
		keywords: []string{"exfiltrate", "steal credential", "harvest password", "keylogger"},
		detail:   "change appears to move credentials off-host",
	},
	{
		name:     "no-self-safety-removal",
		tier:     schemas.TierAbsolute,
		keywords: []string{"disable safety", "bypass ethics", "remove guardrail", "skip consent"},
		detail:   "change appears to weaken the safety gates themselves",
	},
	{
		name:     "no-destructive-operations",
		tier:     schemas.TierStrong,
		keywords: []string{"rm -rf /", "os.RemoveAll(\"/\")", "dropdatabase", "drop table"},
		detail:   "change contains a broad destructive operation",
	},
	{
		name:     "no-obfuscated-payloads",
		tier:     schemas.TierStrong,
		keywords: []string{"base64.StdEncoding.DecodeString(\"", "eval("},
		detail:   "change embeds an opaque executable payload",
	},
	{
		name:     "transparent-intent",
		tier:     schemas.TierBasic,
		keywords: []string{"hidden", "undetectable", "silently ignore"},
		detail:   "change language suggests concealed behavior",
	},
}

// KeywordEthicsChecker is the default heuristic safety gate.
type KeywordEthicsChecker struct {
	logger *zap.Logger
	rules  []ethicsRule
}

var _ schemas.EthicsChecker = (*KeywordEthicsChecker)(nil)

// NewKeywordEthicsChecker builds the checker with the default rule set.
func NewKeywordEthicsChecker(logger *zap.Logger) *KeywordEthicsChecker {
	return &KeywordEthicsChecker{logger: logger.Named("ethics"), rules: defaultEthicsRules}
}

// Evaluate runs every rule over the action and its context. The alignment
// score degrades with each failed check, weighted by tier.
func (c *KeywordEthicsChecker) Evaluate(ctx context.Context, action, actionContext string) (schemas.EthicsReport, error) {
	if err := ctx.Err(); err != nil {
		return schemas.EthicsReport{}, err
	}

	haystack := strings.ToLower(action + "\n" + actionContext)
	report := schemas.EthicsReport{Passed: true, AlignmentScore: 1.0}

	for _, rule := range c.rules {
		check := schemas.EthicsCheck{Name: rule.name, Tier: rule.tier, Passed: true}
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				check.Passed = false
				check.Detail = rule.detail
				break
			}
		}
		if !check.Passed {
			report.Passed = false
			switch rule.tier {
			case schemas.TierAbsolute:
				report.AlignmentScore = 0
			case schemas.TierStrong:
				report.AlignmentScore -= 0.4
			case schemas.TierBasic:
				report.AlignmentScore -= 0.15
			}
		}
		report.Checks = append(report.Checks, check)
	}

	if report.AlignmentScore < 0 {
		report.AlignmentScore = 0
	}

	if !report.Passed {
		c.logger.Warn("Ethics check failed.",
			zap.Bool("absolute", report.AbsoluteViolation()),
			zap.Float64("alignment", report.AlignmentScore),
		)
	}
	return report, nil
}
