// internal/gates/gates_test.go
package gates

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

func TestHeuristicScanner(t *testing.T) {
	ctx := context.Background()
	s := NewHeuristicScanner(zap.NewNop())

	t.Run("should flag command injection as critical", func(t *testing.T) {
		code := `cmd := exec.Command("sh", "-c", "echo "+userInput)`
		report, err := s.Scan(ctx, code)
		require.NoError(t, err)
		require.Len(t, report.Vulnerabilities, 1)
		assert.Equal(t, schemas.SeverityCritical, report.Vulnerabilities[0].Severity)
		assert.Equal(t, "command-injection", report.Vulnerabilities[0].Vector)
		assert.Contains(t, report.Recommendation, "block")
	})

	t.Run("should flag a hardcoded credential as high", func(t *testing.T) {
		code := "cfg := loadConfig()\n" + `cfg.password = "hunter2hunter2"`
		report, err := s.Scan(ctx, code)
		require.NoError(t, err)
		require.Equal(t, 1, report.Count(schemas.SeverityHigh))
		assert.Equal(t, "hardcoded-credential", report.Vulnerabilities[0].Vector)
	})

	t.Run("should flag disabled TLS verification", func(t *testing.T) {
		report, err := s.Scan(ctx, "cfg := &tls.Config{InsecureSkipVerify: true}")
		require.NoError(t, err)
		assert.Equal(t, 1, report.Count(schemas.SeverityHigh))
	})

	t.Run("should report the finding location by line", func(t *testing.T) {
		code := "package x\n\nInsecureSkipVerify: true\n"
		report, err := s.Scan(ctx, code)
		require.NoError(t, err)
		require.Len(t, report.Vulnerabilities, 1)
		assert.Equal(t, "line 3", report.Vulnerabilities[0].Location)
	})

	t.Run("should pass clean code", func(t *testing.T) {
		report, err := s.Scan(ctx, "package foo\n\nfunc Add(a, b int) int { return a + b }\n")
		require.NoError(t, err)
		assert.Empty(t, report.Vulnerabilities)
		assert.Equal(t, "no findings", report.Recommendation)
	})
}

func TestStructuralSlimmer(t *testing.T) {
	ctx := context.Background()
	s := NewStructuralSlimmer(zap.NewNop())

	t.Run("should collapse blank runs and report removed bytes", func(t *testing.T) {
		code := "package foo\n\n\n\n\nfunc A() {}\n"
		report, err := s.Analyze(ctx, code)
		require.NoError(t, err)
		assert.Greater(t, report.BytesRemoved, 0)
		assert.NotContains(t, report.SlimmedCode, "\n\n\n")
	})

	t.Run("should strip commented out code", func(t *testing.T) {
		code := "package foo\n// func Old() { return }\nfunc New() {}\n"
		report, err := s.Analyze(ctx, code)
		require.NoError(t, err)
		assert.NotContains(t, report.SlimmedCode, "func Old")
		require.NotEmpty(t, report.BloatItems)
		assert.Contains(t, report.BloatItems[0], "commented-out code")
	})

	t.Run("should score duplicated lines heavily", func(t *testing.T) {
		dup := `value := compute(alpha, beta, gamma, delta)`
		code := "package foo\n" + dup + "\n" + dup + "\n" + dup + "\n"
		report, err := s.Analyze(ctx, code)
		require.NoError(t, err)
		assert.Greater(t, report.BloatScore, 0.3)
	})

	t.Run("should score tight code near zero", func(t *testing.T) {
		code := "package foo\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n"
		report, err := s.Analyze(ctx, code)
		require.NoError(t, err)
		assert.Less(t, report.BloatScore, 0.1)
	})
}

func TestKeywordEthicsChecker(t *testing.T) {
	ctx := context.Background()
	c := NewKeywordEthicsChecker(zap.NewNop())

	t.Run("should pass a benign change with full alignment", func(t *testing.T) {
		report, err := c.Evaluate(ctx, "improve error wrapping", "return fmt.Errorf(\"x: %w\", err)")
		require.NoError(t, err)
		assert.True(t, report.Passed)
		assert.False(t, report.AbsoluteViolation())
		assert.InDelta(t, 1.0, report.AlignmentScore, 1e-9)
	})

	t.Run("should zero alignment on an absolute violation", func(t *testing.T) {
		report, err := c.Evaluate(ctx, "add keylogger support", "")
		require.NoError(t, err)
		assert.False(t, report.Passed)
		assert.True(t, report.AbsoluteViolation())
		assert.Zero(t, report.AlignmentScore)
	})

	t.Run("should degrade but not zero on a strong violation", func(t *testing.T) {
		report, err := c.Evaluate(ctx, "cleanup task", `exec.Command("rm -rf /")`)
		require.NoError(t, err)
		assert.False(t, report.Passed)
		assert.False(t, report.AbsoluteViolation())
		assert.InDelta(t, 0.6, report.AlignmentScore, 1e-9)
	})

	t.Run("should match case insensitively", func(t *testing.T) {
		report, err := c.Evaluate(ctx, "DISABLE SAFETY checks", "")
		require.NoError(t, err)
		assert.True(t, report.AbsoluteViolation())
	})
}

func TestStructuralEleganceScorer(t *testing.T) {
	ctx := context.Background()
	s := NewStructuralEleganceScorer(zap.NewNop())

	t.Run("should rate compact code highly", func(t *testing.T) {
		code := "package foo\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n"
		score, err := s.Score(ctx, code)
		require.NoError(t, err)
		assert.Greater(t, score, 0.8)
	})

	t.Run("should penalize deep nesting and long lines", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("package foo\n\nfunc Messy() {\n")
		for i := 0; i < 10; i++ {
			b.WriteString("\t\t\t\t\tif deeplyNested { " + strings.Repeat("x", 130) + " }\n")
		}
		b.WriteString("}\n")

		messy, err := s.Score(ctx, b.String())
		require.NoError(t, err)
		clean, err := s.Score(ctx, "package foo\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n")
		require.NoError(t, err)
		assert.Less(t, messy, clean)
	})
}

func TestCompositeEvaluator(t *testing.T) {
	ctx := context.Background()
	e := NewCompositeEvaluator(zap.NewNop(),
		NewStructuralEleganceScorer(zap.NewNop()),
		NewKeywordEthicsChecker(zap.NewNop()),
		schemas.DefaultFitnessWeights(),
	)

	cleanProposal := &schemas.MutationProposal{
		Component:  "internal/foo/foo.go",
		NewContent: "package foo\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n",
		Rationale:  "simplify addition",
	}

	t.Run("should reject a nil proposal", func(t *testing.T) {
		_, err := e.Evaluate(ctx, nil, nil)
		assert.Error(t, err)
	})

	t.Run("should fold coverage into correctness", func(t *testing.T) {
		phases := []schemas.PhaseResult{
			{Phase: "test", Details: map[string]string{"coverage": "80.0", "tests_found": "true"}},
		}
		score, err := e.Evaluate(ctx, cleanProposal, phases)
		require.NoError(t, err)
		assert.InDelta(t, 0.9, score.Correctness, 1e-9)
		assert.Greater(t, score.Total, 0.0)
	})

	t.Run("should mark untested code as unproven", func(t *testing.T) {
		phases := []schemas.PhaseResult{
			{Phase: "test", Details: map[string]string{"tests_found": "false"}},
		}
		score, err := e.Evaluate(ctx, cleanProposal, phases)
		require.NoError(t, err)
		assert.InDelta(t, 0.6, score.Correctness, 1e-9)
	})

	t.Run("should penalize findings and retries", func(t *testing.T) {
		phases := []schemas.PhaseResult{
			{Phase: "adversarial_review", Details: map[string]string{"high_findings": "2", "medium_findings": "0"}},
			{Phase: "bloat_reduction", Details: map[string]string{"bloat_score": "0.200"}, Retries: 2},
		}
		score, err := e.Evaluate(ctx, cleanProposal, phases)
		require.NoError(t, err)
		assert.InDelta(t, 0.8, score.Safety, 1e-9)
		assert.InDelta(t, 0.7, score.Efficiency, 1e-9)
	})

	t.Run("should carry the alignment score from ethics", func(t *testing.T) {
		hostile := &schemas.MutationProposal{
			NewContent: "package foo",
			Rationale:  "install keylogger",
		}
		score, err := e.Evaluate(ctx, hostile, nil)
		require.NoError(t, err)
		assert.Zero(t, score.Alignment)
	})
}

func TestGoTestRunnerPackageFor(t *testing.T) {
	r := NewGoTestRunner(zap.NewNop(), t.TempDir())

	assert.Equal(t, "./...", r.packageFor(""))
	assert.Equal(t, "./internal/foo", r.packageFor("internal/foo/foo.go"))
	assert.Equal(t, "./internal/foo", r.packageFor("internal/foo"))
	assert.Equal(t, "./pkg", r.packageFor("./pkg"))
}

func TestTestOutputParsing(t *testing.T) {
	t.Run("should extract failing test names", func(t *testing.T) {
		raw := "--- FAIL: TestAlpha (0.01s)\n--- PASS: TestBeta (0.00s)\n--- FAIL: TestGamma (0.02s)\nFAIL\n"
		matches := failedTestRegex.FindAllStringSubmatch(raw, -1)
		require.Len(t, matches, 2)
		assert.Equal(t, "TestAlpha", matches[0][1])
		assert.Equal(t, "TestGamma", matches[1][1])
	})

	t.Run("should extract the coverage percentage", func(t *testing.T) {
		m := coverageRegex.FindStringSubmatch("ok  \tpkg\t0.1s\tcoverage: 73.5% of statements\n")
		require.NotNil(t, m)
		assert.Equal(t, "73.5", m[1])
	})
}
