// File: internal/gates/testrunner.go

// Package gates holds the local default implementations of the circuit's
// external collaborators: test runner, vulnerability scanner, slimming
// analyzer, ethics checker, elegance scorer and fitness evaluator. Each one
// is a narrow contract; the circuit never depends on their internals.
package gates

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

var (
	failedTestRegex = regexp.MustCompile(`(?m)^--- FAIL: (\S+)`)
	passedTestRegex = regexp.MustCompile(`(?m)^--- PASS: (\S+)`)
	coverageRegex   = regexp.MustCompile(`coverage: ([\d.]+)% of statements`)
)

// GoTestRunner shells out to `go test` for the affected scope.
type GoTestRunner struct {
	logger      *zap.Logger
	projectRoot string
}

var _ schemas.TestRunner = (*GoTestRunner)(nil)

// NewGoTestRunner builds a runner rooted at the project directory.
func NewGoTestRunner(logger *zap.Logger, projectRoot string) *GoTestRunner {
	return &GoTestRunner{logger: logger.Named("testrunner"), projectRoot: projectRoot}
}

// Run executes the tests for scope (a file or package path) and parses the
// pass/fail/coverage counts out of the raw output.
func (r *GoTestRunner) Run(ctx context.Context, scope string) (schemas.TestReport, error) {
	pkg := r.packageFor(scope)
	cmd := exec.CommandContext(ctx, "go", "test", "-count=1", "-v", "-cover", pkg)
	cmd.Dir = r.projectRoot
	cmd.Env = os.Environ()

	output, runErr := cmd.CombinedOutput()
	raw := string(output)

	report := schemas.TestReport{RawOutput: raw}
	report.FailedTests = failedTestRegex.FindAllString(raw, -1)
	for i, m := range failedTestRegex.FindAllStringSubmatch(raw, -1) {
		report.FailedTests[i] = m[1]
	}
	report.Failed = len(report.FailedTests)
	report.Passed = len(passedTestRegex.FindAllString(raw, -1))

	if m := coverageRegex.FindStringSubmatch(raw); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			report.CoveragePercent = pct
		}
	}

	switch {
	case strings.Contains(raw, "[no test files]"):
		// Zero tests is reported, not an error; the circuit decides policy.
	case strings.Contains(raw, "[build failed]") || strings.Contains(raw, "setup failed"):
		report.Errored++
	case runErr != nil && report.Failed == 0:
		// go test exited non-zero without a parseable failure; surface it.
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Errored++
	}

	r.logger.Debug("Test run completed.",
		zap.String("scope", pkg),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Float64("coverage", report.CoveragePercent),
	)
	return report, nil
}

// packageFor maps a file path to its package directory in go test syntax.
func (r *GoTestRunner) packageFor(scope string) string {
	if scope == "" {
		return "./..."
	}
	dir := scope
	if strings.HasSuffix(scope, ".go") {
		dir = filepath.Dir(scope)
	}
	dir = filepath.ToSlash(dir)
	if !strings.HasPrefix(dir, "./") && !filepath.IsAbs(dir) {
		dir = "./" + dir
	}
	return dir
}
