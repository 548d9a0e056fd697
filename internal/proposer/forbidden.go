// File: internal/proposer/forbidden.go

// Package proposer generates candidate changes for the mutation circuit. The
// production backend is LLM-driven; mock mode runs a deterministic stub so the
// circuit and its tests never need network access.
package proposer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// PathGuard refuses proposals that would touch secret-bearing paths. Every
// proposer implementation consults it before doing any work.
type PathGuard struct {
	patterns []string
}

// NewPathGuard compiles the forbidden glob patterns.
func NewPathGuard(patterns []string) *PathGuard {
	return &PathGuard{patterns: patterns}
}

// Check returns ErrForbiddenPath when the component matches any forbidden
// pattern, testing both the full path and the base name.
func (g *PathGuard) Check(component string) error {
	base := strings.ToLower(filepath.Base(component))
	full := strings.ToLower(filepath.ToSlash(component))
	for _, pat := range g.patterns {
		pat = strings.ToLower(pat)
		if ok, _ := filepath.Match(pat, base); ok {
			return fmt.Errorf("%w: %s matches %q", schemas.ErrForbiddenPath, component, pat)
		}
		// Substring form: "*secret*" should also hit directory segments.
		if trimmed := strings.Trim(pat, "*"); trimmed != "" && !strings.ContainsAny(trimmed, "*?") {
			if strings.Contains(full, trimmed) {
				return fmt.Errorf("%w: %s matches %q", schemas.ErrForbiddenPath, component, pat)
			}
		}
	}
	return nil
}
