// File: internal/proposer/mock.go
package proposer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// MockProposer is the deterministic stub backend. It reads the target file
// and produces a trivial, syntactically safe mutation (a doc-comment header
// noting the attempt), so the whole circuit can run end-to-end offline.
type MockProposer struct {
	logger *zap.Logger
	guard  *PathGuard
	root   string
}

var _ schemas.Proposer = (*MockProposer)(nil)

// NewMockProposer builds the stub rooted at the project directory.
func NewMockProposer(logger *zap.Logger, guard *PathGuard, root string) *MockProposer {
	return &MockProposer{logger: logger.Named("proposer-mock"), guard: guard, root: root}
}

// Propose returns a deterministic candidate for the component.
func (m *MockProposer) Propose(ctx context.Context, req schemas.ProposalRequest) (*schemas.MutationProposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.guard.Check(req.Component); err != nil {
		return nil, err
	}

	original := ""
	if data, err := os.ReadFile(m.resolve(req.Component)); err == nil {
		original = string(data)
	}

	header := fmt.Sprintf("// Reviewed automatically; focus: %s\n", orDefault(req.Focus, "general improvement"))
	content := original
	if !strings.HasPrefix(original, header) {
		content = header + original
	}

	proposal := &schemas.MutationProposal{
		Component:        req.Component,
		NewContent:       content,
		Rationale:        fmt.Sprintf("mock mutation of %s (focus: %s)", req.Component, orDefault(req.Focus, "general")),
		Risk:             schemas.RiskLow,
		ChangeType:       schemas.ChangeMutation,
		AffectedFiles:    []string{req.Component},
		EstimatedFitness: 0.7,
	}
	if req.ParentContext != nil {
		proposal.ParentID = req.ParentContext.ID
	}

	m.logger.Info("Mock proposal generated.", zap.String("component", req.Component))
	return proposal, nil
}

func (m *MockProposer) resolve(component string) string {
	if strings.HasPrefix(component, "/") {
		return component
	}
	return m.root + "/" + component
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
