// File: internal/mocks/mocks.go

// Package mocks provides testify mocks for every collaborator interface the
// mutation circuit depends on.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	"github.com/xkilldash9x/helix-cli/internal/astcheck"
)

// -- Proposer Mock --

type MockProposer struct {
	mock.Mock
}

func (m *MockProposer) Propose(ctx context.Context, req schemas.ProposalRequest) (*schemas.MutationProposal, error) {
	args := m.Called(ctx, req)
	if p, ok := args.Get(0).(*schemas.MutationProposal); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// -- TestRunner Mock --

type MockTestRunner struct {
	mock.Mock
}

func (m *MockTestRunner) Run(ctx context.Context, scope string) (schemas.TestReport, error) {
	args := m.Called(ctx, scope)
	return args.Get(0).(schemas.TestReport), args.Error(1)
}

// -- VulnScanner Mock --

type MockVulnScanner struct {
	mock.Mock
}

func (m *MockVulnScanner) Scan(ctx context.Context, code string) (schemas.ScanReport, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(schemas.ScanReport), args.Error(1)
}

// -- SlimmingAnalyzer Mock --

type MockSlimmingAnalyzer struct {
	mock.Mock
}

func (m *MockSlimmingAnalyzer) Analyze(ctx context.Context, code string) (schemas.SlimReport, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(schemas.SlimReport), args.Error(1)
}

// -- EthicsChecker Mock --

type MockEthicsChecker struct {
	mock.Mock
}

func (m *MockEthicsChecker) Evaluate(ctx context.Context, action, actionContext string) (schemas.EthicsReport, error) {
	args := m.Called(ctx, action, actionContext)
	return args.Get(0).(schemas.EthicsReport), args.Error(1)
}

// -- EleganceScorer Mock --

type MockEleganceScorer struct {
	mock.Mock
}

func (m *MockEleganceScorer) Score(ctx context.Context, code string) (float64, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(float64), args.Error(1)
}

// -- FitnessEvaluator Mock --

type MockFitnessEvaluator struct {
	mock.Mock
}

func (m *MockFitnessEvaluator) Evaluate(ctx context.Context, proposal *schemas.MutationProposal, gates []schemas.PhaseResult) (schemas.FitnessScore, error) {
	args := m.Called(ctx, proposal, gates)
	return args.Get(0).(schemas.FitnessScore), args.Error(1)
}

// -- VersionControl Mock --

type MockVersionControl struct {
	mock.Mock
}

func (m *MockVersionControl) Commit(ctx context.Context, files []string, message string) (string, error) {
	args := m.Called(ctx, files, message)
	return args.String(0), args.Error(1)
}

func (m *MockVersionControl) Push(ctx context.Context, branch string) error {
	args := m.Called(ctx, branch)
	return args.Error(0)
}

// -- Reviewer Mock --

type MockReviewer struct {
	mock.Mock
}

func (m *MockReviewer) Review(ctx context.Context, proposal *schemas.MutationProposal) (schemas.VoteRecord, error) {
	args := m.Called(ctx, proposal)
	return args.Get(0).(schemas.VoteRecord), args.Error(1)
}

func (m *MockReviewer) Category() string {
	args := m.Called()
	return args.String(0)
}

// -- ConsensusPanel Mock --

type MockConsensusPanel struct {
	mock.Mock
}

func (m *MockConsensusPanel) Review(ctx context.Context, proposal *schemas.MutationProposal) (schemas.VotingResult, error) {
	args := m.Called(ctx, proposal)
	return args.Get(0).(schemas.VotingResult), args.Error(1)
}

// -- SyntaxChecker Mock --

type MockSyntaxChecker struct {
	mock.Mock
}

func (m *MockSyntaxChecker) Parse(ctx context.Context, source string) (astcheck.ParseReport, error) {
	args := m.Called(ctx, source)
	return args.Get(0).(astcheck.ParseReport), args.Error(1)
}

// -- LineageArchive Mock --

type MockLineageArchive struct {
	mock.Mock
}

func (m *MockLineageArchive) AddEntry(ctx context.Context, entry *schemas.EvolutionEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

func (m *MockLineageArchive) GetEntry(ctx context.Context, id string) (*schemas.EvolutionEntry, error) {
	args := m.Called(ctx, id)
	if e, ok := args.Get(0).(*schemas.EvolutionEntry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLineageArchive) GetLineage(ctx context.Context, id string) ([]*schemas.EvolutionEntry, error) {
	args := m.Called(ctx, id)
	if e, ok := args.Get(0).([]*schemas.EvolutionEntry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLineageArchive) GetChildren(ctx context.Context, id string) ([]*schemas.EvolutionEntry, error) {
	args := m.Called(ctx, id)
	if e, ok := args.Get(0).([]*schemas.EvolutionEntry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLineageArchive) GetBest(ctx context.Context, n int, component string) ([]*schemas.EvolutionEntry, error) {
	args := m.Called(ctx, n, component)
	if e, ok := args.Get(0).([]*schemas.EvolutionEntry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLineageArchive) FitnessOverTime(ctx context.Context, component string) ([]schemas.FitnessPoint, error) {
	args := m.Called(ctx, component)
	if p, ok := args.Get(0).([]schemas.FitnessPoint); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLineageArchive) Applied(ctx context.Context, component string) ([]*schemas.EvolutionEntry, error) {
	args := m.Called(ctx, component)
	if e, ok := args.Get(0).([]*schemas.EvolutionEntry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLineageArchive) Recent(ctx context.Context, n int) ([]*schemas.EvolutionEntry, error) {
	args := m.Called(ctx, n)
	if e, ok := args.Get(0).([]*schemas.EvolutionEntry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}
