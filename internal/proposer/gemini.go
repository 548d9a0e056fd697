// File: internal/proposer/gemini.go
package proposer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	"github.com/xkilldash9x/helix-cli/internal/config"
)

// We use regular (double-quoted) strings with \x60 for backticks because Go's
// raw strings cannot contain backticks.
var jsonBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// geminiProposalResponse is the JSON contract the model is instructed to follow.
type geminiProposalResponse struct {
	NewContent       string   `json:"new_content"`
	Rationale        string   `json:"rationale"`
	RiskLevel        string   `json:"risk_level"`
	AffectedFiles    []string `json:"affected_files"`
	EstimatedFitness float64  `json:"estimated_fitness"`
}

// GeminiProposer is the production proposal backend.
type GeminiProposer struct {
	logger *zap.Logger
	guard  *PathGuard
	client *genai.Client
	cfg    config.ProposerConfig
	root   string
}

var _ schemas.Proposer = (*GeminiProposer)(nil)

// NewGeminiProposer initializes the genai client.
func NewGeminiProposer(ctx context.Context, logger *zap.Logger, guard *PathGuard, cfg config.ProposerConfig, root string) (*GeminiProposer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set HELIX_GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProposer{
		logger: logger.Named("proposer-gemini"),
		guard:  guard,
		client: client,
		cfg:    cfg,
		root:   root,
	}, nil
}

// Propose asks the model for a full replacement of the component and parses
// the strict-JSON answer.
func (p *GeminiProposer) Propose(ctx context.Context, req schemas.ProposalRequest) (*schemas.MutationProposal, error) {
	if err := p.guard.Check(req.Component); err != nil {
		return nil, err
	}

	original := ""
	if data, err := os.ReadFile(filepath.Join(p.root, req.Component)); err == nil {
		original = string(data)
	}

	genCtx := ctx
	if p.cfg.APITimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, p.cfg.APITimeout)
		defer cancel()
	}

	resp, err := p.client.Models.GenerateContent(genCtx, p.cfg.Model,
		genai.Text(p.buildPrompt(req, original)),
		&genai.GenerateContentConfig{
			Temperature:       genai.Ptr(p.cfg.Temperature),
			ResponseMIMEType:  "application/json",
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}

	parsed, err := parseProposalJSON(resp.Text())
	if err != nil {
		p.logger.Error("Failed to parse proposal response.", zap.Error(err))
		return nil, err
	}

	proposal := &schemas.MutationProposal{
		Component:        req.Component,
		NewContent:       parsed.NewContent,
		Rationale:        parsed.Rationale,
		Risk:             parseRisk(parsed.RiskLevel),
		ChangeType:       schemas.ChangeMutation,
		AffectedFiles:    parsed.AffectedFiles,
		EstimatedFitness: parsed.EstimatedFitness,
	}
	if len(proposal.AffectedFiles) == 0 {
		proposal.AffectedFiles = []string{req.Component}
	}
	if req.ParentContext != nil {
		proposal.ParentID = req.ParentContext.ID
	}

	// An affected file outside the guard is just as forbidden as the target.
	for _, f := range proposal.AffectedFiles {
		if err := p.guard.Check(f); err != nil {
			return nil, err
		}
	}

	p.logger.Info("Proposal generated.",
		zap.String("component", req.Component),
		zap.String("risk", string(proposal.Risk)),
	)
	return proposal, nil
}

const systemPrompt = `You are the proposal generator of an autonomous code evolution pipeline.
You receive one Go source file and an improvement focus, and must return a complete improved
version of that file.

Respond ONLY with a single JSON object:
{
  "new_content": "the full improved file content",
  "rationale": "why this change improves the component",
  "risk_level": "low | medium | high",
  "affected_files": ["relative paths touched"],
  "estimated_fitness": 0.0
}

Guidelines:
- The change must be minimal and verifiable; do not rewrite unrelated code.
- Never touch files holding secrets, credentials or keys.
- Output must be valid, idiomatic Go.`

func (p *GeminiProposer) buildPrompt(req schemas.ProposalRequest, original string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Component: %s\nFocus: %s\n", req.Component, orDefault(req.Focus, "general improvement"))
	if req.ParentContext != nil {
		fmt.Fprintf(&b, "Lineage parent: %s (fitness %.3f): %s\n",
			req.ParentContext.ID, req.ParentContext.Fitness.Total, req.ParentContext.Description)
	}
	fmt.Fprintf(&b, "\nCurrent content:\n%s\n", original)
	return b.String()
}

func parseProposalJSON(response string) (*geminiProposalResponse, error) {
	response = strings.TrimSpace(response)
	jsonStr := response
	if strings.HasPrefix(response, "```") {
		if m := jsonBlockRegex.FindStringSubmatch(response); len(m) > 1 {
			jsonStr = m[1]
		}
	} else if !strings.HasPrefix(response, "{") {
		first, last := strings.Index(response, "{"), strings.LastIndex(response, "}")
		if first != -1 && last > first {
			jsonStr = response[first : last+1]
		}
	}

	var parsed geminiProposalResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal JSON: %w. Extracted: %.300s", err, jsonStr)
	}
	if parsed.NewContent == "" {
		return nil, fmt.Errorf("proposal response is missing new_content")
	}
	return &parsed, nil
}

func parseRisk(s string) schemas.RiskLevel {
	switch strings.ToLower(s) {
	case "high":
		return schemas.RiskHigh
	case "medium":
		return schemas.RiskMedium
	default:
		return schemas.RiskLow
	}
}
