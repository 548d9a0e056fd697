// File: internal/vcs/github.go
package vcs

import (
	"context"
	"fmt"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"

	cfgpkg "github.com/xkilldash9x/helix-cli/internal/config"
)

// PullRequestPublisher opens a pull request for a pushed evolution branch.
type PullRequestPublisher struct {
	logger *zap.Logger
	cfg    cfgpkg.VCSConfig
	client *github.Client
}

// NewPullRequestPublisher builds a publisher. The client is nil when no token
// is configured; OpenPullRequest then degrades to a logged no-op, matching
// dry-run behavior.
func NewPullRequestPublisher(logger *zap.Logger, cfg cfgpkg.VCSConfig) *PullRequestPublisher {
	var client *github.Client
	if cfg.GitHub.Token != "" {
		client = github.NewClient(nil).WithAuthToken(cfg.GitHub.Token)
	}
	return &PullRequestPublisher{
		logger: logger.Named("vcs-github"),
		cfg:    cfg,
		client: client,
	}
}

// OpenPullRequest creates a PR from the evolution branch into the base branch
// and returns its URL. Under dry-run, or without credentials, it only logs.
func (p *PullRequestPublisher) OpenPullRequest(ctx context.Context, title, body string) (string, error) {
	if p.cfg.DryRun || p.client == nil {
		p.logger.Info("Dry run: skipping pull request.",
			zap.String("title", title),
			zap.String("branch", p.cfg.Branch),
		)
		return "", nil
	}
	gh := p.cfg.GitHub
	if gh.RepoOwner == "" || gh.RepoName == "" {
		return "", fmt.Errorf("github repo_owner and repo_name must be configured")
	}

	pr, _, err := p.client.PullRequests.Create(ctx, gh.RepoOwner, gh.RepoName, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(body),
		Head:  github.String(p.cfg.Branch),
		Base:  github.String(gh.BaseBranch),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create pull request: %w", err)
	}

	p.logger.Info("Pull request opened.", zap.String("url", pr.GetHTMLURL()))
	return pr.GetHTMLURL(), nil
}
