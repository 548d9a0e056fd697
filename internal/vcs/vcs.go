// File: internal/vcs/vcs.go
package vcs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	cfgpkg "github.com/xkilldash9x/helix-cli/internal/config"
)

// GitVersionControl commits and pushes accepted mutations through a local
// repository. Under dry-run no repository state changes; both operations
// return deterministic placeholder identifiers so runs stay reproducible.
type GitVersionControl struct {
	logger *zap.Logger
	cfg    cfgpkg.VCSConfig
	root   string
}

var _ schemas.VersionControl = (*GitVersionControl)(nil)

// New creates a version-control adapter rooted at the working tree.
func New(logger *zap.Logger, cfg cfgpkg.VCSConfig, root string) *GitVersionControl {
	return &GitVersionControl{
		logger: logger.Named("vcs"),
		cfg:    cfg,
		root:   root,
	}
}

// Commit stages the given files on the configured branch and commits them.
// It returns the commit hash, or a deterministic "dry-run-" identifier when
// dry-run is enabled.
func (g *GitVersionControl) Commit(ctx context.Context, files []string, message string) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("nothing to commit")
	}
	if g.cfg.DryRun {
		id := dryRunID(files, message)
		g.logger.Info("Dry run: skipping commit.",
			zap.Strings("files", files),
			zap.String("commit_id", id),
		)
		return id, nil
	}

	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return "", fmt.Errorf("failed to open repository at %s: %w", g.root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := g.ensureBranch(repo, wt); err != nil {
		return "", err
	}

	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", f, err)
		}
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.cfg.Git.AuthorName,
			Email: g.cfg.Git.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	g.logger.Info("Committed change.",
		zap.String("commit_id", hash.String()),
		zap.Int("files", len(files)),
	)
	return hash.String(), nil
}

// Push pushes the branch to the configured remote. A no-op under dry-run.
func (g *GitVersionControl) Push(ctx context.Context, branch string) error {
	if branch == "" {
		branch = g.cfg.Branch
	}
	if g.cfg.DryRun {
		g.logger.Info("Dry run: skipping push.", zap.String("branch", branch))
		return nil
	}

	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return fmt.Errorf("failed to open repository at %s: %w", g.root, err)
	}

	refSpec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: g.cfg.Remote,
		RefSpecs:   []config.RefSpec{refSpec},
	})
	if err == git.NoErrAlreadyUpToDate {
		g.logger.Info("Remote already up to date.", zap.String("branch", branch))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to push %s to %s: %w", branch, g.cfg.Remote, err)
	}

	g.logger.Info("Pushed branch.",
		zap.String("branch", branch),
		zap.String("remote", g.cfg.Remote),
	)
	return nil
}

// ensureBranch checks out the evolution branch, creating it from HEAD when it
// does not exist yet.
func (g *GitVersionControl) ensureBranch(repo *git.Repository, wt *git.Worktree) error {
	if g.cfg.Branch == "" {
		return nil
	}
	branchRef := plumbing.NewBranchReferenceName(g.cfg.Branch)

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if head.Name() == branchRef {
		return nil
	}

	err = wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Keep: true})
	if err == nil {
		return nil
	}
	err = wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true, Keep: true})
	if err != nil {
		return fmt.Errorf("failed to check out branch %s: %w", g.cfg.Branch, err)
	}
	return nil
}

// dryRunID derives a stable placeholder commit identifier from the change
// content so dry runs produce the same archive records every time.
func dryRunID(files []string, message string) string {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, "\n") + "\n" + message))
	return "dry-run-" + hex.EncodeToString(sum[:6])
}
