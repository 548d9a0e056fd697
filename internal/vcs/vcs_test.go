// internal/vcs/vcs_test.go
package vcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/xkilldash9x/helix-cli/internal/config"
)

func testVCSConfig(dryRun bool) cfgpkg.VCSConfig {
	return cfgpkg.VCSConfig{
		DryRun: dryRun,
		Branch: "helix/evolution",
		Remote: "origin",
		Git: cfgpkg.GitConfig{
			AuthorName:  "helix-evolution-bot",
			AuthorEmail: "evolution@helix.dev",
		},
	}
}

// initRepo creates a repository with one commit on master so HEAD resolves.
func initRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("seed\n"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@test", When: time.Now()},
	})
	require.NoError(t, err)
	return root
}

func TestCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject an empty file list", func(t *testing.T) {
		g := New(zap.NewNop(), testVCSConfig(true), t.TempDir())
		_, err := g.Commit(ctx, nil, "msg")
		assert.Error(t, err)
	})

	t.Run("should return a stable placeholder id under dry run", func(t *testing.T) {
		g := New(zap.NewNop(), testVCSConfig(true), t.TempDir())

		first, err := g.Commit(ctx, []string{"b.go", "a.go"}, "evolve(a.go): tidy")
		require.NoError(t, err)
		second, err := g.Commit(ctx, []string{"a.go", "b.go"}, "evolve(a.go): tidy")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(first, "dry-run-"))
		assert.Equal(t, first, second, "id must not depend on file order")

		other, err := g.Commit(ctx, []string{"a.go", "b.go"}, "different message")
		require.NoError(t, err)
		assert.NotEqual(t, first, other)
	})

	t.Run("should commit staged files on the evolution branch", func(t *testing.T) {
		root := initRepo(t)
		g := New(zap.NewNop(), testVCSConfig(false), root)

		require.NoError(t, os.WriteFile(filepath.Join(root, "evolved.go"), []byte("package main\n"), 0o644))
		id, err := g.Commit(ctx, []string{"evolved.go"}, "evolve(evolved.go): add entrypoint")
		require.NoError(t, err)
		assert.Len(t, id, 40, "expected a full git hash")

		repo, err := git.PlainOpen(root)
		require.NoError(t, err)
		head, err := repo.Head()
		require.NoError(t, err)
		assert.Equal(t, "refs/heads/helix/evolution", head.Name().String())
		assert.Equal(t, id, head.Hash().String())

		commit, err := repo.CommitObject(head.Hash())
		require.NoError(t, err)
		assert.Equal(t, "helix-evolution-bot", commit.Author.Name)
		assert.Equal(t, "evolve(evolved.go): add entrypoint", commit.Message)
	})

	t.Run("should reuse the branch on subsequent commits", func(t *testing.T) {
		root := initRepo(t)
		g := New(zap.NewNop(), testVCSConfig(false), root)

		require.NoError(t, os.WriteFile(filepath.Join(root, "one.go"), []byte("package main\n"), 0o644))
		first, err := g.Commit(ctx, []string{"one.go"}, "evolve(one.go): first")
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(root, "two.go"), []byte("package main\n"), 0o644))
		second, err := g.Commit(ctx, []string{"two.go"}, "evolve(two.go): second")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		repo, err := git.PlainOpen(root)
		require.NoError(t, err)
		commit, err := repo.CommitObject(plumbing.NewHash(second))
		require.NoError(t, err)
		parent, err := commit.Parent(0)
		require.NoError(t, err)
		assert.Equal(t, first, parent.Hash.String())
	})

	t.Run("should fail outside a repository", func(t *testing.T) {
		g := New(zap.NewNop(), testVCSConfig(false), t.TempDir())
		_, err := g.Commit(ctx, []string{"a.go"}, "msg")
		assert.Error(t, err)
	})
}

func TestPush(t *testing.T) {
	ctx := context.Background()

	t.Run("should be a no-op under dry run", func(t *testing.T) {
		g := New(zap.NewNop(), testVCSConfig(true), t.TempDir())
		assert.NoError(t, g.Push(ctx, ""))
	})

	t.Run("should fail without a configured remote", func(t *testing.T) {
		root := initRepo(t)
		g := New(zap.NewNop(), testVCSConfig(false), root)
		assert.Error(t, g.Push(ctx, "helix/evolution"))
	})
}

func TestOpenPullRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("should no-op under dry run", func(t *testing.T) {
		p := NewPullRequestPublisher(zap.NewNop(), testVCSConfig(true))
		url, err := p.OpenPullRequest(ctx, "evolve: tidy", "body")
		require.NoError(t, err)
		assert.Empty(t, url)
	})

	t.Run("should no-op without credentials", func(t *testing.T) {
		p := NewPullRequestPublisher(zap.NewNop(), testVCSConfig(false))
		url, err := p.OpenPullRequest(ctx, "evolve: tidy", "body")
		require.NoError(t, err)
		assert.Empty(t, url)
	})
}
