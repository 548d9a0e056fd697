// internal/archive/archive_test.go
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestArchive returns a FileArchive backed by a temp file.
func newTestArchive(t *testing.T) *FileArchive {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.jsonl")
	a, err := NewFileArchive(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func testEntry(id, parent, component string, fitness float64) *schemas.EvolutionEntry {
	return &schemas.EvolutionEntry{
		ID:         id,
		ParentID:   parent,
		Component:  component,
		ChangeType: schemas.ChangeMutation,
		Status:     schemas.StatusApplied,
		Fitness:    schemas.FitnessScore{Total: fitness},
		Timestamp:  time.Now().UTC(),
	}
}

func TestAddEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("should assign id and timestamp when absent", func(t *testing.T) {
		a := newTestArchive(t)
		entry := &schemas.EvolutionEntry{Component: "internal/foo/foo.go", Status: schemas.StatusApplied}
		id, err := a.AddEntry(ctx, entry)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, err := a.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.Timestamp.IsZero())
	})

	t.Run("should reject an unresolvable parent id", func(t *testing.T) {
		a := newTestArchive(t)
		_, err := a.AddEntry(ctx, testEntry("child", "no-such-parent", "x.go", 0.5))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownParent)
		assert.Equal(t, 0, a.Len())
	})

	t.Run("should reject a duplicate id", func(t *testing.T) {
		a := newTestArchive(t)
		_, err := a.AddEntry(ctx, testEntry("e1", "", "x.go", 0.5))
		require.NoError(t, err)
		_, err = a.AddEntry(ctx, testEntry("e1", "", "x.go", 0.6))
		assert.Error(t, err)
	})

	t.Run("should decouple the stored record from caller mutation", func(t *testing.T) {
		a := newTestArchive(t)
		entry := testEntry("e1", "", "x.go", 0.5)
		_, err := a.AddEntry(ctx, entry)
		require.NoError(t, err)
		entry.Component = "mutated-after-store"

		got, err := a.GetEntry(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "x.go", got.Component)
	})
}

func TestDurability(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.jsonl")

	a, err := NewFileArchive(path, zap.NewNop())
	require.NoError(t, err)
	_, err = a.AddEntry(ctx, testEntry("root", "", "x.go", 0.7))
	require.NoError(t, err)
	_, err = a.AddEntry(ctx, testEntry("child", "root", "x.go", 0.8))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// A fresh process rebuilds the same state by full scan.
	b, err := NewFileArchive(path, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 2, b.Len())
	chain, err := b.GetLineage(ctx, "child")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "child", chain[0].ID)
	assert.Equal(t, "root", chain[1].ID)

	// Both retrieval paths must yield the same record, field for field.
	direct, err := b.GetEntry(ctx, "root")
	require.NoError(t, err)
	if diff := cmp.Diff(direct, chain[1]); diff != "" {
		t.Errorf("lineage and direct lookup disagree (-direct +lineage):\n%s", diff)
	}
}

func TestCorruptLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"ok","component":"x.go"}`+"\n"+`{not json`+"\n"), 0o644))

	_, err := NewFileArchive(path, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestGetLineage(t *testing.T) {
	ctx := context.Background()

	t.Run("should walk the chain root-ward", func(t *testing.T) {
		a := newTestArchive(t)
		_, err := a.AddEntry(ctx, testEntry("gen0", "", "x.go", 0.5))
		require.NoError(t, err)
		_, err = a.AddEntry(ctx, testEntry("gen1", "gen0", "x.go", 0.6))
		require.NoError(t, err)
		_, err = a.AddEntry(ctx, testEntry("gen2", "gen1", "x.go", 0.7))
		require.NoError(t, err)

		chain, err := a.GetLineage(ctx, "gen2")
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, []string{"gen2", "gen1", "gen0"}, []string{chain[0].ID, chain[1].ID, chain[2].ID})
	})

	t.Run("should return ErrNotFound for an unknown id", func(t *testing.T) {
		a := newTestArchive(t)
		_, err := a.GetLineage(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should detect a cycle in a hand-edited log", func(t *testing.T) {
		// AddEntry cannot create a cycle (parents must pre-exist), so build
		// one directly in the log file.
		path := filepath.Join(t.TempDir(), "archive.jsonl")
		lines := `{"id":"a","parent_id":"b","component":"x.go","status":"applied"}` + "\n" +
			`{"id":"b","parent_id":"a","component":"x.go","status":"applied"}` + "\n"
		require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

		a, err := NewFileArchive(path, zap.NewNop())
		require.NoError(t, err)
		defer a.Close()

		_, err = a.GetLineage(ctx, "a")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCycle)
	})

	t.Run("should terminate at a dangling parent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "archive.jsonl")
		lines := `{"id":"orphan","parent_id":"vanished","component":"x.go","status":"applied"}` + "\n"
		require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

		a, err := NewFileArchive(path, zap.NewNop())
		require.NoError(t, err)
		defer a.Close()

		chain, err := a.GetLineage(ctx, "orphan")
		require.NoError(t, err)
		require.Len(t, chain, 1)
	})
}

func TestGetChildren(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	_, err := a.AddEntry(ctx, testEntry("root", "", "x.go", 0.5))
	require.NoError(t, err)
	_, err = a.AddEntry(ctx, testEntry("c1", "root", "x.go", 0.6))
	require.NoError(t, err)
	_, err = a.AddEntry(ctx, testEntry("c2", "root", "x.go", 0.7))
	require.NoError(t, err)

	kids, err := a.GetChildren(ctx, "root")
	require.NoError(t, err)
	assert.Len(t, kids, 2)

	none, err := a.GetChildren(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetBest(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id string, fitness float64, offset time.Duration, status schemas.EntryStatus) *schemas.EvolutionEntry {
		e := testEntry(id, "", "x.go", fitness)
		e.Timestamp = base.Add(offset)
		e.Status = status
		return e
	}
	_, err := a.AddEntry(ctx, mk("older-tie", 0.9, 0, schemas.StatusApplied))
	require.NoError(t, err)
	_, err = a.AddEntry(ctx, mk("newer-tie", 0.9, time.Hour, schemas.StatusApplied))
	require.NoError(t, err)
	_, err = a.AddEntry(ctx, mk("mid", 0.8, 2*time.Hour, schemas.StatusApplied))
	require.NoError(t, err)
	_, err = a.AddEntry(ctx, mk("rejected-top", 1.0, 3*time.Hour, schemas.StatusRejected))
	require.NoError(t, err)

	t.Run("should rank by fitness and break ties by earliest timestamp", func(t *testing.T) {
		best, err := a.GetBest(ctx, 2, "")
		require.NoError(t, err)
		require.Len(t, best, 2)
		assert.Equal(t, "older-tie", best[0].ID)
		assert.Equal(t, "newer-tie", best[1].ID)
	})

	t.Run("should only consider applied entries", func(t *testing.T) {
		best, err := a.GetBest(ctx, 10, "")
		require.NoError(t, err)
		for _, e := range best {
			assert.Equal(t, schemas.StatusApplied, e.Status)
		}
	})

	t.Run("should treat a negative n as zero", func(t *testing.T) {
		best, err := a.GetBest(ctx, -1, "")
		require.NoError(t, err)
		assert.Empty(t, best)
	})
}

func TestFitnessOverTime(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	for i := 0; i < 3; i++ {
		e := testEntry(fmt.Sprintf("e%d", i), "", "x.go", float64(i)*0.1)
		_, err := a.AddEntry(ctx, e)
		require.NoError(t, err)
	}
	rej := testEntry("rej", "", "x.go", 0.99)
	rej.Status = schemas.StatusRejected
	_, err := a.AddEntry(ctx, rej)
	require.NoError(t, err)

	points, err := a.FitnessOverTime(ctx, "x.go")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 0.2, points[2].Fitness, 1e-9)
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	for i := 0; i < 5; i++ {
		_, err := a.AddEntry(ctx, testEntry(fmt.Sprintf("e%d", i), "", "x.go", 0.5))
		require.NoError(t, err)
	}

	recent, err := a.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "e2", recent[0].ID)
	assert.Equal(t, "e4", recent[2].ID)

	all, err := a.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	const writers = 8
	const perWriter = 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := a.AddEntry(ctx, testEntry(fmt.Sprintf("w%d-e%d", w, i), "", "x.go", 0.5))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, a.Len())
}
