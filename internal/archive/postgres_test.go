// internal/archive/postgres_test.go
package archive

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// newPgArchive returns a PostgresArchive over a pgxmock pool with the
// constructor expectations (ping + schema) already satisfied.
func newPgArchive(t *testing.T) (*PostgresArchive, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	pool.ExpectPing()
	pool.ExpectExec("CREATE TABLE IF NOT EXISTS evolution_entries").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	arch, err := NewPostgresArchive(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)
	return arch, pool
}

func entryRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "parent_id", "component", "change_type", "description", "diff", "commit_id",
		"correctness", "alignment", "elegance", "efficiency", "safety", "total",
		"gates_passed", "gates_failed", "status", "reason", "created_at",
	})
}

func addEntryRow(rows *pgxmock.Rows, id string, parent *string, total float64, ts time.Time) *pgxmock.Rows {
	return rows.AddRow(
		id, parent, "x.go", "mutation", "desc", "", "",
		0.0, 0.0, 0.0, 0.0, 0.0, total,
		"build,test", "", "applied", "", ts,
	)
}

func TestPostgresAddEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("should insert a root entry", func(t *testing.T) {
		arch, pool := newPgArchive(t)
		insertArgs := make([]interface{}, 18)
		for i := range insertArgs {
			insertArgs[i] = pgxmock.AnyArg()
		}
		pool.ExpectExec("INSERT INTO evolution_entries").
			WithArgs(insertArgs...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		id, err := arch.AddEntry(ctx, &schemas.EvolutionEntry{
			Component: "x.go",
			Status:    schemas.StatusApplied,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("should reject an unresolvable parent", func(t *testing.T) {
		arch, pool := newPgArchive(t)
		pool.ExpectQuery("SELECT EXISTS").
			WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := arch.AddEntry(ctx, &schemas.EvolutionEntry{
			Component: "x.go",
			ParentID:  "ghost",
			Status:    schemas.StatusApplied,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownParent)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
}

func TestPostgresGetEntry(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("should map a row back to an entry", func(t *testing.T) {
		arch, pool := newPgArchive(t)
		pool.ExpectQuery("SELECT (.+) FROM evolution_entries WHERE id").
			WithArgs("e1").
			WillReturnRows(addEntryRow(entryRows(), "e1", nil, 0.8, ts))

		got, err := arch.GetEntry(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "e1", got.ID)
		assert.Empty(t, got.ParentID)
		assert.Equal(t, schemas.StatusApplied, got.Status)
		assert.Equal(t, []string{"build", "test"}, got.GatesPassed)
		assert.InDelta(t, 0.8, got.Fitness.Total, 1e-9)
	})

	t.Run("should return ErrNotFound for a missing id", func(t *testing.T) {
		arch, pool := newPgArchive(t)
		pool.ExpectQuery("SELECT (.+) FROM evolution_entries WHERE id").
			WithArgs("ghost").
			WillReturnRows(entryRows())

		_, err := arch.GetEntry(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresGetLineage(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	parent := "root"

	arch, pool := newPgArchive(t)
	pool.ExpectQuery("SELECT (.+) WHERE id").
		WithArgs("child").
		WillReturnRows(addEntryRow(entryRows(), "child", &parent, 0.9, ts))
	pool.ExpectQuery("SELECT (.+) WHERE id").
		WithArgs("root").
		WillReturnRows(addEntryRow(entryRows(), "root", nil, 0.5, ts))

	chain, err := arch.GetLineage(ctx, "child")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "child", chain[0].ID)
	assert.Equal(t, "root", chain[1].ID)
}

func TestPostgresRecent(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	arch, pool := newPgArchive(t)
	rows := entryRows()
	// The query orders newest first; Recent flips to newest last.
	addEntryRow(rows, "newest", nil, 0.9, ts.Add(2*time.Hour))
	addEntryRow(rows, "older", nil, 0.8, ts)
	pool.ExpectQuery("ORDER BY created_at DESC LIMIT").
		WithArgs(2).
		WillReturnRows(rows)

	recent, err := arch.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "older", recent[0].ID)
	assert.Equal(t, "newest", recent[1].ID)
}
