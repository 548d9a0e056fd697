// File: internal/archive/postgres.go
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the backend can be exercised with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresArchive is the shared-deployment archive backend. It implements the
// same contract as FileArchive on top of a single entries table.
type PostgresArchive struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.LineageArchive = (*PostgresArchive)(nil)

const entriesDDL = `
CREATE TABLE IF NOT EXISTS evolution_entries (
    id           TEXT PRIMARY KEY,
    parent_id    TEXT,
    component    TEXT NOT NULL,
    change_type  TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    diff         TEXT NOT NULL DEFAULT '',
    commit_id    TEXT NOT NULL DEFAULT '',
    correctness  DOUBLE PRECISION NOT NULL DEFAULT 0,
    alignment    DOUBLE PRECISION NOT NULL DEFAULT 0,
    elegance     DOUBLE PRECISION NOT NULL DEFAULT 0,
    efficiency   DOUBLE PRECISION NOT NULL DEFAULT 0,
    safety       DOUBLE PRECISION NOT NULL DEFAULT 0,
    total        DOUBLE PRECISION NOT NULL DEFAULT 0,
    gates_passed TEXT NOT NULL DEFAULT '',
    gates_failed TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    reason       TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_component ON evolution_entries (component);
CREATE INDEX IF NOT EXISTS idx_entries_parent ON evolution_entries (parent_id);
`

const entryColumns = `id, parent_id, component, change_type, description, diff, commit_id,
    correctness, alignment, elegance, efficiency, safety, total,
    gates_passed, gates_failed, status, reason, created_at`

// NewPostgresArchive verifies the connection and ensures the schema exists.
func NewPostgresArchive(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresArchive, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, entriesDDL); err != nil {
		return nil, fmt.Errorf("failed to ensure archive schema: %w", err)
	}
	return &PostgresArchive{pool: pool, log: logger.Named("archive-pg")}, nil
}

// AddEntry inserts one immutable record. The parent must already exist.
func (p *PostgresArchive) AddEntry(ctx context.Context, entry *schemas.EvolutionEntry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("archive: nil entry")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = schemas.NewEntryID(entry.Timestamp, entry.Component+entry.Diff+entry.Description)
	}
	if entry.ParentID != "" {
		var exists bool
		err := p.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM evolution_entries WHERE id = $1)`, entry.ParentID,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to resolve parent: %w", err)
		}
		if !exists {
			return "", fmt.Errorf("%w: %s", ErrUnknownParent, entry.ParentID)
		}
	}

	_, err := p.pool.Exec(ctx, `
        INSERT INTO evolution_entries (`+entryColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		entry.ID, nullable(entry.ParentID), entry.Component, string(entry.ChangeType),
		entry.Description, entry.Diff, entry.CommitID,
		entry.Fitness.Correctness, entry.Fitness.Alignment, entry.Fitness.Elegance,
		entry.Fitness.Efficiency, entry.Fitness.Safety, entry.Fitness.Total,
		strings.Join(entry.GatesPassed, ","), strings.Join(entry.GatesFailed, ","),
		string(entry.Status), entry.Reason, entry.Timestamp.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert entry: %w", err)
	}
	return entry.ID, nil
}

// GetEntry returns the entry with the given id.
func (p *PostgresArchive) GetEntry(ctx context.Context, id string) (*schemas.EvolutionEntry, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM evolution_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	return entry, nil
}

// GetLineage walks parent pointers root-ward with cycle detection.
func (p *PostgresArchive) GetLineage(ctx context.Context, id string) ([]*schemas.EvolutionEntry, error) {
	var chain []*schemas.EvolutionEntry
	visited := make(map[string]bool)
	cur := id
	for cur != "" {
		if visited[cur] {
			return nil, fmt.Errorf("%w: at %s", ErrCycle, cur)
		}
		visited[cur] = true

		entry, err := p.GetEntry(ctx, cur)
		if err != nil {
			if errors.Is(err, ErrNotFound) && len(chain) > 0 {
				// Dangling parent terminates the walk.
				p.log.Warn("Lineage walk hit unresolvable parent.", zap.String("parent", cur))
				return chain, nil
			}
			return nil, err
		}
		chain = append(chain, entry)
		cur = entry.ParentID
	}
	return chain, nil
}

// GetChildren returns the direct children of id.
func (p *PostgresArchive) GetChildren(ctx context.Context, id string) ([]*schemas.EvolutionEntry, error) {
	return p.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM evolution_entries WHERE parent_id = $1 ORDER BY created_at ASC`, id)
}

// Applied returns status=applied entries, optionally filtered by component.
func (p *PostgresArchive) Applied(ctx context.Context, component string) ([]*schemas.EvolutionEntry, error) {
	if component != "" {
		return p.queryEntries(ctx,
			`SELECT `+entryColumns+` FROM evolution_entries
             WHERE status = 'applied' AND component = $1 ORDER BY created_at ASC`, component)
	}
	return p.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM evolution_entries WHERE status = 'applied' ORDER BY created_at ASC`)
}

// GetBest returns the top-n applied entries by total fitness, earliest first on ties.
func (p *PostgresArchive) GetBest(ctx context.Context, n int, component string) ([]*schemas.EvolutionEntry, error) {
	if n < 0 {
		n = 0
	}
	if component != "" {
		return p.queryEntries(ctx,
			`SELECT `+entryColumns+` FROM evolution_entries
             WHERE status = 'applied' AND component = $1
             ORDER BY total DESC, created_at ASC LIMIT $2`, component, n)
	}
	return p.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM evolution_entries
         WHERE status = 'applied' ORDER BY total DESC, created_at ASC LIMIT $1`, n)
}

// FitnessOverTime returns the applied fitness series in insertion order.
func (p *PostgresArchive) FitnessOverTime(ctx context.Context, component string) ([]schemas.FitnessPoint, error) {
	query := `SELECT created_at, total FROM evolution_entries WHERE status = 'applied'`
	args := []interface{}{}
	if component != "" {
		query += ` AND component = $1`
		args = append(args, component)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fitness series: %w", err)
	}
	defer rows.Close()

	var points []schemas.FitnessPoint
	for rows.Next() {
		var pt schemas.FitnessPoint
		if err := rows.Scan(&pt.Timestamp, &pt.Fitness); err != nil {
			return nil, fmt.Errorf("failed to scan fitness row: %w", err)
		}
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return points, nil
}

// Recent returns the most recent n entries, newest last.
func (p *PostgresArchive) Recent(ctx context.Context, n int) ([]*schemas.EvolutionEntry, error) {
	entries, err := p.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM evolution_entries ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	// Flip to newest-last to match the file backend.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (p *PostgresArchive) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*schemas.EvolutionEntry, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []*schemas.EvolutionEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func scanEntry(row pgx.Row) (*schemas.EvolutionEntry, error) {
	var (
		e          schemas.EvolutionEntry
		parentID   *string
		changeType string
		status     string
		passed     string
		failed     string
	)
	err := row.Scan(
		&e.ID, &parentID, &e.Component, &changeType, &e.Description, &e.Diff, &e.CommitID,
		&e.Fitness.Correctness, &e.Fitness.Alignment, &e.Fitness.Elegance,
		&e.Fitness.Efficiency, &e.Fitness.Safety, &e.Fitness.Total,
		&passed, &failed, &status, &e.Reason, &e.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		e.ParentID = *parentID
	}
	e.ChangeType = schemas.ChangeType(changeType)
	e.Status = schemas.EntryStatus(status)
	e.GatesPassed = splitList(passed)
	e.GatesFailed = splitList(failed)
	return &e, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
