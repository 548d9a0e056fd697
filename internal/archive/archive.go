// File: internal/archive/archive.go

// Package archive is the durable, append-only store of evolution attempts.
// Every circuit run terminates in exactly one archived entry; entries are
// never updated or deleted, so the log is a complete audit trail.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

var (
	// ErrNotFound indicates the requested entry id is not in the archive.
	ErrNotFound = errors.New("archive: entry not found")
	// ErrCycle indicates a lineage walk revisited an entry. The parent
	// pointers must form a forest; a cycle is a corruption, not a loop to follow.
	ErrCycle = errors.New("archive: lineage cycle detected")
	// ErrUnknownParent indicates an entry referenced a parent id that does
	// not resolve to an archived entry.
	ErrUnknownParent = errors.New("archive: parent id does not resolve")
	// ErrCorrupt indicates the on-disk log could not be parsed. Startup must
	// fail loudly rather than silently drop records.
	ErrCorrupt = errors.New("archive: corrupt record in log")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileArchive is the single-node archive backend: one JSON record per line in
// an append-only log, reloaded by full scan at startup. Appends are fsynced
// before AddEntry returns so a concurrent reader never observes a partial record.
type FileArchive struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	file    *os.File
	byID    map[string]*schemas.EvolutionEntry
	byComp  map[string][]*schemas.EvolutionEntry
	ordered []*schemas.EvolutionEntry
}

// statically assert the contract.
var _ schemas.LineageArchive = (*FileArchive)(nil)

// NewFileArchive opens (or creates) the log at path and rebuilds the in-memory
// indexes by scanning it. An unparseable line aborts the load.
func NewFileArchive(path string, logger *zap.Logger) (*FileArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	a := &FileArchive{
		path:   path,
		log:    logger.Named("archive"),
		byID:   make(map[string]*schemas.EvolutionEntry),
		byComp: make(map[string][]*schemas.EvolutionEntry),
	}

	if err := a.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive log for append: %w", err)
	}
	a.file = f

	a.log.Info("Archive loaded.", zap.String("path", path), zap.Int("entries", len(a.ordered)))
	return a, nil
}

// load replays the on-disk log into the indexes.
func (a *FileArchive) load() error {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Fresh archive.
		}
		return fmt.Errorf("failed to open archive log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry schemas.EvolutionEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrCorrupt, lineNo, err)
		}
		if entry.ID == "" {
			return fmt.Errorf("%w: line %d: missing id", ErrCorrupt, lineNo)
		}
		a.index(&entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan archive log: %w", err)
	}
	return nil
}

// index adds an entry to the in-memory maps. Caller holds the write lock or
// is in single-threaded construction.
func (a *FileArchive) index(e *schemas.EvolutionEntry) {
	a.byID[e.ID] = e
	a.byComp[e.Component] = append(a.byComp[e.Component], e)
	a.ordered = append(a.ordered, e)
}

// Close releases the append handle.
func (a *FileArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// AddEntry assigns an id and timestamp if absent, validates the lineage
// invariant, appends the record durably and returns the id.
func (a *FileArchive) AddEntry(ctx context.Context, entry *schemas.EvolutionEntry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("archive: nil entry")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = schemas.NewEntryID(entry.Timestamp, entry.Component+entry.Diff+entry.Description)
	}
	if _, dup := a.byID[entry.ID]; dup {
		return "", fmt.Errorf("archive: duplicate entry id %s", entry.ID)
	}
	// A parent id, if present, must resolve. Root entries carry none.
	if entry.ParentID != "" {
		if _, ok := a.byID[entry.ParentID]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownParent, entry.ParentID)
		}
	}

	stored := *entry // Decouple the archived record from caller mutation.
	line, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("failed to append entry: %w", err)
	}
	// Durable before visible: fsync, then index.
	if err := a.file.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync archive log: %w", err)
	}
	a.index(&stored)

	a.log.Debug("Entry archived.",
		zap.String("id", stored.ID),
		zap.String("component", stored.Component),
		zap.String("status", string(stored.Status)),
	)
	return stored.ID, nil
}

// GetEntry returns the entry with the given id.
func (a *FileArchive) GetEntry(_ context.Context, id string) (*schemas.EvolutionEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *e
	return &cp, nil
}

// GetLineage walks parent pointers root-ward, returning the chain starting at
// id. The walk is bounded by a visited set; revisiting an id fails fast with
// ErrCycle instead of looping.
func (a *FileArchive) GetLineage(_ context.Context, id string) ([]*schemas.EvolutionEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	start, ok := a.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var chain []*schemas.EvolutionEntry
	visited := make(map[string]bool, len(a.byID))
	for cur := start; cur != nil; {
		if visited[cur.ID] {
			return nil, fmt.Errorf("%w: at %s", ErrCycle, cur.ID)
		}
		visited[cur.ID] = true
		cp := *cur
		chain = append(chain, &cp)

		if cur.ParentID == "" {
			break
		}
		parent, ok := a.byID[cur.ParentID]
		if !ok {
			// Dangling parent terminates the walk; the chain up to here is
			// still valid history.
			a.log.Warn("Lineage walk hit unresolvable parent.",
				zap.String("entry", cur.ID), zap.String("parent", cur.ParentID))
			break
		}
		cur = parent
	}
	return chain, nil
}

// GetChildren returns the direct children of id (linear scan on parent_id).
func (a *FileArchive) GetChildren(_ context.Context, id string) ([]*schemas.EvolutionEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var children []*schemas.EvolutionEntry
	for _, e := range a.ordered {
		if e.ParentID == id {
			cp := *e
			children = append(children, &cp)
		}
	}
	return children, nil
}

// Applied returns all status=applied entries, optionally filtered by component.
func (a *FileArchive) Applied(_ context.Context, component string) ([]*schemas.EvolutionEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.appliedLocked(component), nil
}

func (a *FileArchive) appliedLocked(component string) []*schemas.EvolutionEntry {
	source := a.ordered
	if component != "" {
		source = a.byComp[component]
	}
	var out []*schemas.EvolutionEntry
	for _, e := range source {
		if e.Status == schemas.StatusApplied {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// GetBest returns the top-n applied entries by total fitness, ties broken by
// earliest timestamp so the ordering is stable.
func (a *FileArchive) GetBest(_ context.Context, n int, component string) ([]*schemas.EvolutionEntry, error) {
	if n < 0 {
		n = 0
	}
	a.mu.RLock()
	applied := a.appliedLocked(component)
	a.mu.RUnlock()

	sort.SliceStable(applied, func(i, j int) bool {
		if applied[i].Fitness.Total != applied[j].Fitness.Total {
			return applied[i].Fitness.Total > applied[j].Fitness.Total
		}
		return applied[i].Timestamp.Before(applied[j].Timestamp)
	})
	if n < len(applied) {
		applied = applied[:n]
	}
	return applied, nil
}

// FitnessOverTime returns (timestamp, total fitness) pairs in archive order
// for trend analysis, optionally filtered by component.
func (a *FileArchive) FitnessOverTime(_ context.Context, component string) ([]schemas.FitnessPoint, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	source := a.ordered
	if component != "" {
		source = a.byComp[component]
	}
	points := make([]schemas.FitnessPoint, 0, len(source))
	for _, e := range source {
		if e.Status != schemas.StatusApplied {
			continue
		}
		points = append(points, schemas.FitnessPoint{Timestamp: e.Timestamp, Fitness: e.Fitness.Total})
	}
	return points, nil
}

// Recent returns the most recent n entries regardless of status, newest last.
func (a *FileArchive) Recent(_ context.Context, n int) ([]*schemas.EvolutionEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	start := len(a.ordered) - n
	if start < 0 {
		start = 0
	}
	out := make([]*schemas.EvolutionEntry, 0, len(a.ordered)-start)
	for _, e := range a.ordered[start:] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// Len reports the number of archived entries.
func (a *FileArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ordered)
}
