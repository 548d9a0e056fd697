// File: internal/circuit/metrics.go
package circuit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metrics is the durable run summary the circuit accumulates across processes.
// It answers the operational question "which phase kills the most proposals".
type Metrics struct {
	Attempts      int            `json:"attempts"`
	Passes        int            `json:"passes"`
	PhaseFailures map[string]int `json:"phase_failures"`
}

// KillerPhase returns the phase with the most recorded failures and its count.
// Ties resolve to the earliest phase in circuit order.
func (m Metrics) KillerPhase() (string, int) {
	best, bestCount := "", 0
	for _, name := range phaseNames {
		if n := m.PhaseFailures[name]; n > bestCount {
			best, bestCount = name, n
		}
	}
	return best, bestCount
}

// PassRate returns passes/attempts, or zero before any attempt.
func (m Metrics) PassRate() float64 {
	if m.Attempts == 0 {
		return 0
	}
	return float64(m.Passes) / float64(m.Attempts)
}

// MetricsStore persists Metrics as a single summary file. Every Record call
// reloads the file, merges one result, and rewrites it through a temp file and
// rename so concurrent circuits never lose updates to a torn write.
type MetricsStore struct {
	logger *zap.Logger
	path   string
	mu     sync.Mutex
}

// NewMetricsStore creates a store backed by the given file path.
func NewMetricsStore(logger *zap.Logger, path string) *MetricsStore {
	return &MetricsStore{
		logger: logger.Named("circuit-metrics"),
		path:   path,
	}
}

// Load reads the current metrics. A missing file yields zero metrics.
func (s *MetricsStore) Load() (Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Record merges one circuit outcome into the durable counters. failedPhase is
// empty for a passing run.
func (s *MetricsStore) Record(passed bool, failedPhase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadLocked()
	if err != nil {
		return err
	}
	m.Attempts++
	if passed {
		m.Passes++
	} else if failedPhase != "" {
		if m.PhaseFailures == nil {
			m.PhaseFailures = make(map[string]int)
		}
		m.PhaseFailures[failedPhase]++
	}
	return s.saveLocked(m)
}

func (s *MetricsStore) loadLocked() (Metrics, error) {
	m := Metrics{PhaseFailures: make(map[string]int)}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("failed to read metrics file: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse metrics file %s: %w", s.path, err)
	}
	if m.PhaseFailures == nil {
		m.PhaseFailures = make(map[string]int)
	}
	return m, nil
}

func (s *MetricsStore) saveLocked(m Metrics) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".metrics-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp metrics file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp metrics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp metrics file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace metrics file: %w", err)
	}
	return nil
}
