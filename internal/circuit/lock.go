// File: internal/circuit/lock.go
package circuit

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrLocked is returned when another live circuit holds the per-file lock.
var ErrLocked = errors.New("target is locked by another circuit")

type lockClaim struct {
	PID        int       `json:"pid"`
	Target     string    `json:"target"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockManager hands out TTL-bounded advisory file locks so two circuits never
// mutate the same target concurrently. A lock whose claim is older than the
// TTL is considered abandoned by a crashed holder and may be broken.
type LockManager struct {
	logger *zap.Logger
	dir    string
	ttl    time.Duration
}

// NewLockManager creates a manager keeping its lock files under dir.
func NewLockManager(logger *zap.Logger, dir string, ttl time.Duration) *LockManager {
	return &LockManager{
		logger: logger.Named("circuit-lock"),
		dir:    dir,
		ttl:    ttl,
	}
}

func (m *LockManager) lockPath(target string) string {
	sum := sha1.Sum([]byte(target))
	return filepath.Join(m.dir, hex.EncodeToString(sum[:8])+".lock")
}

// Acquire claims the advisory lock for target and returns a release function.
// It returns ErrLocked when a live claim already exists.
func (m *LockManager) Acquire(target string) (func(), error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}
	path := m.lockPath(target)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			claim := lockClaim{PID: os.Getpid(), Target: target, AcquiredAt: time.Now().UTC()}
			data, _ := json.Marshal(claim)
			if _, werr := f.Write(data); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lock claim: %w", werr)
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to close lock file: %w", cerr)
			}
			m.logger.Debug("Lock acquired.", zap.String("target", target))
			release := func() {
				if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
					m.logger.Warn("Failed to release lock.", zap.String("target", target), zap.Error(rerr))
				}
			}
			return release, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		if !m.breakIfStale(path, target) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, target)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, target)
}

// breakIfStale removes an expired claim and reports whether it did.
func (m *LockManager) breakIfStale(path, target string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		// The holder may have released between our open and read; retry.
		return os.IsNotExist(err)
	}
	var claim lockClaim
	if err := json.Unmarshal(data, &claim); err != nil {
		m.logger.Warn("Breaking unreadable lock file.", zap.String("path", path), zap.Error(err))
		return os.Remove(path) == nil
	}
	if time.Since(claim.AcquiredAt) <= m.ttl {
		return false
	}
	m.logger.Warn("Breaking stale lock.",
		zap.String("target", target),
		zap.Int("holder_pid", claim.PID),
		zap.Time("acquired_at", claim.AcquiredAt),
	)
	return os.Remove(path) == nil
}
