// File: internal/selector/selector.go

// Package selector chooses a lineage parent for the next evolution attempt.
// All strategies operate over status=applied entries, optionally filtered by
// component; an empty population yields a nil parent, which the circuit treats
// as valid root-lineage input.
package selector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/helix-cli/api/schemas"
	"github.com/xkilldash9x/helix-cli/internal/config"
)

// Strategy is the closed set of parent-selection strategies.
type Strategy string

const (
	// StrategyElite returns the argmax total fitness.
	StrategyElite Strategy = "elite"
	// StrategyTournament samples k entries and returns the fittest of the
	// sample. This balances exploitation and exploration and is the default.
	StrategyTournament Strategy = "tournament"
	// StrategyRoulette is fitness-proportionate selection.
	StrategyRoulette Strategy = "roulette"
	// StrategyDiverse rewards components and change types absent from the
	// most recent archive entries.
	StrategyDiverse Strategy = "diverse"
)

// ParseStrategy validates a strategy name from config or CLI flags.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyElite, StrategyTournament, StrategyRoulette, StrategyDiverse:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown selection strategy %q", s)
	}
}

// Selection is the outcome of one parent choice.
type Selection struct {
	// Parent is nil when the population is empty (root lineage).
	Parent    *schemas.EvolutionEntry
	Method    Strategy
	Reasoning string
}

// Selector reads the archive and picks parents.
type Selector struct {
	log  *zap.Logger
	arch schemas.LineageArchive
	cfg  config.SelectorConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a Selector. The seed makes sampling reproducible in tests;
// pass time.Now().UnixNano() in production wiring.
func New(logger *zap.Logger, arch schemas.LineageArchive, cfg config.SelectorConfig, seed int64) *Selector {
	if cfg.TournamentK < 1 {
		cfg.TournamentK = 3
	}
	if cfg.RecentWindow < 1 {
		cfg.RecentWindow = 5
	}
	return &Selector{
		log:  logger.Named("selector"),
		arch: arch,
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// SelectParent picks a parent for component using the given strategy.
func (s *Selector) SelectParent(ctx context.Context, component string, strategy Strategy) (Selection, error) {
	candidates, err := s.arch.Applied(ctx, component)
	if err != nil {
		return Selection{}, fmt.Errorf("failed to load candidate population: %w", err)
	}
	if len(candidates) == 0 {
		s.log.Info("No applied ancestors; starting fresh lineage.",
			zap.String("component", component), zap.String("strategy", string(strategy)))
		return Selection{Parent: nil, Method: strategy, Reasoning: "starting fresh"}, nil
	}

	var sel Selection
	switch strategy {
	case StrategyElite:
		sel = s.elite(candidates)
	case StrategyTournament:
		sel = s.tournament(candidates)
	case StrategyRoulette:
		sel = s.roulette(candidates)
	case StrategyDiverse:
		sel = s.diverse(ctx, candidates)
	default:
		return Selection{}, fmt.Errorf("unknown selection strategy %q", strategy)
	}

	s.log.Info("Parent selected.",
		zap.String("strategy", string(sel.Method)),
		zap.String("parent", sel.Parent.ID),
		zap.Float64("fitness", sel.Parent.Fitness.Total),
	)
	return sel, nil
}

// elite returns the max-fitness candidate. Stable under insertion order: the
// earliest of equal-fitness entries wins.
func (s *Selector) elite(candidates []*schemas.EvolutionEntry) Selection {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Fitness.Total > best.Fitness.Total {
			best = c
		}
	}
	return Selection{
		Parent:    best,
		Method:    StrategyElite,
		Reasoning: fmt.Sprintf("highest fitness %.3f among %d applied entries", best.Fitness.Total, len(candidates)),
	}
}

// tournament samples k entries uniformly without replacement (k clamped to the
// population size) and returns the fittest of the sample.
func (s *Selector) tournament(candidates []*schemas.EvolutionEntry) Selection {
	k := s.cfg.TournamentK
	if k > len(candidates) {
		k = len(candidates)
	}

	s.mu.Lock()
	perm := s.rng.Perm(len(candidates))
	s.mu.Unlock()

	best := candidates[perm[0]]
	for _, idx := range perm[1:k] {
		if candidates[idx].Fitness.Total > best.Fitness.Total {
			best = candidates[idx]
		}
	}
	return Selection{
		Parent:    best,
		Method:    StrategyTournament,
		Reasoning: fmt.Sprintf("fittest of %d-way tournament over %d entries", k, len(candidates)),
	}
}

// roulette is fitness-proportionate; with a zero-fitness population it
// degrades to a uniform pick rather than dividing by zero.
func (s *Selector) roulette(candidates []*schemas.EvolutionEntry) Selection {
	total := 0.0
	for _, c := range candidates {
		total += c.Fitness.Total
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if total <= 0 {
		pick := candidates[s.rng.Intn(len(candidates))]
		return Selection{
			Parent:    pick,
			Method:    StrategyRoulette,
			Reasoning: "zero total fitness; uniform random fallback",
		}
	}

	spin := s.rng.Float64() * total
	acc := 0.0
	for _, c := range candidates {
		acc += c.Fitness.Total
		if spin <= acc {
			return Selection{
				Parent:    c,
				Method:    StrategyRoulette,
				Reasoning: fmt.Sprintf("fitness-proportionate spin %.3f of %.3f", spin, total),
			}
		}
	}
	// Floating point can leave the spin marginally past the last slot.
	last := candidates[len(candidates)-1]
	return Selection{Parent: last, Method: StrategyRoulette, Reasoning: "fitness-proportionate (terminal slot)"}
}

// diverse scores candidates by 0.5*novel_component + 0.3*novel_change_type +
// 0.2*fitness, where "novel" means absent from the most recent archive window.
func (s *Selector) diverse(ctx context.Context, candidates []*schemas.EvolutionEntry) Selection {
	recent, err := s.arch.Recent(ctx, s.cfg.RecentWindow)
	if err != nil {
		s.log.Warn("Failed to load recent window; falling back to elite.", zap.Error(err))
		sel := s.elite(candidates)
		sel.Method = StrategyDiverse
		return sel
	}

	recentComponents := make(map[string]bool, len(recent))
	recentTypes := make(map[schemas.ChangeType]bool, len(recent))
	for _, e := range recent {
		recentComponents[e.Component] = true
		recentTypes[e.ChangeType] = true
	}

	best := candidates[0]
	bestScore := -1.0
	for _, c := range candidates {
		score := 0.2 * c.Fitness.Total
		if !recentComponents[c.Component] {
			score += 0.5
		}
		if !recentTypes[c.ChangeType] {
			score += 0.3
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return Selection{
		Parent:    best,
		Method:    StrategyDiverse,
		Reasoning: fmt.Sprintf("diversity score %.3f against a %d-entry recent window", bestScore, len(recent)),
	}
}
