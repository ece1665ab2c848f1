package achievement

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/replay"
)

// Engine holds registered achievements and evaluates them against
// finished games. Definitions are immutable once registered.
type Engine struct {
	mu     sync.RWMutex
	defs   []Definition
	byID   map[string]struct{}
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{byID: make(map[string]struct{}), logger: logger}
}

func (e *Engine) Register(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("achievement id is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.byID[def.ID]; dup {
		return fmt.Errorf("achievement %s already registered", def.ID)
	}
	e.byID[def.ID] = struct{}{}
	e.defs = append(e.defs, def)
	return nil
}

func (e *Engine) RegisterAll(defs ...Definition) error {
	for _, def := range defs {
		if err := e.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Definitions lists achievements applicable to a challenge, sorted for
// display. Hidden achievements are excluded unless includeHidden is set.
func (e *Engine) Definitions(challengeID string, includeHidden bool) []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Definition, 0, len(e.defs))
	for _, def := range e.defs {
		if def.ChallengeID != "" && def.ChallengeID != challengeID {
			continue
		}
		if def.Hidden && !includeHidden {
			continue
		}
		out = append(out, def)
	}
	sortDefinitions(out)
	return out
}

// Evaluate computes stats once, then checks every applicable rule. A
// panicking or erroring predicate counts as not earned; rule bugs never
// surface as pipeline failures. Earned achievements come back ordered by
// rarity (legendary first) then descending points.
func (e *Engine) Evaluate(result *game.Result, rp *replay.GameReplay) []Definition {
	ctx := Context{Result: result, Replay: rp, Stats: replay.ComputeStats(rp)}

	e.mu.RLock()
	defs := append([]Definition(nil), e.defs...)
	e.mu.RUnlock()

	earned := make([]Definition, 0)
	for _, def := range defs {
		if def.ChallengeID != "" && (rp == nil || def.ChallengeID != rp.ChallengeID) {
			continue
		}
		if e.check(def, ctx) {
			earned = append(earned, def)
		}
	}
	sortDefinitions(earned)
	return earned
}

func (e *Engine) check(def Definition, ctx Context) (earned bool) {
	defer func() {
		if r := recover(); r != nil {
			earned = false
			e.logger.Warn("achievement predicate panicked",
				zap.String("achievement_id", def.ID),
				zap.Any("panic", r),
			)
		}
	}()
	ok, err := def.Rule.Evaluate(ctx)
	if err != nil {
		e.logger.Warn("achievement predicate failed",
			zap.String("achievement_id", def.ID),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func sortDefinitions(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Rarity.Rank() != defs[j].Rarity.Rank() {
			return defs[i].Rarity.Rank() > defs[j].Rarity.Rank()
		}
		if defs[i].Points != defs[j].Points {
			return defs[i].Points > defs[j].Points
		}
		return defs[i].ID < defs[j].ID
	})
}
