package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/replay"
)

const defaultMaxAge = time.Hour

// Config tunes session lifecycle.
type Config struct {
	// MaxAge is the idle TTL measured from LastActivityAt. Defaults to 1h.
	MaxAge time.Duration
}

// Manager owns session lifecycle: creation, lazy TTL expiry on access,
// completion semantics and the periodic cleanup sweep. Mutations for a
// given session id are serialized through a per-key lock; distinct
// sessions proceed independently.
type Manager struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(store Store, cfg Config, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		maxAge: cfg.MaxAge,
		now:    time.Now,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// lock returns the per-session mutex, creating it on first use.
func (m *Manager) lock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) dropLock(id string) {
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
}

// acquire locks the session mutex. If a concurrent Delete dropped the
// map entry while this caller was blocked, the held mutex is stale and
// a later caller would get a fresh one, so re-check and retry until the
// locked mutex is the one in the table.
func (m *Manager) acquire(id string) *sync.Mutex {
	for {
		l := m.lock(id)
		l.Lock()
		m.mu.Lock()
		same := m.locks[id] == l
		m.mu.Unlock()
		if same {
			return l
		}
		l.Unlock()
	}
}

// storeTTL gives the backing store headroom past MaxAge so lazy expiry
// can still observe and mark the session before the store reclaims it.
func (m *Manager) storeTTL() time.Duration { return 2 * m.maxAge }

// Create registers a new active session around an initial engine state.
func (m *Manager) Create(ctx context.Context, challengeID, difficulty, seed string, state game.State) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		ChallengeID:    challengeID,
		Difficulty:     difficulty,
		Seed:           seed,
		CreatedAt:      now,
		LastActivityAt: now,
		Status:         StatusActive,
		State:          state,
	}
	if err := m.store.Put(ctx, s, m.storeTTL()); err != nil {
		return nil, err
	}
	m.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("challenge_id", challengeID),
		zap.String("difficulty", difficulty),
	)
	return s.Clone(), nil
}

// load fetches and applies lazy expiry. Callers must hold the session lock.
func (m *Manager) load(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	if s.Status == StatusExpired {
		return nil, ErrExpired
	}
	if m.now().Sub(s.LastActivityAt) > m.maxAge {
		s.Status = StatusExpired
		if perr := m.store.Put(ctx, s, m.storeTTL()); perr != nil {
			m.logger.Warn("failed to mark session expired", zap.Error(perr), zap.String("session_id", id))
		}
		m.logger.Info("session expired on access", zap.String("session_id", id))
		return nil, ErrExpired
	}
	return s, nil
}

// Get returns the session and refreshes its activity timestamp.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	l := m.acquire(id)
	defer l.Unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.LastActivityAt = m.now()
	if err := m.store.Put(ctx, s, m.storeTTL()); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Patch is a partial session update. Nil fields are left untouched.
type Patch struct {
	Status       *Status
	State        game.State
	MoveCount    *int
	AppendEvents []replay.Event
}

// Update applies a patch under the session lock. A completed session
// refuses any update that does not itself set status to completed, so a
// finished game can never silently go live again.
func (m *Manager) Update(ctx context.Context, id string, p Patch) (*Session, error) {
	l := m.acquire(id)
	defer l.Unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status == StatusCompleted && (p.Status == nil || *p.Status != StatusCompleted) {
		return nil, ErrCompleted
	}

	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.State != nil {
		s.State = p.State
	}
	if p.MoveCount != nil {
		s.MoveCount = *p.MoveCount
	}
	if len(p.AppendEvents) > 0 {
		s.Events = append(s.Events, p.AppendEvents...)
	}
	s.LastActivityAt = m.now()

	if err := m.store.Put(ctx, s, m.storeTTL()); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Complete marks the session finished.
func (m *Manager) Complete(ctx context.Context, id string) (*Session, error) {
	done := StatusCompleted
	return m.Update(ctx, id, Patch{Status: &done})
}

// Delete removes the session unconditionally.
func (m *Manager) Delete(ctx context.Context, id string) error {
	l := m.acquire(id)
	defer l.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.dropLock(id)
	m.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Filter selects sessions for Query. Zero fields match everything.
type Filter struct {
	ChallengeID string
	Status      Status
	// IdleLongerThan matches sessions whose last activity is older than
	// the given duration.
	IdleLongerThan time.Duration
}

// Query lists sessions matching the filter without refreshing activity.
func (m *Manager) Query(ctx context.Context, f Filter) ([]*Session, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]*Session, 0, len(all))
	for _, s := range all {
		if f.ChallengeID != "" && s.ChallengeID != f.ChallengeID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.IdleLongerThan > 0 && now.Sub(s.LastActivityAt) <= f.IdleLongerThan {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Cleanup eagerly reclaims sessions past their TTL and returns how many
// were removed. Lazy expiry on access remains the primary mechanism;
// this sweep only frees memory sooner.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	now := m.now()
	for _, s := range all {
		if s.Status != StatusExpired && now.Sub(s.LastActivityAt) <= m.maxAge {
			continue
		}
		if err := m.Delete(ctx, s.ID); err != nil {
			m.logger.Warn("cleanup failed to delete session", zap.Error(err), zap.String("session_id", s.ID))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("session cleanup", zap.Int("removed", removed))
	}
	return removed, nil
}
