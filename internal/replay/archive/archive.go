// Package archive persists finished game replays for later retrieval
// and verification.
package archive

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/park285/challenge-runtime/internal/replay"
)

var (
	ErrNotFound  = errors.New("replay not found")
	ErrDuplicate = errors.New("replay already archived")
)

// Summary is the listing row for an archived replay, small enough to
// return in bulk.
type Summary struct {
	ReplayID    string `json:"replay_id"`
	ChallengeID string `json:"challenge_id"`
	GameID      string `json:"game_id"`
	Outcome     string `json:"outcome"`
	TotalMoves  int    `json:"total_moves"`
	DurationMS  int64  `json:"duration_ms"`
	RecordedAt  int64  `json:"recorded_at"`
}

// Archive stores completed replays keyed by replay id.
type Archive interface {
	Save(ctx context.Context, rp *replay.GameReplay) error
	Get(ctx context.Context, replayID string) (*replay.GameReplay, error)
	List(ctx context.Context, challengeID string, limit int) ([]Summary, error)
}

func summarize(rp *replay.GameReplay) Summary {
	s := Summary{
		ReplayID:    rp.ReplayID,
		ChallengeID: rp.ChallengeID,
		GameID:      rp.GameID,
		TotalMoves:  rp.Meta.TotalMoves,
		DurationMS:  rp.Meta.DurationMS,
		RecordedAt:  rp.Meta.RecordedAt.UnixMilli(),
	}
	if rp.Result != nil {
		s.Outcome = string(rp.Result.Outcome)
	}
	return s
}

// Memory is the in-process Archive used by tests and single-node runs.
type Memory struct {
	mu      sync.RWMutex
	replays map[string]*replay.GameReplay
}

func NewMemory() *Memory {
	return &Memory{replays: make(map[string]*replay.GameReplay)}
}

func (m *Memory) Save(_ context.Context, rp *replay.GameReplay) error {
	if rp == nil || rp.ReplayID == "" {
		return errors.New("replay has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.replays[rp.ReplayID]; ok {
		return ErrDuplicate
	}
	m.replays[rp.ReplayID] = rp
	return nil
}

func (m *Memory) Get(_ context.Context, replayID string) (*replay.GameReplay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rp, ok := m.replays[replayID]
	if !ok {
		return nil, ErrNotFound
	}
	return rp, nil
}

func (m *Memory) List(_ context.Context, challengeID string, limit int) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.replays))
	for _, rp := range m.replays {
		if challengeID != "" && rp.ChallengeID != challengeID {
			continue
		}
		out = append(out, summarize(rp))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordedAt != out[j].RecordedAt {
			return out[i].RecordedAt > out[j].RecordedAt
		}
		return out[i].ReplayID < out[j].ReplayID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
