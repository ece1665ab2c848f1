package session

import (
	"errors"
	"time"

	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/replay"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrExpired   = errors.New("session expired")
	ErrCompleted = errors.New("session already completed")
)

// Status is the session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusError     Status = "error"
)

// Session is one play-through of a challenge. It owns its game state
// exclusively; the state value is replaced on every move and all
// mutation goes through the Manager.
type Session struct {
	ID             string
	ChallengeID    string
	Difficulty     string
	Seed           string
	CreatedAt      time.Time
	LastActivityAt time.Time
	Status         Status
	State          game.State
	Events         []replay.Event
	MoveCount      int
}

// Clone copies the session so callers cannot mutate stored data. State
// values are engine-owned and immutable, sharing them is safe.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Events = append([]replay.Event(nil), s.Events...)
	return &out
}
