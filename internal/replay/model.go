package replay

import (
	"time"

	"github.com/park285/challenge-runtime/internal/game"
)

// Version is stamped on every replay for forward compatibility.
const Version = "1.0"

// EventType discriminates replay events.
type EventType string

const (
	EventGameStart  EventType = "game_start"
	EventPlayerMove EventType = "player_move"
	EventAIMove     EventType = "ai_move"
	EventGameEnd    EventType = "game_end"
	EventResign     EventType = "resign"
	EventTimeout    EventType = "timeout"
	EventUndo       EventType = "undo"
	EventError      EventType = "error"
)

// Event is a single entry in the append-only session log. Seq values are
// 0-based, strictly increasing and gap free; ElapsedMS is measured from
// recording start. Payload fields are populated per type and omitted
// otherwise.
type Event struct {
	Seq       int       `json:"seq"`
	Type      EventType `json:"type"`
	ElapsedMS int64     `json:"elapsed_ms"`

	// game_start
	Seed         string       `json:"seed,omitempty"`
	Options      game.Options `json:"options,omitempty"`
	InitialState string       `json:"initial_state,omitempty"`

	// player_move / ai_move
	Move        string `json:"move,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	StateBefore string `json:"state_before,omitempty"`
	StateAfter  string `json:"state_after,omitempty"`

	// game_end
	Result     *game.Result `json:"result,omitempty"`
	FinalState string       `json:"final_state,omitempty"`

	// resign / timeout / undo / error
	Detail string `json:"detail,omitempty"`
}

// Meta holds counts derived from the event log. It is recomputed on
// build and never trusted from external input.
type Meta struct {
	PlayerMoves int       `json:"player_moves"`
	AIMoves     int       `json:"ai_moves"`
	TotalMoves  int       `json:"total_moves"`
	DurationMS  int64     `json:"duration_ms"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// GameReplay is the immutable, JSON-serializable record of one session.
type GameReplay struct {
	Version     string       `json:"version"`
	ReplayID    string       `json:"replay_id"`
	ChallengeID string       `json:"challenge_id"`
	GameID      string       `json:"game_id"`
	Seed        string       `json:"seed"`
	Options     game.Options `json:"options,omitempty"`
	Events      []Event      `json:"events"`
	Result      *game.Result `json:"result,omitempty"`
	Meta        Meta         `json:"meta"`
}

func computeMeta(events []Event, recordedAt time.Time) Meta {
	meta := Meta{RecordedAt: recordedAt}
	for _, ev := range events {
		switch ev.Type {
		case EventPlayerMove:
			meta.PlayerMoves++
		case EventAIMove:
			meta.AIMoves++
		}
		if ev.ElapsedMS > meta.DurationMS {
			meta.DurationMS = ev.ElapsedMS
		}
	}
	meta.TotalMoves = meta.PlayerMoves + meta.AIMoves
	return meta
}
