package replay

import (
	"time"

	"github.com/google/uuid"

	"github.com/park285/challenge-runtime/internal/game"
)

// Recorder constructs the append-only event log for one session. It is a
// pure accumulator: every Record call assigns the next sequence number
// and a timestamp relative to recording start, nothing else is touched.
type Recorder struct {
	challengeID string
	gameID      string
	seed        string
	opts        game.Options

	startedAt time.Time
	now       func() time.Time
	events    []Event
}

func NewRecorder(challengeID, gameID, seed string, opts game.Options) *Recorder {
	return &Recorder{
		challengeID: challengeID,
		gameID:      gameID,
		seed:        seed,
		opts:        opts.Clone(),
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

// Resume rebuilds a recorder from a previously accumulated log so that
// recording can continue across tool calls. startedAt must be the
// original recording start for timestamps to stay on one timeline.
func Resume(challengeID, gameID, seed string, opts game.Options, startedAt time.Time, events []Event) *Recorder {
	r := NewRecorder(challengeID, gameID, seed, opts)
	r.startedAt = startedAt
	r.events = append(r.events, events...)
	return r
}

func (r *Recorder) next(typ EventType) Event {
	elapsed := r.now().Sub(r.startedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return Event{Seq: len(r.events), Type: typ, ElapsedMS: elapsed}
}

func (r *Recorder) append(ev Event) Event {
	r.events = append(r.events, ev)
	return ev
}

func (r *Recorder) RecordStart(initialState string) Event {
	ev := r.next(EventGameStart)
	ev.Seed = r.seed
	ev.Options = r.opts.Clone()
	ev.InitialState = initialState
	return r.append(ev)
}

func (r *Recorder) RecordPlayerMove(move, stateBefore, stateAfter string) Event {
	ev := r.next(EventPlayerMove)
	ev.Move = move
	ev.StateBefore = stateBefore
	ev.StateAfter = stateAfter
	return r.append(ev)
}

func (r *Recorder) RecordAIMove(move, difficulty, stateBefore, stateAfter string) Event {
	ev := r.next(EventAIMove)
	ev.Move = move
	ev.Difficulty = difficulty
	ev.StateBefore = stateBefore
	ev.StateAfter = stateAfter
	return r.append(ev)
}

func (r *Recorder) RecordEnd(result *game.Result, finalState string) Event {
	ev := r.next(EventGameEnd)
	ev.Result = result
	ev.FinalState = finalState
	return r.append(ev)
}

func (r *Recorder) RecordResign(detail string) Event {
	ev := r.next(EventResign)
	ev.Detail = detail
	return r.append(ev)
}

func (r *Recorder) RecordTimeout(detail string) Event {
	ev := r.next(EventTimeout)
	ev.Detail = detail
	return r.append(ev)
}

func (r *Recorder) RecordError(detail string) Event {
	ev := r.next(EventError)
	ev.Detail = detail
	return r.append(ev)
}

// Events returns a copy of the accumulated log.
func (r *Recorder) Events() []Event {
	return append([]Event(nil), r.events...)
}

// Build freezes the log into a GameReplay, deriving meta counts from the
// events themselves rather than trusting any externally supplied totals.
func (r *Recorder) Build(result *game.Result) *GameReplay {
	events := append([]Event(nil), r.events...)
	return &GameReplay{
		Version:     Version,
		ReplayID:    uuid.NewString(),
		ChallengeID: r.challengeID,
		GameID:      r.gameID,
		Seed:        r.seed,
		Options:     r.opts.Clone(),
		Events:      events,
		Result:      result,
		Meta:        computeMeta(events, r.now()),
	}
}
