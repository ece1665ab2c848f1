package replay

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/challenge-runtime/internal/game"
)

// Validation error codes. These are fatal for the replay they describe
// but never affect the live session the replay was recorded from.
const (
	CodeStateMismatch     = "STATE_MISMATCH"
	CodeMissingStartEvent = "MISSING_START_EVENT"
	CodeInvalidSequence   = "INVALID_SEQUENCE"
	CodeSeedMismatch      = "SEED_MISMATCH"
	CodeIllegalMove       = "ILLEGAL_MOVE"
	CodeEngineError       = "ENGINE_ERROR"
)

// ValidationError pinpoints the event at which a replay stopped being
// reproducible.
type ValidationError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	EventSeq int    `json:"event_seq"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s at event %d: %s", e.Code, e.EventSeq, e.Message)
}

// Config tunes replay verification. The zero value performs no state
// comparison and keeps going on errors; use DefaultConfig for the strict
// profile used in production.
type Config struct {
	// VerifyStates compares recorded state snapshots against recomputed
	// serialized state after every applicable event.
	VerifyStates bool
	// VerifyAIMoves recomputes AI replies with the recorded seed and logs
	// mismatches as warnings. A mismatch is never fatal: AI heuristics may
	// improve without invalidating old replays.
	VerifyAIMoves bool
	// StopOnError halts at the first fatal condition instead of
	// accumulating warnings.
	StopOnError bool
	// Compare overrides the state equality check for engines whose
	// serialization is not canonical. Defaults to exact string equality.
	Compare func(recorded, recomputed string) bool
}

func DefaultConfig() Config {
	return Config{VerifyStates: true, VerifyAIMoves: true, StopOnError: true}
}

// Engine folds a recorded event log back through a game engine to
// reconstruct and verify the final state.
type Engine struct {
	eng    game.Engine
	cfg    Config
	logger *zap.Logger
}

func NewEngine(eng game.Engine, cfg Config, logger *zap.Logger) (*Engine, error) {
	if eng == nil {
		return nil, fmt.Errorf("replay engine requires a game engine")
	}
	if cfg.Compare == nil {
		cfg.Compare = func(a, b string) bool { return a == b }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{eng: eng, cfg: cfg, logger: logger}, nil
}

// Outcome is the result of executing a replay.
type Outcome struct {
	Success    bool
	FinalState string
	Applied    int
	Warnings   []string
	Err        *ValidationError
}

// Report is the result of Validate.
type Report struct {
	Valid    bool
	Warnings []string
	Err      *ValidationError
}

// checkStructure runs the cheap structural pass: exactly one leading
// game_start, gap-free 0-based sequence, seed agreement.
func checkStructure(rp *GameReplay) *ValidationError {
	if rp == nil || len(rp.Events) == 0 {
		return &ValidationError{Code: CodeMissingStartEvent, Message: "replay has no events", EventSeq: 0}
	}
	first := rp.Events[0]
	if first.Type != EventGameStart {
		return &ValidationError{Code: CodeMissingStartEvent, Message: fmt.Sprintf("first event is %s, want game_start", first.Type), EventSeq: first.Seq}
	}
	for i, ev := range rp.Events {
		if ev.Seq != i {
			return &ValidationError{Code: CodeInvalidSequence, Message: fmt.Sprintf("event seq %d at position %d breaks contiguity", ev.Seq, i), EventSeq: ev.Seq}
		}
		if i > 0 && ev.Type == EventGameStart {
			return &ValidationError{Code: CodeInvalidSequence, Message: "duplicate game_start event", EventSeq: ev.Seq}
		}
	}
	if first.Seed != "" && first.Seed != rp.Seed {
		return &ValidationError{Code: CodeSeedMismatch, Message: fmt.Sprintf("start event seed %q does not match replay seed %q", first.Seed, rp.Seed), EventSeq: first.Seq}
	}
	return nil
}

// Execute replays the log from the initial seed and verifies every
// recorded snapshot it is configured to check. On a fatal condition the
// fold halts (StopOnError) or records a warning and continues.
func (e *Engine) Execute(rp *GameReplay) *Outcome {
	out := &Outcome{}
	if verr := checkStructure(rp); verr != nil {
		out.Err = verr
		return out
	}

	fail := func(verr *ValidationError) bool {
		if e.cfg.StopOnError {
			out.Err = verr
			return true
		}
		out.Warnings = append(out.Warnings, verr.Error())
		return false
	}

	opts := rp.Options.Clone()
	if opts == nil {
		opts = game.Options{}
	}
	if _, ok := opts[game.OptGameID]; !ok && rp.GameID != "" {
		opts[game.OptGameID] = rp.GameID
	}
	state, err := e.eng.NewGame(opts, rp.Seed)
	if err != nil {
		out.Err = &ValidationError{Code: CodeEngineError, Message: fmt.Sprintf("new game: %v", err), EventSeq: 0}
		return out
	}

	if start := rp.Events[0]; e.cfg.VerifyStates && start.InitialState != "" {
		ser, serr := e.eng.Serialize(state)
		if serr != nil {
			out.Err = &ValidationError{Code: CodeEngineError, Message: fmt.Sprintf("serialize initial state: %v", serr), EventSeq: 0}
			return out
		}
		if !e.cfg.Compare(start.InitialState, ser) {
			if fail(&ValidationError{Code: CodeStateMismatch, Message: "initial state does not match recorded snapshot", EventSeq: start.Seq}) {
				return out
			}
		}
	}

	for _, ev := range rp.Events[1:] {
		switch ev.Type {
		case EventPlayerMove, EventAIMove:
			before := state
			if !e.eng.IsLegalMove(state, ev.Move) {
				if fail(&ValidationError{Code: CodeIllegalMove, Message: fmt.Sprintf("recorded move %q is not legal", ev.Move), EventSeq: ev.Seq}) {
					return out
				}
				continue
			}
			mo, merr := e.eng.MakeMove(state, ev.Move)
			if merr != nil || !mo.Valid || mo.State == nil {
				if fail(&ValidationError{Code: CodeIllegalMove, Message: fmt.Sprintf("recorded move %q was rejected: %v %s", ev.Move, merr, mo.Reason), EventSeq: ev.Seq}) {
					return out
				}
				continue
			}
			state = mo.State
			out.Applied++

			if ev.Type == EventAIMove && e.cfg.VerifyAIMoves {
				got, aerr := e.eng.AIMove(before, ev.Difficulty, rp.Seed)
				if aerr == nil && got != "" && got != ev.Move {
					msg := fmt.Sprintf("event %d: recomputed ai move %q differs from recorded %q", ev.Seq, got, ev.Move)
					out.Warnings = append(out.Warnings, msg)
					e.logger.Warn("ai move mismatch during replay",
						zap.String("replay_id", rp.ReplayID),
						zap.Int("event_seq", ev.Seq),
						zap.String("recorded", ev.Move),
						zap.String("recomputed", got),
					)
				}
			}
			if e.cfg.VerifyStates && ev.StateAfter != "" {
				ser, serr := e.eng.Serialize(state)
				if serr != nil {
					out.Err = &ValidationError{Code: CodeEngineError, Message: fmt.Sprintf("serialize: %v", serr), EventSeq: ev.Seq}
					return out
				}
				if !e.cfg.Compare(ev.StateAfter, ser) {
					if fail(&ValidationError{Code: CodeStateMismatch, Message: "state after move does not match recorded snapshot", EventSeq: ev.Seq}) {
						return out
					}
				}
			}

		case EventGameEnd:
			if !e.eng.IsGameOver(state) {
				if fail(&ValidationError{Code: CodeStateMismatch, Message: "game_end recorded while reconstructed game is not over", EventSeq: ev.Seq}) {
					return out
				}
				continue
			}
			if e.cfg.VerifyStates && ev.FinalState != "" {
				ser, serr := e.eng.Serialize(state)
				if serr != nil {
					out.Err = &ValidationError{Code: CodeEngineError, Message: fmt.Sprintf("serialize final state: %v", serr), EventSeq: ev.Seq}
					return out
				}
				if !e.cfg.Compare(ev.FinalState, ser) {
					if fail(&ValidationError{Code: CodeStateMismatch, Message: "final state does not match recorded snapshot", EventSeq: ev.Seq}) {
						return out
					}
				}
			}

		case EventResign, EventTimeout, EventUndo, EventError:
			// Pass-through: these never mutate reconstructed state. Noted as
			// warnings so auditors can see the log was not purely move data.
			out.Warnings = append(out.Warnings, fmt.Sprintf("event %d: %s passed through without state change", ev.Seq, ev.Type))

		default:
			if fail(&ValidationError{Code: CodeInvalidSequence, Message: fmt.Sprintf("unknown event type %q", ev.Type), EventSeq: ev.Seq}) {
				return out
			}
		}
	}

	ser, serr := e.eng.Serialize(state)
	if serr != nil {
		out.Err = &ValidationError{Code: CodeEngineError, Message: fmt.Sprintf("serialize final state: %v", serr), EventSeq: len(rp.Events) - 1}
		return out
	}
	out.FinalState = ser
	out.Success = true
	return out
}

// Validate runs the structural pass and then delegates to Execute for
// full semantic checking.
func (e *Engine) Validate(rp *GameReplay) Report {
	if verr := checkStructure(rp); verr != nil {
		return Report{Err: verr}
	}
	out := e.Execute(rp)
	return Report{Valid: out.Success, Warnings: out.Warnings, Err: out.Err}
}

// VerifyDeterminism executes the replay twice and compares the two
// independently reconstructed final states. This is the guarantee that
// makes replays trustworthy audit artifacts.
func (e *Engine) VerifyDeterminism(rp *GameReplay) (bool, string) {
	first := e.Execute(rp)
	if !first.Success {
		return false, fmt.Sprintf("first pass failed: %v", first.Err)
	}
	second := e.Execute(rp)
	if !second.Success {
		return false, fmt.Sprintf("second pass failed: %v", second.Err)
	}
	if !e.cfg.Compare(first.FinalState, second.FinalState) {
		return false, "reconstructed final states differ between passes"
	}
	return true, ""
}
