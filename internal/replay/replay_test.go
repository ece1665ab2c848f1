package replay

import (
	"encoding/json"
	"testing"

	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/games/nim"
)

// recordGame plays a full deterministic game and records every event,
// returning the built replay and the live final state snapshot.
func recordGame(t *testing.T) (*GameReplay, string) {
	t.Helper()
	eng := nim.New()
	seed := "seed-42"

	state, err := eng.NewGame(nil, seed)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	rec := NewRecorder(nim.ChallengeID, state.GameID(), seed, nil)

	initial, err := eng.Serialize(state)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	rec.RecordStart(initial)

	for !eng.IsGameOver(state) {
		before, _ := eng.Serialize(state)
		var move string
		if state.Turn() == game.TurnPlayer {
			moves := eng.LegalMoves(state)
			if len(moves) == 0 {
				t.Fatalf("no legal moves while game not over")
			}
			move = moves[0]
		} else {
			m, err := eng.AIMove(state, "hard", seed)
			if err != nil {
				t.Fatalf("AIMove: %v", err)
			}
			move = m
		}
		mo, err := eng.MakeMove(state, move)
		if err != nil || !mo.Valid {
			t.Fatalf("MakeMove %q: %v %s", move, err, mo.Reason)
		}
		prev := state
		state = mo.State
		after, _ := eng.Serialize(state)
		if prev.Turn() == game.TurnPlayer {
			rec.RecordPlayerMove(move, before, after)
		} else {
			rec.RecordAIMove(move, "hard", before, after)
		}
	}

	result := eng.Result(state)
	if result == nil {
		t.Fatalf("finished game has nil result")
	}
	final, _ := eng.Serialize(state)
	rec.RecordEnd(result, final)
	return rec.Build(result), final
}

func newReplayEngine(t *testing.T) *Engine {
	t.Helper()
	re, err := NewEngine(nim.New(), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return re
}

func TestRecordedGameReplaysExactly(t *testing.T) {
	rp, final := recordGame(t)
	re := newReplayEngine(t)

	out := re.Execute(rp)
	if !out.Success {
		t.Fatalf("Execute failed: %v (warnings %v)", out.Err, out.Warnings)
	}
	if out.FinalState != final {
		t.Fatalf("reconstructed final state differs:\n got %s\nwant %s", out.FinalState, final)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("clean replay produced warnings: %v", out.Warnings)
	}

	report := re.Validate(rp)
	if !report.Valid || report.Err != nil {
		t.Fatalf("Validate: valid=%v err=%v", report.Valid, report.Err)
	}
}

func TestReplaySurvivesJSONRoundTrip(t *testing.T) {
	rp, _ := recordGame(t)

	raw, err := json.Marshal(rp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded GameReplay
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	re := newReplayEngine(t)
	report := re.Validate(&decoded)
	if !report.Valid {
		t.Fatalf("decoded replay failed validation: %v", report.Err)
	}
}

func TestVerifyDeterminism(t *testing.T) {
	rp, _ := recordGame(t)
	re := newReplayEngine(t)

	ok, reason := re.VerifyDeterminism(rp)
	if !ok {
		t.Fatalf("determinism check failed: %s", reason)
	}
}

func TestMissingStartEvent(t *testing.T) {
	re := newReplayEngine(t)

	empty := &GameReplay{Version: Version, Seed: "s"}
	report := re.Validate(empty)
	if report.Err == nil || report.Err.Code != CodeMissingStartEvent {
		t.Fatalf("expected MISSING_START_EVENT for empty log, got %v", report.Err)
	}

	rp, _ := recordGame(t)
	rp.Events = rp.Events[1:]
	report = re.Validate(rp)
	if report.Err == nil || report.Err.Code != CodeMissingStartEvent {
		t.Fatalf("expected MISSING_START_EVENT without leading game_start, got %v", report.Err)
	}
}

func TestInvalidSequenceDetected(t *testing.T) {
	rp, _ := recordGame(t)
	// Second event claims seq 2, leaving a gap after the start event.
	rp.Events[1].Seq = 2

	re := newReplayEngine(t)
	report := re.Validate(rp)
	if report.Err == nil || report.Err.Code != CodeInvalidSequence {
		t.Fatalf("expected INVALID_SEQUENCE, got %v", report.Err)
	}
	if report.Err.EventSeq != 2 {
		t.Fatalf("expected error at event seq 2, got %d", report.Err.EventSeq)
	}
}

func TestDuplicateStartRejected(t *testing.T) {
	rp, _ := recordGame(t)
	rp.Events[1] = rp.Events[0]
	rp.Events[1].Seq = 1

	re := newReplayEngine(t)
	report := re.Validate(rp)
	if report.Err == nil || report.Err.Code != CodeInvalidSequence {
		t.Fatalf("expected INVALID_SEQUENCE for duplicate game_start, got %v", report.Err)
	}
}

func TestSeedMismatchDetected(t *testing.T) {
	rp, _ := recordGame(t)
	rp.Events[0].Seed = "other-seed"

	re := newReplayEngine(t)
	report := re.Validate(rp)
	if report.Err == nil || report.Err.Code != CodeSeedMismatch {
		t.Fatalf("expected SEED_MISMATCH, got %v", report.Err)
	}
}

func TestTamperedStateDetected(t *testing.T) {
	rp, _ := recordGame(t)
	rp.Events[1].StateAfter = `{"game_id":"nim-seed-42","pile":999,"turn":"player","move_count":1}`

	re := newReplayEngine(t)
	report := re.Validate(rp)
	if report.Err == nil || report.Err.Code != CodeStateMismatch {
		t.Fatalf("expected STATE_MISMATCH, got %v", report.Err)
	}
	if report.Err.EventSeq != 1 {
		t.Fatalf("expected mismatch at event 1, got %d", report.Err.EventSeq)
	}
}

func TestTamperedMoveDetected(t *testing.T) {
	rp, _ := recordGame(t)
	rp.Events[1].Move = "9"

	re := newReplayEngine(t)
	report := re.Validate(rp)
	if report.Err == nil || report.Err.Code != CodeIllegalMove {
		t.Fatalf("expected ILLEGAL_MOVE, got %v", report.Err)
	}
}

func TestResignEventPassesThrough(t *testing.T) {
	eng := nim.New()
	seed := "seed-res"
	state, err := eng.NewGame(nil, seed)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	rec := NewRecorder(nim.ChallengeID, state.GameID(), seed, nil)
	initial, _ := eng.Serialize(state)
	rec.RecordStart(initial)
	rec.RecordResign("player resigned")
	result := &game.Result{Outcome: game.StatusLost, Winner: game.TurnOpponent, Reason: "resignation"}
	rp := rec.Build(result)

	re := newReplayEngine(t)
	report := re.Validate(rp)
	if !report.Valid {
		t.Fatalf("resigned replay should validate, got %v", report.Err)
	}
	if len(report.Warnings) == 0 {
		t.Fatalf("expected a pass-through warning for the resign event")
	}
}

func TestComputeStats(t *testing.T) {
	rp, _ := recordGame(t)
	st := ComputeStats(rp)

	if !st.Won && st.Outcome != game.StatusLost {
		t.Fatalf("stats outcome not derived from result: %+v", st)
	}
	if st.TotalMoves != st.PlayerMoves+st.AIMoves {
		t.Fatalf("move totals inconsistent: %+v", st)
	}
	if st.TotalMoves != rp.Meta.TotalMoves {
		t.Fatalf("stats and meta disagree on total moves: %d vs %d", st.TotalMoves, rp.Meta.TotalMoves)
	}
	if st.Resigned || st.TimedOut || st.ErrorEvents != 0 {
		t.Fatalf("clean game flagged: %+v", st)
	}
}
