package replay

import "github.com/park285/challenge-runtime/internal/game"

// Stats are derived from a replay on demand and never stored, so they
// cannot go stale relative to the event log.
type Stats struct {
	ChallengeID      string      `json:"challenge_id"`
	Outcome          game.Status `json:"outcome"`
	Won              bool        `json:"won"`
	PlayerMoves      int         `json:"player_moves"`
	AIMoves          int         `json:"ai_moves"`
	TotalMoves       int         `json:"total_moves"`
	DurationMS       int64       `json:"duration_ms"`
	AvgPlayerThinkMS int64       `json:"avg_player_think_ms"`
	Resigned         bool        `json:"resigned"`
	TimedOut         bool        `json:"timed_out"`
	ErrorEvents      int         `json:"error_events"`
}

// ComputeStats scans the event log once.
func ComputeStats(rp *GameReplay) Stats {
	st := Stats{}
	if rp == nil {
		return st
	}
	st.ChallengeID = rp.ChallengeID
	if rp.Result != nil {
		st.Outcome = rp.Result.Outcome
		st.Won = rp.Result.Outcome == game.StatusWon
	}

	var prevElapsed int64
	var thinkTotal int64
	for _, ev := range rp.Events {
		switch ev.Type {
		case EventPlayerMove:
			st.PlayerMoves++
			if ev.ElapsedMS >= prevElapsed {
				thinkTotal += ev.ElapsedMS - prevElapsed
			}
		case EventAIMove:
			st.AIMoves++
		case EventResign:
			st.Resigned = true
		case EventTimeout:
			st.TimedOut = true
		case EventError:
			st.ErrorEvents++
		}
		if ev.ElapsedMS > st.DurationMS {
			st.DurationMS = ev.ElapsedMS
		}
		prevElapsed = ev.ElapsedMS
	}
	st.TotalMoves = st.PlayerMoves + st.AIMoves
	if st.PlayerMoves > 0 {
		st.AvgPlayerThinkMS = thinkTotal / int64(st.PlayerMoves)
	}
	return st
}
