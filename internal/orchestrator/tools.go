package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/challenge-runtime/internal/achievement"
	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/replay"
	"github.com/park285/challenge-runtime/internal/replay/archive"
	"github.com/park285/challenge-runtime/internal/session"
	"github.com/park285/challenge-runtime/pkg/challengedto"
)

// Domain event types attached to envelopes and the event stream.
const (
	EventChallengeStarted   = "challenge_started"
	EventPlayerMoved        = "player_moved"
	EventAIMoved            = "ai_moved"
	EventChallengeCompleted = "challenge_completed"
	EventChallengeResigned  = "challenge_resigned"
	EventAchievementEarned  = "achievement_earned"
)

// StartChallenge creates a session for a challenge and records the
// game_start replay event.
func (o *Orchestrator) StartChallenge(ctx context.Context, req challengedto.StartChallengeRequest) challengedto.Envelope {
	var events []challengedto.DomainEvent
	return o.guard("start_challenge", &events, func() challengedto.Envelope {
		if derr := o.checkRequest(req); derr != nil {
			return challengedto.Fail(derr, events)
		}
		eng, ok := o.engines[req.ChallengeID]
		if !ok {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeChallengeUnknown,
				fmt.Sprintf("challenge %q is not registered", req.ChallengeID)), events)
		}

		difficulty := req.Difficulty
		if difficulty == "" {
			difficulty = o.difficulty
		}
		seed := req.Seed
		if seed == "" {
			seed = uuid.NewString()
		}

		state, err := eng.NewGame(nil, seed)
		if err != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError,
				fmt.Sprintf("create game: %v", err)), events)
		}

		s, err := o.sessions.Create(ctx, req.ChallengeID, difficulty, seed, state)
		if err != nil {
			return challengedto.Fail(sessionErr(err), events)
		}

		initial, err := eng.Serialize(state)
		if err != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError,
				fmt.Sprintf("serialize initial state: %v", err)), events)
		}
		rec := replay.Resume(s.ChallengeID, state.GameID(), seed, nil, s.CreatedAt, nil)
		rec.RecordStart(initial)

		s, err = o.sessions.Update(ctx, s.ID, session.Patch{AppendEvents: rec.Events()})
		if err != nil {
			return challengedto.Fail(sessionErr(err), events)
		}

		o.emit(&events, s.ID, EventChallengeStarted, map[string]any{
			"challenge_id": s.ChallengeID,
			"difficulty":   difficulty,
			"seed":         seed,
		})
		return challengedto.OK(o.sessionView(s, eng), events)
	})
}

// ChallengeMove applies one player move, lets the opponent reply and
// closes out the session when the game ends.
func (o *Orchestrator) ChallengeMove(ctx context.Context, req challengedto.MoveRequest) challengedto.Envelope {
	var events []challengedto.DomainEvent
	return o.guard("challenge_move", &events, func() challengedto.Envelope {
		if derr := o.checkRequest(req); derr != nil {
			return challengedto.Fail(derr, events)
		}
		unlock := o.lockSession(req.SessionID)
		defer unlock()

		s, err := o.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return challengedto.Fail(sessionErr(err), events)
		}
		if s.Status == session.StatusCompleted {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeSessionCompleted,
				"session is already completed"), events)
		}
		eng, ok := o.engines[s.ChallengeID]
		if !ok {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeChallengeUnknown,
				fmt.Sprintf("challenge %q is not registered", s.ChallengeID)), events)
		}
		if eng.IsGameOver(s.State) {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeGameAlreadyOver,
				"game is already over"), events)
		}
		if s.State.Turn() != game.TurnPlayer {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeNotPlayerTurn,
				"it is not the player's turn"), events)
		}

		move, err := eng.ParseMove(req.Move)
		if err != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeBadMoveFormat,
				fmt.Sprintf("move %q is not well formed", req.Move)), events)
		}
		if !eng.IsLegalMove(s.State, move) {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeIllegalMove,
				illegalMoveMessage(eng, s.State, move)), events)
		}

		rec := replay.Resume(s.ChallengeID, s.State.GameID(), s.Seed, nil, s.CreatedAt, s.Events)
		recorded := len(s.Events)

		before, err := eng.Serialize(s.State)
		if err != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError,
				fmt.Sprintf("serialize state: %v", err)), events)
		}
		mo, err := eng.MakeMove(s.State, move)
		if err != nil || !mo.Valid || mo.State == nil {
			reason := mo.Reason
			if reason == "" && err != nil {
				reason = err.Error()
			}
			return challengedto.Fail(challengedto.NewError(challengedto.CodeIllegalMove, reason), events)
		}
		state := mo.State
		after, err := eng.Serialize(state)
		if err != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError,
				fmt.Sprintf("serialize state: %v", err)), events)
		}
		rec.RecordPlayerMove(move, before, after)
		o.emit(&events, s.ID, EventPlayerMoved, map[string]any{"move": move})

		aiMove := ""
		if !eng.IsGameOver(state) && state.Turn() == game.TurnOpponent {
			reply, aerr := eng.AIMove(state, s.Difficulty, s.Seed)
			if aerr != nil {
				return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError,
					fmt.Sprintf("opponent move: %v", aerr)), events)
			}
			if reply != "" {
				aiBefore := after
				amo, merr := eng.MakeMove(state, reply)
				if merr != nil || !amo.Valid || amo.State == nil {
					return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError,
						fmt.Sprintf("opponent move %q rejected: %v", reply, merr)), events)
				}
				state = amo.State
				aiAfter, serr := eng.Serialize(state)
				if serr != nil {
					return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError,
						fmt.Sprintf("serialize state: %v", serr)), events)
				}
				rec.RecordAIMove(reply, s.Difficulty, aiBefore, aiAfter)
				aiMove = reply
				o.emit(&events, s.ID, EventAIMoved, map[string]any{"move": reply})
			}
		}

		patch := session.Patch{State: state, AppendEvents: rec.Events()[recorded:]}
		count := state.MoveCount()
		patch.MoveCount = &count

		view := challengedto.MoveView{PlayerMove: eng.FormatMove(move), Finished: eng.IsGameOver(state)}
		if aiMove != "" {
			view.AIMove = eng.FormatMove(aiMove)
		}

		if view.Finished {
			result := eng.Result(state)
			closed, cerr := o.closeOut(ctx, s, eng, rec, state, result, false, &events)
			if cerr != nil {
				return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError, cerr.Error()), events)
			}
			view.ReplayID = closed.replayID
			view.Achievements = achievementViews(closed.earned)
			view.Session = o.sessionView(closed.session, eng)
			return challengedto.OK(view, events)
		}

		s, err = o.sessions.Update(ctx, s.ID, patch)
		if err != nil {
			return challengedto.Fail(sessionErr(err), events)
		}
		view.Session = o.sessionView(s, eng)
		return challengedto.OK(view, events)
	})
}

// ChallengeState returns the current session snapshot, with derived
// stats once the game is over.
func (o *Orchestrator) ChallengeState(ctx context.Context, req challengedto.SessionRequest) challengedto.Envelope {
	var events []challengedto.DomainEvent
	return o.guard("challenge_state", &events, func() challengedto.Envelope {
		if derr := o.checkRequest(req); derr != nil {
			return challengedto.Fail(derr, events)
		}
		s, err := o.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return challengedto.Fail(sessionErr(err), events)
		}
		eng, ok := o.engines[s.ChallengeID]
		if !ok {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeChallengeUnknown,
				fmt.Sprintf("challenge %q is not registered", s.ChallengeID)), events)
		}
		view := o.sessionView(s, eng)
		if res := eng.Result(s.State); res != nil {
			rp := &replay.GameReplay{ChallengeID: s.ChallengeID, Events: s.Events, Result: res}
			view.Stats = replay.ComputeStats(rp)
		}
		return challengedto.OK(view, events)
	})
}

// GetAchievements lists achievements for a challenge, hidden ones
// excluded until earned.
func (o *Orchestrator) GetAchievements(_ context.Context, req challengedto.AchievementsRequest) challengedto.Envelope {
	var events []challengedto.DomainEvent
	return o.guard("get_achievements", &events, func() challengedto.Envelope {
		if derr := o.checkRequest(req); derr != nil {
			return challengedto.Fail(derr, events)
		}
		if _, ok := o.engines[req.ChallengeID]; !ok {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeChallengeUnknown,
				fmt.Sprintf("challenge %q is not registered", req.ChallengeID)), events)
		}
		defs := o.achieve.Definitions(req.ChallengeID, false)
		return challengedto.OK(achievementViews(defs), events)
	})
}

// CompleteChallenge finishes a session whose game has ended. Calling it
// early is an error; the game decides when it is over, not the caller.
func (o *Orchestrator) CompleteChallenge(ctx context.Context, req challengedto.SessionRequest) challengedto.Envelope {
	var events []challengedto.DomainEvent
	return o.guard("complete_challenge", &events, func() challengedto.Envelope {
		if derr := o.checkRequest(req); derr != nil {
			return challengedto.Fail(derr, events)
		}
		unlock := o.lockSession(req.SessionID)
		defer unlock()

		s, err := o.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return challengedto.Fail(sessionErr(err), events)
		}
		if s.Status == session.StatusCompleted {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeSessionCompleted,
				"session is already completed"), events)
		}
		eng, ok := o.engines[s.ChallengeID]
		if !ok {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeChallengeUnknown,
				fmt.Sprintf("challenge %q is not registered", s.ChallengeID)), events)
		}
		result := eng.Result(s.State)
		if result == nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeGameNotOver,
				"Game is not over yet"), events)
		}

		rec := replay.Resume(s.ChallengeID, s.State.GameID(), s.Seed, nil, s.CreatedAt, s.Events)
		closed, cerr := o.closeOut(ctx, s, eng, rec, s.State, result, false, &events)
		if cerr != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError, cerr.Error()), events)
		}
		return challengedto.OK(challengedto.CompleteView{
			Session:      o.sessionView(closed.session, eng),
			ReplayID:     closed.replayID,
			Achievements: achievementViews(closed.earned),
			Warnings:     closed.warnings,
		}, events)
	})
}

// ResignChallenge concedes an in-progress game as a loss.
func (o *Orchestrator) ResignChallenge(ctx context.Context, req challengedto.SessionRequest) challengedto.Envelope {
	var events []challengedto.DomainEvent
	return o.guard("resign_challenge", &events, func() challengedto.Envelope {
		if derr := o.checkRequest(req); derr != nil {
			return challengedto.Fail(derr, events)
		}
		unlock := o.lockSession(req.SessionID)
		defer unlock()

		s, err := o.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return challengedto.Fail(sessionErr(err), events)
		}
		if s.Status == session.StatusCompleted {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeSessionCompleted,
				"session is already completed"), events)
		}
		eng, ok := o.engines[s.ChallengeID]
		if !ok {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeChallengeUnknown,
				fmt.Sprintf("challenge %q is not registered", s.ChallengeID)), events)
		}
		if eng.IsGameOver(s.State) {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeGameAlreadyOver,
				"game is already over"), events)
		}

		rec := replay.Resume(s.ChallengeID, s.State.GameID(), s.Seed, nil, s.CreatedAt, s.Events)
		rec.RecordResign("player resigned")
		result := &game.Result{Outcome: game.StatusLost, Winner: game.TurnOpponent, Reason: "resignation"}

		closed, cerr := o.closeOut(ctx, s, eng, rec, s.State, result, true, &events)
		if cerr != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError, cerr.Error()), events)
		}
		o.emit(&events, s.ID, EventChallengeResigned, map[string]any{"challenge_id": s.ChallengeID})
		return challengedto.OK(challengedto.CompleteView{
			Session:      o.sessionView(closed.session, eng),
			ReplayID:     closed.replayID,
			Achievements: achievementViews(closed.earned),
			Warnings:     closed.warnings,
		}, events)
	})
}

// GetReplay fetches an archived replay in full.
func (o *Orchestrator) GetReplay(ctx context.Context, req challengedto.ReplayRequest) challengedto.Envelope {
	var events []challengedto.DomainEvent
	return o.guard("get_replay", &events, func() challengedto.Envelope {
		if derr := o.checkRequest(req); derr != nil {
			return challengedto.Fail(derr, events)
		}
		rp, err := o.archive.Get(ctx, req.ReplayID)
		if errors.Is(err, archive.ErrNotFound) {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeReplayNotFound,
				fmt.Sprintf("replay %q not found", req.ReplayID)), events)
		}
		if err != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError, err.Error()), events)
		}
		return challengedto.OK(rp, events)
	})
}

// ListReplays lists archived replay summaries, newest first.
func (o *Orchestrator) ListReplays(ctx context.Context, req challengedto.ListReplaysRequest) challengedto.Envelope {
	var events []challengedto.DomainEvent
	return o.guard("list_replays", &events, func() challengedto.Envelope {
		if derr := o.checkRequest(req); derr != nil {
			return challengedto.Fail(derr, events)
		}
		sums, err := o.archive.List(ctx, req.ChallengeID, req.Limit)
		if err != nil {
			return challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError, err.Error()), events)
		}
		return challengedto.OK(sums, events)
	})
}

type closeResult struct {
	session  *session.Session
	replayID string
	earned   []achievement.Definition
	warnings []string
}

// closeOut finishes a session: records game_end for natural endings,
// builds and verifies the replay, archives it, evaluates achievements
// and marks the session completed. Verification and archive failures
// degrade to warnings; the session always completes.
func (o *Orchestrator) closeOut(ctx context.Context, s *session.Session, eng game.Engine, rec *replay.Recorder, state game.State, result *game.Result, resigned bool, events *[]challengedto.DomainEvent) (closeResult, error) {
	final, err := eng.Serialize(state)
	if err != nil {
		return closeResult{}, fmt.Errorf("serialize final state: %w", err)
	}
	if !resigned {
		rec.RecordEnd(result, final)
	}
	rp := rec.Build(result)

	var warnings []string
	re := o.replays[s.ChallengeID]
	report := re.Validate(rp)
	warnings = append(warnings, report.Warnings...)
	if report.Err != nil {
		warnings = append(warnings, report.Err.Error())
		o.logger.Warn("replay failed validation at completion",
			zap.String("session_id", s.ID),
			zap.String("replay_id", rp.ReplayID),
			zap.Error(report.Err),
		)
	} else if ok, reason := re.VerifyDeterminism(rp); !ok {
		warnings = append(warnings, "replay determinism check failed: "+reason)
		o.logger.Warn("replay determinism check failed",
			zap.String("replay_id", rp.ReplayID),
			zap.String("reason", reason),
		)
	}

	if err := o.archive.Save(ctx, rp); err != nil && !errors.Is(err, archive.ErrDuplicate) {
		warnings = append(warnings, "replay archive failed: "+err.Error())
		o.logger.Warn("replay archive failed", zap.String("replay_id", rp.ReplayID), zap.Error(err))
	}

	earned := o.achieve.Evaluate(result, rp)

	done := session.StatusCompleted
	count := state.MoveCount()
	updated, err := o.sessions.Update(ctx, s.ID, session.Patch{
		Status:       &done,
		State:        state,
		MoveCount:    &count,
		AppendEvents: rec.Events()[len(s.Events):],
	})
	if err != nil {
		return closeResult{}, fmt.Errorf("complete session: %w", err)
	}

	o.emit(events, s.ID, EventChallengeCompleted, map[string]any{
		"challenge_id": s.ChallengeID,
		"outcome":      string(result.Outcome),
		"replay_id":    rp.ReplayID,
	})
	for _, def := range earned {
		o.emit(events, s.ID, EventAchievementEarned, map[string]any{
			"achievement_id": def.ID,
			"rarity":         string(def.Rarity),
			"points":         def.Points,
		})
	}
	o.logger.Info("challenge completed",
		zap.String("session_id", s.ID),
		zap.String("challenge_id", s.ChallengeID),
		zap.String("outcome", string(result.Outcome)),
		zap.String("replay_id", rp.ReplayID),
		zap.Int("achievements", len(earned)),
	)
	return closeResult{session: updated, replayID: rp.ReplayID, earned: earned, warnings: warnings}, nil
}

func illegalMoveMessage(eng game.Engine, s game.State, move string) string {
	legal := eng.LegalMoves(s)
	const hintLimit = 8
	if len(legal) == 0 {
		return fmt.Sprintf("move %q is not legal here", move)
	}
	hint := legal
	suffix := ""
	if len(hint) > hintLimit {
		hint = hint[:hintLimit]
		suffix = ", ..."
	}
	return fmt.Sprintf("move %q is not legal here; legal moves: %s%s", move, strings.Join(hint, ", "), suffix)
}
