// Package orchestrator wires sessions, game engines, replay recording
// and achievements into the tool-call pipeline. Every tool returns a
// uniform envelope; failures inside a call never escape as panics.
package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/park285/challenge-runtime/internal/achievement"
	"github.com/park285/challenge-runtime/internal/event"
	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/replay"
	"github.com/park285/challenge-runtime/internal/replay/archive"
	"github.com/park285/challenge-runtime/internal/session"
	"github.com/park285/challenge-runtime/pkg/challengedto"
)

const defaultDifficulty = "normal"

// Deps carries everything the orchestrator needs. Engines must be
// non-empty; Archive and Events may be nil for trimmed-down wirings.
type Deps struct {
	Sessions     *session.Manager
	Engines      []game.Engine
	Achievements *achievement.Engine
	Archive      archive.Archive
	Events       *event.Collector
	Difficulty   string
	Logger       *zap.Logger
}

type Orchestrator struct {
	sessions   *session.Manager
	engines    map[string]game.Engine
	replays    map[string]*replay.Engine
	achieve    *achievement.Engine
	archive    archive.Archive
	events     *event.Collector
	difficulty string
	validate   *validator.Validate
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(deps Deps) (*Orchestrator, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if len(deps.Engines) == 0 {
		return nil, fmt.Errorf("at least one game engine is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Difficulty == "" {
		deps.Difficulty = defaultDifficulty
	}
	if deps.Archive == nil {
		deps.Archive = archive.NewMemory()
	}
	if deps.Events == nil {
		deps.Events = event.NewCollector(nil, deps.Logger)
	}
	if deps.Achievements == nil {
		deps.Achievements = achievement.NewEngine(deps.Logger)
	}

	o := &Orchestrator{
		sessions:   deps.Sessions,
		engines:    make(map[string]game.Engine, len(deps.Engines)),
		replays:    make(map[string]*replay.Engine, len(deps.Engines)),
		achieve:    deps.Achievements,
		archive:    deps.Archive,
		events:     deps.Events,
		difficulty: deps.Difficulty,
		validate:   validator.New(),
		logger:     deps.Logger,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, eng := range deps.Engines {
		id := eng.ID()
		if _, dup := o.engines[id]; dup {
			return nil, fmt.Errorf("duplicate engine id %q", id)
		}
		re, err := replay.NewEngine(eng, replay.DefaultConfig(), deps.Logger)
		if err != nil {
			return nil, err
		}
		o.engines[id] = eng
		o.replays[id] = re
	}
	return o, nil
}

// EncodeState and DecodeState let the redis session store persist opaque
// engine states through the engine registry.
func (o *Orchestrator) EncodeState(challengeID string, s game.State) (string, error) {
	eng, ok := o.engines[challengeID]
	if !ok {
		return "", fmt.Errorf("unknown challenge %q", challengeID)
	}
	return eng.Serialize(s)
}

func (o *Orchestrator) DecodeState(challengeID, raw string) (game.State, error) {
	eng, ok := o.engines[challengeID]
	if !ok {
		return nil, fmt.Errorf("unknown challenge %q", challengeID)
	}
	return eng.Deserialize(raw)
}

// Challenges lists the registered challenge ids.
func (o *Orchestrator) Challenges() []string {
	out := make([]string, 0, len(o.engines))
	for id := range o.engines {
		out = append(out, id)
	}
	return out
}

// checkRequest runs struct validation and converts the first failure
// into a field-scoped domain error.
func (o *Orchestrator) checkRequest(req any) *challengedto.DomainError {
	err := o.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return challengedto.FieldError(strings.ToLower(fe.Field()),
			fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag()))
	}
	return challengedto.NewError(challengedto.CodeValidation, err.Error())
}

// sessionErr maps manager sentinels onto envelope error codes.
func sessionErr(err error) *challengedto.DomainError {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return challengedto.NewError(challengedto.CodeSessionNotFound, "session not found")
	case errors.Is(err, session.ErrExpired):
		return challengedto.NewError(challengedto.CodeSessionExpired, "session has expired")
	case errors.Is(err, session.ErrCompleted):
		return challengedto.NewError(challengedto.CodeSessionCompleted, "session is already completed")
	default:
		return challengedto.NewError(challengedto.CodeEngineError, err.Error())
	}
}

// lockSession serializes mutating tool pipelines per session. The
// manager's own lock only covers single store operations; a move spans a
// Get and an Update, and two interleaved moves would both append replay
// events computed from the same base log, duplicating seq numbers.
func (o *Orchestrator) lockSession(id string) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// guard converts a panicking tool body into an engine-error envelope.
func (o *Orchestrator) guard(tool string, events *[]challengedto.DomainEvent, fn func() challengedto.Envelope) (env challengedto.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tool call panicked", zap.String("tool", tool), zap.Any("panic", r))
			env = challengedto.Fail(challengedto.NewError(challengedto.CodeEngineError, "internal error"), *events)
		}
	}()
	return fn()
}

func (o *Orchestrator) emit(events *[]challengedto.DomainEvent, sessionID, typ string, data map[string]any) {
	*events = append(*events, o.events.Emit(sessionID, typ, data))
}

func (o *Orchestrator) sessionView(s *session.Session, eng game.Engine) challengedto.SessionView {
	view := challengedto.SessionView{
		SessionID:   s.ID,
		ChallengeID: s.ChallengeID,
		Difficulty:  s.Difficulty,
		Seed:        s.Seed,
		Status:      string(s.Status),
		MoveCount:   s.MoveCount,
	}
	if s.State == nil {
		return view
	}
	view.Turn = string(s.State.Turn())
	view.Board = eng.RenderText(s.State)
	if res := eng.Result(s.State); res != nil {
		view.Result = &challengedto.ResultView{
			Outcome: string(res.Outcome),
			Winner:  string(res.Winner),
			Reason:  res.Reason,
		}
	} else if s.Status == session.StatusActive && s.State.Turn() == game.TurnPlayer {
		view.LegalMoves = eng.LegalMoves(s.State)
	}
	return view
}

func achievementViews(defs []achievement.Definition) []challengedto.AchievementView {
	out := make([]challengedto.AchievementView, 0, len(defs))
	for _, def := range defs {
		out = append(out, challengedto.AchievementView{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Rarity:      string(def.Rarity),
			Points:      def.Points,
			Hidden:      def.Hidden,
		})
	}
	return out
}
