package game

import "errors"

var (
	ErrInvalidMoveFormat = errors.New("move text is not well formed")
	ErrIllegalMove       = errors.New("move is not legal in this position")
	ErrGameOver          = errors.New("game is already over")
)

// Status is the lifecycle phase every engine state must report.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
	StatusDraw    Status = "draw"
)

// Over reports whether the status is terminal.
func (s Status) Over() bool {
	return s == StatusWon || s == StatusLost || s == StatusDraw
}

// Turn identifies which side moves next. The runtime only distinguishes
// the human player from the engine-driven opponent.
type Turn string

const (
	TurnPlayer   Turn = "player"
	TurnOpponent Turn = "opponent"
)

// Options carries engine-specific game setup values. Keys and values are
// plain strings so options survive JSON round trips unchanged.
type Options map[string]string

func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// OptGameID is the option key the runtime uses to hand engines their game id.
const OptGameID = "game_id"

// State is an opaque engine-owned game position. Implementations are
// replaced on every move, never mutated in place.
type State interface {
	GameID() string
	Status() Status
	Turn() Turn
	MoveCount() int
}

// Result describes a finished game.
type Result struct {
	Outcome Status `json:"outcome"`
	Winner  Turn   `json:"winner,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// MoveOutcome is the verdict of applying a single move.
type MoveOutcome struct {
	Valid  bool
	State  State
	Reason string
}

// Engine is the capability contract every playable challenge satisfies.
// All methods are pure with respect to their State argument: MakeMove
// returns a fresh State and leaves its input untouched. NewGame and
// AIMove must be deterministic for a given seed.
type Engine interface {
	// ID is the stable challenge identifier the engine registers under.
	ID() string

	NewGame(opts Options, seed string) (State, error)

	LegalMoves(s State) []string
	IsLegalMove(s State, move string) bool
	MakeMove(s State, move string) (MoveOutcome, error)

	// AIMove picks the opponent reply. Engines without an opponent side
	// return "" and a nil error; the runtime then skips the AI turn.
	AIMove(s State, difficulty, seed string) (string, error)

	IsGameOver(s State) bool
	// Result is nil while the game is still in progress.
	Result(s State) *Result

	// Serialize and Deserialize must round-trip exactly.
	Serialize(s State) (string, error)
	Deserialize(raw string) (State, error)

	// ParseMove normalizes raw user input into canonical move text and
	// FormatMove renders canonical text for display. The pair round-trips
	// for well-formed moves.
	ParseMove(raw string) (string, error)
	FormatMove(move string) string

	RenderText(s State) string
}
