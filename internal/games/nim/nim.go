// Package nim implements the take-away game of Nim as a challenge
// engine: a single pile, each side removes one to three sticks, whoever
// takes the last stick wins. Small enough to reason about, it doubles
// as the reference engine for runtime verification.
package nim

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/park285/challenge-runtime/internal/game"
)

const (
	ChallengeID = "nim"

	defaultPile = 21
	maxTake     = 3

	// OptPile overrides the starting pile size.
	OptPile = "pile"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) ID() string { return ChallengeID }

type state struct {
	ID     string    `json:"game_id"`
	Pile   int       `json:"pile"`
	Side   game.Turn `json:"turn"`
	Moves  int       `json:"move_count"`
	Winner game.Turn `json:"winner,omitempty"`
}

func (s *state) GameID() string { return s.ID }

func (s *state) Status() game.Status {
	if s.Pile > 0 {
		return game.StatusPlaying
	}
	if s.Winner == game.TurnPlayer {
		return game.StatusWon
	}
	return game.StatusLost
}

func (s *state) Turn() game.Turn { return s.Side }

func (s *state) MoveCount() int { return s.Moves }

func (e *Engine) NewGame(opts game.Options, seed string) (game.State, error) {
	pile := defaultPile
	if raw, ok := opts[OptPile]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid pile option %q", raw)
		}
		pile = n
	}
	id := opts[game.OptGameID]
	if id == "" {
		id = "nim-" + seed
	}
	return &state{ID: id, Pile: pile, Side: game.TurnPlayer}, nil
}

func (e *Engine) LegalMoves(s game.State) []string {
	st, ok := s.(*state)
	if !ok || st.Pile <= 0 {
		return nil
	}
	limit := maxTake
	if st.Pile < limit {
		limit = st.Pile
	}
	moves := make([]string, 0, limit)
	for n := 1; n <= limit; n++ {
		moves = append(moves, strconv.Itoa(n))
	}
	return moves
}

func (e *Engine) IsLegalMove(s game.State, move string) bool {
	st, ok := s.(*state)
	if !ok || st.Pile <= 0 {
		return false
	}
	n, err := strconv.Atoi(move)
	if err != nil {
		return false
	}
	return n >= 1 && n <= maxTake && n <= st.Pile
}

func (e *Engine) MakeMove(s game.State, move string) (game.MoveOutcome, error) {
	st, ok := s.(*state)
	if !ok {
		return game.MoveOutcome{}, fmt.Errorf("state is not a nim state")
	}
	if st.Pile <= 0 {
		return game.MoveOutcome{Valid: false, Reason: "game is already over"}, game.ErrGameOver
	}
	n, err := strconv.Atoi(move)
	if err != nil {
		return game.MoveOutcome{Valid: false, Reason: "move must be a number"}, game.ErrInvalidMoveFormat
	}
	if n < 1 || n > maxTake || n > st.Pile {
		return game.MoveOutcome{Valid: false, Reason: fmt.Sprintf("take between 1 and %d sticks", min(maxTake, st.Pile))}, nil
	}

	next := *st
	next.Pile -= n
	next.Moves++
	if next.Pile == 0 {
		next.Winner = st.Side
	}
	if st.Side == game.TurnPlayer {
		next.Side = game.TurnOpponent
	} else {
		next.Side = game.TurnPlayer
	}
	return game.MoveOutcome{Valid: true, State: &next}, nil
}

// AIMove plays perfectly on hard (leave a multiple of four) and falls
// back to a seed-derived pick from losing positions and on easy.
func (e *Engine) AIMove(s game.State, difficulty, seed string) (string, error) {
	st, ok := s.(*state)
	if !ok {
		return "", fmt.Errorf("state is not a nim state")
	}
	if st.Pile <= 0 {
		return "", game.ErrGameOver
	}
	limit := maxTake
	if st.Pile < limit {
		limit = st.Pile
	}
	if strings.EqualFold(difficulty, "hard") {
		if k := st.Pile % (maxTake + 1); k >= 1 && k <= limit {
			return strconv.Itoa(k), nil
		}
	}
	pick := 1 + int(seededValue(seed, st.Moves)%uint64(limit))
	return strconv.Itoa(pick), nil
}

func seededValue(seed string, moveCount int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(strconv.Itoa(moveCount)))
	return h.Sum64()
}

func (e *Engine) IsGameOver(s game.State) bool {
	st, ok := s.(*state)
	return ok && st.Pile == 0
}

func (e *Engine) Result(s game.State) *game.Result {
	st, ok := s.(*state)
	if !ok || st.Pile > 0 {
		return nil
	}
	res := &game.Result{Outcome: st.Status(), Winner: st.Winner}
	if st.Winner == game.TurnPlayer {
		res.Reason = "player took the last stick"
	} else {
		res.Reason = "opponent took the last stick"
	}
	return res
}

func (e *Engine) Serialize(s game.State) (string, error) {
	st, ok := s.(*state)
	if !ok {
		return "", fmt.Errorf("state is not a nim state")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (e *Engine) Deserialize(raw string) (game.State, error) {
	var st state
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode nim state: %w", err)
	}
	if st.ID == "" {
		return nil, fmt.Errorf("nim state missing game id")
	}
	return &st, nil
}

func (e *Engine) ParseMove(raw string) (string, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	text = strings.TrimPrefix(text, "take ")
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > maxTake {
		return "", game.ErrInvalidMoveFormat
	}
	return strconv.Itoa(n), nil
}

func (e *Engine) FormatMove(move string) string {
	return "take " + move
}

func (e *Engine) RenderText(s game.State) string {
	st, ok := s.(*state)
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pile: %s (%d)\n", strings.Repeat("|", st.Pile), st.Pile)
	if st.Pile > 0 {
		fmt.Fprintf(&b, "Turn: %s", st.Side)
	} else {
		fmt.Fprintf(&b, "Winner: %s", st.Winner)
	}
	return b.String()
}
