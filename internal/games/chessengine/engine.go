// Package chessengine adapts a full chess rules library to the
// challenge engine contract. The player is always white and the
// engine-driven opponent is black. Positions are reconstructed from the
// start position by replaying canonical UCI moves, so serialization
// round-trips exactly and never drifts from move history.
package chessengine

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/challenge-runtime/internal/game"
)

const ChallengeID = "chess"

var (
	uciPattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)
	sanPattern = regexp.MustCompile(`^[KQRBNP]?[a-h]?[1-8]?x?[a-h][1-8](=[QRBN])?[+#]?$|^O-O(-O)?[+#]?$`)
)

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) ID() string { return ChallengeID }

type state struct {
	id    string
	moves []string
	game  *nchess.Game
}

func (s *state) GameID() string { return s.id }

func (s *state) Status() game.Status {
	switch s.game.Outcome() {
	case nchess.WhiteWon:
		return game.StatusWon
	case nchess.BlackWon:
		return game.StatusLost
	case nchess.Draw:
		return game.StatusDraw
	default:
		return game.StatusPlaying
	}
}

func (s *state) Turn() game.Turn {
	if s.game.Position().Turn() == nchess.White {
		return game.TurnPlayer
	}
	return game.TurnOpponent
}

func (s *state) MoveCount() int { return len(s.moves) }

// build reconstructs a position by applying stored UCI moves from the
// start position.
func build(id string, moves []string) (*state, error) {
	g := nchess.NewGame()
	for _, mv := range moves {
		if err := g.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return &state{id: id, moves: append([]string(nil), moves...), game: g}, nil
}

func (e *Engine) NewGame(opts game.Options, seed string) (game.State, error) {
	id := opts[game.OptGameID]
	if id == "" {
		id = "chess-" + seed
	}
	return build(id, nil)
}

func asState(s game.State) (*state, error) {
	st, ok := s.(*state)
	if !ok || st == nil {
		return nil, fmt.Errorf("state is not a chess state")
	}
	return st, nil
}

func (e *Engine) LegalMoves(s game.State) []string {
	st, err := asState(s)
	if err != nil || st.game.Outcome() != nchess.NoOutcome {
		return nil
	}
	valid := st.game.ValidMoves()
	moves := make([]string, 0, len(valid))
	for i := range valid {
		moves = append(moves, strings.ToLower(valid[i].String()))
	}
	return moves
}

// IsLegalMove accepts the same inputs MakeMove does: UCI, or SAN
// resolved against the current position.
func (e *Engine) IsLegalMove(s game.State, move string) bool {
	st, err := asState(s)
	if err != nil || st.game.Outcome() != nchess.NoOutcome {
		return false
	}
	text := strings.TrimSpace(move)
	if uci := strings.ToLower(text); uciPattern.MatchString(uci) {
		_, derr := (nchess.UCINotation{}).Decode(st.game.Position(), uci)
		return derr == nil
	}
	if sanPattern.MatchString(text) {
		_, derr := (nchess.AlgebraicNotation{}).Decode(st.game.Position(), text)
		return derr == nil
	}
	return false
}

func (e *Engine) MakeMove(s game.State, move string) (game.MoveOutcome, error) {
	st, err := asState(s)
	if err != nil {
		return game.MoveOutcome{}, err
	}
	if st.game.Outcome() != nchess.NoOutcome {
		return game.MoveOutcome{Valid: false, Reason: "game is already over"}, game.ErrGameOver
	}

	text := strings.TrimSpace(move)
	if text == "" {
		return game.MoveOutcome{Valid: false, Reason: "empty move"}, game.ErrInvalidMoveFormat
	}

	// UCI first, SAN as a fallback, matching how players actually type.
	probe := st.game.Clone()
	uci := strings.ToLower(text)
	if err := probe.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		probe = st.game.Clone()
		if err := probe.PushNotationMove(text, nchess.AlgebraicNotation{}, nil); err != nil {
			return game.MoveOutcome{Valid: false, Reason: fmt.Sprintf("move %q is not legal here", text)}, nil
		}
		applied := probe.Moves()
		uci = strings.ToLower(applied[len(applied)-1].String())
	}

	next, berr := build(st.id, append(append([]string(nil), st.moves...), uci))
	if berr != nil {
		return game.MoveOutcome{}, berr
	}
	return game.MoveOutcome{Valid: true, State: next}, nil
}

// AIMove scores every legal reply by material swing plus mate and check
// bonuses, then breaks ties with a seed-derived hash so the choice is
// reproducible for a given seed. Easy difficulty skips scoring entirely
// and picks by hash alone.
func (e *Engine) AIMove(s game.State, difficulty, seed string) (string, error) {
	st, err := asState(s)
	if err != nil {
		return "", err
	}
	if st.game.Outcome() != nchess.NoOutcome {
		return "", game.ErrGameOver
	}
	candidates := e.LegalMoves(s)
	if len(candidates) == 0 {
		return "", nil
	}

	mover := st.game.Position().Turn()
	easy := strings.EqualFold(difficulty, "easy")

	bestMove := ""
	bestScore := 0
	var bestHash uint64
	first := true
	for _, uci := range candidates {
		score := 0
		if !easy {
			score = e.scoreMove(st, uci, mover)
		}
		h := moveHash(seed, len(st.moves), uci)
		if first || score > bestScore || (score == bestScore && h < bestHash) {
			bestMove, bestScore, bestHash = uci, score, h
			first = false
		}
	}
	return bestMove, nil
}

func (e *Engine) scoreMove(st *state, uci string, mover nchess.Color) int {
	probe := st.game.Clone()
	if err := probe.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return -1 << 20
	}
	opponent := nchess.White
	if mover == nchess.White {
		opponent = nchess.Black
	}
	score := materialFor(probe.Position(), mover) - materialFor(probe.Position(), opponent)
	switch probe.Outcome() {
	case nchess.WhiteWon:
		if mover == nchess.White {
			score += 1000
		}
	case nchess.BlackWon:
		if mover == nchess.Black {
			score += 1000
		}
	}
	return score
}

func materialFor(pos *nchess.Position, color nchess.Color) int {
	total := 0
	board := pos.Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece || piece.Color() != color {
				continue
			}
			total += pieceValues[piece.Type()]
		}
	}
	return total
}

func moveHash(seed string, moveCount int, uci string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(strconv.Itoa(moveCount)))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(uci))
	return h.Sum64()
}

func (e *Engine) IsGameOver(s game.State) bool {
	st, err := asState(s)
	return err == nil && st.game.Outcome() != nchess.NoOutcome
}

func (e *Engine) Result(s game.State) *game.Result {
	st, err := asState(s)
	if err != nil || st.game.Outcome() == nchess.NoOutcome {
		return nil
	}
	res := &game.Result{Outcome: st.Status(), Reason: strings.ToLower(st.game.Method().String())}
	switch st.game.Outcome() {
	case nchess.WhiteWon:
		res.Winner = game.TurnPlayer
	case nchess.BlackWon:
		res.Winner = game.TurnOpponent
	}
	return res
}

type serialized struct {
	GameID string   `json:"game_id"`
	Moves  []string `json:"moves"`
}

func (e *Engine) Serialize(s game.State) (string, error) {
	st, err := asState(s)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(serialized{GameID: st.id, Moves: st.moves})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (e *Engine) Deserialize(raw string) (game.State, error) {
	var rec serialized
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode chess state: %w", err)
	}
	if rec.GameID == "" {
		return nil, fmt.Errorf("chess state missing game id")
	}
	return build(rec.GameID, rec.Moves)
}

// ParseMove normalizes move text without a position: UCI is lowercased,
// SAN-shaped text passes through for MakeMove to resolve.
func (e *Engine) ParseMove(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", game.ErrInvalidMoveFormat
	}
	if uciPattern.MatchString(strings.ToLower(text)) {
		return strings.ToLower(text), nil
	}
	if sanPattern.MatchString(text) {
		return text, nil
	}
	return "", game.ErrInvalidMoveFormat
}

// FormatMove lowercases UCI text and leaves SAN untouched, so formatted
// output always parses back through ParseMove.
func (e *Engine) FormatMove(move string) string {
	text := strings.TrimSpace(move)
	if lower := strings.ToLower(text); uciPattern.MatchString(lower) {
		return lower
	}
	return text
}

// RenderText draws the board from the FEN piece placement so rendering
// stays independent of library display helpers.
func (e *Engine) RenderText(s game.State) string {
	st, err := asState(s)
	if err != nil {
		return ""
	}
	fen := st.game.FEN()
	placement := strings.SplitN(fen, " ", 2)[0]

	var b strings.Builder
	rank := 8
	for _, row := range strings.Split(placement, "/") {
		fmt.Fprintf(&b, "%d ", rank)
		for _, c := range row {
			if c >= '1' && c <= '8' {
				b.WriteString(strings.Repeat(". ", int(c-'0')))
				continue
			}
			b.WriteRune(c)
			b.WriteByte(' ')
		}
		b.WriteByte('\n')
		rank--
	}
	b.WriteString("  a b c d e f g h\n")
	fmt.Fprintf(&b, "Turn: %s", s.Turn())
	return b.String()
}
