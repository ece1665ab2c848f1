package challengedto

// SessionView is the caller-facing snapshot of a live or finished session.
type SessionView struct {
	SessionID   string      `json:"session_id"`
	ChallengeID string      `json:"challenge_id"`
	Difficulty  string      `json:"difficulty,omitempty"`
	Seed        string      `json:"seed,omitempty"`
	Status      string      `json:"status"`
	Turn        string      `json:"turn"`
	MoveCount   int         `json:"move_count"`
	Board       string      `json:"board,omitempty"`
	LegalMoves  []string    `json:"legal_moves,omitempty"`
	Result      *ResultView `json:"result,omitempty"`
	Stats       any         `json:"stats,omitempty"`
}

type ResultView struct {
	Outcome string `json:"outcome"`
	Winner  string `json:"winner,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// MoveView reports one player turn, including the AI reply when one was due.
type MoveView struct {
	Session      SessionView       `json:"session"`
	PlayerMove   string            `json:"player_move"`
	AIMove       string            `json:"ai_move,omitempty"`
	Finished     bool              `json:"finished"`
	ReplayID     string            `json:"replay_id,omitempty"`
	Achievements []AchievementView `json:"achievements,omitempty"`
}

type AchievementView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rarity      string `json:"rarity"`
	Points      int    `json:"points"`
	Hidden      bool   `json:"hidden,omitempty"`
}

// CompleteView is returned by complete_challenge and resign_challenge.
type CompleteView struct {
	Session      SessionView       `json:"session"`
	ReplayID     string            `json:"replay_id,omitempty"`
	Achievements []AchievementView `json:"achievements,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}
