package challengedto

// Tool request payloads. Validation tags are enforced at the pipeline
// boundary before any session work happens.

type StartChallengeRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Difficulty  string `json:"difficulty,omitempty"`
	Seed        string `json:"seed,omitempty"`
}

type MoveRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Move      string `json:"move" validate:"required"`
}

type SessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type AchievementsRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
}

type ReplayRequest struct {
	ReplayID string `json:"replay_id" validate:"required"`
}

type ListReplaysRequest struct {
	ChallengeID string `json:"challenge_id,omitempty"`
	Limit       int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}
