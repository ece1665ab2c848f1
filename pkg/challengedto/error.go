package challengedto

// Error codes returned inside tool envelopes. Validation, lookup, state
// and engine errors are recoverable for the caller; replay integrity
// codes are fatal for the replay they refer to but never touch the
// originating session.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeChallengeUnknown = "CHALLENGE_NOT_FOUND"
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeSessionCompleted = "SESSION_ALREADY_COMPLETED"
	CodeGameAlreadyOver  = "GAME_ALREADY_OVER"
	CodeGameNotOver      = "GAME_NOT_OVER"
	CodeNotPlayerTurn    = "NOT_PLAYER_TURN"
	CodeIllegalMove      = "ILLEGAL_MOVE"
	CodeBadMoveFormat    = "INVALID_MOVE_FORMAT"
	CodeEngineError      = "ENGINE_ERROR"
	CodeReplayNotFound   = "REPLAY_NOT_FOUND"

	CodeStateMismatch     = "STATE_MISMATCH"
	CodeMissingStartEvent = "MISSING_START_EVENT"
	CodeInvalidSequence   = "INVALID_SEQUENCE"
	CodeSeedMismatch      = "SEED_MISMATCH"
)

// DomainError is the typed failure crossing the tool boundary.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e *DomainError) Error() string {
	if e == nil {
		return "challenge runtime error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "challenge runtime error"
}

// NewError builds a DomainError for a code and message.
func NewError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// FieldError builds a validation DomainError pointing at a request field.
func FieldError(field, message string) *DomainError {
	return &DomainError{Code: CodeValidation, Message: message, Field: field, Retryable: true}
}
