package constants

const (
	// Shared REST/WS transport-agnostic errors
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeInvalidToken      = "INVALID_TOKEN"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"

	// WebSocket subscription errors
	ErrCodeTopicForbidden = "TOPIC_FORBIDDEN"
	ErrCodeUnknownOp      = "UNKNOWN_OP"
)
