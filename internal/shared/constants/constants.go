package constants

const (
	// Environment constants
	EnvDevelopment = "development"

	// HTTP Headers
	HeaderAuthorization = "Authorization"
	HeaderXRequestID    = "X-Request-ID"

	// Gin context keys
	ContextKeyUserID   = "user_id"
	ContextKeyUserRole = "user_role"

	// Pagination
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100

	ErrMsgInternalServerError = "Internal server error occurred"
)
