package crypto

import "github.com/google/uuid"

// NewTraceID returns a time-ordered UUIDv7 string. It tags issued tokens
// (jti) and stream connections in logs.
func NewTraceID() string {
	return uuid.Must(uuid.NewV7()).String()
}
