package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeChannelNotFound = "channel_not_found"
	ErrCodeChannelExists   = "channel_exists"
	ErrCodeMaxConnections  = "max_connections"
)

// Domain errors reported back to the originating session only; they never
// propagate to other peers.
var (
	ErrChannelNotFound error = &CoreError{Code: ErrCodeChannelNotFound, Message: "channel not found"}
	ErrChannelExists   error = &CoreError{Code: ErrCodeChannelExists, Message: "channel already exists"}

	ErrOutboxClosed = errors.New("outbox closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}
