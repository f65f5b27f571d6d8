package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrSessionBusy        = errors.New("session has a turn in progress")
	ErrTopicNotFound      = errors.New("topic details not available")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnavailable        = errors.New("external service unavailable")
	ErrModelFailure       = errors.New("conversation model call failed")
	ErrInvalidExecContext = errors.New("invalid query execution context")
)
