package domain

import "errors"

// Flat error kinds of the pairing core. The HTTP and relay adapters map
// them to protocol status codes; nothing here is retried internally.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionFull         = errors.New("session full")
	ErrInvalidSessionState = errors.New("invalid session state")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidMessage      = errors.New("invalid message")
	ErrUnknownMessageType  = errors.New("unknown message type")
	ErrMalformedRequest    = errors.New("malformed request")
)
