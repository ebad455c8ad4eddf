package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the chain service can translate them into chain error kinds or
// domain errors.
//
//   - ErrNotFound: state, user or authorization code does not exist
//   - ErrConflict: optimistic version check lost against a concurrent writer
//   - ErrExpired: stored record outlived its TTL
//   - ErrAlreadyUsed: one-time record (authorization code) already consumed
//   - ErrInvalidState: record in the wrong state for the requested operation
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
