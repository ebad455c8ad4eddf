package models

import "time"

// RateLimitResult is the outcome of one Allow call.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// AttemptKey scopes a counter to one module of one chain state.
func AttemptKey(stateID, moduleID string) string {
	return "attempts:" + stateID + ":" + moduleID
}
