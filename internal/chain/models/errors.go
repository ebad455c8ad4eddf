package models

import "errors"

// ErrorKind classifies chain failures.
type ErrorKind string

const (
	KindSubjectConflict      ErrorKind = "subject_conflict"
	KindChainUnsatisfiable   ErrorKind = "chain_unsatisfiable"
	KindTokenExpired         ErrorKind = "token_expired"
	KindTokenInvalid         ErrorKind = "token_invalid"
	KindUnknownState         ErrorKind = "unknown_state"
	KindStateAlreadyConsumed ErrorKind = "state_already_consumed"
	KindPassiveAuthRequired  ErrorKind = "passive_auth_required"
	KindStateConflict        ErrorKind = "state_conflict"
	KindTooManyAttempts      ErrorKind = "too_many_attempts"
)

// Sentinels for errors.Is; any *ChainError with the same kind matches.
var (
	ErrSubjectConflict      = &ChainError{Kind: KindSubjectConflict}
	ErrChainUnsatisfiable   = &ChainError{Kind: KindChainUnsatisfiable}
	ErrTokenExpired         = &ChainError{Kind: KindTokenExpired}
	ErrTokenInvalid         = &ChainError{Kind: KindTokenInvalid}
	ErrUnknownState         = &ChainError{Kind: KindUnknownState}
	ErrStateAlreadyConsumed = &ChainError{Kind: KindStateAlreadyConsumed}
	ErrPassiveAuthRequired  = &ChainError{Kind: KindPassiveAuthRequired}
	ErrStateConflict        = &ChainError{Kind: KindStateConflict}
	ErrTooManyAttempts      = &ChainError{Kind: KindTooManyAttempts}
)

// ChainError is a chain-level failure. Integrity failures carry RetryURL so
// the client can restart; failures routed through a protocol adapter carry
// the adapter's Response.
type ChainError struct {
	Kind     ErrorKind
	Message  string
	RetryURL string
	Response *Response
	Err      error
}

func NewChainError(kind ErrorKind, msg string, err error) *ChainError {
	return &ChainError{Kind: kind, Message: msg, Err: err}
}

func (e *ChainError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// Is matches on Kind only.
func (e *ChainError) Is(target error) bool {
	t, ok := target.(*ChainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithRetryURL returns a copy carrying the restart URL.
func (e *ChainError) WithRetryURL(url string) *ChainError {
	c := *e
	c.RetryURL = url
	return &c
}

// WithResponse returns a copy carrying a routed response.
func (e *ChainError) WithResponse(resp *Response) *ChainError {
	c := *e
	c.Response = resp
	return &c
}

// KindOf returns the kind of the first *ChainError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsIntegrityError reports failures that are fatal to the attempt and force a
// restart through RetryURL.
func IsIntegrityError(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindSubjectConflict || kind == KindStateAlreadyConsumed)
}

// IsCallbackError reports continuation-link validation failures.
func IsCallbackError(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case KindTokenExpired, KindTokenInvalid, KindUnknownState, KindStateAlreadyConsumed:
		return true
	}
	return false
}
