package models

import (
	"errors"
	"time"
)

// AuthorizationCodeRecord is the one-time grant handed to an OAuth client
// once its chain completes. The token endpoint redeems it.
type AuthorizationCodeRecord struct {
	Code        string    `json:"code"`
	UserID      string    `json:"user_id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes,omitempty"`
	Levels      []string  `json:"levels,omitempty"`
	Nonce       string    `json:"nonce,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Used        bool      `json:"used"`
}

var (
	errCodeExpired         = errors.New("authorization code expired")
	errCodeUsed            = errors.New("authorization code already used")
	errRedirectURIMismatch = errors.New("redirect_uri mismatch")
)

// ValidateForConsume checks the record can be redeemed at now.
func (r *AuthorizationCodeRecord) ValidateForConsume(redirectURI string, now time.Time) error {
	if r.Used {
		return errCodeUsed
	}
	if !now.Before(r.ExpiresAt) {
		return errCodeExpired
	}
	if r.RedirectURI != redirectURI {
		return errRedirectURIMismatch
	}
	return nil
}

func (r *AuthorizationCodeRecord) MarkUsed() {
	r.Used = true
}

// IsExpiredError, IsUsedError classify ValidateForConsume failures.
func IsExpiredError(err error) bool { return errors.Is(err, errCodeExpired) }
func IsUsedError(err error) bool    { return errors.Is(err, errCodeUsed) }
