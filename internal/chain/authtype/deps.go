package authtype

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"authchain/internal/chain/subject"
	"authchain/internal/chain/token"
	id "authchain/pkg/domain"
	"authchain/pkg/email"
)

// LinkIssuer signs continuation tokens for emailed links.
type LinkIssuer interface {
	Issue(stateID id.StateID, moduleID, subjectID string) (string, *token.Claims, error)
}

// AttemptLimiter bounds guessable submissions per state and module.
type AttemptLimiter interface {
	Check(ctx context.Context, stateID, moduleID string) error
	Reset(ctx context.Context, stateID, moduleID string) error
}

// OTPSettings are the service-wide one-time password defaults.
type OTPSettings struct {
	Secret []byte
	Length int
	TTL    time.Duration
}

// Dependencies are injected into every built-in AuthType.
type Dependencies struct {
	Subjects    *subject.Store
	Mailer      email.Sender
	Links       LinkIssuer
	CallbackURL string
	Attempts    AttemptLimiter
	OTP         OTPSettings
	Now         func() time.Time
	Logger      *slog.Logger
}

func (d Dependencies) validate() error {
	if d.Subjects == nil {
		return errors.New("subject store is required")
	}
	if d.Mailer == nil {
		return errors.New("mail sender is required")
	}
	return nil
}

func (d Dependencies) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
