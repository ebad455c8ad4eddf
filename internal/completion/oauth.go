package completion

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"authchain/internal/chain/models"
	cmodels "authchain/internal/completion/models"
	dErrors "authchain/pkg/domain-errors"
	"authchain/pkg/platform/sentinel"
)

// CodeStore persists authorization codes.
type CodeStore interface {
	Create(ctx context.Context, record *cmodels.AuthorizationCodeRecord) error
	Consume(ctx context.Context, code, redirectURI string, now time.Time) (*cmodels.AuthorizationCodeRecord, error)
}

const defaultCodeTTL = 10 * time.Minute

// OAuthCompleter issues an authorization code and redirects back to the client.
type OAuthCompleter struct {
	codes CodeStore
	ttl   time.Duration
	now   func() time.Time
}

type OAuthOption func(*OAuthCompleter)

func WithCodeTTL(ttl time.Duration) OAuthOption {
	return func(c *OAuthCompleter) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithOAuthClock(now func() time.Time) OAuthOption {
	return func(c *OAuthCompleter) {
		if now != nil {
			c.now = now
		}
	}
}

func NewOAuthCompleter(codes CodeStore, opts ...OAuthOption) *OAuthCompleter {
	c := &OAuthCompleter{codes: codes, ttl: defaultCodeTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OAuthCompleter) CompleteOAuth(ctx context.Context, req *models.OAuthRequest, subject *models.Subject, levels []string) (*models.Response, error) {
	if subject == nil || subject.UserID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "completed chain has no user id")
	}
	code, err := newCode()
	if err != nil {
		return nil, err
	}
	now := c.now()
	record := &cmodels.AuthorizationCodeRecord{
		Code:        code,
		UserID:      subject.UserID,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		Scopes:      append([]string(nil), req.Scopes...),
		Levels:      append([]string(nil), levels...),
		Nonce:       req.Nonce,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}
	if err := c.codes.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store authorization code: %w", err)
	}
	location, err := withQuery(req.RedirectURI, map[string]string{"code": code, "state": req.State})
	if err != nil {
		return nil, err
	}
	return models.RedirectTo(location), nil
}

// ReturnOAuthError redirects with login_required for passive failures and
// access_denied otherwise.
func (c *OAuthCompleter) ReturnOAuthError(_ context.Context, req *models.OAuthRequest, cause error) (*models.Response, error) {
	code := "access_denied"
	if errors.Is(cause, models.ErrPassiveAuthRequired) {
		code = "login_required"
	}
	params := map[string]string{"error": code, "state": req.State}
	if kind, ok := models.KindOf(cause); ok {
		params["error_description"] = string(kind)
	}
	location, err := withQuery(req.RedirectURI, params)
	if err != nil {
		return nil, err
	}
	return models.RedirectTo(location), nil
}

// Redeem consumes a code for the token endpoint.
func (c *OAuthCompleter) Redeem(ctx context.Context, code, redirectURI string) (*cmodels.AuthorizationCodeRecord, error) {
	record, err := c.codes.Consume(ctx, code, redirectURI, c.now())
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired),
		errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrInvalidState):
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid_grant")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem authorization code")
	}
}

func newCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate authorization code: %w", err)
	}
	return "authz_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

func withQuery(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
