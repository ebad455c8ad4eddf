// Package token issues and verifies continuation tokens: signed, short-lived
// links that let an out-of-band request (an emailed link) resume the pending
// step of a chain state.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
)

// DefaultTTL is the validity window of a continuation token.
const DefaultTTL = 300 * time.Second

// subjectHeader carries the subject identifier in the signed JOSE header.
const subjectHeader = "sub"

// Claims binds a token to a state and the module awaiting its callback.
type Claims struct {
	StateID  string `json:"state"`
	ModuleID string `json:"module"`
	jwt.RegisteredClaims

	// SubjectID is read from the signed header, not the claim set.
	SubjectID string `json:"-"`
}

// StateLoader loads chain states for Resolve.
type StateLoader interface {
	Load(ctx context.Context, stateID id.StateID) (*models.State, error)
}

// Codec signs and verifies continuation tokens.
type Codec struct {
	keys     *KeySet
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(keys *KeySet, issuer, audience string, opts ...Option) (*Codec, error) {
	if keys == nil || keys.Private == nil {
		return nil, errors.New("codec requires a signing key")
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("codec requires issuer and audience")
	}
	c := &Codec{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the validity window.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for the pending step of stateID. The returned claims
// carry the jti that the pending ModuleResult must record as its CallbackID.
func (c *Codec) Issue(stateID id.StateID, moduleID, subjectID string) (string, *Claims, error) {
	now := c.now()
	claims := &Claims{
		StateID:  stateID.String(),
		ModuleID: moduleID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		SubjectID: subjectID,
	}
	signed, err := c.keys.Sign(claims, map[string]any{subjectHeader: subjectID})
	if err != nil {
		return "", nil, fmt.Errorf("sign continuation token: %w", err)
	}
	return signed, claims, nil
}

// Validate verifies signature, issuer, audience and expiry.
// Fails with TokenExpired past expiry and TokenInvalid otherwise.
func (c *Codec) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, c.keys.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.NewChainError(models.KindTokenExpired, "the link has expired", err)
		}
		return nil, models.NewChainError(models.KindTokenInvalid, "the link is invalid", err)
	}
	if !parsed.Valid || claims.ID == "" || claims.StateID == "" || claims.ModuleID == "" {
		return nil, models.NewChainError(models.KindTokenInvalid, "the link is invalid", nil)
	}
	claims.SubjectID, _ = parsed.Header[subjectHeader].(string)
	return claims, nil
}

// Resolve validates raw and loads the bound state. Fails with UnknownState
// when the state is gone and StateAlreadyConsumed when the state no longer
// waits for this token (its pending step is cleared or was reissued).
func (c *Codec) Resolve(ctx context.Context, loader StateLoader, raw string) (*models.State, *Claims, error) {
	claims, err := c.Validate(raw)
	if err != nil {
		return nil, nil, err
	}
	stateID, err := id.ParseStateID(claims.StateID)
	if err != nil {
		return nil, nil, models.NewChainError(models.KindTokenInvalid, "the link is invalid", err)
	}
	state, err := loader.Load(ctx, stateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, models.NewChainError(models.KindUnknownState, "the login attempt no longer exists", err)
		}
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	if !WaitsFor(state, claims) {
		return nil, nil, models.NewChainError(models.KindStateAlreadyConsumed, "the link has already been used", nil).
			WithRetryURL(state.RetryURL)
	}
	return state, claims, nil
}

// WaitsFor reports whether state's pending step expects this token.
func WaitsFor(state *models.State, claims *Claims) bool {
	inc := state.Incomplete
	return inc != nil && inc.CallbackID != "" && inc.CallbackID == claims.ID && inc.ModuleID == claims.ModuleID
}
