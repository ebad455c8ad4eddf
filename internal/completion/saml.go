package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authchain/internal/chain/models"
	dErrors "authchain/pkg/domain-errors"
)

// SAML status codes forwarded to the IdP front end.
const (
	StatusSuccess     = "urn:oasis:names:tc:SAML:2.0:status:Success"
	StatusNoPassive   = "urn:oasis:names:tc:SAML:2.0:status:NoPassive"
	StatusAuthnFailed = "urn:oasis:names:tc:SAML:2.0:status:AuthnFailed"
)

// Signer signs handoff tokens.
type Signer interface {
	Sign(claims jwt.Claims, headers map[string]any) (string, error)
}

// HandoffClaims tell the SAML front end which assertion to build.
type HandoffClaims struct {
	InResponseTo         string   `json:"in_response_to"`
	AssertionConsumerURL string   `json:"acs_url"`
	AuthnContext         []string `json:"authn_context,omitempty"`
	Email                string   `json:"email,omitempty"`
	Status               string   `json:"status"`
	jwt.RegisteredClaims
}

// SAMLCompleter signs a short-lived handoff token and redirects to the SAML
// front end, which renders the actual response.
type SAMLCompleter struct {
	signer      Signer
	continueURL string
	issuer      string
	ttl         time.Duration
	now         func() time.Time
}

type SAMLOption func(*SAMLCompleter)

func WithHandoffTTL(ttl time.Duration) SAMLOption {
	return func(c *SAMLCompleter) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithSAMLClock(now func() time.Time) SAMLOption {
	return func(c *SAMLCompleter) {
		if now != nil {
			c.now = now
		}
	}
}

func NewSAMLCompleter(signer Signer, continueURL, issuer string, opts ...SAMLOption) *SAMLCompleter {
	c := &SAMLCompleter{signer: signer, continueURL: continueURL, issuer: issuer, ttl: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SAMLCompleter) CompleteSAML(_ context.Context, req *models.SAMLRequest, subject *models.Subject, levels []string) (*models.Response, error) {
	if subject == nil || subject.UserID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "completed chain has no user id")
	}
	claims := c.claims(req, StatusSuccess)
	claims.Subject = subject.UserID
	claims.Email = subject.Email
	claims.AuthnContext = append([]string(nil), levels...)
	return c.redirect(req, claims)
}

// ReturnSAMLError reports NoPassive for passive failures, AuthnFailed otherwise.
func (c *SAMLCompleter) ReturnSAMLError(_ context.Context, req *models.SAMLRequest, cause error) (*models.Response, error) {
	status := StatusAuthnFailed
	if errors.Is(cause, models.ErrPassiveAuthRequired) {
		status = StatusNoPassive
	}
	return c.redirect(req, c.claims(req, status))
}

func (c *SAMLCompleter) claims(req *models.SAMLRequest, status string) *HandoffClaims {
	now := c.now()
	return &HandoffClaims{
		InResponseTo:         req.ID,
		AssertionConsumerURL: req.AssertionConsumerURL,
		Status:               status,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{req.Issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
}

func (c *SAMLCompleter) redirect(req *models.SAMLRequest, claims *HandoffClaims) (*models.Response, error) {
	signed, err := c.signer.Sign(claims, nil)
	if err != nil {
		return nil, fmt.Errorf("sign saml handoff: %w", err)
	}
	location, err := withQuery(c.continueURL, map[string]string{
		"handoff":    signed,
		"RelayState": req.RelayState,
	})
	if err != nil {
		return nil, err
	}
	return models.RedirectTo(location), nil
}
