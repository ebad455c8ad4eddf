// Package completion hands a finished chain back to the protocol that
// started it.
package completion

import (
	"context"
	"fmt"

	"authchain/internal/chain/models"
)

// OAuthAdapter completes OAuth2/OIDC authorization requests.
type OAuthAdapter interface {
	CompleteOAuth(ctx context.Context, req *models.OAuthRequest, subject *models.Subject, levels []string) (*models.Response, error)
	ReturnOAuthError(ctx context.Context, req *models.OAuthRequest, cause error) (*models.Response, error)
}

// SAMLAdapter completes SAML authentication requests.
type SAMLAdapter interface {
	CompleteSAML(ctx context.Context, req *models.SAMLRequest, subject *models.Subject, levels []string) (*models.Response, error)
	ReturnSAMLError(ctx context.Context, req *models.SAMLRequest, cause error) (*models.Response, error)
}

// Dispatcher routes completion by the tagged protocol request of a state.
type Dispatcher struct {
	oauth OAuthAdapter
	saml  SAMLAdapter
}

func NewDispatcher(oauth OAuthAdapter, saml SAMLAdapter) *Dispatcher {
	return &Dispatcher{oauth: oauth, saml: saml}
}

// Complete issues the protocol response for a completed state.
func (d *Dispatcher) Complete(ctx context.Context, st *models.State) (*models.Response, error) {
	switch {
	case st.Request.Kind == models.ProtocolOAuth && st.Request.OAuth != nil && d.oauth != nil:
		return d.oauth.CompleteOAuth(ctx, st.Request.OAuth, st.Subject, st.ApprovedLevels())
	case st.Request.Kind == models.ProtocolSAML && st.Request.SAML != nil && d.saml != nil:
		return d.saml.CompleteSAML(ctx, st.Request.SAML, st.Subject, st.ApprovedLevels())
	}
	return nil, fmt.Errorf("no completion adapter for protocol %q", st.Request.Kind)
}

// ReturnError reports cause through the initiating protocol.
func (d *Dispatcher) ReturnError(ctx context.Context, st *models.State, cause error) (*models.Response, error) {
	switch {
	case st.Request.Kind == models.ProtocolOAuth && st.Request.OAuth != nil && d.oauth != nil:
		return d.oauth.ReturnOAuthError(ctx, st.Request.OAuth, cause)
	case st.Request.Kind == models.ProtocolSAML && st.Request.SAML != nil && d.saml != nil:
		return d.saml.ReturnSAMLError(ctx, st.Request.SAML, cause)
	}
	return nil, fmt.Errorf("no completion adapter for protocol %q", st.Request.Kind)
}
