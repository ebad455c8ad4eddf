package models

// ProtocolKind tags the protocol that initiated a chain.
type ProtocolKind string

const (
	ProtocolOAuth ProtocolKind = "oauth"
	ProtocolSAML  ProtocolKind = "saml"
)

// ProtocolRequest is a tagged variant: exactly one of OAuth or SAML is set,
// matching Kind. The orchestrator never inspects it; completion adapters do.
type ProtocolRequest struct {
	Kind  ProtocolKind  `json:"kind"`
	OAuth *OAuthRequest `json:"oauth,omitempty"`
	SAML  *SAMLRequest  `json:"saml,omitempty"`
}

// OAuthRequest is the inbound OAuth2/OIDC authorization request.
type OAuthRequest struct {
	ClientID     string   `json:"client_id"`
	RedirectURI  string   `json:"redirect_uri"`
	ResponseType string   `json:"response_type"`
	Scopes       []string `json:"scopes,omitempty"`
	State        string   `json:"state,omitempty"`
	Nonce        string   `json:"nonce,omitempty"`
	ACRValues    []string `json:"acr_values,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	LoginHint    string   `json:"login_hint,omitempty"`
	UILocales    string   `json:"ui_locales,omitempty"`
}

// SAMLRequest is an already-parsed SAML AuthnRequest.
type SAMLRequest struct {
	ID                    string   `json:"id"`
	Issuer                string   `json:"issuer"`
	AssertionConsumerURL  string   `json:"assertion_consumer_url"`
	RelayState            string   `json:"relay_state,omitempty"`
	ForceAuthn            bool     `json:"force_authn,omitempty"`
	IsPassive             bool     `json:"is_passive,omitempty"`
	RequestedAuthnContext []string `json:"requested_authn_context,omitempty"`
}

func NewOAuthProtocolRequest(req *OAuthRequest) ProtocolRequest {
	return ProtocolRequest{Kind: ProtocolOAuth, OAuth: req}
}

func NewSAMLProtocolRequest(req *SAMLRequest) ProtocolRequest {
	return ProtocolRequest{Kind: ProtocolSAML, SAML: req}
}

// Valid reports whether the variant matching Kind is present.
func (r ProtocolRequest) Valid() bool {
	switch r.Kind {
	case ProtocolOAuth:
		return r.OAuth != nil && r.SAML == nil
	case ProtocolSAML:
		return r.SAML != nil && r.OAuth == nil
	}
	return false
}
