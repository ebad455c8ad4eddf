package handler

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"authchain/internal/chain/models"
	dErrors "authchain/pkg/domain-errors"
	pstrings "authchain/pkg/platform/strings"
)

const maxStepBodyBytes = 16 << 10

// SAMLRequest is the already-parsed AuthnRequest posted by the SAML front end.
type SAMLRequest struct {
	ID                    string   `json:"id"`
	Issuer                string   `json:"issuer"`
	AssertionConsumerURL  string   `json:"assertion_consumer_url"`
	RelayState            string   `json:"relay_state"`
	ForceAuthn            bool     `json:"force_authn"`
	IsPassive             bool     `json:"is_passive"`
	RequestedAuthnContext []string `json:"requested_authn_context"`
}

func (r *SAMLRequest) Validate() error {
	r.ID = strings.TrimSpace(r.ID)
	r.Issuer = strings.TrimSpace(r.Issuer)
	if r.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	if r.Issuer == "" {
		return dErrors.New(dErrors.CodeValidation, "issuer is required")
	}
	if r.AssertionConsumerURL == "" {
		return dErrors.New(dErrors.CodeValidation, "assertion_consumer_url is required")
	}
	return nil
}

func (r *SAMLRequest) toModel() *models.SAMLRequest {
	return &models.SAMLRequest{
		ID:                    r.ID,
		Issuer:                r.Issuer,
		AssertionConsumerURL:  r.AssertionConsumerURL,
		RelayState:            r.RelayState,
		ForceAuthn:            r.ForceAuthn,
		IsPassive:             r.IsPassive,
		RequestedAuthnContext: r.RequestedAuthnContext,
	}
}

// oauthRequestFrom reads an authorization request from the query or form.
func oauthRequestFrom(r *http.Request) (*models.OAuthRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid authorization request")
	}
	get := func(key string) string { return strings.TrimSpace(r.Form.Get(key)) }
	return &models.OAuthRequest{
		ClientID:     get("client_id"),
		RedirectURI:  get("redirect_uri"),
		ResponseType: get("response_type"),
		Scopes:       pstrings.SplitSpaceList(get("scope")),
		State:        get("state"),
		Nonce:        get("nonce"),
		ACRValues:    pstrings.SplitSpaceList(get("acr_values")),
		Prompt:       get("prompt"),
		LoginHint:    get("login_hint"),
		UILocales:    get("ui_locales"),
	}, nil
}

// stepInput flattens a JSON object or a form body into step input. JSON
// values that are not strings are rendered with fmt.
func stepInput(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxStepBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		raw := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
		}
		input := make(map[string]string, len(raw))
		for k, v := range raw {
			switch val := v.(type) {
			case nil:
			case string:
				input[k] = val
			default:
				input[k] = fmt.Sprint(val)
			}
		}
		return input, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid form body")
	}
	input := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		input[k] = r.PostForm.Get(k)
	}
	return input, nil
}

// TokenResponse describes a redeemed authorization code.
type TokenResponse struct {
	UserID   string   `json:"sub"`
	ClientID string   `json:"client_id"`
	Scope    string   `json:"scope,omitempty"`
	ACR      []string `json:"acr,omitempty"`
	Nonce    string   `json:"nonce,omitempty"`
}

// ErrorResponse is the chain error envelope.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RetryURL         string `json:"retry_url,omitempty"`
}
