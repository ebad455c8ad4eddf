package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mssola/useragent"

	"authchain/internal/audit"
	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	dErrors "authchain/pkg/domain-errors"
	pstrings "authchain/pkg/platform/strings"
	"authchain/pkg/platform/sentinel"
)

// StartRequest carries an inbound protocol request into a new chain.
type StartRequest struct {
	Protocol  models.ProtocolRequest
	ClientIP  string
	UserAgent string
	// RetryURL restarts the attempt; normally the inbound request URL.
	RetryURL string
}

// Start creates a state for an inbound protocol request and returns the
// redirect to the login UI.
func (s *Service) Start(ctx context.Context, req StartRequest) (*models.State, *models.Response, error) {
	ctx, span := s.tracer.Start(ctx, "chain.start")
	defer span.End()

	if err := validateProtocol(req.Protocol, s.uiServer); err != nil {
		return nil, nil, err
	}

	now := s.now()
	st := &models.State{
		ID:        id.NewStateID(),
		Request:   req.Protocol,
		UIServer:  s.uiServer,
		RetryURL:  req.RetryURL,
		Client:    describeClient(req.ClientIP, req.UserAgent),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.stateTTL),
	}

	var requested []string
	switch p := req.Protocol; p.Kind {
	case models.ProtocolOAuth:
		requested = p.OAuth.ACRValues
		prompts := pstrings.SplitSpaceList(p.OAuth.Prompt)
		st.Prompt = pstrings.Contains(prompts, "login")
		st.Passive = pstrings.Contains(prompts, "none")
		st.AppID = p.OAuth.ClientID
		st.OnFinishURL = p.OAuth.RedirectURI
		st.OnCancelURL = oauthCancelURL(p.OAuth)
	case models.ProtocolSAML:
		requested = p.SAML.RequestedAuthnContext
		st.Prompt = p.SAML.ForceAuthn
		st.Passive = p.SAML.IsPassive
		st.AppID = p.SAML.Issuer
		st.OnFinishURL = p.SAML.AssertionConsumerURL
	}
	st.RequestedLevels = pstrings.DedupeAndTrim(requested)
	if len(st.RequestedLevels) == 0 {
		st.RequestedLevels = s.chain.DefaultLevels()
	}
	if len(st.RequestedLevels) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, "no authentication level requested")
	}
	if st.OnCancelURL == "" {
		st.OnCancelURL = s.defaultCancelURL
	}

	if err := s.states.Create(ctx, st); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeConflict, "state already exists")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create state")
	}

	s.logAudit(ctx, audit.EventChainStarted, st,
		"levels", st.RequestedLevels,
		"protocol", string(st.Request.Kind),
		"app_id", st.AppID,
		"passive", st.Passive,
	)
	if s.metrics != nil {
		s.metrics.IncrementStarted(string(st.Request.Kind))
	}
	return st, models.RedirectTo(s.loginURLFor(st.ID)), nil
}

func validateProtocol(p models.ProtocolRequest, ui models.UIServer) error {
	if !p.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "protocol request is required")
	}
	switch p.Kind {
	case models.ProtocolOAuth:
		if strings.TrimSpace(p.OAuth.ClientID) == "" {
			return dErrors.New(dErrors.CodeValidation, "client_id is required")
		}
		if !absoluteURL(p.OAuth.RedirectURI) {
			return dErrors.New(dErrors.CodeValidation, "redirect_uri must be an absolute URL")
		}
		if !ui.AllowsRedirect(p.OAuth.RedirectURI) {
			return dErrors.New(dErrors.CodeForbidden, "redirect_uri is not registered")
		}
	case models.ProtocolSAML:
		if strings.TrimSpace(p.SAML.ID) == "" || strings.TrimSpace(p.SAML.Issuer) == "" {
			return dErrors.New(dErrors.CodeValidation, "saml request id and issuer are required")
		}
		if !absoluteURL(p.SAML.AssertionConsumerURL) {
			return dErrors.New(dErrors.CodeValidation, "assertion consumer url must be an absolute URL")
		}
		if !ui.AllowsRedirect(p.SAML.AssertionConsumerURL) {
			return dErrors.New(dErrors.CodeForbidden, "assertion consumer url is not registered")
		}
	}
	return nil
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

func oauthCancelURL(req *models.OAuthRequest) string {
	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("error", "access_denied")
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func describeClient(ip, ua string) models.Client {
	c := models.Client{IP: ip, UserAgent: ua}
	if ua == "" {
		return c
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	c.Browser = strings.TrimSpace(name + " " + version)
	c.OS = parsed.OS()
	c.Mobile = parsed.Mobile()
	return c
}

func (s *Service) loginURLFor(stateID id.StateID) string {
	base := s.loginURL
	if base == "" {
		base = "/login"
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Sprintf("%s?state=%s", base, stateID)
	}
	q := u.Query()
	q.Set("state", stateID.String())
	u.RawQuery = q.Encode()
	return u.String()
}
