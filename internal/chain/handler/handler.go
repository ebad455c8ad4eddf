// Package handler exposes the chain orchestrator over HTTP: protocol entry
// points, the login UI API and continuation links.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"authchain/internal/chain/authtype"
	"authchain/internal/chain/models"
	"authchain/internal/chain/service"
	cmodels "authchain/internal/completion/models"
	id "authchain/pkg/domain"
	dErrors "authchain/pkg/domain-errors"
	"authchain/pkg/platform/httputil"
	"authchain/pkg/requestcontext"
)

// Service is the orchestrator surface used by the handler.
type Service interface {
	Start(ctx context.Context, req service.StartRequest) (*models.State, *models.Response, error)
	ProcessStep(ctx context.Context, stateID id.StateID, req *authtype.Request) (*service.Outcome, error)
	ProcessCallback(ctx context.Context, raw string, req *authtype.Request) (*service.Outcome, error)
	Cancel(ctx context.Context, stateID id.StateID) (*service.Outcome, error)
	Describe(ctx context.Context, stateID id.StateID) (*service.StateView, error)
}

// CodeRedeemer exchanges authorization codes issued on OAuth completion.
type CodeRedeemer interface {
	Redeem(ctx context.Context, code, redirectURI string) (*cmodels.AuthorizationCodeRecord, error)
}

type Handler struct {
	service Service
	codes   CodeRedeemer
	logger  *slog.Logger
}

func New(service Service, codes CodeRedeemer, logger *slog.Logger) *Handler {
	return &Handler{service: service, codes: codes, logger: logger}
}

// Register mounts the chain endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/oauth/authorize", h.HandleAuthorize)
	r.Post("/oauth/authorize", h.HandleAuthorize)
	if h.codes != nil {
		r.Post("/oauth/token", h.HandleToken)
	}
	r.Post("/saml/sso", h.HandleSAML)
	r.Get("/authchain/callback", h.HandleCallback)
	r.Get("/authchain/{stateID}", h.HandleDescribe)
	r.Post("/authchain/{stateID}/step", h.HandleStep)
	r.Post("/authchain/{stateID}/cancel", h.HandleCancel)
}

// HandleAuthorize starts a chain for an OAuth authorization request.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	req, err := oauthRequestFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// The retry URL replays the request as a GET so a restarted attempt
	// carries the same parameters.
	h.start(w, r, models.NewOAuthProtocolRequest(req), r.URL.Path+"?"+r.Form.Encode())
}

// HandleSAML starts a chain for a parsed SAML AuthnRequest.
func (h *Handler) HandleSAML(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SAMLRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.start(w, r, models.NewSAMLProtocolRequest(req.toModel()), "")
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, protocol models.ProtocolRequest, retry string) {
	ctx := r.Context()
	st, resp, err := h.service.Start(ctx, service.StartRequest{
		Protocol:  protocol,
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		RetryURL:  retry,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to start chain",
			"request_id", requestcontext.RequestID(ctx),
			"protocol", string(protocol.Kind),
			"error", err,
		)
		h.writeError(w, r, err, false)
		return
	}
	h.logger.InfoContext(ctx, "chain started",
		"request_id", requestcontext.RequestID(ctx),
		"state_id", st.ID.String(),
		"protocol", string(protocol.Kind),
	)
	h.render(w, r, resp, false)
}

// HandleDescribe reports the progress of a state to the login UI.
func (h *Handler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	stateID, ok := h.stateID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Describe(r.Context(), stateID)
	if err != nil {
		h.writeError(w, r, err, true)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleStep submits login UI input to the next module.
func (h *Handler) HandleStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stateID, ok := h.stateID(w, r)
	if !ok {
		return
	}
	input, err := stepInput(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.service.ProcessStep(ctx, stateID, h.moduleRequest(r, input))
	if err != nil {
		h.logger.WarnContext(ctx, "step failed",
			"request_id", requestcontext.RequestID(ctx),
			"state_id", stateID.String(),
			"error", err,
		)
		h.writeError(w, r, err, true)
		return
	}
	h.render(w, r, out.Response, true)
}

// HandleCallback resumes a state from a continuation link.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := strings.TrimSpace(r.URL.Query().Get("token"))
	if raw == "" {
		h.writeError(w, r, models.NewChainError(models.KindTokenInvalid, "token is required", nil), false)
		return
	}
	out, err := h.service.ProcessCallback(ctx, raw, h.moduleRequest(r, nil))
	if err != nil {
		h.logger.WarnContext(ctx, "callback rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		h.writeError(w, r, err, false)
		return
	}
	h.render(w, r, out.Response, false)
}

// HandleCancel abandons a state and returns the caller to the relying party.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	stateID, ok := h.stateID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Cancel(r.Context(), stateID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	h.render(w, r, out.Response, false)
}

// HandleToken redeems an authorization code for the identity it carries.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid_request"))
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unsupported_grant_type"))
		return
	}
	record, err := h.codes.Redeem(ctx, r.PostForm.Get("code"), r.PostForm.Get("redirect_uri"))
	if err != nil {
		h.logger.WarnContext(ctx, "code redemption failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{
		UserID:   record.UserID,
		ClientID: record.ClientID,
		Scope:    strings.Join(record.Scopes, " "),
		ACR:      record.Levels,
		Nonce:    record.Nonce,
	})
}

func (h *Handler) stateID(w http.ResponseWriter, r *http.Request) (id.StateID, bool) {
	stateID, err := id.ParseStateID(chi.URLParam(r, "stateID"))
	if err != nil {
		h.writeError(w, r, models.NewChainError(models.KindUnknownState, "unknown login attempt", err), true)
		return id.StateID{}, false
	}
	return stateID, true
}

func (h *Handler) moduleRequest(r *http.Request, input map[string]string) *authtype.Request {
	ctx := r.Context()
	req := authtype.NewRequest(input)
	req.Locale = requestcontext.Locale(ctx)
	req.ClientIP = requestcontext.ClientIP(ctx)
	req.UserAgent = requestcontext.UserAgent(ctx)
	req.Origin = r.Header.Get("Origin")
	return req
}

// render writes a module or protocol response. The login UI API receives
// redirects as JSON so the browser can navigate itself.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, resp *models.Response, api bool) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if resp.Redirect != "" {
		if api {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"redirect": resp.Redirect})
			return
		}
		status := resp.Status
		if status < 300 || status >= 400 {
			status = http.StatusFound
		}
		http.Redirect(w, r, resp.Redirect, status)
		return
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, resp.Body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, api bool) {
	var ce *models.ChainError
	if !errors.As(err, &ce) {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(r.Context(), "chain request failed",
				"request_id", requestcontext.RequestID(r.Context()),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	if ce.Response != nil {
		h.render(w, r, ce.Response, api)
		return
	}
	httputil.WriteJSON(w, statusForKind(ce.Kind), ErrorResponse{
		Error:            string(ce.Kind),
		ErrorDescription: ce.Message,
		RetryURL:         ce.RetryURL,
	})
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindUnknownState:
		return http.StatusNotFound
	case models.KindTokenExpired:
		return http.StatusGone
	case models.KindTokenInvalid:
		return http.StatusBadRequest
	case models.KindStateAlreadyConsumed, models.KindStateConflict, models.KindSubjectConflict:
		return http.StatusConflict
	case models.KindTooManyAttempts:
		return http.StatusTooManyRequests
	case models.KindPassiveAuthRequired:
		return http.StatusForbidden
	case models.KindChainUnsatisfiable:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
