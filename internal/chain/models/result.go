package models

import (
	"maps"
	"net/http"
	"time"
)

// ModuleState keys shared by modules.
const (
	ModuleStateKey       = "state"
	ModuleStateSent      = "sent"
	ModuleStateConfirmed = "confirmed"
)

// Response is the HTTP-shaped payload surfaced to the caller.
type Response struct {
	Status   int            `json:"status"`
	Body     map[string]any `json:"body,omitempty"`
	Redirect string         `json:"redirect,omitempty"`
}

// JSON builds a response with a JSON body.
func JSON(status int, body map[string]any) *Response {
	return &Response{Status: status, Body: body}
}

// ErrorResponse builds {"error": msg} with the given status.
func ErrorResponse(status int, msg string) *Response {
	return JSON(status, map[string]any{"error": msg})
}

// RedirectTo builds a 302 response.
func RedirectTo(location string) *Response {
	return &Response{Status: http.StatusFound, Redirect: location}
}

// IsSuccess reports a 2xx/3xx status, or no response at all.
func (r *Response) IsSuccess() bool {
	return r == nil || (r.Status >= 200 && r.Status < 400)
}

// ModuleResult is the outcome of one dispatch.
type ModuleResult struct {
	ModuleID  string   `json:"module_id"`
	Level     string   `json:"level"`
	Completed bool     `json:"completed"`
	Subject   *Subject `json:"subject,omitempty"`

	// Response is surfaced while the chain is unfinished; nil falls through
	// to the next module.
	Response    *Response         `json:"response,omitempty"`
	ModuleState map[string]string `json:"module_state,omitempty"`

	// CallbackID is the jti of the continuation token that may resume this
	// result. Empty when no out-of-band callback is expected.
	CallbackID string `json:"callback_id,omitempty"`

	RememberAlways     bool      `json:"remember_always,omitempty"`
	RememberForSession bool      `json:"remember_for_session,omitempty"`
	Prompted           bool      `json:"prompted,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// IsSuspended reports a result that pauses the chain awaiting more input or a callback.
func (r *ModuleResult) IsSuspended() bool {
	return !r.Completed && len(r.ModuleState) > 0
}

// IsAccepted reports a final assertion that counts toward requested levels.
func (r *ModuleResult) IsAccepted() bool {
	return r.Completed && r.Response.IsSuccess()
}

// StateValue reads a ModuleState entry.
func (r *ModuleResult) StateValue(key string) string {
	if r == nil {
		return ""
	}
	return r.ModuleState[key]
}

// Clone returns a deep copy, nil-safe.
func (r *ModuleResult) Clone() *ModuleResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Subject = r.Subject.Clone()
	c.ModuleState = maps.Clone(r.ModuleState)
	if r.Response != nil {
		resp := *r.Response
		resp.Body = maps.Clone(r.Response.Body)
		c.Response = &resp
	}
	return &c
}
