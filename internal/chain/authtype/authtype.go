// Package authtype defines the pluggable authentication step contract and
// the built-in steps.
//
// An AuthType never mutates chain state: every change flows through the
// ModuleResult it returns, which the orchestrator interprets.
package authtype

import (
	"context"
	"strings"
	"time"

	"authchain/internal/chain/models"
	"authchain/internal/chain/token"
)

// AuthType is one kind of authentication step.
type AuthType interface {
	Type() string
	// IsEnabled must be side-effect free.
	IsEnabled(subject *models.Subject) bool
	// IsPassive reports whether the step completes without user interaction.
	IsPassive() bool
	// Process receives a clone of the state and may be invoked repeatedly for
	// the same state. Returned errors are infrastructure failures only.
	Process(ctx context.Context, req *Request, state *models.State, module *Module) (*models.ModuleResult, error)
}

// CallbackProcessor is implemented by steps that resume from an out-of-band
// continuation link. The token is already validated and bound to state.
type CallbackProcessor interface {
	ProcessCallback(ctx context.Context, req *Request, state *models.State, module *Module, claims *token.Claims) (*models.ModuleResult, error)
}

// Module is a configured, ordered instance of an AuthType.
type Module struct {
	ID     string
	Type   string
	Order  int
	Level  string
	Active bool

	RememberAlways     bool
	RememberForSession bool

	AuthType AuthType
}

// BaseResult starts a result for this module.
func (m *Module) BaseResult(now time.Time) *models.ModuleResult {
	return &models.ModuleResult{
		ModuleID:           m.ID,
		Level:              m.Level,
		RememberAlways:     m.RememberAlways,
		RememberForSession: m.RememberForSession,
		CreatedAt:          now,
	}
}

// Request is the caller input for one dispatch.
type Request struct {
	Input     map[string]string
	Locale    string
	ClientIP  string
	UserAgent string
	Origin    string
}

func NewRequest(input map[string]string) *Request {
	if input == nil {
		input = map[string]string{}
	}
	return &Request{Input: input}
}

// Get returns the trimmed value of an input field.
func (r *Request) Get(key string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Input[key])
}

// Has reports a non-blank input field.
func (r *Request) Has(key string) bool {
	return r.Get(key) != ""
}

// WithoutInput returns a request carrying the same client metadata and no
// form fields. Used when the chain advances to the next module so one
// module's input is never handed to another.
func (r *Request) WithoutInput() *Request {
	if r == nil {
		return NewRequest(nil)
	}
	return &Request{
		Input:     map[string]string{},
		Locale:    r.Locale,
		ClientIP:  r.ClientIP,
		UserAgent: r.UserAgent,
		Origin:    r.Origin,
	}
}
