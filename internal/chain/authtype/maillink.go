package authtype

import (
	"context"

	"authchain/internal/chain/models"
	"authchain/internal/chain/token"
	"authchain/pkg/email"
)

const TypeMailLink = "maillink"

type MailLinkConfig struct {
	Template string `yaml:"template"`
}

func (c *MailLinkConfig) Validate() error { return nil }

// MailLink mails a sign-in link; opening it completes the step.
type MailLink struct {
	template string
	deps     Dependencies
}

func NewMailLink(cfg *MailLinkConfig, deps Dependencies) (*MailLink, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	tmpl := cfg.Template
	if tmpl == "" {
		tmpl = email.TemplateSignInLink
	}
	return &MailLink{template: tmpl, deps: deps}, nil
}

func (m *MailLink) Type() string                       { return TypeMailLink }
func (m *MailLink) IsEnabled(subj *models.Subject) bool { return enabledForMail(subj) }
func (m *MailLink) IsPassive() bool                     { return false }

func (m *MailLink) Process(ctx context.Context, req *Request, state *models.State, module *Module) (*models.ModuleResult, error) {
	pending := pendingFor(state, module)
	if pending.StateValue(models.ModuleStateKey) == models.ModuleStateSent && req.Get("resend") != "true" {
		return awaitingLink(m.deps, pending, module), nil
	}
	return sendLink(ctx, m.deps, req, state, module, m.template)
}

func (m *MailLink) ProcessCallback(_ context.Context, _ *Request, state *models.State, module *Module, claims *token.Claims) (*models.ModuleResult, error) {
	pending := pendingFor(state, module)
	if err := checkCallbackSubject(pending, claims); err != nil {
		return nil, err
	}
	result := module.BaseResult(m.deps.now())
	result.Completed = true
	result.Prompted = true
	result.Subject = pending.Subject.Clone()
	return result, nil
}
