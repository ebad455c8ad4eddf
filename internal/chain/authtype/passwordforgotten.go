package authtype

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"authchain/internal/chain/models"
	"authchain/internal/chain/token"
	id "authchain/pkg/domain"
	"authchain/pkg/email"
)

const TypePasswordForgotten = "passwordforgotten"

type PasswordForgottenConfig struct {
	Template   string `yaml:"template"`
	MinLength  int    `yaml:"min_length"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

func (c *PasswordForgottenConfig) Validate() error {
	if c.MinLength < 0 {
		return fmt.Errorf("min_length must not be negative, got %d", c.MinLength)
	}
	if c.BcryptCost != 0 && (c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// PasswordForgotten resets a password in three phases: mail a link, confirm
// the link, accept a new password.
type PasswordForgotten struct {
	cfg  PasswordForgottenConfig
	deps Dependencies
}

func NewPasswordForgotten(cfg *PasswordForgottenConfig, deps Dependencies) (*PasswordForgotten, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	c := *cfg
	if c.Template == "" {
		c.Template = email.TemplateForgotten
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	return &PasswordForgotten{cfg: c, deps: deps}, nil
}

func (p *PasswordForgotten) Type() string                       { return TypePasswordForgotten }
func (p *PasswordForgotten) IsEnabled(subj *models.Subject) bool { return enabledForMail(subj) }
func (p *PasswordForgotten) IsPassive() bool                     { return false }

func (p *PasswordForgotten) Process(ctx context.Context, req *Request, state *models.State, module *Module) (*models.ModuleResult, error) {
	pending := pendingFor(state, module)
	switch pending.StateValue(models.ModuleStateKey) {
	case models.ModuleStateConfirmed:
		return p.setPassword(ctx, req, module, pending)
	case models.ModuleStateSent:
		if req.Get("resend") != "true" {
			return awaitingLink(p.deps, pending, module), nil
		}
	}
	return sendLink(ctx, p.deps, req, state, module, p.cfg.Template)
}

// ProcessCallback confirms the mailed link. The step stays incomplete until
// a new password is submitted.
func (p *PasswordForgotten) ProcessCallback(_ context.Context, _ *Request, state *models.State, module *Module, claims *token.Claims) (*models.ModuleResult, error) {
	pending := pendingFor(state, module)
	if err := checkCallbackSubject(pending, claims); err != nil {
		return nil, err
	}
	result := module.BaseResult(p.deps.now())
	result.Subject = pending.Subject.Clone()
	result.ModuleState = map[string]string{models.ModuleStateKey: models.ModuleStateConfirmed}
	return result, nil
}

func (p *PasswordForgotten) setPassword(ctx context.Context, req *Request, module *Module, pending *models.ModuleResult) (*models.ModuleResult, error) {
	base := module.BaseResult(p.deps.now())
	password := req.Input["password"]
	if password == "" {
		return rejected(base, models.ErrorResponse(http.StatusBadRequest, "You must provide a password")), nil
	}
	if len(password) < p.cfg.MinLength {
		return rejected(base, models.ErrorResponse(http.StatusBadRequest,
			fmt.Sprintf("The password must be at least %d characters", p.cfg.MinLength))), nil
	}
	userID, err := id.ParseUserID(pending.Subject.UserID)
	if err != nil {
		return nil, fmt.Errorf("pending subject: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := p.deps.Subjects.Users().UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	base.Completed = true
	base.Prompted = true
	base.Subject = pending.Subject.Clone()
	return base, nil
}
