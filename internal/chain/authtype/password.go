package authtype

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"authchain/internal/chain/models"
	"authchain/internal/chain/subject"
)

const TypePassword = "password"

type PasswordConfig struct {
	// LimitAttempts counts submissions against the per-state attempt limiter.
	LimitAttempts bool `yaml:"limit_attempts"`
}

func (c *PasswordConfig) Validate() error { return nil }

// Password checks a username and bcrypt password hash.
type Password struct {
	cfg  PasswordConfig
	deps Dependencies
}

func NewPassword(cfg *PasswordConfig, deps Dependencies) (*Password, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &Password{cfg: *cfg, deps: deps}, nil
}

func (p *Password) Type() string                    { return TypePassword }
func (p *Password) IsEnabled(_ *models.Subject) bool { return true }
func (p *Password) IsPassive() bool                  { return false }

func (p *Password) Process(ctx context.Context, req *Request, state *models.State, module *Module) (*models.ModuleResult, error) {
	base := module.BaseResult(p.deps.now())
	username, password := req.Get("username"), req.Input["password"]

	if username == "" && password == "" {
		return rejected(base, models.JSON(http.StatusOK, map[string]any{
			"fields": []string{"username", "password"},
		})), nil
	}
	knownSubject := state.Subject != nil && state.Subject.Identifier() != ""
	if password == "" || (username == "" && !knownSubject) {
		return rejected(base, models.ErrorResponse(http.StatusBadRequest, "You must provide a username and password")), nil
	}

	if p.cfg.LimitAttempts && p.deps.Attempts != nil {
		resp, err := checkAttempts(ctx, p.deps, state, module)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return rejected(base, resp), nil
		}
	}

	u, err := p.deps.Subjects.Resolve(ctx, state.Subject, username)
	if errors.Is(err, subject.ErrUnknownUser) {
		return rejected(base, models.ErrorResponse(http.StatusUnprocessableEntity, "The provided credentials are incorrect.")), nil
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return rejected(base, models.ErrorResponse(http.StatusUnprocessableEntity, "The provided credentials are incorrect.")), nil
	}

	if p.cfg.LimitAttempts && p.deps.Attempts != nil {
		if err := p.deps.Attempts.Reset(ctx, state.ID.String(), module.ID); err != nil {
			p.deps.logger().WarnContext(ctx, "failed to reset attempts", "module_id", module.ID, "error", err)
		}
	}

	base.Completed = true
	base.Prompted = true
	base.Subject = p.deps.Subjects.With(u, module.Type, module.ID)
	return base, nil
}

// checkAttempts maps an exhausted attempt budget to a 429 response. Only
// store failures are returned as errors.
func checkAttempts(ctx context.Context, deps Dependencies, state *models.State, module *Module) (*models.Response, error) {
	err := deps.Attempts.Check(ctx, state.ID.String(), module.ID)
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, models.ErrTooManyAttempts) {
		var ce *models.ChainError
		errors.As(err, &ce)
		return models.ErrorResponse(http.StatusTooManyRequests, ce.Message), nil
	}
	return nil, err
}
