package authtype

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"authchain/internal/chain/models"
	"authchain/internal/chain/subject"
	"authchain/pkg/email"
)

const TypeOTPMail = "otpmail"

// ModuleState keys written by OTPMail.
const (
	otpHashKey    = "otp_hash"
	otpExpiresKey = "otp_expires"
	otpSeedKey    = "seed"
)

const (
	msgOTPIncorrect = "The provided otp is incorrect."
	msgOTPExpired   = "The provided otp has expired."
	msgOTPNoUser    = "We could not find a user with this attribute."
)

type OTPMailConfig struct {
	// Length and TTL override the service defaults when set.
	Length   int           `yaml:"length"`
	TTL      time.Duration `yaml:"ttl"`
	Template string        `yaml:"template"`
}

func (c *OTPMailConfig) Validate() error {
	if c.Length != 0 && (c.Length < 4 || c.Length > 32) {
		return fmt.Errorf("otp length must be between 4 and 32, got %d", c.Length)
	}
	if c.TTL < 0 {
		return errors.New("otp ttl must not be negative")
	}
	return nil
}

// OTPMail mails a one-time code and checks it on resubmission.
type OTPMail struct {
	length   int
	ttl      time.Duration
	template string
	deps     Dependencies
}

func NewOTPMail(cfg *OTPMailConfig, deps Dependencies) (*OTPMail, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if len(deps.OTP.Secret) == 0 {
		return nil, errors.New("otp secret is required")
	}
	o := &OTPMail{
		length:   deps.OTP.Length,
		ttl:      deps.OTP.TTL,
		template: email.TemplateOneTimePassword,
		deps:     deps,
	}
	if cfg.Length > 0 {
		o.length = cfg.Length
	}
	if cfg.TTL > 0 {
		o.ttl = cfg.TTL
	}
	if cfg.Template != "" {
		o.template = cfg.Template
	}
	if o.length <= 0 {
		o.length = 7
	}
	if o.ttl <= 0 {
		o.ttl = 10 * time.Minute
	}
	return o, nil
}

func (o *OTPMail) Type() string                       { return TypeOTPMail }
func (o *OTPMail) IsEnabled(subj *models.Subject) bool { return enabledForMail(subj) }
func (o *OTPMail) IsPassive() bool                     { return false }

func (o *OTPMail) Process(ctx context.Context, req *Request, state *models.State, module *Module) (*models.ModuleResult, error) {
	pending := pendingFor(state, module)
	if req.Has("otp") {
		return o.verify(ctx, req, state, module, pending)
	}
	return o.send(ctx, req, state, module)
}

func (o *OTPMail) send(ctx context.Context, req *Request, state *models.State, module *Module) (*models.ModuleResult, error) {
	now := o.deps.now()
	base := module.BaseResult(now)

	if state.Subject != nil && !state.Subject.IsEmpty() && !state.Subject.HasEmail() {
		return rejected(base, models.ErrorResponse(http.StatusOK, msgNoEmail)), nil
	}
	u, err := o.deps.Subjects.Resolve(ctx, state.Subject, req.Get("username"))
	if errors.Is(err, subject.ErrUnknownUser) {
		return rejected(base, models.ErrorResponse(http.StatusUnprocessableEntity, msgOTPNoUser)), nil
	}
	if err != nil {
		return nil, err
	}
	if u.Email == "" {
		return rejected(base, models.ErrorResponse(http.StatusOK, msgNoEmail)), nil
	}
	if u.ID.IsNil() {
		return rejected(base, models.ErrorResponse(http.StatusOK, msgNoUserID)), nil
	}

	code, err := generateOTP(o.length)
	if err != nil {
		return nil, err
	}
	seed := uuid.NewString()

	first, last := email.DeriveNameFromEmail(u.Email)
	msg := email.Message{
		Recipient: u.Email,
		Template:  o.template,
		Locale:    localeFor(req, u.PreferredLanguage),
		Variables: map[string]string{
			"otp":        code,
			"first_name": first,
			"last_name":  last,
		},
	}
	if err := o.deps.Mailer.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("send otp mail: %w", err)
	}

	base.Subject = o.deps.Subjects.With(u, module.Type, module.ID)
	base.ModuleState = map[string]string{
		models.ModuleStateKey: models.ModuleStateSent,
		otpHashKey:            hashOTP(o.deps.OTP.Secret, state.ID.String(), seed, code),
		otpExpiresKey:         now.Add(o.ttl).UTC().Format(time.RFC3339Nano),
		otpSeedKey:            seed,
	}
	base.Response = models.JSON(http.StatusOK, map[string]any{
		"user_id_hashed": hashUserID(o.deps.OTP.Secret, u.ID.String()),
		"seed":           seed,
	})
	return base, nil
}

func (o *OTPMail) verify(ctx context.Context, req *Request, state *models.State, module *Module, pending *models.ModuleResult) (*models.ModuleResult, error) {
	now := o.deps.now()
	base := module.BaseResult(now)

	if pending == nil || pending.StateValue(models.ModuleStateKey) != models.ModuleStateSent {
		return rejected(base, models.ErrorResponse(http.StatusUnprocessableEntity, msgOTPIncorrect)), nil
	}
	if o.deps.Attempts != nil {
		resp, err := checkAttempts(ctx, o.deps, state, module)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return rejected(base, resp), nil
		}
	}

	expires, err := time.Parse(time.RFC3339Nano, pending.StateValue(otpExpiresKey))
	if err != nil || !now.Before(expires) {
		return rejected(base, models.ErrorResponse(http.StatusUnprocessableEntity, msgOTPExpired)), nil
	}
	if !verifyOTP(o.deps.OTP.Secret, state.ID.String(), pending.StateValue(otpSeedKey), req.Get("otp"), pending.StateValue(otpHashKey)) {
		return rejected(base, models.ErrorResponse(http.StatusUnprocessableEntity, msgOTPIncorrect)), nil
	}

	if o.deps.Attempts != nil {
		if err := o.deps.Attempts.Reset(ctx, state.ID.String(), module.ID); err != nil {
			o.deps.logger().WarnContext(ctx, "failed to reset otp attempts", "module_id", module.ID, "error", err)
		}
	}

	base.Completed = true
	base.Prompted = true
	base.Subject = pending.Subject.Clone()
	if req.Get("remember") != "true" {
		base.RememberAlways = false
		base.RememberForSession = false
	}
	return base, nil
}
