package authtype

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"authchain/internal/chain/models"
	"authchain/internal/chain/subject"
	"authchain/internal/chain/token"
	"authchain/pkg/email"
)

const (
	msgNoEmail      = "No email address is known for this user"
	msgNoUserID     = "No user id is known for this user"
	msgUserNotFound = "User is not found"
)

// pendingFor returns the incomplete result when it belongs to module.
func pendingFor(state *models.State, module *Module) *models.ModuleResult {
	if state.Incomplete == nil || state.Incomplete.ModuleID != module.ID {
		return nil
	}
	return state.Incomplete
}

// enabledForMail reports whether a mail step can reach subj.
func enabledForMail(subj *models.Subject) bool {
	return subj == nil || subj.IsEmpty() || subj.HasEmail()
}

// rejected builds a result that surfaces resp and changes nothing.
func rejected(base *models.ModuleResult, resp *models.Response) *models.ModuleResult {
	base.Response = resp
	return base
}

// sendLink resolves the user, mails a continuation link and suspends the
// step until the link is opened. Returns a rejected result when the user
// cannot be reached.
func sendLink(ctx context.Context, deps Dependencies, req *Request, state *models.State, module *Module, template string) (*models.ModuleResult, error) {
	base := module.BaseResult(deps.now())
	if deps.Links == nil {
		return nil, errors.New("link issuer is not configured")
	}

	u, err := deps.Subjects.Resolve(ctx, state.Subject, req.Get("username"))
	if errors.Is(err, subject.ErrUnknownUser) {
		return rejected(base, models.ErrorResponse(http.StatusUnprocessableEntity, msgUserNotFound)), nil
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

	raw, claims, err := deps.Links.Issue(state.ID, module.ID, u.ID.String())
	if err != nil {
		return nil, err
	}
	link, err := callbackLink(deps.CallbackURL, raw)
	if err != nil {
		return nil, err
	}

	first, last := email.DeriveNameFromEmail(u.Email)
	msg := email.Message{
		Recipient: u.Email,
		Template:  template,
		Locale:    localeFor(req, u.PreferredLanguage),
		Variables: map[string]string{
			"link":       link,
			"first_name": first,
			"last_name":  last,
		},
	}
	if err := deps.Mailer.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("send %s mail: %w", template, err)
	}

	base.Subject = deps.Subjects.With(u, module.Type, module.ID)
	base.CallbackID = claims.ID
	base.ModuleState = map[string]string{models.ModuleStateKey: models.ModuleStateSent}
	base.Response = models.JSON(http.StatusOK, map[string]any{
		"sent_to": email.MaskAddress(u.Email),
	})
	return base, nil
}

// awaitingLink answers a resubmission while the link is still unopened.
func awaitingLink(deps Dependencies, pending *models.ModuleResult, module *Module) *models.ModuleResult {
	body := map[string]any{"pending": true}
	if pending.Subject != nil && pending.Subject.Email != "" {
		body["sent_to"] = email.MaskAddress(pending.Subject.Email)
	}
	return rejected(module.BaseResult(deps.now()), models.JSON(http.StatusOK, body))
}

// checkCallbackSubject binds the token's subject header to the user the
// link was mailed to.
func checkCallbackSubject(pending *models.ModuleResult, claims *token.Claims) error {
	if pending == nil || pending.Subject == nil || pending.Subject.UserID == "" {
		return models.NewChainError(models.KindStateAlreadyConsumed, "no link is pending", nil)
	}
	if claims.SubjectID != pending.Subject.UserID {
		return models.NewChainError(models.KindTokenInvalid, "the link was issued for another user", nil)
	}
	return nil
}

func callbackLink(base, raw string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	q.Set("token", raw)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func localeFor(req *Request, preferred string) string {
	if preferred != "" {
		return preferred
	}
	if req != nil {
		return req.Locale
	}
	return ""
}
