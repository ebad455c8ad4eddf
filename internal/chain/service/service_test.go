package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"authchain/internal/audit"
	auditmemory "authchain/internal/audit/store/memory"
	"authchain/internal/chain/authtype"
	"authchain/internal/chain/chainconfig"
	chainmetrics "authchain/internal/chain/metrics"
	"authchain/internal/chain/models"
	"authchain/internal/chain/store/state"
	"authchain/internal/chain/store/user"
	"authchain/internal/chain/subject"
	"authchain/internal/chain/token"
	"authchain/internal/completion"
	"authchain/internal/completion/store/authcode"
	id "authchain/pkg/domain"
	dErrors "authchain/pkg/domain-errors"
	"authchain/pkg/email"
	"authchain/pkg/platform/sentinel"
)

// scriptedType is an AuthType whose results are supplied by the test.
type scriptedType struct {
	passive  bool
	disabled bool
	process  func(req *authtype.Request, st *models.State, m *authtype.Module) *models.ModuleResult
	seen     []*authtype.Request
}

func (t *scriptedType) Type() string                   { return "scripted" }
func (t *scriptedType) IsEnabled(*models.Subject) bool { return !t.disabled }
func (t *scriptedType) IsPassive() bool                { return t.passive }

func (t *scriptedType) Process(_ context.Context, req *authtype.Request, st *models.State, m *authtype.Module) (*models.ModuleResult, error) {
	t.seen = append(t.seen, req)
	return t.process(req, st, m), nil
}

func accepting(userID string) func(*authtype.Request, *models.State, *authtype.Module) *models.ModuleResult {
	return func(_ *authtype.Request, _ *models.State, m *authtype.Module) *models.ModuleResult {
		return &models.ModuleResult{ModuleID: m.ID, Level: m.Level, Completed: true, Subject: &models.Subject{UserID: userID}}
	}
}

var serviceKey *rsa.PrivateKey

type ChainServiceSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	states     *state.InMemoryStore
	codes      *authcode.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	codec      *token.Codec
	users      *user.InMemoryUserStore
	mailer     *email.RecordingSender
	deps       authtype.Dependencies
	alice      *models.User
}

func TestChainServiceSuite(t *testing.T) {
	suite.Run(t, new(ChainServiceSuite))
}

func (s *ChainServiceSuite) SetupSuite() {
	if serviceKey == nil {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		s.Require().NoError(err)
		serviceKey = key
	}
}

func (s *ChainServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.states = state.NewInMemoryStore(state.WithMemoryClock(clock))
	s.codes = authcode.NewInMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()

	keys, err := token.NewKeySet("k1", serviceKey)
	s.Require().NoError(err)
	s.codec, err = token.NewCodec(keys, "authchain", "authchain-callback", token.WithClock(clock))
	s.Require().NoError(err)

	s.users = user.NewInMemoryUserStore()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	s.Require().NoError(err)
	s.alice = &models.User{ID: id.NewUserID(), Email: "alice@example.com", Username: "alice", PasswordHash: string(hash)}
	s.Require().NoError(s.users.Save(s.ctx, s.alice))

	s.mailer = email.NewRecordingSender()
	s.deps = authtype.Dependencies{
		Subjects:    subject.NewStore(s.users),
		Mailer:      s.mailer,
		Links:       s.codec,
		CallbackURL: "https://login.example.com/authchain/callback",
		Now:         clock,
	}
}

func (s *ChainServiceSuite) newService(modules []*authtype.Module, defaults ...string) *Service {
	chain, err := chainconfig.New(modules, defaults)
	s.Require().NoError(err)
	clock := func() time.Time { return s.now }
	dispatcher := completion.NewDispatcher(completion.NewOAuthCompleter(s.codes, completion.WithOAuthClock(clock)), nil)
	return New(s.states, chain, dispatcher, s.codec,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(audit.NewPublisher(s.auditStore, audit.WithClock(clock))),
		WithMetrics(chainmetrics.NewWithRegisterer(prometheus.NewRegistry())),
		WithClock(clock),
		WithLoginURL("https://login.example.com/ui"),
		WithUIServer(models.UIServer{RedirectURIs: []string{"https://app.example.com/cb", "https://sp.example.com/acs"}}),
	)
}

func scripted(moduleID, level string, order int, at authtype.AuthType) *authtype.Module {
	return &authtype.Module{ID: moduleID, Type: at.Type(), Order: order, Level: level, Active: true, AuthType: at}
}

func (s *ChainServiceSuite) start(svc *Service, levels []string, prompt string) *models.State {
	st, resp, err := svc.Start(s.ctx, StartRequest{
		Protocol: models.NewOAuthProtocolRequest(&models.OAuthRequest{
			ClientID:    "app",
			RedirectURI: "https://app.example.com/cb",
			State:       "xyz",
			ACRValues:   levels,
			Prompt:      prompt,
		}),
		RetryURL:  "https://login.example.com/oauth/authorize?client_id=app",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	})
	s.Require().NoError(err)
	s.Require().Equal(http.StatusFound, resp.Status)
	return st
}

func (s *ChainServiceSuite) stored(stateID id.StateID) *models.State {
	st, err := s.states.Load(s.ctx, stateID)
	s.Require().NoError(err)
	return st
}

func (s *ChainServiceSuite) requireRedirectQuery(resp *models.Response, key string) string {
	s.Require().NotNil(resp)
	u, err := url.Parse(resp.Redirect)
	s.Require().NoError(err)
	return u.Query().Get(key)
}

func (s *ChainServiceSuite) TestStartStoresStateAndRedirectsToLogin() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})

	st, resp, err := svc.Start(s.ctx, StartRequest{
		Protocol: models.NewOAuthProtocolRequest(&models.OAuthRequest{
			ClientID:    "app",
			RedirectURI: "https://app.example.com/cb",
			ACRValues:   []string{" 1 ", "1"},
			Prompt:      "login",
		}),
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	})
	s.Require().NoError(err)
	s.Equal([]string{"1"}, st.RequestedLevels)
	s.True(st.Prompt)
	s.False(st.Passive)
	s.Equal("app", st.AppID)
	s.Contains(st.OnCancelURL, "error=access_denied")
	s.Contains(st.Client.Browser, "Chrome")
	s.Equal(st.ID.String(), s.requireRedirectQuery(resp, "state"))

	loaded := s.stored(st.ID)
	s.Equal(st.RequestedLevels, loaded.RequestedLevels)
	s.Equal([]string{string(audit.EventChainStarted)}, s.auditStore.Actions())
}

func (s *ChainServiceSuite) TestStartFallsBackToDefaultLevels() {
	svc := s.newService([]*authtype.Module{
		scripted("a", "1", 10, &scriptedType{process: accepting("u1")}),
		scripted("b", "2", 20, &scriptedType{process: accepting("u1")}),
	}, "2")
	st := s.start(svc, nil, "")
	s.Equal([]string{"2"}, st.RequestedLevels)
}

func (s *ChainServiceSuite) TestStartRejectsInvalidProtocol() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})

	_, _, err := svc.Start(s.ctx, StartRequest{Protocol: models.ProtocolRequest{Kind: models.ProtocolOAuth}})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, _, err = svc.Start(s.ctx, StartRequest{Protocol: models.NewOAuthProtocolRequest(&models.OAuthRequest{ClientID: "app", RedirectURI: "/relative"})})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ChainServiceSuite) TestStartRejectsUnregisteredRedirect() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})

	_, _, err := svc.Start(s.ctx, StartRequest{Protocol: models.NewOAuthProtocolRequest(&models.OAuthRequest{
		ClientID:    "app",
		RedirectURI: "https://evil.example.net/steal",
		State:       "xyz",
	})})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, _, err = svc.Start(s.ctx, StartRequest{Protocol: models.NewSAMLProtocolRequest(&models.SAMLRequest{
		ID:                   "_req1",
		Issuer:               "https://sp.example.com",
		AssertionConsumerURL: "https://evil.example.net/acs",
	})})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	svc.uiServer.RedirectURIs = nil
	_, _, err = svc.Start(s.ctx, StartRequest{Protocol: models.NewOAuthProtocolRequest(&models.OAuthRequest{
		ClientID:    "app",
		RedirectURI: "https://app.example.com/cb",
	})})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "an empty allow list admits no redirect")
}

func (s *ChainServiceSuite) TestStartAcceptsRegisteredAssertionConsumer() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})

	st, resp, err := svc.Start(s.ctx, StartRequest{Protocol: models.NewSAMLProtocolRequest(&models.SAMLRequest{
		ID:                   "_req1",
		Issuer:               "https://sp.example.com",
		AssertionConsumerURL: "https://sp.example.com/acs",
	})})
	s.Require().NoError(err)
	s.Equal(http.StatusFound, resp.Status)
	s.Equal("https://sp.example.com/acs", s.stored(st.ID).OnFinishURL)
}

func (s *ChainServiceSuite) TestSpansGoToInjectedTracer() {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})
	WithTracer(provider.Tracer("authchain/chain"))(svc)
	WithTracer(nil)(svc)

	s.start(svc, []string{"1"}, "")

	ended := recorder.Ended()
	s.Require().NotEmpty(ended)
	s.Equal("chain.start", ended[0].Name())
}

func (s *ChainServiceSuite) TestModulesRunInChainOrderAndCompleteOnce() {
	var order []string
	record := func(moduleID string) func(*authtype.Request, *models.State, *authtype.Module) *models.ModuleResult {
		return func(req *authtype.Request, st *models.State, m *authtype.Module) *models.ModuleResult {
			order = append(order, moduleID)
			return accepting("u1")(req, st, m)
		}
	}
	svc := s.newService([]*authtype.Module{
		scripted("second", "2", 20, &scriptedType{process: record("second")}),
		scripted("first", "1", 10, &scriptedType{process: record("first")}),
	})
	st := s.start(svc, []string{"1", "2"}, "")

	out, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().NoError(err)
	s.True(out.Completed)
	s.Equal([]string{"first", "second"}, order)
	s.NotEmpty(s.requireRedirectQuery(out.Response, "code"))
	s.Equal("xyz", s.requireRedirectQuery(out.Response, "state"))

	_, err = s.states.Load(s.ctx, st.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.ErrorIs(err, models.ErrUnknownState)

	events, err := s.auditStore.ListByState(s.ctx, st.ID.String())
	s.Require().NoError(err)
	completed := 0
	for _, e := range events {
		if e.Action == string(audit.EventChainCompleted) {
			completed++
			s.Equal([]string{"1", "2"}, e.Levels)
			s.Equal("u1", e.UserID)
		}
	}
	s.Equal(1, completed)
}

func (s *ChainServiceSuite) TestCompleteRunsAtMostOncePerVersion() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})
	st := s.start(svc, []string{"1"}, "")
	current, err := s.states.Execute(s.ctx, st.ID, state.AnyVersion, func(cur *models.State) error {
		return cur.Accept(&models.ModuleResult{ModuleID: "a", Level: "1", Completed: true, Subject: &models.Subject{UserID: "u1"}})
	})
	s.Require().NoError(err)
	out, err := svc.complete(s.ctx, current)
	s.Require().NoError(err)
	s.True(out.Completed)
	_, err = svc.complete(s.ctx, current)
	s.ErrorIs(err, models.ErrUnknownState)
}

func (s *ChainServiceSuite) TestAcceptedResponseIsSurfacedBeforeContinuing() {
	first := &scriptedType{process: func(_ *authtype.Request, _ *models.State, m *authtype.Module) *models.ModuleResult {
		return &models.ModuleResult{ModuleID: m.ID, Level: m.Level, Completed: true,
			Subject: &models.Subject{UserID: "u1"}, Response: models.JSON(http.StatusOK, map[string]any{"welcome": true})}
	}}
	second := &scriptedType{process: accepting("u1")}
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, first), scripted("b", "2", 20, second)})
	st := s.start(svc, []string{"1", "2"}, "")

	out, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().NoError(err)
	s.False(out.Completed)
	s.Equal(true, out.Response.Body["welcome"])
	s.Empty(second.seen)
	s.Equal([]string{"1"}, s.stored(st.ID).ApprovedLevels())

	out, err = svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().NoError(err)
	s.True(out.Completed)
	s.Len(second.seen, 1)
}

func (s *ChainServiceSuite) TestContinuationCarriesNoInput() {
	second := &scriptedType{process: accepting("u1")}
	svc := s.newService([]*authtype.Module{
		scripted("a", "1", 10, &scriptedType{process: accepting("u1")}),
		scripted("b", "2", 20, second),
	})
	st := s.start(svc, []string{"1", "2"}, "")

	req := authtype.NewRequest(map[string]string{"username": "alice"})
	req.Origin = "https://login.example.com"
	_, err := svc.ProcessStep(s.ctx, st.ID, req)
	s.Require().NoError(err)
	s.Require().Len(second.seen, 1)
	s.False(second.seen[0].Has("username"))
	s.Equal("https://login.example.com", second.seen[0].Origin)
}

func (s *ChainServiceSuite) TestSuspendThenResubmitResumesSameModule() {
	calls := 0
	otp := &scriptedType{process: func(req *authtype.Request, st *models.State, m *authtype.Module) *models.ModuleResult {
		calls++
		if st.Incomplete == nil {
			return &models.ModuleResult{ModuleID: m.ID, Level: m.Level, ModuleState: map[string]string{"state": "sent"},
				Response: models.JSON(http.StatusOK, map[string]any{"sent": true})}
		}
		if req.Get("otp") != "1234" {
			return &models.ModuleResult{ModuleID: m.ID, Level: m.Level, Response: models.ErrorResponse(http.StatusUnprocessableEntity, "wrong")}
		}
		return accepting("u1")(req, st, m)
	}}
	svc := s.newService([]*authtype.Module{scripted("otp", "1", 10, otp)})
	st := s.start(svc, []string{"1"}, "")

	out, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().NoError(err)
	s.Equal(true, out.Response.Body["sent"])
	suspended := s.stored(st.ID)
	s.Require().NotNil(suspended.Incomplete)
	s.Equal("otp", suspended.Incomplete.ModuleID)

	out, err = svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(map[string]string{"otp": "0000"}))
	s.Require().NoError(err)
	s.Equal(http.StatusUnprocessableEntity, out.Response.Status)
	rejected := s.stored(st.ID)
	s.Equal(suspended.Version, rejected.Version)
	s.Equal(suspended.Incomplete, rejected.Incomplete)

	out, err = svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(map[string]string{"otp": "1234"}))
	s.Require().NoError(err)
	s.True(out.Completed)
	s.Equal(3, calls)
	s.Contains(s.auditStore.Actions(), string(audit.EventStepRejected))
}

func (s *ChainServiceSuite) TestPassiveChainNeedsPassiveModule() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})
	st := s.start(svc, []string{"1"}, "none")
	s.Require().True(st.Passive)

	_, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().ErrorIs(err, models.ErrPassiveAuthRequired)
	var ce *models.ChainError
	s.Require().ErrorAs(err, &ce)
	s.Equal("login_required", s.requireRedirectQuery(ce.Response, "error"))
	s.stored(st.ID)
}

func (s *ChainServiceSuite) TestPassiveModuleRunsForPassiveChain() {
	svc := s.newService([]*authtype.Module{
		scripted("interactive", "1", 10, &scriptedType{process: accepting("u1")}),
		scripted("sso", "1", 20, &scriptedType{passive: true, process: accepting("u1")}),
	})
	st := s.start(svc, []string{"1"}, "none")

	out, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().NoError(err)
	s.True(out.Completed)
}

func (s *ChainServiceSuite) TestUnsatisfiableChainReturnsProtocolError() {
	svc := s.newService([]*authtype.Module{
		scripted("a", "1", 10, &scriptedType{process: accepting("u1")}),
		scripted("b", "2", 20, &scriptedType{disabled: true, process: accepting("u1")}),
	})
	st := s.start(svc, []string{"2"}, "")

	_, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().ErrorIs(err, models.ErrChainUnsatisfiable)
	var ce *models.ChainError
	s.Require().ErrorAs(err, &ce)
	s.Equal("access_denied", s.requireRedirectQuery(ce.Response, "error"))
	s.Contains(s.auditStore.Actions(), string(audit.EventChainUnsatisfiable))
}

func (s *ChainServiceSuite) TestSubjectConflictDropsState() {
	first := &scriptedType{process: func(_ *authtype.Request, _ *models.State, m *authtype.Module) *models.ModuleResult {
		return &models.ModuleResult{ModuleID: m.ID, Level: m.Level, Completed: true,
			Subject: &models.Subject{UserID: "u1"}, Response: models.JSON(http.StatusOK, nil)}
	}}
	svc := s.newService([]*authtype.Module{
		scripted("a", "1", 10, first),
		scripted("b", "2", 20, &scriptedType{process: accepting("u2")}),
	})
	st := s.start(svc, []string{"1", "2"}, "")

	_, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().NoError(err)

	_, err = svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(nil))
	s.Require().ErrorIs(err, models.ErrSubjectConflict)
	s.True(models.IsIntegrityError(err))
	var ce *models.ChainError
	s.Require().ErrorAs(err, &ce)
	s.Equal(st.RetryURL, ce.RetryURL)

	_, err = s.states.Load(s.ctx, st.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Contains(s.auditStore.Actions(), string(audit.EventSubjectConflict))
}

func (s *ChainServiceSuite) TestStaleCommitIsStateConflict() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})
	st := s.start(svc, []string{"1"}, "")
	stale := s.stored(st.ID)

	suspend := func(cur *models.State) error {
		cur.Suspend(&models.ModuleResult{ModuleID: "a", ModuleState: map[string]string{"state": "sent"}})
		return nil
	}
	_, err := svc.commit(s.ctx, stale, suspend)
	s.Require().NoError(err)
	_, err = svc.commit(s.ctx, stale, suspend)
	s.ErrorIs(err, models.ErrStateConflict)
}

func (s *ChainServiceSuite) TestDisallowedOriginIsForbidden() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})
	svc.uiServer.AllowedOrigins = []string{"https://login.example.com"}
	st := s.start(svc, []string{"1"}, "")

	req := authtype.NewRequest(nil)
	req.Origin = "https://evil.example.com"
	_, err := svc.ProcessStep(s.ctx, st.ID, req)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ChainServiceSuite) linkModules() []*authtype.Module {
	link, err := authtype.NewMailLink(&authtype.MailLinkConfig{}, s.deps)
	s.Require().NoError(err)
	pw, err := authtype.NewPassword(&authtype.PasswordConfig{}, s.deps)
	s.Require().NoError(err)
	return []*authtype.Module{
		{ID: "link", Type: link.Type(), Order: 10, Level: "1", Active: true, AuthType: link},
		{ID: "pw", Type: pw.Type(), Order: 20, Level: "2", Active: true, AuthType: pw},
	}
}

func (s *ChainServiceSuite) mailedToken() string {
	msg, ok := s.mailer.Last()
	s.Require().True(ok)
	u, err := url.Parse(msg.Variables["link"])
	s.Require().NoError(err)
	return u.Query().Get("token")
}

func (s *ChainServiceSuite) TestCallbackResumesPendingStepOnce() {
	svc := s.newService(s.linkModules())
	st := s.start(svc, []string{"1", "2"}, "")

	out, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(map[string]string{"username": "alice"}))
	s.Require().NoError(err)
	s.Equal(http.StatusOK, out.Response.Status)
	raw := s.mailedToken()

	out, err = svc.ProcessCallback(s.ctx, raw, authtype.NewRequest(nil))
	s.Require().NoError(err)
	s.False(out.Completed)
	s.Equal(st.ID.String(), s.requireRedirectQuery(out.Response, "state"))
	resumed := s.stored(st.ID)
	s.Nil(resumed.Incomplete)
	s.Equal([]string{"1"}, resumed.ApprovedLevels())
	s.Equal(s.alice.ID.String(), resumed.Subject.UserID)

	_, err = svc.ProcessCallback(s.ctx, raw, authtype.NewRequest(nil))
	s.Require().ErrorIs(err, models.ErrStateAlreadyConsumed)
	s.True(models.IsCallbackError(err))

	out, err = svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(map[string]string{"username": "alice", "password": "correct horse"}))
	s.Require().NoError(err)
	s.True(out.Completed)

	actions := s.auditStore.Actions()
	s.Contains(actions, string(audit.EventCallbackConsumed))
	s.Contains(actions, string(audit.EventCallbackRejected))
}

func (s *ChainServiceSuite) TestCallbackRejectsTamperedToken() {
	svc := s.newService(s.linkModules())
	_, err := svc.ProcessCallback(s.ctx, "not-a-token", authtype.NewRequest(nil))
	s.ErrorIs(err, models.ErrTokenInvalid)
}

func (s *ChainServiceSuite) TestCallbackForGoneStateIsUnknown() {
	svc := s.newService(s.linkModules())
	st := s.start(svc, []string{"1", "2"}, "")
	_, err := svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(map[string]string{"username": "alice"}))
	s.Require().NoError(err)
	raw := s.mailedToken()

	_, err = svc.Cancel(s.ctx, st.ID)
	s.Require().NoError(err)

	_, err = svc.ProcessCallback(s.ctx, raw, authtype.NewRequest(nil))
	s.ErrorIs(err, models.ErrUnknownState)
}

func (s *ChainServiceSuite) TestCancelIsIdempotent() {
	svc := s.newService([]*authtype.Module{scripted("a", "1", 10, &scriptedType{process: accepting("u1")})})
	st := s.start(svc, []string{"1"}, "")

	out, err := svc.Cancel(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Equal("access_denied", s.requireRedirectQuery(out.Response, "error"))
	s.Equal("xyz", s.requireRedirectQuery(out.Response, "state"))

	out, err = svc.Cancel(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Equal("/", out.Response.Redirect)
	s.Equal(1, countOf(s.auditStore.Actions(), string(audit.EventChainCancelled)))
}

func (s *ChainServiceSuite) TestDescribeReportsProgress() {
	svc := s.newService(s.linkModules())
	st := s.start(svc, []string{"1", "2"}, "")

	view, err := svc.Describe(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Require().NotNil(view.NextModule)
	s.Equal("link", view.NextModule.ID)
	s.Equal([]string{"1", "2"}, view.MissingLevels)
	s.False(view.Pending)

	_, err = svc.ProcessStep(s.ctx, st.ID, authtype.NewRequest(map[string]string{"username": "alice"}))
	s.Require().NoError(err)

	view, err = svc.Describe(s.ctx, st.ID)
	s.Require().NoError(err)
	s.True(view.Pending)
	s.Equal(models.ModuleStateSent, view.PendingState)
	s.Equal(email.MaskAddress("alice@example.com"), view.Email)

	_, err = svc.Describe(s.ctx, id.NewStateID())
	s.ErrorIs(err, models.ErrUnknownState)
}

func countOf(values []string, want string) int {
	n := 0
	for _, v := range values {
		if v == want {
			n++
		}
	}
	return n
}
