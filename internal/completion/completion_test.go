package completion

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authchain/internal/chain/models"
	"authchain/internal/chain/token"
	"authchain/internal/completion/store/authcode"
	dErrors "authchain/pkg/domain-errors"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func oauthState() *models.State {
	return &models.State{
		Request: models.NewOAuthProtocolRequest(&models.OAuthRequest{
			ClientID:    "app",
			RedirectURI: "https://app.example.com/cb",
			State:       "xyz",
			Scopes:      []string{"openid"},
		}),
		Subject:         &models.Subject{UserID: "user-1", Email: "alice@example.com"},
		RequestedLevels: []string{"1"},
		Results:         []models.ModuleResult{{ModuleID: "pw", Level: "1", Completed: true}},
	}
}

func TestOAuthCompleteIssuesRedeemableCode(t *testing.T) {
	ctx := context.Background()
	codes := authcode.NewInMemoryStore()
	oauth := NewOAuthCompleter(codes, WithOAuthClock(clock))
	d := NewDispatcher(oauth, nil)

	resp, err := d.Complete(ctx, oauthState())
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.Status)

	loc, err := url.Parse(resp.Redirect)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	record, err := oauth.Redeem(ctx, code, "https://app.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, []string{"1"}, record.Levels)

	_, err = oauth.Redeem(ctx, code, "https://app.example.com/cb")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestOAuthReturnError(t *testing.T) {
	d := NewDispatcher(NewOAuthCompleter(authcode.NewInMemoryStore()), nil)

	tests := []struct {
		name  string
		cause error
		want  string
	}{
		{name: "passive", cause: models.NewChainError(models.KindPassiveAuthRequired, "", nil), want: "login_required"},
		{name: "unsatisfiable", cause: models.NewChainError(models.KindChainUnsatisfiable, "", nil), want: "access_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := d.ReturnError(context.Background(), oauthState(), tt.cause)
			require.NoError(t, err)
			loc, err := url.Parse(resp.Redirect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.Query().Get("error"))
			assert.Equal(t, "xyz", loc.Query().Get("state"))
		})
	}
}

func TestOAuthCompleteRequiresUserID(t *testing.T) {
	st := oauthState()
	st.Subject = &models.Subject{Email: "alice@example.com"}
	_, err := NewDispatcher(NewOAuthCompleter(authcode.NewInMemoryStore()), nil).Complete(context.Background(), st)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestSAMLHandoff(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys, err := token.NewKeySet("k1", key)
	require.NoError(t, err)
	saml := NewSAMLCompleter(keys, "https://idp.example.com/saml/continue", "authchain", WithSAMLClock(clock))
	d := NewDispatcher(nil, saml)

	st := oauthState()
	st.Request = models.NewSAMLProtocolRequest(&models.SAMLRequest{
		ID:                   "_req1",
		Issuer:               "https://sp.example.com",
		AssertionConsumerURL: "https://sp.example.com/acs",
		RelayState:           "relay-1",
	})

	parse := func(resp *models.Response) *HandoffClaims {
		loc, err := url.Parse(resp.Redirect)
		require.NoError(t, err)
		assert.Equal(t, "relay-1", loc.Query().Get("RelayState"))
		claims := &HandoffClaims{}
		_, err = jwt.ParseWithClaims(loc.Query().Get("handoff"), claims, keys.Keyfunc,
			jwt.WithTimeFunc(clock), jwt.WithAudience("https://sp.example.com"))
		require.NoError(t, err)
		return claims
	}

	resp, err := d.Complete(context.Background(), st)
	require.NoError(t, err)
	claims := parse(resp)
	assert.Equal(t, StatusSuccess, claims.Status)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "_req1", claims.InResponseTo)
	assert.Equal(t, []string{"1"}, claims.AuthnContext)

	resp, err = d.ReturnError(context.Background(), st, models.ErrPassiveAuthRequired)
	require.NoError(t, err)
	assert.Equal(t, StatusNoPassive, parse(resp).Status)

	short := NewDispatcher(nil, NewSAMLCompleter(keys, "https://idp.example.com/saml/continue", "authchain",
		WithSAMLClock(clock), WithHandoffTTL(10*time.Second), WithHandoffTTL(0)))
	resp, err = short.Complete(context.Background(), st)
	require.NoError(t, err)
	claims = parse(resp)
	assert.WithinDuration(t, clock().Add(10*time.Second), claims.ExpiresAt.Time, time.Second)
}

func TestDispatcherUnknownProtocol(t *testing.T) {
	st := oauthState()
	st.Request = models.ProtocolRequest{Kind: "ws-fed"}
	_, err := NewDispatcher(nil, nil).Complete(context.Background(), st)
	assert.Error(t, err)
}
