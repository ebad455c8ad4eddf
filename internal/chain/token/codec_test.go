package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
)

type stubLoader struct {
	states map[id.StateID]*models.State
}

func (l *stubLoader) Load(_ context.Context, stateID id.StateID) (*models.State, error) {
	s, ok := l.states[stateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s, nil
}

type CodecSuite struct {
	suite.Suite
	key   *rsa.PrivateKey
	keys  *KeySet
	now   time.Time
	codec *Codec
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func (s *CodecSuite) SetupSuite() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.key = key
}

func (s *CodecSuite) SetupTest() {
	keys, err := NewKeySet("k1", s.key)
	s.Require().NoError(err)
	s.keys = keys
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.codec = s.newCodec(keys)
}

func (s *CodecSuite) newCodec(keys *KeySet) *Codec {
	c, err := NewCodec(keys, "authchain", "authchain-callback", WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	return c
}

func (s *CodecSuite) TestIssueSetsHeadersAndClaims() {
	stateID := id.NewStateID()
	raw, claims, err := s.codec.Issue(stateID, "forgot", "user-1")
	s.Require().NoError(err)

	parsed, _, err := jwt.NewParser().ParseUnverified(raw, &Claims{})
	s.Require().NoError(err)
	s.Equal("k1", parsed.Header["kid"])
	s.Equal("user-1", parsed.Header["sub"])
	s.Equal("RS256", parsed.Header["alg"])

	s.Equal(stateID.String(), claims.StateID)
	s.Equal("forgot", claims.ModuleID)
	s.NotEmpty(claims.ID)
	s.Equal(s.now.Add(DefaultTTL).Unix(), claims.ExpiresAt.Unix())
}

func (s *CodecSuite) TestValidateWithinWindow() {
	raw, issued, err := s.codec.Issue(id.NewStateID(), "forgot", "user-1")
	s.Require().NoError(err)

	s.now = s.now.Add(299 * time.Second)
	claims, err := s.codec.Validate(raw)
	s.Require().NoError(err)
	s.Equal(issued.ID, claims.ID)
	s.Equal("user-1", claims.SubjectID)
}

func (s *CodecSuite) TestValidateExpired() {
	raw, _, err := s.codec.Issue(id.NewStateID(), "forgot", "user-1")
	s.Require().NoError(err)

	s.now = s.now.Add(301 * time.Second)
	_, err = s.codec.Validate(raw)
	s.ErrorIs(err, models.ErrTokenExpired)
}

func (s *CodecSuite) TestValidateRejectsTampering() {
	raw, _, err := s.codec.Issue(id.NewStateID(), "forgot", "user-1")
	s.Require().NoError(err)

	parts := strings.Split(raw, ".")
	s.Require().Len(parts, 3)
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = s.codec.Validate(forged)
	s.ErrorIs(err, models.ErrTokenInvalid)
}

func (s *CodecSuite) TestValidateRejectsForeignKey() {
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	otherKeys, err := NewKeySet("k1", other)
	s.Require().NoError(err)

	raw, _, err := s.newCodec(otherKeys).Issue(id.NewStateID(), "forgot", "user-1")
	s.Require().NoError(err)

	_, err = s.codec.Validate(raw)
	s.ErrorIs(err, models.ErrTokenInvalid)
}

func (s *CodecSuite) TestValidateRejectsWrongAudience() {
	c, err := NewCodec(s.keys, "authchain", "someone-else", WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	raw, _, err := c.Issue(id.NewStateID(), "forgot", "user-1")
	s.Require().NoError(err)

	_, err = s.codec.Validate(raw)
	s.ErrorIs(err, models.ErrTokenInvalid)
}

func (s *CodecSuite) TestValidateAcceptsRotatedKey() {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	oldKeys, err := NewKeySet("k0", oldKey)
	s.Require().NoError(err)
	raw, _, err := s.newCodec(oldKeys).Issue(id.NewStateID(), "forgot", "user-1")
	s.Require().NoError(err)

	s.Require().NoError(s.keys.AddVerifyKey("k0", &oldKey.PublicKey))
	_, err = s.codec.Validate(raw)
	s.NoError(err)
}

func (s *CodecSuite) TestResolve() {
	stateID := id.NewStateID()
	raw, claims, err := s.codec.Issue(stateID, "forgot", "user-1")
	s.Require().NoError(err)

	pending := &models.State{
		ID:       stateID,
		RetryURL: "/retry",
		Incomplete: &models.ModuleResult{
			ModuleID:   "forgot",
			CallbackID: claims.ID,
		},
	}
	loader := &stubLoader{states: map[id.StateID]*models.State{stateID: pending}}

	s.Run("resolves pending state", func() {
		state, got, err := s.codec.Resolve(context.Background(), loader, raw)
		s.Require().NoError(err)
		s.Equal(stateID, state.ID)
		s.Equal(claims.ID, got.ID)
	})

	s.Run("consumed when incomplete cleared", func() {
		consumed := pending.Clone()
		consumed.Incomplete = nil
		l := &stubLoader{states: map[id.StateID]*models.State{stateID: consumed}}

		_, _, err := s.codec.Resolve(context.Background(), l, raw)
		s.ErrorIs(err, models.ErrStateAlreadyConsumed)
		var ce *models.ChainError
		s.Require().ErrorAs(err, &ce)
		s.Equal("/retry", ce.RetryURL)
	})

	s.Run("consumed when pending step expects another token", func() {
		reissued := pending.Clone()
		reissued.Incomplete.CallbackID = "other-jti"
		l := &stubLoader{states: map[id.StateID]*models.State{stateID: reissued}}

		_, _, err := s.codec.Resolve(context.Background(), l, raw)
		s.ErrorIs(err, models.ErrStateAlreadyConsumed)
	})

	s.Run("unknown state", func() {
		_, _, err := s.codec.Resolve(context.Background(), &stubLoader{states: map[id.StateID]*models.State{}}, raw)
		s.ErrorIs(err, models.ErrUnknownState)
	})
}

func (s *CodecSuite) TestNewCodecValidation() {
	_, err := NewCodec(nil, "i", "a")
	s.Error(err)
	_, err = NewCodec(s.keys, "", "a")
	s.Error(err)
}

func (s *CodecSuite) TestNilClockKeepsWallClock() {
	c, err := NewCodec(s.keys, "authchain", "authchain-callback", WithClock(nil), WithTTL(time.Minute))
	s.Require().NoError(err)

	raw, issued, err := c.Issue(id.NewStateID(), "link", "user-1")
	s.Require().NoError(err)
	s.WithinDuration(time.Now(), issued.IssuedAt.Time, 5*time.Second)

	claims, err := c.Validate(raw)
	s.Require().NoError(err)
	s.Equal(issued.ID, claims.ID)
}
