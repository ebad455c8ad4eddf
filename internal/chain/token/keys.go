package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet holds the active signing key and every public key accepted for
// verification, indexed by kid. Rotated-out keys stay in Public until all
// tokens they signed have expired.
type KeySet struct {
	ActiveKID string
	Private   *rsa.PrivateKey
	Public    map[string]*rsa.PublicKey
}

// NewKeySet builds a key set whose active key also verifies.
func NewKeySet(kid string, private *rsa.PrivateKey) (*KeySet, error) {
	if strings.TrimSpace(kid) == "" {
		return nil, errors.New("signing key id is required")
	}
	if private == nil {
		return nil, errors.New("signing key is required")
	}
	return &KeySet{
		ActiveKID: kid,
		Private:   private,
		Public:    map[string]*rsa.PublicKey{kid: &private.PublicKey},
	}, nil
}

// AddVerifyKey accepts tokens signed by a previous key.
func (k *KeySet) AddVerifyKey(kid string, key *rsa.PublicKey) error {
	if strings.TrimSpace(kid) == "" {
		return errors.New("verify key id is required")
	}
	if key == nil {
		return fmt.Errorf("verify key %q is nil", kid)
	}
	k.Public[kid] = key
	return nil
}

// LoadKeySet reads a PEM-encoded RSA private key from path. An empty path
// generates an ephemeral key, which is only suitable for local development
// since outstanding links break on restart.
func LoadKeySet(kid, path string) (*KeySet, error) {
	if path == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		return NewKeySet(kid, key)
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return NewKeySet(kid, key)
}

// Sign signs claims with the active key, setting kid plus any extra headers.
func (k *KeySet) Sign(claims jwt.Claims, headers map[string]any) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = k.ActiveKID
	for name, v := range headers {
		t.Header[name] = v
	}
	return t.SignedString(k.Private)
}

// Keyfunc resolves the verification key from the kid header and pins RS256.
func (k *KeySet) Keyfunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, jwt.ErrTokenUnverifiable
	}
	kid, _ := t.Header["kid"].(string)
	key, ok := k.Public[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q: %w", kid, jwt.ErrTokenUnverifiable)
	}
	return key, nil
}
