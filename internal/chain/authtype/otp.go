package authtype

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const otpAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// generateOTP returns a random code over the base32 alphabet. 32 divides
// 256 so the modulo keeps the distribution uniform.
func generateOTP(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	var b strings.Builder
	b.Grow(length)
	for _, c := range buf {
		b.WriteByte(otpAlphabet[int(c)%len(otpAlphabet)])
	}
	return b.String(), nil
}

// hashOTP binds the code to its state and seed so a digest copied into
// another state never verifies.
func hashOTP(secret []byte, stateID, seed, code string) string {
	return keyedDigest(secret, "otp", stateID, seed, strings.ToUpper(strings.TrimSpace(code)))
}

// hashUserID is the opaque user reference returned to the login UI.
func hashUserID(secret []byte, userID string) string {
	return keyedDigest(secret, "user", userID)
}

func keyedDigest(secret []byte, parts ...string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(parts, "|")))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func verifyOTP(secret []byte, stateID, seed, code, digest string) bool {
	want := hashOTP(secret, stateID, seed, code)
	return hmac.Equal([]byte(want), []byte(digest))
}
