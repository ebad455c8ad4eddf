package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"authchain/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	t.Run("prefers first X-Forwarded-For entry", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		assert.Equal(t, "203.0.113.7", ClientIPFromRequest(r))
	})

	t.Run("falls back to X-Real-IP", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Real-IP", " 198.51.100.2 ")
		assert.Equal(t, "198.51.100.2", ClientIPFromRequest(r))
	})

	t.Run("strips port and brackets from RemoteAddr", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "[::1]:5050"
		assert.Equal(t, "::1", ClientIPFromRequest(r))
	})
}

func TestPreferredLocale(t *testing.T) {
	assert.Equal(t, "nl", PreferredLocale("nl-NL,nl;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", PreferredLocale("en"))
	assert.Equal(t, "", PreferredLocale("*"))
	assert.Equal(t, "", PreferredLocale(""))
}

func TestClientMetadata(t *testing.T) {
	var gotIP, gotUA, gotLocale string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
		gotLocale = requestcontext.Locale(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/authchain/x/step", nil)
	r.Header.Set("X-Real-IP", "192.0.2.10")
	r.Header.Set("User-Agent", "test-agent")
	r.Header.Set("Accept-Language", "de-DE")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.10", gotIP)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "de", gotLocale)
}
