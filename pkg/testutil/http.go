// Package testutil builds login UI requests and checks chain responses in
// handler and end-to-end tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRequest creates a request without a body.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// NewJSONRequest creates a POST with body marshaled as JSON, the way a
// scripted login UI submits step input.
func NewJSONRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err, "marshal request body")
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewFormRequest creates a url-encoded POST, the way a browser form submits
// step input or a client redeems a code.
func NewFormRequest(t *testing.T, path string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// DoRequest serves req and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalResponse decodes the response body into a T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "decode response: %s", rr.Body.String())
	return &out
}

// AssertStatus checks the response status, printing the body on mismatch.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status, body: %s", rr.Body.String())
}

// AssertError checks the status and the "error" member of the body. Chain
// errors carry their kind there; module rejections carry the prompt text.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, status int, expected string) {
	t.Helper()
	AssertStatus(t, rr, status)
	body := UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, expected, (*body)["error"])
}

// AssertJSONHasKey checks that the body is an object holding key.
func AssertJSONHasKey(t *testing.T, rr *httptest.ResponseRecorder, key string) {
	t.Helper()
	body := UnmarshalResponse[map[string]any](t, rr)
	assert.Contains(t, *body, key)
}

// AssertRedirect checks for a browser redirect and returns its Location.
func AssertRedirect(t *testing.T, rr *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Contains(t, []int{http.StatusFound, http.StatusSeeOther}, rr.Code, "expected redirect, body: %s", rr.Body.String())
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err, "invalid Location header")
	return loc
}

// AssertJSONRedirect checks for the step API's 200 {"redirect": ...} answer
// and returns the target.
func AssertJSONRedirect(t *testing.T, rr *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	AssertStatus(t, rr, http.StatusOK)
	body := UnmarshalResponse[map[string]string](t, rr)
	target, ok := (*body)["redirect"]
	require.True(t, ok, "expected redirect in body: %s", rr.Body.String())
	loc, err := url.Parse(target)
	require.NoError(t, err, "invalid redirect target")
	return loc
}
