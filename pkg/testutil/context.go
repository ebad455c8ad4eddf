package testutil

import (
	"context"
	"net/http"
	"time"

	"authchain/pkg/requestcontext"
)

// WithRequestID sets the request id the RequestID middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithClient sets the client IP and User-Agent the metadata middleware would.
func WithClient(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}

// Context returns a background context carrying a fixed request time.
func Context(now time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), now)
}
