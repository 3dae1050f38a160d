package interceptors

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying id for outbound call correlation.
// If id is empty a fresh UUID is generated.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id carried by ctx, or "".
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// RequestIDRoundTripper adds the request correlation id to outgoing HTTP
// requests so the LLM and vector services can tie their logs back to one
// twin traversal.
type RequestIDRoundTripper struct {
	base http.RoundTripper
}

// NewRequestIDRoundTripper wraps base (http.DefaultTransport when nil).
func NewRequestIDRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RequestIDRoundTripper{base: base}
}

// RoundTrip implements http.RoundTripper.
func (r *RequestIDRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := RequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	return r.base.RoundTrip(req)
}
