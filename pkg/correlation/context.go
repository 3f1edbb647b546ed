package correlation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type contextKey string

const (
	// requestIDKey is the context key for the request ID
	requestIDKey contextKey = "request_id"
)

var (
	// ErrNoRequestID is returned when no request ID is found in the context
	ErrNoRequestID = errors.New("no request ID found in context")
)

// WithRequestID returns a new context with the given request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID from the context
func GetRequestID(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestID
	}
	return requestID, nil
}

// EnsureRequestID returns ctx unchanged when it already carries a request ID,
// otherwise a child context holding a freshly generated one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if requestID, err := GetRequestID(ctx); err == nil {
		return ctx, requestID
	}
	requestID := uuid.NewString()
	return WithRequestID(ctx, requestID), requestID
}
