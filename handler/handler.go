// Package handler exposes the assistant over HTTP and API Gateway. Both
// transports share one route table and one envelope format.
package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"query-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// Assistant is the use-case surface the handlers depend on.
type Assistant interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	GenerateQuery(ctx context.Context, in usecase.QueryInput) (usecase.QueryOutput, error)
}

// Options tune transport behaviour.
type Options struct {
	// StrictStatus maps error codes to 4xx/5xx instead of answering every
	// failure with 500.
	StrictStatus bool
	// AllowedOrigins feeds the CORS policy of the HTTP server. Empty means "*".
	AllowedOrigins []string
}

type Handler struct {
	svc    Assistant
	logger *zap.Logger
	opts   Options
}

func NewHandler(svc Assistant, logger *zap.Logger, opts Options) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: assistant must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Handler{svc: svc, logger: logger, opts: opts}, nil
}

type correlationKey struct{}

func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id attached to ctx by the transport, if any.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// correlationIDOrNew keeps a caller-supplied id and mints one otherwise.
func correlationIDOrNew(supplied string) string {
	if id := strings.TrimSpace(supplied); id != "" {
		return id
	}
	return uuid.NewString()
}

// headerValue looks key up case-insensitively, as API Gateway passes headers
// through with whatever casing the client used.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
