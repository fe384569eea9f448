package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// PrincipalKey is the context key for the resolved principal name.
	PrincipalKey contextKey = "principal"

	// ProviderKey is the context key for provider names.
	ProviderKey contextKey = "provider"

	// ModelKey is the context key for model names.
	ModelKey contextKey = "model"

	// SessionKey is the context key for session identifiers.
	SessionKey contextKey = "session"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithPrincipal adds the resolved principal name to the context.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipal retrieves the principal name from the context.
func GetPrincipal(ctx context.Context) string {
	if principal, ok := ctx.Value(PrincipalKey).(string); ok {
		return principal
	}
	return ""
}

// WithProvider adds a provider name to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// GetProvider retrieves the provider name from the context.
func GetProvider(ctx context.Context) string {
	if provider, ok := ctx.Value(ProviderKey).(string); ok {
		return provider
	}
	return ""
}

// WithModel adds a model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the model name from the context.
func GetModel(ctx context.Context) string {
	if model, ok := ctx.Value(ModelKey).(string); ok {
		return model
	}
	return ""
}

// WithSession adds a session identifier to the context.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// GetSession retrieves the session identifier from the context.
func GetSession(ctx context.Context) string {
	if session, ok := ctx.Value(SessionKey).(string); ok {
		return session
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if principal := GetPrincipal(ctx); principal != "" {
		fields = append(fields, "principal", principal)
	}
	if provider := GetProvider(ctx); provider != "" {
		fields = append(fields, "provider", provider)
	}
	if model := GetModel(ctx); model != "" {
		fields = append(fields, "model", model)
	}
	if session := GetSession(ctx); session != "" {
		fields = append(fields, "session", session)
	}

	return fields
}

// ContextLogger is a logger that automatically includes context fields.
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// NewContextLogger creates a logger that automatically includes context fields.
func NewContextLogger(logger *Logger, ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: logger.WithContext(ctx),
		ctx:    ctx,
	}
}

// Debug logs a debug message with context fields.
func (cl *ContextLogger) Debug(msg string, args ...any) {
	cl.logger.DebugContext(cl.ctx, msg, args...)
}

// Info logs an info message with context fields.
func (cl *ContextLogger) Info(msg string, args ...any) {
	cl.logger.InfoContext(cl.ctx, msg, args...)
}

// Warn logs a warning message with context fields.
func (cl *ContextLogger) Warn(msg string, args ...any) {
	cl.logger.WarnContext(cl.ctx, msg, args...)
}

// Error logs an error message with context fields.
func (cl *ContextLogger) Error(msg string, args ...any) {
	cl.logger.ErrorContext(cl.ctx, msg, args...)
}

// With creates a new context logger with additional fields.
func (cl *ContextLogger) With(args ...any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger.With(args...),
		ctx:    cl.ctx,
	}
}
