// internal/logging/context.go
package logging

import (
	"context"

	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)

	if id := InvocationIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("invocation.id", id))
	}

	if name := ProjectFromContext(ctx); name != "" {
		fields = append(fields, zap.String("project", name))
	}

	return fields
}

// Context key types
type invocationCtxKey struct{}
type projectCtxKey struct{}
type loggerCtxKey struct{}

// WithInvocationID tags every log line of one CLI run with id.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationCtxKey{}, id)
}

// InvocationIDFromContext extracts the invocation ID from context.
func InvocationIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(invocationCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithProject adds the active project name to context.
func WithProject(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, projectCtxKey{}, name)
}

// ProjectFromContext extracts the project name from context.
func ProjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(projectCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
