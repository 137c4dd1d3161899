package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID        contextKey = "trace_id"
	keyRequestID      contextKey = "request_id"
	keyUserID         contextKey = "user_id"
	keyConversationID contextKey = "conversation_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the HTTP request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithUserID adds the authenticated subject to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts the authenticated subject from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithConversationID adds conversation ID to context.
func WithConversationID(ctx context.Context, id ConversationID) context.Context {
	return context.WithValue(ctx, keyConversationID, id)
}

// ConversationIDFrom extracts conversation ID from context.
func ConversationIDFrom(ctx context.Context) (ConversationID, bool) {
	v, ok := ctx.Value(keyConversationID).(ConversationID)
	return v, ok && v != ""
}
