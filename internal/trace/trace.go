package trace

import (
	"context"

	"github.com/google/uuid"
)

type traceIDKey struct{}

type conversationKey struct{}

// WithTraceID 将 TraceID 注入 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID 从 context 获取 TraceID
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// NewTraceID 为一轮对话生成新的 TraceID
func NewTraceID() string {
	return uuid.NewString()
}

// Ensure 如果 ctx 中没有 TraceID，则生成一个并注入
func Ensure(ctx context.Context) (context.Context, string) {
	if id := GetTraceID(ctx); id != "" {
		return ctx, id
	}
	id := NewTraceID()
	return WithTraceID(ctx, id), id
}

// WithConversationID 将会话 ID 注入 context，供审计记录关联
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

func GetConversationID(ctx context.Context) string {
	if v, ok := ctx.Value(conversationKey{}).(string); ok {
		return v
	}
	return ""
}
