package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceIDRoundtrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc")
	assert.Equal(t, "abc", GetTraceID(ctx))
	assert.Equal(t, "", GetTraceID(context.Background()))
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, GetTraceID(ctx))

	ctx2, id2 := Ensure(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, id, GetTraceID(ctx2))
}

func TestConversationID(t *testing.T) {
	ctx := WithConversationID(context.Background(), "c-1")
	assert.Equal(t, "c-1", GetConversationID(ctx))
	assert.Empty(t, GetConversationID(context.Background()))
}
