package ui

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/wwwzy/BookAgent/internal/agent"
)

// ChatBackend 为前端依赖的编排器能力
type ChatBackend interface {
	HandleTurn(ctx context.Context, conversationID, message string) (string, error)
	Snapshot(ctx context.Context, conversationID string) (*agent.AgentState, error)
	Reset(ctx context.Context, conversationID string) error
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	// ConversationID 为空时生成新的会话
	ConversationID string
}

// ConversationIDOrNew 返回要使用的会话 ID
func (o ChatOptions) ConversationIDOrNew() string {
	if o.ConversationID != "" {
		return o.ConversationID
	}
	return uuid.NewString()
}

// IsExit 判断输入是否为退出命令
func IsExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}

const ResetCommand = "/reset"
