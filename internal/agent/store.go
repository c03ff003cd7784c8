package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wwwzy/BookAgent/internal/session"
)

// StateStore 按会话读写 AgentState
type StateStore interface {
	Load(ctx context.Context, conversationID string) (*AgentState, error)
	Save(ctx context.Context, conversationID string, state *AgentState) error
	Delete(ctx context.Context, conversationID string) error
}

// StateLocker 由能够在进程之间串行化同一会话的 StateStore 实现
type StateLocker interface {
	Lock(ctx context.Context, conversationID string) (unlock func(), err error)
}

// sessionStore 把状态编码为 JSON 后交给 session 后端保存
type sessionStore struct {
	backend session.Store
}

func NewStateStore(backend session.Store) StateStore {
	return &sessionStore{backend: backend}
}

func (s *sessionStore) Load(ctx context.Context, conversationID string) (*AgentState, error) {
	data, err := s.backend.Get(ctx, conversationID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", conversationID, err)
	}
	return state, nil
}

func (s *sessionStore) Save(ctx context.Context, conversationID string, state *AgentState) error {
	if state == nil {
		return errors.New("state is nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", conversationID, err)
	}
	return s.backend.Put(ctx, conversationID, data, session.Meta{
		Flow:  state.Flow.String(),
		Turns: state.userTurns(),
	})
}

func (s *sessionStore) Delete(ctx context.Context, conversationID string) error {
	return s.backend.Delete(ctx, conversationID)
}

// Lock 在后端支持时获取跨进程会话锁；进程内后端不需要额外加锁
func (s *sessionStore) Lock(ctx context.Context, conversationID string) (func(), error) {
	l, ok := s.backend.(session.Locker)
	if !ok {
		return func() {}, nil
	}
	return l.Lock(ctx, conversationID)
}
