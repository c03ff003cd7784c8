package session

import (
	"context"
	"errors"

	"github.com/wwwzy/BookAgent/internal/storage"
)

// SQLStore 把会话保存到 sqlite 的 conversations 表
type SQLStore struct {
	db *storage.Storage
}

func NewSQLStore(db *storage.Storage) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, id string) ([]byte, error) {
	conv, err := s.db.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrConversationNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(conv.StateJSON), nil
}

func (s *SQLStore) Put(ctx context.Context, id string, data []byte, meta Meta) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.db.SaveConversation(ctx, &storage.Conversation{
		ID:        id,
		Flow:      meta.Flow,
		StateJSON: string(data),
		Turns:     meta.Turns,
	})
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return s.db.DeleteConversation(ctx, id)
}
