package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore 把会话保存在进程内，过期后自动清理
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore ttl <= 0 时会话永不过期
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryStore{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x, found := s.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	data := x.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, id string, data []byte, _ Meta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.cache.Set(id, buf, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Delete(id)
	return nil
}

func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
