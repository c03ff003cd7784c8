package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/wwwzy/BookAgent/internal/storage"
)

// Open 按 cfg.Backend 构建会话存储。sqlite 后端复用 db；返回的 close 只释放本函数创建的资源。
func Open(ctx context.Context, cfg Config, db *storage.Storage) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(cfg.TTL), noop, nil
	case BackendSQLite, "":
		if db == nil {
			return nil, nil, errors.New("sqlite session backend requires storage")
		}
		return NewSQLStore(db), noop, nil
	case BackendRedis:
		rs, err := NewRedisStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
