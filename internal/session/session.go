// Package session 保存每个会话序列化后的对话状态。
// 后端只处理字节，不关心状态结构。
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound 会话不存在或已过期
var ErrNotFound = errors.New("session: not found")

// ErrLocked 会话正被其他实例处理，等待超时
var ErrLocked = errors.New("session: conversation is locked")

// Meta 为随状态一起保存的摘要信息，供存储层查询和清理使用
type Meta struct {
	Flow  string
	Turns int
}

type Store interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Put(ctx context.Context, id string, data []byte, meta Meta) error
	Delete(ctx context.Context, id string) error
}

// Locker 由支持跨进程加锁的后端实现。
// 返回的 unlock 只释放本次获得的锁。
type Locker interface {
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// Config 选择并配置会话存储后端
type Config struct {
	// Backend: memory | sqlite | redis
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	// LockTTL 为跨实例会话锁的过期时间，持锁进程崩溃后锁自动失效
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	return nil
}
