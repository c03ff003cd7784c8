package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "bookagent:"
	defaultLockTTL   = 30 * time.Second
)

// 只删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisStore 把会话保存到 redis，供多实例共享。
// 同一会话的读改写由 Lock 在实例之间串行化。
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	lockTTL   time.Duration
	acquire   retry.Retry[struct{}]
}

// NewRedisStore 连接 redis 并检查连通性
func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s := NewRedisStoreFromClient(client, cfg.KeyPrefix, cfg.TTL)
	if cfg.LockTTL > 0 {
		s.lockTTL = cfg.LockTTL
	}
	return s, nil
}

func NewRedisStoreFromClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		lockTTL:   defaultLockTTL,
		// 约 2.5s 内反复尝试，只有锁被占用才重试
		acquire: retry.New[struct{}](retry.Config{
			MaxAttempts:     8,
			InitialDelay:    20 * time.Millisecond,
			MaxDelay:        500 * time.Millisecond,
			BackoffPolicy:   retry.BackoffExponential,
			Multiplier:      2.0,
			RetryableErrors: []error{ErrLocked},
		}),
	}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + "session:" + id
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, data []byte, _ Meta) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) lockKey(id string) string {
	return s.keyPrefix + "lock:" + id
}

// Lock 用 SET NX 占用会话锁；锁被占用时退避重试，最终失败返回 ErrLocked
func (s *RedisStore) Lock(ctx context.Context, id string) (func(), error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	key := s.lockKey(id)
	token := uuid.NewString()
	_, err := s.acquire.Do(ctx, func(ctx context.Context) (struct{}, error) {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return struct{}{}, fmt.Errorf("redis lock session: %w", err)
		}
		if !ok {
			return struct{}{}, ErrLocked
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	return func() {
		// 调用方的 ctx 可能已经取消
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(releaseCtx, s.client, []string{key}, token).Err()
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
