package retention

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wwwzy/BookAgent/internal/storage"
)

// Collector 按策略清理过期会话和审计记录
type Collector struct {
	cfg Config

	store *storage.Storage
}

func NewCollector(store *storage.Storage) (*Collector, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &Collector{store: store, cfg: Config{}.withDefaults()}, nil
}

// Prune 忽略 Interval，按 cfg 立即执行一轮清理
func Prune(ctx context.Context, store *storage.Storage, cfg Config) error {
	c, err := NewCollector(store)
	if err != nil {
		return err
	}
	c.cfg = cfg.withDefaults()
	return c.RunOnce(ctx, time.Now().UTC())
}

func (c *Collector) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}
	c.cfg = c.cfg.withDefaults()

	if err := c.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

// RunOnce 以 now 为基准执行一轮清理
func (c *Collector) RunOnce(ctx context.Context, now time.Time) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	var tasks []func(context.Context) error
	if c.cfg.ConversationIdle > 0 {
		cut := now.Add(-c.cfg.ConversationIdle)
		tasks = append(tasks, func(ctx context.Context) error {
			return c.drain(ctx, func(ctx context.Context) (int64, error) {
				return c.store.DeleteConversationsIdleBeforeLimited(ctx, cut, c.cfg.BatchRows)
			})
		})
	}
	if c.cfg.AuditKeepFor > 0 || c.cfg.AuditKeepLatest > 0 {
		// 两条审计策略作用于同一张表，放在一个任务里顺序执行
		tasks = append(tasks, func(ctx context.Context) error {
			if c.cfg.AuditKeepFor > 0 {
				cut := now.Add(-c.cfg.AuditKeepFor)
				if err := c.drain(ctx, func(ctx context.Context) (int64, error) {
					return c.store.DeleteAuditRecordsBeforeLimited(ctx, cut, c.cfg.BatchRows)
				}); err != nil {
					return err
				}
			}
			if c.cfg.AuditKeepLatest > 0 {
				if _, err := c.store.DeleteAuditRecordsKeepLatest(ctx, c.cfg.AuditKeepLatest); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if len(tasks) == 0 {
		return nil
	}

	workers := c.cfg.Workers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan func(context.Context) error)
	errs := make(chan error, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errs <- err
				}
			}
		}()
	}

	for _, t := range tasks {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			close(errs)
			return ctx.Err()
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			c.cfg.OnError(err)
			return err
		}
	}
	return nil
}

// drain 反复分批删除，直到没有可删的行
func (c *Collector) drain(ctx context.Context, batch func(context.Context) (int64, error)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		affected, err := batch(ctx)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		if err := c.sleepIdle(ctx); err != nil {
			return err
		}
	}
}

func (c *Collector) sleepIdle(ctx context.Context) error {
	if c.cfg.IdleSleep <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
