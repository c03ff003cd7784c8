package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wwwzy/BookAgent/internal/agent"
	"github.com/wwwzy/BookAgent/internal/classifier"
	"github.com/wwwzy/BookAgent/internal/config"
	"github.com/wwwzy/BookAgent/internal/logging"
	"github.com/wwwzy/BookAgent/internal/scheduling"
	"github.com/wwwzy/BookAgent/internal/session"
	"github.com/wwwzy/BookAgent/internal/storage"
)

// runtime 持有一次命令运行所需的全部组件
type runtime struct {
	logger *zap.Logger
	store  *storage.Storage
	orch   *agent.Orchestrator

	closers []func() error
}

func buildRuntime(ctx context.Context, cfg *config.Config, logCfg logging.Config) (_ *runtime, err error) {
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	rt := &runtime{logger: logger}
	// 中途失败时释放已打开的资源
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	storeCfg := cfg.Storage
	storeCfg.Logger = logger
	store, err := storage.Open(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	backend, closeSessions, err := session.Open(ctx, cfg.Session, store)
	if err != nil {
		return nil, fmt.Errorf("打开会话存储失败: %w", err)
	}
	rt.closers = append(rt.closers, closeSessions)

	cls, err := buildClassifier(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Agent.Location()
	if err != nil {
		return nil, err
	}
	triggers, err := cfg.Agent.BuildTriggers()
	if err != nil {
		return nil, err
	}
	settings := cfg.Agent.Settings
	settings.Location = loc

	rt.orch, err = agent.New(ctx, agent.Options{
		Classifier: cls,
		Provider:   provider,
		Store:      agent.NewStateStore(backend),
		Triggers:   triggers,
		Settings:   settings,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化对话编排器失败: %w", err)
	}

	logger.Info("runtime ready",
		zap.String("classifier", cfg.Classifier.Mode),
		zap.String("provider", cfg.Scheduling.Provider),
		zap.String("session_backend", cfg.Session.Backend),
	)
	return rt, nil
}

func buildClassifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (classifier.Classifier, error) {
	switch cfg.Classifier.Mode {
	case config.ClassifierLLM:
		cm, err := classifier.NewChatModel(ctx, cfg.Ark)
		if err != nil {
			return nil, fmt.Errorf("初始化 ChatModel 失败: %w", err)
		}
		return classifier.NewLLM(cm, logger), nil
	case config.ClassifierRules, "":
		return classifier.NewRules(), nil
	default:
		return nil, fmt.Errorf("未知 classifier 类型: %s", cfg.Classifier.Mode)
	}
}

func buildProvider(cfg *config.Config, store *storage.Storage, logger *zap.Logger) (scheduling.Provider, error) {
	var p scheduling.Provider
	switch cfg.Scheduling.Provider {
	case config.ProviderCalendly:
		c, err := scheduling.NewCalendly(cfg.Scheduling.Calendly)
		if err != nil {
			return nil, fmt.Errorf("初始化 Calendly 失败: %w", err)
		}
		p = c
	case config.ProviderMemory, "":
		mc := cfg.Scheduling.Memory
		slots := scheduling.GenerateSlots(time.Now(), mc.Days, mc.Hours, mc.SlotDuration)
		p = scheduling.NewMemoryProvider(slots...)
	default:
		return nil, fmt.Errorf("未知 scheduling provider: %s", cfg.Scheduling.Provider)
	}
	if cfg.Scheduling.Audit {
		p = scheduling.WithAudit(p, store, logger)
	}
	return p, nil
}

func (rt *runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	return errors.Join(errs...)
}
