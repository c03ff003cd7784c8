package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/wwwzy/BookAgent/internal/classifier"
	"github.com/wwwzy/BookAgent/internal/logging"
	"github.com/wwwzy/BookAgent/internal/scheduling"
	"github.com/wwwzy/BookAgent/internal/trace"
)

// Settings 为编排器的运行参数，零值字段使用默认值
type Settings struct {
	// MaxSteps 单轮最多执行的节点数
	MaxSteps int `mapstructure:"max_steps"`
	// MaxRecoveries 单轮最多允许的歧义选择恢复次数
	MaxRecoveries int `mapstructure:"max_recoveries"`
	// MaxOffered 一次最多展示的候选项数
	MaxOffered int `mapstructure:"max_offered"`
	// BroadenDays 扩展查询窗口的天数
	BroadenDays int `mapstructure:"broaden_days"`

	Location *time.Location   `mapstructure:"-"`
	Now      func() time.Time `mapstructure:"-"`
}

func (s Settings) withDefaults() Settings {
	if s.MaxSteps <= 0 {
		s.MaxSteps = 24
	}
	if s.MaxRecoveries <= 0 {
		s.MaxRecoveries = 3
	}
	if s.MaxOffered <= 0 {
		s.MaxOffered = 10
	}
	if s.BroadenDays <= 0 {
		s.BroadenDays = 7
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	return s
}

type Options struct {
	Classifier classifier.Classifier
	Provider   scheduling.Provider
	Store      StateStore
	// Triggers 为空时使用 DefaultTriggers
	Triggers Triggers
	Settings Settings
	Logger   *zap.Logger
}

// Orchestrator 是对话编排的唯一入口。
// 同一会话的轮次串行执行，不同会话可以并发。
type Orchestrator struct {
	store    StateStore
	runnable compose.Runnable[*Turn, *Turn]
	locks    *keyedMutex
	logger   *zap.Logger
}

func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	if opts.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("scheduling provider is required")
	}
	if opts.Store == nil {
		return nil, errors.New("state store is required")
	}
	triggers := opts.Triggers
	if len(triggers) == 0 {
		triggers = DefaultTriggers()
	}
	logger := logging.OrNop(opts.Logger)

	exec := &executor{
		classifier: opts.Classifier,
		provider:   opts.Provider,
		settings:   opts.Settings.withDefaults(),
		logger:     logger,
	}
	runnable, err := BuildGraph(ctx, exec, triggers)
	if err != nil {
		return nil, fmt.Errorf("build graph failed: %w", err)
	}

	return &Orchestrator{
		store:    opts.Store,
		runnable: runnable,
		locks:    newKeyedMutex(),
		logger:   logger,
	}, nil
}

// TurnResult 是一轮对话的结果，Flow 为本轮写回后的流程
type TurnResult struct {
	Reply   string
	Flow    Flow
	TraceID string
}

// HandleTurn 处理一条用户消息并返回助手回复
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID, message string) (string, error) {
	res, err := o.Respond(ctx, conversationID, message)
	if err != nil {
		return "", err
	}
	return res.Reply, nil
}

// Respond 与 HandleTurn 相同，但同时返回本轮结束时的流程。
// 状态只在本轮正常结束时写回；状态机缺陷导致的错误会中止本轮且不保存。
func (o *Orchestrator) Respond(ctx context.Context, conversationID, message string) (TurnResult, error) {
	if conversationID == "" {
		return TurnResult{}, errors.New("conversation id is required")
	}
	unlock, err := o.lock(ctx, conversationID)
	if err != nil {
		return TurnResult{}, err
	}
	defer unlock()

	ctx, traceID := trace.Ensure(ctx)
	ctx = trace.WithConversationID(ctx, conversationID)
	logger := o.logger.With(zap.String("conversation_id", conversationID), zap.String("trace_id", traceID))
	start := time.Now()

	state, err := o.store.Load(ctx, conversationID)
	if errors.Is(err, ErrStateNotFound) {
		state = NewState()
	} else if err != nil {
		return TurnResult{}, fmt.Errorf("load state: %w", err)
	}

	// 上一轮的错误已经在回复中展示过
	state.Error = nil
	state.appendUser(message)
	from := state.Flow

	t := &Turn{State: state, Latest: message}
	if _, err := o.runnable.Invoke(ctx, t); err != nil {
		logger.Error("graph invoke failed", zap.Error(err))
		return TurnResult{}, fmt.Errorf("run turn: %w", err)
	}
	if t.err != nil {
		logger.Error("turn aborted",
			zap.Error(t.err),
			zap.Bool("invariant", isInvariant(t.err)),
			zap.Any("path", t.Path))
		return TurnResult{}, t.err
	}
	if len(t.Replies) == 0 {
		return TurnResult{}, invariant("turn finished without a reply")
	}

	if err := o.store.Save(ctx, conversationID, state); err != nil {
		return TurnResult{}, fmt.Errorf("save state: %w", err)
	}

	logger.Info("turn handled",
		zap.Stringer("flow_from", from),
		zap.Stringer("flow_to", state.Flow),
		zap.Int("hops", t.Hops),
		zap.Any("path", t.Path),
		zap.Duration("elapsed", time.Since(start)))
	return TurnResult{
		Reply:   strings.Join(t.Replies, "\n\n"),
		Flow:    state.Flow,
		TraceID: traceID,
	}, nil
}

// Snapshot 返回会话当前保存的状态
func (o *Orchestrator) Snapshot(ctx context.Context, conversationID string) (*AgentState, error) {
	unlock := o.locks.Lock(conversationID)
	defer unlock()
	return o.store.Load(ctx, conversationID)
}

// Reset 删除会话状态，下一条消息从空白状态开始
func (o *Orchestrator) Reset(ctx context.Context, conversationID string) error {
	unlock, err := o.lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()
	return o.store.Delete(ctx, conversationID)
}

// lock 先取进程内的锁，再在存储支持时取跨进程的锁
func (o *Orchestrator) lock(ctx context.Context, conversationID string) (func(), error) {
	unlockLocal := o.locks.Lock(conversationID)
	l, ok := o.store.(StateLocker)
	if !ok {
		return unlockLocal, nil
	}
	unlockShared, err := l.Lock(ctx, conversationID)
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("lock conversation %s: %w", conversationID, err)
	}
	return func() {
		unlockShared()
		unlockLocal()
	}, nil
}
