package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"
)

const (
	// NodeEntry 每轮的入口：执行路由并应用流程切换
	NodeEntry = "entry"

	graphName = "bookagent"
)

// BuildGraph 把节点注册表编译成 eino 图。
// 每个处理节点之后都挂一个分支：Continue 跳到目标节点，Suspend/Terminate 或出错时结束本轮。
func BuildGraph(ctx context.Context, exec *executor, triggers Triggers) (compose.Runnable[*Turn, *Turn], error) {
	g := compose.NewGraph[*Turn, *Turn]()

	// 1. 入口节点
	if err := g.AddLambdaNode(NodeEntry, compose.InvokableLambda(func(ctx context.Context, t *Turn) (*Turn, error) {
		d := Route(t.State, t.Latest, triggers)
		if d.Switched {
			exec.logger.Debug("flow switched by interrupt",
				zap.Stringer("from", t.State.Flow),
				zap.Stringer("to", d.Switch))
			t.State.switchFlow(d.Switch)
		}
		t.signal = continueTo(d.Node)
		return t, nil
	})); err != nil {
		return nil, err
	}

	// 2. 处理节点
	handlers := exec.handlers()
	for _, id := range allNodes {
		h, ok := handlers[id]
		if !ok {
			return nil, fmt.Errorf("no handler registered for node %s", id)
		}
		if err := g.AddLambdaNode(string(id), compose.InvokableLambda(exec.wrap(id, h))); err != nil {
			return nil, err
		}
	}

	// 3. 边和分支
	if err := g.AddEdge(compose.START, NodeEntry); err != nil {
		return nil, err
	}
	if err := g.AddBranch(NodeEntry, compose.NewGraphBranch(nextNode(""), branchEnds(""))); err != nil {
		return nil, err
	}
	for _, id := range allNodes {
		if err := g.AddBranch(string(id), compose.NewGraphBranch(nextNode(id), branchEnds(id))); err != nil {
			return nil, err
		}
	}

	// 4. 编译；节点间存在环，使用 AnyPredecessor 触发模式
	return g.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(exec.settings.MaxSteps+4),
	)
}

// wrap 为处理节点加上跳数统计、错误收集和日志
func (e *executor) wrap(id NodeID, h Handler) func(ctx context.Context, t *Turn) (*Turn, error) {
	return func(ctx context.Context, t *Turn) (*Turn, error) {
		t.Hops++
		t.Path = append(t.Path, id)
		if t.Hops > e.settings.MaxSteps {
			t.err = fmt.Errorf("%w: %d hops, path %v", ErrStepLimit, t.Hops, t.Path)
			return t, nil
		}

		replies := len(t.Replies)
		sig, err := h(ctx, t)
		if err != nil {
			t.err = fmt.Errorf("node %s: %w", id, err)
			return t, nil
		}
		if sig.Kind != SignalContinue && len(t.Replies) == replies {
			t.err = invariant("node %s returned %s without a reply", id, sig.Kind)
			return t, nil
		}
		t.signal = sig

		e.logger.Debug("node executed",
			zap.String("node", string(id)),
			zap.Stringer("signal", sig.Kind),
			zap.String("next", string(sig.Next)),
			zap.Stringer("flow", t.State.Flow),
			zap.Int("hop", t.Hops))
		return t, nil
	}
}

// nextNode 根据上一个节点的信号选择下一个节点
func nextNode(from NodeID) func(ctx context.Context, t *Turn) (string, error) {
	return func(ctx context.Context, t *Turn) (string, error) {
		if t.err != nil || t.signal.Kind != SignalContinue {
			return compose.END, nil
		}
		next := t.signal.Next
		if next == from || !isNode(next) {
			t.err = invariant("invalid transition %q -> %q", from, next)
			return compose.END, nil
		}
		return string(next), nil
	}
}

func branchEnds(from NodeID) map[string]bool {
	ends := map[string]bool{compose.END: true}
	for _, id := range allNodes {
		if id != from {
			ends[string(id)] = true
		}
	}
	return ends
}

func isNode(id NodeID) bool {
	for _, n := range allNodes {
		if n == id {
			return true
		}
	}
	return false
}
