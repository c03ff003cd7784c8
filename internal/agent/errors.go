package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant 表示状态机自身的缺陷，例如在没有 selected_slot 时进入创建预约节点
	ErrInvariant = errors.New("agent: invariant violation")
	// ErrStepLimit 单轮内节点跳转次数超过上限
	ErrStepLimit = errors.New("agent: step limit exceeded")
	// ErrRecoveryLimit 单轮内歧义选择恢复次数超过上限
	ErrRecoveryLimit = errors.New("agent: recovery limit exceeded")
	// ErrStateNotFound 会话状态不存在
	ErrStateNotFound = errors.New("agent: state not found")
)

func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
