package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/BookAgent/internal/agent"
	"github.com/wwwzy/BookAgent/internal/trace"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	convID := opts.ConversationIDOrNew()
	reader := bufio.NewReader(in)

	fmt.Fprintf(out, "进入 BookAgent 对话模式（会话 %s）。输入 exit/quit 退出，%s 重新开始。\n", convID, ResetCommand)
	if st, err := backend.Snapshot(ctx, convID); err == nil {
		printHistory(out, st.Messages)
	} else if !errors.Is(err, agent.ErrStateNotFound) {
		return fmt.Errorf("加载会话失败: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("读取输入失败: %w", err)
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimSpace(line)
		if line == "" {
			if eof {
				fmt.Fprintln(out, "\n已退出。")
				return nil
			}
			continue
		}
		if IsExit(line) {
			fmt.Fprintln(out, "已退出。")
			return nil
		}
		if line == ResetCommand {
			if err := backend.Reset(ctx, convID); err != nil {
				fmt.Fprintf(out, "重置失败：%v\n\n", err)
			} else {
				fmt.Fprintln(out, "会话已重置。")
				fmt.Fprintln(out)
			}
			continue
		}

		// 每条用户消息一个 TraceID
		turnCtx := trace.WithTraceID(ctx, trace.NewTraceID())
		turnCtx = trace.WithConversationID(turnCtx, convID)
		reply, err := backend.HandleTurn(turnCtx, convID, line)
		if err != nil {
			fmt.Fprintf(out, "助手: 发生错误：%v（trace %s）\n\n", err, trace.GetTraceID(turnCtx))
		} else if strings.TrimSpace(reply) == "" {
			fmt.Fprintln(out, "助手: (无输出)")
			fmt.Fprintln(out)
		} else {
			fmt.Fprintf(out, "助手: %s\n\n", reply)
		}
		if eof {
			fmt.Fprintln(out, "已退出。")
			return nil
		}
	}
}

// printHistory 恢复已有会话时回显历史消息
func printHistory(w io.Writer, messages []*schema.Message) {
	if len(messages) == 0 {
		return
	}
	fmt.Fprintln(w, "---- 历史消息 ----")
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case schema.User:
			fmt.Fprintf(w, "你: %s\n", content)
		case schema.Assistant:
			fmt.Fprintf(w, "助手: %s\n", content)
		}
	}
	fmt.Fprintln(w)
}
