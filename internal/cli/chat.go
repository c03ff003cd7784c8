package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwwzy/BookAgent/internal/tui"
	"github.com/wwwzy/BookAgent/internal/ui"
)

var (
	chatUI             string
	chatConversationID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式对话模式",
	Long: `在终端中与预约助手对话，可以预约、改期或取消预约。
指定 --conversation 可以恢复之前的会话。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		var uiImpl ui.ChatUI
		logCfg := cfg.Log
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
			// 全屏界面下日志只写文件
			logCfg.Console = false
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		rt, err := buildRuntime(ctx, cfg, logCfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		return uiImpl.Run(ctx, rt.orch, ui.ChatOptions{ConversationID: chatConversationID})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatConversationID, "conversation", "", "会话 ID，为空时新建会话")
}
