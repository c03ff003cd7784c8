package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wwwzy/BookAgent/internal/retention"
	"github.com/wwwzy/BookAgent/internal/server"
)

// serveCmd 代表 serve 命令
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 BookAgent HTTP 服务",
	Long: `以 HTTP 服务方式运行预约助手。
同时在后台按 retention 配置清理过期会话和审计记录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		fmt.Println("正在初始化...")
		rt, err := buildRuntime(ctx, cfg, cfg.Log)
		if err != nil {
			return err
		}
		defer rt.Close()

		retCfg := cfg.Retention
		retCfg.OnError = func(err error) {
			rt.logger.Warn("retention run failed", zap.Error(err))
		}
		mgr, err := retention.NewManager(retCfg)
		if err != nil {
			return fmt.Errorf("创建清理管理器失败: %w", err)
		}
		collector, err := retention.NewCollector(rt.store)
		if err != nil {
			return fmt.Errorf("创建清理任务失败: %w", err)
		}
		mgr.WithCollector(collector)
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动清理管理器失败: %w", err)
		}

		srv := server.New(cfg.Server, rt.orch, rt.logger)
		fmt.Printf("BookAgent 已启动，监听 %s。按 Ctrl+C 停止。\n", cfg.Server.Addr)
		serveErr := srv.Run(ctx)

		// 服务退出后停止后台清理
		cancel()
		mgr.Stop()
		if err := mgr.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "清理管理器停止时发生错误: %v\n", err)
		}
		if serveErr != nil {
			return fmt.Errorf("HTTP 服务异常退出: %w", serveErr)
		}

		fmt.Println("关闭完成。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
