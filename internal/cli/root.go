package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wwwzy/BookAgent/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "bookagent",
	Short: "BookAgent 是一个预约排期对话助手",
	Long: `BookAgent 通过多轮对话帮助用户预约、改期和取消预约。
可以在终端中直接对话，也可以作为 HTTP 服务运行。`,
}

// Execute 由 main.main() 调用，只需要调用一次
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、$HOME/.bookagent/config.yaml 搜索）")
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
}
