package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/BookAgent/internal/retention"
	"github.com/wwwzy/BookAgent/internal/storage"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理存储和数据库",
	Long:  `提供查看数据库概况、清理过期会话和审计记录的命令。`,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	Run:   runInfo,
}

// pruneAuditCmd represents the prune-audit command
var pruneAuditCmd = &cobra.Command{
	Use:   "prune-audit",
	Short: "清理审计记录",
	Long:  `根据用户指定的保留条数或天数，清理旧的审计记录。`,
	Run:   runPruneAudit,
}

// pruneConversationsCmd represents the prune-conversations command
var pruneConversationsCmd = &cobra.Command{
	Use:   "prune-conversations",
	Short: "清理长时间未活动的会话",
	Long:  `删除超过指定天数未更新的会话状态。`,
	Run:   runPruneConversations,
}

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "根据配置文件立即执行一次清理",
	Long:  `忽略定时任务间隔，按配置文件中的 retention 策略立即清理会话和审计记录。`,
	Run:   runPrune,
}

var (
	keepAuditCount int
	keepAuditDays  int
	idleDays       int
)

func init() {
	pruneAuditCmd.Flags().IntVar(&keepAuditCount, "keep", 0, "保留最近的 N 条记录")
	pruneAuditCmd.Flags().IntVar(&keepAuditDays, "days", 0, "保留最近 N 天的记录")
	pruneConversationsCmd.Flags().IntVar(&idleDays, "days", 7, "删除超过 N 天未活动的会话")

	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd)
	storageCmd.AddCommand(pruneAuditCmd)
	storageCmd.AddCommand(pruneConversationsCmd)
	storageCmd.AddCommand(pruneCmd)
}

func openStore(ctx context.Context) *storage.Storage {
	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}
	fmt.Println("Opening database...")
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runPruneAudit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if keepAuditCount <= 0 && keepAuditDays <= 0 {
		fmt.Println("Error: must specify either --keep or --days")
		_ = cmd.Usage()
		os.Exit(1)
	}

	store := openStore(ctx)
	defer store.Close()

	var deletedCount int64

	if keepAuditCount > 0 {
		fmt.Printf("Pruning audit records, keeping latest %d records...\n", keepAuditCount)
		count, err := store.DeleteAuditRecordsKeepLatest(ctx, keepAuditCount)
		if err != nil {
			fmt.Printf("Error pruning by count: %v\n", err)
			os.Exit(1)
		}
		deletedCount += count
	}

	if keepAuditDays > 0 {
		before := time.Now().UTC().AddDate(0, 0, -keepAuditDays)
		fmt.Printf("Pruning audit records older than %d days (before %s)...\n", keepAuditDays, before.Format(time.RFC3339))
		count, err := store.DeleteAuditRecordsBefore(ctx, before)
		if err != nil {
			fmt.Printf("Error pruning by days: %v\n", err)
			os.Exit(1)
		}
		deletedCount += count
	}

	fmt.Printf("Prune completed. Deleted %d records.\n", deletedCount)

	if count, err := store.CountAuditRecords(ctx); err == nil {
		fmt.Printf("Remaining Audit Records: %d\n", count)
	}
}

func runPruneConversations(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if idleDays <= 0 {
		fmt.Println("Error: --days must be positive")
		_ = cmd.Usage()
		os.Exit(1)
	}

	store := openStore(ctx)
	defer store.Close()

	before := time.Now().UTC().AddDate(0, 0, -idleDays)
	fmt.Printf("Pruning conversations idle since %s...\n", before.Format(time.RFC3339))

	var deletedCount int64
	for {
		n, err := store.DeleteConversationsIdleBeforeLimited(ctx, before, cfg.Retention.BatchRows)
		if err != nil {
			fmt.Printf("Error pruning conversations: %v\n", err)
			os.Exit(1)
		}
		if n == 0 {
			break
		}
		deletedCount += n
	}

	fmt.Printf("Prune completed. Deleted %d conversations.\n", deletedCount)
	if count, err := store.CountConversations(ctx); err == nil {
		fmt.Printf("Remaining Conversations: %d\n", count)
	}
}

func runPrune(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	store := openStore(ctx)
	defer store.Close()

	p := cfg.Retention
	fmt.Println("Starting prune job (this may take a while)...")
	fmt.Printf("Policy: ConversationIdle=%s, AuditKeepFor=%s, AuditKeepLatest=%d\n", p.ConversationIdle, p.AuditKeepFor, p.AuditKeepLatest)

	if err := retention.Prune(ctx, store, p); err != nil {
		fmt.Printf("Prune failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Prune completed successfully.")
	if count, err := store.CountConversations(ctx); err == nil {
		fmt.Printf("Remaining Conversations: %d\n", count)
	}
	if count, err := store.CountAuditRecords(ctx); err == nil {
		fmt.Printf("Remaining Audit Records: %d\n", count)
	}
}

func runInfo(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}

	// 1. 数据库文件信息
	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
	}

	var dbSizeStr string
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			dbSizeStr = "Not Found (Will be created on first run)"
		} else {
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		}
	} else {
		sizeMB := float64(info.Size()) / 1024 / 1024
		dbSizeStr = fmt.Sprintf("%.2f MB (%s)", sizeMB, dbPath)
	}

	// 2. 连接数据库；失败时只打印文件信息
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Database File: %s\n", dbSizeStr)
		fmt.Printf("Error opening database: %v\n", err)
		return
	}
	defer store.Close()

	// 3. 统计
	convCount, err := store.CountConversations(ctx)
	if err != nil {
		fmt.Printf("Error counting conversations: %v\n", err)
	}
	auditCount, err := store.CountAuditRecords(ctx)
	if err != nil {
		fmt.Printf("Error counting audit records: %v\n", err)
	}
	idleBefore := time.Now().UTC().Add(-cfg.Retention.ConversationIdle)
	idle, err := store.QueryConversations(ctx, storage.ConversationQuery{IdleSince: &idleBefore, Limit: 1000})
	if err != nil {
		fmt.Printf("Error querying idle conversations: %v\n", err)
	}

	// 4. 输出
	fmt.Printf("Database File: %s\n", dbSizeStr)
	fmt.Printf("Session Backend: %s\n\n", cfg.Session.Backend)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "Conversations\t%d\n", convCount)
	fmt.Fprintf(w, "  idle > %s\t%d\n", cfg.Retention.ConversationIdle, len(idle))
	fmt.Fprintf(w, "AuditRecords\t%d\n", auditCount)
	_ = w.Flush()
}
