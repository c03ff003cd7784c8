package retention

import "time"

type ErrorHandler func(err error)

type Config struct {
	// Enabled 控制是否启动后台清理。
	Enabled bool `mapstructure:"enabled"`

	// Interval 为清理周期；启动时会先执行一次。
	Interval time.Duration `mapstructure:"interval"`
	// Workers 为并发执行清理任务的 worker 数量。
	Workers int `mapstructure:"workers"`
	// BatchRows 为单次删除的最大行数；大表分批删除，避免长时间持有写锁。
	BatchRows int `mapstructure:"batch_rows"`
	// IdleSleep 为两批删除之间的等待时间。
	IdleSleep time.Duration `mapstructure:"idle_sleep"`

	// ConversationIdle 会话超过该时长未更新即被删除；<=0 表示不清理会话。
	ConversationIdle time.Duration `mapstructure:"conversation_idle"`
	// AuditKeepFor 审计记录保留时长；<=0 表示不按时间清理。
	AuditKeepFor time.Duration `mapstructure:"audit_keep_for"`
	// AuditKeepLatest 审计记录最多保留条数；<=0 表示不限制。
	AuditKeepLatest int `mapstructure:"audit_keep_latest"`

	// OnError 为异步错误回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		Interval:         time.Hour,
		Workers:          2,
		BatchRows:        500,
		IdleSleep:        50 * time.Millisecond,
		ConversationIdle: 7 * 24 * time.Hour,
		AuditKeepFor:     30 * 24 * time.Hour,
		AuditKeepLatest:  100000,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.BatchRows <= 0 {
		c.BatchRows = 500
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}
