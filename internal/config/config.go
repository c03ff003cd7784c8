package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wwwzy/BookAgent/internal/agent"
	"github.com/wwwzy/BookAgent/internal/classifier"
	"github.com/wwwzy/BookAgent/internal/logging"
	"github.com/wwwzy/BookAgent/internal/retention"
	"github.com/wwwzy/BookAgent/internal/scheduling"
	"github.com/wwwzy/BookAgent/internal/server"
	"github.com/wwwzy/BookAgent/internal/session"
	"github.com/wwwzy/BookAgent/internal/storage"
)

const (
	ClassifierRules = "rules"
	ClassifierLLM   = "llm"

	ProviderMemory   = "memory"
	ProviderCalendly = "calendly"
)

type ClassifierConfig struct {
	// Mode: rules | llm
	Mode string `mapstructure:"mode"`
}

// MemorySlotsConfig 内存排期服务预生成的可用时段
type MemorySlotsConfig struct {
	Days         int           `mapstructure:"days"`
	Hours        []int         `mapstructure:"hours"`
	SlotDuration time.Duration `mapstructure:"slot_duration"`
}

type SchedulingConfig struct {
	// Provider: memory | calendly
	Provider string `mapstructure:"provider"`
	// Audit 是否把每次排期调用写入审计表
	Audit    bool                      `mapstructure:"audit"`
	Memory   MemorySlotsConfig         `mapstructure:"memory"`
	Calendly scheduling.CalendlyConfig `mapstructure:"calendly"`
}

type AgentConfig struct {
	agent.Settings `mapstructure:",squash"`

	// Timezone 解析"明天""周二"等相对时间使用的时区
	Timezone string `mapstructure:"timezone"`
	// Triggers 以流程名（book/cancel/reschedule）为 key 覆盖默认的切换触发词
	Triggers map[string][]string `mapstructure:"triggers"`
}

type Config struct {
	Log        logging.Config       `mapstructure:"log"`
	Storage    storage.Config       `mapstructure:"storage"`
	Session    session.Config       `mapstructure:"session"`
	Ark        classifier.ArkConfig `mapstructure:"ark"`
	Classifier ClassifierConfig     `mapstructure:"classifier"`
	Scheduling SchedulingConfig     `mapstructure:"scheduling"`
	Agent      AgentConfig          `mapstructure:"agent"`
	Server     server.Config        `mapstructure:"server"`
	Retention  retention.Config     `mapstructure:"retention"`
}

func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bookagent")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("BOOKAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal 只解码 viper 已知的 key，所以每个字段都要有默认值
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Classifier.Mode {
	case ClassifierRules:
	case ClassifierLLM:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("ark.api_key is required when classifier.mode=llm (or set ARK_API_KEY env var)")
		}
		if c.Ark.ModelID == "" {
			return fmt.Errorf("ark.model_id is required when classifier.mode=llm (or set ARK_MODEL_ID env var)")
		}
	default:
		return fmt.Errorf("unknown classifier.mode %q", c.Classifier.Mode)
	}

	switch c.Scheduling.Provider {
	case ProviderMemory:
	case ProviderCalendly:
		if c.Scheduling.Calendly.APIToken == "" {
			return fmt.Errorf("scheduling.calendly.api_token is required (or set CALENDLY_API_TOKEN env var)")
		}
		if c.Scheduling.Calendly.EventTypeURI == "" {
			return fmt.Errorf("scheduling.calendly.event_type_uri is required")
		}
	default:
		return fmt.Errorf("unknown scheduling.provider %q", c.Scheduling.Provider)
	}

	switch c.Session.Backend {
	case session.BackendMemory, session.BackendSQLite:
	case session.BackendRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required when session.backend=redis (or set REDIS_ADDR env var)")
		}
	default:
		return fmt.Errorf("unknown session.backend %q", c.Session.Backend)
	}

	if _, err := c.Agent.Location(); err != nil {
		return err
	}
	if _, err := c.Agent.BuildTriggers(); err != nil {
		return err
	}
	return nil
}

// Location 返回 agent.timezone 对应的时区
func (a AgentConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid agent.timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// BuildTriggers 在默认触发词基础上应用配置中的覆盖项
func (a AgentConfig) BuildTriggers() (agent.Triggers, error) {
	triggers := agent.DefaultTriggers()
	for name, phrases := range a.Triggers {
		flow, err := agent.ParseFlow(name)
		if err != nil {
			return nil, fmt.Errorf("agent.triggers: %w", err)
		}
		if flow == agent.FlowIdle {
			return nil, fmt.Errorf("agent.triggers: flow %q cannot be triggered", name)
		}
		triggers[flow] = phrases
	}
	return triggers, nil
}

func setDefaults(v *viper.Viper) {
	// -------------------------------------------------------------------------
	// Log
	// -------------------------------------------------------------------------
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.console", true)
	v.SetDefault("log.json", false)

	// -------------------------------------------------------------------------
	// Storage
	// -------------------------------------------------------------------------
	v.SetDefault("storage.path", "bookagent.db")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.enable_wal", true)
	v.SetDefault("storage.busy_timeout", 5*time.Second)
	v.SetDefault("storage.slow_threshold", 200*time.Millisecond)

	// -------------------------------------------------------------------------
	// Session
	// -------------------------------------------------------------------------
	v.SetDefault("session.backend", session.BackendSQLite)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.redis_addr", "")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("session.key_prefix", "bookagent:")
	v.SetDefault("session.lock_ttl", 30*time.Second)
	_ = v.BindEnv("session.redis_addr", "REDIS_ADDR")

	// -------------------------------------------------------------------------
	// Classifier / Ark
	// -------------------------------------------------------------------------
	v.SetDefault("classifier.mode", ClassifierRules)
	v.SetDefault("ark.api_key", "")
	v.SetDefault("ark.model_id", "")
	v.SetDefault("ark.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	_ = v.BindEnv("ark.api_key", "ARK_API_KEY")
	_ = v.BindEnv("ark.model_id", "ARK_MODEL_ID")
	_ = v.BindEnv("ark.base_url", "ARK_BASE_URL")

	// -------------------------------------------------------------------------
	// Scheduling
	// -------------------------------------------------------------------------
	v.SetDefault("scheduling.provider", ProviderMemory)
	v.SetDefault("scheduling.audit", true)
	v.SetDefault("scheduling.memory.days", 14)
	v.SetDefault("scheduling.memory.hours", []int{9, 10, 11, 13, 14, 15, 16})
	v.SetDefault("scheduling.memory.slot_duration", 30*time.Minute)
	v.SetDefault("scheduling.calendly.api_token", "")
	v.SetDefault("scheduling.calendly.base_url", "https://api.calendly.com")
	v.SetDefault("scheduling.calendly.event_type_uri", "")
	v.SetDefault("scheduling.calendly.timezone", "UTC")
	v.SetDefault("scheduling.calendly.slot_duration", 30*time.Minute)
	v.SetDefault("scheduling.calendly.timeout", 10*time.Second)
	v.SetDefault("scheduling.calendly.max_retries", 3)
	v.SetDefault("scheduling.calendly.retry_delay", 500*time.Millisecond)
	v.SetDefault("scheduling.calendly.breaker_threshold", 5)
	v.SetDefault("scheduling.calendly.breaker_timeout", 30*time.Second)
	_ = v.BindEnv("scheduling.calendly.api_token", "CALENDLY_API_TOKEN")

	// -------------------------------------------------------------------------
	// Agent
	// -------------------------------------------------------------------------
	v.SetDefault("agent.max_steps", 24)
	v.SetDefault("agent.max_recoveries", 3)
	v.SetDefault("agent.max_offered", 10)
	v.SetDefault("agent.broaden_days", 7)
	v.SetDefault("agent.timezone", "UTC")
	v.SetDefault("agent.triggers", map[string][]string{})

	// -------------------------------------------------------------------------
	// Server
	// -------------------------------------------------------------------------
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	// -------------------------------------------------------------------------
	// Retention
	// -------------------------------------------------------------------------
	rd := retention.DefaultConfig()
	v.SetDefault("retention.enabled", rd.Enabled)
	v.SetDefault("retention.interval", rd.Interval)
	v.SetDefault("retention.workers", rd.Workers)
	v.SetDefault("retention.batch_rows", rd.BatchRows)
	v.SetDefault("retention.idle_sleep", rd.IdleSleep)
	v.SetDefault("retention.conversation_idle", rd.ConversationIdle)
	v.SetDefault("retention.audit_keep_for", rd.AuditKeepFor)
	v.SetDefault("retention.audit_keep_latest", rd.AuditKeepLatest)
}

func DefaultConfig() Config {
	return Config{
		Log: logging.Config{Level: "info", MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30, Console: true},
		Storage: storage.Config{
			Path:          "bookagent.db",
			EnableWAL:     true,
			BusyTimeout:   5 * time.Second,
			SlowThreshold: 200 * time.Millisecond,
		},
		Session:    session.Config{Backend: session.BackendSQLite, TTL: 24 * time.Hour, KeyPrefix: "bookagent:", LockTTL: 30 * time.Second},
		Classifier: ClassifierConfig{Mode: ClassifierRules},
		Scheduling: SchedulingConfig{
			Provider: ProviderMemory,
			Audit:    true,
			Memory:   MemorySlotsConfig{Days: 14, Hours: []int{9, 10, 11, 13, 14, 15, 16}, SlotDuration: 30 * time.Minute},
		},
		Agent: AgentConfig{
			Settings: agent.Settings{MaxSteps: 24, MaxRecoveries: 3, MaxOffered: 10, BroadenDays: 7},
			Timezone: "UTC",
		},
		Server:    server.Config{Addr: ":8080", ReadTimeout: 15 * time.Second, WriteTimeout: 60 * time.Second},
		Retention: retention.DefaultConfig(),
	}
}
