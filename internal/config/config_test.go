package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wwwzy/BookAgent/internal/agent"
	"github.com/wwwzy/BookAgent/internal/retention"
	"github.com/wwwzy/BookAgent/internal/session"
)

// 测试在临时目录中运行，避免读到工作目录下的 config.yaml
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	assert.NoError(t, err)
	assert.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "bookagent.db", cfg.Storage.Path)
	assert.Equal(t, session.BackendSQLite, cfg.Session.Backend)
	assert.Equal(t, 30*time.Second, cfg.Session.LockTTL)
	assert.Equal(t, 200*time.Millisecond, cfg.Storage.SlowThreshold)
	assert.Equal(t, ClassifierRules, cfg.Classifier.Mode)
	assert.Equal(t, ProviderMemory, cfg.Scheduling.Provider)
	assert.Equal(t, []int{9, 10, 11, 13, 14, 15, 16}, cfg.Scheduling.Memory.Hours)
	assert.Equal(t, 24, cfg.Agent.MaxSteps)
	assert.Equal(t, 7, cfg.Agent.BroadenDays)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, retention.DefaultConfig().Interval, cfg.Retention.Interval)
}

func TestLoad_ConfigFile(t *testing.T) {
	chdirTemp(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")

	content := []byte(`
log:
  level: "debug"
storage:
  path: "test.db"
  busy_timeout: "10s"
session:
  backend: memory
  ttl: "1h"
agent:
  max_steps: 12
  timezone: "Europe/Berlin"
  triggers:
    cancel: ["drop it"]
retention:
  enabled: false
  conversation_idle: "48h"
`)
	assert.NoError(t, os.WriteFile(configFile, content, 0644))

	cfg, err := Load(configFile)
	assert.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, session.BackendMemory, cfg.Session.Backend)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 12, cfg.Agent.MaxSteps)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.Retention.ConversationIdle)

	// 未覆盖的字段保持默认值
	assert.Equal(t, 3, cfg.Agent.MaxRecoveries)
	assert.Equal(t, retention.DefaultConfig().BatchRows, cfg.Retention.BatchRows)

	loc, err := cfg.Agent.Location()
	assert.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	triggers, err := cfg.Agent.BuildTriggers()
	assert.NoError(t, err)
	assert.Equal(t, []string{"drop it"}, triggers[agent.FlowCancel])
	assert.Equal(t, agent.DefaultTriggers()[agent.FlowBook], triggers[agent.FlowBook])
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BOOKAGENT_LOG_LEVEL", "warn")
	t.Setenv("BOOKAGENT_STORAGE_PATH", "env.db")
	t.Setenv("BOOKAGENT_RETENTION_INTERVAL", "5m")
	t.Setenv("BOOKAGENT_SESSION_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	assert.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 5*time.Minute, cfg.Retention.Interval)
	assert.Equal(t, "localhost:6379", cfg.Session.RedisAddr)
}

func TestLoad_ValidateArkOnlyForLLM(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")
	t.Setenv("BOOKAGENT_CLASSIFIER_MODE", "llm")

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ark.api_key is required")

	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL_ID", "test-model")
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Ark.APIKey)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	bad.Scheduling.Provider = ProviderCalendly
	assert.ErrorContains(t, bad.Validate(), "calendly.api_token")

	bad = DefaultConfig()
	bad.Session.Backend = "etcd"
	assert.ErrorContains(t, bad.Validate(), "session.backend")

	bad = DefaultConfig()
	bad.Agent.Timezone = "Mars/Olympus"
	assert.ErrorContains(t, bad.Validate(), "agent.timezone")

	bad = DefaultConfig()
	bad.Agent.Triggers = map[string][]string{"idle": {"stop"}}
	assert.ErrorContains(t, bad.Validate(), "cannot be triggered")
}
