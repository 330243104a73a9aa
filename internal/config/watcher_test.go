package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/models"
)

const watchedConfig = `{"database":{"path":"leadflow.db"},"automation":{"autoCreateLeads":false}}`

func startWatcher(t *testing.T, path string) (*ConfigWatcher, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cw := NewConfigWatcher(path, logger)
	cw.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cw.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	require.Eventually(t, func() bool { return cw.GetConfig() != nil }, time.Second, 10*time.Millisecond)
	return cw, hook
}

// touch rewrites path with a modification time safely after the last one.
func touch(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestNewConfigWatcher(t *testing.T) {
	logger := logrus.New()
	cw := NewConfigWatcher("config.json", logger)

	assert.Equal(t, "config.json", cw.configPath)
	assert.Equal(t, defaultWatchInterval, cw.interval)
	assert.Nil(t, cw.GetConfig())
	assert.Empty(t, cw.callbacks)
}

func TestConfigWatcher_StartInvalidPath(t *testing.T) {
	clearEnv(t)
	cw := NewConfigWatcher("/nonexistent/config.json", logrus.New())
	assert.Error(t, cw.Start(context.Background()))
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, watchedConfig)
	cw, hook := startWatcher(t, path)
	assert.False(t, cw.GetConfig().Automation.AutoCreateLeads)

	var calls atomic.Int32
	var latest atomic.Pointer[models.Config]
	cw.OnConfigChange(func(c *models.Config) {
		latest.Store(c)
		calls.Add(1)
	})

	touch(t, path, `{"database":{"path":"leadflow.db"},"automation":{"autoCreateLeads":true}}`)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, latest.Load().Automation.AutoCreateLeads)
	assert.True(t, cw.GetConfig().Automation.AutoCreateLeads)

	var toggled bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Lead automation toggled" {
			toggled = true
		}
	}
	assert.True(t, toggled)
}

func TestConfigWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, watchedConfig)
	cw, hook := startWatcher(t, path)
	before := cw.GetConfig()

	touch(t, path, `{"database":`)

	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.ErrorLevel {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Same(t, before, cw.GetConfig())
}

func TestConfigWatcher_CallbackPanicIsRecovered(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, watchedConfig)
	cw, _ := startWatcher(t, path)

	var after atomic.Bool
	cw.OnConfigChange(func(*models.Config) { panic("boom") })
	cw.OnConfigChange(func(*models.Config) { after.Store(true) })

	touch(t, path, `{"database":{"path":"leadflow.db"},"retentionDays":7}`)

	require.Eventually(t, after.Load, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 7, cw.GetConfig().RetentionDays)
}

func TestConfigWatcher_LogConfigChanges(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cw := NewConfigWatcher("config.json", logger)

	old := Defaults()
	updated := Defaults()
	updated.Automation.SellerAlerts = false
	updated.RetentionDays = 10
	updated.Redis.URL = "redis://other:6379"

	cw.logConfigChanges(nil, &updated)
	assert.Empty(t, hook.AllEntries())

	cw.logConfigChanges(&old, &updated)
	messages := make([]string, 0, len(hook.AllEntries()))
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Equal(t, []string{
		"Seller alerts toggled",
		"Retention days changed, restart to apply",
		"Server, database or Redis settings changed, restart to apply",
	}, messages)
}
