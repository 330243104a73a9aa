package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"leadflow/internal/models"
)

const defaultWatchInterval = 5 * time.Second

// ConfigWatcher polls the configuration file and hands reloaded
// configurations to the registered callbacks. Only settings read at runtime,
// such as the automation toggles, take effect without a restart.
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	logger     logrus.FieldLogger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

func NewConfigWatcher(configPath string, logger logrus.FieldLogger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		interval:   defaultWatchInterval,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the file and blocks, polling for changes until ctx is done.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	stat, err := os.Stat(cw.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(cw.configPath)
			if err != nil {
				cw.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}
			if stat.ModTime().After(lastModTime) {
				cw.logger.Debug("Configuration file changed")
				lastModTime = stat.ModTime()
				cw.reloadConfig()
			}
		}
	}
}

// GetConfig returns the current configuration (thread-safe)
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback to be called when configuration changes
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration, keeping previous")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		cw.invoke(callback, newConfig)
	}
	cw.logConfigChanges(oldConfig, newConfig)
}

func (cw *ConfigWatcher) invoke(callback func(*models.Config), config *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	callback(config)
}

// logConfigChanges logs notable configuration changes
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.Automation.AutoCreateLeads != new.Automation.AutoCreateLeads {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Automation.AutoCreateLeads,
			"new": new.Automation.AutoCreateLeads,
		}).Info("Lead automation toggled")
	}
	if old.Automation.SellerAlerts != new.Automation.SellerAlerts {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Automation.SellerAlerts,
			"new": new.Automation.SellerAlerts,
		}).Info("Seller alerts toggled")
	}
	if old.RetentionDays != new.RetentionDays {
		cw.logger.WithFields(logrus.Fields{
			"old": old.RetentionDays,
			"new": new.RetentionDays,
		}).Info("Retention days changed, restart to apply")
	}
	if old.Server.Port != new.Server.Port || old.Database.Path != new.Database.Path || old.Redis.URL != new.Redis.URL {
		cw.logger.Warn("Server, database or Redis settings changed, restart to apply")
	}
}
