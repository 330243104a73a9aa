package features

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"leadflow/internal/models"
)

const (
	envPrefix     = "LEADFLOW_FEATURE_"
	envEnableAll  = "LEADFLOW_FEATURES_ENABLE_ALL"
	envDisableAll = "LEADFLOW_FEATURES_DISABLE_ALL"
)

// FlagsConfig represents feature flags configuration
type FlagsConfig struct {
	// Map of flag name to enabled state
	Flags map[string]bool `json:"flags"`

	EnableAll  bool `json:"enable_all"`
	DisableAll bool `json:"disable_all"`
}

// FromConfig derives flag states from the application configuration.
func FromConfig(cfg *models.Config) FlagsConfig {
	return FlagsConfig{
		Flags: map[string]bool{
			FlagAutoCreateLeads:    cfg.Automation.AutoCreateLeads,
			FlagSellerAlerts:       cfg.Automation.SellerAlerts,
			FlagAIClassification:   cfg.AIConfigured(),
			FlagDistributedTracing: cfg.Tracing.Enabled,
		},
	}
}

// LoadFromConfig applies configuration to the flag manager. Unknown flag
// names are rejected.
func (fm *FlagManager) LoadFromConfig(config FlagsConfig) error {
	if err := ValidateConfig(config); err != nil {
		return err
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	now := time.Now()
	for name, enabled := range config.Flags {
		flag, exists := fm.flags[name]
		if !exists {
			return ErrFlagNotFound{Name: name}
		}
		flag.Enabled = enabled
		flag.UpdatedAt = now
	}

	if config.EnableAll || config.DisableAll {
		for _, flag := range fm.flags {
			flag.Enabled = config.EnableAll
			flag.UpdatedAt = now
		}
	}
	return nil
}

// LoadFromEnvironment applies LEADFLOW_FEATURE_<NAME>=true|false overrides.
// LEADFLOW_FEATURES_ENABLE_ALL and LEADFLOW_FEATURES_DISABLE_ALL win over
// individual settings. Unparseable values and unknown names are ignored.
func (fm *FlagManager) LoadFromEnvironment() {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	now := time.Now()
	for _, global := range []struct {
		env   string
		value bool
	}{{envEnableAll, true}, {envDisableAll, false}} {
		if on, _ := strconv.ParseBool(os.Getenv(global.env)); on {
			for _, flag := range fm.flags {
				flag.Enabled = global.value
				flag.UpdatedAt = now
			}
			return
		}
	}

	for key, value := range GetEnvironmentOverrides() {
		if key == envEnableAll || key == envDisableAll {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, envPrefix))
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			continue
		}
		if flag, exists := fm.flags[name]; exists {
			flag.Enabled = enabled
			flag.UpdatedAt = now
		}
	}
}

// ToConfig exports current flag state as configuration
func (fm *FlagManager) ToConfig() FlagsConfig {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	config := FlagsConfig{Flags: make(map[string]bool, len(fm.flags))}
	for name, flag := range fm.flags {
		config.Flags[name] = flag.Enabled
	}
	return config
}

// ValidateConfig validates feature flags configuration
func ValidateConfig(config FlagsConfig) error {
	if config.EnableAll && config.DisableAll {
		return fmt.Errorf("cannot set both enable_all and disable_all to true")
	}
	return nil
}

// GetEnvironmentOverrides returns the environment variables that override flags.
func GetEnvironmentOverrides() map[string]string {
	overrides := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(key, envPrefix) || key == envEnableAll || key == envDisableAll {
			overrides[key] = value
		}
	}
	return overrides
}
