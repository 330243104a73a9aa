// Package features holds runtime switches for the automation pipeline.
package features

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Flag represents a feature flag with metadata
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tags        []string  `json:"tags,omitempty"`
}

// FlagManager manages feature flags with thread-safe operations
type FlagManager struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

// NewFlagManager creates an empty manager. Call InitializeDefaults to seed it.
func NewFlagManager() *FlagManager {
	return &FlagManager{
		flags: make(map[string]*Flag),
	}
}

const (
	// Automation
	FlagAutoCreateLeads  = "auto_create_leads"
	FlagSellerAlerts     = "seller_alerts"
	FlagAIClassification = "ai_classification"
	FlagDeferredFlush    = "deferred_flush"

	// Storage and observability
	FlagClassificationCache = "classification_cache"
	FlagDistributedTracing  = "distributed_tracing"
)

// FlagDefinition contains metadata about a flag
type FlagDefinition struct {
	Name         string
	Description  string
	DefaultValue bool
	Tags         []string
}

// DefaultFlags defines all available feature flags with their defaults
var DefaultFlags = []FlagDefinition{
	{FlagAutoCreateLeads, "Create sales leads from buying intent", false, []string{"automation"}},
	{FlagSellerAlerts, "Alert the assigned seller about relevant messages", true, []string{"automation"}},
	{FlagAIClassification, "Classify with the AI backend before the rule-based fallback", true, []string{"automation", "classifier"}},
	{FlagDeferredFlush, "Merge and process messages queued while a sender was debounced", true, []string{"automation"}},

	{FlagClassificationCache, "Cache AI classifications", true, []string{"classifier", "performance"}},
	{FlagDistributedTracing, "Enable OpenTelemetry distributed tracing", true, []string{"observability"}},
}

// InitializeDefaults adds every default flag that is not yet present.
func (fm *FlagManager) InitializeDefaults() {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	now := time.Now()
	for _, def := range DefaultFlags {
		if _, exists := fm.flags[def.Name]; !exists {
			fm.flags[def.Name] = &Flag{
				Name:        def.Name,
				Enabled:     def.DefaultValue,
				Description: def.Description,
				UpdatedAt:   now,
				Tags:        def.Tags,
			}
		}
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are disabled.
func (fm *FlagManager) IsEnabled(flagName string) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[flagName]
	return exists && flag.Enabled
}

// Set changes the state of an existing flag.
func (fm *FlagManager) Set(flagName string, enabled bool) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return ErrFlagNotFound{Name: flagName}
	}

	flag.Enabled = enabled
	flag.UpdatedAt = time.Now()
	return nil
}

// Enable enables a feature flag
func (fm *FlagManager) Enable(flagName string) error {
	return fm.Set(flagName, true)
}

// Disable disables a feature flag
func (fm *FlagManager) Disable(flagName string) error {
	return fm.Set(flagName, false)
}

// GetFlag returns a copy of the flag information
func (fm *FlagManager) GetFlag(flagName string) (*Flag, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return nil, ErrFlagNotFound{Name: flagName}
	}
	return copyFlag(flag), nil
}

// ListFlags returns copies of all flags sorted by name, optionally only
// those carrying one of the given tags.
func (fm *FlagManager) ListFlags(filterTags ...string) []*Flag {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	result := make([]*Flag, 0, len(fm.flags))
	for _, flag := range fm.flags {
		if len(filterTags) == 0 || hasAnyTag(flag, filterTags) {
			result = append(result, copyFlag(flag))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ExportJSON exports all flags as JSON
func (fm *FlagManager) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(fm.ListFlags(), "", "  ")
}

func copyFlag(flag *Flag) *Flag {
	c := *flag
	if flag.Tags != nil {
		c.Tags = append([]string(nil), flag.Tags...)
	}
	return &c
}

func hasAnyTag(flag *Flag, tags []string) bool {
	for _, want := range tags {
		for _, tag := range flag.Tags {
			if tag == want {
				return true
			}
		}
	}
	return false
}

// ErrFlagNotFound is returned for names outside DefaultFlags.
type ErrFlagNotFound struct {
	Name string
}

func (e ErrFlagNotFound) Error() string {
	return "feature flag not found: " + e.Name
}
