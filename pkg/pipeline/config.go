package pipeline

import (
	"fmt"
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

// DefaultSystemActor is recorded as changed_by when a write has no human actor.
const DefaultSystemActor = "system:bulk-edit"

// EngineConfig holds the product rules the engine treats as configuration.
type EngineConfig struct {
	// SystemActor is the sentinel recorded for system-initiated writes.
	SystemActor string `yaml:"systemActor" json:"systemActor"`
	// RequireLostReason turns a lost transition without a reason into an ERROR.
	RequireLostReason bool `yaml:"requireLostReason" json:"requireLostReason"`
	// ExcludedStatisticEventTypes are housekeeping events, not funnel movement.
	ExcludedStatisticEventTypes []EventType `yaml:"excludedStatisticEventTypes" json:"excludedStatisticEventTypes"`
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		SystemActor:                 DefaultSystemActor,
		RequireLostReason:           true,
		ExcludedStatisticEventTypes: []EventType{EventCreated, EventReasonUpdated},
	}
}

// LoadEngineConfig loads engine configuration from a YAML file.
// If the file does not exist, default configuration is returned.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultEngineConfig(), nil
		}
		return nil, fmt.Errorf("read engine config: %w", err)
	}

	cfg := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every configured event type exists.
func (c *EngineConfig) Validate() error {
	if c.SystemActor == "" {
		return fmt.Errorf("engine config: systemActor must not be empty")
	}
	for _, e := range c.ExcludedStatisticEventTypes {
		if !e.Valid() {
			return fmt.Errorf("engine config: unknown event type %q in excludedStatisticEventTypes", e)
		}
	}
	return nil
}

// ExcludedSet returns the excluded statistic event types as a set.
func (c *EngineConfig) ExcludedSet() mapset.Set[EventType] {
	return mapset.NewSet(c.ExcludedStatisticEventTypes...)
}

// CatalogSeed is the administrator-maintained catalog file loaded at startup.
type CatalogSeed struct {
	Namespaces []NamespaceSeed `yaml:"namespaces"`
}

// NamespaceSeed lists the catalogs of one tenant.
type NamespaceSeed struct {
	Name     string      `yaml:"name"`
	Pipeline []StateSeed `yaml:"pipeline"`
	Contract []StateSeed `yaml:"contract"`
}

// StateSeed is one state entry in the seed file.
type StateSeed struct {
	Name           string        `yaml:"name"`
	DisplayOrder   *int          `yaml:"displayOrder"`
	Category       StateCategory `yaml:"category"`
	Checkpoint     bool          `yaml:"checkpoint"`
	StaleAfterDays *int          `yaml:"staleAfterDays"`
	Inactive       bool          `yaml:"inactive"`
}

// LoadCatalogSeed reads a catalog seed file.
func LoadCatalogSeed(path string) (*CatalogSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var seed CatalogSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	for _, ns := range seed.Namespaces {
		for _, s := range append(append([]StateSeed{}, ns.Pipeline...), ns.Contract...) {
			if s.Name == "" {
				return nil, fmt.Errorf("catalog seed %q: state without a name", ns.Name)
			}
			if s.Category != "" && !s.Category.Valid() {
				return nil, fmt.Errorf("catalog seed %q: state %q has unknown category %q", ns.Name, s.Name, s.Category)
			}
		}
	}
	return &seed, nil
}
