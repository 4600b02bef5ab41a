package audit

import "github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"

// Config controls the API audit trail.
type Config struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	RetentionDays int  `mapstructure:"retention-days" yaml:"retentionDays"`
	// LogRejected records requests refused with a 4xx other than a blocked
	// transition.
	LogRejected bool `mapstructure:"log-rejected" yaml:"logRejected"`
	// SystemActor is recorded for requests without a user principal. It
	// matches the changed_by sentinel of the engine.
	SystemActor string `mapstructure:"system-actor" yaml:"systemActor"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		RetentionDays: 90,
		LogRejected:   true,
		SystemActor:   pipeline.DefaultSystemActor,
	}
}
