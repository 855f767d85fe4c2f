// Package config provides TOML-backed configuration for the coordination
// engine: polling intervals, conflict detection settings, and per-team
// conflict resolution policies.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/taskmesh/coordkit/errors"
)

// Known conflict resolution strategies.
const (
	StrategyLastWriteWins   = "last_write_wins"
	StrategyPriorityAgent   = "priority_agent"
	StrategyEscalateToHuman = "escalate_to_human"
	StrategyManual          = "manual"
)

// Duration wraps time.Duration so TOML values like "90s" decode.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root engine configuration.
type Config struct {
	// LogLevel is the minimum level for console output.
	LogLevel string `toml:"log_level"`

	Sync      SyncConfig            `toml:"sync"`
	Context   ContextConfig         `toml:"context"`
	NATS      NATSConfig            `toml:"nats"`
	Telemetry TelemetryConfig       `toml:"telemetry"`
	Teams     map[string]TeamConfig `toml:"teams"`
}

// SyncConfig controls synchronization point scheduling.
type SyncConfig struct {
	// DefaultInterval is the check cadence for points without a deadline.
	DefaultInterval Duration `toml:"default_interval"`
}

// ContextConfig controls the shared context store.
type ContextConfig struct {
	// ConflictWindow is how far back concurrent edits are considered
	// conflicting.
	ConflictWindow Duration `toml:"conflict_window"`

	// AuditIndex enables the in-memory full-text index over change
	// records.
	AuditIndex bool `toml:"audit_index"`
}

// NATSConfig controls the outbound event bridge. When URL is empty the
// bridge is disabled and events stay in-process.
type NATSConfig struct {
	URL   string `toml:"url"`
	Name  string `toml:"name"`
	Token string `toml:"token"`
}

// TelemetryConfig controls event export. Protocol is "noop", "http",
// or "file"; an empty protocol disables export.
type TelemetryConfig struct {
	Protocol string `toml:"protocol"`

	// Endpoint is the HTTP collector URL or the file path, depending
	// on protocol.
	Endpoint string `toml:"endpoint"`
}

// TeamConfig is the per-team conflict policy, keyed by team id.
type TeamConfig struct {
	// DefaultStrategy applies when no per-type override matches.
	DefaultStrategy string `toml:"default_strategy"`

	// StrategyByContextType overrides the default per context type.
	StrategyByContextType map[string]string `toml:"strategy_by_context_type"`

	// PriorityAgent is the agent whose write wins under the
	// priority_agent strategy and who is recorded as the resolver.
	PriorityAgent string `toml:"priority_agent"`

	// EscalationThreshold forces escalation when a conflict involves at
	// least this many overlapping changes. Zero disables the threshold.
	EscalationThreshold int `toml:"escalation_threshold"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		LogLevel: "INFO",
		Sync: SyncConfig{
			DefaultInterval: Duration(time.Minute),
		},
		Context: ContextConfig{
			ConflictWindow: Duration(60 * time.Second),
		},
		Teams: make(map[string]TeamConfig),
	}
}

// Load reads configuration from a TOML file, filling unset fields with
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.InvalidInput("parse config file", errors.WithCause(err))
	}

	if cfg.Sync.DefaultInterval <= 0 {
		cfg.Sync.DefaultInterval = Duration(time.Minute)
	}
	if cfg.Context.ConflictWindow <= 0 {
		cfg.Context.ConflictWindow = Duration(60 * time.Second)
	}
	if cfg.Teams == nil {
		cfg.Teams = make(map[string]TeamConfig)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks strategy names and thresholds.
func (c Config) Validate() error {
	for teamID, team := range c.Teams {
		if team.DefaultStrategy != "" && !validStrategy(team.DefaultStrategy) {
			return errors.InvalidInput("unknown conflict strategy: "+team.DefaultStrategy,
				errors.WithMetadata("team", teamID))
		}
		for ctxType, strategy := range team.StrategyByContextType {
			if !validStrategy(strategy) {
				return errors.InvalidInput("unknown conflict strategy: "+strategy,
					errors.WithMetadata("team", teamID),
					errors.WithMetadata("context_type", ctxType))
			}
		}
		if team.EscalationThreshold < 0 {
			return errors.InvalidInput("escalation threshold must not be negative",
				errors.WithMetadata("team", teamID))
		}
	}
	return nil
}

func validStrategy(s string) bool {
	switch s {
	case StrategyLastWriteWins, StrategyPriorityAgent, StrategyEscalateToHuman, StrategyManual:
		return true
	default:
		return false
	}
}
