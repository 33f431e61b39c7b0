// Package config handles configuration loading for castellan. It supports
// XDG config paths, a project-local file, and environment variables, and
// can watch the config file so admission limits are reloadable at runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/castellan-ai/castellan/internal/admission"
)

// Config holds all tunables for the orchestration core.
type Config struct {
	Limits  LimitsConfig  `mapstructure:"limits" yaml:"limits"`
	Fuse    FuseConfig    `mapstructure:"fuse" yaml:"fuse"`
	Collect CollectConfig `mapstructure:"collect" yaml:"collect"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// LimitsConfig holds the admission budget ceilings.
type LimitsConfig struct {
	// AgentSkillCalls is the per-agent skill-call budget.
	AgentSkillCalls int `mapstructure:"agent_skill_calls" yaml:"agent_skill_calls"`
	// TurnAgents is the per-turn sub-agent dispatch budget.
	TurnAgents int `mapstructure:"turn_agents" yaml:"turn_agents"`
	// TurnSkillCalls is the per-turn total skill-call budget.
	TurnSkillCalls int `mapstructure:"turn_skill_calls" yaml:"turn_skill_calls"`
	// ConversationCalls is the per-conversation rate capacity.
	ConversationCalls int `mapstructure:"conversation_calls" yaml:"conversation_calls"`
	// ConversationWindow is the per-conversation rate window.
	ConversationWindow time.Duration `mapstructure:"conversation_window" yaml:"conversation_window"`
}

// FuseConfig holds the per-skill fuse tunables.
type FuseConfig struct {
	// Threshold is the failure count that opens a fuse.
	Threshold int `mapstructure:"threshold" yaml:"threshold"`
	// Window is how long failures count toward the threshold.
	Window time.Duration `mapstructure:"window" yaml:"window"`
	// Cooldown is how long an open fuse stays open before decaying closed.
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// CollectConfig holds result-collection settings.
type CollectConfig struct {
	// TranscriptTail is the number of transcript lines retained per agent.
	TranscriptTail int `mapstructure:"transcript_tail" yaml:"transcript_tail"`
}

// AuditConfig holds audit store settings.
type AuditConfig struct {
	// DBPath is the SQLite audit database path.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig holds debug logging settings.
type LoggingConfig struct {
	// DebugLog is the debug log file path, empty to disable.
	DebugLog string `mapstructure:"debug_log" yaml:"debug_log"`
}

// AdmissionFuse converts the fuse section to the admission package's config.
func (c *Config) AdmissionFuse() admission.FuseConfig {
	return admission.FuseConfig{
		Threshold: c.Fuse.Threshold,
		Window:    c.Fuse.Window,
		Cooldown:  c.Fuse.Cooldown,
	}
}

// DumpYAML renders the effective configuration.
func (c *Config) DumpYAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}

// setDefaults registers the default values on a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("limits.agent_skill_calls", admission.DefaultAgentSkillCalls)
	v.SetDefault("limits.turn_agents", admission.DefaultTurnAgents)
	v.SetDefault("limits.turn_skill_calls", admission.DefaultTurnSkillCalls)
	v.SetDefault("limits.conversation_calls", admission.DefaultConversationCalls)
	v.SetDefault("limits.conversation_window", admission.DefaultConversationWindow)
	v.SetDefault("fuse.threshold", admission.DefaultFuseThreshold)
	v.SetDefault("fuse.window", admission.DefaultFuseWindow)
	v.SetDefault("fuse.cooldown", admission.DefaultFuseCooldown)
	v.SetDefault("collect.transcript_tail", 20)
	v.SetDefault("audit.db_path", defaultAuditPath())
	v.SetDefault("logging.debug_log", "")
}

// defaultAuditPath returns the XDG data location for the audit database.
func defaultAuditPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "castellan", "audit.db")
}

// Load reads configuration with the standard precedence:
//  1. Environment variables (prefix CASTELLAN)
//  2. Project config (castellan.yaml in the current directory)
//  3. User config (~/.config/castellan/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("castellan")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "castellan"))
	}

	v.SetEnvPrefix("CASTELLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFrom reads configuration from an explicit file path.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return unmarshal(v)
}

// unmarshal decodes the viper state into a Config.
func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
