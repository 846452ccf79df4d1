// Package config holds the agentic runtime's tunables (base spec §6
// Configuration table), loaded from YAML with documented defaults applied.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Session holds per-session defaults, mirrored onto core.SessionConfig at
// session creation.
type Session struct {
	MaxContextTokens     int     `yaml:"max_context_tokens"`
	MaxTurns             int     `yaml:"max_turns"`
	EnableCompression    bool    `yaml:"enable_compression"`
	CompressionThreshold float64 `yaml:"compression_threshold"`
	EnableTools          bool    `yaml:"enable_tools"`
}

// Stream holds StreamProcessor tunables.
type Stream struct {
	IdleTimeoutSecs int `yaml:"idle_timeout_secs"`
}

// Tool holds ToolPipeline tunables.
type Tool struct {
	DefaultTimeoutSecs      int  `yaml:"default_timeout_secs"`
	ConfirmationTimeoutSecs int  `yaml:"confirmation_timeout_secs"`
	MaxConcurrency          int  `yaml:"max_concurrency"`
	ConfirmBeforeRun        bool `yaml:"confirm_before_run"`
}

// Config is the full, validated runtime configuration.
type Config struct {
	Session Session `yaml:"session"`
	Stream  Stream  `yaml:"stream"`
	Tool    Tool    `yaml:"tool"`
}

// Default returns a Config populated with the documented defaults from
// base spec §6, mirroring the teacher's functional-option defaulting
// pattern but expressed as a plain constructor since config here is data,
// not behavior.
func Default() Config {
	return Config{
		Session: Session{
			MaxContextTokens:     0,
			MaxTurns:             32,
			EnableCompression:    true,
			CompressionThreshold: 0.8,
			EnableTools:          true,
		},
		Stream: Stream{
			IdleTimeoutSecs: 600,
		},
		Tool: Tool{
			DefaultTimeoutSecs:      0,
			ConfirmationTimeoutSecs: 0,
			MaxConcurrency:          4,
			ConfirmBeforeRun:        true,
		},
	}
}

// Load parses YAML bytes into a Config that starts from Default(), so any
// field omitted from the document keeps its default value.
func Load(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}
