package config

import (
	"time"

	"github.com/cadre-oss/agentmem/internal/memory"
)

// Config represents the project configuration (agentmem.yaml)
type Config struct {
	Name        string            `yaml:"name" json:"name"`
	Memory      MemoryConfig      `yaml:"memory" json:"memory"`
	Loader      LoaderConfig      `yaml:"loader" json:"loader"`
	Consolidate ConsolidateConfig `yaml:"consolidate" json:"consolidate"`
	Index       IndexConfig       `yaml:"index" json:"index"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Hooks       HooksConfig       `yaml:"hooks" json:"hooks"`

	// dir is the directory the config was loaded from; relative paths resolve against it.
	dir string
}

// MemoryConfig locates memory files and sets their size limits.
type MemoryConfig struct {
	ProjectRoot string        `yaml:"project_root" json:"project_root"`
	UserRoot    string        `yaml:"user_root" json:"user_root"` // "~" expands to $HOME; empty disables user scope
	ProjectFile string        `yaml:"project_file" json:"project_file"`
	MemoryDir   string        `yaml:"memory_dir" json:"memory_dir"`
	Limits      memory.Limits `yaml:"limits" json:"limits"`
}

// LoaderConfig bounds assembled contexts.
type LoaderConfig struct {
	MaxBytes  int    `yaml:"max_bytes" json:"max_bytes"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"` // 0 disables the token budget
	Tokenizer string `yaml:"tokenizer" json:"tokenizer"`   // estimate, tiktoken
}

// ConsolidateConfig configures the external merge command.
type ConsolidateConfig struct {
	Command string `yaml:"command" json:"command"`
	Timeout string `yaml:"timeout" json:"timeout"` // e.g., "2m"
}

// IndexConfig configures the SQLite search index.
type IndexConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"` // nil means enabled
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// MetricsConfig configures the JSONL metrics exporter.
type MetricsConfig struct {
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	MaxBytes int64  `yaml:"max_bytes,omitempty" json:"max_bytes,omitempty"` // rotate past this size; 0 never rotates
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr  string `yaml:"addr" json:"addr"`
	Token string `yaml:"token,omitempty" json:"-"` // bearer token; empty disables auth
}

// HooksConfig configures lifecycle event hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`     // shell, webhook, log
	Events   []string `yaml:"events" json:"events"` // event types to match
	Blocking bool     `yaml:"blocking" json:"blocking"`
	Command  string   `yaml:"command,omitempty" json:"command,omitempty"` // for shell hooks
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`         // for webhook hooks
	Level    string   `yaml:"level,omitempty" json:"level,omitempty"`     // for log hooks (debug, info, warn)
}

// IndexEnabled reports whether the search index should be maintained.
func (c *Config) IndexEnabled() bool {
	return c.Index.Enabled == nil || *c.Index.Enabled
}

// ParsedTimeout converts the consolidation timeout to time.Duration
func (c *ConsolidateConfig) ParsedTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 2 * time.Minute, nil // default
	}
	return time.ParseDuration(c.Timeout)
}
