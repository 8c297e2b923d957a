package memory

import (
	memerrors "github.com/cadre-oss/agentmem/internal/errors"
)

// Default thresholds, in bytes.
const (
	DefaultWarnBytes     = 60 * 1024
	DefaultCriticalBytes = 75 * 1024
	DefaultMaxBytes      = 80 * 1024

	DefaultProjectFile = "CLAUDE.md"
	DefaultMemoryDir   = ".claude-mpm/memories"
)

// SizeStatus classifies a file size against the configured thresholds.
type SizeStatus string

const (
	StatusOK       SizeStatus = "ok"
	StatusWarn     SizeStatus = "warn"
	StatusCritical SizeStatus = "critical"
)

// Limits holds the per-file size thresholds.
type Limits struct {
	WarnBytes     int `yaml:"warn_bytes" json:"warn_bytes"`
	CriticalBytes int `yaml:"critical_bytes" json:"critical_bytes"`
	MaxBytes      int `yaml:"max_bytes" json:"max_bytes"` // hard ceiling; updates past it fail
}

// DefaultLimits returns 60 KiB warn, 75 KiB critical, 80 KiB ceiling.
func DefaultLimits() Limits {
	return Limits{
		WarnBytes:     DefaultWarnBytes,
		CriticalBytes: DefaultCriticalBytes,
		MaxBytes:      DefaultMaxBytes,
	}
}

// Validate requires 0 < warn < critical <= max.
func (l Limits) Validate() error {
	if l.WarnBytes <= 0 || l.CriticalBytes <= l.WarnBytes || l.MaxBytes < l.CriticalBytes {
		return memerrors.Newf(memerrors.CodeConfigInvalid,
			"limits must satisfy 0 < warn (%d) < critical (%d) <= max (%d)",
			l.WarnBytes, l.CriticalBytes, l.MaxBytes)
	}
	return nil
}

// Status classifies size. Sizes past the ceiling (hand-edited files) are critical.
func (l Limits) Status(size int) SizeStatus {
	switch {
	case size >= l.CriticalBytes:
		return StatusCritical
	case size >= l.WarnBytes:
		return StatusWarn
	default:
		return StatusOK
	}
}

// Config locates memory files. Nothing is read from the environment; the
// caller resolves roots before constructing a Store.
type Config struct {
	ProjectRoot string
	UserRoot    string // empty disables the user scope
	ProjectFile string
	MemoryDir   string
	Limits      Limits
}

// DefaultConfig returns a config rooted at projectRoot with no user scope.
func DefaultConfig(projectRoot string) Config {
	return Config{
		ProjectRoot: projectRoot,
		ProjectFile: DefaultProjectFile,
		MemoryDir:   DefaultMemoryDir,
		Limits:      DefaultLimits(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.ProjectRoot != "" {
		c.ProjectRoot = source.ProjectRoot
	}
	if source.UserRoot != "" {
		c.UserRoot = source.UserRoot
	}
	if source.ProjectFile != "" {
		c.ProjectFile = source.ProjectFile
	}
	if source.MemoryDir != "" {
		c.MemoryDir = source.MemoryDir
	}
	if source.Limits.WarnBytes != 0 {
		c.Limits.WarnBytes = source.Limits.WarnBytes
	}
	if source.Limits.CriticalBytes != 0 {
		c.Limits.CriticalBytes = source.Limits.CriticalBytes
	}
	if source.Limits.MaxBytes != 0 {
		c.Limits.MaxBytes = source.Limits.MaxBytes
	}
}

func (c Config) validate() error {
	if c.ProjectRoot == "" {
		return memerrors.New(memerrors.CodeConfigInvalid, "project root is required")
	}
	if c.ProjectFile == "" || c.MemoryDir == "" {
		return memerrors.Newf(memerrors.CodeConfigInvalid,
			"project file (%q) and memory dir (%q) are required", c.ProjectFile, c.MemoryDir)
	}
	return c.Limits.Validate()
}
