package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
	"github.com/cadre-oss/agentmem/internal/memory"
)

// FileNames are the config file names looked up in a project directory.
var FileNames = []string{"agentmem.yaml", "agentmem.yml"}

const (
	DefaultIndexPath  = ".claude-mpm/index.db"
	DefaultServerAddr = "127.0.0.1:8742"
)

// Load loads the project configuration from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	cfg := defaultConfig()
	cfg.dir = dir
	return cfg, nil
}

// LoadFile loads and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.CodeConfigInvalid, "failed to read config file", err)
	}

	// Interpolate environment variables
	content = []byte(interpolateEnv(string(content)))

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, memerrors.Wrap(memerrors.CodeConfigInvalid, "failed to parse "+path, err)
	}

	applyDefaults(&cfg)
	cfg.dir = filepath.Dir(path)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Dir returns the directory relative paths resolve against.
func (c *Config) Dir() string {
	return c.dir
}

// SetDir changes the directory relative paths resolve against.
func (c *Config) SetDir(dir string) {
	c.dir = dir
}

// StoreConfig resolves the memory section into a memory.Config with
// absolute roots.
func (c *Config) StoreConfig() (memory.Config, error) {
	root, err := c.resolve(c.Memory.ProjectRoot)
	if err != nil {
		return memory.Config{}, err
	}
	var userRoot string
	if c.Memory.UserRoot != "" {
		if userRoot, err = c.resolve(c.Memory.UserRoot); err != nil {
			return memory.Config{}, err
		}
	}
	return memory.Config{
		ProjectRoot: root,
		UserRoot:    userRoot,
		ProjectFile: c.Memory.ProjectFile,
		MemoryDir:   c.Memory.MemoryDir,
		Limits:      c.Memory.Limits,
	}, nil
}

// IndexPath resolves the index database path against the project root.
func (c *Config) IndexPath() (string, error) {
	return c.ProjectPath(c.Index.Path)
}

// ProjectPath resolves p against the project root. Absolute paths and
// "~" paths are returned expanded but otherwise unchanged.
func (c *Config) ProjectPath(p string) (string, error) {
	if filepath.IsAbs(p) || p == "~" || strings.HasPrefix(p, "~/") {
		return c.resolve(p)
	}
	root, err := c.resolve(c.Memory.ProjectRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, p), nil
}

// resolve expands "~" and makes p absolute relative to the config directory.
func (c *Config) resolve(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", memerrors.Wrap(memerrors.CodeConfigInvalid, "cannot expand ~", err).
				WithSuggestion("set HOME or use an absolute path")
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.dir, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// interpolateEnv replaces ${env.VAR} and ${VAR} with environment values
func interpolateEnv(content string) string {
	// Match ${env.VAR} pattern
	envPattern := regexp.MustCompile(`\$\{env\.([^}]+)\}`)
	content = envPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // keep original if not found
	})

	// Match ${VAR} pattern
	varPattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	content = varPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := varPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return content
}

// Default returns the configuration used when no agentmem.yaml exists.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	cfg := &Config{Name: "agentmem-project"}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "agentmem-project"
	}
	if cfg.Memory.ProjectRoot == "" {
		cfg.Memory.ProjectRoot = "."
	}
	if cfg.Memory.ProjectFile == "" {
		cfg.Memory.ProjectFile = memory.DefaultProjectFile
	}
	if cfg.Memory.MemoryDir == "" {
		cfg.Memory.MemoryDir = memory.DefaultMemoryDir
	}
	if cfg.Memory.Limits.WarnBytes == 0 {
		cfg.Memory.Limits.WarnBytes = memory.DefaultWarnBytes
	}
	if cfg.Memory.Limits.CriticalBytes == 0 {
		cfg.Memory.Limits.CriticalBytes = memory.DefaultCriticalBytes
	}
	if cfg.Memory.Limits.MaxBytes == 0 {
		cfg.Memory.Limits.MaxBytes = memory.DefaultMaxBytes
	}
	if cfg.Loader.MaxBytes == 0 {
		cfg.Loader.MaxBytes = memory.DefaultContextBytes
	}
	if cfg.Loader.Tokenizer == "" {
		cfg.Loader.Tokenizer = "estimate"
	}
	if cfg.Consolidate.Timeout == "" {
		cfg.Consolidate.Timeout = "2m"
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = DefaultIndexPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
}
