package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadre-oss/agentmem/internal/config"
	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/index"
	"github.com/cadre-oss/agentmem/internal/memory"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

// app holds everything a command needs, built from agentmem.yaml and flags.
type app struct {
	cfg     *config.Config
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	bus     *event.Bus
	store   *memory.Store
	loader  *memory.Loader
	index   *index.Index // nil when disabled or unavailable
	merger  *memory.ExecMerger

	command  string
	exporter telemetry.MetricsExporter
}

// loadConfig finds agentmem.yaml (or uses --config) and applies flag and
// AGENTMEM_* overrides.
func loadConfig() (*config.Config, error) {
	root := viper.GetString("project_root")

	var cfg *config.Config
	var err error
	switch {
	case cfgFile != "":
		cfg, err = config.LoadFile(cfgFile)
	case root != "":
		cfg, err = config.Load(root)
	default:
		cfg, err = config.Load(config.Find("."))
	}
	if err != nil {
		return nil, err
	}

	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve project root: %w", err)
		}
		cfg.Memory.ProjectRoot = abs
	}
	if ur := viper.GetString("user_root"); ur != "" {
		if ur != "~" && !strings.HasPrefix(ur, "~/") {
			if ur, err = filepath.Abs(ur); err != nil {
				return nil, fmt.Errorf("resolve user root: %w", err)
			}
		}
		cfg.Memory.UserRoot = ur
	}
	return cfg, nil
}

// newLogger builds the logger from the logging section; --verbose forces debug.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*telemetry.Logger, error) {
	level := cfg.Logging.Level
	if viper.GetBool("verbose") {
		level = "debug"
	}
	logger := telemetry.NewLoggerWithOptions(cmd.ErrOrStderr(), level, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		path, err := cfg.ProjectPath(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		if err := logger.WithFile(path); err != nil {
			return nil, err
		}
	}
	return logger, nil
}

// openApp wires config, logging, metrics, hooks, the index and the store.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: telemetry.NewMetrics(),
		bus:     event.NewBus(logger),
		command: cmd.CommandPath(),
	}

	if cfg.Metrics.Path != "" {
		path, err := cfg.ProjectPath(cfg.Metrics.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		exp, err := telemetry.NewJSONFileExporter(path, cfg.Metrics.MaxBytes)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.exporter = exp
		a.metrics.SetExporter(exp)
	}

	if cfg.Hooks.Enabled {
		hooks, err := buildHooks(cfg.Hooks, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		for _, h := range hooks {
			a.bus.Register(h)
		}
	}

	if cfg.IndexEnabled() {
		if err := a.openIndex(); err != nil {
			// Files stay authoritative; commands that need the index report it.
			logger.Warn("Search index unavailable", "error", err)
		}
	}

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store, err = memory.NewStore(storeCfg,
		memory.WithEventBus(a.bus),
		memory.WithMetrics(a.metrics),
		memory.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.loader = memory.NewLoader(a.store,
		memory.LoaderConfig{MaxBytes: cfg.Loader.MaxBytes, MaxTokens: cfg.Loader.MaxTokens},
		memory.NewTokenCounter(cfg.Loader.Tokenizer, logger),
	)

	if cfg.Consolidate.Command != "" {
		timeout, err := cfg.Consolidate.ParsedTimeout()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.merger = memory.NewExecMerger(cfg.Consolidate.Command)
		a.merger.Timeout = timeout
		a.merger.WorkingDir = storeCfg.ProjectRoot
	}

	return a, nil
}

func (a *app) openIndex() error {
	path, err := a.cfg.IndexPath()
	if err != nil {
		return err
	}
	idx, err := index.Open(path)
	if err != nil {
		return err
	}
	a.index = idx
	a.bus.Register(idx.Hook())
	return nil
}

// requireIndex returns the index or an error explaining how to enable it.
func (a *app) requireIndex() (*index.Index, error) {
	if a.index == nil {
		return nil, fmt.Errorf("search index is disabled (set index.enabled: true in agentmem.yaml)")
	}
	return a.index, nil
}

const hookDrainTimeout = 10 * time.Second

// Close waits for async hooks, flushes metrics and releases the index and log files.
func (a *app) Close() {
	if !a.bus.Drain(hookDrainTimeout) {
		a.logger.Warn("Hooks still running at exit", "timeout", hookDrainTimeout.String())
	}
	a.metrics.Flush(a.command, map[string]string{"project": a.cfg.Name})
	if a.exporter != nil {
		_ = a.exporter.Close()
	}
	if a.index != nil {
		_ = a.index.Close()
	}
	_ = a.logger.Close()
}

// buildHooks creates hooks from the hooks section of agentmem.yaml.
func buildHooks(hc config.HooksConfig, logger *telemetry.Logger) ([]event.Hook, error) {
	hooks := make([]event.Hook, 0, len(hc.Hooks))
	for _, h := range hc.Hooks {
		events, err := event.ParseTypes(h.Events)
		if err != nil {
			return nil, fmt.Errorf("hook %s: %w", h.Name, err)
		}
		switch h.Type {
		case "shell":
			hooks = append(hooks, event.NewShellHook(h.Name, h.Command, events, h.Blocking))
		case "webhook":
			hooks = append(hooks, event.NewWebhookHook(h.Name, h.URL, events, h.Blocking))
		case "log":
			hooks = append(hooks, event.NewLogHook(h.Name, events, logger, h.Level))
		default:
			return nil, fmt.Errorf("hook %s: unknown type %q", h.Name, h.Type)
		}
	}
	return hooks, nil
}
