package config

import (
	"fmt"
	"strings"
	"time"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
	"github.com/cadre-oss/agentmem/internal/event"
)

// Validate checks a configuration and reports every problem at once.
func Validate(cfg *Config) error {
	var errors []string

	if err := cfg.Memory.Limits.Validate(); err != nil {
		l := cfg.Memory.Limits
		errors = append(errors, fmt.Sprintf("memory.limits must satisfy 0 < warn (%d) < critical (%d) <= max (%d)",
			l.WarnBytes, l.CriticalBytes, l.MaxBytes))
	}
	if cfg.Memory.MemoryDir != "" && strings.Contains(cfg.Memory.MemoryDir, "..") {
		errors = append(errors, "memory.memory_dir must not contain '..'")
	}

	if cfg.Loader.MaxBytes < 0 {
		errors = append(errors, "loader.max_bytes must be positive")
	}
	if cfg.Loader.MaxTokens < 0 {
		errors = append(errors, "loader.max_tokens must be non-negative")
	}
	if cfg.Metrics.MaxBytes < 0 {
		errors = append(errors, "metrics.max_bytes must be non-negative")
	}
	validTokenizers := map[string]bool{
		"estimate": true,
		"tiktoken": true,
		"":         true, // defaults to estimate
	}
	if !validTokenizers[cfg.Loader.Tokenizer] {
		errors = append(errors, fmt.Sprintf("invalid loader.tokenizer: %s (must be estimate or tiktoken)", cfg.Loader.Tokenizer))
	}

	// Validate timeout format at validation time
	if cfg.Consolidate.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Consolidate.Timeout); err != nil {
			errors = append(errors, fmt.Sprintf("invalid consolidate.timeout %q: %s", cfg.Consolidate.Timeout, err))
		} else if d <= 0 {
			errors = append(errors, "consolidate.timeout must be positive")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errors = append(errors, fmt.Sprintf("invalid logging.level: %s", cfg.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true, "": true}
	if !validFormats[cfg.Logging.Format] {
		errors = append(errors, fmt.Sprintf("invalid logging.format: %s", cfg.Logging.Format))
	}

	errors = append(errors, validateHooks(cfg.Hooks)...)

	if len(errors) > 0 {
		return memerrors.New(memerrors.CodeConfigInvalid, "config validation failed: "+strings.Join(errors, "; ")).
			WithSuggestion("run 'agentmem config validate' after fixing agentmem.yaml")
	}
	return nil
}

func validateHooks(hc HooksConfig) []string {
	var errors []string
	names := make(map[string]bool)
	for i, h := range hc.Hooks {
		label := h.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			errors = append(errors, fmt.Sprintf("hook %s: name is required", label))
		} else if names[h.Name] {
			errors = append(errors, fmt.Sprintf("duplicate hook name: %s", h.Name))
		}
		names[h.Name] = true

		switch h.Type {
		case "shell":
			if h.Command == "" {
				errors = append(errors, fmt.Sprintf("hook %s: shell hook requires a command", label))
			}
		case "webhook":
			if h.URL == "" {
				errors = append(errors, fmt.Sprintf("hook %s: webhook hook requires a url", label))
			}
		case "log":
		default:
			errors = append(errors, fmt.Sprintf("hook %s: invalid type %q (must be shell, webhook, or log)", label, h.Type))
		}

		if _, err := event.ParseTypes(h.Events); err != nil {
			errors = append(errors, fmt.Sprintf("hook %s: %s", label, err))
		}
	}
	return errors
}
