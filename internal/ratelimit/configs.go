// configs.go: Limit-type registry with file loading and live reload
package ratelimit

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultLimitType is used whenever an unknown limit type is requested.
// Unknown types are never an error.
const DefaultLimitType = "general"

// ConfigRegistry holds the LimitConfig table keyed by limit type and
// supports live reload from a yaml file.
type ConfigRegistry struct {
	mu      sync.RWMutex
	configs map[string]*LimitConfig
	logger  *zap.Logger
	watcher *fsnotify.Watcher
}

// NewConfigRegistry creates a registry seeded with the built-in defaults.
func NewConfigRegistry(logger *zap.Logger) *ConfigRegistry {
	return &ConfigRegistry{
		configs: DefaultConfigs(),
		logger:  logger,
	}
}

// DefaultConfigs returns the built-in limit-type table.
func DefaultConfigs() map[string]*LimitConfig {
	return map[string]*LimitConfig{
		"general": {
			Name:        "general",
			Algorithm:   AlgorithmSlidingWindow,
			Limit:       100,
			Window:      time.Minute,
			Precision:   10 * time.Second,
			Enabled:     true,
			Description: "default per-identifier budget",
		},
		"api": {
			Name:        "api",
			Algorithm:   AlgorithmTokenBucket,
			Capacity:    50,
			RefillRate:  10,
			Enabled:     true,
			Description: "API-key traffic, bursts allowed up to capacity",
		},
		"auth": {
			Name:        "auth",
			Algorithm:   AlgorithmFixedWindow,
			Limit:       5,
			Window:      5 * time.Minute,
			Enabled:     true,
			Description: "login and credential endpoints",
		},
		"admin": {
			Name:        "admin",
			Algorithm:   AlgorithmFixedWindow,
			Limit:       30,
			Window:      time.Minute,
			Enabled:     true,
			Description: "administrative endpoints",
		},
		"upload": {
			Name:        "upload",
			Algorithm:   AlgorithmLeakyBucket,
			Capacity:    10,
			LeakRate:    0.5,
			Enabled:     true,
			Description: "paced admission for heavy requests",
		},
	}
}

// Get returns the config for the given limit type, falling back to the
// general config for unknown types.
func (cr *ConfigRegistry) Get(limitType string) *LimitConfig {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	if cfg, ok := cr.configs[limitType]; ok {
		return cfg
	}
	return cr.configs[DefaultLimitType]
}

// Set installs or replaces a limit type.
func (cr *ConfigRegistry) Set(limitType string, cfg *LimitConfig) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cfg.Name = limitType
	cr.configs[limitType] = cfg
}

// List returns a snapshot of all configured limit types.
func (cr *ConfigRegistry) List() map[string]*LimitConfig {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	out := make(map[string]*LimitConfig, len(cr.configs))
	for k, v := range cr.configs {
		c := *v
		out[k] = &c
	}
	return out
}

// limitConfigFile is the yaml wire form; durations are "30s" style strings.
type limitConfigFile struct {
	Algorithm   string  `yaml:"algorithm"`
	Limit       int     `yaml:"limit"`
	Window      string  `yaml:"window"`
	Precision   string  `yaml:"precision"`
	Capacity    float64 `yaml:"capacity"`
	RefillRate  float64 `yaml:"refill_rate"`
	LeakRate    float64 `yaml:"leak_rate"`
	Enabled     *bool   `yaml:"enabled"`
	Description string  `yaml:"description"`
}

// LoadFromFile merges limit types from a yaml file over the current table.
func (cr *ConfigRegistry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read limits file: %w", err)
	}

	var raw map[string]limitConfigFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse limits file: %w", err)
	}

	parsed := make(map[string]*LimitConfig, len(raw))
	for name, fc := range raw {
		cfg, err := fc.toLimitConfig(name)
		if err != nil {
			return fmt.Errorf("limit type %q: %w", name, err)
		}
		parsed[name] = cfg
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()
	for name, cfg := range parsed {
		cr.configs[name] = cfg
	}
	cr.logger.Info("limit types loaded",
		zap.String("file", path),
		zap.Int("count", len(parsed)))
	return nil
}

func (fc limitConfigFile) toLimitConfig(name string) (*LimitConfig, error) {
	cfg := &LimitConfig{
		Name:        name,
		Algorithm:   fc.Algorithm,
		Limit:       fc.Limit,
		Capacity:    fc.Capacity,
		RefillRate:  fc.RefillRate,
		LeakRate:    fc.LeakRate,
		Enabled:     true,
		Description: fc.Description,
	}
	if fc.Enabled != nil {
		cfg.Enabled = *fc.Enabled
	}
	if fc.Window != "" {
		w, err := time.ParseDuration(fc.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid window: %w", err)
		}
		cfg.Window = w
	}
	if fc.Precision != "" {
		p, err := time.ParseDuration(fc.Precision)
		if err != nil {
			return nil, fmt.Errorf("invalid precision: %w", err)
		}
		cfg.Precision = p
	}
	return cfg, ValidateLimitConfig(cfg)
}

// ValidateLimitConfig rejects configs the engines cannot evaluate.
func ValidateLimitConfig(cfg *LimitConfig) error {
	switch cfg.Algorithm {
	case AlgorithmFixedWindow, AlgorithmSlidingWindow:
		if cfg.Limit <= 0 {
			return fmt.Errorf("limit must be positive, got %d", cfg.Limit)
		}
		if cfg.Window <= 0 {
			return fmt.Errorf("window must be positive, got %v", cfg.Window)
		}
	case AlgorithmTokenBucket:
		if cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
			return fmt.Errorf("token bucket needs positive capacity and refill_rate")
		}
	case AlgorithmLeakyBucket:
		if cfg.Capacity <= 0 || cfg.LeakRate <= 0 {
			return fmt.Errorf("leaky bucket needs positive capacity and leak_rate")
		}
	default:
		return fmt.Errorf("unsupported algorithm: %s", cfg.Algorithm)
	}
	return nil
}

// Watch reloads the limits file on every write until Close is called.
func (cr *ConfigRegistry) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start limits watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch limits file: %w", err)
	}
	cr.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := cr.LoadFromFile(path); err != nil {
						cr.logger.Warn("limits reload failed, keeping previous table",
							zap.String("file", path), zap.Error(err))
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				cr.logger.Warn("limits watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Close stops the file watcher if one is running.
func (cr *ConfigRegistry) Close() error {
	if cr.watcher != nil {
		return cr.watcher.Close()
	}
	return nil
}
