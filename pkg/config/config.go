package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/strata/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in TOML
// section order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(orderedKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}
	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target .strata/ directory. Keys
// missing from the file keep their NewDefaultConfig value, so callers always
// receive a fully populated Config.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := parseOnto(cfg, data); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig persists the configuration to config.toml in the target .strata/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config without applying
// defaults. Returns an error if the version field is present and not equal
// to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := parseOnto(cfg, data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseOnto(cfg *Config, data []byte) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Relational.Provider {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported relational provider: %q", c.Relational.Provider)
	}
	if c.Relational.Provider == "postgres" && c.Relational.DSN == "" {
		return errors.New("relational.dsn is required for postgres")
	}

	switch c.VectorStore.Provider {
	case "sqlitevec", "qdrant", "chroma", "memory":
	default:
		return fmt.Errorf("unsupported vector store provider: %q", c.VectorStore.Provider)
	}

	if c.Embedding.Dimensions == 0 {
		return errors.New("embedding.dimensions must be greater than zero")
	}

	if c.Query.VectorWeight < 0 || c.Query.TextWeight < 0 {
		return errors.New("query weights must be non-negative")
	}
	if c.Query.VectorWeight+c.Query.TextWeight == 0 {
		return errors.New("query weights must not both be zero")
	}

	if c.Strategy.SmallBytes <= 0 || c.Strategy.LargeBytes <= c.Strategy.SmallBytes {
		return fmt.Errorf("strategy thresholds must satisfy 0 < small_bytes < large_bytes (got %d, %d)",
			c.Strategy.SmallBytes, c.Strategy.LargeBytes)
	}

	if c.Ingest.MaxConcurrency <= 0 {
		return errors.New("ingest.max_concurrency must be greater than zero")
	}

	if c.Performance.WindowMinutes <= 0 {
		return errors.New("performance.window_minutes must be greater than zero")
	}
	if c.Performance.ConsecutiveWindows <= 0 {
		return errors.New("performance.consecutive_windows must be greater than zero")
	}

	switch c.Events.Provider {
	case "nop", "":
	case "kafka":
		if len(c.Events.Brokers) == 0 {
			return errors.New("events.brokers is required for kafka")
		}
	default:
		return fmt.Errorf("unsupported events provider: %q", c.Events.Provider)
	}

	return nil
}
