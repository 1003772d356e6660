// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ricesearch/rice-deteriorate/internal/deteriorate"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/security"
)

// Config holds all application configuration.
type Config struct {
	// Input and output files
	Input InputConfig `yaml:"input"`

	// Single deterioration settings
	Deterioration DeteriorationConfig `yaml:"deterioration"`

	// Parameter grid settings
	Grid GridConfig `yaml:"grid"`

	// Result store configuration
	Store StoreConfig `yaml:"store"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// InputConfig holds file locations.
type InputConfig struct {
	Run    string `envconfig:"RICE_DET_RUN" yaml:"run"`
	Qrels  string `envconfig:"RICE_DET_QRELS" yaml:"qrels"`
	Output string `envconfig:"RICE_DET_OUTPUT" yaml:"output"` // empty = stdout
	Tag    string `envconfig:"RICE_DET_RUN_TAG" yaml:"tag"`
}

// DeteriorationConfig holds the parameters of one deterioration.
type DeteriorationConfig struct {
	Ratio         float64 `envconfig:"RICE_DET_RATIO" yaml:"ratio"`
	Source        string  `envconfig:"RICE_DET_SOURCE" yaml:"source"`           // "lo,hi"
	Destination   string  `envconfig:"RICE_DET_DESTINATION" yaml:"destination"` // "lo,hi"
	Mode          string  `envconfig:"RICE_DET_MODE" yaml:"mode"`
	Swaps         int     `envconfig:"RICE_DET_SWAPS" yaml:"swaps"`
	Replacements  int     `envconfig:"RICE_DET_REPLACEMENTS" yaml:"replacements"`
	Seed          uint64  `envconfig:"RICE_DET_SEED" yaml:"seed"` // 0 = random
	Verbose       bool    `envconfig:"RICE_DET_VERBOSE" yaml:"verbose"`
	ClampQuantity bool    `envconfig:"RICE_DET_CLAMP_QUANTITY" yaml:"clamp_quantity"`
}

// GridConfig holds parameter grid settings. The grid reuses the deterioration ratio and intervals.
type GridConfig struct {
	Max      int      `envconfig:"RICE_DET_GRID_MAX" yaml:"max"` // 0 = half the source interval
	Step     int      `envconfig:"RICE_DET_GRID_STEP" yaml:"step"`
	Workers  int      `envconfig:"RICE_DET_GRID_WORKERS" yaml:"workers"`
	Modes    []string `envconfig:"RICE_DET_GRID_MODES" yaml:"modes"`
	Trim     int      `envconfig:"RICE_DET_GRID_TRIM" yaml:"trim"` // 0 = keep all
	Measures []string `envconfig:"RICE_DET_GRID_MEASURES" yaml:"measures"`
}

// StoreConfig holds result store settings.
type StoreConfig struct {
	Type      string `envconfig:"RICE_DET_STORE_TYPE" yaml:"type"`
	RedisURL  string `envconfig:"RICE_DET_REDIS_URL" yaml:"redis_url"`
	KeyPrefix string `envconfig:"RICE_DET_STORE_PREFIX" yaml:"key_prefix"`
	TTL       int    `envconfig:"RICE_DET_STORE_TTL" yaml:"ttl"` // seconds, 0 = no expiry
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string  `envconfig:"RICE_DET_BUS_TYPE" yaml:"type"`
	KafkaBrokers string  `envconfig:"RICE_DET_KAFKA_BROKERS" yaml:"kafka_brokers"`
	TopicPrefix  string  `envconfig:"RICE_DET_TOPIC_PREFIX" yaml:"topic_prefix"`
	ClientID     string  `envconfig:"RICE_DET_KAFKA_CLIENT_ID" yaml:"client_id"`
	EventLog     string  `envconfig:"RICE_DET_EVENT_LOG" yaml:"event_log"`       // JSONL file, empty = off
	RateLimit    float64 `envconfig:"RICE_DET_BUS_RATE_LIMIT" yaml:"rate_limit"` // events/sec, 0 = unlimited
	Burst        int     `envconfig:"RICE_DET_BUS_BURST" yaml:"burst"`
}

// Brokers splits the comma separated broker list.
func (b BusConfig) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(b.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RICE_DET_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RICE_DET_LOG_FORMAT" yaml:"format"`
	File   string `envconfig:"RICE_DET_LOG_FILE" yaml:"file"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Input = InputConfig{
		Tag: "rice-deteriorate",
	}

	cfg.Deterioration = DeteriorationConfig{
		Ratio:       1.0,
		Source:      "1,10",
		Destination: "11,20",
		Mode:        string(deteriorate.ModeWorse),
	}

	cfg.Grid = GridConfig{
		Step:    1,
		Workers: 4,
		Trim:    1000,
	}

	cfg.Store = StoreConfig{
		Type:      "memory",
		RedisURL:  "redis://localhost:6379",
		KeyPrefix: "rice:deteriorate:",
	}

	cfg.Bus = BusConfig{
		Type:        "memory",
		TopicPrefix: "rice.deteriorate.",
		ClientID:    "rice-deteriorate",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Path validation
	paths := []struct{ name, path string }{
		{"input run", c.Input.Run},
		{"input qrels", c.Input.Qrels},
		{"input output", c.Input.Output},
		{"bus event_log", c.Bus.EventLog},
		{"log file", c.Log.File},
	}
	for _, p := range paths {
		if p.path == "" {
			continue
		}
		if err := security.ValidatePath(p.path); err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s path: %v", p.name, err))
		}
	}

	// Deterioration validation
	if c.Deterioration.Ratio < 0 || c.Deterioration.Ratio > 1 {
		errs = append(errs, "ratio must be between 0 and 1")
	}

	src, srcErr := deteriorate.ParseInterval(c.Deterioration.Source)
	if srcErr != nil {
		errs = append(errs, fmt.Sprintf("invalid source interval: %s", c.Deterioration.Source))
	}
	dst, dstErr := deteriorate.ParseInterval(c.Deterioration.Destination)
	if dstErr != nil {
		errs = append(errs, fmt.Sprintf("invalid destination interval: %s", c.Deterioration.Destination))
	}
	if srcErr == nil && dstErr == nil && src.Overlaps(dst) {
		errs = append(errs, fmt.Sprintf("source %s and destination %s overlap", src, dst))
	}

	if _, err := deteriorate.ParseMode(c.Deterioration.Mode); err != nil {
		errs = append(errs, fmt.Sprintf("invalid mode: %s (must be worse, better, betterworse, or worsebetter)", c.Deterioration.Mode))
	}

	if c.Deterioration.Swaps < 0 || c.Deterioration.Replacements < 0 {
		errs = append(errs, "swaps and replacements must not be negative")
	}

	// Grid validation
	if c.Grid.Max < 0 {
		errs = append(errs, "grid max must not be negative")
	}

	if c.Grid.Step < 1 {
		errs = append(errs, "grid step must be positive")
	}

	if c.Grid.Workers < 1 {
		errs = append(errs, "grid workers must be positive")
	}

	if c.Grid.Trim < 0 {
		errs = append(errs, "grid trim must not be negative")
	}

	for _, m := range c.Grid.Modes {
		if _, err := deteriorate.ParseMode(m); err != nil {
			errs = append(errs, fmt.Sprintf("invalid grid mode: %s", m))
		}
	}

	// Store validation
	validStoreTypes := map[string]bool{"memory": true, "redis": true}
	if !validStoreTypes[c.Store.Type] {
		errs = append(errs, fmt.Sprintf("invalid store type: %s (must be memory or redis)", c.Store.Type))
	}

	if c.Store.TTL < 0 {
		errs = append(errs, "store ttl must not be negative")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true, "none": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory, kafka, or none)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && len(c.Bus.Brokers()) == 0 {
		errs = append(errs, "kafka bus requires kafka_brokers")
	}

	if c.Bus.RateLimit < 0 || c.Bus.Burst < 0 {
		errs = append(errs, "bus rate_limit and burst must not be negative")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Request builds the engine request. Call after Validate.
func (d DeteriorationConfig) Request() (deteriorate.Request, error) {
	src, err := deteriorate.ParseInterval(d.Source)
	if err != nil {
		return deteriorate.Request{}, err
	}
	dst, err := deteriorate.ParseInterval(d.Destination)
	if err != nil {
		return deteriorate.Request{}, err
	}
	mode, err := deteriorate.ParseMode(d.Mode)
	if err != nil {
		return deteriorate.Request{}, err
	}
	return deteriorate.Request{
		Ratio:        d.Ratio,
		Source:       src,
		Destination:  dst,
		Mode:         mode,
		Swaps:        d.Swaps,
		Replacements: d.Replacements,
	}, nil
}

// ParsedModes returns the grid modes, or every mode when none are configured.
func (g GridConfig) ParsedModes() ([]deteriorate.Mode, error) {
	if len(g.Modes) == 0 {
		return deteriorate.Modes(), nil
	}
	modes := make([]deteriorate.Mode, 0, len(g.Modes))
	for _, m := range g.Modes {
		mode, err := deteriorate.ParseMode(m)
		if err != nil {
			return nil, err
		}
		modes = append(modes, mode)
	}
	return modes, nil
}
