package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ricesearch/rice-deteriorate/internal/deteriorate"
)

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("RICE_DET_RATIO", "0.5")
	t.Setenv("RICE_DET_MODE", "better")
	t.Setenv("RICE_DET_LOG_LEVEL", "debug")
	t.Setenv("RICE_DET_GRID_MODES", "worse,betterworse")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Deterioration.Ratio != 0.5 {
		t.Errorf("Ratio = %v, want 0.5", cfg.Deterioration.Ratio)
	}

	if cfg.Deterioration.Mode != "better" {
		t.Errorf("Mode = %s, want better", cfg.Deterioration.Mode)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}

	modes, err := cfg.Grid.ParsedModes()
	if err != nil {
		t.Fatalf("ParsedModes() error = %v", err)
	}
	if len(modes) != 2 || modes[0] != deteriorate.ModeWorse || modes[1] != deteriorate.ModeBetterWorse {
		t.Errorf("ParsedModes() = %v, want [worse betterworse]", modes)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
input:
  run: run.txt
  qrels: qrels.txt
deterioration:
  ratio: 0.25
  source: "1,5"
  destination: "50-100"
  mode: worsebetter
  swaps: 2
  replacements: 1
  seed: 7
grid:
  workers: 8
  measures: [P_10, map]
store:
  type: redis
  redis_url: "redis://cache:6379/2"
log:
  level: warn
  format: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Input.Run != "run.txt" || cfg.Input.Qrels != "qrels.txt" {
		t.Errorf("Input = %+v", cfg.Input)
	}

	if cfg.Grid.Workers != 8 {
		t.Errorf("Grid.Workers = %d, want 8", cfg.Grid.Workers)
	}

	if len(cfg.Grid.Measures) != 2 {
		t.Errorf("Grid.Measures = %v, want 2 measures", cfg.Grid.Measures)
	}

	if cfg.Grid.Step != 1 {
		t.Errorf("Grid.Step = %d, want default 1", cfg.Grid.Step)
	}

	if cfg.Store.RedisURL != "redis://cache:6379/2" {
		t.Errorf("Store.RedisURL = %s", cfg.Store.RedisURL)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %s, want json", cfg.Log.Format)
	}

	req, err := cfg.Deterioration.Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	want := deteriorate.Request{
		Ratio:        0.25,
		Source:       deteriorate.Interval{Lo: 1, Hi: 5},
		Destination:  deteriorate.Interval{Lo: 50, Hi: 100},
		Mode:         deteriorate.ModeWorseBetter,
		Swaps:        2,
		Replacements: 1,
	}
	if req != want {
		t.Errorf("Request() = %+v, want %+v", req, want)
	}

	if cfg.Deterioration.Seed != 7 {
		t.Errorf("Seed = %d, want 7", cfg.Deterioration.Seed)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "ratio out of range",
			modify: func(c *Config) {
				c.Deterioration.Ratio = 1.5
			},
			wantErr: true,
		},
		{
			name: "bad interval",
			modify: func(c *Config) {
				c.Deterioration.Source = "ten"
			},
			wantErr: true,
		},
		{
			name: "overlapping intervals",
			modify: func(c *Config) {
				c.Deterioration.Source = "1,12"
			},
			wantErr: true,
		},
		{
			name: "invalid mode",
			modify: func(c *Config) {
				c.Deterioration.Mode = "all"
			},
			wantErr: true,
		},
		{
			name: "negative swaps",
			modify: func(c *Config) {
				c.Deterioration.Swaps = -1
			},
			wantErr: true,
		},
		{
			name: "zero grid step",
			modify: func(c *Config) {
				c.Grid.Step = 0
			},
			wantErr: true,
		},
		{
			name: "invalid grid mode",
			modify: func(c *Config) {
				c.Grid.Modes = []string{"worse", "sideways"}
			},
			wantErr: true,
		},
		{
			name: "invalid store type",
			modify: func(c *Config) {
				c.Store.Type = "invalid"
			},
			wantErr: true,
		},
		{
			name: "kafka without brokers",
			modify: func(c *Config) {
				c.Bus.Type = "kafka"
			},
			wantErr: true,
		},
		{
			name: "kafka with brokers",
			modify: func(c *Config) {
				c.Bus.Type = "kafka"
				c.Bus.KafkaBrokers = "k1:9092, k2:9092"
			},
			wantErr: false,
		},
		{
			name: "run path with null byte",
			modify: func(c *Config) {
				c.Input.Run = "runs/input\x00.bm25"
			},
			wantErr: true,
		},
		{
			name: "absolute output path",
			modify: func(c *Config) {
				c.Input.Output = "/tmp/deteriorated.run"
			},
			wantErr: false,
		},
		{
			name: "negative bus rate",
			modify: func(c *Config) {
				c.Bus.RateLimit = -1
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBrokers(t *testing.T) {
	b := BusConfig{KafkaBrokers: " k1:9092,,k2:9092 "}
	got := b.Brokers()
	if len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Errorf("Brokers() = %v", got)
	}
}

func TestParsedModes_Default(t *testing.T) {
	modes, err := GridConfig{}.ParsedModes()
	if err != nil {
		t.Fatalf("ParsedModes() error = %v", err)
	}
	if len(modes) != len(deteriorate.Modes()) {
		t.Errorf("ParsedModes() = %v, want every mode", modes)
	}
}
