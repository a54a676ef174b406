// Package daemon manages the Iris coordinator lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all coordinator configuration.
type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	API         APIConfig         `toml:"api"`
	Classifier  ClassifierConfig  `toml:"classifier"`
	Multimodal  MultimodalConfig  `toml:"multimodal"`
	Logging     LoggingConfig     `toml:"logging"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// CoordinatorConfig controls the core runtime.
type CoordinatorConfig struct {
	DataDir  string `toml:"data_dir"`
	AdminKey string `toml:"admin_key"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ClassifierConfig selects how prompt difficulty is decided. Mode is one
// of "lexical", "llm" (a local llama.cpp endpoint), or "worker" (offload
// to the fastest online node). Every mode falls back to lexical.
type ClassifierConfig struct {
	Mode        string `toml:"mode"`
	LLMEndpoint string `toml:"llm_endpoint"`
}

// MultimodalConfig controls PDF extraction through an OpenAI-compatible
// endpoint. Without an API key PDF tasks degrade instead of failing.
type MultimodalConfig struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		Coordinator: CoordinatorConfig{
			DataDir: irisHome(),
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9800,
		},
		Classifier: ClassifierConfig{
			Mode:        "lexical",
			LLMEndpoint: "http://127.0.0.1:8080",
		},
		Multimodal: MultimodalConfig{
			Endpoint: "https://openrouter.ai/api/v1",
			Model:    "google/gemini-2.0-flash-001",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads $IRIS_HOME/config.toml over the defaults. A .env file
// next to it is loaded first so secrets can stay out of the TOML; the
// IRIS_ADMIN_KEY and IRIS_MULTIMODAL_KEY variables override their config
// counterparts.
func LoadConfig() (Config, error) {
	_ = godotenv.Load(filepath.Join(irisHome(), ".env"))
	_ = godotenv.Load()

	cfg := DefaultConfig()
	path := filepath.Join(irisHome(), "config.toml")
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("IRIS_ADMIN_KEY"); v != "" {
		cfg.Coordinator.AdminKey = v
	}
	if v := os.Getenv("IRIS_MULTIMODAL_KEY"); v != "" {
		cfg.Multimodal.APIKey = v
	}
	if cfg.Coordinator.DataDir == "" {
		cfg.Coordinator.DataDir = irisHome()
	}
	return cfg, nil
}

// SaveConfig writes the config to $IRIS_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(irisHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// irisHome returns the coordinator data directory.
func irisHome() string {
	if env := os.Getenv("IRIS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".iris")
}
