package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ReportsConfig struct {
	Directory string `yaml:"directory"`
	FontPath  string `yaml:"font_path"`
}

type ScannerConfig struct {
	// IngestToken authenticates the external scanner on /internal routes.
	// Overridable via SITEWARDEN_INGEST_TOKEN for deployments.
	IngestToken  string `yaml:"ingest_token"`
	HistoryLimit int    `yaml:"history_limit"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Reports  ReportsConfig  `yaml:"reports"`
	Scanner  ScannerConfig  `yaml:"scanner"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "sitewarden.db",
		},
		Reports: ReportsConfig{
			Directory: "./reports",
		},
		Scanner: ScannerConfig{
			HistoryLimit: 10,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if tok := os.Getenv("SITEWARDEN_INGEST_TOKEN"); tok != "" {
		cfg.Scanner.IngestToken = tok
	}
	if cfg.Scanner.HistoryLimit <= 0 {
		cfg.Scanner.HistoryLimit = 10
	}

	return cfg, nil
}
