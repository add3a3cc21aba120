package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type UpstreamConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type BoardConfig struct {
	AllowedPipelines []string      `yaml:"allowed_pipelines"`
	PageSize         int           `yaml:"page_size"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	IdleTTL          time.Duration `yaml:"idle_ttl"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Board    BoardConfig    `yaml:"board"`
	Tracing  struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"tracing"`
}

// Path: CRMBOARD_CONFIG или путь по умолчанию.
func Path() string {
	if p := os.Getenv("CRMBOARD_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// LoadConfig читает YAML, затем .env и переменные окружения (секреты), затем дефолты.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	// пустой файл допустим: всё берётся из окружения и дефолтов
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// .env необязателен
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("UPSTREAM_TOKEN"); v != "" {
		c.Upstream.Token = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = 30 * time.Second
	}
	if c.Upstream.RetryDelay <= 0 {
		c.Upstream.RetryDelay = time.Second
	}
	if c.Board.AllowedPipelines == nil {
		c.Board.AllowedPipelines = []string{"Real Estate", "Partners", "Secondary"}
	}
	if c.Board.PageSize <= 0 {
		c.Board.PageSize = 100
	}
	if c.Board.FetchTimeout <= 0 {
		c.Board.FetchTimeout = 30 * time.Second
	}
	if c.Board.IdleTTL <= 0 {
		c.Board.IdleTTL = 30 * time.Minute
	}
	if c.Board.SweepInterval <= 0 {
		c.Board.SweepInterval = time.Minute
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "crmboard"
	}
}
