package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Gateway struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"gateway"`
	Identity struct {
		APIKey   string `yaml:"api_key"`
		BaseURL  string `yaml:"base_url"`
		TokenURL string `yaml:"token_url"`
	} `yaml:"identity"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Quiz struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"quiz"`
	Certificate struct {
		OutputDir     string `yaml:"output_dir"`
		PassThreshold int    `yaml:"pass_threshold"`
		PageSize      string `yaml:"page_size"`
		Orientation   string `yaml:"orientation"`
		Scale         int    `yaml:"scale"`
	} `yaml:"certificate"`
}

// Default is the configuration used when no file exists.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Gateway.BaseURL = "http://localhost:8000/api"
	cfg.Quiz.CacheTTL = "10m"
	cfg.Certificate.OutputDir = "certificates"
	cfg.Certificate.PassThreshold = 80
	cfg.Certificate.PageSize = "A4"
	cfg.Certificate.Orientation = "landscape"
	cfg.Certificate.Scale = 2
	return cfg
}

// Load reads YAML config from path over the defaults. A missing file is not
// an error. Secrets can be supplied through the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("QUIZDESK_IDENTITY_API_KEY")); v != "" {
		cfg.Identity.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("QUIZDESK_API_URL")); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
