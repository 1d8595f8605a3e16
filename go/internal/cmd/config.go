package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// duration wraps time.Duration so yaml values like "5m" decode.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// Config is the full server configuration, loadable from a yaml file with
// environment-variable overrides.
type Config struct {
	Server struct {
		ListenAddr        string `yaml:"listen_addr"`
		HTTPAddr          string `yaml:"http_addr"`
		SendBuffer        int    `yaml:"send_buffer"`
		MaxProtocolErrors int    `yaml:"max_protocol_errors"`
	} `yaml:"server"`
	Auction struct {
		Duration duration `yaml:"duration"`
	} `yaml:"auction"`
	Scheduler struct {
		Workers int `yaml:"workers"`
	} `yaml:"scheduler"`
	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Server.ListenAddr = ":8888"
	cfg.Server.HTTPAddr = ":8889"
	cfg.Server.SendBuffer = 64
	cfg.Server.MaxProtocolErrors = 0
	cfg.Auction.Duration = duration(5 * time.Minute)
	cfg.Scheduler.Workers = 5
	cfg.NATS.Enabled = false
	cfg.NATS.URL = "nats://127.0.0.1:4222"
	cfg.NATS.SubjectPrefix = "auction.events"
	cfg.Log.Level = "info"
	return cfg
}

// loadConfig builds the configuration from defaults, then an optional yaml
// file, then environment variables. path may be empty.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.ListenAddr = getEnv("GAVEL_LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.HTTPAddr = getEnv("GAVEL_HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.SendBuffer = getEnvAsInt("GAVEL_SEND_BUFFER", cfg.Server.SendBuffer)
	cfg.Server.MaxProtocolErrors = getEnvAsInt("GAVEL_MAX_PROTOCOL_ERRORS", cfg.Server.MaxProtocolErrors)
	cfg.Auction.Duration = duration(getEnvAsDuration("GAVEL_AUCTION_DURATION", time.Duration(cfg.Auction.Duration)))
	cfg.Scheduler.Workers = getEnvAsInt("GAVEL_SCHEDULER_WORKERS", cfg.Scheduler.Workers)
	cfg.NATS.Enabled = getEnvAsBool("GAVEL_NATS_ENABLED", cfg.NATS.Enabled)
	cfg.NATS.URL = getEnv("GAVEL_NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("GAVEL_NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.Log.Level = getEnv("GAVEL_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Pretty = getEnvAsBool("GAVEL_LOG_PRETTY", cfg.Log.Pretty)

	if cfg.Auction.Duration <= 0 {
		return nil, fmt.Errorf("auction duration must be positive, got %s", time.Duration(cfg.Auction.Duration))
	}
	if cfg.Server.SendBuffer < 1 {
		return nil, fmt.Errorf("send buffer must be at least 1, got %d", cfg.Server.SendBuffer)
	}
	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
