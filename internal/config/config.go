// Package config loads the broker's environment-derived configuration,
// grounded on the teacher's pkg/config/config.go: godotenv for an
// optional .env file, an optional YAML config file, and struct-tag-driven
// env decoding via envdecode layered on top of hardcoded defaults. The
// Marble/TEE secret-store integration the teacher layers in is dropped —
// this broker's only secret-adjacent input is the opaque "authorization"
// request field, which is never validated against a secret store (spec
// §1 Non-goals).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BrokerConfig holds the broker's environment-derived configuration
// (spec §6 Environment).
type BrokerConfig struct {
	ServerIP   string `yaml:"server_ip" env:"SERVER_IP"`
	ServerPort int    `yaml:"server_port" env:"SERVER_PORT"`
	DataRoot   string `yaml:"data_root" env:"DATA_ROOT"`

	AdminPort      int           `yaml:"admin_port" env:"ADMIN_PORT"`
	MetricsEnabled bool          `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
	RedisAddr      string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	ReportInterval time.Duration `yaml:"report_interval" env:"REPORT_INTERVAL"`
	AcceptTimeout  time.Duration `yaml:"accept_timeout" env:"ACCEPT_TIMEOUT"`
}

// defaults returns a BrokerConfig populated with the broker's baseline
// values, overridden in turn by an optional YAML file and then by the
// environment.
func defaults() BrokerConfig {
	return BrokerConfig{
		ServerIP:       "0.0.0.0",
		ServerPort:     9090,
		DataRoot:       "./data",
		AdminPort:      9091,
		MetricsEnabled: true,
		RedisAddr:      "",
		ReportInterval: 5 * time.Minute,
		AcceptTimeout:  2 * time.Second,
	}
}

// FromEnv loads a BrokerConfig from an optional .env file, an optional
// CONFIG_FILE YAML document, and the process environment, in that order
// of increasing precedence.
func FromEnv() BrokerConfig {
	_ = godotenv.Load()

	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "config: could not load %s: %v\n", path, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil {
		// envdecode errors when none of the tagged fields have a matching
		// env var set; treat that as "no overrides" so local runs work
		// without exporting anything.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			fmt.Fprintf(os.Stderr, "config: env decode: %v\n", err)
		}
	}

	return cfg
}

func loadFromFile(path string, cfg *BrokerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
