package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP (optional; sync notifications are skipped when URL is empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Agent
	APIBaseURL   string
	AgentDBPath  string
	SyncInterval time.Duration
	ProbeInterval time.Duration
	HTTPTimeout  time.Duration

	// Aggregate cache
	CacheTTL time.Duration
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8080"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/kakebo.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kakebo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_required"),

		APIBaseURL:    getEnv("API_BASE_URL", "http://localhost:8080"),
		AgentDBPath:   getEnv("AGENT_DB_PATH", "./data/kakebo-agent.db"),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		ProbeInterval: getEnvDuration("PROBE_INTERVAL", 10*time.Second),
		HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 15*time.Second),

		CacheTTL: getEnvDuration("CACHE_TTL", 30*time.Second),
	}
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.APIBaseURL != "" {
		if parsed, err := url.Parse(c.APIBaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid API base URL '%s'", c.APIBaseURL))
		}
	}

	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.ProbeInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid probe interval %v: must be at least 1 second", c.ProbeInterval))
	}

	if c.HTTPTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
