// Package config loads proxy settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level proxy configuration. Every field has a default;
// the file and every key in it are optional.
type Config struct {
	Listen         string    `yaml:"listen"`
	TimeoutSeconds int       `yaml:"timeout_seconds"`
	UserAgent      string    `yaml:"user_agent"`
	AllowedDomains []string  `yaml:"allowed_domains"`
	MaxIdleConns   int       `yaml:"max_idle_conns"`
	Metrics        bool      `yaml:"metrics"`
	RateLimit      RateLimit `yaml:"rate_limit"`
	LogURLs        bool      `yaml:"log_urls"`
}

// RateLimit controls per-IP inbound request limiting.
type RateLimit struct {
	Enabled   bool `yaml:"enabled"`
	PerMinute int  `yaml:"per_minute"`
}

// Load reads path (skipped when empty), applies env overrides, fills
// defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("syntax error in config file '%s': %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("ALLOWED_DOMAINS"); v != "" {
		c.AllowedDomains = splitTrim(v)
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TimeoutSeconds = n
		}
	}
	if os.Getenv("LOG_URLS") == "true" {
		c.LogURLs = true
	}
}

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 15
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 300
	}
}

func (c *Config) validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be non-negative; got %d", c.TimeoutSeconds)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns must be non-negative; got %d", c.MaxIdleConns)
	}
	if c.RateLimit.Enabled && c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate_limit.per_minute must be > 0 when rate limiting is enabled; got %d", c.RateLimit.PerMinute)
	}
	return nil
}

// AllowsHost reports whether host may be proxied. An empty allowlist allows
// every host; otherwise a host matches a configured domain exactly or as a
// subdomain of it.
func (c *Config) AllowsHost(host string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}
	for _, domain := range c.AllowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
