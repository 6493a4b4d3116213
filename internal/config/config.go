package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chat-relay/internal/domain"
)

const defaultConfigPath = "etc/chat-relay.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Agent     AgentConfig     `yaml:"agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig configures the HTTP server. TrustedProxies lists the proxy IPs
// or CIDRs whose X-Forwarded-For header is believed; empty trusts none and the
// client IP is the connection's remote address.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowOrigins   []string `yaml:"allow_origins"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AgentConfig locates the remote agent. AccessKeyParam names an SSM parameter
// to read the key from when AccessKey is not set directly.
type AgentConfig struct {
	Endpoint       string `yaml:"endpoint"`
	AccessKey      string `yaml:"access_key"`
	AccessKeyParam string `yaml:"access_key_param"`
}

// RateLimitConfig is a per-client token bucket. A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AuditConfig enables the DynamoDB relay audit trail when Table is set.
type AuditConfig struct {
	Table   string `yaml:"table"`
	TTLDays int    `yaml:"ttl_days"`
}

// AccessKeyGetter resolves an access key stored outside the process environment.
type AccessKeyGetter interface {
	AccessKey(ctx context.Context, name string) (string, error)
}

func defaults() *Config {
	return &Config{
		Server:    ServerConfig{Port: 8080, AllowOrigins: []string{"*"}},
		Log:       LogConfig{Level: "info", Console: true, MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		RateLimit: RateLimitConfig{RequestsPerSecond: 2, Burst: 10},
		Audit:     AuditConfig{TTLDays: 30},
	}
}

// Load builds the configuration from defaults, then the YAML file at path,
// then environment variables. An empty path tries etc/chat-relay.yaml and
// skips it silently when absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	c := defaults()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	envOverride(&c.Agent.Endpoint, "AGENT_ENDPOINT")
	envOverride(&c.Agent.AccessKey, "AGENT_ACCESS_KEY")
	envOverride(&c.Agent.AccessKeyParam, "AGENT_ACCESS_KEY_PARAM")
	envOverride(&c.Log.Level, "LOG_LEVEL")
	envOverride(&c.Log.File, "LOG_FILE")
	envOverride(&c.Audit.Table, "AUDIT_TABLE")
	envOverrideInt(&c.Server.Port, "PORT")
	envOverrideInt(&c.Audit.TTLDays, "AUDIT_TTL_DAYS")
	envOverrideList(&c.Server.AllowOrigins, "CORS_ALLOW_ORIGINS")
	envOverrideList(&c.Server.TrustedProxies, "TRUSTED_PROXIES")
	envOverrideRateLimit(&c.RateLimit, "RATE_LIMIT")

	c.Agent.Endpoint = strings.TrimRight(strings.TrimSpace(c.Agent.Endpoint), "/")
	c.Agent.AccessKey = strings.TrimSpace(c.Agent.AccessKey)
	return c, nil
}

// ResolveAccessKey fills Agent.AccessKey from the parameter named by
// Agent.AccessKeyParam. A key set directly wins and g is not called.
func (c *Config) ResolveAccessKey(ctx context.Context, g AccessKeyGetter) error {
	if c.Agent.AccessKey != "" || c.Agent.AccessKeyParam == "" {
		return nil
	}
	if g == nil {
		return errors.New("config: access key getter must not be nil")
	}
	key, err := g.AccessKey(ctx, c.Agent.AccessKeyParam)
	if err != nil {
		return fmt.Errorf("config: resolve access key: %w", err)
	}
	c.Agent.AccessKey = key
	return nil
}

// NeedsAWS reports whether any configured feature talks to AWS.
func (c *Config) NeedsAWS() bool {
	return (c.Agent.AccessKey == "" && c.Agent.AccessKeyParam != "") || c.Audit.Table != ""
}

// Validate reports a missing agent endpoint or access key.
func (c *Config) Validate() error {
	if c.Agent.Endpoint == "" {
		return fmt.Errorf("config: AGENT_ENDPOINT is not set: %w", domain.ErrNotConfigured)
	}
	if c.Agent.AccessKey == "" {
		return fmt.Errorf("config: AGENT_ACCESS_KEY is not set: %w", domain.ErrNotConfigured)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) AuditTTL() time.Duration {
	return time.Duration(c.Audit.TTLDays) * 24 * time.Hour
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOverrideList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

// envOverrideRateLimit reads "rate:burst", e.g. "2:10". "0" disables limiting.
func envOverrideRateLimit(dst *RateLimitConfig, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.SplitN(v, ":", 2)
	if rate, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err == nil && rate >= 0 {
		dst.RequestsPerSecond = rate
	}
	if len(parts) > 1 {
		if burst, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && burst > 0 {
			dst.Burst = burst
		}
	}
}
