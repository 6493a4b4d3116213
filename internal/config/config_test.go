package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain"
)

var envKeys = []string{
	"AGENT_ENDPOINT", "AGENT_ACCESS_KEY", "AGENT_ACCESS_KEY_PARAM",
	"LOG_LEVEL", "LOG_FILE", "AUDIT_TABLE", "PORT", "AUDIT_TTL_DAYS",
	"CORS_ALLOW_ORIGINS", "RATE_LIMIT", "TRUSTED_PROXIES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type fakeKeyGetter struct {
	key   string
	err   error
	calls int
	name  string
}

func (f *fakeKeyGetter) AccessKey(_ context.Context, name string) (string, error) {
	f.calls++
	f.name = name
	return f.key, f.err
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr())
	require.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	require.Empty(t, cfg.Server.TrustedProxies)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, RateLimitConfig{RequestsPerSecond: 2, Burst: 10}, cfg.RateLimit)
	require.Equal(t, 30*24*time.Hour, cfg.AuditTTL())
	require.ErrorIs(t, cfg.Validate(), domain.ErrNotConfigured)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
  allow_origins: ["https://chat.example"]
  trusted_proxies: ["10.0.0.0/8"]
agent:
  endpoint: https://agent.example/
  access_key: from-file
rate_limit:
  requests_per_second: 5
  burst: 20
`)
	t.Setenv("AGENT_ACCESS_KEY", " from-env ")
	t.Setenv("PORT", "9100")
	t.Setenv("RATE_LIMIT", "0.5:3")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("TRUSTED_PROXIES", "192.0.2.10")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://agent.example", cfg.Agent.Endpoint)
	require.Equal(t, "from-env", cfg.Agent.AccessKey)
	require.Equal(t, ":9100", cfg.Addr())
	require.Equal(t, RateLimitConfig{RequestsPerSecond: 0.5, Burst: 3}, cfg.RateLimit)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowOrigins)
	require.Equal(t, []string{"192.0.2.10"}, cfg.Server.TrustedProxies)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidEnvNumbersKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "abc")
	t.Setenv("RATE_LIMIT", "fast:many")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, RateLimitConfig{RequestsPerSecond: 2, Burst: 10}, cfg.RateLimit)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "config: read")
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "agent: [unterminated"))
	require.ErrorContains(t, err, "config: parse")
}

func TestValidate(t *testing.T) {
	cfg := &Config{Agent: AgentConfig{AccessKey: "k"}}
	err := cfg.Validate()
	require.ErrorIs(t, err, domain.ErrNotConfigured)
	require.ErrorContains(t, err, "AGENT_ENDPOINT")

	cfg = &Config{Agent: AgentConfig{Endpoint: "https://agent.example"}}
	err = cfg.Validate()
	require.ErrorIs(t, err, domain.ErrNotConfigured)
	require.ErrorContains(t, err, "AGENT_ACCESS_KEY")
}

func TestResolveAccessKey(t *testing.T) {
	g := &fakeKeyGetter{key: "sk-from-ssm"}
	cfg := &Config{Agent: AgentConfig{Endpoint: "https://agent.example", AccessKeyParam: "/chat-relay/key"}}
	require.True(t, cfg.NeedsAWS())

	require.NoError(t, cfg.ResolveAccessKey(context.Background(), g))
	require.Equal(t, "sk-from-ssm", cfg.Agent.AccessKey)
	require.Equal(t, "/chat-relay/key", g.name)
	require.NoError(t, cfg.Validate())

	// a key already present is never overwritten
	require.NoError(t, cfg.ResolveAccessKey(context.Background(), g))
	require.Equal(t, 1, g.calls)
	require.False(t, cfg.NeedsAWS())
}

func TestResolveAccessKey_Errors(t *testing.T) {
	cfg := &Config{Agent: AgentConfig{AccessKeyParam: "/chat-relay/key"}}
	require.Error(t, cfg.ResolveAccessKey(context.Background(), nil))

	err := cfg.ResolveAccessKey(context.Background(), &fakeKeyGetter{err: errors.New("ssm unavailable")})
	require.ErrorContains(t, err, "ssm unavailable")
	require.Empty(t, cfg.Agent.AccessKey)
}

func TestResolveAccessKey_NoParamIsNoop(t *testing.T) {
	g := &fakeKeyGetter{key: "unused"}
	cfg := &Config{}
	require.NoError(t, cfg.ResolveAccessKey(context.Background(), g))
	require.Zero(t, g.calls)
}
