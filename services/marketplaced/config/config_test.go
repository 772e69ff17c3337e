package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testOperator = "0x00000000000000000000000000000000000000e1"
	testVault    = "0x00000000000000000000000000000000000000f1"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, envPrefix) {
			t.Setenv(key, "")
		}
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "marketplaced.yaml", `
listen: ":9090"
operator: "`+testOperator+`"
vault: "`+testVault+`"
storage:
  engine: LevelDB
  path: /var/lib/marketplace
journal:
  driver: sqlite
  dsn: file:journal.db
auth:
  enabled: true
  hmacSecret: s3cret
readTimeout: 5s
rateLimits:
  listings:
    ratePerSecond: 2
    burst: 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9090" || cfg.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected server config %+v", cfg)
	}
	if cfg.Storage.Engine != "leveldb" {
		t.Fatalf("engine not normalised: %q", cfg.Storage.Engine)
	}
	if cfg.RateLimits["listings"].Burst != 4 {
		t.Fatalf("rate limit not decoded: %+v", cfg.RateLimits)
	}
	if cfg.RateLimits["proceeds"].Burst == 0 {
		t.Fatalf("default rate limits dropped")
	}
	if cfg.OperatorAddress().Hex() == cfg.VaultAddress().Hex() {
		t.Fatalf("operator and vault collapsed")
	}
	if cfg.Auth.AdminScope != "marketplace:admin" {
		t.Fatalf("admin scope default lost: %q", cfg.Auth.AdminScope)
	}
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "marketplaced.toml", `
listen = ":7070"
operator = "`+testOperator+`"
vault = "`+testVault+`"
idleTimeout = "1m"

[storage]
engine = "bolt"
path = "/tmp/market.bolt"

[auth]
enabled = false

[observability]
environment = "staging"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7070" || cfg.IdleTimeout != time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Auth.Enabled {
		t.Fatalf("expected auth disabled")
	}
}

func TestLoadRejectsUnknownTOMLKey(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "marketplaced.toml", "operator = \""+testOperator+"\"\nvault = \""+testVault+"\"\nbogus = 1\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MARKETPLACE_OPERATOR", testOperator)
	t.Setenv("MARKETPLACE_VAULT", testVault)
	t.Setenv("MARKETPLACE_AUTH_SECRET", "from-env")
	t.Setenv("MARKETPLACE_LISTEN", ":6060")
	t.Setenv("MARKETPLACE_JOURNAL_DRIVER", "postgres")
	t.Setenv("MARKETPLACE_JOURNAL_DSN", "postgres://market@localhost/market")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":6060" || cfg.Auth.HMACSecret != "from-env" || cfg.Journal.Driver != "postgres" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}

	t.Setenv("MARKETPLACE_AUTH_ENABLED", "maybe")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected invalid boolean to fail")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := defaults()
		cfg.Operator = testOperator
		cfg.Vault = testVault
		cfg.Auth.HMACSecret = "secret"
		return cfg
	}
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing operator", func(c *Config) { c.Operator = "" }},
		{"bad vault", func(c *Config) { c.Vault = "vault" }},
		{"zero vault", func(c *Config) { c.Vault = "0x0000000000000000000000000000000000000000" }},
		{"same addresses", func(c *Config) { c.Vault = c.Operator }},
		{"unknown engine", func(c *Config) { c.Storage.Engine = "rocks" }},
		{"leveldb without path", func(c *Config) { c.Storage.Engine = "leveldb" }},
		{"journal without dsn", func(c *Config) { c.Journal.Driver = "sqlite" }},
		{"unknown journal", func(c *Config) { c.Journal.Driver = "mongo"; c.Journal.DSN = "x" }},
		{"auth without secret", func(c *Config) { c.Auth.HMACSecret = "" }},
		{"relative optional path", func(c *Config) { c.Auth.OptionalPaths = []string{"healthz"} }},
		{"zero burst", func(c *Config) { c.RateLimits["listings"] = RateLimitConfig{RatePerSecond: 1} }},
		{"sample ratio", func(c *Config) { c.Observability.SampleRatio = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
}

func TestAuthMustBeExplicitOutsideDev(t *testing.T) {
	cfg := defaults()
	cfg.Operator = testOperator
	cfg.Vault = testVault
	cfg.Auth.HMACSecret = "secret"
	cfg.Observability.Environment = "prod"
	if err := cfg.Validate(); !errors.Is(err, ErrAuthEnabledNotConfigured) {
		t.Fatalf("expected explicit auth error, got %v", err)
	}
}
