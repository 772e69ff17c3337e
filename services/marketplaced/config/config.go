package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const envPrefix = "MARKETPLACE_"

type StorageConfig struct {
	Engine string `yaml:"engine" toml:"engine"`
	Path   string `yaml:"path" toml:"path"`
}

// JournalConfig selects the relational store that keeps every committed
// event. An empty driver disables the journal.
type JournalConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

type IdempotencyConfig struct {
	Path string        `yaml:"path" toml:"path"`
	TTL  time.Duration `yaml:"ttl" toml:"ttl"`
}

type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"ratePerSecond" toml:"ratePerSecond"`
	Burst         int     `yaml:"burst" toml:"burst"`
}

type ObservabilityConfig struct {
	ServiceName  string  `yaml:"serviceName" toml:"serviceName"`
	Environment  string  `yaml:"environment" toml:"environment"`
	Metrics      bool    `yaml:"metrics" toml:"metrics"`
	Tracing      bool    `yaml:"tracing" toml:"tracing"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" toml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure" toml:"otlpInsecure"`
	OTLPHeaders  string  `yaml:"otlpHeaders" toml:"otlpHeaders"`
	SampleRatio  float64 `yaml:"sampleRatio" toml:"sampleRatio"`
	LogRequests  bool    `yaml:"logRequests" toml:"logRequests"`
	LogLevel     string  `yaml:"logLevel" toml:"logLevel"`
	LogFile      string  `yaml:"logFile" toml:"logFile"`
}

type AuthConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	HMACSecret    string        `yaml:"hmacSecret" toml:"hmacSecret"`
	Issuer        string        `yaml:"issuer" toml:"issuer"`
	Audience      string        `yaml:"audience" toml:"audience"`
	ScopeClaim    string        `yaml:"scopeClaim" toml:"scopeClaim"`
	AdminScope    string        `yaml:"adminScope" toml:"adminScope"`
	OptionalPaths []string      `yaml:"optionalPaths" toml:"optionalPaths"`
	ClockSkew     time.Duration `yaml:"clockSkew" toml:"clockSkew"`
	enabledSet    bool
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled       *bool         `yaml:"enabled"`
		HMACSecret    string        `yaml:"hmacSecret"`
		Issuer        string        `yaml:"issuer"`
		Audience      string        `yaml:"audience"`
		ScopeClaim    string        `yaml:"scopeClaim"`
		AdminScope    string        `yaml:"adminScope"`
		OptionalPaths []string      `yaml:"optionalPaths"`
		ClockSkew     time.Duration `yaml:"clockSkew"`
	}
	raw := rawAuthConfig{
		HMACSecret:    a.HMACSecret,
		Issuer:        a.Issuer,
		Audience:      a.Audience,
		ScopeClaim:    a.ScopeClaim,
		AdminScope:    a.AdminScope,
		OptionalPaths: a.OptionalPaths,
		ClockSkew:     a.ClockSkew,
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		a.Enabled = *raw.Enabled
		a.enabledSet = true
	}
	a.HMACSecret = raw.HMACSecret
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.ScopeClaim = raw.ScopeClaim
	a.AdminScope = raw.AdminScope
	a.OptionalPaths = raw.OptionalPaths
	a.ClockSkew = raw.ClockSkew
	return nil
}

// Config is the runtime configuration of marketplaced.
type Config struct {
	ListenAddress   string                     `yaml:"listen" toml:"listen"`
	ReadTimeout     time.Duration              `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout    time.Duration              `yaml:"writeTimeout" toml:"writeTimeout"`
	IdleTimeout     time.Duration              `yaml:"idleTimeout" toml:"idleTimeout"`
	ShutdownTimeout time.Duration              `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	AllowedOrigins  []string                   `yaml:"allowedOrigins" toml:"allowedOrigins"`
	Operator        string                     `yaml:"operator" toml:"operator"`
	Vault           string                     `yaml:"vault" toml:"vault"`
	EventHistory    int                        `yaml:"eventHistory" toml:"eventHistory"`
	Storage         StorageConfig              `yaml:"storage" toml:"storage"`
	Journal         JournalConfig              `yaml:"journal" toml:"journal"`
	Idempotency     IdempotencyConfig          `yaml:"idempotency" toml:"idempotency"`
	Auth            AuthConfig                 `yaml:"auth" toml:"auth"`
	RateLimits      map[string]RateLimitConfig `yaml:"rateLimits" toml:"rateLimits"`
	Observability   ObservabilityConfig        `yaml:"observability" toml:"observability"`
}

func defaults() Config {
	return Config{
		ListenAddress:   ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		EventHistory:    2048,
		Storage:         StorageConfig{Engine: "memory"},
		Idempotency:     IdempotencyConfig{TTL: 24 * time.Hour},
		Auth: AuthConfig{
			Enabled:    true,
			ScopeClaim: "scope",
			AdminScope: "marketplace:admin",
			ClockSkew:  2 * time.Minute,
		},
		RateLimits: map[string]RateLimitConfig{
			"listings": {RatePerSecond: 20, Burst: 40},
			"proceeds": {RatePerSecond: 5, Burst: 10},
		},
		Observability: ObservabilityConfig{
			ServiceName: "marketplaced",
			Environment: "dev",
			Metrics:     true,
			LogRequests: true,
			LogLevel:    "info",
		},
	}
}

// Load reads path on top of the defaults, applies MARKETPLACE_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if meta.IsDefined("auth", "enabled") {
			cfg.Auth.enabledSet = true
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode config: unknown key %s", undecoded[0])
		}
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("LISTEN", &cfg.ListenAddress)
	str("OPERATOR", &cfg.Operator)
	str("VAULT", &cfg.Vault)
	str("STORAGE_ENGINE", &cfg.Storage.Engine)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("JOURNAL_DRIVER", &cfg.Journal.Driver)
	str("JOURNAL_DSN", &cfg.Journal.DSN)
	str("IDEMPOTENCY_PATH", &cfg.Idempotency.Path)
	str("AUTH_SECRET", &cfg.Auth.HMACSecret)
	str("AUTH_ISSUER", &cfg.Auth.Issuer)
	str("AUTH_AUDIENCE", &cfg.Auth.Audience)
	str("ENV", &cfg.Observability.Environment)
	str("LOG_LEVEL", &cfg.Observability.LogLevel)
	str("LOG_FILE", &cfg.Observability.LogFile)
	str("OTLP_ENDPOINT", &cfg.Observability.OTLPEndpoint)
	str("OTLP_HEADERS", &cfg.Observability.OTLPHeaders)
	if v, ok := lookup(envPrefix + "AUTH_ENABLED"); ok && strings.TrimSpace(v) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %sAUTH_ENABLED: %w", envPrefix, err)
		}
		cfg.Auth.Enabled = enabled
		cfg.Auth.enabledSet = true
	}
	if v, ok := lookup(envPrefix + "TRACING"); ok && strings.TrimSpace(v) != "" {
		tracing, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %sTRACING: %w", envPrefix, err)
		}
		cfg.Observability.Tracing = tracing
	}
	return nil
}

var ErrAuthEnabledNotConfigured = errors.New("auth.enabled must be explicitly set outside the dev environment")

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address required")
	}
	operator, err := parseAddress("operator", cfg.Operator)
	if err != nil {
		return err
	}
	vault, err := parseAddress("vault", cfg.Vault)
	if err != nil {
		return err
	}
	if operator == vault {
		return fmt.Errorf("operator and vault must differ")
	}

	cfg.Storage.Engine = strings.ToLower(strings.TrimSpace(cfg.Storage.Engine))
	switch cfg.Storage.Engine {
	case "memory":
	case "leveldb", "bolt":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path required for %s", cfg.Storage.Engine)
		}
	default:
		return fmt.Errorf("unsupported storage.engine %q", cfg.Storage.Engine)
	}

	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	switch cfg.Journal.Driver {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(cfg.Journal.DSN) == "" {
			return fmt.Errorf("journal.dsn required for %s", cfg.Journal.Driver)
		}
	default:
		return fmt.Errorf("unsupported journal.driver %q", cfg.Journal.Driver)
	}

	if !isDevEnv(cfg.Observability.Environment) && !cfg.Auth.enabledSet {
		return ErrAuthEnabledNotConfigured
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmacSecret required when auth is enabled")
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	trimmed := make([]string, len(cfg.Auth.OptionalPaths))
	for i, path := range cfg.Auth.OptionalPaths {
		p := strings.TrimSpace(path)
		if p == "" {
			return fmt.Errorf("auth.optionalPaths[%d] cannot be empty", i)
		}
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("auth.optionalPaths[%d] must start with '/'", i)
		}
		trimmed[i] = p
	}
	cfg.Auth.OptionalPaths = trimmed

	for name, limit := range cfg.RateLimits {
		if limit.RatePerSecond <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("rateLimits.%s must set a positive ratePerSecond and burst", name)
		}
	}
	if ratio := cfg.Observability.SampleRatio; ratio < 0 || ratio > 1 {
		return fmt.Errorf("observability.sampleRatio must be within [0,1]")
	}
	if cfg.EventHistory <= 0 {
		cfg.EventHistory = 2048
	}
	return nil
}

// OperatorAddress returns the validated operator address.
func (cfg Config) OperatorAddress() common.Address { return common.HexToAddress(cfg.Operator) }

// VaultAddress returns the validated vault address.
func (cfg Config) VaultAddress() common.Address { return common.HexToAddress(cfg.Vault) }

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s address required", field)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s address %q is not a hex address", field, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s address must not be zero", field)
	}
	return addr, nil
}

func isDevEnv(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "dev")
}
