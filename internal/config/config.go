// Package config loads the service configuration from a YAML file and
// applies COSIGN_* environment overrides on top.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/objectstore"
	"github.com/StudioVBG/TALOK-sub014/pkg/logger"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig       `yaml:"server"`
	Log     logger.Config      `yaml:"log"`
	Store   StoreConfig        `yaml:"store"`
	Tokens  TokenConfig        `yaml:"tokens"`
	OTP     OTPConfig          `yaml:"otp"`
	Proof   ProofConfig        `yaml:"proof"`
	Objects objectstore.Config `yaml:"objects"`
	Notify  NotifyConfig       `yaml:"notify"`
	HTTP    HTTPConfig         `yaml:"http"`
	Signing SigningConfig      `yaml:"signing"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // postgres, memory
	DSN         string `yaml:"dsn"`
	MaxConns    int    `yaml:"max_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	SeedFile    string `yaml:"seed_file"`
}

type TokenConfig struct {
	Secret       string `yaml:"secret"`
	MaxAgeDays   int    `yaml:"max_age_days"`
	AcceptLegacy bool   `yaml:"accept_legacy"`
	// LegacyCutoff is an RFC 3339 instant; legacy links issued after it are refused.
	LegacyCutoff string `yaml:"legacy_cutoff"`
}

type OTPConfig struct {
	Length      int           `yaml:"length"`
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	Pepper      string        `yaml:"pepper"`
	// ExposeCodes echoes codes in API responses and logs. Development only.
	ExposeCodes bool          `yaml:"expose_codes"`
}

type ProofConfig struct {
	// SigningKeySeed is a base64 ed25519 seed.
	SigningKeySeed string `yaml:"signing_key_seed"`
	KeyID          string `yaml:"key_id"`
	IdentityMethod string `yaml:"identity_method"`
}

type NotifyConfig struct {
	Driver  string        `yaml:"driver"` // webhook, log
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

type HTTPConfig struct {
	AdminToken         string `yaml:"admin_token"`
	TrustProxy         bool   `yaml:"trust_proxy"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes"`
	OTPPerIPPerMinute  int    `yaml:"otp_per_ip_per_minute"`
	OTPPerTokenPerHour int    `yaml:"otp_per_token_per_hour"`
	SignPerIPPerMinute int    `yaml:"sign_per_ip_per_minute"`
}

type SigningConfig struct {
	LinkBaseURL   string        `yaml:"link_base_url"`
	SignedURLTTL  time.Duration `yaml:"signed_url_ttl"`
	TaskTimeout   time.Duration `yaml:"task_timeout"`
	MaxImageBytes int           `yaml:"max_image_bytes"`
	// MinRoles is the number of distinct roles a complete signer set needs.
	MinRoles      int           `yaml:"min_roles"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Log:     logger.Config{Level: "info", Format: "json"},
		Store:   StoreConfig{Driver: "postgres", MaxConns: 10},
		Tokens:  TokenConfig{MaxAgeDays: 30},
		OTP:     OTPConfig{Length: 6, TTL: 10 * time.Minute, MaxAttempts: 3},
		Proof:   ProofConfig{KeyID: "cosign-proof-1", IdentityMethod: "otp_email"},
		Objects: objectstore.Config{Driver: "memory"},
		Notify:  NotifyConfig{Driver: "log", Timeout: 5 * time.Second},
		HTTP: HTTPConfig{
			MaxBodyBytes:       4 << 20,
			OTPPerIPPerMinute:  10,
			OTPPerTokenPerHour: 5,
			SignPerIPPerMinute: 20,
		},
		Signing: SigningConfig{
			SignedURLTTL:  15 * time.Minute,
			TaskTimeout:   5 * time.Second,
			MaxImageBytes: 2 << 20,
			MinRoles:      2,
		},
	}
}

// Load reads path (optional), then applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = envString("COSIGN_ADDR", cfg.Server.Addr)
	cfg.Log.Level = envString("COSIGN_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("COSIGN_LOG_FORMAT", cfg.Log.Format)

	cfg.Store.Driver = envString("COSIGN_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DSN = envString("DATABASE_URL", cfg.Store.DSN)
	cfg.Store.MaxConns = envIntDefault("COSIGN_DB_MAX_CONNS", cfg.Store.MaxConns)
	cfg.Store.AutoMigrate = envBoolDefault("COSIGN_DB_AUTO_MIGRATE", cfg.Store.AutoMigrate)
	cfg.Store.SeedFile = envString("COSIGN_SEED_FILE", cfg.Store.SeedFile)

	cfg.Tokens.Secret = envString("COSIGN_TOKEN_SECRET", cfg.Tokens.Secret)
	cfg.Tokens.MaxAgeDays = envIntDefault("COSIGN_TOKEN_MAX_AGE_DAYS", cfg.Tokens.MaxAgeDays)
	cfg.Tokens.AcceptLegacy = envBoolDefault("COSIGN_TOKEN_ACCEPT_LEGACY", cfg.Tokens.AcceptLegacy)
	cfg.Tokens.LegacyCutoff = envString("COSIGN_TOKEN_LEGACY_CUTOFF", cfg.Tokens.LegacyCutoff)

	cfg.OTP.TTL = envDurationDefault("COSIGN_OTP_TTL", cfg.OTP.TTL)
	cfg.OTP.MaxAttempts = envIntDefault("COSIGN_OTP_MAX_ATTEMPTS", cfg.OTP.MaxAttempts)
	cfg.OTP.Pepper = envString("COSIGN_OTP_PEPPER", cfg.OTP.Pepper)
	cfg.OTP.ExposeCodes = envBoolDefault("COSIGN_OTP_DEV_MODE", cfg.OTP.ExposeCodes)

	cfg.Proof.SigningKeySeed = envString("COSIGN_PROOF_KEY_SEED", cfg.Proof.SigningKeySeed)
	cfg.Proof.KeyID = envString("COSIGN_PROOF_KEY_ID", cfg.Proof.KeyID)

	cfg.Objects.Driver = envString("COSIGN_OBJECTS_DRIVER", cfg.Objects.Driver)
	cfg.Objects.Endpoint = envString("COSIGN_OBJECTS_ENDPOINT", cfg.Objects.Endpoint)
	cfg.Objects.Bucket = envString("COSIGN_OBJECTS_BUCKET", cfg.Objects.Bucket)
	cfg.Objects.AccessKey = envString("COSIGN_OBJECTS_ACCESS_KEY", cfg.Objects.AccessKey)
	cfg.Objects.SecretKey = envString("COSIGN_OBJECTS_SECRET_KEY", cfg.Objects.SecretKey)

	cfg.Notify.Driver = envString("COSIGN_NOTIFY_DRIVER", cfg.Notify.Driver)
	cfg.Notify.URL = envString("COSIGN_NOTIFY_URL", cfg.Notify.URL)
	cfg.Notify.Secret = envString("COSIGN_NOTIFY_SECRET", cfg.Notify.Secret)

	cfg.HTTP.AdminToken = envString("COSIGN_ADMIN_TOKEN", cfg.HTTP.AdminToken)
	cfg.HTTP.TrustProxy = envBoolDefault("COSIGN_TRUST_PROXY", cfg.HTTP.TrustProxy)
	cfg.HTTP.OTPPerIPPerMinute = envIntDefault("COSIGN_OTP_IP_RATE_PER_MINUTE", cfg.HTTP.OTPPerIPPerMinute)
	cfg.HTTP.OTPPerTokenPerHour = envIntDefault("COSIGN_OTP_TOKEN_RATE_PER_HOUR", cfg.HTTP.OTPPerTokenPerHour)
	cfg.HTTP.SignPerIPPerMinute = envIntDefault("COSIGN_SIGN_IP_RATE_PER_MINUTE", cfg.HTTP.SignPerIPPerMinute)

	cfg.Signing.LinkBaseURL = envString("COSIGN_LINK_BASE_URL", cfg.Signing.LinkBaseURL)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn (DATABASE_URL) is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if len(c.Tokens.Secret) < 32 {
		errs = append(errs, errors.New("tokens.secret must be at least 32 bytes"))
	}
	if c.Tokens.AcceptLegacy {
		if _, err := c.Tokens.Cutoff(); err != nil || c.Tokens.LegacyCutoff == "" {
			errs = append(errs, errors.New("tokens.legacy_cutoff must be an RFC 3339 time when legacy links are accepted"))
		}
	}
	if c.OTP.Pepper == "" {
		errs = append(errs, errors.New("otp.pepper is required"))
	}
	if c.Proof.SigningKeySeed != "" {
		if seed, err := base64.StdEncoding.DecodeString(c.Proof.SigningKeySeed); err != nil || len(seed) != 32 {
			errs = append(errs, errors.New("proof.signing_key_seed must be a base64 32-byte seed"))
		}
	}
	switch c.Notify.Driver {
	case "log":
	case "webhook":
		if c.Notify.URL == "" {
			errs = append(errs, errors.New("notify.url is required for the webhook driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notify driver %q", c.Notify.Driver))
	}
	return errors.Join(errs...)
}

// Cutoff parses LegacyCutoff; the zero time means no cutoff is set.
func (t TokenConfig) Cutoff() (time.Time, error) {
	if strings.TrimSpace(t.LegacyCutoff) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, strings.TrimSpace(t.LegacyCutoff))
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v <= 0 {
		return def
	}
	return v
}

func envBoolDefault(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
