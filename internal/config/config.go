// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinJWTSecretLen is the minimum JWT_SECRET length in bytes.
const MinJWTSecretLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment (development, production, ...).
	Env     string `mapstructure:"APP_ENV"`
	Version string `mapstructure:"APP_VERSION"`
	// HTTPAddr is the address of the REST API (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr serves grpc.health.v1 only.
	GRPCAddr        string        `mapstructure:"GRPC_ADDR"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  string        `mapstructure:"ALLOWED_ORIGINS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTSecret signs access and refresh tokens (HS256). At least MinJWTSecretLen bytes.
	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	JWTAccessTTL  time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL time.Duration `mapstructure:"JWT_REFRESH_TTL"`

	OTPLength      int           `mapstructure:"OTP_LENGTH"`
	OTPTTL         time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPFixedCode makes every issued code this value. Development and tests only; rejected in production.
	OTPFixedCode string `mapstructure:"OTP_FIXED_CODE"`
	// OTPStore is "memory" or "redis".
	OTPStore              string `mapstructure:"OTP_STORE"`
	OTPRateLimitPerMinute int    `mapstructure:"OTP_RATE_LIMIT_PER_MINUTE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// SMSProvider is "log", "twilio" or "smslocal". "log" is rejected in production.
	SMSProvider       string `mapstructure:"SMS_PROVIDER"`
	SMSBreakerEnabled bool   `mapstructure:"SMS_BREAKER_ENABLED"`
	TwilioAccountSID  string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber  string `mapstructure:"TWILIO_FROM_NUMBER"`
	SMSLocalAPIKey    string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender    string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL   string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// FirebaseProjectID enables Google login when set.
	FirebaseProjectID    string        `mapstructure:"FIREBASE_PROJECT_ID"`
	IdentityJWKSURL      string        `mapstructure:"IDENTITY_JWKS_URL"`
	IdentityJWKSCacheTTL time.Duration `mapstructure:"IDENTITY_JWKS_CACHE_TTL"`

	PrivacyPolicyVersion string `mapstructure:"PRIVACY_POLICY_VERSION"`
	TermsVersion         string `mapstructure:"TERMS_VERSION"`
	// AccessPolicyFile optionally replaces the built-in Rego access policy.
	AccessPolicyFile string `mapstructure:"ACCESS_POLICY_FILE"`

	// KafkaBrokers is a comma-separated list; empty disables Kafka auth events.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_TOPIC"`

	// OTelEndpoint is the OTLP gRPC endpoint; empty disables OpenTelemetry export.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

var defaults = map[string]any{
	"APP_ENV":                     "development",
	"APP_VERSION":                 "1.0.0",
	"HTTP_ADDR":                   ":8080",
	"GRPC_ADDR":                   ":9090",
	"SHUTDOWN_TIMEOUT":            "10s",
	"ALLOWED_ORIGINS":             "",
	"DATABASE_URL":                "",
	"JWT_SECRET":                  "",
	"JWT_ISSUER":                  "imaro-auth",
	"JWT_ACCESS_TTL":              "24h",
	"JWT_REFRESH_TTL":             "720h",
	"OTP_LENGTH":                  6,
	"OTP_TTL":                     "5m",
	"OTP_MAX_ATTEMPTS":            3,
	"OTP_FIXED_CODE":              "",
	"OTP_STORE":                   "memory",
	"OTP_RATE_LIMIT_PER_MINUTE":   5,
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"SMS_PROVIDER":                "log",
	"SMS_BREAKER_ENABLED":         true,
	"TWILIO_ACCOUNT_SID":          "",
	"TWILIO_AUTH_TOKEN":           "",
	"TWILIO_FROM_NUMBER":          "",
	"SMS_LOCAL_API_KEY":           "",
	"SMS_LOCAL_SENDER":            "",
	"SMS_LOCAL_BASE_URL":          "https://app.smslocal.in/api/smsapi",
	"FIREBASE_PROJECT_ID":         "",
	"IDENTITY_JWKS_URL":           "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com",
	"IDENTITY_JWKS_CACHE_TTL":     "1h",
	"PRIVACY_POLICY_VERSION":      "1.0",
	"TERMS_VERSION":               "1.0",
	"ACCESS_POLICY_FILE":          "",
	"KAFKA_BROKERS":               "",
	"AUTH_EVENTS_TOPIC":           "imaro-auth-events",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_SERVICE_NAME":           "imaro-auth",
	"OTEL_EXPORTER_OTLP_INSECURE": true,
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase is Load for tools that only talk to Postgres (cmd/migrate, cmd/seed): it checks
// DATABASE_URL and nothing else.
func LoadDatabase() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	return cfg, nil
}

func read() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.OTPStore = strings.ToLower(strings.TrimSpace(cfg.OTPStore))
	cfg.SMSProvider = strings.ToLower(strings.TrimSpace(cfg.SMSProvider))
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if len(c.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes", MinJWTSecretLen)
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return errors.New("config: JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return errors.New("config: OTP_LENGTH must be between 4 and 10")
	}
	if c.OTPTTL <= 0 {
		return errors.New("config: OTP_TTL must be positive")
	}
	if c.OTPMaxAttempts < 1 {
		return errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.OTPFixedCode != "" && len(c.OTPFixedCode) != c.OTPLength {
		return errors.New("config: OTP_FIXED_CODE must have OTP_LENGTH digits")
	}

	switch c.OTPStore {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set when OTP_STORE=redis")
		}
	default:
		return fmt.Errorf("config: unknown OTP_STORE %q", c.OTPStore)
	}

	switch c.SMSProvider {
	case "log":
	case "twilio":
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			return errors.New("config: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set when SMS_PROVIDER=twilio")
		}
	case "smslocal":
		if c.SMSLocalAPIKey == "" {
			return errors.New("config: SMS_LOCAL_API_KEY must be set when SMS_PROVIDER=smslocal")
		}
	default:
		return fmt.Errorf("config: unknown SMS_PROVIDER %q", c.SMSProvider)
	}

	if c.IsProduction() {
		if c.OTPFixedCode != "" {
			return errors.New("config: OTP_FIXED_CODE must not be set when APP_ENV=production")
		}
		if c.SMSProvider == "log" {
			return errors.New("config: SMS_PROVIDER=log is not allowed when APP_ENV=production")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka event producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// AllowedOriginsList returns the CORS origins from the comma-separated config.
func (c *Config) AllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.AllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
