package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Entitlements EntitlementsConfig
	Apple        AppleConfig
	Google       GoogleConfig
	Stripe       StripeConfig
	Square       SquareConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BRIEFWIRE_APP_ENV" required:"true"`
	Port         string `envconfig:"BRIEFWIRE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BRIEFWIRE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BRIEFWIRE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BRIEFWIRE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BRIEFWIRE_DB_DSN"`
	Driver string `envconfig:"BRIEFWIRE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BRIEFWIRE_DB_HOST"`
	LegacyPort     int    `envconfig:"BRIEFWIRE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BRIEFWIRE_DB_USER"`
	LegacyPassword string `envconfig:"BRIEFWIRE_DB_PASSWORD"`
	LegacyName     string `envconfig:"BRIEFWIRE_DB_NAME"`
	LegacySSLMode  string `envconfig:"BRIEFWIRE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BRIEFWIRE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BRIEFWIRE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BRIEFWIRE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BRIEFWIRE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BRIEFWIRE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BRIEFWIRE_REDIS_ADDR"`
	Password     string        `envconfig:"BRIEFWIRE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BRIEFWIRE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BRIEFWIRE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BRIEFWIRE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BRIEFWIRE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BRIEFWIRE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BRIEFWIRE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BRIEFWIRE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BRIEFWIRE_AUTO_MIGRATE" default:"false"`
}

// EntitlementsConfig tunes the entitlement engine.
type EntitlementsConfig struct {
	IdempotencyTTL      time.Duration `envconfig:"BRIEFWIRE_ENTITLEMENTS_IDEMPOTENCY_TTL" default:"720h"`
	PruneInterval       time.Duration `envconfig:"BRIEFWIRE_ENTITLEMENTS_PRUNE_INTERVAL" default:"24h"`
	ProviderCallTimeout time.Duration `envconfig:"BRIEFWIRE_ENTITLEMENTS_PROVIDER_TIMEOUT" default:"15s"`
}

// AppleConfig carries App Store Server API credentials. An incomplete set of
// values leaves the Apple provider unconfigured.
type AppleConfig struct {
	KeyID      string `envconfig:"BRIEFWIRE_APPLE_KEY_ID"`
	IssuerID   string `envconfig:"BRIEFWIRE_APPLE_ISSUER_ID"`
	BundleID   string `envconfig:"BRIEFWIRE_APPLE_BUNDLE_ID"`
	PrivateKey string `envconfig:"BRIEFWIRE_APPLE_PRIVATE_KEY"`
	Env        string `envconfig:"BRIEFWIRE_APPLE_ENV" default:"production"`
}

func (a AppleConfig) Configured() bool {
	return strings.TrimSpace(a.KeyID) != "" &&
		strings.TrimSpace(a.IssuerID) != "" &&
		strings.TrimSpace(a.PrivateKey) != ""
}

// GoogleConfig carries Play Developer API access.
type GoogleConfig struct {
	PackageName string `envconfig:"BRIEFWIRE_GOOGLE_PACKAGE_NAME"`
	AccessToken string `envconfig:"BRIEFWIRE_GOOGLE_ACCESS_TOKEN"`
}

func (g GoogleConfig) Configured() bool {
	return strings.TrimSpace(g.PackageName) != "" && strings.TrimSpace(g.AccessToken) != ""
}

type StripeConfig struct {
	APIKey string `envconfig:"BRIEFWIRE_STRIPE_API_KEY"`
	Secret string `envconfig:"BRIEFWIRE_STRIPE_SECRET"`
	Env    string `envconfig:"BRIEFWIRE_STRIPE_ENV" default:"test"`
}

func (s StripeConfig) Configured() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken string `envconfig:"BRIEFWIRE_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"BRIEFWIRE_SQUARE_ENV" default:"sandbox"`
}

func (s SquareConfig) Configured() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
