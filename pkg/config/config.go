package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SCHOOLSTOCK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SCHOOLSTOCK_DB_DSN"
	EnvDBHost = "SCHOOLSTOCK_DB_HOST"
	EnvDBUser = "SCHOOLSTOCK_DB_USER"
	EnvDBName = "SCHOOLSTOCK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Stock        StockConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Cron         CronConfig
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
	Env          string `envconfig:"SCHOOLSTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"SCHOOLSTOCK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SCHOOLSTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SCHOOLSTOCK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SCHOOLSTOCK_DB_DSN"`
	Driver string `envconfig:"SCHOOLSTOCK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SCHOOLSTOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"SCHOOLSTOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SCHOOLSTOCK_DB_USER"`
	LegacyPassword string `envconfig:"SCHOOLSTOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"SCHOOLSTOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"SCHOOLSTOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SCHOOLSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SCHOOLSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SCHOOLSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SCHOOLSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SCHOOLSTOCK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SCHOOLSTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"SCHOOLSTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SCHOOLSTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SCHOOLSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SCHOOLSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SCHOOLSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SCHOOLSTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SCHOOLSTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig covers token verification only. Tokens are minted by the school's
// identity provider; this service never issues them.
type JWTConfig struct {
	Secret string `envconfig:"SCHOOLSTOCK_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SCHOOLSTOCK_JWT_ISSUER" required:"true"`
}

type RateLimitConfig struct {
	Window time.Duration `envconfig:"SCHOOLSTOCK_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"SCHOOLSTOCK_RATE_LIMIT_PER_USER" default:"120"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SCHOOLSTOCK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SCHOOLSTOCK_AUTO_MIGRATE" default:"false"`
}

// StockConfig tunes the reconciliation repair loop for the two-write
// ledger/item sequence.
type StockConfig struct {
	RepairMaxAttempts int           `envconfig:"SCHOOLSTOCK_STOCK_REPAIR_MAX_ATTEMPTS" default:"3"`
	RepairBackoff     time.Duration `envconfig:"SCHOOLSTOCK_STOCK_REPAIR_BACKOFF" default:"50ms"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SCHOOLSTOCK_GCP_PROJECT_ID"`
}

// PubSubConfig names the optional item-change feed. Leaving the topic empty
// disables the feed; clients fall back to polling.
type PubSubConfig struct {
	ItemEventsTopic string `envconfig:"SCHOOLSTOCK_PUBSUB_ITEM_EVENTS_TOPIC"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SCHOOLSTOCK_CRON_INTERVAL" default:"1h"`
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
