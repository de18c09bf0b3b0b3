package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Stripe        StripeConfig
	Gateway       GatewayConfig
	Pricing       PricingConfig
	Locks         LockConfig
	Notifications NotificationsConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Pricing.TaxRateDecimal(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"ORDERFLOW_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"ORDERFLOW_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ORDERFLOW_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ORDERFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ORDERFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ORDERFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
	LeewaySeconds     int    `envconfig:"ORDERFLOW_JWT_LEEWAY_SECONDS" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	CallbackIdempotencyTTL time.Duration `envconfig:"ORDERFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ORDERFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ORDERFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"ORDERFLOW_PUBSUB_NOTIFICATION_TOPIC" default:"of-notification-events"`
	OrderEventsTopic  string `envconfig:"ORDERFLOW_PUBSUB_ORDER_EVENTS_TOPIC" default:"of-order-events"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Concurrency    int    `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_CONCURRENCY" default:"8"`
	MetricsAddr    string `envconfig:"ORDERFLOW_OUTBOX_METRICS_ADDR" default:":9091"`
}

type StripeConfig struct {
	APIKey            string `envconfig:"ORDERFLOW_STRIPE_API_KEY"`
	Env               string `envconfig:"ORDERFLOW_STRIPE_ENV" default:"test"`
	MaxNetworkRetries int64  `envconfig:"ORDERFLOW_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// GatewayConfig holds the settings shared by every payment gateway integration.
type GatewayConfig struct {
	CallbackSecret  string        `envconfig:"ORDERFLOW_GATEWAY_CALLBACK_SECRET" required:"true"`
	DefaultCurrency string        `envconfig:"ORDERFLOW_GATEWAY_CURRENCY" default:"INR"`
	RequestTimeout  time.Duration `envconfig:"ORDERFLOW_GATEWAY_REQUEST_TIMEOUT" default:"10s"`
}

type PricingConfig struct {
	TaxRate                    string `envconfig:"ORDERFLOW_PRICING_TAX_RATE" default:"0.18"`
	ShippingFeeMinor           int64  `envconfig:"ORDERFLOW_PRICING_SHIPPING_FEE_MINOR" default:"4000"`
	FreeShippingThresholdMinor int64  `envconfig:"ORDERFLOW_PRICING_FREE_SHIPPING_THRESHOLD_MINOR" default:"0"`
}

// TaxRateDecimal parses the configured tax rate, e.g. "0.18" for 18%.
func (p PricingConfig) TaxRateDecimal() (decimal.Decimal, error) {
	raw := strings.TrimSpace(p.TaxRate)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvPricingTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 1, got %s", EnvPricingTaxRate, raw)
	}
	return rate, nil
}

type LockConfig struct {
	OrderLockTTL  time.Duration `envconfig:"ORDERFLOW_ORDER_LOCK_TTL" default:"30s"`
	OrderLockWait time.Duration `envconfig:"ORDERFLOW_ORDER_LOCK_WAIT" default:"5s"`
}

type NotificationsConfig struct {
	QueueSize int `envconfig:"ORDERFLOW_NOTIFICATIONS_QUEUE_SIZE" default:"1024"`
	Workers   int `envconfig:"ORDERFLOW_NOTIFICATIONS_WORKERS" default:"4"`
}

type CronConfig struct {
	Interval                 time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"5m"`
	PaymentPendingStaleAfter time.Duration `envconfig:"ORDERFLOW_CRON_PAYMENT_STALE_AFTER" default:"30m"`
	BatchSize                int           `envconfig:"ORDERFLOW_CRON_BATCH_SIZE" default:"100"`
	JobTimeout               time.Duration `envconfig:"ORDERFLOW_CRON_JOB_TIMEOUT" default:"2m"`
	RetentionEvery           time.Duration `envconfig:"ORDERFLOW_CRON_RETENTION_EVERY" default:"24h"`
	MetricsAddr              string        `envconfig:"ORDERFLOW_CRON_METRICS_ADDR" default:":9092"`
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
