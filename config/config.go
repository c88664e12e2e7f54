package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"sync"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Server struct {
		Env      string `envconfig:"ENV"`
		LogLevel string `envconfig:"LOG_LEVEL"`
		Port     string `envconfig:"PORT"      default:"8080"`
		Host     string `envconfig:"HOST"`
		Shutdown struct {
			CleanupPeriodSeconds int64 `envconfig:"CLEANUP_PERIOD_SECONDS" default:"5"`
			GracePeriodSeconds   int64 `envconfig:"GRACE_PERIOD_SECONDS"   default:"5"`
		} `envconfig:"SHUTDOWN"`
	} `envconfig:"SERVER"`

	App struct {
		Name     string `envconfig:"APP_NAME" default:"roomkey"`
		Timezone string `envconfig:"TIMEZONE"`
		CORS     struct {
			AllowCredentials bool     `envconfig:"ALLOW_CREDENTIALS"`
			AllowedHeaders   []string `envconfig:"ALLOWED_HEADERS"`
			AllowedMethods   []string `envconfig:"ALLOWED_METHODS"`
			AllowedOrigins   []string `envconfig:"ALLOWED_ORIGINS"`
			Enable           bool     `envconfig:"ENABLE"`
			MaxAgeSeconds    int      `envconfig:"MAX_AGE_SECONDS"`
		} `envconfig:"CORS"`
		RateLimiter struct {
			Enable        bool `envconfig:"ENABLE"`
			MaxRequests   int  `envconfig:"MAX_REQUESTS"`
			WindowSeconds int  `envconfig:"WINDOW_SECONDS"`
		} `envconfig:"RATE_LIMITER"`
		APIKey string `envconfig:"API_KEY"`
	} `envconfig:"APP"`

	Cache struct {
		Redis struct {
			Primary struct {
				Host     string `envconfig:"HOST"`
				Port     string `envconfig:"PORT"`
				Password string `envconfig:"PASSWORD"`
				DB       int    `envconfig:"DB"`
			} `envconfig:"PRIMARY"`
		} `envconfig:"REDIS"`
		TTL int `envconfig:"TTL" default:"300"`
	} `envconfig:"CACHE"`

	JWT struct {
		AccessSecret    string `envconfig:"ACCESS_SECRET"`
		AccessExpireMin int    `envconfig:"ACCESS_EXPIRE_MIN" default:"60"`
	} `envconfig:"JWT"`

	DB struct {
		Driver      string `envconfig:"DRIVER"       default:"postgres"`
		AutoMigrate bool   `envconfig:"AUTO_MIGRATE"`
		Postgres    struct {
			MaxRetry        int      `envconfig:"MAX_RETRY"         default:"5"`
			RetryWaitTime   int      `envconfig:"RETRY_WAIT_TIME"   default:"2"`
			MigrationTable  string   `envconfig:"MIGRATION_TABLE"   default:"schema_migrations"`
			Prefix          string   `envconfig:"PREFIX"`
			MaxOpenConns    int      `envconfig:"MAX_OPEN_CONNS"    default:"10"`
			MaxIdleConns    int      `envconfig:"MAX_IDLE_CONNS"    default:"10"`
			ConnMaxLifetime int      `envconfig:"CONN_MAX_LIFETIME" default:"1800"`
			Read            Endpoint `envconfig:"READ"`
			Write           Endpoint `envconfig:"WRITE"`
		} `envconfig:"POSTGRES"`
		SQLite struct {
			Path string `envconfig:"PATH" default:"data/roomkey.db"`
		} `envconfig:"SQLITE"`
	} `envconfig:"DB"`

	Kafka struct {
		Enable  bool     `envconfig:"ENABLE"`
		Brokers []string `envconfig:"BROKERS"`
		Topic   string   `envconfig:"TOPIC" default:"roomkey.events"`
		SASL    struct {
			Username string `envconfig:"USERNAME"`
			Password string `envconfig:"PASSWORD"`
		} `envconfig:"SASL"`
	} `envconfig:"KAFKA"`

	Queue struct {
		Enable      bool `envconfig:"ENABLE"`
		RedisDB     int  `envconfig:"REDIS_DB"    default:"1"`
		Concurrency int  `envconfig:"CONCURRENCY" default:"5"`
	} `envconfig:"QUEUE"`

	Booking struct {
		OpenHour  int `envconfig:"OPEN_HOUR"  default:"0"`
		CloseHour int `envconfig:"CLOSE_HOUR" default:"24"`
	} `envconfig:"BOOKING"`

	Block struct {
		MaxOccurrences int `envconfig:"MAX_OCCURRENCES" default:"104"`
	} `envconfig:"BLOCK"`

	Lock struct {
		Gateway struct {
			BaseURL           string  `envconfig:"BASE_URL"`
			ClientID          string  `envconfig:"CLIENT_ID"`
			ClientSecret      string  `envconfig:"CLIENT_SECRET"`
			Username          string  `envconfig:"USERNAME"`
			Password          string  `envconfig:"PASSWORD"`
			TimeoutSeconds    int     `envconfig:"TIMEOUT_SECONDS"     default:"10"`
			RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"2"`
			Burst             int     `envconfig:"BURST"               default:"1"`
			MaxRetries        uint    `envconfig:"MAX_RETRIES"         default:"3"`
		} `envconfig:"GATEWAY"`
		ProvisionBudgetSeconds int `envconfig:"PROVISION_BUDGET_SECONDS" default:"8"`
		RetryDelayMinutes      int `envconfig:"RETRY_DELAY_MINUTES"      default:"15"`
		RetryMaxAttempts       int `envconfig:"RETRY_MAX_ATTEMPTS"       default:"5"`
		LowBatteryThreshold    int `envconfig:"LOW_BATTERY_THRESHOLD"    default:"20"`
	} `envconfig:"LOCK"`

	Reconciliation struct {
		Enable            bool   `envconfig:"ENABLE"              default:"true"`
		ExpireSpec        string `envconfig:"EXPIRE_SPEC"         default:"@hourly"`
		PurgeSpec         string `envconfig:"PURGE_SPEC"          default:"30 3 * * *"`
		ResyncSpec        string `envconfig:"RESYNC_SPEC"         default:"0 4 * * *"`
		LockHealthSpec    string `envconfig:"LOCK_HEALTH_SPEC"    default:"@every 30m"`
		ExpireBufferHours int    `envconfig:"EXPIRE_BUFFER_HOURS" default:"2"`
		RetentionDays     int    `envconfig:"RETENTION_DAYS"      default:"30"`
		ResyncDelayMillis int    `envconfig:"RESYNC_DELAY_MILLIS" default:"500"`
		JobLockSeconds    int    `envconfig:"JOB_LOCK_SECONDS"    default:"3600"`
		ArchiveEnable     bool   `envconfig:"ARCHIVE_ENABLE"`
	} `envconfig:"RECONCILIATION"`

	External struct {
		Otel struct {
			Endpoint string `envconfig:"ENDPOINT"`
		} `envconfig:"OTEL"`
		S3 struct {
			BucketName      string `envconfig:"BUCKET_NAME"`
			APIEndpoint     string `envconfig:"API_ENDPOINT"`
			AccessKeyID     string `envconfig:"ACCESS_KEY_ID"`
			SecretAccessKey string `envconfig:"SECRET_ACCESS_KEY"`
			ArchivePrefix   string `envconfig:"ARCHIVE_PREFIX" default:"archive"`
		} `envconfig:"S3"`
	}
}

// Endpoint is one postgres server. Read falls back to Write when its Host is empty.
type Endpoint struct {
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"     default:"5432"`
	Username string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	Name     string `envconfig:"NAME"`
	SSLMode  string `envconfig:"SSL_MODE" default:"disable"`
}

// URL builds a lib/pq connection string. prefix is prepended to the database name and extra is merged into
// the query.
func (e Endpoint) URL(prefix string, extra url.Values) string {
	query := url.Values{"sslmode": {e.SSLMode}}
	for key, values := range extra {
		query[key] = values
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(e.Username, e.Password),
		Host:     net.JoinHostPort(e.Host, e.Port),
		Path:     "/" + prefix + e.Name,
		RawQuery: query.Encode(),
	}

	return u.String()
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.Postgres.Write.Host == "" {
			errs = append(errs, errors.New("DB_POSTGRES_WRITE_HOST is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.DB.SQLite.Path == "" {
			errs = append(errs, errors.New("DB_SQLITE_PATH is required for the sqlite3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver))
	}

	if c.Booking.OpenHour < 0 || c.Booking.CloseHour > 24 || c.Booking.OpenHour >= c.Booking.CloseHour {
		errs = append(errs, fmt.Errorf("business hours %d-%d are not a valid range", c.Booking.OpenHour, c.Booking.CloseHour))
	}

	if c.App.RateLimiter.Enable && (c.App.RateLimiter.MaxRequests <= 0 || c.App.RateLimiter.WindowSeconds <= 0) {
		errs = append(errs, errors.New("rate limiter needs positive MAX_REQUESTS and WINDOW_SECONDS"))
	}

	if c.Kafka.Enable && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when kafka is enabled"))
	}

	return errors.Join(errs...)
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

var get = sync.OnceValue(func() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	log.Info().Str("driver", cfg.DB.Driver).Msg("Service configuration initialized")

	return cfg
})

// Get loads the configuration once per process and exits on failure.
func Get() *Config {
	return get()
}
