package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENV" envDefault:"development"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"1m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	Database DatabaseConfig
	Neo4j    Neo4jConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Ingest   IngestConfig
	Worker   WorkerConfig
	Lock     LockConfig
}

type DatabaseConfig struct {
	Host          string        `env:"DB_HOST" envDefault:"localhost"`
	Port          int           `env:"DB_PORT" envDefault:"5432"`
	User          string        `env:"DB_USERNAME" envDefault:"multinet"`
	Password      string        `env:"DB_PASSWORD"`
	Database      string        `env:"DB_DATABASE" envDefault:"multinet"`
	AdminUser     string        `env:"DB_ADMIN_USER"`
	AdminPassword string        `env:"DB_ADMIN_PASSWORD"`
	SSLMode       string        `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns      int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	MaxLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"5m"`
	MaxIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"1m"`
}

// DSN returns the URL form used by pgx and lib/pq.
func (d DatabaseConfig) DSN() string {
	return d.dsnFor(d.User, d.Password, d.Database)
}

// AdminDSN points at the maintenance database with the admin role, used to
// create the application database on first start.
func (d DatabaseConfig) AdminDSN() string {
	return d.dsnFor(d.AdminUser, d.AdminPassword, "postgres")
}

func (d DatabaseConfig) dsnFor(user, password, database string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + database,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

type Neo4jConfig struct {
	URI      string `env:"NEO4J_URI" envDefault:"neo4j://localhost:7687"`
	User     string `env:"NEO4J_USER" envDefault:"neo4j"`
	Password string `env:"NEO4J_PASSWORD"`
	Database string `env:"NEO4J_DATABASE" envDefault:"neo4j"`
}

type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB" envDefault:"0"`
	CancelTTL time.Duration `env:"UPLOAD_CANCEL_TTL" envDefault:"24h"`
}

type StorageConfig struct {
	Endpoint  string `env:"STORAGE_ENDPOINT"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	// Bucket receives files posted directly to the upload endpoint.
	Bucket string `env:"STORAGE_BUCKET" envDefault:"multinet-uploads"`
	// LocalRoot confines file:// blob refs. Empty disables them.
	LocalRoot string `env:"STORAGE_LOCAL_ROOT"`
}

func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != ""
}

type IngestConfig struct {
	SampleSize           int     `env:"INGEST_SAMPLE_SIZE" envDefault:"1000"`
	SampleSeed           int64   `env:"INGEST_SAMPLE_SEED" envDefault:"0"`
	Tolerance            float64 `env:"INGEST_TYPE_TOLERANCE" envDefault:"0.0"`
	MixedTolerance       float64 `env:"INGEST_MIXED_TOLERANCE" envDefault:"0.2"`
	CategoryMaxDistinct  int     `env:"INGEST_CATEGORY_MAX_DISTINCT" envDefault:"10"`
	CategoryMaxRatio     float64 `env:"INGEST_CATEGORY_MAX_RATIO" envDefault:"0.5"`
	ReferentialTolerance int     `env:"INGEST_REFERENTIAL_TOLERANCE" envDefault:"0"`
	BatchSize            int     `env:"INGEST_BATCH_SIZE" envDefault:"10000"`
}

type WorkerConfig struct {
	Enabled           bool          `env:"WORKER_ENABLED" envDefault:"true"`
	PollInterval      time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	BatchSize         int           `env:"WORKER_BATCH_SIZE" envDefault:"4"`
	Concurrency       int           `env:"WORKER_CONCURRENCY" envDefault:"2"`
	HeartbeatInterval time.Duration `env:"WORKER_HEARTBEAT_INTERVAL" envDefault:"30s"`
	StaleThreshold    time.Duration `env:"WORKER_STALE_THRESHOLD" envDefault:"3m"`
	SweepInterval     time.Duration `env:"WORKER_SWEEP_INTERVAL" envDefault:"15m"`
	SweepMinAge       time.Duration `env:"WORKER_SWEEP_MIN_AGE" envDefault:"1h"`
}

type LockConfig struct {
	// Advisory enables Postgres advisory locks so several API processes
	// serialise on the same (workspace, entity) keys.
	Advisory bool `env:"LOCK_ADVISORY" envDefault:"true"`
}

// Load reads .env (if present) and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.Database.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required"))
	}
	if c.Neo4j.URI == "" {
		errs = append(errs, errors.New("NEO4J_URI is required"))
	}
	if c.Ingest.SampleSize <= 0 {
		errs = append(errs, errors.New("INGEST_SAMPLE_SIZE must be positive"))
	}
	if c.Ingest.Tolerance < 0 || c.Ingest.Tolerance >= 1 {
		errs = append(errs, errors.New("INGEST_TYPE_TOLERANCE must be in [0, 1)"))
	}
	if c.Ingest.MixedTolerance < 0 || c.Ingest.MixedTolerance >= 1 {
		errs = append(errs, errors.New("INGEST_MIXED_TOLERANCE must be in [0, 1)"))
	}
	if c.Ingest.ReferentialTolerance < 0 {
		errs = append(errs, errors.New("INGEST_REFERENTIAL_TOLERANCE must not be negative"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	if c.Worker.HeartbeatInterval <= 0 || 2*c.Worker.HeartbeatInterval >= c.Worker.StaleThreshold {
		errs = append(errs, errors.New("WORKER_HEARTBEAT_INTERVAL must be positive and under half of WORKER_STALE_THRESHOLD"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
