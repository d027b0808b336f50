package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type StoreBackend string

const (
	StorePostgres StoreBackend = "postgres"
	StoreMongo    StoreBackend = "mongo"
	StoreMemory   StoreBackend = "memory"
)

type Config struct {
	HTTPAddr string

	StoreBackend  StoreBackend
	DatabaseURL   string
	DBMaxConns    int
	MongoURI      string
	MongoDatabase string

	// RedisURL enables the cross-instance bus and the asynq send queue.
	// Empty means a single-instance deployment.
	RedisURL   string
	BusChannel string

	JWTSecret      string
	AuthTimeout    time.Duration
	RequestTimeout time.Duration

	HistoryPageSize int

	AsynqConcurrency int
	AsynqQueues      string

	LogLevel  string
	LogFormat string

	MigrateOnStart bool
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getBoolEnv(key string, def bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

// Load reads .env (if present), then the environment, then command-line
// flags; each layer overrides the previous one.
func Load(args []string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	var backend string

	fs := pflag.NewFlagSet("chatline", pflag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", getEnv("HTTP_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&backend, "store", getEnv("STORE_BACKEND", string(StorePostgres)), "conversation store: postgres, mongo or memory")
	fs.StringVar(&cfg.DatabaseURL, "db-url", getEnv("DB_URL", ""), "Postgres DSN")
	fs.IntVar(&cfg.DBMaxConns, "db-max-conns", getIntEnv("DB_MAX_CONNS", 8), "Postgres pool size")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", getEnv("MONGO_URI", ""), "MongoDB connection URI")
	fs.StringVar(&cfg.MongoDatabase, "mongo-database", getEnv("MONGO_DATABASE", "chatline"), "MongoDB database name")
	fs.StringVar(&cfg.RedisURL, "redis-url", getEnv("REDIS_URL", ""), "Redis URL for the event bus and task queue")
	fs.StringVar(&cfg.BusChannel, "bus-channel", getEnv("BUS_CHANNEL", "chatline:events"), "pub/sub channel shared by all instances")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", getEnv("JWT_SECRET", ""), "HS256 secret used to verify access tokens")
	fs.DurationVar(&cfg.AuthTimeout, "auth-timeout", getDurationEnv("AUTH_TIMEOUT", 5*time.Second), "deadline for token verification at channel open")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", getDurationEnv("REQUEST_TIMEOUT", 3*time.Second), "deadline for a single request")
	fs.IntVar(&cfg.HistoryPageSize, "history-page-size", getIntEnv("HISTORY_PAGE_SIZE", 30), "default history page size")
	fs.IntVar(&cfg.AsynqConcurrency, "asynq-concurrency", getIntEnv("ASYNQ_CONCURRENCY", 10), "task worker concurrency")
	fs.StringVar(&cfg.AsynqQueues, "asynq-queues", getEnv("ASYNQ_QUEUES", "chat=3,default=1"), "task queues and weights; must include the chat queue")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "json"), "json or console")
	fs.BoolVar(&cfg.MigrateOnStart, "migrate", getBoolEnv("MIGRATE_ON_START", true), "create schema/indexes on start")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.StoreBackend = StoreBackend(strings.ToLower(backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ChatQueue is the asynq queue send tasks are enqueued on.
const ChatQueue = "chat"

// hasQueue reports whether a "name=weight,..." list names queue.
func hasQueue(list string, queue string) bool {
	for _, part := range strings.Split(list, ",") {
		name, _, _ := strings.Cut(part, "=")
		if strings.TrimSpace(name) == queue {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DB_URL must be set for the postgres store"))
		}
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI must be set for the mongo store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.AuthTimeout <= 0 || c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.HistoryPageSize <= 0 {
		errs = append(errs, errors.New("HISTORY_PAGE_SIZE must be positive"))
	}
	// Workers only pull the queues listed; without the chat queue queued sends
	// are accepted and never delivered.
	if c.RedisURL != "" && strings.TrimSpace(c.AsynqQueues) != "" && !hasQueue(c.AsynqQueues, ChatQueue) {
		errs = append(errs, fmt.Errorf("ASYNQ_QUEUES %q must include the %s queue", c.AsynqQueues, ChatQueue))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
