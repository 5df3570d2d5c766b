package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // gRPC health service; empty disables it

	Env string // "dev" | "prod"

	// Store
	StoreDriver string // "memory" | "sqlite" | "postgres"
	DBPath      string // sqlite file, e.g. "./data/hostel.db"
	PostgresDSN string

	// Sessions
	JWTSecret string
	TokenTTL  time.Duration

	// Engine policy
	DefaultDepartment string
	DeletePolicy      string // "error" | "success"
	SerializePerCard  bool

	// Audit retention
	AuditRetentionDays int // 0 = keep forever
	PruneIntervalHours int

	ProbeInterval time.Duration

	// Login attempts per minute per client address
	LoginRatePerMinute int

	// Dev only: password for a seeded "admin" account in the sqlite store
	DevAdminPassword string

	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string // "text" | "json"
	LogPath   string // optional file the log is also written to
}

// Load reads an optional env file and then the environment. Variables already
// set in the environment win over the file. A missing file is not an error.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("HOSTEL_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	driver := strings.ToLower(getenvDefault("HOSTEL_STORE", "sqlite"))

	return Config{
		HTTPAddr: getenvDefault("HOSTEL_HTTP_ADDR", ":8080"),
		GRPCAddr: os.Getenv("HOSTEL_GRPC_ADDR"),
		Env:      env,

		StoreDriver: driver,
		DBPath:      getenvDefault("HOSTEL_DB_PATH", "./data/hostel.db"),
		PostgresDSN: os.Getenv("HOSTEL_POSTGRES_DSN"),

		JWTSecret: os.Getenv("HOSTEL_JWT_SECRET"),
		TokenTTL:  time.Duration(getenvInt("HOSTEL_TOKEN_TTL_MINUTES", 720)) * time.Minute,

		DefaultDepartment: getenvDefault("HOSTEL_DEPARTMENT", "ХОСТЕЛ"),
		DeletePolicy:      strings.ToLower(getenvDefault("HOSTEL_DELETE_NOT_FOUND", "error")),
		SerializePerCard:  getenvBool("HOSTEL_SERIALIZE_PER_CARD", true),

		AuditRetentionDays: getenvInt("HOSTEL_AUDIT_RETENTION_DAYS", 90),
		PruneIntervalHours: getenvInt("HOSTEL_PRUNE_INTERVAL_HOURS", 6),

		ProbeInterval: time.Duration(getenvInt("HOSTEL_PROBE_INTERVAL_SECONDS", 15)) * time.Second,

		LoginRatePerMinute: getenvInt("HOSTEL_LOGIN_RATE_PER_MINUTE", 10),

		DevAdminPassword: os.Getenv("HOSTEL_DEV_ADMIN_PASSWORD"),

		ShutdownTimeout: time.Duration(getenvInt("HOSTEL_SHUTDOWN_TIMEOUT_SECONDS", 5)) * time.Second,

		LogLevel:  strings.ToLower(getenvDefault("HOSTEL_LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getenvDefault("HOSTEL_LOG_FORMAT", "text")),
		LogPath:   os.Getenv("HOSTEL_LOG_PATH"),
	}
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("HOSTEL_POSTGRES_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown HOSTEL_STORE %q", c.StoreDriver))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("HOSTEL_JWT_SECRET must be at least 16 bytes"))
	}
	if c.Env == "prod" && c.StoreDriver == "memory" {
		errs = append(errs, errors.New("the memory store is for development only"))
	}
	return errors.Join(errs...)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
