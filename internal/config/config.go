package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnv            = "development"
	defaultDBPath         = "./dev.db"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultStorageDir     = "./data/reports"
	defaultCoordinatorOrg = "U4RAD"
	defaultBillingPrefix  = "U4RAD"
	defaultAPIBaseURL     = "http://localhost:8080/api"
	defaultCatalogTimeout = 10 * time.Second
	defaultTokenTTL       = 24 * time.Hour
)

// S3 selects the bucket generated PDFs go to. Bucket empty means the
// filesystem store is used instead.
type S3 struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env            string
	Port           string
	DBPath         string
	LogLevel       string
	SessionSecret  string
	TokenTTL       time.Duration
	AllowedOrigins []string

	CoordinatorUsername string
	CoordinatorPassword string
	CoordinatorCompany  string

	BillingPrefix  string
	APIBaseURL     string
	CatalogTimeout time.Duration

	StorageDir string
	S3         S3
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	return load(".env")
}

func load(dotenvPath string) Config {
	// Best-effort: a missing file is fine, real deployments inject the environment.
	// Variables already set are not overwritten.
	_ = godotenv.Load(dotenvPath)

	cfg := Config{
		Env:                 envOr("APP_ENV", defaultEnv),
		Port:                envOr("PORT", defaultPort),
		DBPath:              envOr("DB_PATH", defaultDBPath),
		LogLevel:            envOr("LOG_LEVEL", defaultLogLevel),
		SessionSecret:       os.Getenv("SESSION_SECRET"),
		TokenTTL:            durationOr("TOKEN_TTL", defaultTokenTTL),
		AllowedOrigins:      splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		CoordinatorUsername: os.Getenv("COORDINATOR_USERNAME"),
		CoordinatorPassword: os.Getenv("COORDINATOR_PASSWORD"),
		CoordinatorCompany:  envOr("COORDINATOR_COMPANY", defaultCoordinatorOrg),
		BillingPrefix:       envOr("BILLING_PREFIX", defaultBillingPrefix),
		APIBaseURL:          envOr("API_BASE_URL", defaultAPIBaseURL),
		CatalogTimeout:      durationOr("CATALOG_TIMEOUT", defaultCatalogTimeout),
		StorageDir:          envOr("STORAGE_DIR", defaultStorageDir),
		S3: S3{
			Bucket:    os.Getenv("S3_BUCKET"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    os.Getenv("S3_REGION"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			PathStyle: boolOr("S3_PATH_STYLE", false),
		},
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if cfg.CoordinatorUsername == "" {
		slog.Warn("COORDINATOR_USERNAME is not set")
	}
	if cfg.CoordinatorPassword == "" {
		slog.Warn("COORDINATOR_PASSWORD is not set")
	}
	if cfg.SessionSecret == "" {
		slog.Warn("SESSION_SECRET is not set")
	}

	return cfg
}

// ErrMissingSessionSecret is returned by Validate outside development when
// SESSION_SECRET is empty; tokens signed with an empty key can be forged.
var ErrMissingSessionSecret = errors.New("SESSION_SECRET must be set outside development")

// Validate reports settings the server must not start with.
func (c Config) Validate() error {
	if !c.IsDev() && c.SessionSecret == "" {
		return ErrMissingSessionSecret
	}
	return nil
}

// IsDev reports whether the server runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

func boolOr(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
