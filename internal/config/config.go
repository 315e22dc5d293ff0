package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env   string
	Port  int
	DBURL string

	JWTSecret         string
	SessionTTL        time.Duration
	OTPTTL            time.Duration
	ResetTTL          time.Duration
	MinPasswordLength int

	AdminEmail    string
	AdminUsername string
	AdminPassword string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NotifyMode selects how notifications leave the request path: "inprocess" or "redis".
	NotifyMode    string
	NotifyWorkers int
	NotifyQueue   string

	WorkerHealthPort int

	OTLPEndpoint string

	// AuthRateLimit is requests per minute per IP on the auth routes. 0 disables it.
	AuthRateLimit  int
	AllowedOrigins []string
	MaxBodyBytes   int64
}

func Load() Config {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		SessionTTL:        time.Duration(getEnvInt("SESSION_TTL_DAYS", 7)) * 24 * time.Hour,
		OTPTTL:            time.Duration(getEnvInt("OTP_TTL_MINUTES", 10)) * time.Minute,
		ResetTTL:          time.Duration(getEnvInt("RESET_TTL_MINUTES", 60)) * time.Minute,
		MinPasswordLength: getEnvInt("MIN_PASSWORD_LENGTH", 6),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		NotifyMode:    getEnv("NOTIFY_MODE", "inprocess"),
		NotifyWorkers: getEnvInt("NOTIFY_WORKERS", 4),
		NotifyQueue:   getEnv("NOTIFY_QUEUE", "projecthub:notifications"),

		WorkerHealthPort: getEnvInt("WORKER_HEALTH_PORT", 8081),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT_PER_MINUTE", 0),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		MaxBodyBytes:   int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
	}
}

// Validate rejects configurations that would run with insecure defaults.
func (c Config) Validate() error {
	if c.JWTSecret == "" && !c.IsLocal() {
		return errors.New("JWT_SECRET is required outside dev/test")
	}

	switch c.NotifyMode {
	case "inprocess", "redis":
	default:
		return fmt.Errorf("unknown NOTIFY_MODE %q", c.NotifyMode)
	}

	// bcrypt hashes at most 72 bytes
	if c.MinPasswordLength <= 0 || c.MinPasswordLength > 72 {
		return errors.New("MIN_PASSWORD_LENGTH must be between 1 and 72")
	}

	if strings.Contains(c.AdminUsername, "@") {
		return errors.New("ADMIN_USERNAME must not contain @")
	}
	return nil
}

// IsLocal reports a development or test deployment.
func (c Config) IsLocal() bool {
	return c.Env == "dev" || c.Env == "test"
}

// CookieSecure is true everywhere except local development.
func (c Config) CookieSecure() bool {
	return !c.IsLocal()
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "projecthub")
	pass := getEnv("DB_PASSWORD", "projecthub")
	name := getEnv("DB_NAME", "projecthub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
