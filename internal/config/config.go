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

const (
	DefaultPageSize       = 25
	DefaultUnreadWindow   = 100
	DefaultMaxUploadBytes = 50 * 1024 * 1024
	DefaultAccessURLTTL   = time.Hour
	DefaultMaxTextLength  = 4000

	// MaxWindowSize bounds FEED_PAGE_SIZE and UNREAD_WINDOW; one page query
	// never returns more than this many messages.
	MaxWindowSize = 100
)

type Config struct {
	Port           string
	JWTSecret      string
	AllowedOrigins string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PageSize       int
	UnreadWindow   int
	MaxUploadBytes int64
	AccessURLTTL   time.Duration
	WritePolicy    string
	MaxTextLength  int

	ObjectStore ObjectStore
}

// ObjectStore holds the S3/MinIO settings. Attachments are disabled when
// any required value is missing.
type ObjectStore struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Missing lists the required S3 variables that are unset.
func (o ObjectStore) Missing() []string {
	var missing []string
	for _, v := range []struct{ name, value string }{
		{"S3_ENDPOINT", o.Endpoint},
		{"S3_BUCKET", o.Bucket},
		{"S3_ACCESS_KEY", o.AccessKey},
		{"S3_SECRET_KEY", o.SecretKey},
	} {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	return missing
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0, 0),
		PageSize:       getInt("FEED_PAGE_SIZE", DefaultPageSize, 1),
		UnreadWindow:   getInt("UNREAD_WINDOW", DefaultUnreadWindow, 1),
		MaxUploadBytes: DefaultMaxUploadBytes,
		AccessURLTTL:   DefaultAccessURLTTL,
		WritePolicy:    getEnv("WRITE_POLICY", "major-restricted"),
		MaxTextLength:  getInt("MAX_MESSAGE_LENGTH", DefaultMaxTextLength, 1),
		ObjectStore: ObjectStore{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.PageSize > MaxWindowSize {
		return nil, fmt.Errorf("FEED_PAGE_SIZE %d exceeds the maximum of %d", cfg.PageSize, MaxWindowSize)
	}
	if cfg.UnreadWindow > MaxWindowSize {
		return nil, fmt.Errorf("UNREAD_WINDOW %d exceeds the maximum of %d", cfg.UnreadWindow, MaxWindowSize)
	}
	if v := strings.TrimSpace(os.Getenv("S3_USE_SSL")); v != "" {
		useSSL, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid S3_USE_SSL: %w", err)
		}
		cfg.ObjectStore.UseSSL = useSSL
	}

	// The upload limit may be lowered but never raised past the default.
	if v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 && n < DefaultMaxUploadBytes {
			cfg.MaxUploadBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ACCESS_URL_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AccessURLTTL = d
		}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback, min int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return fallback
	}
	return n
}
