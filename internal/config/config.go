package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/catalog-enricher/internal/ratelimit"
)

const (
	BackendBrowser = "browser"
	BackendLLM     = "llm"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Pacing   PacingConfig
	Browser  BrowserConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Minio    MinioConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port                string
	Host                string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	ShutdownTimeout     time.Duration
	CORSOrigins         []string
	UploadRatePerMinute int
	MaxUploadBytes      int64
}

type ScraperConfig struct {
	Backend      string
	BaseURL      string
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
	ElementWait  time.Duration
	CookieWait   time.Duration
	EmbedImages  bool
	ImagesPerRow int
	ImageTimeout time.Duration
}

type PacingConfig struct {
	KeystrokeMin time.Duration
	KeystrokeMax time.Duration
	ActionMin    time.Duration
	ActionMax    time.Duration
	ItemMin      time.Duration
	ItemMax      time.Duration
	BatchMin     time.Duration
	BatchMax     time.Duration
}

func (p PacingConfig) Ranges() ratelimit.Ranges {
	return ratelimit.Ranges{
		Keystroke: ratelimit.Range{Min: p.KeystrokeMin, Max: p.KeystrokeMax},
		Action:    ratelimit.Range{Min: p.ActionMin, Max: p.ActionMax},
		Item:      ratelimit.Range{Min: p.ItemMin, Max: p.ItemMax},
		Batch:     ratelimit.Range{Min: p.BatchMin, Max: p.BatchMax},
	}
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgent      string
	ProxyServer    string
}

type LLMConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

type StorageConfig struct {
	OutputDir string
	UploadDir string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
	Stream   string
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type DatabaseConfig struct {
	ArchiveEnabled bool
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxConns       int
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

func (c MinioConfig) Enabled() bool {
	return c.Endpoint != ""
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the environment, after applying envFile when it exists.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:                getEnvOrDefault("SERVER_PORT", "8080"),
			Host:                getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:         getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:        getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:     getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:         getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
			UploadRatePerMinute: getIntOrDefault("UPLOAD_RATE_PER_MINUTE", 10),
			MaxUploadBytes:      int64(getIntOrDefault("MAX_UPLOAD_BYTES", 32<<20)),
		},
		Scraper: ScraperConfig{
			Backend:      strings.ToLower(getEnvOrDefault("SCRAPER_BACKEND", BackendBrowser)),
			BaseURL:      getEnvOrDefault("SCRAPER_BASE_URL", "https://www.amazon.in"),
			MaxRetries:   getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryDelay:   getDurationOrDefault("SCRAPER_RETRY_DELAY", 5*time.Second),
			ElementWait:  getDurationOrDefault("SCRAPER_ELEMENT_WAIT", 10*time.Second),
			CookieWait:   getDurationOrDefault("SCRAPER_COOKIE_WAIT", 5*time.Second),
			EmbedImages:  getBoolOrDefault("SCRAPER_EMBED_IMAGES", true),
			ImagesPerRow: getIntOrDefault("SCRAPER_IMAGES_PER_ROW", 5),
			ImageTimeout: getDurationOrDefault("SCRAPER_IMAGE_TIMEOUT", 15*time.Second),
		},
		Pacing: PacingConfig{
			KeystrokeMin: getDurationOrDefault("PACING_KEYSTROKE_MIN", 50*time.Millisecond),
			KeystrokeMax: getDurationOrDefault("PACING_KEYSTROKE_MAX", 200*time.Millisecond),
			ActionMin:    getDurationOrDefault("PACING_ACTION_MIN", 3*time.Second),
			ActionMax:    getDurationOrDefault("PACING_ACTION_MAX", 7*time.Second),
			ItemMin:      getDurationOrDefault("PACING_ITEM_MIN", 10*time.Second),
			ItemMax:      getDurationOrDefault("PACING_ITEM_MAX", 20*time.Second),
			BatchMin:     getDurationOrDefault("PACING_BATCH_MIN", 30*time.Second),
			BatchMax:     getDurationOrDefault("PACING_BATCH_MAX", 60*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-IN,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Kolkata"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-IN"),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", ""),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		LLM: LLMConfig{
			APIKey:      getEnvOrDefault("OPENAI_API_KEY", ""),
			Model:       getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:     getEnvOrDefault("LLM_BASE_URL", ""),
			Temperature: getFloatOrDefault("LLM_TEMPERATURE", 0.2),
			Timeout:     getDurationOrDefault("LLM_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			OutputDir: getEnvOrDefault("OUTPUT_DIR", "output"),
			UploadDir: getEnvOrDefault("UPLOAD_DIR", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			CacheTTL: getDurationOrDefault("REDIS_CACHE_TTL", 24*time.Hour),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:catalog_jobs"),
		},
		Database: DatabaseConfig{
			ArchiveEnabled: getBoolOrDefault("ARCHIVE_ENABLED", false),
			Host:           getEnvOrDefault("DB_HOST", "localhost"),
			Port:           getIntOrDefault("DB_PORT", 5432),
			User:           getEnvOrDefault("DB_USER", "postgres"),
			Password:       getEnvOrDefault("DB_PASSWORD", ""),
			DBName:         getEnvOrDefault("DB_NAME", "catalog_enricher"),
			SSLMode:        getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns:       getIntOrDefault("DB_MAX_CONNS", 5),
		},
		Minio: MinioConfig{
			Endpoint:  getEnvOrDefault("MINIO_ENDPOINT", ""),
			AccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnvOrDefault("MINIO_SECRET_KEY", ""),
			Bucket:    getEnvOrDefault("MINIO_BUCKET", "catalog-results"),
			UseSSL:    getBoolOrDefault("MINIO_USE_SSL", false),
			URLExpiry: getDurationOrDefault("MINIO_URL_EXPIRY", 7*24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	// The browser backend walks smaller windows than the LLM backend.
	defaultBatch := 5
	if cfg.Scraper.Backend == BackendLLM {
		defaultBatch = 10
	}
	cfg.Scraper.BatchSize = getIntOrDefault("SCRAPER_BATCH_SIZE", defaultBatch)

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Scraper.Backend {
	case BackendBrowser:
	case BackendLLM:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the %s backend", BackendLLM)
		}
	default:
		return fmt.Errorf("unknown SCRAPER_BACKEND %q", c.Scraper.Backend)
	}

	if c.Scraper.BatchSize < 1 {
		return fmt.Errorf("SCRAPER_BATCH_SIZE must be at least 1")
	}

	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}

	if err := c.Pacing.Ranges().Validate(); err != nil {
		return fmt.Errorf("invalid pacing: %w", err)
	}

	if c.Server.UploadRatePerMinute < 1 {
		return fmt.Errorf("UPLOAD_RATE_PER_MINUTE must be at least 1")
	}

	if c.Minio.Enabled() && c.Minio.Bucket == "" {
		return fmt.Errorf("MINIO_BUCKET is required when MINIO_ENDPOINT is set")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
