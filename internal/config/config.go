package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config aggregates runtime configuration for the panel backend.
type Config struct {
	ListenAddr    string
	MySQLDSN      string
	LogLevel      string
	Currency      string
	AdminUsername string
	AdminPassword string

	CORSAllowedOrigins []string

	// MinimumPurchase is the smallest gross amount a coupon can be applied to,
	// and the floor a discounted total must still clear.
	MinimumPurchase decimal.Decimal

	RankingMinCredits decimal.Decimal
	RankingTopN       int
	RankingPageSize   int

	ProviderBaseURL      string
	ProviderAPIKey       string
	ProviderPollInterval time.Duration
	RequestTimeout       time.Duration

	TelegramBotToken    string
	TelegramAdminChatID int64

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// ExportEnabled reports whether ranking exports to object storage are configured.
func (c Config) ExportEnabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		Currency:             getEnv("CURRENCY_SYMBOL", "$"),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:        getEnv("ADMIN_PASSWORD", "change-me"),
		CORSAllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MinimumPurchase:      getDecimal("MINIMUM_PURCHASE", "5.00"),
		RankingMinCredits:    getDecimal("RANKING_MIN_CREDITS", "50"),
		RankingTopN:          getInt("RANKING_TOP_N", 10),
		RankingPageSize:      getInt("RANKING_PAGE_SIZE", 1000),
		ProviderBaseURL:      strings.TrimRight(getEnv("PROVIDER_BASE_URL", ""), "/"),
		ProviderPollInterval: time.Second * time.Duration(getInt("PROVIDER_POLL_SECONDS", 30)),
		RequestTimeout:       time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 30)),
		TelegramAdminChatID:  getInt64("TELEGRAM_ADMIN_CHAT_ID", 0),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             os.Getenv("S3_REGION"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:      os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:       getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:             getEnv("S3_PREFIX", "exports"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.ProviderAPIKey = os.Getenv("PROVIDER_API_KEY")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.ProviderBaseURL != "" && cfg.ProviderAPIKey == "" {
		missing = append(missing, "PROVIDER_API_KEY")
	}
	if cfg.ExportEnabled() {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.MinimumPurchase.Sign() < 0 {
		return Config{}, fmt.Errorf("MINIMUM_PURCHASE cannot be negative")
	}
	if cfg.RankingTopN <= 0 {
		return Config{}, fmt.Errorf("RANKING_TOP_N must be positive")
	}
	if cfg.RankingPageSize <= 0 {
		return Config{}, fmt.Errorf("RANKING_PAGE_SIZE must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDecimal(key, fallback string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the process environment is fine.
	return nil
}
