package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（空の場合はセッションをPostgreSQLに保存する）
	RedisAddr     string
	RedisPassword string

	// Session
	SessionMaxAge          int
	SessionRefreshInterval time.Duration
	SessionCleanupInterval time.Duration

	// Storage
	StorageDir string

	// Upload
	UploadTimeout time.Duration
	UploadMaxSize int64

	// RemoveBG
	RemoveBGAPIKey    string
	RemoveBGTimeout   time.Duration
	RemoveBGRateLimit int // 1分あたりの最大呼び出し数

	// Catalog
	CatalogFeedTrending   string
	CatalogFeedAesthetic  string
	CatalogFeedSpace      string
	CatalogFeedTechnology string
	CatalogMaxFeedSize    int64
	CatalogRefreshEvery   time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.StorageDir = os.Getenv("STORAGE_DIR")
	if cfg.StorageDir == "" {
		missing = append(missing, "STORAGE_DIR")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionRefreshInterval = getEnvDuration("SESSION_REFRESH_INTERVAL", 30*time.Minute)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.UploadTimeout = getEnvDuration("UPLOAD_TIMEOUT", 30*time.Second)
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 10485760)
	cfg.RemoveBGAPIKey = getEnvString("REMOVEBG_API_KEY", "")
	cfg.RemoveBGTimeout = getEnvDuration("REMOVEBG_TIMEOUT", 30*time.Second)
	cfg.RemoveBGRateLimit = getEnvInt("REMOVEBG_RATE_LIMIT", 10)
	cfg.CatalogFeedTrending = getEnvString("CATALOG_FEED_TRENDING", "")
	cfg.CatalogFeedAesthetic = getEnvString("CATALOG_FEED_AESTHETIC", "")
	cfg.CatalogFeedSpace = getEnvString("CATALOG_FEED_SPACE", "")
	cfg.CatalogFeedTechnology = getEnvString("CATALOG_FEED_TECHNOLOGY", "")
	cfg.CatalogMaxFeedSize = getEnvInt64("CATALOG_MAX_FEED_SIZE", 5242880)
	cfg.CatalogRefreshEvery = getEnvDuration("CATALOG_REFRESH_EVERY", time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// UseRedisSessions はセッショントークンの保存先にRedisを使うかを返す。
func (c *Config) UseRedisSessions() bool {
	return c.RedisAddr != ""
}

// CatalogCategories は構成済みのカタログカテゴリを返す。
// フィードURL未設定のカテゴリは除外される。
func (c *Config) CatalogCategories() []struct{ Name, FeedURL string } {
	all := []struct{ Name, FeedURL string }{
		{"Trending", c.CatalogFeedTrending},
		{"Aesthetic", c.CatalogFeedAesthetic},
		{"Space", c.CatalogFeedSpace},
		{"Technology", c.CatalogFeedTechnology},
	}
	configured := all[:0]
	for _, cat := range all {
		if strings.TrimSpace(cat.FeedURL) != "" {
			configured = append(configured, cat)
		}
	}
	return configured
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
