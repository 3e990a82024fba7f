package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// 認証情報ストアのバックエンド種別
const (
	CredentialStoreFile     = "file"
	CredentialStoreMemory   = "memory"
	CredentialStoreRedis    = "redis"
	CredentialStorePostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Jobly API
	APIBaseURL   string
	APITimeout   time.Duration
	APIRateLimit float64
	APIRateBurst int

	// Credential Store
	CredentialStore string
	CredentialFile  string
	CredentialKey   string
	RedisURL        string
	DatabaseURL     string

	// Server
	ServerPort string
	LoginPath  string

	// Logging
	LogLevel string

	// Cookie
	CookieSecure bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("JOBLY_API_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "JOBLY_API_URL")
	}

	cfg.CredentialStore = strings.ToLower(getEnvString("CREDENTIAL_STORE", CredentialStoreFile))
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// バックエンドごとの必須項目
	switch cfg.CredentialStore {
	case CredentialStoreFile, CredentialStoreMemory:
	case CredentialStoreRedis:
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case CredentialStorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported CREDENTIAL_STORE: %q", cfg.CredentialStore)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 10*time.Second)
	cfg.APIRateLimit = getEnvFloat("API_RATE_LIMIT", 10)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", 20)
	cfg.CredentialFile = getEnvString("CREDENTIAL_FILE", defaultCredentialFile())
	cfg.CredentialKey = getEnvString("CREDENTIAL_KEY", "jobly:token")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.LoginPath = getEnvString("LOGIN_PATH", "/login")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)

	return cfg, nil
}

// defaultCredentialFile はホームディレクトリ配下のトークン保存先を返す。
func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".jobly", "token.json")
	}
	return filepath.Join(home, ".jobly", "token.json")
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
