// Package config はアプリケーション設定の読み込みを提供する。
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

	// JWT
	JWTPublicKeyURL string
	JWTKeyTTL       time.Duration
	JWTFetchTimeout time.Duration

	// Auth
	AuthExcludedPaths []string

	// Completion
	CompletionBaseURL string
	CompletionAPIKey  string
	CompletionModel   string
	CompletionTimeout time.Duration

	// Chat
	ContextWindowSize int

	// Rate Limit
	RateLimitGeneral int
	RateLimitMessage int

	// Server
	ServerPort string

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

	cfg.JWTPublicKeyURL = os.Getenv("JWT_PUBLIC_KEY_URL")
	if cfg.JWTPublicKeyURL == "" {
		missing = append(missing, "JWT_PUBLIC_KEY_URL")
	}

	cfg.CompletionBaseURL = os.Getenv("COMPLETION_BASE_URL")
	if cfg.CompletionBaseURL == "" {
		missing = append(missing, "COMPLETION_BASE_URL")
	}

	cfg.CompletionAPIKey = os.Getenv("COMPLETION_API_KEY")
	if cfg.CompletionAPIKey == "" {
		missing = append(missing, "COMPLETION_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTKeyTTL = getEnvDuration("JWT_KEY_TTL", 15*time.Minute)
	cfg.JWTFetchTimeout = getEnvDuration("JWT_FETCH_TIMEOUT", 2*time.Second)
	cfg.AuthExcludedPaths = getEnvStringList("AUTH_EXCLUDED_PATHS", []string{"/health"})
	cfg.CompletionModel = getEnvString("COMPLETION_MODEL", "gpt-4o-mini")
	cfg.CompletionTimeout = getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second)
	cfg.ContextWindowSize = getEnvInt("CONTEXT_WINDOW_SIZE", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMessage = getEnvInt("RATE_LIMIT_MESSAGE", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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

// getEnvStringList はカンマ区切りの環境変数を文字列スライスとして読み込む。
// 各要素の前後の空白は除去する。
func getEnvStringList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
