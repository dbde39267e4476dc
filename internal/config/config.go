package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Webhook
	WebhookSecret    string
	WebhookTolerance time.Duration

	// 生成API
	GenAIBaseURL string
	GenAIAPIKey  string
	GenAITimeout time.Duration
	SpeechModel  string
	ImageModel   string

	// 耐久ストア
	StorageBaseURL string
	StorageAPIKey  string
	StorageTimeout time.Duration

	// アップロード
	MaxUploadSize int64

	// 画像取り込み
	ImportTimeout time.Duration
	ImportMaxSize int64

	// Rate Limit（req/min/user）
	RateLimitGeneral  int
	RateLimitGenerate int

	// カスケード
	CascadeQueueSize   int
	CascadeMaxAttempts int
	RepairInterval     time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// Webhookシークレットの欠落は署名検証失敗とは区別される致命的な設定エラーであり、
// ここで起動を止める。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.WebhookSecret = os.Getenv("IDP_WEBHOOK_SECRET")
	if cfg.WebhookSecret == "" {
		missing = append(missing, "IDP_WEBHOOK_SECRET")
	}

	cfg.GenAIBaseURL = os.Getenv("GENAI_BASE_URL")
	if cfg.GenAIBaseURL == "" {
		missing = append(missing, "GENAI_BASE_URL")
	}

	cfg.GenAIAPIKey = os.Getenv("GENAI_API_KEY")
	if cfg.GenAIAPIKey == "" {
		missing = append(missing, "GENAI_API_KEY")
	}

	cfg.StorageBaseURL = os.Getenv("STORAGE_BASE_URL")
	if cfg.StorageBaseURL == "" {
		missing = append(missing, "STORAGE_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.WebhookTolerance = getEnvDuration("WEBHOOK_TOLERANCE", 5*time.Minute)
	cfg.GenAITimeout = getEnvDuration("GENAI_TIMEOUT", 60*time.Second)
	cfg.SpeechModel = getEnvString("SPEECH_MODEL", "tts-1")
	cfg.ImageModel = getEnvString("IMAGE_MODEL", "dall-e-3")
	cfg.StorageAPIKey = getEnvString("STORAGE_API_KEY", "")
	cfg.StorageTimeout = getEnvDuration("STORAGE_TIMEOUT", 30*time.Second)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 26214400)
	cfg.ImportTimeout = getEnvDuration("IMPORT_TIMEOUT", 10*time.Second)
	cfg.ImportMaxSize = getEnvInt64("IMPORT_MAX_SIZE", 10485760)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGenerate = getEnvInt("RATE_LIMIT_GENERATE", 10)
	cfg.CascadeQueueSize = getEnvInt("CASCADE_QUEUE_SIZE", 1024)
	cfg.CascadeMaxAttempts = getEnvInt("CASCADE_MAX_ATTEMPTS", 5)
	cfg.RepairInterval = getEnvDuration("REPAIR_INTERVAL", 10*time.Minute)
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
