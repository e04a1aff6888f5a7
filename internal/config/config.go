package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（空の場合はインメモリリポジトリを使用する）
	DatabaseURL string

	// Blob storage
	BlobDriver     string // memory, fs, minio
	BlobFSRoot     string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// Events（空の場合はイベントを配信しない）
	NATSURL string

	// Narrative
	NarrativeAPIURL   string
	NarrativeAPIKey   string
	NarrativeTimeout  time.Duration
	NarrativeCacheTTL time.Duration

	// Jobs
	JobSimulation     bool
	JobSuccessRate    float64
	ImportDelay       time.Duration
	ExportPickupDelay time.Duration
	ExportDelay       time.Duration
	JobTimeout        time.Duration
	JobSweepInterval  time.Duration

	// Upload limits
	ImportMaxSize int64
	PhotoMaxSize  int64

	// Export
	ExportFontPath        string
	ArtifactRetentionDays int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitImport  int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string

	// Seed
	SeedDemoData bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.BlobDriver = getEnvString("BLOB_DRIVER", "memory")
	cfg.BlobFSRoot = os.Getenv("BLOB_FS_ROOT")
	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "beetlebase")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)

	switch cfg.BlobDriver {
	case "memory":
	case "fs":
		if cfg.BlobFSRoot == "" {
			missing = append(missing, "BLOB_FS_ROOT")
		}
	case "minio":
		for key, v := range map[string]string{
			"MINIO_ENDPOINT":   cfg.MinIOEndpoint,
			"MINIO_ACCESS_KEY": cfg.MinIOAccessKey,
			"MINIO_SECRET_KEY": cfg.MinIOSecretKey,
		} {
			if v == "" {
				missing = append(missing, key)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported BLOB_DRIVER: %q (memory, fs, minio)", cfg.BlobDriver)
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NarrativeAPIURL = os.Getenv("NARRATIVE_API_URL")
	cfg.NarrativeAPIKey = os.Getenv("NARRATIVE_API_KEY")
	cfg.NarrativeTimeout = getEnvDuration("NARRATIVE_TIMEOUT", 20*time.Second)
	cfg.NarrativeCacheTTL = getEnvDuration("NARRATIVE_CACHE_TTL", 30*time.Minute)
	cfg.JobSimulation = getEnvBool("JOB_SIMULATION", false)
	cfg.JobSuccessRate = getEnvFloat("JOB_SUCCESS_RATE", 0.7)
	cfg.ImportDelay = getEnvDuration("IMPORT_DELAY", 2*time.Second)
	cfg.ExportPickupDelay = getEnvDuration("EXPORT_PICKUP_DELAY", 1*time.Second)
	cfg.ExportDelay = getEnvDuration("EXPORT_DELAY", 3*time.Second)
	cfg.JobTimeout = getEnvDuration("JOB_TIMEOUT", 30*time.Second)
	cfg.JobSweepInterval = getEnvDuration("JOB_SWEEP_INTERVAL", time.Minute)
	cfg.ImportMaxSize = getEnvInt64("IMPORT_MAX_SIZE", 10<<20)
	cfg.PhotoMaxSize = getEnvInt64("PHOTO_MAX_SIZE", 10<<20)
	cfg.ExportFontPath = os.Getenv("EXPORT_FONT_PATH")
	cfg.ArtifactRetentionDays = getEnvInt("ARTIFACT_RETENTION_DAYS", 7)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitImport = getEnvInt("RATE_LIMIT_IMPORT", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.SeedDemoData = getEnvBool("SEED_DEMO_DATA", false)

	if cfg.JobSuccessRate < 0 || cfg.JobSuccessRate > 1 {
		cfg.JobSuccessRate = 0.7
	}

	return cfg, nil
}

// StaleJobAfter はrunningのまま更新のないジョブを中断とみなすまでの時間を返す。
// 処理遅延とタイムアウトの合計に、スイープ間隔分の余裕を加える。
func (c *Config) StaleJobAfter() time.Duration {
	delay := c.ImportDelay
	if d := c.ExportPickupDelay + c.ExportDelay; d > delay {
		delay = d
	}
	return delay + c.JobTimeout + c.JobSweepInterval
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
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
