package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
	BatchSize     int
	Buffer        int
}

// HTTPConfig defines the listener and request limits.
type HTTPConfig struct {
	Port            string
	MaxUploadMB     int64
	ShutdownTimeout time.Duration
}

// OutputConfig defines how merged documents are named and exported.
type OutputConfig struct {
	DefaultName string
	SaveCopy    bool
	ResultDir   string
}

// BlobConfig selects the backend that holds transient export handles.
type BlobConfig struct {
	Backend     string // "memory"|"redis"|"s3"
	TTL         time.Duration
	RedisURL    string
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

// MergeConfig bounds concurrent merges.
type MergeConfig struct {
	MaxInflight int
}

// SessionConfig controls idle session eviction.
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// WebConfig holds dashboard credentials.
type WebConfig struct {
	Username       string
	Password       string
	PasswordBcrypt string
	TemplateDir    string
	LoginTTL       time.Duration
}

// PreviewConfig controls thumbnail rendering.
type PreviewConfig struct {
	DPI int
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	HTTP    HTTPConfig
	Output  OutputConfig
	Blob    BlobConfig
	Session SessionConfig
	Web     WebConfig
	Merge   MergeConfig
	Preview PreviewConfig
}

// LoadDotEnv populates the process environment from DOTENV_FILE (default .env).
// Variables already set win. A missing file is not an error.
func LoadDotEnv() error {
	path := getEnv("DOTENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfmerger.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfmerger",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
		BatchSize:     parseInt(getEnv("AXIOM_BATCH_SIZE", "200"), 200),
		Buffer:        parseInt(getEnv("AXIOM_BUFFER", "1000"), 1000),
	}

	cfg.HTTP = HTTPConfig{
		Port:            getEnv("PORT", "8080"),
		MaxUploadMB:     int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.Output = OutputConfig{
		DefaultName: getEnv("OUTPUT_DEFAULT_NAME", "merged.pdf"),
		SaveCopy:    parseBool(getEnv("EXPORT_SAVE_COPY", "false")),
		ResultDir:   getEnv("RESULT_DIR", "uploads/results"),
	}

	cfg.Blob = BlobConfig{
		Backend:     strings.ToLower(getEnv("BLOB_BACKEND", "memory")),
		TTL:         parseDuration(getEnv("BLOB_TTL", "5m"), 5*time.Minute),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		S3Bucket:    getEnv("AWS_S3_BUCKET", ""),
		S3Prefix:    getEnv("AWS_S3_PREFIX", "pdfmerger/exports"),
		S3Region:    getEnv("AWS_REGION", ""),
		S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.Session = SessionConfig{
		IdleTimeout:   parseDuration(getEnv("SESSION_IDLE_TIMEOUT", "1h"), time.Hour),
		SweepInterval: parseDuration(getEnv("SESSION_SWEEP_INTERVAL", "5m"), 5*time.Minute),
	}

	cfg.Web = WebConfig{
		Username:       getEnv("WEB_USERNAME", ""),
		Password:       getEnv("WEB_PASSWORD", ""),
		PasswordBcrypt: getEnv("WEB_PASSWORD_BCRYPT", ""),
		TemplateDir:    getEnv("WEB_TEMPLATE_DIR", ""),
		LoginTTL:       parseDuration(getEnv("WEB_LOGIN_TTL", "12h"), 12*time.Hour),
	}

	cfg.Merge = MergeConfig{
		MaxInflight: parseInt(getEnv("MERGE_MAX_INFLIGHT", "4"), 4),
	}

	cfg.Preview = PreviewConfig{
		DPI: parseInt(getEnv("PREVIEW_DPI", "36"), 36),
	}
	if cfg.Preview.DPI <= 0 {
		cfg.Preview.DPI = 36
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
