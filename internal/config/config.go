// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config
//
// Every setting the service needs. Values are resolved once at process
// start by Load() and are read-only afterwards.
//
// Resolution order:
//
//	defaults → CONFIG_FILE (TOML, optional) → environment variables
type Config struct {

	// ---------------------------
	// Identity / network
	// ---------------------------

	ServiceName string `toml:"service_name"`
	InstanceID  string `toml:"instance_id"` // hostname, random hex when unavailable
	HTTPAddr    string `toml:"http_addr"`

	// ---------------------------
	// Request limits
	// ---------------------------

	MaxBodyMB       int64         `toml:"max_body_mb"`
	RateLimitMax    int           `toml:"rate_limit_max"`    // requests per window per client
	RateLimitWindow time.Duration `toml:"rate_limit_window"` // fixed window length

	// ---------------------------
	// CORS
	// ---------------------------

	AllowedOrigins              []string `toml:"allowed_origins"`
	AllowChromeExtensionOrigins bool     `toml:"allow_chrome_extension_origins"`
	AllowedExtensionIDs         []string `toml:"allowed_extension_ids"` // empty = any extension

	// ---------------------------
	// Report rendering
	// ---------------------------

	LogoPath       string         `toml:"logo_path"`
	ReportTimezone string         `toml:"report_timezone"`
	Location       *time.Location `toml:"-"` // parsed ReportTimezone
	Attribution    string         `toml:"report_attribution"`

	// ---------------------------
	// Audit: SQLite sink
	// ---------------------------

	EnableDB bool   `toml:"enable_db"`
	DBPath   string `toml:"db_path"`

	// ---------------------------
	// Audit: S3 archive (disabled when AuditBucket is empty)
	// ---------------------------
	// SDK retries are fixed at 0; S3AppRetries is the only retry budget.

	AWSRegion      string        `toml:"aws_region"`
	AuditBucket    string        `toml:"audit_bucket"`
	AuditPrefix    string        `toml:"audit_prefix"`
	AuditDLQPrefix string        `toml:"audit_dlq_prefix"`
	S3Timeout      time.Duration `toml:"s3_timeout"`
	S3AppRetries   int           `toml:"s3_app_retries"`

	// ---------------------------
	// Audit: batching
	// ---------------------------

	AuditChannelSize   int           `toml:"audit_channel_size"`
	AuditUploadQueue   int           `toml:"audit_upload_queue"`
	AuditBatchSize     int           `toml:"audit_batch_size"`
	AuditFlushInterval time.Duration `toml:"audit_flush_interval"`

	// ---------------------------
	// Local DLQ (Dead Letter Queue)
	// ---------------------------

	DLQDir          string        `toml:"dlq_dir"`
	DLQMaxAge       time.Duration `toml:"dlq_max_age"`
	DLQMaxSizeBytes int64         `toml:"dlq_max_size_bytes"`

	// ---------------------------
	// Logging
	// ---------------------------

	LogLevel   string `toml:"log_level"`
	LogPretty  bool   `toml:"log_pretty"`
	LogSampleN uint32 `toml:"log_sample_n"` // keep 1 of N debug/info lines
}

// MaxBodyBytes is the request body limit in bytes.
func (c Config) MaxBodyBytes() int64 {
	return c.MaxBodyMB * 1024 * 1024
}

// S3Enabled reports whether audit batches are archived to S3.
func (c Config) S3Enabled() bool {
	return c.AuditBucket != ""
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServiceName: "inspector-report",
		HTTPAddr:    ":3001",

		MaxBodyMB:       5,
		RateLimitMax:    20,
		RateLimitWindow: time.Minute,

		AllowedOrigins:              []string{"https://blastgroup.org"},
		AllowChromeExtensionOrigins: true,

		LogoPath:       "./blast-logo.png",
		ReportTimezone: "UTC",
		Attribution:    "Powered by BlastGroup",

		DBPath: "./data/ga4-inspector.db",

		AWSRegion:      "us-east-1",
		AuditPrefix:    "audit",
		AuditDLQPrefix: "audit_dlq",
		S3Timeout:      5 * time.Second,
		S3AppRetries:   3,

		AuditChannelSize:   1024,
		AuditUploadQueue:   16,
		AuditBatchSize:     100,
		AuditFlushInterval: 5 * time.Second,

		DLQDir:          "./data/dlq",
		DLQMaxAge:       72 * time.Hour,
		DLQMaxSizeBytes: 256 << 20,

		LogLevel:   "info",
		LogSampleN: 1,
	}
}

// Load
//
// Resolves the configuration from the process environment. Any malformed
// value stops the process immediately (fail-fast) so the service never runs
// with a half-applied configuration.
func Load() Config {
	cfg, err := load(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	e := envReader{getenv: getenv}

	e.str(&cfg.ServiceName, "SERVICE_NAME")
	e.str(&cfg.InstanceID, "INSTANCE_ID")
	if port := getenv("PORT"); port != "" {
		cfg.HTTPAddr = ":" + port
	}
	e.str(&cfg.HTTPAddr, "HTTP_ADDR")

	e.integer64(&cfg.MaxBodyMB, "MAX_BODY_MB")
	e.integer(&cfg.RateLimitMax, "RATE_LIMIT_MAX")
	var windowMS int64
	e.integer64(&windowMS, "RATE_LIMIT_WINDOW_MS")
	if windowMS != 0 {
		cfg.RateLimitWindow = time.Duration(windowMS) * time.Millisecond
	}
	e.duration(&cfg.RateLimitWindow, "RATE_LIMIT_WINDOW")

	e.list(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	e.boolean(&cfg.AllowChromeExtensionOrigins, "ALLOW_CHROME_EXTENSION_ORIGINS")
	e.list(&cfg.AllowedExtensionIDs, "ALLOWED_EXTENSION_IDS")

	e.str(&cfg.LogoPath, "LOGO_PATH")
	e.str(&cfg.ReportTimezone, "REPORT_TIMEZONE")
	e.str(&cfg.Attribution, "REPORT_ATTRIBUTION")

	e.boolean(&cfg.EnableDB, "ENABLE_DB")
	e.str(&cfg.DBPath, "DB_PATH")

	e.str(&cfg.AWSRegion, "AWS_REGION")
	e.str(&cfg.AuditBucket, "AUDIT_BUCKET")
	e.str(&cfg.AuditPrefix, "AUDIT_PREFIX")
	e.str(&cfg.AuditDLQPrefix, "AUDIT_DLQ_PREFIX")
	e.duration(&cfg.S3Timeout, "S3_TIMEOUT")
	e.integer(&cfg.S3AppRetries, "S3_APP_RETRIES")

	e.integer(&cfg.AuditChannelSize, "AUDIT_CHANNEL_SIZE")
	e.integer(&cfg.AuditUploadQueue, "AUDIT_UPLOAD_QUEUE")
	e.integer(&cfg.AuditBatchSize, "AUDIT_BATCH_SIZE")
	e.duration(&cfg.AuditFlushInterval, "AUDIT_FLUSH_INTERVAL")

	e.str(&cfg.DLQDir, "DLQ_DIR")
	e.duration(&cfg.DLQMaxAge, "DLQ_MAX_AGE")
	e.integer64(&cfg.DLQMaxSizeBytes, "DLQ_MAX_SIZE_BYTES")

	e.str(&cfg.LogLevel, "LOG_LEVEL")
	e.boolean(&cfg.LogPretty, "LOG_PRETTY")
	e.unsigned(&cfg.LogSampleN, "LOG_SAMPLE_N")

	if e.err != nil {
		return Config{}, e.err
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = fallbackInstanceID()
	}
	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", cfg.ReportTimezone, err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.HTTPAddr == "":
		return fmt.Errorf("HTTP_ADDR must not be empty")
	case c.MaxBodyMB <= 0:
		return fmt.Errorf("MAX_BODY_MB must be positive, got %d", c.MaxBodyMB)
	case c.RateLimitMax <= 0:
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	case c.RateLimitWindow <= 0:
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	case c.AuditChannelSize <= 0 || c.AuditUploadQueue <= 0:
		return fmt.Errorf("audit queue sizes must be positive")
	case c.AuditBatchSize <= 0:
		return fmt.Errorf("AUDIT_BATCH_SIZE must be positive, got %d", c.AuditBatchSize)
	case c.AuditFlushInterval <= 0:
		return fmt.Errorf("AUDIT_FLUSH_INTERVAL must be positive, got %s", c.AuditFlushInterval)
	case c.S3AppRetries < 0:
		return fmt.Errorf("S3_APP_RETRIES must not be negative")
	case c.EnableDB && c.DBPath == "":
		return fmt.Errorf("DB_PATH is required when ENABLE_DB is set")
	case c.S3Enabled() && (c.AWSRegion == "" || c.DLQDir == ""):
		return fmt.Errorf("AWS_REGION and DLQ_DIR are required when AUDIT_BUCKET is set")
	}
	return nil
}

// envReader
//
// Overrides a field when its variable is set. The first malformed value is
// kept in err and later reads become no-ops.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) lookup(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, v, kind string, err error) {
	e.err = fmt.Errorf("invalid %s env %s=%q: %w", kind, key, v, err)
}

func (e *envReader) str(dst *string, key string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(dst *int, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, "int", err)
			return
		}
		*dst = n
	}
}

func (e *envReader) integer64(dst *int64, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, "int64", err)
			return
		}
		*dst = n
	}
}

func (e *envReader) unsigned(dst *uint32, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			e.fail(key, v, "uint32", err)
			return
		}
		*dst = uint32(n)
	}
}

func (e *envReader) duration(dst *time.Duration, key string) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, "duration", err)
			return
		}
		*dst = d
	}
}

func (e *envReader) boolean(dst *bool, key string) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, "bool", err)
			return
		}
		*dst = b
	}
}

// list reads a comma separated value; empty items are dropped.
func (e *envReader) list(dst *[]string, key string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// fallbackInstanceID
//
// Identifies this process in logs and audit object names.
//   - default: hostname (unique per task on ECS/Fargate)
//   - fallback: 12 random hex characters
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
