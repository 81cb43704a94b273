package kaos_fields

import (
	"time"
)

// KaosConfig is the service configuration. It is read from config.yaml and
// then overlaid with environment variables.
type KaosConfig struct {
	Port           string `yaml:"port" json:"port" env:"KAOS_PORT"`
	DatabaseURL    string `yaml:"database_url" json:"database_url" env:"DATABASE_URL"`
	DatabasePath   string `yaml:"database_path" json:"database_path" env:"KAOS_DATABASE_PATH"`
	DatabaseDriver string `yaml:"database_driver" json:"database_driver" env:"KAOS_DATABASE_DRIVER" binding:"omitempty,oneof=default sqlite sqlite3 postgres pgx"`

	RedisAddr         string `yaml:"redis_addr" json:"redis_addr" env:"KAOS_REDIS_ADDR"`
	RedisPassword     string `yaml:"redis_password" json:"redis_password" env:"KAOS_REDIS_PASSWORD"`
	RedisDB           int    `yaml:"redis_db" json:"redis_db" env:"KAOS_REDIS_DB" binding:"gte=0"`
	HistoryTTLSeconds int    `yaml:"history_ttl_seconds" json:"history_ttl_seconds" env:"KAOS_HISTORY_TTL_SECONDS" binding:"gte=0"`

	UploadDir      string `yaml:"upload_dir" json:"upload_dir" env:"KAOS_UPLOAD_DIR"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" json:"max_upload_bytes" env:"KAOS_MAX_UPLOAD_BYTES" binding:"gte=0"`
	JWTSecret      string `yaml:"jwt_secret" json:"-" env:"KAOS_JWT_SECRET"`

	IsDebug            bool `yaml:"is_debug" json:"is_debug" env:"KAOS_DEBUG"`
	LogSamplingTickMs  int  `yaml:"log_sampling_tick_ms" json:"log_sampling_tick_ms" env:"KAOS_LOG_SAMPLING_TICK_MS"`
	LogSamplingAfterMs int  `yaml:"log_sampling_after_ms" json:"log_sampling_after_ms" env:"KAOS_LOG_SAMPLING_AFTER_MS"`

	SearchConcurrency int `yaml:"search_concurrency" json:"search_concurrency" env:"KAOS_SEARCH_CONCURRENCY" binding:"gte=0"`
	RecordBatchSize   int `yaml:"record_batch_size" json:"record_batch_size" env:"KAOS_RECORD_BATCH_SIZE" binding:"gte=0"`

	Finder FinderConfig `yaml:"finder" json:"finder" envPrefix:"KAOS_FINDER_"`

	OtelEnabled        bool    `yaml:"otel_enabled" json:"otel_enabled" env:"KAOS_OTEL_ENABLED"`
	OtelEndpoint       string  `yaml:"otel_endpoint" json:"otel_endpoint" env:"KAOS_OTEL_ENDPOINT"`
	OtelInsecure       bool    `yaml:"otel_insecure" json:"otel_insecure" env:"KAOS_OTEL_INSECURE"`
	OtelServiceName    string  `yaml:"otel_service_name" json:"otel_service_name" env:"KAOS_OTEL_SERVICE_NAME"`
	OtelServiceVersion string  `yaml:"otel_service_version" json:"otel_service_version" env:"KAOS_OTEL_SERVICE_VERSION"`
	OtelSampleRate     float64 `yaml:"otel_sample_rate" json:"otel_sample_rate" env:"KAOS_OTEL_SAMPLE_RATE" binding:"gte=0,lte=1"`
}

// FinderConfig tunes the adaptive visibility finder.
type FinderConfig struct {
	ErrorTolerance float64 `yaml:"error_tolerance" json:"error_tolerance" env:"ERROR_TOLERANCE" binding:"gte=0"`
	ToleranceRatio float64 `yaml:"tolerance_ratio" json:"tolerance_ratio" env:"TOLERANCE_RATIO" binding:"gte=0"`
	MaxIterations  int     `yaml:"max_iterations" json:"max_iterations" env:"MAX_ITERATIONS" binding:"gte=0"`
	InitialStepSec float64 `yaml:"initial_step_sec" json:"initial_step_sec" env:"INITIAL_STEP_SEC" binding:"gte=0"`
	MinStepSec     float64 `yaml:"min_step_sec" json:"min_step_sec" env:"MIN_STEP_SEC" binding:"gte=0"`
	MaxStepSec     float64 `yaml:"max_step_sec" json:"max_step_sec" env:"MAX_STEP_SEC" binding:"gte=0"`
}

const (
	DefaultPort              = ":8080"
	DefaultDatabasePath      = "kaos.db"
	DefaultUploadDir         = "ephemeris"
	DefaultMaxUploadBytes    = 64 << 20
	DefaultHistoryTTLSeconds = 24 * 60 * 60
	DefaultSearchConcurrency = 4
	DefaultRecordBatchSize   = 500
	DefaultOtelSampleRate    = 1.0

	DefaultErrorTolerance = 1e-4
	DefaultToleranceRatio = 0.1
	DefaultMaxIterations  = 1000
	DefaultInitialStepSec = 5
	DefaultMinStepSec     = 1
	DefaultMaxStepSec     = 300
)

// Defaults fills zero values.
func (c *KaosConfig) Defaults() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.UploadDir == "" {
		c.UploadDir = DefaultUploadDir
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.HistoryTTLSeconds == 0 {
		c.HistoryTTLSeconds = DefaultHistoryTTLSeconds
	}
	if c.SearchConcurrency == 0 {
		c.SearchConcurrency = DefaultSearchConcurrency
	}
	if c.RecordBatchSize == 0 {
		c.RecordBatchSize = DefaultRecordBatchSize
	}
	if c.OtelServiceName == "" {
		c.OtelServiceName = "kaos"
	}
	if c.OtelSampleRate == 0 {
		c.OtelSampleRate = DefaultOtelSampleRate
	}
	c.Finder.Defaults()
}

// Defaults fills zero values.
func (f *FinderConfig) Defaults() {
	if f.ErrorTolerance == 0 {
		f.ErrorTolerance = DefaultErrorTolerance
	}
	if f.ToleranceRatio == 0 {
		f.ToleranceRatio = DefaultToleranceRatio
	}
	if f.MaxIterations == 0 {
		f.MaxIterations = DefaultMaxIterations
	}
	if f.InitialStepSec == 0 {
		f.InitialStepSec = DefaultInitialStepSec
	}
	if f.MinStepSec == 0 {
		f.MinStepSec = DefaultMinStepSec
	}
	if f.MaxStepSec == 0 {
		f.MaxStepSec = DefaultMaxStepSec
	}
}

// Validate checks the configuration against its binding tags.
func (c *KaosConfig) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return err
	}
	if c.Finder.MinStepSec > c.Finder.MaxStepSec {
		return errInvalidStepRange
	}
	return nil
}

func (c KaosConfig) HistoryTTL() time.Duration {
	return time.Duration(c.HistoryTTLSeconds) * time.Second
}
