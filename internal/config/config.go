// Package config defines the typed application configuration for the
// companion service, loaded via pkg/config from YAML and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/memorymate/companion/pkg/config"
	"github.com/memorymate/companion/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Service configuration
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"memory-mate-companion"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	// Server configuration
	Port           int           `env:"PORT" yaml:"port" default:"8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout" default:"60s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" yaml:"idle_timeout" default:"60s"`

	// Gemini configuration
	Gemini GeminiConfig `yaml:"gemini"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Monitoring configuration
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GeminiConfig holds Google Gemini-specific configuration
type GeminiConfig struct {
	APIKey      string `env:"GEMINI_API_KEY" yaml:"-" required:"true"`
	ChatModel   string `env:"GEMINI_CHAT_MODEL" yaml:"chat_model" default:"gemini-2.5-flash"`
	VisionModel string `env:"GEMINI_VISION_MODEL" yaml:"vision_model" default:"gemini-2.5-flash"`
	QuizModel   string `env:"GEMINI_QUIZ_MODEL" yaml:"quiz_model" default:"gemini-2.5-pro"`
}

// StorageConfig holds key-value storage configuration
type StorageConfig struct {
	Backend  string `env:"STORAGE_BACKEND" yaml:"backend" default:"local"`
	BaseDir  string `env:"STORAGE_BASE_DIR" yaml:"base_dir" default:"./data"`
	S3Bucket string `env:"STORAGE_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix string `env:"STORAGE_S3_PREFIX" yaml:"s3_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level" default:"info"`
	Format string `env:"LOG_FORMAT" yaml:"format" default:"json"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	MetricsEnabled bool `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`
	MetricsPort    int  `env:"METRICS_PORT" yaml:"metrics_port" default:"9090"`
}

// Validate checks configuration invariants that tags cannot express.
func (c AppConfig) Validate() error {
	var result error

	switch strings.ToLower(c.Storage.Backend) {
	case "local":
		if c.Storage.BaseDir == "" {
			result = multierror.Append(result, fmt.Errorf("local storage requires STORAGE_BASE_DIR"))
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("s3 storage requires STORAGE_S3_BUCKET"))
		}
	case "memory":
		// nothing to check
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported storage backend: %s (must be 'local', 's3', or 'memory')", c.Storage.Backend))
	}

	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid port: %d", c.Port))
	}

	return result
}

// Load reads AppConfig from the given YAML file (optional) and environment.
func Load(filepath string) (AppConfig, error) {
	var cfg AppConfig
	if err := config.GetConfig(&cfg, filepath, true); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoggerConfig converts the logging section into a pkg/logger configuration.
func (c AppConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:   logger.ParseLevel(c.Logging.Level),
		Format:  c.Logging.Format,
		Service: c.ServiceName,
	}
}
