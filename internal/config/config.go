package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvPrefix prefixes every environment override, e.g. IMAGEJOB_DATABASE_PASSWORD
	EnvPrefix = "IMAGEJOB"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Events     EventsConfig     `yaml:"events"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Upload     UploadConfig     `yaml:"upload"`
	Processing ProcessingConfig `yaml:"processing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// DatabaseConfig holds the job store connection configuration.
// Host, port and credentials apply to postgres; Path applies to sqlite.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	AutoMigrate     bool          `yaml:"auto_migrate" split_words:"true"`
	MaxOpenConns    int           `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" split_words:"true"`
}

// EventsConfig controls job lifecycle notifications
type EventsConfig struct {
	Enabled  bool           `yaml:"enabled"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete" split_words:"true"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" split_words:"true"`
	RetryInterval     time.Duration `yaml:"retry_interval" split_words:"true"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" split_words:"true"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" split_words:"true"`
	RetryInterval     time.Duration `yaml:"retry_interval" split_words:"true"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" split_words:"true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller" split_words:"true"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// UploadConfig holds upload validation bounds
type UploadConfig struct {
	MinSizeBytes   int64  `yaml:"min_size_bytes" split_words:"true"`
	MaxSizeBytes   int64  `yaml:"max_size_bytes" split_words:"true"`
	StorageBaseURL string `yaml:"storage_base_url" split_words:"true"`
}

// ProcessingConfig holds the simulated background remover settings
type ProcessingConfig struct {
	SizeRatio        float64 `yaml:"size_ratio" split_words:"true"`
	ProcessedBaseURL string  `yaml:"processed_base_url" split_words:"true"`
}

// Load reads the configuration file and applies IMAGEJOB_* environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills unset optional settings
func (c *Config) ApplyDefaults() {
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Driver == DriverPostgres && c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Upload.MinSizeBytes == 0 {
		c.Upload.MinSizeBytes = 10
	}
	if c.Upload.MaxSizeBytes == 0 {
		c.Upload.MaxSizeBytes = 10 * 1024 * 1024
	}
	if c.Upload.StorageBaseURL == "" {
		c.Upload.StorageBaseURL = "https://storage.local"
	}

	if c.Processing.SizeRatio == 0 {
		c.Processing.SizeRatio = 0.7
	}
	if c.Processing.ProcessedBaseURL == "" {
		c.Processing.ProcessedBaseURL = c.Upload.StorageBaseURL
	}

	if c.Events.RabbitMQ.Exchange.Type == "" {
		c.Events.RabbitMQ.Exchange.Type = "topic"
	}
	if c.Events.RabbitMQ.VHost == "" {
		c.Events.RabbitMQ.VHost = "/"
	}
}

// ValidateAPIConfig checks if the configuration is valid for the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Upload.MinSizeBytes <= 0 {
		return fmt.Errorf("upload min_size_bytes must be greater than 0")
	}

	if c.Upload.MaxSizeBytes < c.Upload.MinSizeBytes {
		return fmt.Errorf("upload max_size_bytes must not be less than min_size_bytes")
	}

	if !isAbsoluteURL(c.Upload.StorageBaseURL) {
		return fmt.Errorf("invalid upload storage_base_url: %q", c.Upload.StorageBaseURL)
	}

	if c.Processing.SizeRatio <= 0 || c.Processing.SizeRatio > 1 {
		return fmt.Errorf("invalid processing size_ratio: %v (must be in (0, 1])", c.Processing.SizeRatio)
	}

	if !isAbsoluteURL(c.Processing.ProcessedBaseURL) {
		return fmt.Errorf("invalid processing processed_base_url: %q", c.Processing.ProcessedBaseURL)
	}

	if c.Events.Enabled {
		if err := c.validateEvents(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverPostgres, "":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}

		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}

		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	return nil
}

func (c *Config) validateEvents() error {
	rmq := c.Events.RabbitMQ

	if rmq.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if rmq.Port < MinPort || rmq.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", rmq.Port, MinPort, MaxPort)
	}

	if rmq.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	switch rmq.Exchange.Type {
	case "direct", "topic", "fanout", "headers":
	default:
		return fmt.Errorf("invalid rabbitmq exchange type: %q", rmq.Exchange.Type)
	}

	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
