package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, DriverPostgres, cfg.Database.Driver)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "image_jobs", cfg.Database.Database)
				assert.True(t, cfg.Database.AutoMigrate)
				assert.True(t, cfg.Events.Enabled)
				assert.Equal(t, "image_job_events", cfg.Events.RabbitMQ.Exchange.Name)
				assert.Equal(t, 100*time.Millisecond, cfg.Events.RabbitMQ.Publish.RetryInterval)
				assert.Equal(t, int64(10485760), cfg.Upload.MaxSizeBytes)
				assert.Equal(t, 0.7, cfg.Processing.SizeRatio)
				assert.Equal(t, "image-job-api", cfg.App.Name)
			}
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("IMAGEJOB_SERVER_PORT", "9090")
	t.Setenv("IMAGEJOB_DATABASE_PASSWORD", "from-env")
	t.Setenv("IMAGEJOB_DATABASE_AUTO_MIGRATE", "false")
	t.Setenv("IMAGEJOB_EVENTS_ENABLED", "false")
	t.Setenv("IMAGEJOB_UPLOAD_MAX_SIZE_BYTES", "2048")
	t.Setenv("IMAGEJOB_PROCESSING_SIZE_RATIO", "0.5")
	t.Setenv("IMAGEJOB_SERVER_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, int64(2048), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, 0.5, cfg.Processing.SizeRatio)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)

	// untouched values keep the file's setting
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "postgres", cfg.Database.User)
}

func TestLoad_InvalidEnvironmentOverride(t *testing.T) {
	t.Setenv("IMAGEJOB_SERVER_PORT", "not-a-number")

	_, err := Load("testdata/valid_config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply environment overrides")
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, int64(10), cfg.Upload.MinSizeBytes)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, "https://storage.local", cfg.Upload.StorageBaseURL)
	assert.Equal(t, 0.7, cfg.Processing.SizeRatio)
	assert.Equal(t, "https://storage.local", cfg.Processing.ProcessedBaseURL)
	assert.Equal(t, "topic", cfg.Events.RabbitMQ.Exchange.Type)

	custom := &Config{
		Upload:     UploadConfig{StorageBaseURL: "https://cdn.example.com"},
		Processing: ProcessingConfig{SizeRatio: 0.4},
	}
	custom.ApplyDefaults()
	assert.Equal(t, 0.4, custom.Processing.SizeRatio)
	assert.Equal(t, "https://cdn.example.com", custom.Processing.ProcessedBaseURL)
}

func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			Database: "image_jobs",
		},
		Events: EventsConfig{
			Enabled: true,
			RabbitMQ: RabbitMQConfig{
				Host: "localhost",
				Port: 5672,
				Exchange: ExchangeConfig{
					Name: "image_job_events",
				},
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = -1 },
			wantErr:   true,
			errString: "invalid database port",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name: "sqlite needs only a path",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverSQLite, Path: "jobs.db"}
			},
		},
		{
			name:      "sqlite without path",
			mutate:    func(c *Config) { c.Database = DatabaseConfig{Driver: DriverSQLite} },
			wantErr:   true,
			errString: "database path is required",
		},
		{
			name:      "unsupported driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			wantErr:   true,
			errString: "unsupported database driver",
		},
		{
			name:      "upload max below min",
			mutate:    func(c *Config) { c.Upload.MaxSizeBytes = 5 },
			wantErr:   true,
			errString: "max_size_bytes",
		},
		{
			name:      "relative storage url",
			mutate:    func(c *Config) { c.Upload.StorageBaseURL = "/uploads" },
			wantErr:   true,
			errString: "storage_base_url",
		},
		{
			name:      "ratio above one",
			mutate:    func(c *Config) { c.Processing.SizeRatio = 1.5 },
			wantErr:   true,
			errString: "size_ratio",
		},
		{
			name:      "negative ratio",
			mutate:    func(c *Config) { c.Processing.SizeRatio = -0.1 },
			wantErr:   true,
			errString: "size_ratio",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.Events.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.Events.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "unknown exchange type",
			mutate:    func(c *Config) { c.Events.RabbitMQ.Exchange.Type = "queue" },
			wantErr:   true,
			errString: "invalid rabbitmq exchange type",
		},
		{
			name: "rabbitmq settings ignored when events disabled",
			mutate: func(c *Config) {
				c.Events.Enabled = false
				c.Events.RabbitMQ = RabbitMQConfig{}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		cfg.ApplyDefaults()
		require.NoError(t, cfg.ValidateAPIConfig())
	})

	t.Run("load and validate sqlite config", func(t *testing.T) {
		cfg, err := Load("testdata/sqlite_config.yaml")
		require.NoError(t, err)

		cfg.ApplyDefaults()
		require.NoError(t, cfg.ValidateAPIConfig())
		assert.Equal(t, DriverSQLite, cfg.Database.Driver)
		assert.False(t, cfg.Events.Enabled)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		cfg.ApplyDefaults()
		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		cfg.ApplyDefaults()
		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
