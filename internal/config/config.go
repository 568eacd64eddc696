// Package config provides configuration management for the Alexander assets server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/pathgen"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection settings.
// Supports both PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Disk drivers.
const (
	DriverFilesystem = "filesystem"
	DriverS3         = "s3"
	DriverGCS        = "gcs"
)

// StorageConfig holds blob storage settings.
type StorageConfig struct {
	// DefaultDisk receives new uploads.
	DefaultDisk string `mapstructure:"default_disk"`

	// TempDir holds uploads while they are hashed.
	TempDir string `mapstructure:"temp_dir"`

	// PathGenerator is one of client_filename, grouped_id, grouped_random_prefix.
	PathGenerator string `mapstructure:"path_generator"`

	// UploadFolder prefixes paths produced by the grouped generators.
	UploadFolder string `mapstructure:"upload_folder"`

	// Deduplicate reuses an existing asset for byte-identical uploads.
	Deduplicate bool `mapstructure:"deduplicate"`

	// Disks maps disk names to their settings.
	Disks map[string]DiskConfig `mapstructure:"disks"`
}

// DiskConfig holds one named disk.
type DiskConfig struct {
	Driver string `mapstructure:"driver"`

	// Filesystem
	Root string `mapstructure:"root"`

	// Object stores
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`

	// S3
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`

	// GCS
	CredentialsFile string `mapstructure:"credentials_file"`
}

// DiskNames returns the configured disk names in sorted order.
func (c StorageConfig) DiskNames() []string {
	names := make([]string, 0, len(c.Disks))
	for name := range c.Disks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CacheConfig holds asset record cache settings.
type CacheConfig struct {
	// Enabled wraps the asset repository in a read-through cache.
	Enabled bool `mapstructure:"enabled"`

	// AssetTTL is how long an asset record stays cached.
	AssetTTL time.Duration `mapstructure:"asset_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the port for a separate metrics HTTP server.
	// Zero serves metrics from the main router.
	Port int `mapstructure:"port"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// CleanupConfig holds unused-variation cleanup settings.
type CleanupConfig struct {
	// Enabled runs cleanup periodically inside the server.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often cleanup runs.
	Interval time.Duration `mapstructure:"interval"`

	// Retention is how long a variation may go unused before removal.
	Retention time.Duration `mapstructure:"retention"`

	// BatchSize is the number of variations fetched per page.
	BatchSize int `mapstructure:"batch_size"`

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool `mapstructure:"dry_run"`

	// LockWait is how long a run waits for another run's lock before skipping.
	LockWait time.Duration `mapstructure:"lock_wait"`

	// LockTTL bounds how long a run holds the cleanup lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// DeliveryConfig holds HTTP delivery settings.
type DeliveryConfig struct {
	// BufferSize is the chunk size used when streaming ranges.
	BufferSize int `mapstructure:"buffer_size"`

	// JPEGQuality is used when variations are encoded as JPEG.
	JPEGQuality int `mapstructure:"jpeg_quality"`

	// MaxDimension is the largest width or height a variation may request.
	MaxDimension int `mapstructure:"max_dimension"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with ALEXANDER_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("ALEXANDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/alexander")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", 512*1024*1024) // 512MB

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "alexander")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "alexander")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	// SQLite defaults
	v.SetDefault("database.path", "./data/assets.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("database.cache_size", -2000)
	v.SetDefault("database.synchronous_mode", "NORMAL")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Storage defaults
	v.SetDefault("storage.default_disk", "local")
	v.SetDefault("storage.temp_dir", "./data/temp")
	v.SetDefault("storage.path_generator", pathgen.GroupedID)
	v.SetDefault("storage.upload_folder", pathgen.DefaultUploadFolder)
	v.SetDefault("storage.deduplicate", false)
	v.SetDefault("storage.disks.local.driver", DriverFilesystem)
	v.SetDefault("storage.disks.local.root", "./data/assets")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.asset_ttl", 10*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 0)
	v.SetDefault("metrics.path", "/metrics")

	// Cleanup defaults
	v.SetDefault("cleanup.enabled", false)
	v.SetDefault("cleanup.interval", 24*time.Hour)
	v.SetDefault("cleanup.retention", 15*24*time.Hour)
	v.SetDefault("cleanup.batch_size", 100)
	v.SetDefault("cleanup.dry_run", false)
	v.SetDefault("cleanup.lock_ttl", time.Hour)
	v.SetDefault("cleanup.lock_wait", 0)

	// Delivery defaults
	v.SetDefault("delivery.buffer_size", 102400)
	v.SetDefault("delivery.jpeg_quality", 90)
	v.SetDefault("delivery.max_dimension", 4096)
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate database configuration
	validDrivers := map[string]bool{"postgres": true, "sqlite": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite'")
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for postgres driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for postgres driver")
		}
	} else if c.Database.Driver == "sqlite" {
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite driver")
		}
	}

	// Validate storage configuration
	if !pathgen.Valid(c.Storage.PathGenerator) {
		return domain.NewDomainError(domain.ErrInvalidPathGenerator, "storage.path_generator", c.Storage.PathGenerator)
	}
	if len(c.Storage.Disks) == 0 {
		return fmt.Errorf("storage.disks must define at least one disk")
	}
	if _, ok := c.Storage.Disks[c.Storage.DefaultDisk]; !ok {
		return fmt.Errorf("storage.default_disk %q is not a configured disk", c.Storage.DefaultDisk)
	}
	for _, name := range c.Storage.DiskNames() {
		if err := c.Storage.Disks[name].validate(name); err != nil {
			return err
		}
	}

	// Validate cleanup configuration
	if c.Cleanup.BatchSize < 1 {
		return fmt.Errorf("cleanup.batch_size must be positive")
	}
	if c.Cleanup.Retention <= 0 {
		return fmt.Errorf("cleanup.retention must be positive")
	}

	// Validate delivery configuration
	if c.Delivery.BufferSize < 1 {
		return fmt.Errorf("delivery.buffer_size must be positive")
	}
	if c.Delivery.MaxDimension < 1 {
		return fmt.Errorf("delivery.max_dimension must be positive")
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

func (d DiskConfig) validate(name string) error {
	switch d.Driver {
	case DriverFilesystem:
		if d.Root == "" {
			return fmt.Errorf("storage.disks.%s.root is required for filesystem driver", name)
		}
	case DriverS3, DriverGCS:
		if d.Bucket == "" {
			return fmt.Errorf("storage.disks.%s.bucket is required for %s driver", name, d.Driver)
		}
	default:
		return fmt.Errorf("storage.disks.%s.driver must be one of: filesystem, s3, gcs", name)
	}
	return nil
}
