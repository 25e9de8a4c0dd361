package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	Server    ServerConfig
	CORS      CORSConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Backup    BackupConfig
	Metrics   MetricsConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Host        string
	Port        int
}

// StorageConfig locates the data tree. The active root is read from
// PointerFile when it exists; DefaultRoot is used otherwise.
type StorageConfig struct {
	DefaultRoot string
	PointerFile string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout     int
	WriteTimeout    int
	ShutdownTimeout int
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins lists origins allowed besides loopback ones, e.g. the
	// custom scheme of a packaged shell.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	ContentTypeNosniff bool
	FrameOptions       string
	ReferrerPolicy     string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	WhitelistPaths    []string
}

// BackupConfig controls scheduled snapshots of the storage tree
type BackupConfig struct {
	Enabled bool
	// Cron is a robfig/cron expression with a seconds field, e.g. "0 0 3 * * *"
	Cron string
	// Mode is "local" or "azure"
	Mode                  string
	LocalPath             string
	AzureConnectionString string
	AzureContainer        string
	// Retain is the number of snapshots kept; 0 keeps all
	Retain int
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Addr returns the listen address
func (a *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ShutdownTimeoutDuration returns the graceful shutdown timeout as duration
func (s *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if dir := homeDir(); dir != "" {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Short env names used by the desktop shell when it spawns the backend
	if root := v.GetString("CRM_STORAGE_ROOT"); root != "" {
		cfg.Storage.DefaultRoot = root
	}
	if port := v.GetInt("CRM_PORT"); port != 0 {
		cfg.App.Port = port
	}

	return &cfg, nil
}

// homeDir returns the per-user application directory, or "" when the home
// directory cannot be determined.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".crm-local")
}

func setDefaults(v *viper.Viper) {
	base := homeDir()
	if base == "" {
		base = ".crm-local"
	}

	// App defaults
	v.SetDefault("app.name", "CRM Local")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.host", "127.0.0.1")
	v.SetDefault("app.port", 3847)

	// Storage defaults
	v.SetDefault("storage.defaultRoot", filepath.Join(base, "data"))
	v.SetDefault("storage.pointerFile", filepath.Join(base, "root.json"))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.shutdownTimeout", 10)

	// CORS defaults
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Location", "X-Request-ID"})
	v.SetDefault("cors.allowCredentials", false)
	v.SetDefault("cors.maxAge", 300)

	// Security header defaults
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.referrerPolicy", "no-referrer")

	// Rate limiting defaults (off for the local desktop backend)
	v.SetDefault("rateLimit.enabled", false)
	v.SetDefault("rateLimit.requestsPerMinute", 600)
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/metrics"})

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.cron", "0 0 3 * * *")
	v.SetDefault("backup.mode", "local")
	v.SetDefault("backup.localPath", filepath.Join(base, "backups"))
	v.SetDefault("backup.azureContainer", "crm-local-backups")
	v.SetDefault("backup.retain", 14)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
