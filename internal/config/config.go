package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "GLAB"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Updater   UpdaterConfig   `yaml:"updater" envconfig:"UPDATER"`
	Imaging   ImagingConfig   `yaml:"imaging" envconfig:"IMAGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"LISTEN_HOST" default:"127.0.0.1"`
	Port            int           `yaml:"port" envconfig:"LISTEN_PORT" default:"8765"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"536870912"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// PathsConfig overrides the platform directories resolved by GetPaths.
type PathsConfig struct {
	TemplatesDir string `yaml:"templates_dir" envconfig:"TEMPLATES_DIR"`
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// DatabaseConfig contains the hosted Postgres connection settings
type DatabaseConfig struct {
	Host            string        `yaml:"host" envconfig:"DB_HOST" default:"localhost"`
	Port            int           `yaml:"port" envconfig:"DB_PORT" default:"5432"`
	User            string        `yaml:"user" envconfig:"DB_USER" default:"glab"`
	Password        string        `yaml:"password" envconfig:"DB_PASSWORD"`
	Name            string        `yaml:"name" envconfig:"DB_NAME" default:"glab_assets"`
	SSLMode         string        `yaml:"ssl_mode" envconfig:"SSL_MODE" default:"require"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" default:"5m"`
	Migrate         bool          `yaml:"migrate" envconfig:"MIGRATE" default:"false"`
	NotifyChannel   string        `yaml:"notify_channel" envconfig:"NOTIFY_CHANNEL" default:"assets_changes"`
}

// StorageConfig contains blob storage settings
type StorageConfig struct {
	Bucket          string `yaml:"bucket" envconfig:"BUCKET" default:"resolve-assets"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	Endpoint        string `yaml:"endpoint" envconfig:"ENDPOINT"`
	PublicBaseURL   string `yaml:"public_base_url" envconfig:"PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

// LicenseConfig contains activation settings
type LicenseConfig struct {
	AdminPasscode  string  `yaml:"admin_passcode" envconfig:"ADMIN_PASSCODE" default:"resolveadmin"`
	AppID          string  `yaml:"app_id" envconfig:"APP_ID" default:"glab-assets"`
	AttemptsPerMin float64 `yaml:"attempts_per_min" envconfig:"ATTEMPTS_PER_MIN" default:"10"`
}

// UpdaterConfig contains auto-update settings
type UpdaterConfig struct {
	Enabled       bool          `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RepoURL       string        `yaml:"repo_url" envconfig:"REPO_URL" default:"https://github.com/glab-studio/glab-assets"`
	CheckInterval time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" default:"6h"`
}

// ImagingConfig contains thumbnail recompression settings
type ImagingConfig struct {
	MaxBytes  int `yaml:"max_bytes" envconfig:"MAX_BYTES" default:"512000"`
	MaxWidth  int `yaml:"max_width" envconfig:"MAX_WIDTH" default:"1920"`
	MaxHeight int `yaml:"max_height" envconfig:"MAX_HEIGHT" default:"1080"`
}

// Load loads configuration from environment variables and config file.
// Environment values win over the file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs fills values the environment did not set explicitly from the
// file. Defaults applied by envconfig count as unset.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if fileConfig.Server.Port != 0 && !envSet("SERVER_LISTEN_PORT") {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if fileConfig.Server.Host != "" && !envSet("SERVER_LISTEN_HOST") {
		envConfig.Server.Host = fileConfig.Server.Host
	}
	if fileConfig.Logging.Level != "" && !envSet("LOGGING_LEVEL") {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if fileConfig.Logging.FilePath != "" && !envSet("LOGGING_FILE_PATH") {
		envConfig.Logging.FilePath = fileConfig.Logging.FilePath
	}
	if len(fileConfig.Security.AllowedOrigins) > 0 && !envSet("SECURITY_ALLOWED_ORIGINS") {
		envConfig.Security.AllowedOrigins = fileConfig.Security.AllowedOrigins
	}
	if fileConfig.Paths.TemplatesDir != "" && !envSet("PATHS_TEMPLATES_DIR") {
		envConfig.Paths.TemplatesDir = fileConfig.Paths.TemplatesDir
	}
	if fileConfig.Paths.DataDir != "" && !envSet("PATHS_DATA_DIR") {
		envConfig.Paths.DataDir = fileConfig.Paths.DataDir
	}
	if fileConfig.Database.Host != "" && !envSet("DATABASE_DB_HOST") {
		envConfig.Database.Host = fileConfig.Database.Host
	}
	if fileConfig.Database.Port != 0 && !envSet("DATABASE_DB_PORT") {
		envConfig.Database.Port = fileConfig.Database.Port
	}
	if fileConfig.Database.User != "" && !envSet("DATABASE_DB_USER") {
		envConfig.Database.User = fileConfig.Database.User
	}
	if fileConfig.Database.Password != "" && !envSet("DATABASE_DB_PASSWORD") {
		envConfig.Database.Password = fileConfig.Database.Password
	}
	if fileConfig.Database.Name != "" && !envSet("DATABASE_DB_NAME") {
		envConfig.Database.Name = fileConfig.Database.Name
	}
	if fileConfig.Database.SSLMode != "" && !envSet("DATABASE_SSL_MODE") {
		envConfig.Database.SSLMode = fileConfig.Database.SSLMode
	}
	if fileConfig.Storage.Bucket != "" && !envSet("STORAGE_BUCKET") {
		envConfig.Storage.Bucket = fileConfig.Storage.Bucket
	}
	if fileConfig.Storage.CredentialsFile != "" && !envSet("STORAGE_CREDENTIALS_FILE") {
		envConfig.Storage.CredentialsFile = fileConfig.Storage.CredentialsFile
	}
	if fileConfig.License.AdminPasscode != "" && !envSet("LICENSE_ADMIN_PASSCODE") {
		envConfig.License.AdminPasscode = fileConfig.License.AdminPasscode
	}
	if fileConfig.Updater.RepoURL != "" && !envSet("UPDATER_REPO_URL") {
		envConfig.Updater.RepoURL = fileConfig.Updater.RepoURL
	}

	return envConfig
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + name)
	return ok
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket must be specified")
	}

	if c.License.AdminPasscode == "" {
		return fmt.Errorf("admin passcode must not be empty")
	}

	if c.Imaging.MaxBytes <= 0 || c.Imaging.MaxWidth <= 0 || c.Imaging.MaxHeight <= 0 {
		return fmt.Errorf("imaging limits must be positive")
	}

	// JSON is the only supported log format
	c.Logging.Format = "json"

	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "console" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file, or "" when none exists.
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8765,
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  512 << 20,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "glab",
			Name:            "glab_assets",
			SSLMode:         "require",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			NotifyChannel:   "assets_changes",
		},
		Storage: StorageConfig{
			Bucket:        "resolve-assets",
			PublicBaseURL: "https://storage.googleapis.com",
		},
		License: LicenseConfig{
			AdminPasscode:  "resolveadmin",
			AppID:          "glab-assets",
			AttemptsPerMin: 10,
		},
		Updater: UpdaterConfig{
			Enabled:       true,
			RepoURL:       "https://github.com/glab-studio/glab-assets",
			CheckInterval: 6 * time.Hour,
		},
		Imaging: ImagingConfig{
			MaxBytes:  500 * 1024,
			MaxWidth:  1920,
			MaxHeight: 1080,
		},
	}
}
