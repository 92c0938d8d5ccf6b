// Package config provides YAML-based configuration management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up next to the executable.
const DefaultFileName = "pdfextract.yaml"

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Preview    PreviewConfig    `yaml:"preview"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Handoff    HandoffConfig    `yaml:"handoff"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Advanced   AdvancedConfig   `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCors"`
	AllowOrigins string `yaml:"allowOrigins"`
	ReadTimeout  int    `yaml:"readTimeoutSeconds"`
	WriteTimeout int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `yaml:"idleTimeoutSeconds"`
	BodyLimit    string `yaml:"bodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"dataDirectory"`
	UploadsDirectory string `yaml:"uploadsDirectory"`
	// ResultsDatabase is the DuckDB file holding result sets. Empty keeps
	// results in memory.
	ResultsDatabase string `yaml:"resultsDatabase"`
}

// UploadsConfig bounds the document set of a session.
type UploadsConfig struct {
	MaxFiles       int    `yaml:"maxFiles"`
	MaxFileSizeMB  int    `yaml:"maxFileSizeMB"`
	MediaType      string `yaml:"mediaType"`
	InspectContent bool   `yaml:"inspectContent"`
}

// PreviewConfig controls how documents are acquired for display.
type PreviewConfig struct {
	Mode                string `yaml:"mode"`
	RelayURL            string `yaml:"relayUrl"`
	FallbackViewerURL   string `yaml:"fallbackViewerUrl"`
	FetchTimeoutSeconds int    `yaml:"fetchTimeoutSeconds"`
	MaxRetries          int    `yaml:"maxRetries"`
	MaxRemoteSizeMB     int    `yaml:"maxRemoteSizeMB"`
}

// ExtractionConfig selects the extraction backend.
type ExtractionConfig struct {
	Backend         string `yaml:"backend"`
	Endpoint        string `yaml:"endpoint"`
	MockDelayMillis int    `yaml:"mockDelayMillis"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
	MaxRetries      int    `yaml:"maxRetries"`
	Concurrency     int    `yaml:"concurrency"`
}

// HandoffConfig selects where submissions are handed to the results view.
type HandoffConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
	TTLMinutes    int    `yaml:"ttlMinutes"`
}

// SessionsConfig controls idle session cleanup.
type SessionsConfig struct {
	TimeoutMinutes         int `yaml:"timeoutMinutes"`
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`
	MaxSessions            int `yaml:"maxSessions"`
	ResultRetentionHours   int `yaml:"resultRetentionHours"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `yaml:"logLevel"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
	EnableCompression    bool   `yaml:"enableCompression"`
	CompressionLevel     int    `yaml:"compressionLevel"`
	DuckDBThreads        int    `yaml:"duckdbThreads"`
	DuckDBMemoryLimit    string `yaml:"duckdbMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "120M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			ResultsDatabase:  "./data/results.duckdb",
		},
		Uploads: UploadsConfig{
			MaxFiles:       10,
			MaxFileSizeMB:  10,
			MediaType:      "application/pdf",
			InspectContent: true,
		},
		Preview: PreviewConfig{
			Mode:                "fetch",
			FallbackViewerURL:   "https://docs.google.com/viewer?url={url}&embedded=true",
			FetchTimeoutSeconds: 20,
			MaxRetries:          2,
			MaxRemoteSizeMB:     50,
		},
		Extraction: ExtractionConfig{
			Backend:         "mock",
			MockDelayMillis: 2000,
			TimeoutSeconds:  120,
			MaxRetries:      3,
			Concurrency:     4,
		},
		Handoff: HandoffConfig{
			Backend:    "memory",
			RedisAddr:  "localhost:6379",
			TTLMinutes: 60,
		},
		Sessions: SessionsConfig{
			TimeoutMinutes:         30,
			CleanupIntervalMinutes: 5,
			MaxSessions:            100,
			ResultRetentionHours:   24,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			EnableCompression:    true,
			CompressionLevel:     5,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "256MB",
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there first if it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# PDF Extractor configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		if c.Storage.ResultsDatabase != "" {
			c.Storage.ResultsDatabase = filepath.Join(dataDir, "results.duckdb")
		}
	}

	// Setting a Redis address implies the Redis hand-off backend.
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Handoff.Backend = "redis"
		c.Handoff.RedisAddr = addr
	}

	if endpoint := os.Getenv("EXTRACTION_ENDPOINT"); endpoint != "" {
		c.Extraction.Backend = "http"
		c.Extraction.Endpoint = endpoint
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = strings.ToLower(level)
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{&c.Storage.DataDirectory, &c.Storage.UploadsDirectory, &c.Storage.ResultsDatabase} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// Validate checks every section and reports all problems at once.
func (c *AppConfig) Validate() error {
	var result *multierror.Error

	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Server.BodyLimit, validation.Required),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("server: %w", err))
	}

	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.DataDirectory, validation.Required),
		validation.Field(&c.Storage.UploadsDirectory, validation.Required),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("storage: %w", err))
	}

	if err := validation.ValidateStruct(&c.Uploads,
		validation.Field(&c.Uploads.MaxFiles, validation.Required, validation.Min(1)),
		validation.Field(&c.Uploads.MaxFileSizeMB, validation.Required, validation.Min(1)),
		validation.Field(&c.Uploads.MediaType, validation.Required),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("uploads: %w", err))
	}

	if err := validation.ValidateStruct(&c.Preview,
		validation.Field(&c.Preview.Mode, validation.Required, validation.In("fetch", "direct")),
		validation.Field(&c.Preview.MaxRetries, validation.Min(0)),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("preview: %w", err))
	}

	if err := validation.ValidateStruct(&c.Extraction,
		validation.Field(&c.Extraction.Backend, validation.Required, validation.In("mock", "http")),
		validation.Field(&c.Extraction.Endpoint, validation.When(c.Extraction.Backend == "http", validation.Required)),
		validation.Field(&c.Extraction.Concurrency, validation.Min(0)),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("extraction: %w", err))
	}

	if err := validation.ValidateStruct(&c.Handoff,
		validation.Field(&c.Handoff.Backend, validation.Required, validation.In("memory", "redis")),
		validation.Field(&c.Handoff.RedisAddr, validation.When(c.Handoff.Backend == "redis", validation.Required)),
		validation.Field(&c.Handoff.TTLMinutes, validation.Required, validation.Min(1)),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("handoff: %w", err))
	}

	if err := validation.ValidateStruct(&c.Advanced,
		validation.Field(&c.Advanced.LogLevel, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.Advanced.CompressionLevel, validation.Min(-1), validation.Max(9)),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("advanced: %w", err))
	}

	return result.ErrorOrNil()
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// MaxFileSize returns the per-file upload limit in bytes.
func (c *AppConfig) MaxFileSize() int64 {
	return int64(c.Uploads.MaxFileSizeMB) * 1024 * 1024
}

// SessionTimeout returns how long an idle session is kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Sessions.TimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle sessions are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// HandoffTTL returns how long a hand-off snapshot stays readable.
func (c *AppConfig) HandoffTTL() time.Duration {
	return time.Duration(c.Handoff.TTLMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDirectory, c.Storage.UploadsDirectory}
	if c.Storage.ResultsDatabase != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.ResultsDatabase))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
