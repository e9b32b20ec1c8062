package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "flickrheat/pkg/errors"
)

const (
	// DefaultRESTURL is the provider's single REST endpoint
	DefaultRESTURL = "https://www.flickr.com/services/rest/"

	// DefaultOAuthBaseURL is the prefix of the provider's handshake endpoints
	DefaultOAuthBaseURL = "https://www.flickr.com/services/oauth"

	// CallbackPath is appended to the server base URL to form the OAuth callback
	CallbackPath = "/api/auth/callback"
)

// Config holds all configuration options for flickrheat
type Config struct {
	Flickr    FlickrConfig    `yaml:"flickr" json:"flickr"`
	Activity  ActivityConfig  `yaml:"activity" json:"activity"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" json:"snapshot"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Refresh   RefreshConfig   `yaml:"refresh" json:"refresh"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// FlickrConfig holds the consumer credentials and provider endpoints
type FlickrConfig struct {
	ConsumerKey    string        `yaml:"consumer_key" json:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret" json:"consumer_secret"`
	CallbackURL    string        `yaml:"callback_url" json:"callback_url"`
	RESTURL        string        `yaml:"rest_url" json:"rest_url"`
	OAuthBaseURL   string        `yaml:"oauth_base_url" json:"oauth_base_url"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

// ActivityConfig holds pagination and aggregation defaults
type ActivityConfig struct {
	PerPage  int    `yaml:"per_page" json:"per_page"`
	MaxPages int    `yaml:"max_pages" json:"max_pages"`
	Leveling string `yaml:"leveling" json:"leveling"`
	Mode     string `yaml:"mode" json:"mode"`
}

// RateLimitConfig holds upstream pacing and retry settings
type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// SnapshotConfig selects and configures the snapshot store backend
type SnapshotConfig struct {
	Backend        string        `yaml:"backend" json:"backend"`
	URL            string        `yaml:"url" json:"url"`
	SQLitePath     string        `yaml:"sqlite_path" json:"sqlite_path"`
	// Dir is the file backend's directory; empty uses the user cache directory
	Dir            string        `yaml:"dir" json:"dir"`
	RedisURL       string        `yaml:"redis_url" json:"redis_url"`
	DynamoTable    string        `yaml:"dynamo_table" json:"dynamo_table"`
	DynamoEndpoint string        `yaml:"dynamo_endpoint" json:"dynamo_endpoint"`
	DynamoRegion   string        `yaml:"dynamo_region" json:"dynamo_region"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

// ServerConfig holds web layer settings
type ServerConfig struct {
	Addr          string `yaml:"addr" json:"addr"`
	BaseURL       string `yaml:"base_url" json:"base_url"`
	SessionSecret string `yaml:"session_secret" json:"session_secret"`
	ShareSecret   string `yaml:"share_secret" json:"share_secret"`
	CookieSecure  bool   `yaml:"cookie_secure" json:"cookie_secure"`
	AllowedOrigin string `yaml:"allowed_origin" json:"allowed_origin"`
	// ClientRPS limits API requests per client IP; 0 disables the limit
	ClientRPS   float64 `yaml:"client_rps" json:"client_rps"`
	ClientBurst int     `yaml:"client_burst" json:"client_burst"`
}

// RefreshConfig holds the scheduled snapshot refresh settings
type RefreshConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Schedule  string   `yaml:"schedule" json:"schedule"`
	Usernames []string `yaml:"usernames" json:"usernames"`
	Workers   int      `yaml:"workers" json:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Flickr: FlickrConfig{
			RESTURL:      DefaultRESTURL,
			OAuthBaseURL: DefaultOAuthBaseURL,
			Timeout:      30 * time.Second,
		},
		Activity: ActivityConfig{
			PerPage:  500,
			MaxPages: 10,
			Leveling: "linear",
			Mode:     "upload",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			Burst:             1,
			MaxRetries:        3,
			RetryDelay:        500 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			Backend:      "none",
			SQLitePath:   "flickrheat.db",
			DynamoRegion: "us-east-1",
			Timeout:      10 * time.Second,
		},
		Server: ServerConfig{
			Addr:        ":3000",
			BaseURL:     "http://localhost:3000",
			ClientRPS:   5,
			ClientBurst: 20,
		},
		Refresh: RefreshConfig{
			Enabled:  false,
			Schedule: "@daily",
			Workers:  2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Flickr credentials; the bare names are what the original deployment used
	if v := firstEnv("FLICKRHEAT_CONSUMER_KEY", "FLICKR_API_KEY"); v != "" {
		c.Flickr.ConsumerKey = v
	}
	if v := firstEnv("FLICKRHEAT_CONSUMER_SECRET", "FLICKR_API_SECRET"); v != "" {
		c.Flickr.ConsumerSecret = v
	}
	if v := os.Getenv("FLICKRHEAT_CALLBACK_URL"); v != "" {
		c.Flickr.CallbackURL = v
	}
	if v := firstEnv("FLICKRHEAT_BASE_URL", "BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}

	// Activity
	if v := os.Getenv("FLICKRHEAT_MAX_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FLICKRHEAT_MAX_PAGES: %w", err)
		}
		c.Activity.MaxPages = n
	}
	if v := os.Getenv("FLICKRHEAT_LEVELING"); v != "" {
		c.Activity.Leveling = v
	}
	if v := os.Getenv("FLICKRHEAT_MODE"); v != "" {
		c.Activity.Mode = v
	}

	// Rate limiting
	if v := os.Getenv("FLICKRHEAT_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid FLICKRHEAT_REQUESTS_PER_SECOND: %w", err)
		}
		c.RateLimit.RequestsPerSecond = f
	}

	// Snapshot store
	if v := os.Getenv("FLICKRHEAT_SNAPSHOT_BACKEND"); v != "" {
		c.Snapshot.Backend = v
	}
	if v := os.Getenv("FLICKRHEAT_SNAPSHOT_URL"); v != "" {
		c.Snapshot.URL = v
	}
	if v := os.Getenv("FLICKRHEAT_SQLITE_PATH"); v != "" {
		c.Snapshot.SQLitePath = v
	}
	if v := os.Getenv("FLICKRHEAT_SNAPSHOT_DIR"); v != "" {
		c.Snapshot.Dir = v
	}
	if v := os.Getenv("FLICKRHEAT_REDIS_URL"); v != "" {
		c.Snapshot.RedisURL = v
	}
	if v := os.Getenv("FLICKRHEAT_DYNAMO_TABLE"); v != "" {
		c.Snapshot.DynamoTable = v
	}
	if v := os.Getenv("FLICKRHEAT_DYNAMO_ENDPOINT"); v != "" {
		c.Snapshot.DynamoEndpoint = v
	}

	// Server
	if v := os.Getenv("FLICKRHEAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FLICKRHEAT_SESSION_SECRET"); v != "" {
		c.Server.SessionSecret = v
	}
	if v := os.Getenv("FLICKRHEAT_SHARE_SECRET"); v != "" {
		c.Server.ShareSecret = v
	}
	if v := os.Getenv("FLICKRHEAT_COOKIE_SECURE"); v != "" {
		c.Server.CookieSecure = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("FLICKRHEAT_ALLOWED_ORIGIN"); v != "" {
		c.Server.AllowedOrigin = v
	}

	// Refresh
	if v := os.Getenv("FLICKRHEAT_REFRESH_USERNAMES"); v != "" {
		c.Refresh.Usernames = splitList(v)
		c.Refresh.Enabled = true
	}
	if v := os.Getenv("FLICKRHEAT_REFRESH_SCHEDULE"); v != "" {
		c.Refresh.Schedule = v
	}

	if v := os.Getenv("FLICKRHEAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FLICKRHEAT_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".flickrheat.yaml",
		".flickrheat.yml",
		filepath.Join(home, ".config", "flickrheat", "config.yaml"),
		filepath.Join(home, ".config", "flickrheat", "config.yml"),
		filepath.Join(home, ".flickrheat.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// ResolvedCallbackURL returns the OAuth callback, derived from the server
// base URL when not set explicitly.
func (c *Config) ResolvedCallbackURL() string {
	if c.Flickr.CallbackURL != "" {
		return c.Flickr.CallbackURL
	}
	return strings.TrimRight(c.Server.BaseURL, "/") + CallbackPath
}

// HasCredentials reports whether both consumer credentials are present
func (c *Config) HasCredentials() bool {
	return c.Flickr.ConsumerKey != "" && c.Flickr.ConsumerSecret != ""
}

// RequireCredentials fails with a configuration error when the consumer
// credentials needed for signing are missing.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Flickr.ConsumerKey == "" {
		missing = append(missing, "consumer key")
	}
	if c.Flickr.ConsumerSecret == "" {
		missing = append(missing, "consumer secret")
	}
	if len(missing) > 0 {
		return apperrors.Configuration("missing Flickr " + strings.Join(missing, " and "))
	}
	return nil
}

// Validate checks if the configuration is valid. Consumer credentials are
// not required here: unauthenticated lookups work without them.
func (c *Config) Validate() error {
	var errs []error

	if c.Flickr.RESTURL == "" {
		errs = append(errs, errors.New("flickr REST URL is required"))
	}
	if c.Flickr.Timeout <= 0 {
		errs = append(errs, errors.New("flickr timeout must be positive"))
	}

	if c.Activity.PerPage <= 0 || c.Activity.PerPage > 500 {
		errs = append(errs, errors.New("per page must be between 1 and 500"))
	}
	if c.Activity.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}
	switch strings.ToLower(c.Activity.Leveling) {
	case "", "linear", "quartile", "linear-quartile", "log", "logarithmic":
	default:
		errs = append(errs, fmt.Errorf("invalid leveling: %s", c.Activity.Leveling))
	}
	switch strings.ToLower(c.Activity.Mode) {
	case "", "upload", "uploaded", "taken":
	default:
		errs = append(errs, fmt.Errorf("invalid activity mode: %s", c.Activity.Mode))
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Server.ClientRPS < 0 {
		errs = append(errs, errors.New("client rps cannot be negative"))
	}

	switch strings.ToLower(c.Snapshot.Backend) {
	case "", "none":
	case "http":
		if c.Snapshot.URL == "" {
			errs = append(errs, errors.New("snapshot URL is required for the http backend"))
		}
	case "file":
	case "sqlite":
		if c.Snapshot.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required for the sqlite backend"))
		}
	case "redis":
		if c.Snapshot.RedisURL == "" {
			errs = append(errs, errors.New("redis URL is required for the redis backend"))
		}
	case "dynamodb":
		if c.Snapshot.DynamoTable == "" {
			errs = append(errs, errors.New("dynamo table is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid snapshot backend: %s", c.Snapshot.Backend))
	}

	if c.Refresh.Enabled {
		if c.Refresh.Schedule == "" {
			errs = append(errs, errors.New("refresh schedule is required when refresh is enabled"))
		}
		if c.Refresh.Workers <= 0 {
			errs = append(errs, errors.New("refresh workers must be positive"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["consumer-key"].(string); ok && v != "" {
		c.Flickr.ConsumerKey = v
	}
	if v, ok := flags["consumer-secret"].(string); ok && v != "" {
		c.Flickr.ConsumerSecret = v
	}
	if v, ok := flags["max-pages"].(int); ok && v >= 0 {
		c.Activity.MaxPages = v
	}
	if v, ok := flags["leveling"].(string); ok && v != "" {
		c.Activity.Leveling = v
	}
	if v, ok := flags["mode"].(string); ok && v != "" {
		c.Activity.Mode = v
	}
	if v, ok := flags["snapshot-backend"].(string); ok && v != "" {
		c.Snapshot.Backend = v
	}
	if v, ok := flags["addr"].(string); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".flickrheat.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
