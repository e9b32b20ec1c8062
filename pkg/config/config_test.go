package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "flickrheat/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultRESTURL, cfg.Flickr.RESTURL)
	assert.Equal(t, 30*time.Second, cfg.Flickr.Timeout)
	assert.Equal(t, 500, cfg.Activity.PerPage)
	assert.Equal(t, 10, cfg.Activity.MaxPages)
	assert.Equal(t, "linear", cfg.Activity.Leveling)
	assert.Equal(t, "upload", cfg.Activity.Mode)
	assert.Equal(t, "none", cfg.Snapshot.Backend)
	assert.Equal(t, "@daily", cfg.Refresh.Schedule)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FLICKRHEAT_CONSUMER_KEY", "key-123")
	t.Setenv("FLICKRHEAT_CONSUMER_SECRET", "secret-456")
	t.Setenv("FLICKRHEAT_MAX_PAGES", "25")
	t.Setenv("FLICKRHEAT_LEVELING", "logarithmic")
	t.Setenv("FLICKRHEAT_SNAPSHOT_BACKEND", "redis")
	t.Setenv("FLICKRHEAT_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("FLICKRHEAT_REFRESH_USERNAMES", "alice, bob,,carol")
	t.Setenv("FLICKRHEAT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "key-123", cfg.Flickr.ConsumerKey)
	assert.Equal(t, "secret-456", cfg.Flickr.ConsumerSecret)
	assert.Equal(t, 25, cfg.Activity.MaxPages)
	assert.Equal(t, "logarithmic", cfg.Activity.Leveling)
	assert.Equal(t, "redis", cfg.Snapshot.Backend)
	assert.Equal(t, []string{"alice", "bob", "carol"}, cfg.Refresh.Usernames)
	assert.True(t, cfg.Refresh.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvLegacyNames(t *testing.T) {
	t.Setenv("FLICKRHEAT_CONSUMER_KEY", "")
	t.Setenv("FLICKRHEAT_CONSUMER_SECRET", "")
	t.Setenv("FLICKR_API_KEY", "legacy-key")
	t.Setenv("FLICKR_API_SECRET", "legacy-secret")
	t.Setenv("BASE_URL", "https://heat.example.com/")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "legacy-key", cfg.Flickr.ConsumerKey)
	assert.Equal(t, "legacy-secret", cfg.Flickr.ConsumerSecret)
	assert.Equal(t, "https://heat.example.com/api/auth/callback", cfg.ResolvedCallbackURL())
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("FLICKRHEAT_MAX_PAGES", "lots")

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestRequireCredentials(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.RequireCredentials()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
	assert.Contains(t, err.Error(), "consumer key and consumer secret")
	assert.False(t, cfg.HasCredentials())

	cfg.Flickr.ConsumerKey = "k"
	err = cfg.RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer secret")

	cfg.Flickr.ConsumerSecret = "s"
	assert.NoError(t, cfg.RequireCredentials())
	assert.True(t, cfg.HasCredentials())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"per page too large", func(c *Config) { c.Activity.PerPage = 501 }, "per page"},
		{"negative max pages", func(c *Config) { c.Activity.MaxPages = -1 }, "max pages"},
		{"unknown leveling", func(c *Config) { c.Activity.Leveling = "cubic" }, "invalid leveling"},
		{"unknown mode", func(c *Config) { c.Activity.Mode = "edited" }, "invalid activity mode"},
		{"http backend without url", func(c *Config) { c.Snapshot.Backend = "http" }, "snapshot URL"},
		{"dynamo without table", func(c *Config) { c.Snapshot.Backend = "dynamodb" }, "dynamo table"},
		{"unknown backend", func(c *Config) { c.Snapshot.Backend = "etcd" }, "invalid snapshot backend"},
		{"refresh without workers", func(c *Config) { c.Refresh.Enabled = true; c.Refresh.Workers = 0 }, "refresh workers"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Activity.PerPage = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, 2, len(strings.Split(err.Error(), "\n")))
}

func TestSaveAndLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Activity.MaxPages = 4
	cfg.Snapshot.Backend = "sqlite"
	cfg.Refresh.Usernames = []string{"alice"}
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 4, loaded.Activity.MaxPages)
	assert.Equal(t, "sqlite", loaded.Snapshot.Backend)
	assert.Equal(t, []string{"alice"}, loaded.Refresh.Usernames)
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("activity: [unterminated"), 0600))

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
activity:
  max_pages: 3
  mode: taken
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("FLICKRHEAT_MODE", "upload")
	t.Setenv("FLICKRHEAT_LOG_LEVEL", "")
	t.Setenv("FLICKRHEAT_MAX_PAGES", "")

	cfg, err := Load(path, map[string]interface{}{"max-pages": 7})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Activity.MaxPages)
	assert.Equal(t, "upload", cfg.Activity.Mode)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestResolvedCallbackURL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:3000/api/auth/callback", cfg.ResolvedCallbackURL())

	cfg.Flickr.CallbackURL = "oob"
	assert.Equal(t, "oob", cfg.ResolvedCallbackURL())
}
