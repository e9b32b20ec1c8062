package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flickrheat/pkg/activity"
	"flickrheat/pkg/config"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage flickrheat configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (FLICKRHEAT_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to 'flickrheat.yaml' in the current directory unless
a different path is given with --config.`,
	Run: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	Run:   runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# flickrheat configuration
#
# Every value can also be set with an environment variable, for example
# FLICKRHEAT_CONSUMER_KEY, FLICKRHEAT_SNAPSHOT_BACKEND or FLICKRHEAT_LOG_LEVEL.

flickr:
  # API key and secret from https://www.flickr.com/services/apps/create/
  consumer_key: ""
  consumer_secret: ""
  # Defaults to server.base_url + /api/auth/callback
  callback_url: ""
  timeout: 30s

activity:
  # Photos per search page, at most 500
  per_page: 500
  # Stop a listing after this many pages; 0 means no cap
  max_pages: 10
  # linear (levels 0-4) or log (levels 0-7)
  leveling: linear
  # upload or taken
  mode: upload

rate_limit:
  # Outgoing calls per second; 0 disables pacing
  requests_per_second: 0
  burst: 1
  max_retries: 3
  retry_delay: 500ms

snapshot:
  # none, file, http, sqlite, redis or dynamodb
  backend: none
  # file: directory for one JSON file per user (default: user cache dir)
  dir: ""
  # http: base URL of a key/value service
  url: ""
  sqlite_path: flickrheat.db
  redis_url: redis://localhost:6379/0
  dynamo_table: flickrheat-snapshots
  dynamo_region: us-east-1
  # Point at DynamoDB Local for development
  dynamo_endpoint: ""
  timeout: 10s

server:
  addr: ":3000"
  base_url: http://localhost:3000
  # Random per process when empty
  session_secret: ""
  share_secret: ""
  cookie_secure: false
  # Websocket origin; empty allows same-origin only
  allowed_origin: ""
  # Per-client API budget; 0 disables it
  client_rps: 5
  client_burst: 20

refresh:
  enabled: false
  # Cron syntax, evaluated in UTC
  schedule: "@daily"
  usernames: []
  workers: 2

logging:
  # debug, info, warn or error
  level: info
  # Leave empty to log to stderr only
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configFile
	if path == "" {
		path = "flickrheat.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Configuration file already exists", path)
		os.Exit(1)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			ui.PrintError("Failed to create config directory", err.Error())
			os.Exit(1)
		}
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "1. Add your Flickr API key and secret")
	fmt.Fprintln(ui.Output, "2. Run 'flickrheat config validate'")
	fmt.Fprintln(ui.Output, "3. Run 'flickrheat auth login' to include private photos")
}

// masked returns a copy of cfg that is safe to print
func masked(cfg *config.Config) config.Config {
	out := *cfg
	out.Flickr.ConsumerSecret = logger.MaskSecret(cfg.Flickr.ConsumerSecret)
	out.Server.SessionSecret = logger.MaskSecret(cfg.Server.SessionSecret)
	out.Server.ShareSecret = logger.MaskSecret(cfg.Server.ShareSecret)
	out.Snapshot.RedisURL = redactUserinfo(cfg.Snapshot.RedisURL)
	return out
}

func redactUserinfo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	display := masked(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}
	fmt.Print(string(data))
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	var warnings []string
	if !cfg.HasCredentials() {
		warnings = append(warnings, "Flickr consumer key/secret not set; only public, unsigned calls are possible")
	}
	if cfg.Server.SessionSecret == "" {
		warnings = append(warnings, "server.session_secret is empty; sessions reset on restart")
	}
	if cfg.Server.ShareSecret == "" {
		warnings = append(warnings, "server.share_secret is empty; share links break on restart")
	}
	if cfg.Refresh.Enabled && cfg.Snapshot.Backend == "none" {
		warnings = append(warnings, "refresh is enabled but snapshot.backend is none")
	}
	if _, err := activity.ParseLeveling(cfg.Activity.Leveling); err != nil {
		warnings = append(warnings, err.Error())
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	for _, w := range warnings {
		ui.PrintWarning(w)
	}
	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Snapshot backend", cfg.Snapshot.Backend)
	ui.PrintInfo("Leveling", cfg.Activity.Leveling)
	ui.PrintInfo("Mode", cfg.Activity.Mode)
	ui.PrintInfo("Max pages", fmt.Sprintf("%d", cfg.Activity.MaxPages))
	ui.PrintInfo("Log level", cfg.Logging.Level)
}
