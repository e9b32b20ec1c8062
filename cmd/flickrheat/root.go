package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"flickrheat/pkg/ui"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	accountName string
	quiet       bool
)

var rootCmd = &cobra.Command{
	Use:   "flickrheat",
	Short: "Daily photo activity heatmaps for Flickr users",
	Long: `flickrheat turns a Flickr user's photo history into a calendar heatmap,
one cell per day, shaded by how many photos were uploaded or taken.

It can run as a command-line tool or as a small web service with
Flickr sign-in, shareable snapshots and scheduled refreshes.

Signing in ('flickrheat auth login') lets the heatmap include the
private photos your account can see.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.Output = io.Discard
			return
		}
		// keep stdout clean for machine-readable output
		if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
			ui.Output = os.Stderr
		}
		switch cmd.Name() {
		case "version", "help", "serve":
		default:
			ui.PrintBanner()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.config/flickrheat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "", "stored account to sign requests with")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress banner and status output")

	rootCmd.SetVersionTemplate(`flickrheat {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
