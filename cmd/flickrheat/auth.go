package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flickrheat/pkg/auth"
	"flickrheat/pkg/ui"
)

// oobCallback asks the provider to show the verifier instead of redirecting
const oobCallback = "oob"

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Flickr access tokens",
	Long: `Manage Flickr access tokens used to sign API requests.

Tokens are stored using:
  - System keychain (when available)
  - An AES-GCM vault keyed with argon2id (FLICKRHEAT_PASSPHRASE or a
    generated passphrase file)
  - Environment variables (FLICKRHEAT_ACCESS_TOKEN, read only)

A token grants read access to your account. Never share it.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Authorize flickrheat with your Flickr account",
	Long: `Run the OAuth authorization flow and store the resulting access token.

You will be given a URL to open in your browser. After approving access,
Flickr shows a verification code which you paste back here.

The consumer key and secret must be configured first, for example with
FLICKRHEAT_CONSUMER_KEY and FLICKRHEAT_CONSUMER_SECRET.`,
	Example: `  # Store the token as the default account
  flickrheat auth login

  # Store it under a name
  flickrheat auth login work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove a stored access token",
	Args:  cobra.MaximumNArgs(1),
	Run:   runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Run:   runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the stored token still works",
	Run:   runStatus,
}

var logoutAll bool

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(statusCmd)

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored account")
}

func runLogin(cmd *cobra.Command, args []string) {
	a := mustApp(nil)
	if err := a.cfg.RequireCredentials(); err != nil {
		ui.PrintError("Cannot start authorization", err.Error())
		fmt.Fprintln(ui.Output, "\nSet your API key and secret first:")
		fmt.Fprintln(ui.Output, "  export FLICKRHEAT_CONSUMER_KEY=your_key")
		fmt.Fprintln(ui.Output, "  export FLICKRHEAT_CONSUMER_SECRET=your_secret")
		os.Exit(1)
	}

	manager := mustManager()

	name := auth.DefaultAccount
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	reader := bufio.NewReader(os.Stdin)
	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' (%s) already exists. Replace it? (y/N): ", name, existing.Username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rt, err := a.oauth.GetRequestToken(ctx, oobCallback)
	if err != nil {
		ui.PrintError("Failed to obtain request token", err.Error())
		os.Exit(1)
	}

	auth.ShowLoginGuide(os.Stdout, a.oauth.AuthorizeURL(rt.Token))
	fmt.Print("\nVerification code: ")
	code, err := readSecret(reader)
	if err != nil {
		ui.PrintError("Failed to read verification code", err.Error())
		os.Exit(1)
	}
	verifier := auth.NormalizeVerifier(code)
	if verifier == "" {
		ui.PrintError("Verification code is required")
		os.Exit(1)
	}

	tok, err := a.oauth.GetAccessToken(ctx, rt, verifier)
	if err != nil {
		ui.PrintError("Authorization failed", err.Error())
		os.Exit(1)
	}

	account := auth.AccountFromToken(name, a.cfg.Flickr.ConsumerKey, tok)
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Signed in as %s (%s)", tok.Username, tok.UserID))
	ui.PrintInfo("Stored as", name)
	if auth.IsKeyringAvailable() {
		ui.PrintInfo("Storage", "system keychain")
	} else {
		ui.PrintInfo("Storage", "encrypted file")
	}
}

func runLogout(cmd *cobra.Command, args []string) {
	manager := mustManager()

	if logoutAll {
		if err := manager.DeleteAll(); err != nil {
			ui.PrintError("Failed to remove accounts", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("All accounts removed")
		return
	}

	name := auth.DefaultAccount
	if len(args) > 0 {
		name = args[0]
	}
	if err := manager.Delete(name); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Account removed: " + name)
}

func runList(cmd *cobra.Command, args []string) {
	manager := mustManager()

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list accounts", err.Error())
		os.Exit(1)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'flickrheat auth login' to add one")
		return
	}

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Fprintf(ui.Output, "%d. %s\n", i+1, sanitized.Name)
		fmt.Fprintf(ui.Output, "   Flickr user: %s (%s)\n", sanitized.Username, sanitized.UserID)
		fmt.Fprintf(ui.Output, "   Token: %s\n", sanitized.Token)
		if !sanitized.LastModified.IsZero() {
			fmt.Fprintf(ui.Output, "   Last modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	a := mustApp(nil)
	tok := a.mustToken()
	if tok == nil {
		ui.PrintWarning("Not signed in; requests are anonymous and see public photos only")
		return
	}

	ctx, cancel := signalContext()
	defer cancel()

	profile, err := a.service.Profile(ctx, tok.UserID, tok)
	if err != nil {
		ui.PrintError("Stored token was rejected", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Signed in")
	ui.PrintInfo("Username", profile.Username)
	ui.PrintInfo("User ID", profile.UserID)
	ui.PrintInfo("Photos", fmt.Sprintf("%d", profile.PhotoCount))
}

func mustManager() *auth.Manager {
	m, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Credential storage unavailable", err.Error())
		os.Exit(1)
	}
	return m
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(ui.Output)
		if err == nil {
			return string(b), nil
		}
	}
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
