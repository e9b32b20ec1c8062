package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"flickrheat/pkg/activity"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/snapshot"
	"flickrheat/pkg/ui"
	"flickrheat/pkg/ui/tui"
)

var (
	// heatmap and monthly flags
	year     int
	mode     string
	leveling string
	maxPages int
	useTUI   bool
	asJSON   bool
	save     bool

	monthlyMode string
)

var heatmapCmd = &cobra.Command{
	Use:   "heatmap <username>",
	Short: "Render a user's daily photo activity for a year",
	Long: `Render one year of a Flickr user's photo activity as a calendar grid.

The user may be given as a screen name or a profile URL. Each day is
shaded by how many photos were uploaded (or taken, with --mode taken).
The current year ends today; past years cover January 1 to December 31.`,
	Example: `  # This year's uploads
  flickrheat heatmap someuser

  # Photos taken in 2019, with logarithmic shading
  flickrheat heatmap someuser --year 2019 --mode taken --leveling log

  # Live progress while a large account is paged in
  flickrheat heatmap someuser --tui

  # Machine-readable output, also stored as the user's snapshot
  flickrheat heatmap someuser --json --save`,
	Args: cobra.ExactArgs(1),
	Run:  runHeatmap,
}

var monthlyCmd = &cobra.Command{
	Use:   "monthly <username>",
	Short: "Show per-month photo counts for a year",
	Args:  cobra.ExactArgs(1),
	Run:   runMonthly,
}

var userCmd = &cobra.Command{
	Use:   "user <username>",
	Short: "Show a user's profile summary",
	Args:  cobra.ExactArgs(1),
	Run:   runUser,
}

func init() {
	rootCmd.AddCommand(heatmapCmd)
	rootCmd.AddCommand(monthlyCmd)
	rootCmd.AddCommand(userCmd)

	heatmapCmd.Flags().IntVarP(&year, "year", "y", 0, "calendar year (default: current year)")
	heatmapCmd.Flags().StringVarP(&mode, "mode", "m", "", "bucket by 'upload' or 'taken' date")
	heatmapCmd.Flags().StringVarP(&leveling, "leveling", "l", "", "shading: 'linear' (levels 0-4) or 'log' (levels 0-7)")
	heatmapCmd.Flags().IntVar(&maxPages, "max-pages", -1, "stop after this many pages of 500 photos (0 = no cap)")
	heatmapCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with live progress")
	heatmapCmd.Flags().BoolVar(&asJSON, "json", false, "print the series as JSON")
	heatmapCmd.Flags().BoolVar(&save, "save", false, "store the result in the configured snapshot store")

	monthlyCmd.Flags().IntVarP(&year, "year", "y", 0, "calendar year (default: current year)")
	monthlyCmd.Flags().StringVarP(&monthlyMode, "mode", "m", "taken", "bucket by 'upload' or 'taken' date")
	monthlyCmd.Flags().BoolVar(&asJSON, "json", false, "print counts as JSON")

	userCmd.Flags().BoolVar(&asJSON, "json", false, "print the profile as JSON")
}

func heatmapFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if maxPages >= 0 {
		flags["max-pages"] = maxPages
	}
	if leveling != "" {
		flags["leveling"] = leveling
	}
	if mode != "" {
		flags["mode"] = mode
	}
	return flags
}

func runHeatmap(cmd *cobra.Command, args []string) {
	identifier := strings.TrimSpace(args[0])
	a := mustApp(heatmapFlags())
	tok := a.mustToken()

	m, err := activity.ParseMode(mode, "")
	if err != nil {
		ui.PrintError("Invalid mode", err.Error())
		os.Exit(1)
	}
	req := activity.Request{Identifier: identifier, Year: year, Mode: m, Leveling: leveling}

	ctx, cancel := signalContext()
	defer cancel()

	work := func(ctx context.Context, progress activity.ProgressFunc) (activity.Heatmap, error) {
		return a.service.Heatmap(ctx, req, tok, progress)
	}

	var hm activity.Heatmap
	if useTUI && !asJSON {
		hm, err = tui.NewTUI(fmt.Sprintf("%s · %s", identifier, yearLabel(year))).Run(ctx, work)
	} else {
		if !asJSON {
			ui.PrintInfo("User", identifier)
			ui.PrintInfo("Signed", fmt.Sprintf("%t", tok != nil))
		}
		tracker := ui.NewPageTracker(os.Stderr, clockwork.NewRealClock())
		hm, err = work(ctx, func(page, totalPages, fetched int) {
			logger.LogPageProgress(a.log, identifier, page, totalPages, fetched)
			if !asJSON && !quiet {
				tracker.Update(page, totalPages, fetched)
			}
		})
		if err == nil && !asJSON && !quiet {
			tracker.Finish()
		}
	}
	if errors.Is(err, tui.ErrCancelled) {
		ui.PrintWarning("Cancelled")
		os.Exit(130)
	}
	if err != nil {
		a.log.WithError(err).WithField("username", identifier).Error("Heatmap failed")
		ui.PrintError("Heatmap failed", err.Error())
		os.Exit(1)
	}

	if save {
		saveSnapshot(ctx, a, identifier, hm)
	}

	if asJSON {
		printJSON(hm)
		return
	}
	if !useTUI {
		fmt.Println(ui.RenderHeatmap(fmt.Sprintf("%s · %d · %s", identifier, hm.Year, hm.Mode.ActivityType()), hm))
	}
}

func saveSnapshot(ctx context.Context, a *app, identifier string, hm activity.Heatmap) {
	store, err := snapshot.Open(ctx, a.cfg, a.log)
	if err != nil {
		ui.PrintError("Failed to open snapshot store", err.Error())
		os.Exit(1)
	}
	if store == nil {
		ui.PrintWarning("No snapshot store configured; not saved", "set snapshot.backend")
		return
	}
	defer store.Close()

	snap := snapshot.FromHeatmap(snapshot.Key(identifier), hm, clockwork.NewRealClock().Now())
	if err := store.Put(ctx, snap); err != nil {
		ui.PrintError("Failed to save snapshot", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Snapshot saved for " + snap.Username)
}

func runMonthly(cmd *cobra.Command, args []string) {
	identifier := strings.TrimSpace(args[0])
	a := mustApp(nil)
	tok := a.mustToken()

	m, err := activity.ParseMode(monthlyMode, activity.ModeTaken)
	if err != nil {
		ui.PrintError("Invalid mode", err.Error())
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	nsid, err := a.service.ResolveUser(ctx, identifier, tok)
	if err != nil {
		ui.PrintError("Could not resolve user", err.Error())
		os.Exit(1)
	}
	y := year
	if y == 0 {
		y = a.service.Now().UTC().Year()
	}

	counts, err := a.service.MonthlyCounts(ctx, nsid, y, m, tok)
	if err != nil {
		ui.PrintError("Monthly counts failed", err.Error())
		os.Exit(1)
	}

	if asJSON {
		printJSON(map[string]interface{}{"userId": nsid, "year": y, "mode": m, "counts": counts})
		return
	}
	fmt.Println(ui.RenderMonthly(y, counts))
}

func runUser(cmd *cobra.Command, args []string) {
	identifier := strings.TrimSpace(args[0])
	a := mustApp(nil)
	tok := a.mustToken()

	ctx, cancel := signalContext()
	defer cancel()

	profile, err := lookupProfile(ctx, a, identifier, tok)
	if err != nil {
		ui.PrintError("Could not load profile", err.Error())
		os.Exit(1)
	}

	if asJSON {
		printJSON(profile)
		return
	}
	ui.PrintInfo("Username", profile.Username)
	if profile.RealName != "" {
		ui.PrintInfo("Name", profile.RealName)
	}
	ui.PrintInfo("User ID", profile.UserID)
	ui.PrintInfo("Photos", fmt.Sprintf("%d", profile.PhotoCount))
	if profile.EarliestDate != "" {
		ui.PrintInfo("First upload", profile.EarliestDate)
	}
	ui.PrintInfo("Avatar", profile.Avatar)
}

func lookupProfile(ctx context.Context, a *app, identifier string, tok *oauth1.AccessToken) (activity.Profile, error) {
	nsid, err := a.service.ResolveUser(ctx, identifier, tok)
	if err != nil {
		return activity.Profile{}, err
	}
	return a.service.Profile(ctx, nsid, tok)
}

func yearLabel(y int) string {
	if y == 0 {
		return "this year"
	}
	return fmt.Sprintf("%d", y)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		ui.PrintError("Failed to encode output", err.Error())
		os.Exit(1)
	}
}
