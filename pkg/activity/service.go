package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/flickr"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/metrics"
	"flickrheat/pkg/oauth1"
)

// Provider is the subset of the REST client the service needs
type Provider interface {
	FindByUsername(ctx context.Context, username string, token *oauth1.AccessToken) (string, error)
	LookupUser(ctx context.Context, profileURL string, token *oauth1.AccessToken) (string, error)
	GetInfo(ctx context.Context, nsid string, token *oauth1.AccessToken) (flickr.Person, error)
	SearchPhotos(ctx context.Context, params flickr.SearchParams, token *oauth1.AccessToken) (flickr.PhotosPage, error)
}

// Defaults for Options
const (
	DefaultPerPage  = flickr.MaxPerPage
	DefaultMaxPages = 10
)

// Options configures a Service
type Options struct {
	PerPage int
	// MaxPages caps a listing; 0 means no cap
	MaxPages int
	// DefaultMode applies when a Request leaves Mode empty
	DefaultMode Mode
	// DefaultLeveling applies when a Request leaves Leveling empty
	DefaultLeveling string
	Clock           clockwork.Clock
	Logger          logger.Logger
}

// Service resolves users, lists their photos and builds heatmaps. It keeps
// no per-user state; access tokens are passed into every call.
type Service struct {
	provider        Provider
	perPage         int
	maxPages        int
	defaultMode     Mode
	defaultLeveling string
	clock           clockwork.Clock
	logger          logger.Logger
}

// NewService creates a Service backed by provider
func NewService(provider Provider, opts Options) *Service {
	s := &Service{
		provider:        provider,
		perPage:         opts.PerPage,
		maxPages:        opts.MaxPages,
		defaultMode:     opts.DefaultMode,
		defaultLeveling: opts.DefaultLeveling,
		clock:           opts.Clock,
		logger:          opts.Logger,
	}
	if s.perPage <= 0 || s.perPage > flickr.MaxPerPage {
		s.perPage = DefaultPerPage
	}
	if s.maxPages < 0 {
		s.maxPages = DefaultMaxPages
	}
	if s.defaultMode == "" {
		s.defaultMode = ModeUpload
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	s.logger = s.logger.WithField("component", "activity")
	return s
}

// Now returns the service clock's current time
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// ResolveUser turns a screen name, path alias or profile URL into an NSID
func (s *Service) ResolveUser(ctx context.Context, identifier string, token *oauth1.AccessToken) (string, error) {
	identifier = strings.TrimPrefix(strings.TrimSpace(identifier), "@")
	if identifier == "" {
		return "", apperrors.Validation("username is required")
	}

	if flickr.IsURL(identifier) {
		nsid, err := s.provider.LookupUser(ctx, identifier, token)
		if err != nil {
			return "", s.notFound(ctx, identifier, err)
		}
		return nsid, nil
	}

	nsid, err := s.provider.FindByUsername(ctx, identifier, token)
	if err == nil {
		return nsid, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	s.logger.DebugWithFields("username lookup failed, trying profile URL", map[string]interface{}{
		"identifier": identifier,
		"error":      err.Error(),
	})
	nsid, err = s.provider.LookupUser(ctx, flickr.ProfileURL(identifier), token)
	if err != nil {
		return "", s.notFound(ctx, identifier, err)
	}
	return nsid, nil
}

func (s *Service) notFound(ctx context.Context, identifier string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Configuration problems are not the user's fault
	if apperrors.IsType(err, apperrors.ErrorTypeConfiguration) {
		return err
	}
	return apperrors.UserNotFound(identifier, err)
}

// Profile returns display details for nsid
func (s *Service) Profile(ctx context.Context, nsid string, token *oauth1.AccessToken) (Profile, error) {
	p, err := s.provider.GetInfo(ctx, nsid, token)
	if err != nil {
		return Profile{}, err
	}

	earliest := ""
	switch {
	case p.FirstDate > 0:
		earliest = time.Unix(p.FirstDate, 0).UTC().Format(DateLayout)
	case len(p.FirstDateTaken) >= len(DateLayout):
		earliest = p.FirstDateTaken[:len(DateLayout)]
	}

	return Profile{
		UserID:       nsid,
		Username:     p.Username,
		RealName:     p.RealName,
		Avatar:       flickr.BuddyIconURL(p),
		EarliestDate: earliest,
		PhotoCount:   p.PhotoCount,
	}, nil
}

// searchParams converts filters to a REST search
func searchParams(userID string, page, perPage int, f Filters) flickr.SearchParams {
	p := flickr.SearchParams{UserID: userID, Page: page, PerPage: perPage}
	if !f.MinUpload.IsZero() {
		p.MinUploadDate = f.MinUpload.Unix()
	}
	if !f.MaxUpload.IsZero() {
		p.MaxUploadDate = f.MaxUpload.Unix()
	}
	if !f.MinTaken.IsZero() {
		p.MinTakenDate = f.MinTaken.UTC().Format(TakenLayout)
	}
	if !f.MaxTaken.IsZero() {
		p.MaxTakenDate = f.MaxTaken.UTC().Format(TakenLayout)
	}
	return p
}

// FetchPage fetches a single page of userID's photos
func (s *Service) FetchPage(ctx context.Context, userID string, page, perPage int, f Filters, token *oauth1.AccessToken) (Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = s.perPage
	}

	resp, err := s.provider.SearchPhotos(ctx, searchParams(userID, page, perPage, f), token)
	if err != nil {
		return Page{}, err
	}
	metrics.PagesFetchedTotal.Inc()

	photos := make([]PhotoRecord, 0, len(resp.Photo))
	for _, p := range resp.Photo {
		photos = append(photos, PhotoRecord{
			ID:              p.ID,
			OwnerID:         p.Owner,
			UploadTimestamp: int64(p.DateUpload),
			TakenTimestamp:  p.DateTaken,
		})
	}
	return Page{
		Photos:     photos,
		PageNumber: page,
		TotalPages: int(resp.Pages),
		Total:      int(resp.Total),
	}, nil
}

// FetchPhotos lists every page of userID's photos matching f, one page at
// a time. When the page cap is reached the set is returned with Partial
// set rather than as an error.
func (s *Service) FetchPhotos(ctx context.Context, userID string, f Filters, token *oauth1.AccessToken, progress ProgressFunc) (PhotoSet, error) {
	var set PhotoSet
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		p, err := s.FetchPage(ctx, userID, page, s.perPage, f, token)
		if err != nil {
			return PhotoSet{}, fmt.Errorf("fetch page %d: %w", page, err)
		}

		for _, photo := range p.Photos {
			if _, dup := seen[photo.ID]; dup {
				continue
			}
			seen[photo.ID] = struct{}{}
			set.Photos = append(set.Photos, photo)
		}
		set.PagesFetched = page
		set.TotalPages = p.TotalPages

		logger.LogPageProgress(s.logger, userID, page, p.TotalPages, len(set.Photos))
		if progress != nil {
			progress(page, p.TotalPages, len(set.Photos))
		}

		if page >= p.TotalPages || len(p.Photos) == 0 {
			break
		}
		if s.maxPages > 0 && page >= s.maxPages {
			set.Partial = true
			metrics.PartialResultsTotal.Inc()
			s.logger.WarnWithFields("page cap reached, returning partial listing", map[string]interface{}{
				"user_id":     userID,
				"max_pages":   s.maxPages,
				"total_pages": p.TotalPages,
				"fetched":     len(set.Photos),
			})
			break
		}
	}
	return set, nil
}

// MonthlyCounts returns the number of photos in each month of year. The
// twelve queries run concurrently and read only the reported total.
func (s *Service) MonthlyCounts(ctx context.Context, userID string, year int, mode Mode, token *oauth1.AccessToken) ([12]int, error) {
	var counts [12]int
	if userID == "" {
		return counts, apperrors.Validation("user id is required")
	}
	if mode == "" {
		mode = s.defaultMode
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 12; i++ {
		i := i
		g.Go(func() error {
			start, end := MonthBounds(year, time.Month(i+1))
			var f Filters
			if mode == ModeTaken {
				f = Filters{MinTaken: start, MaxTaken: end}
			} else {
				f = Filters{MinUpload: start, MaxUpload: end}
			}

			p, err := s.FetchPage(gctx, userID, 1, 1, f, token)
			if err != nil {
				return fmt.Errorf("month %d: %w", i+1, err)
			}
			counts[i] = p.Total
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return [12]int{}, err
	}
	return counts, nil
}

// Heatmap resolves the user, lists the year's photos and returns the
// complete leveled series. On error no series is returned.
func (s *Service) Heatmap(ctx context.Context, req Request, token *oauth1.AccessToken, progress ProgressFunc) (Heatmap, error) {
	mode := req.Mode
	if mode == "" {
		mode = s.defaultMode
	}
	levelingName := req.Leveling
	if levelingName == "" {
		levelingName = s.defaultLeveling
	}
	lv, err := ParseLeveling(levelingName)
	if err != nil {
		return Heatmap{}, err
	}

	now := s.clock.Now()
	year := req.Year
	if year == 0 {
		year = now.UTC().Year()
	}
	window, err := YearWindow(year, now)
	if err != nil {
		return Heatmap{}, err
	}

	userID := req.UserID
	if userID == "" {
		userID, err = s.ResolveUser(ctx, req.Identifier, token)
		if err != nil {
			return Heatmap{}, err
		}
	}

	set, err := s.FetchPhotos(ctx, userID, FiltersFor(mode, window), token, progress)
	if err != nil {
		return Heatmap{}, err
	}

	days := FillWindow(Aggregate(set.Photos, mode, lv), window)
	s.logger.InfoWithFields("heatmap built", map[string]interface{}{
		"user_id":  userID,
		"year":     year,
		"mode":     string(mode),
		"leveling": lv.Name(),
		"photos":   len(set.Photos),
		"partial":  set.Partial,
	})

	return Heatmap{
		UserID:      userID,
		Year:        year,
		Mode:        mode,
		Leveling:    lv.Name(),
		Days:        days,
		Stats:       Summarize(days),
		TotalPhotos: len(set.Photos),
		Partial:     set.Partial,
	}, nil
}
