package server

import (
	"context"
	"crypto/rand"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"flickrheat/pkg/activity"
	"flickrheat/pkg/config"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/ratelimit"
	"flickrheat/pkg/snapshot"
)

const (
	sessionMaxAge = 30 * 24 * time.Hour
	requestMaxAge = time.Hour
	oauthTimeout  = 10 * time.Second

	// sharedHeatmapTimeout bounds a /api/photos computation once it no
	// longer follows any single request
	sharedHeatmapTimeout = 5 * time.Minute
)

// ActivityService is the part of *activity.Service the handlers use
type ActivityService interface {
	ResolveUser(ctx context.Context, identifier string, token *oauth1.AccessToken) (string, error)
	Profile(ctx context.Context, nsid string, token *oauth1.AccessToken) (activity.Profile, error)
	Heatmap(ctx context.Context, req activity.Request, token *oauth1.AccessToken, progress activity.ProgressFunc) (activity.Heatmap, error)
	MonthlyCounts(ctx context.Context, userID string, year int, mode activity.Mode, token *oauth1.AccessToken) ([12]int, error)
}

// Handshaker runs the three-legged OAuth flow; *oauth1.Client satisfies it
type Handshaker interface {
	GetRequestToken(ctx context.Context, callbackURL string) (oauth1.RequestToken, error)
	AuthorizeURL(requestToken string) string
	GetAccessToken(ctx context.Context, rt oauth1.RequestToken, verifier string) (oauth1.AccessToken, error)
}

// Deps are the collaborators of a Server. OAuth and Store may be nil, in
// which case login and snapshot routes answer with a configuration error.
type Deps struct {
	Activity ActivityService
	OAuth    Handshaker
	Store    snapshot.Store
	Clock    clockwork.Clock
	Logger   logger.Logger
}

type Server struct {
	echo         *echo.Echo
	config       *config.Config
	activity     ActivityService
	oauth        Handshaker
	store        snapshot.Store
	sessionStore *sessions.CookieStore
	shares       *ShareSigner
	limiter      *ratelimit.KeyedLimiter
	heatmaps     singleflight.Group
	upgrader     websocket.Upgrader
	clock        clockwork.Clock
	logger       logger.Logger
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	log := deps.Logger.WithField("component", "server")

	sessionSecret, err := secretOrRandom(cfg.Server.SessionSecret)
	if err != nil {
		return nil, err
	}
	if cfg.Server.SessionSecret == "" {
		log.Warn("No session secret configured; sessions will not survive a restart")
	}
	shareSecret, err := secretOrRandom(cfg.Server.ShareSecret)
	if err != nil {
		return nil, err
	}
	if cfg.Server.ShareSecret == "" {
		log.Warn("No share secret configured; share links will not survive a restart")
	}

	sessionStore := sessions.NewCookieStore(sessionSecret)
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Server.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		activity:     deps.Activity,
		oauth:        deps.OAuth,
		store:        deps.Store,
		sessionStore: sessionStore,
		shares:       NewShareSigner(shareSecret, ShareTTL, deps.Clock),
		upgrader:     newUpgrader(cfg.Server.AllowedOrigin),
		clock:        deps.Clock,
		logger:       log,
	}
	if cfg.Server.ClientRPS > 0 {
		srv.limiter = ratelimit.NewKeyedLimiter(cfg.Server.ClientRPS, cfg.Server.ClientBurst)
	}

	srv.registerMiddleware()
	srv.registerRoutes()
	return srv, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	logger.LogComponentStart("server", map[string]interface{}{
		"addr":     s.config.Server.Addr,
		"base_url": s.config.Server.BaseURL,
		"oauth":    s.oauth != nil,
		"store":    s.store != nil,
	})
	return s.echo.Start(s.config.Server.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer logger.LogComponentStop("server", "shutdown")
	return s.echo.Shutdown(ctx)
}

func secretOrRandom(secret string) ([]byte, error) {
	if secret != "" {
		return []byte(secret), nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
