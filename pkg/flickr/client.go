package flickr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flickrheat/pkg/config"
	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/metrics"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/ratelimit"
	"flickrheat/pkg/retry"
)

// maxBodySize bounds how much of a REST reply is read
const maxBodySize = 16 << 20

// Client calls the provider REST API. Calls made with an access token are
// signed; a failed signed call is retried once unsigned because public
// data is usually still readable without credentials.
type Client struct {
	apiKey     string
	restURL    string
	httpClient *http.Client
	oauth      *oauth1.Client
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// Options configures a Client. Zero values get defaults.
type Options struct {
	// APIKey is the consumer key sent as api_key on every call
	APIKey     string
	RESTURL    string
	HTTPClient *http.Client
	// OAuth signs calls made with an access token; nil disables signing
	OAuth   *oauth1.Client
	Limiter ratelimit.Limiter
	Retry   *retry.Config
	Logger  logger.Logger
}

// NewClient creates a new REST client
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	c := &Client{
		apiKey:     opts.APIKey,
		restURL:    opts.RESTURL,
		httpClient: opts.HTTPClient,
		oauth:      opts.OAuth,
		limiter:    opts.Limiter,
		retry:      opts.Retry,
		logger:     log.WithField("component", "flickr"),
	}
	if c.restURL == "" {
		c.restURL = RESTURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.limiter == nil {
		c.limiter = ratelimit.Unlimited{}
	}
	if c.retry == nil {
		c.retry = &retry.Config{
			MaxAttempts: 3,
			Backoff:     retry.NewErrorTypeBackoff(500 * time.Millisecond),
			Logger:      c.logger,
		}
	}
	if c.apiKey == "" && c.oauth != nil {
		c.apiKey = c.oauth.ConsumerKey()
	}
	return c
}

// NewClientFromConfig wires a Client and, when consumer credentials are
// configured, its OAuth signer from cfg.
func NewClientFromConfig(cfg *config.Config, log logger.Logger) (*Client, *oauth1.Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	httpClient := &http.Client{Timeout: cfg.Flickr.Timeout}

	var oc *oauth1.Client
	if cfg.HasCredentials() {
		var err error
		oc, err = oauth1.NewClient(
			oauth1.Credentials{ConsumerKey: cfg.Flickr.ConsumerKey, ConsumerSecret: cfg.Flickr.ConsumerSecret},
			oauth1.WithEndpoints(oauth1.EndpointsFromBase(cfg.Flickr.OAuthBaseURL)),
			oauth1.WithHTTPClient(httpClient),
			oauth1.WithLogger(log.WithField("component", "oauth1")),
		)
		if err != nil {
			return nil, nil, err
		}
	}

	client := NewClient(Options{
		APIKey:     cfg.Flickr.ConsumerKey,
		RESTURL:    cfg.Flickr.RESTURL,
		HTTPClient: httpClient,
		OAuth:      oc,
		Limiter:    ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Retry: &retry.Config{
			MaxAttempts: cfg.RateLimit.MaxRetries + 1,
			Backoff:     retry.NewErrorTypeBackoff(cfg.RateLimit.RetryDelay),
			Logger:      log,
		},
		Logger: log,
	})
	return client, oc, nil
}

// CanSign reports whether calls with an access token will be signed
func (c *Client) CanSign() bool {
	return c.oauth != nil
}

// Call invokes method and decodes the response into out. out must embed
// the status envelope or tolerate extra fields.
func (c *Client) Call(ctx context.Context, method string, params url.Values, token *oauth1.AccessToken, out interface{}) error {
	if c.apiKey == "" {
		return apperrors.Configuration("missing consumer key")
	}
	rawURL := BuildURL(c.restURL, method, c.apiKey, params)

	if token.Valid() && c.oauth != nil {
		err := c.signedCall(ctx, method, rawURL, *token, out)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.WarnWithFields("signed request failed, retrying unauthenticated", map[string]interface{}{
			"method": method,
			"error":  err.Error(),
		})
	}

	return retry.Do(ctx, func(ctx context.Context) error {
		return c.unsignedCall(ctx, method, rawURL, out)
	}, c.retry)
}

func (c *Client) signedCall(ctx context.Context, method, rawURL string, token oauth1.AccessToken, out interface{}) (err error) {
	start := time.Now()
	defer func() { c.observe(method, true, start, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.oauth.SignedGet(ctx, rawURL, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp, rawURL, true, out)
}

func (c *Client) unsignedCall(ctx context.Context, method, rawURL string, out interface{}) (err error) {
	start := time.Now()
	defer func() { c.observe(method, false, start, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeUnknown, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": method,
		"url":    logger.RedactURL(rawURL),
	})
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   method,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return apperrors.Network(err)
	}
	defer resp.Body.Close()

	if err := checkResponseStatus(resp); err != nil {
		c.logger.WarnWithFields("unexpected HTTP status", map[string]interface{}{
			"method": method,
			"status": resp.StatusCode,
		})
		return err
	}
	return c.decode(resp, rawURL, false, out)
}

// checkResponseStatus maps a non-2xx reply to a typed error
func checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	return apperrors.Newf(apperrors.FromStatus(resp.StatusCode), "unexpected status code: %d", resp.StatusCode).
		WithCode(resp.StatusCode)
}

func (c *Client) decode(resp *http.Response, rawURL string, signed bool, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return apperrors.Network(fmt.Errorf("failed to read response body: %w", err))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.parseError(rawURL, resp.StatusCode, body, err)
	}
	if env.failed() {
		msg := env.Message
		if msg == "" {
			msg = "request failed with stat=" + strconv.Quote(env.Stat)
		}
		if signed {
			return apperrors.SignatureRequest(msg, 0, nil)
		}
		return apperrors.Newf(apperrors.ErrorTypeUnknown, "flickr API error %d: %s", env.Code, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.parseError(rawURL, resp.StatusCode, body, err)
	}
	return nil
}

func (c *Client) parseError(rawURL string, status int, body []byte, err error) error {
	bodyPreview := string(body)
	if len(bodyPreview) > 200 {
		bodyPreview = bodyPreview[:200] + "..."
	}
	c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
		"url":          logger.RedactURL(rawURL),
		"status":       status,
		"error":        err.Error(),
		"body_preview": bodyPreview,
	})
	return apperrors.Parsing(fmt.Sprintf("failed to parse JSON: %v", err), err)
}

func (c *Client) observe(method string, signed bool, start time.Time, err error) {
	metrics.UpstreamRequestsTotal.WithLabelValues(method, strconv.FormatBool(signed), metrics.Status(err)).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// FindByUsername returns the NSID for a screen name
func (c *Client) FindByUsername(ctx context.Context, username string, token *oauth1.AccessToken) (string, error) {
	var resp findByUsernameResponse
	if err := c.Call(ctx, MethodFindByUsername, url.Values{"username": {username}}, token, &resp); err != nil {
		return "", err
	}
	nsid := resp.User.NSID
	if nsid == "" {
		nsid = resp.User.ID
	}
	if nsid == "" {
		return "", apperrors.Parsing("findByUsername response has no user id", nil)
	}
	return nsid, nil
}

// LookupUser returns the NSID owning a profile or photo URL
func (c *Client) LookupUser(ctx context.Context, profileURL string, token *oauth1.AccessToken) (string, error) {
	if !strings.HasPrefix(strings.ToLower(profileURL), "http") {
		profileURL = "https://" + profileURL
	}
	var resp lookupUserResponse
	if err := c.Call(ctx, MethodLookupUser, url.Values{"url": {profileURL}}, token, &resp); err != nil {
		return "", err
	}
	if resp.User.ID == "" {
		return "", apperrors.Parsing("lookupUser response has no user id", nil)
	}
	return resp.User.ID, nil
}

// GetInfo returns profile details for nsid
func (c *Client) GetInfo(ctx context.Context, nsid string, token *oauth1.AccessToken) (Person, error) {
	var resp personResponse
	if err := c.Call(ctx, MethodGetInfo, url.Values{"user_id": {nsid}}, token, &resp); err != nil {
		return Person{}, err
	}
	p := resp.toPerson()
	if p.NSID == "" {
		p.NSID = nsid
	}
	return p, nil
}

// SearchParams selects one page of a user's photos. Zero bounds are omitted.
type SearchParams struct {
	UserID        string
	Page          int
	PerPage       int
	MinUploadDate int64
	MaxUploadDate int64
	// Taken bounds use the "YYYY-MM-DD HH:MM:SS" form
	MinTakenDate string
	MaxTakenDate string
}

// Values encodes p as REST query parameters
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	v.Set("user_id", p.UserID)
	v.Set("extras", "date_upload,date_taken")
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(p.PerPage))
	}
	if p.MinUploadDate > 0 {
		v.Set("min_upload_date", strconv.FormatInt(p.MinUploadDate, 10))
	}
	if p.MaxUploadDate > 0 {
		v.Set("max_upload_date", strconv.FormatInt(p.MaxUploadDate, 10))
	}
	if p.MinTakenDate != "" {
		v.Set("min_taken_date", p.MinTakenDate)
	}
	if p.MaxTakenDate != "" {
		v.Set("max_taken_date", p.MaxTakenDate)
	}
	return v
}

// SearchPhotos returns one page of photos
func (c *Client) SearchPhotos(ctx context.Context, params SearchParams, token *oauth1.AccessToken) (PhotosPage, error) {
	if params.UserID == "" {
		return PhotosPage{}, apperrors.Validation("user id is required")
	}
	if params.PerPage > MaxPerPage {
		params.PerPage = MaxPerPage
	}

	var resp photosResponse
	if err := c.Call(ctx, MethodSearchPhotos, params.Values(), token, &resp); err != nil {
		return PhotosPage{}, err
	}
	if resp.Photos == nil {
		return PhotosPage{}, apperrors.Parsing("search response has no photos object", nil)
	}
	return *resp.Photos, nil
}

// IsNotFound reports whether err is a provider "not found" style failure.
// Lookup methods report unknown users as a stat=fail message.
func IsNotFound(err error) bool {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return false
	}
	if appErr.Type == apperrors.ErrorTypeNotFound || appErr.Type == apperrors.ErrorTypeUserNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(appErr.Message), "not found")
}
