package oauth1

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
)

// Default provider endpoints
const (
	DefaultBaseURL = "https://www.flickr.com/services/oauth"

	// Perms is the permission scope requested at the authorize step
	Perms = "read"
)

// Credentials identify the calling application
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
}

// Validate fails with a configuration error when either half is missing
func (c Credentials) Validate() error {
	switch {
	case c.ConsumerKey == "" && c.ConsumerSecret == "":
		return apperrors.Configuration("missing consumer key and consumer secret")
	case c.ConsumerKey == "":
		return apperrors.Configuration("missing consumer key")
	case c.ConsumerSecret == "":
		return apperrors.Configuration("missing consumer secret")
	}
	return nil
}

// Endpoints are the three handshake URLs
type Endpoints struct {
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
}

// EndpointsFromBase derives the handshake URLs from a common prefix
func EndpointsFromBase(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	return Endpoints{
		RequestTokenURL: base + "/request_token",
		AuthorizeURL:    base + "/authorize",
		AccessTokenURL:  base + "/access_token",
	}
}

// RequestToken is the temporary credential issued in the first leg. Its
// secret is valid for exactly one access-token exchange.
type RequestToken struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// AccessToken is the long-lived per-user credential. The caller owns it
// and supplies it on every signed call.
type AccessToken struct {
	Token    string `json:"token"`
	Secret   string `json:"secret"`
	UserID   string `json:"user_nsid,omitempty"`
	Username string `json:"username,omitempty"`
}

// Valid reports whether both token halves are present
func (t *AccessToken) Valid() bool {
	return t != nil && t.Token != "" && t.Secret != ""
}

// Client performs the three-legged handshake and signs API requests
type Client struct {
	creds      Credentials
	endpoints  Endpoints
	httpClient *http.Client
	signer     Signer
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoints overrides the handshake URLs
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

// WithSigner replaces the nonce, clock and MAC source
func WithSigner(s Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a Client for creds. Missing credentials fail fast.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		creds:      creds,
		endpoints:  EndpointsFromBase(DefaultBaseURL),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     NewHMACSigner(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.GetLogger()
	}
	return c, nil
}

// ConsumerKey returns the application key, which unsigned calls send as api_key
func (c *Client) ConsumerKey() string {
	return c.creds.ConsumerKey
}

func (c *Client) baseParams() map[string]string {
	return map[string]string{
		"oauth_consumer_key":     c.creds.ConsumerKey,
		"oauth_nonce":            c.signer.Nonce(),
		"oauth_signature_method": SignatureMethod,
		"oauth_timestamp":        c.signer.Timestamp(),
		"oauth_version":          Version,
	}
}

// GetRequestToken performs the first leg. The request is signed with the
// consumer secret only.
func (c *Client) GetRequestToken(ctx context.Context, callbackURL string) (RequestToken, error) {
	params := c.baseParams()
	params["oauth_callback"] = callbackURL

	values, err := c.postForm(ctx, c.endpoints.RequestTokenURL, params, "")
	if err != nil {
		return RequestToken{}, apperrors.Handshake("failed to get request token", err)
	}

	rt := RequestToken{Token: values["oauth_token"], Secret: values["oauth_token_secret"]}
	if rt.Token == "" || rt.Secret == "" {
		return RequestToken{}, apperrors.Handshake("invalid request token response", nil)
	}

	c.logger.DebugWithFields("obtained request token", map[string]interface{}{
		"callback_confirmed": values["oauth_callback_confirmed"],
	})
	return rt, nil
}

// AuthorizeURL returns the page the user must visit to approve the token
func (c *Client) AuthorizeURL(requestToken string) string {
	q := url.Values{}
	q.Set("oauth_token", requestToken)
	q.Set("perms", Perms)
	return c.endpoints.AuthorizeURL + "?" + q.Encode()
}

// GetAccessToken exchanges an authorized request token and its verifier.
// The request token must not be reused afterwards, whatever the outcome.
func (c *Client) GetAccessToken(ctx context.Context, rt RequestToken, verifier string) (AccessToken, error) {
	if rt.Token == "" || rt.Secret == "" || verifier == "" {
		return AccessToken{}, apperrors.Handshake("request token, secret and verifier are required", nil)
	}

	params := c.baseParams()
	params["oauth_token"] = rt.Token
	params["oauth_verifier"] = verifier

	values, err := c.postForm(ctx, c.endpoints.AccessTokenURL, params, rt.Secret)
	if err != nil {
		return AccessToken{}, apperrors.Handshake("failed to get access token", err)
	}

	at := AccessToken{
		Token:    values["oauth_token"],
		Secret:   values["oauth_token_secret"],
		UserID:   values["user_nsid"],
		Username: values["username"],
	}
	if !at.Valid() {
		return AccessToken{}, apperrors.Handshake("invalid access token response", nil)
	}

	c.logger.InfoWithFields("obtained access token", map[string]interface{}{
		"user_nsid": at.UserID,
		"username":  at.Username,
	})
	return at, nil
}

// postForm signs and POSTs an empty form to endpoint and decodes the
// form-encoded reply.
func (c *Client) postForm(ctx context.Context, endpoint string, params map[string]string, tokenSecret string) (map[string]string, error) {
	params["oauth_signature"] = c.signer.Sign(
		BuildBaseString(http.MethodPost, endpoint, params),
		c.creds.ConsumerSecret,
		tokenSecret,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", BuildAuthHeader(params))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, apperrors.Network(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.Newf(apperrors.FromStatus(resp.StatusCode), "provider rejected handshake: %s", preview(body)).
			WithCode(resp.StatusCode)
	}
	return ParseFormResponse(string(body)), nil
}

// SignRequest sets the Authorization header on req for token. Query
// parameters already on req.URL take part in the signature.
func (c *Client) SignRequest(req *http.Request, token AccessToken) error {
	if !token.Valid() {
		return apperrors.SignatureRequest("access token and secret are required", 0, nil)
	}

	oauthParams := c.baseParams()
	oauthParams["oauth_token"] = token.Token

	all := make(map[string]string)
	for k, vs := range req.URL.Query() {
		if len(vs) > 0 {
			all[k] = vs[len(vs)-1]
		}
	}
	for k, v := range oauthParams {
		all[k] = v
	}

	baseURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	oauthParams["oauth_signature"] = c.signer.Sign(
		BuildBaseString(req.Method, baseURL, all),
		c.creds.ConsumerSecret,
		token.Secret,
	)
	req.Header.Set("Authorization", BuildAuthHeader(oauthParams))
	return nil
}

// SignedGet issues a signed GET for rawURL. A non-2xx reply is returned as
// a signature_request error carrying the status code. There is no retry:
// transport failures come back as network errors for the caller to judge.
func (c *Client) SignedGet(ctx context.Context, rawURL string, token AccessToken) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.SignatureRequest(fmt.Sprintf("invalid request URL: %v", err), 0, err)
	}
	if err := c.SignRequest(req, token); err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.SignatureRequest(
			fmt.Sprintf("signed request failed: %s", preview(body)),
			resp.StatusCode, nil)
	}
	return resp, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	redacted := logger.RedactURL(req.URL.String())
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    redacted,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      redacted,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, apperrors.Network(err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      redacted,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
