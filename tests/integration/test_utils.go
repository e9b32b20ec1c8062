package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"flickrheat/internal/server"
	"flickrheat/pkg/activity"
	"flickrheat/pkg/config"
	"flickrheat/pkg/flickr"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/snapshot"
)

const (
	aliceNSID = "10001@N01"
	bobNSID   = "20002@N02"
)

// fixedNow is the last day of the fixture year, so "this year" is 2023
var fixedNow = time.Date(2023, time.December, 31, 18, 0, 0, 0, time.UTC)

// TestHelper wires a complete stack against a MockFlickrServer
type TestHelper struct {
	t       *testing.T
	Mock    *MockFlickrServer
	Config  *config.Config
	Clock   *clockwork.FakeClock
	Logger  *logger.TestLogger
	Service *activity.Service
	OAuth   *oauth1.Client
	Store   snapshot.Store
	Server  *server.Server
	HTTP    *httptest.Server
}

// NewTestHelper starts the mock provider and builds config pointing at it.
// Call Start after adjusting Config.
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()
	mock := NewMockFlickrServer()
	t.Cleanup(mock.Close)
	seedFixtures(mock)

	cfg := config.DefaultConfig()
	cfg.Flickr.ConsumerKey = "integration-key"
	cfg.Flickr.ConsumerSecret = "integration-secret"
	cfg.Flickr.RESTURL = mock.RESTURL()
	cfg.Flickr.OAuthBaseURL = mock.OAuthBaseURL()
	cfg.Flickr.Timeout = 5 * time.Second
	cfg.Activity.PerPage = 2
	cfg.Activity.MaxPages = 0
	cfg.RateLimit.MaxRetries = 0
	cfg.RateLimit.RetryDelay = time.Millisecond
	cfg.Snapshot.Backend = "sqlite"
	cfg.Snapshot.SQLitePath = filepath.Join(t.TempDir(), "snapshots.db")
	cfg.Server.SessionSecret = "integration-session-secret-0123456789"
	cfg.Server.ShareSecret = "integration-share-secret"
	cfg.Server.ClientRPS = 0

	return &TestHelper{
		t:      t,
		Mock:   mock,
		Config: cfg,
		Clock:  clockwork.NewFakeClockAt(fixedNow),
		Logger: logger.NewTestLogger(),
	}
}

// Start builds the client, service, store and web server from Config
func (h *TestHelper) Start() *TestHelper {
	h.t.Helper()
	require.NoError(h.t, h.Config.Validate())

	client, oc, err := flickr.NewClientFromConfig(h.Config, h.Logger)
	require.NoError(h.t, err)
	h.OAuth = oc

	mode, err := activity.ParseMode(h.Config.Activity.Mode, activity.ModeUpload)
	require.NoError(h.t, err)
	h.Service = activity.NewService(client, activity.Options{
		PerPage:         h.Config.Activity.PerPage,
		MaxPages:        h.Config.Activity.MaxPages,
		DefaultMode:     mode,
		DefaultLeveling: h.Config.Activity.Leveling,
		Clock:           h.Clock,
		Logger:          h.Logger,
	})

	store, err := snapshot.Open(context.Background(), h.Config, h.Logger)
	require.NoError(h.t, err)
	h.Store = store
	if store != nil {
		h.t.Cleanup(func() { store.Close() })
	}

	deps := server.Deps{Activity: h.Service, Clock: h.Clock, Logger: h.Logger}
	if oc != nil {
		deps.OAuth = oc
	}
	if store != nil {
		deps.Store = store
	}
	h.Server, err = server.NewServer(h.Config, deps)
	require.NoError(h.t, err)

	h.HTTP = httptest.NewServer(h.Server.Handler())
	h.t.Cleanup(h.HTTP.Close)
	return h
}

// Client returns an HTTP client with a cookie jar that does not follow
// redirects, so the handshake steps can be inspected one at a time.
func (h *TestHelper) Client() *http.Client {
	h.t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// GetJSON issues a GET against the web server and decodes the body
func (h *TestHelper) GetJSON(c *http.Client, path string, out interface{}) int {
	h.t.Helper()
	resp, err := c.Get(h.HTTP.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// SignIn runs login and callback with the mock's verifier
func (h *TestHelper) SignIn(c *http.Client) {
	h.t.Helper()
	resp, err := c.Get(h.HTTP.URL + "/api/auth/login")
	require.NoError(h.t, err)
	resp.Body.Close()
	require.Equal(h.t, http.StatusFound, resp.StatusCode)

	q := url.Values{"oauth_token": {mockRequestToken}, "oauth_verifier": {mockVerifier}}
	resp, err = c.Get(h.HTTP.URL + "/api/auth/callback?" + q.Encode())
	require.NoError(h.t, err)
	resp.Body.Close()
	require.Equal(h.t, http.StatusFound, resp.StatusCode)
}

// seedFixtures registers two users. alice has six photos in 2023 spread
// over three days plus one from 2022; bob has none.
func seedFixtures(m *MockFlickrServer) {
	m.AddPerson(MockPerson{
		NSID:       aliceNSID,
		Username:   "alice",
		RealName:   "Alice Example",
		IconServer: "65535",
		IconFarm:   66,
		FirstDate:  time.Date(2015, time.May, 4, 0, 0, 0, 0, time.UTC).Unix(),
		PhotoCount: 7,
	})
	m.AddPerson(MockPerson{NSID: bobNSID, Username: "bob"})

	at := func(month time.Month, day, hour int) time.Time {
		return time.Date(2023, month, day, hour, 0, 0, 0, time.UTC)
	}
	m.AddPhotos(
		MockPhoto{ID: "1", Owner: aliceNSID, Uploaded: at(time.March, 1, 9), Taken: at(time.February, 20, 9)},
		MockPhoto{ID: "2", Owner: aliceNSID, Uploaded: at(time.March, 1, 10), Taken: at(time.February, 20, 10)},
		MockPhoto{ID: "3", Owner: aliceNSID, Uploaded: at(time.March, 1, 11), Taken: at(time.February, 21, 11)},
		MockPhoto{ID: "4", Owner: aliceNSID, Uploaded: at(time.March, 2, 8)},
		MockPhoto{ID: "5", Owner: aliceNSID, Uploaded: at(time.July, 4, 12), Taken: at(time.July, 4, 7)},
		MockPhoto{ID: "6", Owner: aliceNSID, Uploaded: at(time.July, 4, 13), Taken: at(time.July, 4, 8)},
		MockPhoto{ID: "7", Owner: aliceNSID, Uploaded: time.Date(2022, time.December, 31, 23, 0, 0, 0, time.UTC)},
	)
}

// dayByDate indexes a series
func dayByDate(days []activity.Day) map[string]activity.Day {
	out := make(map[string]activity.Day, len(days))
	for _, d := range days {
		out[d.Date] = d
	}
	return out
}
