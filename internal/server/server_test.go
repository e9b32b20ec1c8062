package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"flickrheat/pkg/activity"
	"flickrheat/pkg/config"
	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/snapshot"
	"flickrheat/pkg/snapshot/mocks"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeActivity struct {
	mu        sync.Mutex
	tokens    []*oauth1.AccessToken
	requests  []activity.Request
	resolve   map[string]string
	heatmapFn func(ctx context.Context, progress activity.ProgressFunc) (activity.Heatmap, error)
	calls     int32
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{resolve: map[string]string{"alice": "12345@N01"}}
}

func (f *fakeActivity) ResolveUser(ctx context.Context, identifier string, token *oauth1.AccessToken) (string, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	nsid, ok := f.resolve[identifier]
	if !ok {
		return "", apperrors.UserNotFound(identifier, nil)
	}
	return nsid, nil
}

func (f *fakeActivity) Profile(ctx context.Context, nsid string, token *oauth1.AccessToken) (activity.Profile, error) {
	return activity.Profile{UserID: nsid, Username: "alice", Avatar: "https://example.com/buddy.jpg", PhotoCount: 42}, nil
}

func (f *fakeActivity) Heatmap(ctx context.Context, req activity.Request, token *oauth1.AccessToken, progress activity.ProgressFunc) (activity.Heatmap, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	if f.heatmapFn != nil {
		return f.heatmapFn(ctx, progress)
	}
	return sampleHeatmap(), nil
}

func (f *fakeActivity) MonthlyCounts(ctx context.Context, userID string, year int, mode activity.Mode, token *oauth1.AccessToken) ([12]int, error) {
	var counts [12]int
	counts[0] = 3
	counts[11] = 7
	if mode == activity.ModeUpload {
		counts[5] = 1
	}
	return counts, nil
}

func (f *fakeActivity) lastToken() *oauth1.AccessToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) == 0 {
		return nil
	}
	return f.tokens[len(f.tokens)-1]
}

func sampleHeatmap() activity.Heatmap {
	return activity.Heatmap{
		UserID:      "12345@N01",
		Year:        2024,
		Mode:        activity.ModeUpload,
		Leveling:    "linear",
		Days:        []activity.Day{{Date: "2024-01-01", Count: 2, Level: 4}, {Date: "2024-01-02", Count: 0, Level: 0}},
		TotalPhotos: 2,
	}
}

type fakeHandshaker struct {
	requestErr error
	accessErr  error
	verifiers  []string
}

func (f *fakeHandshaker) GetRequestToken(ctx context.Context, callbackURL string) (oauth1.RequestToken, error) {
	if f.requestErr != nil {
		return oauth1.RequestToken{}, f.requestErr
	}
	return oauth1.RequestToken{Token: "req-token", Secret: "req-secret"}, nil
}

func (f *fakeHandshaker) AuthorizeURL(requestToken string) string {
	return "https://www.flickr.com/services/oauth/authorize?oauth_token=" + requestToken
}

func (f *fakeHandshaker) GetAccessToken(ctx context.Context, rt oauth1.RequestToken, verifier string) (oauth1.AccessToken, error) {
	f.verifiers = append(f.verifiers, verifier)
	if f.accessErr != nil {
		return oauth1.AccessToken{}, f.accessErr
	}
	if rt.Secret != "req-secret" {
		return oauth1.AccessToken{}, apperrors.Handshake("unexpected request secret", nil)
	}
	return oauth1.AccessToken{Token: "acc-token", Secret: "acc-secret", UserID: "12345@N01", Username: "alice"}, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Flickr.ConsumerKey = "key"
	cfg.Flickr.ConsumerSecret = "secret"
	cfg.Server.SessionSecret = "session-secret-for-tests-0123456789"
	cfg.Server.ShareSecret = "share-secret-for-tests"
	cfg.Server.ClientRPS = 0
	return cfg
}

type testServer struct {
	*Server
	activity *fakeActivity
	oauth    *fakeHandshaker
	store    *mocks.MockStore
	clock    *clockwork.FakeClock
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	ts := &testServer{
		activity: newFakeActivity(),
		oauth:    &fakeHandshaker{},
		store:    &mocks.MockStore{},
		clock:    clockwork.NewFakeClockAt(testNow),
	}
	srv, err := NewServer(cfg, Deps{
		Activity: ts.activity,
		OAuth:    ts.oauth,
		Store:    ts.store,
		Clock:    ts.clock,
		Logger:   logger.NewNopLogger(),
	})
	require.NoError(t, err)
	ts.Server = srv
	return ts
}

func (ts *testServer) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// signIn runs the login and callback routes and returns the session cookie
func signIn(t *testing.T, ts *testServer) *http.Cookie {
	t.Helper()
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	reqCookie := cookieNamed(rec.Result().Cookies(), requestSessionName)
	require.NotNil(t, reqCookie)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?oauth_token=req-token&oauth_verifier=verify", nil), reqCookie)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	session := cookieNamed(rec.Result().Cookies(), sessionName)
	require.NotNil(t, session)
	return session
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestLoginRedirectsToProvider(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://www.flickr.com/services/oauth/authorize?oauth_token=req-token", rec.Header().Get("Location"))

	c := cookieNamed(rec.Result().Cookies(), requestSessionName)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, int(time.Hour.Seconds()), c.MaxAge)
}

func TestLoginWithoutCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Flickr.ConsumerSecret = ""
	ts := newTestServer(t, cfg)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "configuration", decodeBody(t, rec)["error"])
}

func TestLoginHandshakeFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.oauth.requestErr = apperrors.Handshake("request token rejected", nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "handshake", decodeBody(t, rec)["error"])
}

func TestCallbackStoresSession(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	reqCookie := cookieNamed(rec.Result().Cookies(), requestSessionName)
	require.NotNil(t, reqCookie)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?oauth_token=req-token&oauth_verifier=verify", nil), reqCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"verify"}, ts.oauth.verifiers)

	cookies := rec.Result().Cookies()
	nsid := cookieNamed(cookies, cookieUserNSID)
	require.NotNil(t, nsid)
	assert.Equal(t, "12345@N01", nsid.Value)
	assert.False(t, nsid.HttpOnly)
	assert.Equal(t, "alice", cookieNamed(cookies, cookieUsername).Value)

	session := cookieNamed(cookies, sessionName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	// request credential is single use
	cleared := cookieNamed(cookies, requestSessionName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/", nil), session)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "alice", body["username"])
}

func TestCallbackRejectsMissingParameters(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?oauth_token=req-token&oauth_verifier=verify", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	login := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	reqCookie := cookieNamed(login.Result().Cookies(), requestSessionName)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?oauth_token=req-token", nil), reqCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.oauth.verifiers)
}

func TestCallbackRejectsMismatchedToken(t *testing.T) {
	ts := newTestServer(t, nil)
	login := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	reqCookie := cookieNamed(login.Result().Cookies(), requestSessionName)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?oauth_token=other&oauth_verifier=verify", nil), reqCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.oauth.verifiers)
}

func TestCallbackExchangeFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.oauth.accessErr = apperrors.Handshake("verifier rejected", nil)
	login := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	reqCookie := cookieNamed(login.Result().Cookies(), requestSessionName)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?oauth_token=req-token&oauth_verifier=bad", nil), reqCookie)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Nil(t, cookieNamed(rec.Result().Cookies(), sessionName))
}

func TestLogoutClearsSession(t *testing.T) {
	ts := newTestServer(t, nil)
	session := signIn(t, ts)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	cookies := rec.Result().Cookies()
	cleared := cookieNamed(cookies, sessionName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
	assert.Less(t, cookieNamed(cookies, cookieUserNSID).MaxAge, 0)
}

func TestUserEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/user?username=alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "12345@N01", body["userId"])
	assert.Equal(t, float64(42), body["photoCount"])
	assert.Nil(t, ts.activity.lastToken())

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/user?username=nobody", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user_not_found", decodeBody(t, rec)["error"])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/user", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPhotosEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/photos?username=alice&year=2024&mode=taken&leveling=log", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, float64(2), body["totalPhotos"])
	assert.Len(t, body["data"], 2)

	require.Len(t, ts.activity.requests, 1)
	req := ts.activity.requests[0]
	assert.Equal(t, "alice", req.Identifier)
	assert.Equal(t, 2024, req.Year)
	assert.Equal(t, activity.ModeTaken, req.Mode)
	assert.Equal(t, "log", req.Leveling)
}

func TestPhotosUsesSessionToken(t *testing.T) {
	ts := newTestServer(t, nil)
	session := signIn(t, ts)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/photos?username=alice", nil), session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["authenticated"])

	tok := ts.activity.lastToken()
	require.NotNil(t, tok)
	assert.Equal(t, "acc-token", tok.Token)
	assert.Equal(t, "acc-secret", tok.Secret)
}

func TestPhotosValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, target := range []string{
		"/api/photos",
		"/api/photos?username=alice&year=abc",
		"/api/photos?username=alice&mode=sideways",
		"/api/photos?username=alice&leveling=cubic",
	} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "validation", decodeBody(t, rec)["error"], target)
	}
	assert.Zero(t, atomic.LoadInt32(&ts.activity.calls))
}

func TestPhotosUpstreamErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.activity.heatmapFn = func(ctx context.Context, progress activity.ProgressFunc) (activity.Heatmap, error) {
		return activity.Heatmap{}, apperrors.Parsing("malformed page", nil)
	}
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/photos?username=alice", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "parsing", body["error"])
	assert.Contains(t, body["message"], "malformed page")
}

func TestPhotosSharesConcurrentComputation(t *testing.T) {
	ts := newTestServer(t, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	ts.activity.heatmapFn = func(ctx context.Context, progress activity.ProgressFunc) (activity.Heatmap, error) {
		started <- struct{}{}
		<-release
		return sampleHeatmap(), nil
	}

	var wg sync.WaitGroup
	codes := make([]int, 3)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/photos?username=alice&year=2024", nil))
			codes[i] = rec.Code
		}(i)
	}
	<-started
	// let the other requests join the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Less(t, atomic.LoadInt32(&ts.activity.calls), int32(3))
}

func TestPhotosFollowerSurvivesLeaderDisconnect(t *testing.T) {
	ts := newTestServer(t, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	ts.activity.heatmapFn = func(ctx context.Context, progress activity.ProgressFunc) (activity.Heatmap, error) {
		started <- struct{}{}
		<-release
		if err := ctx.Err(); err != nil {
			return activity.Heatmap{}, err
		}
		return sampleHeatmap(), nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		req := httptest.NewRequest(http.MethodGet, "/api/photos?username=alice&year=2024", nil)
		ts.do(req.WithContext(leaderCtx))
	}()
	<-started

	followerDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		followerDone <- ts.do(httptest.NewRequest(http.MethodGet, "/api/photos?username=alice&year=2024", nil))
	}()
	// let the follower join the in-flight call before the leader leaves
	time.Sleep(50 * time.Millisecond)
	cancelLeader()
	<-leaderDone
	close(release)

	rec := <-followerDone
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&ts.activity.calls))
}

func TestHeatmapKeySeparatesViewers(t *testing.T) {
	req := activity.Request{Identifier: "Alice", Year: 2024, Mode: activity.ModeUpload}
	anon := heatmapKey(req, nil)
	signed := heatmapKey(req, &oauth1.AccessToken{Token: "t", UserID: "1@N01"})
	other := heatmapKey(req, &oauth1.AccessToken{Token: "u", UserID: "2@N01"})

	assert.NotEqual(t, anon, signed)
	assert.NotEqual(t, signed, other)
	assert.Equal(t, anon, heatmapKey(activity.Request{Identifier: "alice", Year: 2024, Mode: activity.ModeUpload}, nil))
}

func TestMonthlyEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/user/activity?userId=12345@N01&year=2023", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2023), body["year"])
	assert.Equal(t, "taken", body["mode"])
	counts := body["counts"].([]interface{})
	require.Len(t, counts, 12)
	assert.Equal(t, float64(3), counts[0])
	assert.Equal(t, float64(0), counts[5])
	assert.Equal(t, float64(7), counts[11])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/user/activity?userId=12345@N01&year=2023&mode=upload", nil))
	counts = decodeBody(t, rec)["counts"].([]interface{})
	assert.Equal(t, float64(1), counts[5])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/user/activity?userId=12345@N01", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/user/activity?year=2023", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShareAndSnapshot(t *testing.T) {
	ts := newTestServer(t, nil)
	days := []activity.Day{{Date: "2024-01-01", Count: 1, Level: 4}}

	var saved snapshot.Snapshot
	ts.store.On("Put", mock.Anything, mock.MatchedBy(func(s snapshot.Snapshot) bool {
		return s.Username == "alice"
	})).Run(func(args mock.Arguments) {
		saved = args.Get(1).(snapshot.Snapshot)
	}).Return(nil).Once()

	payload := `{"username":"@alice","data":[{"date":"2024-01-01","count":1,"level":4}],"year":2024,"activityType":"uploaded"}`
	req := httptest.NewRequest(http.MethodPost, "/api/share", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "alice", body["username"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	assert.Equal(t, days, saved.Data)
	assert.Equal(t, 2024, saved.Year)
	assert.Equal(t, "uploaded", saved.ActivityType)
	assert.Equal(t, testNow.UnixMilli(), saved.Timestamp)

	ts.store.On("Get", mock.Anything, "alice").Return(saved, nil).Times(3)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/snapshot?token="+token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got snapshot.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, saved, got)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/snapshot?username=alice", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// screen names are case-insensitive
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/snapshot?username=ALICE", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.store.AssertExpectations(t)
}

func TestShareValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, payload := range []string{
		`{"data":[]}`,
		`{"username":"alice"}`,
		`not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/share", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := ts.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
	ts.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestShareStoreFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.On("Put", mock.Anything, mock.Anything).Return(apperrors.Network(errors.New("connection refused")))

	req := httptest.NewRequest(http.MethodPost, "/api/share", strings.NewReader(`{"username":"alice","data":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "network", decodeBody(t, rec)["error"])
}

func TestSnapshotNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.On("Get", mock.Anything, "bob").Return(snapshot.Snapshot{}, snapshot.ErrNotFound)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/snapshot?username=bob", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Snapshot not found", decodeBody(t, rec)["error"])
}

func TestSnapshotRejectsBadToken(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/snapshot?token=garbage", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ts.store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestSnapshotRoutesWithoutStore(t *testing.T) {
	srv, err := NewServer(testConfig(), Deps{
		Activity: newFakeActivity(),
		Logger:   logger.NewNopLogger(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot?username=alice", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ClientRPS = 0.001
	cfg.Server.ClientBurst = 2
	ts := newTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/user?username=alice", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// other clients and unthrottled routes are unaffected
	req := httptest.NewRequest(http.MethodGet, "/api/user?username=alice", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, ts.do(req).Code)
	assert.Equal(t, http.StatusOK, ts.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
}

func TestShareSignerExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	signer := NewShareSigner([]byte("secret"), time.Hour, clock)

	token, err := signer.Issue("alice")
	require.NoError(t, err)

	username, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	clock.Advance(2 * time.Hour)
	_, err = signer.Verify(token)
	assert.Error(t, err)
}

func TestShareSignerRejectsForeignKey(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	token, err := NewShareSigner([]byte("one"), time.Hour, clock).Issue("alice")
	require.NoError(t, err)

	_, err = NewShareSigner([]byte("two"), time.Hour, clock).Verify(token)
	assert.Error(t, err)
}

func TestUpgraderOrigin(t *testing.T) {
	u := newUpgrader("https://heat.example.com/")
	req := httptest.NewRequest(http.MethodGet, "/ws/heatmap", nil)

	req.Header.Set("Origin", "https://heat.example.com")
	assert.True(t, u.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, u.CheckOrigin(req))

	assert.Nil(t, newUpgrader("").CheckOrigin)
}

func TestHeatmapSocketStreamsProgress(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.activity.heatmapFn = func(ctx context.Context, progress activity.ProgressFunc) (activity.Heatmap, error) {
		progress(1, 2, 500)
		progress(2, 2, 734)
		return sampleHeatmap(), nil
	}
	httpSrv := httptest.NewServer(ts.Handler())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/heatmap?username=alice&year=2024"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var messages []map[string]interface{}
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		messages = append(messages, msg)
	}

	require.Len(t, messages, 3)
	assert.Equal(t, "progress", messages[0]["type"])
	assert.Equal(t, float64(1), messages[0]["page"])
	assert.Equal(t, float64(734), messages[1]["fetched"])
	assert.Equal(t, "result", messages[2]["type"])
	assert.Equal(t, float64(2), messages[2]["totalPhotos"])
}

func TestHeatmapSocketReportsErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.activity.heatmapFn = func(ctx context.Context, progress activity.ProgressFunc) (activity.Heatmap, error) {
		return activity.Heatmap{}, apperrors.UserNotFound("ghost", nil)
	}
	httpSrv := httptest.NewServer(ts.Handler())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/heatmap?username=ghost"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "user_not_found", msg["error"])
}

func TestHeatmapSocketValidatesBeforeUpgrade(t *testing.T) {
	ts := newTestServer(t, nil)
	httpSrv := httptest.NewServer(ts.Handler())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/heatmap"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
