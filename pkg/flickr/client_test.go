package flickr

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/retry"
)

// mockRoundTripper allows us to intercept HTTP requests
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func newMockHTTPClient(handler func(req *http.Request) (*http.Response, error)) *http.Client {
	return &http.Client{
		Transport: &mockRoundTripper{handler: handler},
		Timeout:   5 * time.Second,
	}
}

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(t *testing.T, handler func(req *http.Request) (*http.Response, error), signing bool) *Client {
	t.Helper()
	hc := newMockHTTPClient(handler)

	var oc *oauth1.Client
	if signing {
		var err error
		oc, err = oauth1.NewClient(
			oauth1.Credentials{ConsumerKey: "key", ConsumerSecret: "secret"},
			oauth1.WithHTTPClient(hc),
			oauth1.WithLogger(logger.NewNopLogger()),
		)
		require.NoError(t, err)
	}

	return NewClient(Options{
		APIKey:     "key",
		HTTPClient: hc,
		OAuth:      oc,
		Retry: &retry.Config{
			MaxAttempts: 3,
			Backoff:     retry.ConstantBackoff{Delay: time.Millisecond},
			Logger:      logger.NewNopLogger(),
		},
		Logger: logger.NewNopLogger(),
	})
}

var testToken = &oauth1.AccessToken{Token: "tok", Secret: "sec"}

func TestBuildURL(t *testing.T) {
	raw := BuildURL(RESTURL, MethodSearchPhotos, "key", url.Values{"user_id": {"1@N01"}, "format": {"json"}})
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "https://www.flickr.com/services/rest/", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, MethodSearchPhotos, q.Get("method"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "1", q.Get("nojsoncallback"))
	assert.Equal(t, "key", q.Get("api_key"))
	assert.Equal(t, "1@N01", q.Get("user_id"))
	assert.Len(t, q["format"], 1)
}

func TestUnsignedCallSendsAPIKey(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Empty(t, req.Header.Get("Authorization"))
		assert.Equal(t, "key", req.URL.Query().Get("api_key"))
		assert.Equal(t, "alice", req.URL.Query().Get("username"))
		return newResponse(200, `{"user":{"id":"1@N01","nsid":"1@N01","username":{"_content":"alice"}},"stat":"ok"}`), nil
	}, false)

	nsid, err := c.FindByUsername(context.Background(), "alice", testToken)
	require.NoError(t, err)
	assert.Equal(t, "1@N01", nsid)
}

func TestSignedCall(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.True(t, strings.HasPrefix(req.Header.Get("Authorization"), "OAuth "))
		assert.Contains(t, req.Header.Get("Authorization"), `oauth_token="tok"`)
		return newResponse(200, `{"user":{"id":"2@N02"},"stat":"ok"}`), nil
	}, true)

	nsid, err := c.LookupUser(context.Background(), "https://www.flickr.com/photos/alice/", testToken)
	require.NoError(t, err)
	assert.Equal(t, "2@N02", nsid)
}

func TestSignedFailureFallsBackToUnsigned(t *testing.T) {
	tests := []struct {
		name   string
		signed func() (*http.Response, error)
	}{
		{"stat fail", func() (*http.Response, error) {
			return newResponse(200, `{"stat":"fail","code":98,"message":"Invalid auth token"}`), nil
		}},
		{"http 401", func() (*http.Response, error) {
			return newResponse(401, "oauth_problem=token_rejected"), nil
		}},
		{"transport error", func() (*http.Response, error) {
			return nil, errors.New("connection reset")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var signedCalls, unsignedCalls int32
			c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				if req.Header.Get("Authorization") != "" {
					atomic.AddInt32(&signedCalls, 1)
					return tt.signed()
				}
				atomic.AddInt32(&unsignedCalls, 1)
				return newResponse(200, `{"user":{"nsid":"3@N03"},"stat":"ok"}`), nil
			}, true)

			nsid, err := c.FindByUsername(context.Background(), "bob", testToken)
			require.NoError(t, err)
			assert.Equal(t, "3@N03", nsid)
			assert.Equal(t, int32(1), atomic.LoadInt32(&signedCalls), "signed calls are never retried")
			assert.Equal(t, int32(1), atomic.LoadInt32(&unsignedCalls))
		})
	}
}

func TestCancelledContextSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return nil, context.Canceled
	}, true)

	_, err := c.FindByUsername(ctx, "bob", testToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnsignedStatFail(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return newResponse(200, `{"stat":"fail","code":1,"message":"User not found"}`), nil
	}, false)

	_, err := c.FindByUsername(context.Background(), "nobody", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User not found")
	assert.True(t, IsNotFound(err))
}

func TestUnsignedRetriesTransientFailures(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return newResponse(503, "unavailable"), nil
		}
		return newResponse(200, `{"user":{"nsid":"4@N04"},"stat":"ok"}`), nil
	}, false)

	nsid, err := c.FindByUsername(context.Background(), "carol", nil)
	require.NoError(t, err)
	assert.Equal(t, "4@N04", nsid)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestParseError(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return newResponse(200, `jsonFlickrApi({"stat":"ok"})`), nil
	}, false)

	_, err := c.GetInfo(context.Background(), "1@N01", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeParsing, apperrors.TypeOf(err))
}

func TestMissingAPIKey(t *testing.T) {
	c := NewClient(Options{Logger: logger.NewNopLogger()})
	_, err := c.FindByUsername(context.Background(), "alice", nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
}

func TestGetInfo(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, MethodGetInfo, req.URL.Query().Get("method"))
		return newResponse(200, `{"person":{"id":"35034348999@N01","nsid":"35034348999@N01","iconserver":"65535","iconfarm":66,
			"username":{"_content":"alice"},"realname":{"_content":"Alice Liddell"},
			"profileurl":{"_content":"https://www.flickr.com/people/alice/"},
			"photos":{"firstdatetaken":{"_content":"2004-05-01 12:00:00"},"firstdate":{"_content":"1083427200"},"count":{"_content":1234}}},
			"stat":"ok"}`), nil
	}, false)

	p, err := c.GetInfo(context.Background(), "35034348999@N01", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "Alice Liddell", p.RealName)
	assert.Equal(t, int64(1083427200), p.FirstDate)
	assert.Equal(t, "2004-05-01 12:00:00", p.FirstDateTaken)
	assert.Equal(t, 1234, p.PhotoCount)
	assert.Equal(t, "https://farm66.staticflickr.com/65535/buddyicons/35034348999@N01.jpg", BuddyIconURL(p))
}

func TestSearchPhotos(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, MethodSearchPhotos, q.Get("method"))
		assert.Equal(t, "1@N01", q.Get("user_id"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "500", q.Get("per_page"))
		assert.Equal(t, "1704067200", q.Get("min_upload_date"))
		assert.Equal(t, "", q.Get("min_taken_date"))
		assert.Equal(t, "date_upload,date_taken", q.Get("extras"))
		return newResponse(200, `{"photos":{"page":2,"pages":"3","perpage":500,"total":"1203","photo":[
			{"id":"1","owner":"1@N01","title":"a","dateupload":"1709251200","datetaken":"2024-03-01 09:00:00"},
			{"id":"2","owner":"1@N01","title":"b","dateupload":1709337600,"datetaken":""}]},"stat":"ok"}`), nil
	}, false)

	page, err := c.SearchPhotos(context.Background(), SearchParams{
		UserID:        "1@N01",
		Page:          2,
		PerPage:       900,
		MinUploadDate: 1704067200,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, FlexInt(2), page.Page)
	assert.Equal(t, FlexInt(3), page.Pages)
	assert.Equal(t, FlexInt(1203), page.Total)
	require.Len(t, page.Photo, 2)
	assert.Equal(t, FlexInt(1709251200), page.Photo[0].DateUpload)
	assert.Equal(t, FlexInt(1709337600), page.Photo[1].DateUpload)
	assert.Equal(t, "2024-03-01 09:00:00", page.Photo[0].DateTaken)
}

func TestSearchPhotosValidation(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}, false)

	_, err := c.SearchPhotos(context.Background(), SearchParams{}, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestBuddyIconDefault(t *testing.T) {
	assert.Equal(t, DefaultBuddyIcon, BuddyIconURL(Person{NSID: "1@N01", IconServer: "0", IconFarm: 0}))
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://www.flickr.com/photos/alice/"))
	assert.True(t, IsURL("HTTP://flickr.com/photos/alice"))
	assert.True(t, IsURL("www.flickr.com/photos/alice"))
	assert.False(t, IsURL("alice"))
	assert.False(t, IsURL("12345678@N00"))
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in      string
		want    FlexInt
		wantErr bool
	}{
		{`12`, 12, false},
		{`"12"`, 12, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"twelve"`, 0, true},
	}
	for _, tt := range tests {
		var f FlexInt
		err := f.UnmarshalJSON([]byte(tt.in))
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, f, tt.in)
	}
}
