package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	restPath  = "/services/rest/"
	oauthPath = "/services/oauth"

	// Credentials the mock hands out during the handshake
	mockRequestToken  = "mock-request-token"
	mockRequestSecret = "mock-request-secret"
	mockAccessToken   = "mock-access-token"
	mockAccessSecret  = "mock-access-secret"
	mockVerifier      = "mock-verifier"
)

// MockPerson is a user known to the mock server
type MockPerson struct {
	NSID       string
	Username   string
	RealName   string
	IconServer string
	IconFarm   int
	FirstDate  int64
	PhotoCount int
}

// MockPhoto is a photo returned by photos.search
type MockPhoto struct {
	ID       string
	Owner    string
	Uploaded time.Time
	// Taken is local time, zero when unknown
	Taken time.Time
}

// MockFlickrServer simulates the REST endpoint and the OAuth handshake
// endpoints of the photo service.
type MockFlickrServer struct {
	server *httptest.Server

	mu      sync.RWMutex
	people  map[string]MockPerson // by NSID
	photos  map[string][]MockPhoto
	failing map[string]int // REST method -> HTTP status
	stats   map[string]string
	calls   map[string]int

	requestCount int32
	signedCount  int32
}

// NewMockFlickrServer starts a mock server with no users
func NewMockFlickrServer() *MockFlickrServer {
	m := &MockFlickrServer{
		people:  make(map[string]MockPerson),
		photos:  make(map[string][]MockPhoto),
		failing: make(map[string]int),
		stats:   make(map[string]string),
		calls:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(restPath, m.handleREST)
	mux.HandleFunc(oauthPath+"/request_token", m.handleRequestToken)
	mux.HandleFunc(oauthPath+"/access_token", m.handleAccessToken)

	m.server = httptest.NewServer(mux)
	return m
}

// RESTURL is the REST endpoint to configure clients with
func (m *MockFlickrServer) RESTURL() string {
	return m.server.URL + restPath
}

// OAuthBaseURL is the prefix of the handshake endpoints
func (m *MockFlickrServer) OAuthBaseURL() string {
	return m.server.URL + oauthPath
}

// Close shuts the server down
func (m *MockFlickrServer) Close() {
	m.server.Close()
}

// AddPerson registers a user
func (m *MockFlickrServer) AddPerson(p MockPerson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[p.NSID] = p
}

// AddPhotos appends photos to their owners' streams
func (m *MockFlickrServer) AddPhotos(photos ...MockPhoto) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range photos {
		m.photos[p.Owner] = append(m.photos[p.Owner], p)
	}
}

// SetHTTPError makes method answer with status until cleared with 0
func (m *MockFlickrServer) SetHTTPError(method string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == 0 {
		delete(m.failing, method)
		return
	}
	m.failing[method] = status
}

// SetStatFailure makes method answer 200 with stat=fail and message
func (m *MockFlickrServer) SetStatFailure(method, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if message == "" {
		delete(m.stats, method)
		return
	}
	m.stats[method] = message
}

// Calls returns how many times method was requested
func (m *MockFlickrServer) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// RequestCount returns the total number of requests served
func (m *MockFlickrServer) RequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

// SignedCount returns how many REST requests carried an OAuth header
func (m *MockFlickrServer) SignedCount() int {
	return int(atomic.LoadInt32(&m.signedCount))
}

func (m *MockFlickrServer) handleREST(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)
	q := r.URL.Query()
	method := q.Get("method")

	if strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
		if !strings.Contains(r.Header.Get("Authorization"), `oauth_token="`+mockAccessToken+`"`) {
			http.Error(w, "oauth_problem=token_rejected", http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&m.signedCount, 1)
	}

	m.mu.Lock()
	m.calls[method]++
	status := m.failing[method]
	failure := m.stats[method]
	m.mu.Unlock()

	if status > 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, "error %d", status)
		return
	}
	if failure != "" {
		m.sendFail(w, 1, failure)
		return
	}
	if q.Get("format") != "json" || q.Get("nojsoncallback") != "1" {
		m.sendFail(w, 111, "Format not found")
		return
	}
	if q.Get("api_key") == "" {
		m.sendFail(w, 100, "Invalid API Key (Key has invalid format)")
		return
	}

	switch method {
	case "flickr.people.findByUsername":
		m.handleFindByUsername(w, q)
	case "flickr.urls.lookupUser":
		m.handleLookupUser(w, q)
	case "flickr.people.getInfo":
		m.handleGetInfo(w, q)
	case "flickr.photos.search":
		m.handleSearch(w, q)
	default:
		m.sendFail(w, 112, fmt.Sprintf("Method %q not found", method))
	}
}

func (m *MockFlickrServer) findByName(name string) (MockPerson, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.people {
		if strings.EqualFold(p.Username, name) {
			return p, true
		}
	}
	return MockPerson{}, false
}

func (m *MockFlickrServer) handleFindByUsername(w http.ResponseWriter, q url.Values) {
	p, ok := m.findByName(q.Get("username"))
	if !ok {
		m.sendFail(w, 1, "User not found")
		return
	}
	m.sendOK(w, map[string]interface{}{
		"user": map[string]interface{}{
			"id":       p.NSID,
			"nsid":     p.NSID,
			"username": map[string]string{"_content": p.Username},
		},
	})
}

func (m *MockFlickrServer) handleLookupUser(w http.ResponseWriter, q url.Values) {
	u, err := url.Parse(q.Get("url"))
	if err != nil {
		m.sendFail(w, 1, "User not found")
		return
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	name := parts[len(parts)-1]

	p, ok := m.findByName(name)
	if !ok {
		m.mu.RLock()
		p, ok = m.people[name]
		m.mu.RUnlock()
	}
	if !ok {
		m.sendFail(w, 1, "User not found")
		return
	}
	m.sendOK(w, map[string]interface{}{
		"user": map[string]interface{}{
			"id":       p.NSID,
			"username": map[string]string{"_content": p.Username},
		},
	})
}

func (m *MockFlickrServer) handleGetInfo(w http.ResponseWriter, q url.Values) {
	m.mu.RLock()
	p, ok := m.people[q.Get("user_id")]
	m.mu.RUnlock()
	if !ok {
		m.sendFail(w, 1, "User not found")
		return
	}
	firstDate := ""
	if p.FirstDate > 0 {
		firstDate = strconv.FormatInt(p.FirstDate, 10)
	}
	m.sendOK(w, map[string]interface{}{
		"person": map[string]interface{}{
			"id":         p.NSID,
			"nsid":       p.NSID,
			"iconserver": p.IconServer,
			"iconfarm":   p.IconFarm,
			"username":   map[string]string{"_content": p.Username},
			"realname":   map[string]string{"_content": p.RealName},
			"profileurl": map[string]string{"_content": "https://www.flickr.com/people/" + p.NSID + "/"},
			"photos": map[string]interface{}{
				"firstdate":      map[string]string{"_content": firstDate},
				"firstdatetaken": map[string]string{"_content": ""},
				"count":          map[string]int{"_content": p.PhotoCount},
			},
		},
	})
}

const takenLayout = "2006-01-02 15:04:05"

// matches applies the upload and taken bounds of a search
func matches(p MockPhoto, q url.Values) bool {
	if v := q.Get("min_upload_date"); v != "" {
		n, _ := strconv.ParseInt(v, 10, 64)
		if p.Uploaded.Unix() < n {
			return false
		}
	}
	if v := q.Get("max_upload_date"); v != "" {
		n, _ := strconv.ParseInt(v, 10, 64)
		if p.Uploaded.Unix() > n {
			return false
		}
	}
	taken := ""
	if !p.Taken.IsZero() {
		taken = p.Taken.Format(takenLayout)
	}
	if v := q.Get("min_taken_date"); v != "" && (taken == "" || taken < v) {
		return false
	}
	if v := q.Get("max_taken_date"); v != "" && (taken == "" || taken > v) {
		return false
	}
	return true
}

func (m *MockFlickrServer) handleSearch(w http.ResponseWriter, q url.Values) {
	userID := q.Get("user_id")
	m.mu.RLock()
	_, known := m.people[userID]
	var found []MockPhoto
	for _, p := range m.photos[userID] {
		if matches(p, q) {
			found = append(found, p)
		}
	}
	m.mu.RUnlock()
	if !known {
		m.sendFail(w, 2, "Unknown user")
		return
	}

	// newest upload first, like the live service
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Uploaded.After(found[j].Uploaded)
	})

	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 {
		perPage = 100
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page <= 0 {
		page = 1
	}
	pages := (len(found) + perPage - 1) / perPage

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(found) {
		start = len(found)
	}
	if end > len(found) {
		end = len(found)
	}

	items := make([]map[string]interface{}, 0, end-start)
	for _, p := range found[start:end] {
		taken := ""
		if !p.Taken.IsZero() {
			taken = p.Taken.Format(takenLayout)
		}
		items = append(items, map[string]interface{}{
			"id":         p.ID,
			"owner":      p.Owner,
			"title":      "photo " + p.ID,
			"dateupload": strconv.FormatInt(p.Uploaded.Unix(), 10),
			"datetaken":  taken,
		})
	}

	// total arrives as a string, page counts as numbers
	m.sendOK(w, map[string]interface{}{
		"photos": map[string]interface{}{
			"page":    page,
			"pages":   pages,
			"perpage": perPage,
			"total":   strconv.Itoa(len(found)),
			"photo":   items,
		},
	})
}

func (m *MockFlickrServer) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)
	auth := r.Header.Get("Authorization")
	if r.Method != http.MethodPost || !strings.Contains(auth, "oauth_signature=") || !strings.Contains(auth, "oauth_callback=") {
		http.Error(w, "oauth_problem=parameter_absent", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	fmt.Fprint(w, url.Values{
		"oauth_callback_confirmed": {"true"},
		"oauth_token":              {mockRequestToken},
		"oauth_token_secret":       {mockRequestSecret},
	}.Encode())
}

func (m *MockFlickrServer) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)
	auth := r.Header.Get("Authorization")
	if !strings.Contains(auth, `oauth_token="`+mockRequestToken+`"`) ||
		!strings.Contains(auth, `oauth_verifier="`+mockVerifier+`"`) {
		http.Error(w, "oauth_problem=token_rejected", http.StatusUnauthorized)
		return
	}

	m.mu.RLock()
	var person MockPerson
	for _, p := range m.people {
		if person.NSID == "" || p.NSID < person.NSID {
			person = p
		}
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	fmt.Fprint(w, url.Values{
		"fullname":           {person.RealName},
		"oauth_token":        {mockAccessToken},
		"oauth_token_secret": {mockAccessSecret},
		"user_nsid":          {person.NSID},
		"username":           {person.Username},
	}.Encode())
}

func (m *MockFlickrServer) sendOK(w http.ResponseWriter, body map[string]interface{}) {
	body["stat"] = "ok"
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (m *MockFlickrServer) sendFail(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stat":    "fail",
		"code":    code,
		"message": message,
	})
}
