package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/metrics"
	"flickrheat/pkg/retry"
)

const breakerName = "snapshot-http"

// HTTPOptions configures an HTTPStore
type HTTPOptions struct {
	HTTPClient *http.Client
	Retry      *retry.Config
	Breaker    *gobreaker.Settings
	Logger     logger.Logger
}

// HTTPStore talks to an external snapshot service that accepts
// PUT {base}/{username} and serves GET {base}/{username}.
type HTTPStore struct {
	baseURL    string
	httpClient *http.Client
	retry      *retry.Config
	breaker    *gobreaker.CircuitBreaker
	logger     logger.Logger
}

// NewHTTPStore creates a store for the service at baseURL
func NewHTTPStore(baseURL string, opts HTTPOptions) (*HTTPStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.Configuration(fmt.Sprintf("invalid snapshot service URL %q", baseURL))
	}

	s := &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: opts.HTTPClient,
		retry:      opts.Retry,
		logger:     opts.Logger,
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	if s.retry == nil {
		s.retry = retry.DefaultConfig()
		s.retry.Logger = s.logger
	}

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
	if opts.Breaker != nil {
		settings = *opts.Breaker
	}
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNotFound) || apperrors.IsType(err, apperrors.ErrorTypeValidation)
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.WarnWithFields("Circuit breaker state changed", map[string]interface{}{
			"component": name,
			"from":      from.String(),
			"to":        to.String(),
		})
		metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
	}
	s.breaker = gobreaker.NewCircuitBreaker(settings)
	metrics.CircuitBreakerState.WithLabelValues(settings.Name).Set(0)

	return s, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the circuit breaker state
func (s *HTTPStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *HTTPStore) endpoint(username string) string {
	return s.baseURL + "/" + url.PathEscape(Key(username))
}

// Put stores the snapshot, retrying transient failures
func (s *HTTPStore) Put(ctx context.Context, snap Snapshot) (err error) {
	defer func() { observe("http", "put", err) }()

	if err := snap.Validate(); err != nil {
		return err
	}
	body, err := encode(snap)
	if err != nil {
		return err
	}

	return s.execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.endpoint(snap.Username), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		_, err = s.do(req)
		return err
	})
}

// Get fetches the snapshot for username
func (s *HTTPStore) Get(ctx context.Context, username string) (snap Snapshot, err error) {
	defer func() { observe("http", "get", err) }()

	if Key(username) == "" {
		return Snapshot{}, apperrors.Validation("snapshot username is required")
	}

	var body []byte
	err = s.execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(username), nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		body, err = s.do(req)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return decode(body)
}

// execute runs op through the breaker, inside the retry loop
func (s *HTTPStore) execute(ctx context.Context, op retry.Operation) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, op(ctx)
		})
		return err
	}, s.retry)
}

func (s *HTTPStore) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		s.logger.WarnWithFields("Snapshot service request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"duration": time.Since(start).String(),
			"error":    err.Error(),
		})
		return nil, apperrors.Network(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Network(err)
	}

	s.logger.DebugWithFields("Snapshot service response", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, apperrors.Newf(apperrors.FromStatus(resp.StatusCode),
			"snapshot service returned %d", resp.StatusCode).WithCode(resp.StatusCode)
	}
	return body, nil
}

func (s *HTTPStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
