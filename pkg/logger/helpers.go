package logger

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// redactedParams never appear in logs with their real values
var redactedParams = []string{
	"api_key",
	"oauth_consumer_key",
	"oauth_token",
	"oauth_signature",
	"oauth_verifier",
}

// RedactURL masks credential-bearing query parameters in rawURL. URLs
// without any are returned untouched, including their parameter order.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	q := u.Query()
	n := 0
	for _, p := range redactedParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			n++
		}
	}
	if n == 0 {
		return rawURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// LogPageProgress logs pagination progress for a user's photo listing
func LogPageProgress(log Logger, userID string, page, totalPages, fetched int) {
	percentage := 0.0
	if totalPages > 0 {
		percentage = float64(page) / float64(totalPages) * 100
	}

	log.DebugWithFields("page fetched", map[string]interface{}{
		"user_id":     userID,
		"page":        page,
		"total_pages": totalPages,
		"fetched":     fetched,
		"percentage":  fmt.Sprintf("%.1f%%", percentage),
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// MaskSecret keeps the first and last four characters of s
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", 8)
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// NewNopLogger discards everything. Unlike a disabled zerolog logger its
// Fatal does not exit.
func NewNopLogger() Logger {
	return nopLogger{&zerologLogger{zl: zerolog.Nop()}}
}

type nopLogger struct{ *zerologLogger }

func (n nopLogger) Fatal(string)                                   {}
func (n nopLogger) FatalWithFields(string, map[string]interface{}) {}
func (n nopLogger) WithField(string, interface{}) Logger           { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger       { return n }
func (n nopLogger) WithError(error) Logger                         { return n }
func (n nopLogger) WithContext(context.Context) Logger             { return n }
