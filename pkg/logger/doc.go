// Package logger provides structured logging for flickrheat.
//
// It wraps zerolog behind a small Logger interface. Console output is
// colored and written to stderr; an optional log file receives the same
// events as JSON lines.
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "debug"})
//
//	log := logger.GetLogger().WithField("component", "activity")
//	log.InfoWithFields("heatmap built", map[string]interface{}{
//	    "user_id": "12345678@N00",
//	    "days":    366,
//	})
//
// Request URLs pass through RedactURL before they are logged so that
// api_key and oauth_* parameters never reach the output.
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
