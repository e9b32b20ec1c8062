package server

import (
	"net/http"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"flickrheat/pkg/logger"
	"flickrheat/pkg/metrics"
)

func (s *Server) registerMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return uuid.Must(uuid.NewV4()).String()
		},
	}))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"method":     v.Method,
				"url":        logger.RedactURL(v.URI),
				"status":     v.Status,
				"duration":   v.Latency,
				"request_id": v.RequestID,
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
			}
			switch {
			case v.Status >= 500:
				s.logger.ErrorWithFields("Request failed", fields)
			case v.Status >= 400:
				s.logger.WarnWithFields("Request rejected", fields)
			default:
				s.logger.DebugWithFields("Request served", fields)
			}
			return nil
		},
	}))
}

// rateLimit rejects clients that exceed the per-IP request budget
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow(c.RealIP()) {
			metrics.HTTPErrorsTotal.WithLabelValues("rate_limit").Inc()
			return c.JSON(http.StatusTooManyRequests, errorResponse{
				Error:   "rate_limit",
				Message: "too many requests",
			})
		}
		return next(c)
	}
}
