package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/", s.handleIndex)

	s.echo.GET("/api/auth/login", s.handleLogin)
	s.echo.GET("/api/auth/callback", s.handleCallback)
	s.echo.POST("/api/auth/logout", s.handleLogout)

	api := s.echo.Group("/api", s.rateLimit)
	api.GET("/user", s.handleUser)
	api.GET("/photos", s.handlePhotos)
	api.GET("/user/activity", s.handleMonthly)
	api.POST("/share", s.handleShare)
	api.GET("/snapshot", s.handleSnapshot)

	s.echo.GET("/ws/heatmap", s.handleHeatmapSocket, s.rateLimit)
}
