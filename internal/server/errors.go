package server

import (
	"github.com/labstack/echo/v4"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/metrics"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError reports err as {"error": kind, "message": text}
func (s *Server) writeError(c echo.Context, err error) error {
	kind := apperrors.TypeOf(err)
	metrics.HTTPErrorsTotal.WithLabelValues(string(kind)).Inc()
	return c.JSON(kind.HTTPStatus(), errorResponse{Error: string(kind), Message: err.Error()})
}
