package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"flickrheat/pkg/activity"
	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/metrics"
)

const wsWriteTimeout = 10 * time.Second

type progressMessage struct {
	Type       string `json:"type"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
	Fetched    int    `json:"fetched"`
}

type resultMessage struct {
	Type string `json:"type"`
	activity.Heatmap
}

type errorMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// newUpgrader accepts same-origin upgrades, or only allowedOrigin when set
func newUpgrader(allowedOrigin string) websocket.Upgrader {
	u := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	allowedOrigin = strings.TrimRight(allowedOrigin, "/")
	if allowedOrigin == "" {
		return u
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(parsed.Scheme+"://"+parsed.Host, allowedOrigin)
	}
	return u
}

// handleHeatmapSocket streams page progress while the heatmap is computed,
// then sends the result (or an error) and closes.
func (s *Server) handleHeatmapSocket(c echo.Context) error {
	req, err := heatmapRequest(c)
	if err != nil {
		return s.writeError(c, err)
	}
	tok := s.accessToken(c)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered the client
		s.logger.WarnWithFields("Websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	defer conn.Close()

	metrics.WebsocketConnections.Inc()
	defer metrics.WebsocketConnections.Dec()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// the client never sends anything useful; reading surfaces a close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(v interface{}) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	progress := func(page, totalPages, fetched int) {
		if err := send(progressMessage{Type: "progress", Page: page, TotalPages: totalPages, Fetched: fetched}); err != nil {
			cancel()
		}
	}

	hm, err := s.activity.Heatmap(ctx, req, tok, progress)
	if err != nil {
		kind := apperrors.TypeOf(err)
		metrics.HTTPErrorsTotal.WithLabelValues(string(kind)).Inc()
		_ = send(errorMessage{Type: "error", Error: string(kind), Message: err.Error()})
	} else {
		_ = send(resultMessage{Type: "result", Heatmap: hm})
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
	return nil
}
