package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"flickrheat/pkg/activity"
	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/snapshot"
)

type userResponse struct {
	Success bool `json:"success"`
	activity.Profile
}

type photosResponse struct {
	Success       bool `json:"success"`
	Authenticated bool `json:"authenticated"`
	activity.Heatmap
}

type monthlyResponse struct {
	Success bool    `json:"success"`
	Year    int     `json:"year"`
	Mode    string  `json:"mode"`
	Counts  [12]int `json:"counts"`
}

type shareRequest struct {
	Username     string         `json:"username"`
	Data         []activity.Day `json:"data"`
	Year         int            `json:"year"`
	ActivityType string         `json:"activityType"`
}

type shareResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (s *Server) handleIndex(c echo.Context) error {
	tok := s.accessToken(c)
	resp := map[string]interface{}{
		"service":       "flickrheat",
		"authenticated": tok != nil,
	}
	if tok != nil {
		resp["username"] = tok.Username
		resp["userId"] = tok.UserID
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUser(c echo.Context) error {
	username := strings.TrimSpace(c.QueryParam("username"))
	if username == "" {
		return s.writeError(c, apperrors.Validation("username is required"))
	}
	ctx := c.Request().Context()
	tok := s.accessToken(c)

	nsid, err := s.activity.ResolveUser(ctx, username, tok)
	if err != nil {
		return s.writeError(c, err)
	}
	profile, err := s.activity.Profile(ctx, nsid, tok)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{Success: true, Profile: profile})
}

// parseYear reads an optional year; empty means the current year
func parseYear(raw string, required bool) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return 0, apperrors.Validation("year is required")
		}
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation(fmt.Sprintf("invalid year %q", raw))
	}
	return year, nil
}

func heatmapRequest(c echo.Context) (activity.Request, error) {
	username := strings.TrimSpace(c.QueryParam("username"))
	if username == "" {
		return activity.Request{}, apperrors.Validation("username is required")
	}
	year, err := parseYear(c.QueryParam("year"), false)
	if err != nil {
		return activity.Request{}, err
	}
	mode, err := activity.ParseMode(c.QueryParam("mode"), "")
	if err != nil {
		return activity.Request{}, err
	}
	leveling := c.QueryParam("leveling")
	if _, err := activity.ParseLeveling(leveling); err != nil {
		return activity.Request{}, err
	}
	return activity.Request{Identifier: username, Year: year, Mode: mode, Leveling: leveling}, nil
}

// heatmapKey identifies requests that may share one computation. The
// viewer is part of the key since a signed listing may include private
// photos.
func heatmapKey(req activity.Request, tok *oauth1.AccessToken) string {
	viewer := ""
	if tok != nil {
		viewer = tok.UserID + ":" + tok.Token
	}
	return strings.Join([]string{
		strings.ToLower(req.Identifier),
		strconv.Itoa(req.Year),
		string(req.Mode),
		strings.ToLower(req.Leveling),
		viewer,
	}, "|")
}

func (s *Server) handlePhotos(c echo.Context) error {
	req, err := heatmapRequest(c)
	if err != nil {
		return s.writeError(c, err)
	}
	tok := s.accessToken(c)
	ctx := c.Request().Context()

	// The computation is shared, so it must outlive whichever caller
	// happened to start it. Each caller still stops waiting on its own ctx.
	ch := s.heatmaps.DoChan(heatmapKey(req, tok), func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedHeatmapTimeout)
		defer cancel()
		return s.activity.Heatmap(shared, req, tok, nil)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.Err != nil {
		return s.writeError(c, res.Err)
	}
	v := res.Val
	if res.Shared {
		s.logger.DebugWithFields("Heatmap computation shared", map[string]interface{}{
			"username": req.Identifier,
			"year":     req.Year,
		})
	}

	return c.JSON(http.StatusOK, photosResponse{
		Success:       true,
		Authenticated: tok != nil,
		Heatmap:       v.(activity.Heatmap),
	})
}

func (s *Server) handleMonthly(c echo.Context) error {
	userID := strings.TrimSpace(c.QueryParam("userId"))
	if userID == "" {
		return s.writeError(c, apperrors.Validation("userId and year are required"))
	}
	year, err := parseYear(c.QueryParam("year"), true)
	if err != nil {
		return s.writeError(c, err)
	}
	// anything but an explicit upload request counts taken dates
	mode := activity.ModeTaken
	if m, err := activity.ParseMode(c.QueryParam("mode"), activity.ModeTaken); err == nil {
		mode = m
	}

	counts, err := s.activity.MonthlyCounts(c.Request().Context(), userID, year, mode, s.accessToken(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, monthlyResponse{Success: true, Year: year, Mode: string(mode), Counts: counts})
}

func (s *Server) requireStore() error {
	if s.store == nil {
		return apperrors.Configuration("snapshot store is not configured")
	}
	return nil
}

func (s *Server) handleShare(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return s.writeError(c, err)
	}

	var body shareRequest
	if err := c.Bind(&body); err != nil {
		return s.writeError(c, apperrors.Validation("invalid JSON body"))
	}
	if strings.TrimSpace(body.Username) == "" || body.Data == nil {
		return s.writeError(c, apperrors.Validation("missing required fields"))
	}

	snap := snapshot.Snapshot{
		Username:     snapshot.Key(body.Username),
		Data:         body.Data,
		Year:         body.Year,
		ActivityType: body.ActivityType,
		Timestamp:    s.clock.Now().UnixMilli(),
	}
	if err := s.store.Put(c.Request().Context(), snap); err != nil {
		s.logger.ErrorWithFields("Failed to save snapshot", map[string]interface{}{
			"username": snap.Username,
			"error":    err.Error(),
		})
		return s.writeError(c, err)
	}

	token, err := s.shares.Issue(snap.Username)
	if err != nil {
		return s.writeError(c, apperrors.Wrap(apperrors.ErrorTypeUnknown, "failed to sign share token", err))
	}
	return c.JSON(http.StatusOK, shareResponse{Success: true, Username: snap.Username, Token: token})
}

func (s *Server) handleSnapshot(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return s.writeError(c, err)
	}

	username := strings.TrimSpace(c.QueryParam("username"))
	if raw := c.QueryParam("token"); raw != "" {
		subject, err := s.shares.Verify(raw)
		if err != nil {
			return s.writeError(c, apperrors.Validation(err.Error()))
		}
		username = subject
	}
	if username == "" {
		return s.writeError(c, apperrors.Validation("username is required"))
	}

	snap, err := s.store.Get(c.Request().Context(), snapshot.Key(username))
	if errors.Is(err, snapshot.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Snapshot not found"})
	}
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
