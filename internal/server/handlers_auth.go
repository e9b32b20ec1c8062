package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "flickrheat/pkg/errors"
)

func (s *Server) requireOAuth() error {
	if err := s.config.RequireCredentials(); err != nil {
		return err
	}
	if s.oauth == nil {
		return apperrors.Configuration("OAuth client is not configured")
	}
	return nil
}

func (s *Server) handleLogin(c echo.Context) error {
	if err := s.requireOAuth(); err != nil {
		return s.writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	rt, err := s.oauth.GetRequestToken(ctx, s.config.ResolvedCallbackURL())
	if err != nil {
		s.logger.ErrorWithFields("Failed to obtain request token", map[string]interface{}{
			"error": err.Error(),
		})
		return s.writeError(c, err)
	}

	if err := s.saveRequestToken(c, rt); err != nil {
		return s.writeError(c, apperrors.Wrap(apperrors.ErrorTypeUnknown, "failed to save session", err))
	}
	return c.Redirect(http.StatusFound, s.oauth.AuthorizeURL(rt.Token))
}

func (s *Server) handleCallback(c echo.Context) error {
	if err := s.requireOAuth(); err != nil {
		return s.writeError(c, err)
	}

	token := c.QueryParam("oauth_token")
	verifier := c.QueryParam("oauth_verifier")
	rt, ok := s.requestToken(c)
	if token == "" || verifier == "" || !ok {
		return s.writeError(c, apperrors.Validation("missing OAuth parameters"))
	}
	if rt.Token != "" && rt.Token != token {
		s.discardRequestToken(c)
		return s.writeError(c, apperrors.Validation("request token does not match this login"))
	}
	rt.Token = token

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	access, err := s.oauth.GetAccessToken(ctx, rt, verifier)
	s.discardRequestToken(c)
	if err != nil {
		s.logger.ErrorWithFields("Failed to exchange verifier", map[string]interface{}{
			"error": err.Error(),
		})
		return s.writeError(c, err)
	}

	if err := s.saveAccessToken(c, access); err != nil {
		return s.writeError(c, apperrors.Wrap(apperrors.ErrorTypeUnknown, "failed to save session", err))
	}
	s.logger.InfoWithFields("User signed in", map[string]interface{}{
		"user_nsid": access.UserID,
		"username":  access.Username,
	})
	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) handleLogout(c echo.Context) error {
	if err := s.clearAccessToken(c); err != nil {
		return s.writeError(c, apperrors.Wrap(apperrors.ErrorTypeUnknown, "failed to clear session", err))
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
