package server

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"flickrheat/pkg/oauth1"
)

const (
	sessionName        = "flickrheat_session"
	requestSessionName = "flickrheat_oauth_request"

	sessionKeyToken    = "access_token"
	sessionKeySecret   = "access_token_secret"
	sessionKeyUserNSID = "user_nsid"
	sessionKeyUsername = "username"

	requestKeyToken  = "request_token"
	requestKeySecret = "request_token_secret"

	// readable by page scripts, unlike the session
	cookieUserNSID = "flickr_user_nsid"
	cookieUsername = "flickr_username"
)

// accessToken returns the session's access token, or nil when the
// visitor has not signed in.
func (s *Server) accessToken(c echo.Context) *oauth1.AccessToken {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return nil
	}
	token, _ := session.Values[sessionKeyToken].(string)
	secret, _ := session.Values[sessionKeySecret].(string)
	if token == "" || secret == "" {
		return nil
	}
	nsid, _ := session.Values[sessionKeyUserNSID].(string)
	username, _ := session.Values[sessionKeyUsername].(string)
	return &oauth1.AccessToken{Token: token, Secret: secret, UserID: nsid, Username: username}
}

func (s *Server) saveAccessToken(c echo.Context, tok oauth1.AccessToken) error {
	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyToken] = tok.Token
	session.Values[sessionKeySecret] = tok.Secret
	session.Values[sessionKeyUserNSID] = tok.UserID
	session.Values[sessionKeyUsername] = tok.Username
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return err
	}

	s.setPublicCookie(c, cookieUserNSID, tok.UserID, int(sessionMaxAge.Seconds()))
	s.setPublicCookie(c, cookieUsername, tok.Username, int(sessionMaxAge.Seconds()))
	return nil
}

func (s *Server) clearAccessToken(c echo.Context) error {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		session = sessions.NewSession(s.sessionStore, sessionName)
	}
	session.Options = s.cookieOptions(-1, true)
	session.Values = map[interface{}]interface{}{}
	s.setPublicCookie(c, cookieUserNSID, "", -1)
	s.setPublicCookie(c, cookieUsername, "", -1)
	return session.Save(c.Request(), c.Response().Writer)
}

// saveRequestToken keeps the temporary credential for one hour
func (s *Server) saveRequestToken(c echo.Context, rt oauth1.RequestToken) error {
	session, _ := s.sessionStore.Get(c.Request(), requestSessionName)
	session.Options = s.cookieOptions(int(requestMaxAge.Seconds()), true)
	session.Values[requestKeyToken] = rt.Token
	session.Values[requestKeySecret] = rt.Secret
	return session.Save(c.Request(), c.Response().Writer)
}

func (s *Server) requestToken(c echo.Context) (oauth1.RequestToken, bool) {
	session, err := s.sessionStore.Get(c.Request(), requestSessionName)
	if err != nil {
		return oauth1.RequestToken{}, false
	}
	token, _ := session.Values[requestKeyToken].(string)
	secret, _ := session.Values[requestKeySecret].(string)
	if secret == "" {
		return oauth1.RequestToken{}, false
	}
	return oauth1.RequestToken{Token: token, Secret: secret}, true
}

// discardRequestToken expires the request session; its secret is single use
func (s *Server) discardRequestToken(c echo.Context) {
	session, err := s.sessionStore.Get(c.Request(), requestSessionName)
	if err != nil {
		session = sessions.NewSession(s.sessionStore, requestSessionName)
	}
	session.Options = s.cookieOptions(-1, true)
	session.Values = map[interface{}]interface{}{}
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		s.logger.WarnWithFields("Failed to clear request token", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) cookieOptions(maxAge int, httpOnly bool) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   s.config.Server.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) setPublicCookie(c echo.Context, name, value string, maxAge int) {
	opts := s.cookieOptions(maxAge, false)
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		MaxAge:   opts.MaxAge,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
