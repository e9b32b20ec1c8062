package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// ShareTTL is how long a share link stays readable
const ShareTTL = 30 * 24 * time.Hour

// ShareSigner issues and checks HS256 tokens naming a snapshot's username
type ShareSigner struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewShareSigner(secret []byte, ttl time.Duration, clock clockwork.Clock) *ShareSigner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ShareSigner{secret: secret, ttl: ttl, clock: clock}
}

// Issue returns a token whose subject is username
func (s *ShareSigner) Issue(username string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the username a valid, unexpired token names
func (s *ShareSigner) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid share token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid share token")
	}
	if claims.Subject == "" {
		return "", errors.New("share token has no subject")
	}
	return claims.Subject, nil
}
