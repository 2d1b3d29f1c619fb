package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "storefront"

var ErrInvalidSession = errors.New("session: invalid session cookie")

type Claims struct {
	jwt.RegisteredClaims
}

// Signer issues and verifies the HS256 session cookie value. The subject
// claim is the session id.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret required")
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// NewID returns a fresh random session id.
func NewID() string { return uuid.NewString() }

func (s *Signer) Issue(sessionID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  sessionID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse returns the session id carried by a signed cookie value.
func (s *Signer) Parse(value string) (string, error) {
	if value == "" {
		return "", ErrInvalidSession
	}
	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}
