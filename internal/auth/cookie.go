package auth

import (
	"errors"
	"time"

	"tutorwise/config"
	"tutorwise/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// AttributionClaims is the payload of the referral cookie. The token is
// HMAC-SHA256 signed, so a tampered cookie fails verification.
type AttributionClaims struct {
	Code   string `json:"code"`
	Source string `json:"src"`
	jwt.RegisteredClaims
}

var ErrInvalidCookie = errors.New("invalid attribution cookie")

// CookieSigner issues and verifies attribution cookies.
type CookieSigner struct {
	cfg   *config.AttributionConfig
	nowFn func() time.Time
}

func NewCookieSigner(cfg *config.AttributionConfig) *CookieSigner {
	return &CookieSigner{cfg: cfg, nowFn: time.Now}
}

// WithClock replaces the clock, for tests.
func (s *CookieSigner) WithClock(now func() time.Time) *CookieSigner {
	return &CookieSigner{cfg: s.cfg, nowFn: now}
}

// Window returns how long a cookie from the given source stays valid.
func (s *CookieSigner) Window(source string) time.Duration {
	if source == domain.CookieSourceSession {
		return s.cfg.SessionWindow
	}
	return s.cfg.LinkWindow
}

// Sign returns the cookie value for code along with its max age.
func (s *CookieSigner) Sign(code, source string) (string, time.Duration, error) {
	if source != domain.CookieSourceSession {
		source = domain.CookieSourceLink
	}
	window := s.Window(source)
	now := s.nowFn()
	claims := AttributionClaims{
		Code:   code,
		Source: source,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(window)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	v, err := token.SignedString([]byte(s.cfg.CookieSecret))
	if err != nil {
		return "", 0, err
	}
	return v, window, nil
}

// Verify returns the claims of a valid cookie. The window is re-checked
// against the issue time using the source carried in the cookie, so a cookie
// cannot outlive the window configured for its source.
func (s *CookieSigner) Verify(value string) (*AttributionClaims, error) {
	if value == "" {
		return nil, ErrInvalidCookie
	}
	token, err := jwt.ParseWithClaims(value, &AttributionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.CookieSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.nowFn),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, ErrInvalidCookie
	}
	claims, ok := token.Claims.(*AttributionClaims)
	if !ok || !token.Valid || claims.Code == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidCookie
	}
	if s.nowFn().Sub(claims.IssuedAt.Time) > s.Window(claims.Source) {
		return nil, ErrInvalidCookie
	}
	return claims, nil
}
