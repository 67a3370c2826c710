package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/marketplace/internal/actor"
	"github.com/smallbiznis/marketplace/internal/config"
)

const (
	defaultTokenTTL = time.Hour
	refreshSkew     = time.Minute
)

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
	ErrNoSecret     = errors.New("jwt_secret_not_configured")
)

// Claims is the token shape shared with the users and file services.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager verifies inbound HS256 tokens and signs outbound ones.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(cfg config.Config) (*TokenManager, error) {
	if strings.TrimSpace(cfg.AuthJWTSecret) == "" {
		return nil, ErrNoSecret
	}
	return &TokenManager{
		secret: []byte(cfg.AuthJWTSecret),
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}, nil
}

// Parse validates raw and returns the actor it identifies.
func (m *TokenManager) Parse(raw string) (actor.Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return actor.Actor{}, ErrMissingToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return actor.Actor{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return actor.Actor{}, ErrInvalidToken
	}

	return actor.Actor{
		Username: claims.Subject,
		Role:     actor.Role(claims.Role),
		Token:    raw,
	}, nil
}

// Issue signs a token for username with the given role.
func (m *TokenManager) Issue(username string, role actor.Role) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ServiceTokenProvider returns a provider that mints and caches an admin token
// for service-to-service calls.
func (m *TokenManager) ServiceTokenProvider(username string) func(ctx context.Context) (string, error) {
	var (
		mu        sync.Mutex
		cached    string
		expiresAt time.Time
	)
	return func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		if cached != "" && m.now().Add(refreshSkew).Before(expiresAt) {
			return cached, nil
		}
		token, exp, err := m.Issue(username, actor.RoleAdmin)
		if err != nil {
			return "", err
		}
		cached, expiresAt = token, exp
		return cached, nil
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
