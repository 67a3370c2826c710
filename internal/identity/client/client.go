package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/marketplace/internal/identity/domain"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 5 * time.Second
	cacheSize      = 512
	maxBodyBytes   = 64 << 10
)

type TokenProvider func(ctx context.Context) (string, error)

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type userInfo struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Client looks users up on the users service, trying /by-username/{u} first and
// falling back to /{u}.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	cache         *expirable.LRU[string, string]
	log           *zap.Logger
}

var _ domain.Lookup = (*Client)(nil)

func New(cfg Config, tokenProvider TokenProvider, log *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("users service base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		baseURL:       base,
		httpClient:    &http.Client{Timeout: timeout},
		tokenProvider: tokenProvider,
		log:           log.Named("identity.client"),
	}
	if cfg.CacheTTL > 0 {
		c.cache = expirable.NewLRU[string, string](cacheSize, nil, cfg.CacheTTL)
	}
	return c, nil
}

func (c *Client) FindContactByUsername(ctx context.Context, username string) (string, bool) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", false
	}
	key := strings.ToLower(username)
	if c.cache != nil {
		if email, ok := c.cache.Get(key); ok {
			return email, true
		}
	}

	escaped := url.PathEscape(username)
	for _, path := range []string{"/by-username/" + escaped, "/" + escaped} {
		email, err := c.fetch(ctx, path)
		if err != nil {
			c.log.Debug("user lookup attempt failed",
				zap.String("username", username),
				zap.String("path", path),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return "", false
			}
			continue
		}
		if email == "" {
			continue
		}
		if c.cache != nil {
			c.cache.Add(key, email)
		}
		return email, true
	}

	c.log.Warn("no contact address found for user", zap.String("username", username))
	return "", false
}

func (c *Client) fetch(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return "", fmt.Errorf("obtain token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", fmt.Errorf("users service returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&info); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	return strings.TrimSpace(info.Email), nil
}
