// Package client is the HTTP implementation of the file-store gateway.
//
// Endpoints (relative to the configured base URL):
//
//	POST   /api/files/public/{owner}?type=product&kind=...   multipart upload
//	POST   /api/files/staging/{owner}                        staged multipart upload
//	POST   /api/files/staging/{owner}/promote                promote staged uploads
//	DELETE /api/files/staging/{owner}                        discard staged uploads
//	DELETE /api/files/{fileId}                               delete one file
//	DELETE /api/files/folder/{owner}                         delete everything for owner
//	GET    /api/files/entity/{owner}                         metadata listing
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/retry"
	"go.uber.org/zap"
)

const (
	defaultTimeout      = 30 * time.Second
	maxErrorBodyBytes   = 4 << 10
	metadataCacheSize   = 1024
	entityTypeProduct   = "product"
	headerIdempotency   = "Idempotency-Key"
	headerAuthorization = "Authorization"
)

// TokenProvider returns the bearer token attached to every request.
type TokenProvider func(ctx context.Context) (string, error)

// Config configures the client. MetadataCacheTTLSource, when set, is consulted
// on every cache access and takes precedence over MetadataCacheTTL.
type Config struct {
	BaseURL                string
	Timeout                time.Duration
	MetadataCacheTTL       time.Duration
	MetadataCacheTTLSource func() time.Duration
}

// fileInfo is the wire shape returned by the file service.
type fileInfo struct {
	ID           int64  `json:"id"`
	DriveFileID  string `json:"driveFileId"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	FileType     string `json:"fileType"`
	Size         int64  `json:"size"`
	Uploader     string `json:"uploader"`
	DownloadURI  string `json:"downloadUri"`
}

type stagingInfo struct {
	StagingID    string `json:"stagingId"`
	OwnerID      string `json:"ownerId"`
	OriginalName string `json:"originalName"`
	FileType     string `json:"fileType"`
}

// Client talks to the external file service over HTTP.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	log           *zap.Logger

	cacheTTL  func() time.Duration
	cacheMu   sync.Mutex
	activeTTL time.Duration
	metaCache *expirable.LRU[string, []domain.FileMeta]
}

var _ domain.Gateway = (*Client)(nil)

func New(cfg Config, tokenProvider TokenProvider, log *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("file service base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse file service base url: %w", err)
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
		log:           log.Named("filestore.client"),
		cacheTTL:      cfg.MetadataCacheTTLSource,
	}
	if c.cacheTTL == nil {
		ttl := cfg.MetadataCacheTTL
		c.cacheTTL = func() time.Duration { return ttl }
	}
	return c, nil
}

// BaseURL returns the normalized file service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Upload(ctx context.Context, file domain.FileUpload, ownerID string, kind domain.Kind) (domain.FileReference, error) {
	if err := validateOwner(ownerID); err != nil {
		return domain.FileReference{}, err
	}
	q := url.Values{}
	q.Set("type", entityTypeProduct)
	q.Set("kind", string(kind))
	path := fmt.Sprintf("/api/files/public/%s?%s", url.PathEscape(ownerID), q.Encode())

	var info fileInfo
	if err := c.postMultipart(ctx, path, file, &info); err != nil {
		return domain.FileReference{}, err
	}
	c.invalidate(ownerID)
	return info.reference(), nil
}

func (c *Client) UploadStaged(ctx context.Context, file domain.FileUpload, ownerID string) (domain.StagingEntry, error) {
	if err := validateOwner(ownerID); err != nil {
		return domain.StagingEntry{}, err
	}
	path := fmt.Sprintf("/api/files/staging/%s", url.PathEscape(ownerID))

	var info stagingInfo
	if err := c.postMultipart(ctx, path, file, &info); err != nil {
		return domain.StagingEntry{}, err
	}
	owner := info.OwnerID
	if owner == "" {
		owner = ownerID
	}
	return domain.StagingEntry{
		StagingID:    info.StagingID,
		OwnerID:      owner,
		ContentType:  info.FileType,
		OriginalName: info.OriginalName,
	}, nil
}

func (c *Client) PromoteStaging(ctx context.Context, ownerID string) ([]domain.FileReference, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/api/files/staging/%s/promote", url.PathEscape(ownerID))

	var infos []fileInfo
	if err := c.do(ctx, http.MethodPost, path, nil, "", &infos, false); err != nil {
		return nil, err
	}
	c.invalidate(ownerID)

	refs := make([]domain.FileReference, 0, len(infos))
	for _, info := range infos {
		refs = append(refs, info.reference())
	}
	return refs, nil
}

func (c *Client) DiscardStaging(ctx context.Context, ownerID string) error {
	if err := validateOwner(ownerID); err != nil {
		return err
	}
	path := fmt.Sprintf("/api/files/staging/%s", url.PathEscape(ownerID))
	return c.do(ctx, http.MethodDelete, path, nil, "", nil, true)
}

// DeleteFile treats a missing file as already deleted so retries stay idempotent.
func (c *Client) DeleteFile(ctx context.Context, ownerID string, ref domain.FileReference) error {
	if err := validateOwner(ownerID); err != nil {
		return err
	}
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return domain.ErrInvalidFileID
	}
	path := fmt.Sprintf("/api/files/%s", url.PathEscape(id))
	if err := c.do(ctx, http.MethodDelete, path, nil, "", nil, true); err != nil {
		return err
	}
	c.invalidate(ownerID)
	return nil
}

func (c *Client) DeleteFolder(ctx context.Context, ownerID string) error {
	if err := validateOwner(ownerID); err != nil {
		return err
	}
	path := fmt.Sprintf("/api/files/folder/%s", url.PathEscape(ownerID))
	if err := c.do(ctx, http.MethodDelete, path, nil, "", nil, true); err != nil {
		return err
	}
	c.invalidate(ownerID)
	return nil
}

func (c *Client) ListMetadata(ctx context.Context, ownerID string) ([]domain.FileMeta, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	cache := c.cache()
	if cache != nil {
		if cached, ok := cache.Get(ownerID); ok {
			return cached, nil
		}
	}

	path := fmt.Sprintf("/api/files/entity/%s", url.PathEscape(ownerID))
	var infos []fileInfo
	if err := c.do(ctx, http.MethodGet, path, nil, "", &infos, false); err != nil {
		return nil, err
	}

	metas := make([]domain.FileMeta, 0, len(infos))
	for _, info := range infos {
		metas = append(metas, domain.FileMeta{
			Reference:   info.reference(),
			Size:        info.Size,
			DownloadURI: info.DownloadURI,
		})
	}
	if cache != nil {
		cache.Add(ownerID, metas)
	}
	return metas, nil
}

func (c *Client) postMultipart(ctx context.Context, path string, file domain.FileUpload, out any) error {
	if file.Empty() {
		return domain.ErrEmptyUpload
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Filename)))
	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return fmt.Errorf("copy upload content: %w", err)
	}
	if err := w.WriteField("uploader", file.Uploader); err != nil {
		return fmt.Errorf("write uploader field: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	return c.do(ctx, http.MethodPost, path, &body, w.FormDataContentType(), out, false)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any, notFoundOK bool) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost {
		req.Header.Set(headerIdempotency, ulid.Make().String())
	}
	req.Header.Set("Accept", "application/json")
	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return fmt.Errorf("%w: obtain token: %v", domain.ErrUnavailable, err)
		}
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFoundOK {
		c.log.Debug("file service resource already absent",
			zap.String("method", method),
			zap.String("path", path),
		)
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.log.Warn("file service returned error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)),
		)
		statusErr := fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, statusErr)
		}
		return retry.Permanent(fmt.Errorf("%w: %v", domain.ErrRejected, statusErr))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%w: decode %s %s: %v", domain.ErrUnavailable, method, path, err)
	}
	return nil
}

// cache returns the metadata cache for the current TTL, rebuilding it when the
// TTL changed. A non-positive TTL disables caching.
func (c *Client) cache() *expirable.LRU[string, []domain.FileMeta] {
	ttl := c.cacheTTL()
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if ttl != c.activeTTL {
		c.activeTTL = ttl
		c.metaCache = nil
		if ttl > 0 {
			c.metaCache = expirable.NewLRU[string, []domain.FileMeta](metadataCacheSize, nil, ttl)
		}
	}
	return c.metaCache
}

func (c *Client) invalidate(ownerID string) {
	if cache := c.cache(); cache != nil {
		cache.Remove(ownerID)
	}
}

func (f fileInfo) reference() domain.FileReference {
	id := strings.TrimSpace(f.DriveFileID)
	if id == "" && f.ID != 0 {
		id = fmt.Sprintf("%d", f.ID)
	}
	name := f.OriginalName
	if name == "" {
		name = f.Filename
	}
	return domain.FileReference{
		ID:           id,
		ContentType:  f.FileType,
		OriginalName: name,
	}
}

func validateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return domain.ErrInvalidOwner
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
