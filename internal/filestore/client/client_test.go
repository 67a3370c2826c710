package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler, cacheTTL time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", MetadataCacheTTL: cacheTTL}, func(ctx context.Context) (string, error) {
		return "svc-token", nil
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func upload(body string) domain.FileUpload {
	return domain.FileUpload{
		Filename:    "photo.png",
		ContentType: "image/png",
		Size:        int64(len(body)),
		Uploader:    "alice",
		Content:     strings.NewReader(body),
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "  "}, nil, nil)
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/files/public/42", r.URL.Path)
		assert.Equal(t, "product", r.URL.Query().Get("type"))
		assert.Equal(t, "primary_image", r.URL.Query().Get("kind"))
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "alice", r.FormValue("uploader"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "pixels", string(content))
		assert.Equal(t, "photo.png", hdr.Filename)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           7,
			"driveFileId":  "drv-1",
			"filename":     "stored.png",
			"originalName": "photo.png",
			"fileType":     "image/png",
			"size":         6,
		})
	}), 0)

	ref, err := c.Upload(context.Background(), upload("pixels"), "42", domain.KindPrimaryImage)
	require.NoError(t, err)
	assert.Equal(t, domain.FileReference{ID: "drv-1", ContentType: "image/png", OriginalName: "photo.png"}, ref)
}

func TestUpload_EmptyAndInvalidOwner(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}), 0)

	_, err := c.Upload(context.Background(), domain.FileUpload{Filename: "x"}, "42", domain.KindPrimaryImage)
	assert.ErrorIs(t, err, domain.ErrEmptyUpload)

	_, err = c.Upload(context.Background(), upload("x"), " ", domain.KindPrimaryImage)
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		permanent bool
	}{
		{name: "server error", status: http.StatusBadGateway, wantErr: domain.ErrUnavailable},
		{name: "throttled", status: http.StatusTooManyRequests, wantErr: domain.ErrUnavailable},
		{name: "bad request", status: http.StatusBadRequest, wantErr: domain.ErrRejected, permanent: true},
		{name: "forbidden", status: http.StatusForbidden, wantErr: domain.ErrRejected, permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "internal detail", tt.status)
			}), 0)

			_, err := c.PromoteStaging(context.Background(), "42")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var perm *backoff.PermanentError
			assert.Equal(t, tt.permanent, errors.As(err, &perm))
		})
	}
}

func TestPromoteStaging(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/files/staging/42/promote", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"driveFileId": "a", "fileType": "image/jpeg", "originalName": "a.jpg"},
			{"driveFileId": "b", "fileType": "application/pdf", "originalName": "b.pdf"},
		})
	}), 0)

	refs, err := c.PromoteStaging(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "a", refs[0].ID)
	assert.True(t, refs[0].IsImage())
	assert.Equal(t, "pdf", refs[1].Extension())
}

func TestUploadStaged(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/staging/42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"stagingId":    "stg-1",
			"originalName": "photo.png",
			"fileType":     "image/png",
		})
	}), 0)

	entry, err := c.UploadStaged(context.Background(), upload("pixels"), "42")
	require.NoError(t, err)
	assert.Equal(t, "stg-1", entry.StagingID)
	assert.Equal(t, "42", entry.OwnerID)
}

func TestDeletes_NotFoundIsSuccess(t *testing.T) {
	var paths []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}), 0)

	require.NoError(t, c.DeleteFile(context.Background(), "42", domain.FileReference{ID: "drv-1"}))
	require.NoError(t, c.DeleteFolder(context.Background(), "42"))
	require.NoError(t, c.DiscardStaging(context.Background(), "42"))

	assert.Equal(t, []string{"/api/files/drv-1", "/api/files/folder/42", "/api/files/staging/42"}, paths)
	assert.ErrorIs(t, c.DeleteFile(context.Background(), "42", domain.FileReference{}), domain.ErrInvalidFileID)
	assert.ErrorIs(t, c.DeleteFile(context.Background(), " ", domain.FileReference{ID: "drv-1"}), domain.ErrInvalidOwner)
}

func TestListMetadata_CachedAndInvalidated(t *testing.T) {
	var calls atomic.Int32
	var fileDeleted atomic.Bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/files/entity/42":
			calls.Add(1)
			listing := []map[string]any{}
			if !fileDeleted.Load() {
				listing = append(listing, map[string]any{
					"driveFileId": "a", "fileType": "image/png", "originalName": "a.png", "size": 10, "downloadUri": "/dl/a",
				})
			}
			_ = json.NewEncoder(w).Encode(listing)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/files/a":
			fileDeleted.Store(true)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}), time.Minute)

	metas, err := c.ListMetadata(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, int64(10), metas[0].Size)
	assert.Equal(t, "/dl/a", metas[0].DownloadURI)

	_, err = c.ListMetadata(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, c.DeleteFolder(context.Background(), "42"))
	metas, err = c.ListMetadata(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, c.DeleteFile(context.Background(), "42", metas[0].Reference))
	metas, err = c.ListMetadata(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, metas)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListMetadata_CacheTTLFollowsSource(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	var ttl atomic.Int64
	c, err := New(Config{
		BaseURL:                srv.URL,
		MetadataCacheTTLSource: func() time.Duration { return time.Duration(ttl.Load()) },
	}, nil, zap.NewNop())
	require.NoError(t, err)

	list := func() {
		_, err := c.ListMetadata(context.Background(), "42")
		require.NoError(t, err)
	}

	list()
	list()
	assert.Equal(t, int32(2), calls.Load(), "zero ttl disables caching")

	ttl.Store(int64(time.Minute))
	list()
	list()
	assert.Equal(t, int32(3), calls.Load())

	ttl.Store(0)
	list()
	assert.Equal(t, int32(4), calls.Load())
}

func TestTokenProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.ListMetadata(context.Background(), "42")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
