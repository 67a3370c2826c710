package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/marketplace/internal/actor"
	"github.com/smallbiznis/marketplace/internal/auth"
	"github.com/smallbiznis/marketplace/internal/config"
	"github.com/smallbiznis/marketplace/internal/migration"
	"github.com/smallbiznis/marketplace/internal/observability"
	"github.com/smallbiznis/marketplace/internal/server"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

type testEnv struct {
	app     *fx.App
	httpSrv *httptest.Server
	files   *fileService
	fileSrv *httptest.Server
	users   *httptest.Server
	tokens  *auth.TokenManager
	baseURL string
}

var env *testEnv

// The suite boots the whole application against SQLite and a fake file
// service. It needs cgo for the SQLite driver, so it only runs when
// E2E_ENABLED is set.
func TestMain(m *testing.M) {
	if strings.TrimSpace(os.Getenv("E2E_ENABLED")) == "" {
		fmt.Fprintln(os.Stderr, "skipping e2e suite: E2E_ENABLED not set")
		os.Exit(0)
	}
	gin.SetMode(gin.TestMode)

	dir, err := os.MkdirTemp("", "marketplace-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "create temp dir:", err)
		os.Exit(1)
	}

	env, err = startEnv(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func startEnv(dir string) (*testEnv, error) {
	files := newFileService()
	fileSrv := httptest.NewServer(files.handler())
	users := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.URL.Path)
		writeJSON(w, map[string]string{"username": name, "email": name + "@example.com"})
	}))

	setEnv(map[string]string{
		"ENVIRONMENT":       "test",
		"LOG_LEVEL":         "error",
		"OTEL_ENABLED":      "false",
		"AUTH_JWT_SECRET":   "e2e-secret",
		"DATABASE_TYPE":     "sqlite",
		"DATABASE_NAME":     filepath.Join(dir, "marketplace.db"),
		"FILE_SERVICE_URL":  fileSrv.URL,
		"USERS_SERVICE_URL": users.URL + "/api/users",
		"EMAIL_ENABLED":     "false",
		"REDIS_ENABLED":     "false",
	})

	var (
		engine *gin.Engine
		tokens *auth.TokenManager
	)
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
		server.Module,
		fx.Decorate(func(*config.SagaConfigHolder) *config.SagaConfigHolder {
			saga := config.DefaultSagaConfig()
			saga.Retry.BaseDelay = time.Millisecond
			saga.Metadata.CacheTTL = 0
			return config.NewStaticSagaConfigHolder(saga)
		}),
		fx.Populate(&engine, &tokens),
		fx.NopLogger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		fileSrv.Close()
		users.Close()
		return nil, err
	}

	httpSrv := httptest.NewServer(engine)
	return &testEnv{
		app:     app,
		httpSrv: httpSrv,
		files:   files,
		fileSrv: fileSrv,
		users:   users,
		tokens:  tokens,
		baseURL: httpSrv.URL,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.fileSrv != nil {
		e.fileSrv.Close()
	}
	if e.users != nil {
		e.users.Close()
	}
}

func setEnv(values map[string]string) {
	for k, v := range values {
		_ = os.Setenv(k, v)
	}
}

type upload struct {
	field       string
	name        string
	contentType string
}

type fileEntry struct {
	ID          string `json:"id"`
	DownloadURL string `json:"download_url"`
}

type productView struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	PrimaryImages   []fileEntry `json:"primary_images"`
	AuthorizedFiles []fileEntry `json:"authorized_files"`
	FileFormats     []string    `json:"file_formats"`
}

type productEnvelope struct {
	Data productView `json:"data"`
}

func bearer(t *testing.T, username string, role actor.Role) string {
	t.Helper()
	token, _, err := env.tokens.Issue(username, role)
	require.NoError(t, err)
	return "Bearer " + token
}

func multipartRequest(t *testing.T, method, path, authz string, fields map[string]string, uploads []upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, u := range uploads {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, u.field, u.name))
		header.Set("Content-Type", u.contentType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("content of " + u.name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(method, env.baseURL+path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", authz)
	return req
}

func jsonRequest(t *testing.T, method, path, authz, body string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, env.baseURL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return req
}

func send(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createProduct(t *testing.T, authz, name string) productEnvelope {
	t.Helper()
	var created productEnvelope
	req := multipartRequest(t, http.MethodPost, "/api/products", authz,
		map[string]string{"dto": fmt.Sprintf(`{"nombre":%q,"precioIndividual":120,"categorias":["Acústica"]}`, name)},
		[]upload{
			{field: "fotos", name: "front.png", contentType: "image/png"},
			{field: "archivosAut", name: "cert.pdf", contentType: "application/pdf"},
		},
	)
	require.Equal(t, http.StatusCreated, send(t, req, &created))
	return created
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_SubmitEditApproveDelete(t *testing.T) {
	ana := bearer(t, "ana", actor.RoleCollaborator)
	admin := bearer(t, "reviewer", actor.RoleAdmin)

	created := createProduct(t, ana, "Acoustic panel")
	id := created.Data.ID
	assert.Equal(t, "PENDING", created.Data.Status)
	require.Len(t, created.Data.PrimaryImages, 1)
	require.Len(t, created.Data.AuthorizedFiles, 1)
	assert.Equal(t, []string{"pdf"}, created.Data.FileFormats)
	assert.True(t, strings.HasPrefix(created.Data.PrimaryImages[0].DownloadURL, env.fileSrv.URL+"/api/files/download/"))
	oldImage := created.Data.PrimaryImages[0].ID

	var edited productEnvelope
	req := multipartRequest(t, http.MethodPut, "/api/products/"+id, ana,
		map[string]string{"dto": `{"nombre":"Acoustic panel v2"}`, "keepFotoIds": `[]`},
		[]upload{{field: "fotos", name: "side.png", contentType: "image/png"}},
	)
	require.Equal(t, http.StatusOK, send(t, req, &edited))
	assert.Empty(t, edited.Data.PrimaryImages)
	require.Len(t, edited.Data.AuthorizedFiles, 1)

	var pending struct {
		Data struct {
			Total int64 `json:"total"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, send(t, jsonRequest(t, http.MethodGet, "/api/products/pending", admin, ""), &pending))
	assert.GreaterOrEqual(t, pending.Data.Total, int64(1))

	var approved productEnvelope
	require.Equal(t, http.StatusOK, send(t, jsonRequest(t, http.MethodPut, "/api/products/"+id+"/decision", admin, `{"aprobar":true,"comentario":"looks good"}`), &approved))
	assert.Equal(t, "APPROVED", approved.Data.Status)
	require.Len(t, approved.Data.PrimaryImages, 1)
	assert.NotEqual(t, oldImage, approved.Data.PrimaryImages[0].ID)
	require.Len(t, approved.Data.AuthorizedFiles, 1)

	assert.Equal(t, http.StatusBadRequest, send(t, jsonRequest(t, http.MethodPut, "/api/products/"+id+"/decision", admin, `{"aprobar":false}`), nil))

	require.Equal(t, http.StatusNoContent, send(t, jsonRequest(t, http.MethodDelete, "/api/products/"+id, ana, ""), nil))
	assert.Empty(t, env.files.filesOf(id))
	assert.Equal(t, http.StatusNotFound, send(t, jsonRequest(t, http.MethodGet, "/api/products/"+id, "", ""), nil))
}

func TestE2E_RejectDiscardsStagedFiles(t *testing.T) {
	ana := bearer(t, "ana", actor.RoleCollaborator)
	admin := bearer(t, "reviewer", actor.RoleAdmin)

	id := createProduct(t, ana, "Rejected panel").Data.ID

	req := multipartRequest(t, http.MethodPut, "/api/products/"+id, ana,
		map[string]string{"dto": `{}`},
		[]upload{{field: "archivosAut", name: "extra.pdf", contentType: "application/pdf"}},
	)
	require.Equal(t, http.StatusOK, send(t, req, nil))

	var rejected productEnvelope
	require.Equal(t, http.StatusOK, send(t, jsonRequest(t, http.MethodPut, "/api/products/"+id+"/decision", admin, `{"aprobar":false,"comentario":"incomplete"}`), &rejected))
	assert.Equal(t, "REJECTED", rejected.Data.Status)
	assert.Empty(t, rejected.Data.PrimaryImages)
	assert.Empty(t, rejected.Data.AuthorizedFiles)

	env.files.mu.Lock()
	staged := len(env.files.staged[id])
	env.files.mu.Unlock()
	assert.Zero(t, staged)

	req = multipartRequest(t, http.MethodPut, "/api/products/"+id, ana, map[string]string{"dto": `{"nombre":"again"}`}, nil)
	assert.Equal(t, http.StatusBadRequest, send(t, req, nil))
}

func TestE2E_DeleteKeepsRecordWhenFileStoreIsDown(t *testing.T) {
	ana := bearer(t, "ana", actor.RoleCollaborator)
	id := createProduct(t, ana, "Sticky panel").Data.ID

	env.files.setFailing(true)
	status := send(t, jsonRequest(t, http.MethodDelete, "/api/products/"+id, ana, ""), nil)
	env.files.setFailing(false)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	var view productEnvelope
	require.Equal(t, http.StatusOK, send(t, jsonRequest(t, http.MethodGet, "/api/products/"+id, "", ""), &view))
	assert.Equal(t, id, view.Data.ID)

	require.Equal(t, http.StatusNoContent, send(t, jsonRequest(t, http.MethodDelete, "/api/products/"+id, ana, ""), nil))
}

func TestE2E_OwnershipAndRoles(t *testing.T) {
	ana := bearer(t, "ana", actor.RoleCollaborator)
	bruno := bearer(t, "bruno", actor.RoleCollaborator)

	id := createProduct(t, ana, "Owned panel").Data.ID

	assert.Equal(t, http.StatusForbidden, send(t, jsonRequest(t, http.MethodDelete, "/api/products/"+id, bruno, ""), nil))
	assert.Equal(t, http.StatusForbidden, send(t, jsonRequest(t, http.MethodPut, "/api/products/"+id+"/decision", ana, `{"aprobar":true}`), nil))
	assert.Equal(t, http.StatusUnauthorized, send(t, jsonRequest(t, http.MethodGet, "/api/products/my-products", "", ""), nil))
}
