package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/marketplace/internal/actor"
	categoryrepo "github.com/smallbiznis/marketplace/internal/category/repository"
	categoryservice "github.com/smallbiznis/marketplace/internal/category/service"
	categorydomain "github.com/smallbiznis/marketplace/internal/category/domain"
	"github.com/smallbiznis/marketplace/internal/config"
	filestoredomain "github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/notification"
	"github.com/smallbiznis/marketplace/internal/product/domain"
	"github.com/smallbiznis/marketplace/internal/product/repository"
	"github.com/smallbiznis/marketplace/internal/retry"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	collaborator = actor.Actor{Username: "ana", Role: actor.RoleCollaborator}
	stranger     = actor.Actor{Username: "bruno", Role: actor.RoleCollaborator}
	admin        = actor.Actor{Username: "reviewer", Role: actor.RoleAdmin}
)

// fakeGateway is an in-memory file store. Failure knobs are counted down per
// call; a negative value fails forever.
type fakeGateway struct {
	mu sync.Mutex

	seq       int
	files     map[string][]filestoredomain.FileReference // owner -> permanent
	staged    map[string][]filestoredomain.StagingEntry
	deleted   []string
	folders   []string
	discarded []string
	calls     map[string]int

	uploadFail   map[string]bool // filename -> fail
	promoteFail  int
	discardFail  int
	deleteFail   map[string]int // file id -> remaining failures
	folderFail   int
	metadataFail bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		files:      map[string][]filestoredomain.FileReference{},
		staged:     map[string][]filestoredomain.StagingEntry{},
		calls:      map[string]int{},
		uploadFail: map[string]bool{},
		deleteFail: map[string]int{},
	}
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func consume(n *int) bool {
	if *n == 0 {
		return false
	}
	if *n > 0 {
		*n--
	}
	return true
}

func (g *fakeGateway) Upload(ctx context.Context, file filestoredomain.FileUpload, ownerID string, kind filestoredomain.Kind) (filestoredomain.FileReference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["upload"]++
	if g.uploadFail[file.Filename] {
		return filestoredomain.FileReference{}, filestoredomain.ErrUnavailable
	}
	g.seq++
	ref := filestoredomain.FileReference{
		ID:           fmt.Sprintf("f%d", g.seq),
		ContentType:  file.ContentType,
		OriginalName: file.Filename,
	}
	g.files[ownerID] = append(g.files[ownerID], ref)
	return ref, nil
}

func (g *fakeGateway) UploadStaged(ctx context.Context, file filestoredomain.FileUpload, ownerID string) (filestoredomain.StagingEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["upload_staged"]++
	if g.uploadFail[file.Filename] {
		return filestoredomain.StagingEntry{}, filestoredomain.ErrUnavailable
	}
	g.seq++
	entry := filestoredomain.StagingEntry{
		StagingID:    fmt.Sprintf("s%d", g.seq),
		OwnerID:      ownerID,
		ContentType:  file.ContentType,
		OriginalName: file.Filename,
	}
	g.staged[ownerID] = append(g.staged[ownerID], entry)
	return entry, nil
}

// PromoteStaging commits staged entries and returns the owner's full set.
func (g *fakeGateway) PromoteStaging(ctx context.Context, ownerID string) ([]filestoredomain.FileReference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["promote"]++
	if consume(&g.promoteFail) {
		return nil, filestoredomain.ErrUnavailable
	}
	for _, entry := range g.staged[ownerID] {
		g.seq++
		g.files[ownerID] = append(g.files[ownerID], filestoredomain.FileReference{
			ID:           fmt.Sprintf("p%d", g.seq),
			ContentType:  entry.ContentType,
			OriginalName: entry.OriginalName,
		})
	}
	delete(g.staged, ownerID)
	return append([]filestoredomain.FileReference{}, g.files[ownerID]...), nil
}

func (g *fakeGateway) DiscardStaging(ctx context.Context, ownerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["discard"]++
	if consume(&g.discardFail) {
		return filestoredomain.ErrUnavailable
	}
	delete(g.staged, ownerID)
	g.discarded = append(g.discarded, ownerID)
	return nil
}

func (g *fakeGateway) DeleteFile(ctx context.Context, ownerID string, ref filestoredomain.FileReference) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["delete_file"]++
	if n, ok := g.deleteFail[ref.ID]; ok && consume(&n) {
		g.deleteFail[ref.ID] = n
		return filestoredomain.ErrUnavailable
	}
	for owner, refs := range g.files {
		kept := refs[:0]
		for _, r := range refs {
			if r.ID != ref.ID {
				kept = append(kept, r)
			}
		}
		g.files[owner] = kept
	}
	g.deleted = append(g.deleted, ref.ID)
	return nil
}

func (g *fakeGateway) DeleteFolder(ctx context.Context, ownerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["delete_folder"]++
	if consume(&g.folderFail) {
		return filestoredomain.ErrUnavailable
	}
	delete(g.files, ownerID)
	delete(g.staged, ownerID)
	g.folders = append(g.folders, ownerID)
	return nil
}

func (g *fakeGateway) ListMetadata(ctx context.Context, ownerID string) ([]filestoredomain.FileMeta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["list_metadata"]++
	if g.metadataFail {
		return nil, filestoredomain.ErrUnavailable
	}
	metas := make([]filestoredomain.FileMeta, 0, len(g.files[ownerID]))
	for _, ref := range g.files[ownerID] {
		metas = append(metas, filestoredomain.FileMeta{Reference: ref, Size: 1})
	}
	return metas, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SubmittedForReview(ctx context.Context, s notification.Submission) error {
	return m.Called(s).Error(0)
}

func (m *mockNotifier) Approved(ctx context.Context, d notification.Decision) error {
	return m.Called(d).Error(0)
}

func (m *mockNotifier) Rejected(ctx context.Context, d notification.Decision) error {
	return m.Called(d).Error(0)
}

type harness struct {
	svc      *Service
	db       *gorm.DB
	repo     domain.Repository
	gateway  *fakeGateway
	notifier *mockNotifier
	saga     *config.SagaConfigHolder
}

func setup(t *testing.T) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:product_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Product{}, &categorydomain.Category{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	gw := newFakeGateway()
	notifier := &mockNotifier{}
	notifier.On("SubmittedForReview", mock.Anything).Return(nil).Maybe()
	notifier.On("Approved", mock.Anything).Return(nil).Maybe()
	notifier.On("Rejected", mock.Anything).Return(nil).Maybe()

	saga := config.NewStaticSagaConfigHolder(config.DefaultSagaConfig())
	repo := repository.Provide()
	categories := categoryservice.New(categoryservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: categoryrepo.Provide()})

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repo,
		Gateway:    gw,
		Retry:      retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, zap.NewNop()),
		Saga:       saga,
		Categories: categories,
		Notifier:   notifier,
		Config:     config.Config{FileService: config.FileServiceConfig{BaseURL: "http://files.local/"}},
	}).(*Service)

	return &harness{svc: svc, db: db, repo: repo, gateway: gw, notifier: notifier, saga: saga}
}

func upload(name, contentType string) filestoredomain.FileUpload {
	body := []byte("content of " + name)
	return filestoredomain.FileUpload{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(body)),
		Content:     bytes.NewReader(body),
	}
}

func (h *harness) stored(t *testing.T, id string) *domain.Product {
	t.Helper()
	productID, err := snowflake.ParseString(id)
	require.NoError(t, err)
	p, err := h.repo.FindByID(context.Background(), h.db, productID.Int64())
	require.NoError(t, err)
	return p
}

func (h *harness) create(t *testing.T, primary, authorized []filestoredomain.FileUpload) *domain.View {
	t.Helper()
	view, err := h.svc.Create(context.Background(), collaborator, domain.CreateRequest{
		Name:       "Panel acústico",
		Price:      120.5,
		Categories: []string{"Acústica"},
	}, primary, authorized)
	require.NoError(t, err)
	return view
}

func fileIDs(refs domain.FileRefs) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ID)
	}
	return out
}
