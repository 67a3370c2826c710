package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketplace/internal/actor"
	categorydomain "github.com/smallbiznis/marketplace/internal/category/domain"
	"github.com/smallbiznis/marketplace/internal/config"
	filestoredomain "github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/lock"
	"github.com/smallbiznis/marketplace/internal/notification"
	"github.com/smallbiznis/marketplace/internal/observability/metrics"
	"github.com/smallbiznis/marketplace/internal/product/domain"
	"github.com/smallbiznis/marketplace/internal/retry"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListSize    = 50
	defaultPendingSize = 50
	notifyTimeout      = 15 * time.Second
)

// Notifier delivers review emails. Implemented by *notification.Notifier.
type Notifier interface {
	SubmittedForReview(ctx context.Context, s notification.Submission) error
	Approved(ctx context.Context, d notification.Decision) error
	Rejected(ctx context.Context, d notification.Decision) error
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Gateway    filestoredomain.Gateway
	Retry      *retry.Policy
	Saga       *config.SagaConfigHolder
	Categories categorydomain.Service
	Notifier   Notifier
	Config     config.Config
	Lock       *lock.ProductLock `optional:"true"`
	Metrics    *metrics.Metrics  `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	genID       *snowflake.Node
	gateway     filestoredomain.Gateway
	retry       *retry.Policy
	saga        *config.SagaConfigHolder
	categories  categorydomain.Service
	notifier    Notifier
	lock        *lock.ProductLock
	metrics     *metrics.Metrics
	fileBaseURL string
	now         func() time.Time
}

func New(p Params) domain.Service {
	saga := p.Saga
	if saga == nil {
		saga = config.NewStaticSagaConfigHolder(config.DefaultSagaConfig())
	}
	policy := p.Retry
	if policy == nil {
		policy = retry.New(retry.DefaultConfig(), p.Log)
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("product.service"),
		repo:        p.Repo,
		genID:       p.GenID,
		gateway:     p.Gateway,
		retry:       policy,
		saga:        saga,
		categories:  p.Categories,
		notifier:    p.Notifier,
		lock:        p.Lock,
		metrics:     p.Metrics,
		fileBaseURL: strings.TrimRight(strings.TrimSpace(p.Config.FileService.BaseURL), "/"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetView(ctx context.Context, id string) (*domain.View, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := s.reconcile(ctx, p)
	return &view, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	switch req.Status {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		return nil, domain.ErrInvalidStatus
	}
	return s.list(ctx, domain.ListFilter{Status: req.Status}, req.Page.Normalize(defaultListSize))
}

func (s *Service) ListPending(ctx context.Context, page pagination.Page) (*domain.ListResponse, error) {
	return s.list(ctx, domain.ListFilter{Status: domain.StatusPending}, page.Normalize(defaultPendingSize))
}

func (s *Service) ListByUploader(ctx context.Context, username string) ([]domain.View, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrInvalidActor
	}
	items, _, err := s.repo.List(ctx, s.db, domain.ListFilter{Uploader: username})
	if err != nil {
		return nil, err
	}
	return s.reconcileAll(ctx, items), nil
}

func (s *Service) list(ctx context.Context, filter domain.ListFilter, page pagination.Page) (*domain.ListResponse, error) {
	filter.Offset = page.Offset()
	filter.Limit = page.Limit()
	items, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	return &domain.ListResponse{
		Items: s.reconcileAll(ctx, items),
		Page:  page.Page,
		Size:  page.Size,
		Total: total,
	}, nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Product, error) {
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// acquire takes the advisory lock for productID. A held lock is a conflict; an
// unreachable lock backend is logged and the call proceeds, relying on the
// conditional update.
func (s *Service) acquire(ctx context.Context, productID int64) (func(), error) {
	release, err := s.lock.Acquire(ctx, productID)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, lock.ErrLocked) {
		return release, domain.ErrConflict
	}
	s.log.Warn("product lock unavailable, continuing without it",
		zap.Int64("product_id", productID),
		zap.Error(err),
	)
	return func() {}, nil
}

// persist writes p only if its stored status is still expected.
func (s *Service) persist(ctx context.Context, p *domain.Product, expected domain.Status) error {
	ok, err := s.repo.Update(ctx, s.db, p, expected)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrConflict
	}
	return nil
}

// detached returns a context for best-effort side effects that must outlive
// the request.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
}

func parseID(id string) (int64, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed.Int64() <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed.Int64(), nil
}

func requireActor(a actor.Actor) error {
	if !a.Valid() {
		return domain.ErrInvalidActor
	}
	return nil
}

func ownerID(p *domain.Product) string {
	return snowflake.ID(p.ID).String()
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func ptrValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
