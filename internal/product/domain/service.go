package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/marketplace/internal/actor"
	filestoredomain "github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, a actor.Actor, req CreateRequest, primary, authorized []filestoredomain.FileUpload) (*View, error)
	Update(ctx context.Context, a actor.Actor, req UpdateRequest, primary, authorized []filestoredomain.FileUpload) (*View, error)
	Decide(ctx context.Context, a actor.Actor, req DecideRequest) (*View, error)
	Delete(ctx context.Context, a actor.Actor, id string) error
	GetView(ctx context.Context, id string) (*View, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	ListPending(ctx context.Context, page pagination.Page) (*ListResponse, error)
	ListByUploader(ctx context.Context, username string) ([]View, error)
}

type CreateRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Price       float64  `json:"price"`
	Country     *string  `json:"country"`
	Categories  []string `json:"categories"`
	Specialties []string `json:"specialties"`
}

// UpdateRequest carries a partial edit. Nil fields are left unchanged. A nil
// keep list keeps every stored reference of that kind.
type UpdateRequest struct {
	ID          string   `json:"-"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Country     *string  `json:"country"`
	Categories  []string `json:"categories"`
	Specialties []string `json:"specialties"`

	KeepPrimaryIDs    []string `json:"-"`
	KeepAuthorizedIDs []string `json:"-"`
}

type DecideRequest struct {
	ID      string  `json:"-"`
	Approve bool    `json:"approve"`
	Comment *string `json:"comment"`
}

type ListRequest struct {
	Status Status
	pagination.Page
}

// FileView is one attached file as served to callers.
type FileView struct {
	ID           string `json:"id"`
	ContentType  string `json:"content_type"`
	OriginalName string `json:"original_name"`
	Extension    string `json:"extension,omitempty"`
	DownloadURL  string `json:"download_url"`
}

// View is the outward representation of a product. Derived fields come from a
// best-effort remote listing; Degraded is set when that listing failed.
type View struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     *string    `json:"description,omitempty"`
	Price           float64    `json:"price"`
	Country         *string    `json:"country,omitempty"`
	Uploader        string     `json:"uploader"`
	Status          Status     `json:"status"`
	DecidedBy       *string    `json:"decided_by,omitempty"`
	DecisionComment *string    `json:"decision_comment,omitempty"`
	Categories      []string   `json:"categories"`
	Specialties     []string   `json:"specialties"`
	PrimaryImages   []FileView `json:"primary_images"`
	AuthorizedFiles []FileView `json:"authorized_files"`
	FileFormats     []string   `json:"file_formats"`
	FallbackImages  []FileView `json:"fallback_images,omitempty"`
	Degraded        bool       `json:"degraded"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type ListResponse struct {
	Items []View `json:"items"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Total int64  `json:"total"`
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrInvalidActor      = errors.New("invalid_actor")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrAlreadyDecided    = errors.New("already_decided")
	ErrApprovedImmutable = errors.New("approved_product_immutable")
	ErrNotEditable       = errors.New("product_not_editable")
	ErrGatewayFailure    = errors.New("file_store_failure")
	ErrConflict          = errors.New("conflict")
)

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case "":
		return "", nil
	case StatusPending, StatusApproved, StatusRejected:
		return Status(raw), nil
	default:
		return "", ErrInvalidStatus
	}
}
