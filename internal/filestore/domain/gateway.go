package domain

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Kind tags an upload with the list it is attached to on the owning product.
type Kind string

const (
	KindPrimaryImage   Kind = "primary_image"
	KindAuthorizedFile Kind = "authorized_file"
)

// FileReference is a permanent handle issued by the remote file store.
type FileReference struct {
	ID           string `json:"id"`
	ContentType  string `json:"content_type"`
	OriginalName string `json:"original_name"`
}

// IsImage reports whether the referenced object is an image.
func (r FileReference) IsImage() bool {
	return IsImageContentType(r.ContentType)
}

// Extension returns the lower-cased extension of the original name without the dot.
func (r FileReference) Extension() string {
	return ExtensionOf(r.OriginalName)
}

// FileMeta is one entry of a remote metadata listing.
type FileMeta struct {
	Reference   FileReference `json:"reference"`
	Size        int64         `json:"size"`
	DownloadURI string        `json:"download_uri,omitempty"`
}

// StagingEntry is a staged upload that has no permanent identity yet.
type StagingEntry struct {
	StagingID    string `json:"staging_id"`
	OwnerID      string `json:"owner_id"`
	ContentType  string `json:"content_type"`
	OriginalName string `json:"original_name"`
}

// FileUpload is a single file submitted by a caller.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Uploader    string
	Content     io.Reader
}

// Empty reports whether the upload carries no content.
func (f FileUpload) Empty() bool {
	return f.Content == nil || f.Size == 0
}

// Gateway is the client side of the external file-storage service.
type Gateway interface {
	Upload(ctx context.Context, file FileUpload, ownerID string, kind Kind) (FileReference, error)
	UploadStaged(ctx context.Context, file FileUpload, ownerID string) (StagingEntry, error)
	PromoteStaging(ctx context.Context, ownerID string) ([]FileReference, error)
	DiscardStaging(ctx context.Context, ownerID string) error
	DeleteFile(ctx context.Context, ownerID string, ref FileReference) error
	DeleteFolder(ctx context.Context, ownerID string) error
	ListMetadata(ctx context.Context, ownerID string) ([]FileMeta, error)
}

var (
	ErrUnavailable   = errors.New("file_store_unavailable")
	ErrRejected      = errors.New("file_store_rejected")
	ErrEmptyUpload   = errors.New("empty_upload")
	ErrInvalidOwner  = errors.New("invalid_owner")
	ErrInvalidFileID = errors.New("invalid_file_id")
)

func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

func ExtensionOf(name string) string {
	ext := filepath.Ext(strings.TrimSpace(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// PartitionByContentType splits references into images and everything else,
// preserving the order of refs.
func PartitionByContentType(refs []FileReference) (images []FileReference, others []FileReference) {
	images = make([]FileReference, 0, len(refs))
	others = make([]FileReference, 0, len(refs))
	for _, ref := range refs {
		if ref.IsImage() {
			images = append(images, ref)
			continue
		}
		others = append(others, ref)
	}
	return images, others
}
