package service

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	filestoredomain "github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/product/domain"
	"go.uber.org/zap"
)

// reconcile builds the outward view of p. Local references decide identity
// and order; the remote listing only feeds the derived fields. A failed
// listing yields a degraded view, never an error.
func (s *Service) reconcile(ctx context.Context, p *domain.Product) domain.View {
	view := s.baseView(p)

	metas, err := s.gateway.ListMetadata(ctx, ownerID(p))
	if err != nil {
		s.metrics.RecordDegradedRead(ctx)
		s.log.Warn("file metadata unavailable, serving degraded view",
			zap.Int64("product_id", p.ID),
			zap.Error(err),
		)
		view.Degraded = true
		return view
	}

	view.FileFormats = fileFormats(metas)
	if len(p.PrimaryImages) == 0 {
		for _, meta := range metas {
			if meta.Reference.IsImage() {
				view.FallbackImages = append(view.FallbackImages, s.fileView(meta.Reference))
			}
		}
	}
	return view
}

func (s *Service) reconcileAll(ctx context.Context, items []domain.Product) []domain.View {
	views := make([]domain.View, 0, len(items))
	for i := range items {
		views = append(views, s.reconcile(ctx, &items[i]))
	}
	return views
}

func (s *Service) baseView(p *domain.Product) domain.View {
	return domain.View{
		ID:              ownerID(p),
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Country:         p.Country,
		Uploader:        p.Uploader,
		Status:          p.Status,
		DecidedBy:       p.DecidedBy,
		DecisionComment: p.DecisionComment,
		Categories:      append([]string{}, p.Categories...),
		Specialties:     append([]string{}, p.Specialties...),
		PrimaryImages:   s.fileViews(p.PrimaryImages),
		AuthorizedFiles: s.fileViews(p.AuthorizedFiles),
		FileFormats:     []string{},
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (s *Service) fileViews(refs domain.FileRefs) []domain.FileView {
	out := make([]domain.FileView, 0, len(refs))
	for _, ref := range refs {
		out = append(out, s.fileView(ref))
	}
	return out
}

func (s *Service) fileView(ref filestoredomain.FileReference) domain.FileView {
	return domain.FileView{
		ID:           ref.ID,
		ContentType:  ref.ContentType,
		OriginalName: ref.OriginalName,
		Extension:    ref.Extension(),
		DownloadURL:  s.downloadURL(ref.ID),
	}
}

func (s *Service) downloadURL(fileID string) string {
	return fmt.Sprintf("%s/api/files/download/%s", s.fileBaseURL, url.PathEscape(fileID))
}

// fileFormats returns the sorted distinct extensions of non-image files.
func fileFormats(metas []filestoredomain.FileMeta) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, meta := range metas {
		if meta.Reference.IsImage() {
			continue
		}
		ext := meta.Reference.Extension()
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
