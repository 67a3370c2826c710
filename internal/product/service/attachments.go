package service

import (
	"context"
	"math"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/marketplace/internal/actor"
	categorydomain "github.com/smallbiznis/marketplace/internal/category/domain"
	filestoredomain "github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/notification"
	"github.com/smallbiznis/marketplace/internal/product/domain"
	"go.uber.org/zap"
)

func (s *Service) Create(ctx context.Context, a actor.Actor, req domain.CreateRequest, primary, authorized []filestoredomain.FileUpload) (*domain.View, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if err := validatePrice(req.Price); err != nil {
		return nil, err
	}

	categories, err := s.categories.Resolve(ctx, categorydomain.KindCategory, req.Categories)
	if err != nil {
		return nil, err
	}
	specialties, err := s.categories.Resolve(ctx, categorydomain.KindSpecialty, req.Specialties)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &domain.Product{
		ID:          s.genID.Generate().Int64(),
		Name:        name,
		Description: trimmedPtr(req.Description),
		Price:       req.Price,
		Country:     trimmedPtr(req.Country),
		Uploader:    strings.TrimSpace(a.Username),
		Status:      domain.StatusPending,
		Categories:  categories,
		Specialties: specialties,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, s.db, p); err != nil {
		return nil, err
	}

	log := s.log.With(zap.Int64("product_id", p.ID), zap.String("uploader", p.Uploader))

	p.PrimaryImages = s.uploadAll(ctx, p, a, primary, filestoredomain.KindPrimaryImage)
	p.AuthorizedFiles = s.uploadAll(ctx, p, a, authorized, filestoredomain.KindAuthorizedFile)
	attached := len(p.PrimaryImages)+len(p.AuthorizedFiles) > 0
	if attached {
		p.UpdatedAt = s.now()
		if err := s.repo.UpdateFiles(ctx, s.db, p); err != nil {
			return nil, err
		}
	}
	s.metrics.RecordProductCreated(ctx, attached)
	log.Info("product created",
		zap.Int("primary_images", len(p.PrimaryImages)),
		zap.Int("authorized_files", len(p.AuthorizedFiles)),
	)

	s.notifySubmitted(ctx, p)

	view := s.reconcile(ctx, p)
	return &view, nil
}

// uploadAll uploads every non-empty file permanently. Failed uploads are
// logged and skipped.
func (s *Service) uploadAll(ctx context.Context, p *domain.Product, a actor.Actor, files []filestoredomain.FileUpload, kind filestoredomain.Kind) domain.FileRefs {
	refs := make(domain.FileRefs, 0, len(files))
	for _, file := range files {
		if file.Empty() {
			continue
		}
		file.Uploader = a.Username
		ref, err := s.gateway.Upload(ctx, file, ownerID(p), kind)
		if err != nil {
			s.metrics.RecordUploadFailure(ctx, string(kind))
			s.log.Warn("upload failed, skipping file",
				zap.Int64("product_id", p.ID),
				zap.String("kind", string(kind)),
				zap.String("filename", file.Filename),
				zap.Error(err),
			)
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func (s *Service) Update(ctx context.Context, a actor.Actor, req domain.UpdateRequest, primary, authorized []filestoredomain.FileUpload) (*domain.View, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	productID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	if !a.Is(p.Uploader) {
		return nil, domain.ErrForbidden
	}

	switch p.Status {
	case domain.StatusRejected:
		return nil, domain.ErrNotEditable
	case domain.StatusApproved:
		if err := s.applyApprovedEdit(p, req, primary, authorized); err != nil {
			return nil, err
		}
	default:
		if err := s.applyPendingEdit(ctx, p, a, req, primary, authorized); err != nil {
			return nil, err
		}
	}

	expected := p.Status
	p.UpdatedAt = s.now()
	if err := s.persist(ctx, p, expected); err != nil {
		return nil, err
	}
	s.log.Info("product updated", zap.Int64("product_id", p.ID), zap.String("status", string(p.Status)))

	view := s.reconcile(ctx, p)
	return &view, nil
}

// applyApprovedEdit allows only name, description and price to change.
func (s *Service) applyApprovedEdit(p *domain.Product, req domain.UpdateRequest, primary, authorized []filestoredomain.FileUpload) error {
	if hasContent(primary) || hasContent(authorized) {
		return domain.ErrApprovedImmutable
	}
	if dropsReferences(p.PrimaryImages, req.KeepPrimaryIDs) || dropsReferences(p.AuthorizedFiles, req.KeepAuthorizedIDs) {
		return domain.ErrApprovedImmutable
	}
	if req.Country != nil && !strings.EqualFold(strings.TrimSpace(*req.Country), ptrValue(p.Country)) {
		return domain.ErrApprovedImmutable
	}
	if req.Categories != nil && !sameNames(req.Categories, p.Categories) {
		return domain.ErrApprovedImmutable
	}
	if req.Specialties != nil && !sameNames(req.Specialties, p.Specialties) {
		return domain.ErrApprovedImmutable
	}
	return applyBasics(p, req)
}

// applyPendingEdit stages new files, releases references missing from the keep
// lists and applies field edits. Staged files are attached on approval.
func (s *Service) applyPendingEdit(ctx context.Context, p *domain.Product, a actor.Actor, req domain.UpdateRequest, primary, authorized []filestoredomain.FileUpload) error {
	if err := applyBasics(p, req); err != nil {
		return err
	}
	if req.Country != nil {
		p.Country = trimmedPtr(req.Country)
	}
	if req.Categories != nil {
		names, err := s.categories.Resolve(ctx, categorydomain.KindCategory, req.Categories)
		if err != nil {
			return err
		}
		p.Categories = names
	}
	if req.Specialties != nil {
		names, err := s.categories.Resolve(ctx, categorydomain.KindSpecialty, req.Specialties)
		if err != nil {
			return err
		}
		p.Specialties = names
	}

	s.stageAll(ctx, p, a, primary, filestoredomain.KindPrimaryImage)
	s.stageAll(ctx, p, a, authorized, filestoredomain.KindAuthorizedFile)

	keptPrimary, droppedPrimary := partitionKeep(p.PrimaryImages, req.KeepPrimaryIDs)
	keptAuthorized, droppedAuthorized := partitionKeep(p.AuthorizedFiles, req.KeepAuthorizedIDs)
	for _, ref := range append(droppedPrimary, droppedAuthorized...) {
		s.releaseFile(ctx, p, ref)
	}
	p.PrimaryImages = keptPrimary
	p.AuthorizedFiles = keptAuthorized
	return nil
}

func (s *Service) stageAll(ctx context.Context, p *domain.Product, a actor.Actor, files []filestoredomain.FileUpload, kind filestoredomain.Kind) {
	for _, file := range files {
		if file.Empty() {
			continue
		}
		file.Uploader = a.Username
		entry, err := s.gateway.UploadStaged(ctx, file, ownerID(p))
		if err != nil {
			s.metrics.RecordUploadFailure(ctx, string(kind))
			s.log.Warn("staged upload failed, skipping file",
				zap.Int64("product_id", p.ID),
				zap.String("kind", string(kind)),
				zap.String("filename", file.Filename),
				zap.Error(err),
			)
			continue
		}
		s.log.Debug("file staged",
			zap.Int64("product_id", p.ID),
			zap.String("staging_id", entry.StagingID),
		)
	}
}

// releaseFile deletes a reference that is no longer kept. Failure leaves an
// orphan on the remote side and is only logged.
func (s *Service) releaseFile(ctx context.Context, p *domain.Product, ref filestoredomain.FileReference) {
	err := s.retry.Do(ctx, "filestore.delete_file", func(ctx context.Context) error {
		return s.gateway.DeleteFile(ctx, ownerID(p), ref)
	})
	if err != nil {
		s.log.Warn("failed to delete dropped file",
			zap.Int64("product_id", p.ID),
			zap.String("file_id", ref.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) notifySubmitted(ctx context.Context, p *domain.Product) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := detached(ctx)
	defer cancel()
	err := s.notifier.SubmittedForReview(nctx, notification.Submission{
		ProductID:   ownerID(p),
		ProductName: p.Name,
		Description: ptrValue(p.Description),
		Uploader:    p.Uploader,
	})
	if err != nil {
		s.log.Warn("review notification failed", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}

func applyBasics(p *domain.Product, req domain.UpdateRequest) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ErrInvalidName
		}
		p.Name = name
	}
	if req.Price != nil {
		if err := validatePrice(*req.Price); err != nil {
			return err
		}
		p.Price = *req.Price
	}
	if req.Description != nil {
		p.Description = trimmedPtr(req.Description)
	}
	return nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return domain.ErrInvalidPrice
	}
	return nil
}

// partitionKeep splits stored into references listed in keep and the rest.
// Only stored references can survive, so unknown ids in keep are ignored. A
// nil keep list keeps everything.
func partitionKeep(stored domain.FileRefs, keep []string) (kept, dropped domain.FileRefs) {
	kept = make(domain.FileRefs, 0, len(stored))
	dropped = make(domain.FileRefs, 0)
	if keep == nil {
		return append(kept, stored...), dropped
	}
	wanted := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		wanted[strings.TrimSpace(id)] = struct{}{}
	}
	for _, ref := range stored {
		if _, ok := wanted[ref.ID]; ok {
			kept = append(kept, ref)
			continue
		}
		dropped = append(dropped, ref)
	}
	return kept, dropped
}

func dropsReferences(stored domain.FileRefs, keep []string) bool {
	_, dropped := partitionKeep(stored, keep)
	return len(dropped) > 0
}

func hasContent(files []filestoredomain.FileUpload) bool {
	for _, f := range files {
		if !f.Empty() {
			return true
		}
	}
	return false
}

// sameNames compares two name sets by slug, ignoring order and duplicates.
func sameNames(a, b []string) bool {
	set := func(names []string) map[string]struct{} {
		out := make(map[string]struct{}, len(names))
		for _, n := range names {
			if key := slug.Make(strings.TrimSpace(n)); key != "" {
				out[key] = struct{}{}
			}
		}
		return out
	}
	left, right := set(a), set(b)
	if len(left) != len(right) {
		return false
	}
	for k := range left {
		if _, ok := right[k]; !ok {
			return false
		}
	}
	return true
}
