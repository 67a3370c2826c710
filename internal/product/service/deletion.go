package service

import (
	"context"

	"github.com/smallbiznis/marketplace/internal/actor"
	"github.com/smallbiznis/marketplace/internal/config"
	"github.com/smallbiznis/marketplace/internal/observability/tracing"
	"github.com/smallbiznis/marketplace/internal/product/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Delete removes the product's remote files and then the local record. The
// record and its references are kept whenever any remote deletion ultimately
// fails, so the call can be repeated.
func (s *Service) Delete(ctx context.Context, a actor.Actor, id string) error {
	if err := requireActor(a); err != nil {
		return err
	}
	productID, err := parseID(id)
	if err != nil {
		return err
	}

	cfg := s.saga.Get().Deletion
	ctx, span := tracing.StartSpan(ctx, "product.delete",
		attribute.Int64("product_id", productID),
		attribute.String("mode", cfg.Mode),
	)
	defer span.End()

	release, err := s.acquire(ctx, productID)
	if err != nil {
		return err
	}
	defer release()

	p, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return err
	}
	if p == nil {
		return domain.ErrNotFound
	}
	if !a.Is(p.Uploader) {
		return domain.ErrForbidden
	}

	log := s.log.With(zap.Int64("product_id", p.ID), zap.String("mode", cfg.Mode))

	var cleanupErr error
	if cfg.Mode == config.DeleteModeFolder {
		cleanupErr = s.retry.Do(ctx, "filestore.delete_folder", func(ctx context.Context) error {
			return s.gateway.DeleteFolder(ctx, ownerID(p))
		})
	} else {
		cleanupErr = s.deleteFiles(ctx, p, cfg.Concurrency)
	}
	if cleanupErr != nil {
		s.metrics.RecordDeletion(ctx, cfg.Mode, "gateway_failure")
		log.Error("remote cleanup failed, product kept", zap.Error(cleanupErr))
		return domain.ErrGatewayFailure
	}

	if p.Status == domain.StatusPending {
		err := s.retry.Do(ctx, "filestore.discard_staging", func(ctx context.Context) error {
			return s.gateway.DiscardStaging(ctx, ownerID(p))
		})
		if err != nil {
			log.Warn("discarding staged uploads failed", zap.Error(err))
		}
	}

	if err := s.repo.Delete(ctx, s.db, p.ID); err != nil {
		s.metrics.RecordDeletion(ctx, cfg.Mode, "error")
		return err
	}
	s.metrics.RecordDeletion(ctx, cfg.Mode, "ok")
	log.Info("product deleted", zap.Int("files", len(p.AllFiles())))
	return nil
}

// deleteFiles deletes every attached reference with at most limit calls in
// flight. Each deletion runs under the retry policy.
func (s *Service) deleteFiles(ctx context.Context, p *domain.Product, limit int) error {
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, ref := range p.AllFiles() {
		g.Go(func() error {
			return s.retry.Do(gctx, "filestore.delete_file", func(ctx context.Context) error {
				return s.gateway.DeleteFile(ctx, ownerID(p), ref)
			})
		})
	}
	return g.Wait()
}
