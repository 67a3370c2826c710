package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/marketplace/internal/actor"
	filestoredomain "github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/notification"
	"github.com/smallbiznis/marketplace/internal/observability/tracing"
	"github.com/smallbiznis/marketplace/internal/product/domain"
	"github.com/smallbiznis/marketplace/internal/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	decisionApprove = "approve"
	decisionReject  = "reject"
)

// Decide moves a PENDING product to APPROVED or REJECTED. Approval promotes the
// staged uploads and adopts the committed set as the product's files; if
// promotion cannot be completed nothing is persisted. Rejection discards the
// staged uploads on a best-effort basis and clears the file lists.
func (s *Service) Decide(ctx context.Context, a actor.Actor, req domain.DecideRequest) (*domain.View, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	productID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	decision := decisionReject
	if req.Approve {
		decision = decisionApprove
	}
	ctx, span := tracing.StartSpan(ctx, "product.decide",
		attribute.Int64("product_id", productID),
		attribute.String("decision", decision),
	)
	defer span.End()

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
	if p.Status != domain.StatusPending {
		s.metrics.RecordDecision(ctx, decision, "already_decided")
		return nil, domain.ErrAlreadyDecided
	}

	log := s.log.With(
		zap.Int64("product_id", p.ID),
		zap.String("decision", decision),
		zap.String("decided_by", a.Username),
	)

	decidedBy := strings.TrimSpace(a.Username)
	p.DecidedBy = &decidedBy
	p.DecisionComment = trimmedPtr(req.Comment)

	if req.Approve {
		p.Status = domain.StatusApproved
		committed, err := retry.DoValue(ctx, s.retry, "filestore.promote_staging", func(ctx context.Context) ([]filestoredomain.FileReference, error) {
			return s.gateway.PromoteStaging(ctx, ownerID(p))
		})
		if err != nil {
			s.metrics.RecordDecision(ctx, decision, "gateway_failure")
			log.Error("promotion failed, decision not persisted", zap.Error(err))
			return nil, domain.ErrGatewayFailure
		}
		images, others := filestoredomain.PartitionByContentType(committed)
		p.PrimaryImages = images
		p.AuthorizedFiles = others
	} else {
		p.Status = domain.StatusRejected
		err := s.retry.Do(ctx, "filestore.discard_staging", func(ctx context.Context) error {
			return s.gateway.DiscardStaging(ctx, ownerID(p))
		})
		if err != nil {
			log.Warn("discarding staged uploads failed", zap.Error(err))
		}
		p.PrimaryImages = domain.FileRefs{}
		p.AuthorizedFiles = domain.FileRefs{}
	}

	p.UpdatedAt = s.now()
	if err := s.persist(ctx, p, domain.StatusPending); err != nil {
		s.metrics.RecordDecision(ctx, decision, "conflict")
		return nil, err
	}
	s.metrics.RecordDecision(ctx, decision, "ok")
	log.Info("product decided",
		zap.String("status", string(p.Status)),
		zap.Int("primary_images", len(p.PrimaryImages)),
		zap.Int("authorized_files", len(p.AuthorizedFiles)),
	)

	s.notifyDecision(ctx, p)

	view := s.reconcile(ctx, p)
	return &view, nil
}

func (s *Service) notifyDecision(ctx context.Context, p *domain.Product) {
	if s.notifier == nil {
		return
	}
	d := notification.Decision{
		ProductID:   ownerID(p),
		ProductName: p.Name,
		Uploader:    p.Uploader,
		Comment:     ptrValue(p.DecisionComment),
	}
	if len(p.PrimaryImages) > 0 {
		d.ImageURL = s.downloadURL(p.PrimaryImages[0].ID)
	}

	nctx, cancel := detached(ctx)
	defer cancel()

	var err error
	if p.Status == domain.StatusApproved {
		err = s.notifier.Approved(nctx, d)
	} else {
		err = s.notifier.Rejected(nctx, d)
	}
	if err != nil {
		s.log.Warn("decision notification failed", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}
