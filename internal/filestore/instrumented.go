package filestore

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/observability/metrics"
	"github.com/smallbiznis/marketplace/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const metricsTarget = "filestore"

// instrumented wraps a Gateway with a span and a remote-call sample per call.
type instrumented struct {
	next    domain.Gateway
	metrics *metrics.RemoteMetrics
}

// Instrument decorates gw. A nil m still produces spans.
func Instrument(gw domain.Gateway, m *metrics.RemoteMetrics) domain.Gateway {
	return &instrumented{next: gw, metrics: m}
}

func (g *instrumented) Upload(ctx context.Context, file domain.FileUpload, ownerID string, kind domain.Kind) (domain.FileReference, error) {
	ctx, done := g.start(ctx, "upload", ownerID, attribute.String("kind", string(kind)))
	ref, err := g.next.Upload(ctx, file, ownerID, kind)
	done(err)
	return ref, err
}

func (g *instrumented) UploadStaged(ctx context.Context, file domain.FileUpload, ownerID string) (domain.StagingEntry, error) {
	ctx, done := g.start(ctx, "upload_staged", ownerID)
	entry, err := g.next.UploadStaged(ctx, file, ownerID)
	done(err)
	return entry, err
}

func (g *instrumented) PromoteStaging(ctx context.Context, ownerID string) ([]domain.FileReference, error) {
	ctx, done := g.start(ctx, "promote_staging", ownerID)
	refs, err := g.next.PromoteStaging(ctx, ownerID)
	done(err)
	return refs, err
}

func (g *instrumented) DiscardStaging(ctx context.Context, ownerID string) error {
	ctx, done := g.start(ctx, "discard_staging", ownerID)
	err := g.next.DiscardStaging(ctx, ownerID)
	done(err)
	return err
}

func (g *instrumented) DeleteFile(ctx context.Context, ownerID string, ref domain.FileReference) error {
	ctx, done := g.start(ctx, "delete_file", ownerID, attribute.String("file_id", ref.ID))
	err := g.next.DeleteFile(ctx, ownerID, ref)
	done(err)
	return err
}

func (g *instrumented) DeleteFolder(ctx context.Context, ownerID string) error {
	ctx, done := g.start(ctx, "delete_folder", ownerID)
	err := g.next.DeleteFolder(ctx, ownerID)
	done(err)
	return err
}

func (g *instrumented) ListMetadata(ctx context.Context, ownerID string) ([]domain.FileMeta, error) {
	ctx, done := g.start(ctx, "list_metadata", ownerID)
	metas, err := g.next.ListMetadata(ctx, ownerID)
	done(err)
	return metas, err
}

func (g *instrumented) start(ctx context.Context, operation, ownerID string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	if ownerID != "" {
		attrs = append(attrs, attribute.String("product_id", ownerID))
	}
	ctx, span := tracing.StartSpan(ctx, "filestore."+operation, attrs...)
	return ctx, func(err error) {
		finishSpan(span, err)
		g.metrics.Observe(metricsTarget, operation, started, err, classify)
	}
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "file store call failed")
	}
	span.End()
}

func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrRejected):
		return "rejected"
	default:
		return ""
	}
}
