package filestore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	domain.Gateway
	err error
}

func (s stubGateway) PromoteStaging(ctx context.Context, ownerID string) ([]domain.FileReference, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.FileReference{{ID: "a"}}, nil
}

func TestInstrument_PassesThrough(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRemoteMetrics(reg, metrics.Config{})

	gw := Instrument(stubGateway{}, m)
	refs, err := gw.PromoteStaging(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	gw = Instrument(stubGateway{err: domain.ErrUnavailable}, nil)
	_, err = gw.PromoteStaging(context.Background(), "1")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "unavailable", classify(domain.ErrUnavailable))
	assert.Equal(t, "rejected", classify(domain.ErrRejected))
	assert.Equal(t, "", classify(context.Canceled))
}

func TestInstrument_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRemoteMetrics(reg, metrics.Config{Environment: "test"})

	_, _ = Instrument(stubGateway{}, m).PromoteStaging(context.Background(), "1")
	_, _ = Instrument(stubGateway{err: domain.ErrUnavailable}, m).PromoteStaging(context.Background(), "1")
	_, _ = Instrument(stubGateway{err: domain.ErrUnavailable}, m).PromoteStaging(context.Background(), "1")

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, families, "marketplace_remote_calls_total", map[string]string{
		"operation": "promote_staging",
		"outcome":   "ok",
	}))
	assert.Equal(t, 2.0, counterValue(t, families, "marketplace_remote_calls_total", map[string]string{
		"operation": "promote_staging",
		"outcome":   "unavailable",
	}))
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsContain(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsContain(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, label := range metric.GetLabel() {
		want, ok := labels[label.GetName()]
		if !ok {
			continue
		}
		if want != label.GetValue() {
			return false
		}
		found++
	}
	return found == len(labels)
}
