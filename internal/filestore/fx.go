package filestore

import (
	"time"

	"github.com/smallbiznis/marketplace/internal/auth"
	"github.com/smallbiznis/marketplace/internal/config"
	"github.com/smallbiznis/marketplace/internal/filestore/client"
	"github.com/smallbiznis/marketplace/internal/filestore/domain"
	"github.com/smallbiznis/marketplace/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("filestore.client",
	fx.Provide(NewGateway),
)

type Params struct {
	fx.In

	Config  config.Config
	Saga    *config.SagaConfigHolder
	Tokens  *auth.TokenManager
	Metrics *metrics.RemoteMetrics `optional:"true"`
	Log     *zap.Logger
}

// NewGateway builds the HTTP gateway, authenticating as the service user.
func NewGateway(p Params) (domain.Gateway, error) {
	c, err := client.New(client.Config{
		BaseURL: p.Config.FileService.BaseURL,
		Timeout: p.Config.FileService.Timeout,
		MetadataCacheTTLSource: func() time.Duration {
			return p.Saga.Get().Metadata.CacheTTL
		},
	}, p.Tokens.ServiceTokenProvider(p.Config.ServiceUsername), p.Log)
	if err != nil {
		return nil, err
	}
	return Instrument(c, p.Metrics), nil
}
