package product

import (
	"github.com/smallbiznis/marketplace/internal/config"
	"github.com/smallbiznis/marketplace/internal/notification"
	"github.com/smallbiznis/marketplace/internal/product/repository"
	"github.com/smallbiznis/marketplace/internal/product/service"
	"github.com/smallbiznis/marketplace/internal/retry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRetryPolicy),
	fx.Provide(func(n *notification.Notifier) service.Notifier { return n }),
	fx.Provide(service.New),
)

// NewRetryPolicy reads attempts and delay from the saga config on every call.
func NewRetryPolicy(saga *config.SagaConfigHolder, log *zap.Logger) *retry.Policy {
	return retry.NewWithSource(func() retry.Config {
		cfg := saga.Get().Retry
		return retry.Config{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay}
	}, log)
}
