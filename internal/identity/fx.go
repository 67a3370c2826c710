package identity

import (
	"github.com/smallbiznis/marketplace/internal/auth"
	"github.com/smallbiznis/marketplace/internal/config"
	"github.com/smallbiznis/marketplace/internal/identity/client"
	"github.com/smallbiznis/marketplace/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("identity.client",
	fx.Provide(NewLookup),
)

type Params struct {
	fx.In

	Config config.Config
	Tokens *auth.TokenManager
	Log    *zap.Logger
}

func NewLookup(p Params) (domain.Lookup, error) {
	return client.New(client.Config{
		BaseURL:  p.Config.UsersService.BaseURL,
		Timeout:  p.Config.UsersService.Timeout,
		CacheTTL: p.Config.UsersService.CacheTTL,
	}, p.Tokens.ServiceTokenProvider(p.Config.ServiceUsername), p.Log)
}
