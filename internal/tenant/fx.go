package tenant

import (
	"github.com/smallbiznis/storeadmin/internal/cache"
	"github.com/smallbiznis/storeadmin/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(cache.NewDomainCache),
	fx.Provide(service.NewService),
)
