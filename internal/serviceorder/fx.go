package serviceorder

import (
	"github.com/smallbiznis/storeadmin/internal/serviceorder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("serviceorder.service",
	fx.Provide(service.NewService),
)
