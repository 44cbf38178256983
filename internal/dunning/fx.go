package dunning

import (
	"github.com/adpilot-io/adpilot/internal/dunning/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dunning",
	fx.Provide(service.NewService),
)
