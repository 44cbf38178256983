package subscription

import (
	"github.com/adpilot-io/adpilot/internal/subscription/repository"
	"github.com/adpilot-io/adpilot/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
