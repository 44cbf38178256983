package notification

import (
	"github.com/adpilot-io/adpilot/internal/notification/repository"
	"github.com/adpilot-io/adpilot/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
