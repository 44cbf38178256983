package invoice

import (
	"github.com/adpilot-io/adpilot/internal/invoice/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(repository.Provide),
)
