package account

import (
	"github.com/adpilot-io/adpilot/internal/account/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(repository.Provide),
)
