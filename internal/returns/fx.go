package returns

import (
	"github.com/craftora/craftora/internal/returns/repository"
	"github.com/craftora/craftora/internal/returns/service"
	"go.uber.org/fx"
)

var Module = fx.Module("returns.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
