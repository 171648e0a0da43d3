package creator

import (
	"github.com/craftora/craftora/internal/creator/repository"
	"github.com/craftora/craftora/internal/creator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("creator.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
