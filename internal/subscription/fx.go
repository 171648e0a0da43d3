package subscription

import (
	"github.com/craftora/craftora/internal/subscription/repository"
	"github.com/craftora/craftora/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
