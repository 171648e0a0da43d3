package order

import (
	"github.com/craftora/craftora/internal/order/repository"
	"github.com/craftora/craftora/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
