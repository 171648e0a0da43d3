package payment

import (
	"github.com/craftora/craftora/internal/config"
	"github.com/craftora/craftora/internal/payment/domain"
	"github.com/craftora/craftora/internal/payment/repository"
	"github.com/craftora/craftora/internal/payment/service"
	"github.com/craftora/craftora/internal/payment/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(cfg config.Config) domain.RefundIssuer {
		return stripe.NewClient(cfg.StripeAPIKey)
	}),
)
