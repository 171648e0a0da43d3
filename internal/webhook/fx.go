package webhook

import (
	"github.com/craftora/craftora/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.reconciler",
	fx.Provide(service.NewReconciler),
)
