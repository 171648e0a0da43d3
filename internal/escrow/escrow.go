package escrow

import (
	"time"

	"github.com/craftora/craftora/internal/config"
	orderdomain "github.com/craftora/craftora/internal/order/domain"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	"go.uber.org/fx"
)

// Service answers escrow-hold questions. It holds no state beyond the
// configured hold duration and never mutates anything; callers act on
// its answers.
type Service struct {
	hold time.Duration
}

func NewService(cfg config.Config) *Service {
	return &Service{hold: time.Duration(cfg.EscrowHoldHours) * time.Hour}
}

// Hold returns the configured escrow hold duration.
func (s *Service) Hold() time.Duration {
	return s.hold
}

// EligibleAt returns the instant the order's funds leave the hold. The
// second return is false until the order has been delivered.
func (s *Service) EligibleAt(order *orderdomain.Order) (time.Time, bool) {
	if order == nil || order.DeliveredAt == nil {
		return time.Time{}, false
	}
	return order.DeliveredAt.Add(s.hold), true
}

// IsReleasable reports whether the creator's funds for the order may be
// released at now. An active return blocks release regardless of the
// elapsed hold.
func (s *Service) IsReleasable(order *orderdomain.Order, payment *paymentdomain.Payment, hasActiveReturn bool, now time.Time) bool {
	if order == nil || payment == nil {
		return false
	}
	if order.Status != orderdomain.OrderStatusDelivered {
		return false
	}
	if order.EscrowReleasedAt != nil {
		return false
	}
	if payment.Status != paymentdomain.PaymentStatusSucceeded {
		return false
	}
	if hasActiveReturn {
		return false
	}
	eligibleAt, ok := s.EligibleAt(order)
	if !ok {
		return false
	}
	return !now.Before(eligibleAt)
}

var Module = fx.Module("escrow.service",
	fx.Provide(NewService),
)
