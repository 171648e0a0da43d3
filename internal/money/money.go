// Package money carries monetary amounts as integer minor units together
// with the enumerated payment method vocabulary.
package money

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNegativeAmount  = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidMethod   = errors.New("invalid_payment_method")
)

// Amount is a non-negative sum of money in minor currency units.
type Amount struct {
	Value    int64
	Currency string
}

// NewAmount validates and normalizes an amount. Currency must be a
// three-letter ISO code.
func NewAmount(value int64, currency string) (Amount, error) {
	if value < 0 {
		return Amount{}, ErrNegativeAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Amount{}, ErrInvalidCurrency
	}
	return Amount{Value: value, Currency: currency}, nil
}

func (a Amount) Add(other Amount) (Amount, error) {
	if a.Currency != other.Currency {
		return Amount{}, ErrInvalidCurrency
	}
	return Amount{Value: a.Value + other.Value, Currency: a.Currency}, nil
}

func (a Amount) IsZero() bool { return a.Value == 0 }

func (a Amount) String() string {
	return fmt.Sprintf("%d %s", a.Value, a.Currency)
}

// BpsDenominator is the full share in basis points: 10000 bps = 100%.
const BpsDenominator = 10_000

// MulBps applies a basis-point rate once, rounding half up. The rate is
// never compounded: callers compute commission from the original total.
// Rates above the full share are clamped so the result never exceeds value.
func MulBps(value int64, bps int64) int64 {
	if value <= 0 || bps <= 0 {
		return 0
	}
	if bps > BpsDenominator {
		bps = BpsDenominator
	}
	return (value*bps + BpsDenominator/2) / BpsDenominator
}

// PaymentMethod enumerates how a customer funded a payment.
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodWallet       PaymentMethod = "WALLET"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))) {
	case MethodCard:
		return MethodCard, nil
	case MethodBankTransfer:
		return MethodBankTransfer, nil
	case MethodWallet:
		return MethodWallet, nil
	default:
		return "", ErrInvalidMethod
	}
}
