package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/webhook/domain"
)

// SignatureTolerance bounds how old a signed timestamp may be before the
// delivery is rejected as a possible replay.
const SignatureTolerance = 5 * time.Minute

type Verifier struct {
	secret string
	clock  clock.Clock
}

func NewVerifier(secret string, clk clock.Clock) *Verifier {
	return &Verifier{secret: strings.TrimSpace(secret), clock: clk}
}

// Verify checks the Stripe-Signature header against the raw payload. The
// signed content is "<timestamp>.<payload>" with HMAC-SHA256 under the
// endpoint secret.
func (v *Verifier) Verify(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	issued, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	now := v.clock.Now()
	age := now.Sub(time.Unix(issued, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return domain.ErrSignatureExpired
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(v.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, domain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

type envelope struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Created int64        `json:"created"`
	Data    envelopeData `json:"data"`
}

type envelopeData struct {
	Object json.RawMessage `json:"object"`
}

// ParseEnvelope decodes the outer event structure without interpreting
// the inner object. Events without a created timestamp fall back to now.
func ParseEnvelope(payload []byte, now time.Time) (*domain.Event, error) {
	var event envelope
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, domain.ErrInvalidEvent
	}

	occurredAt := now.UTC()
	if event.Created > 0 {
		occurredAt = time.Unix(event.Created, 0).UTC()
	}
	return &domain.Event{
		ID:         event.ID,
		Type:       strings.TrimSpace(event.Type),
		OccurredAt: occurredAt,
		Payload:    event.Data.Object,
	}, nil
}

// Account is the connected-account object carried by account.updated.
type Account struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// Onboarded reports whether the account can both charge and be paid out.
func (a Account) Onboarded() bool {
	return a.ChargesEnabled && a.PayoutsEnabled && a.DetailsSubmitted
}

// PaymentIntent is the object carried by payment_intent.* events.
type PaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	LastPaymentError *LastPaymentError `json:"last_payment_error"`
}

type LastPaymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FailureReason flattens the provider error into a storable string.
func (p PaymentIntent) FailureReason() string {
	if p.LastPaymentError == nil {
		return "payment_failed"
	}
	if msg := strings.TrimSpace(p.LastPaymentError.Message); msg != "" {
		return msg
	}
	if code := strings.TrimSpace(p.LastPaymentError.Code); code != "" {
		return code
	}
	return "payment_failed"
}

// Invoice is the object carried by invoice.paid.
type Invoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	Currency     string `json:"currency"`
}

// Subscription is the object carried by customer.subscription.* events.
type Subscription struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	Items  subscriptionItems `json:"items"`
}

type subscriptionItems struct {
	Data []subscriptionItem `json:"data"`
}

type subscriptionItem struct {
	Price subscriptionPrice `json:"price"`
}

type subscriptionPrice struct {
	ID string `json:"id"`
}

// PriceRef returns the current price reference, empty when absent.
func (s Subscription) PriceRef() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return strings.TrimSpace(s.Items.Data[0].Price.ID)
}
