package stripe_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/webhook/domain"
	"github.com/craftora/craftora/internal/webhook/stripe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

func signedHeaders(secret string, timestamp int64, payload []byte) http.Header {
	headers := http.Header{}
	headers.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", timestamp, sign(secret, timestamp, payload)))
	return headers
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := stripe.NewVerifier(testSecret, clock.NewFakeClock(now))

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	err := verifier.Verify(payload, signedHeaders(testSecret, now.Unix(), payload))
	require.NoError(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := stripe.NewVerifier(testSecret, clock.NewFakeClock(now))

	payload := []byte(`{"id":"evt_1"}`)
	err := verifier.Verify(payload, signedHeaders("whsec_other", now.Unix(), payload))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := stripe.NewVerifier(testSecret, clock.NewFakeClock(now))

	payload := []byte(`{"id":"evt_1"}`)
	headers := signedHeaders(testSecret, now.Unix(), payload)
	err := verifier.Verify([]byte(`{"id":"evt_2"}`), headers)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := stripe.NewVerifier(testSecret, clock.NewFakeClock(now))

	err := verifier.Verify([]byte(`{}`), http.Header{})
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := stripe.NewVerifier(testSecret, clock.NewFakeClock(now))

	payload := []byte(`{"id":"evt_1"}`)
	stale := now.Add(-stripe.SignatureTolerance - time.Second).Unix()
	err := verifier.Verify(payload, signedHeaders(testSecret, stale, payload))
	require.ErrorIs(t, err, domain.ErrSignatureExpired)

	// A timestamp too far in the future is equally suspect.
	future := now.Add(stripe.SignatureTolerance + time.Second).Unix()
	err = verifier.Verify(payload, signedHeaders(testSecret, future, payload))
	require.ErrorIs(t, err, domain.ErrSignatureExpired)
}

func TestVerifyAcceptsAnyMatchingV1(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := stripe.NewVerifier(testSecret, clock.NewFakeClock(now))

	payload := []byte(`{"id":"evt_1"}`)
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s,v1=%s",
		now.Unix(), "deadbeef", sign(testSecret, now.Unix(), payload)))
	require.NoError(t, verifier.Verify(payload, headers))
}

func TestParseEnvelope(t *testing.T) {
	payload := []byte(`{
		"id": "evt_42",
		"type": "payment_intent.succeeded",
		"created": 1767225600,
		"data": {"object": {"id": "pi_1", "amount": 5000}}
	}`)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event, err := stripe.ParseEnvelope(payload, now)
	require.NoError(t, err)
	assert.Equal(t, "evt_42", event.ID)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), event.OccurredAt)
	assert.JSONEq(t, `{"id": "pi_1", "amount": 5000}`, string(event.Payload))
}

func TestParseEnvelopeWithoutCreatedUsesNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event, err := stripe.ParseEnvelope(
		[]byte(`{"id":"evt_1","type":"account.updated","data":{"object":{}}}`), now)
	require.NoError(t, err)
	assert.Equal(t, now, event.OccurredAt)
}

func TestParseEnvelopeRejectsMissingFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := stripe.ParseEnvelope([]byte(`{"id":"evt_1"}`), now)
	require.ErrorIs(t, err, domain.ErrInvalidEvent)

	_, err = stripe.ParseEnvelope([]byte(`not json`), now)
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestPaymentIntentFailureReason(t *testing.T) {
	assert.Equal(t, "payment_failed", stripe.PaymentIntent{}.FailureReason())
	assert.Equal(t, "card_declined", stripe.PaymentIntent{
		LastPaymentError: &stripe.LastPaymentError{Code: "card_declined"},
	}.FailureReason())
	assert.Equal(t, "Your card was declined.", stripe.PaymentIntent{
		LastPaymentError: &stripe.LastPaymentError{
			Code:    "card_declined",
			Message: "Your card was declined.",
		},
	}.FailureReason())
}

func TestSubscriptionPriceRef(t *testing.T) {
	var sub stripe.Subscription
	assert.Empty(t, sub.PriceRef())

	subPayload := []byte(`{"id":"sub_1","status":"active","items":{"data":[{"price":{"id":"price_9"}}]}}`)
	event, err := stripe.ParseEnvelope([]byte(fmt.Sprintf(
		`{"id":"evt_s","type":"customer.subscription.updated","data":{"object":%s}}`, subPayload)),
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var parsed stripe.Subscription
	require.NoError(t, json.Unmarshal(event.Payload, &parsed))
	assert.Equal(t, "price_9", parsed.PriceRef())
}
