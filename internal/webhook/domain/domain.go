package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrSignatureExpired = errors.New("signature_expired")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
)

// Event is one provider notification after envelope verification. Payload
// is the raw data object; handlers decode the shape they expect.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time
	Payload    json.RawMessage
}
