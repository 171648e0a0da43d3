// Package stripe implements the outbound refund port against the Stripe
// HTTP API.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/craftora/craftora/internal/payment/domain"
)

const apiBase = "https://api.stripe.com"

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: apiBase,
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

// WithBaseURL overrides the API host. Tests point it at a local server.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// IssueRefund asks Stripe to return amount against the given payment
// intent. The intent reference doubles as the idempotency key so provider
// retries never double-refund.
func (c *Client) IssueRefund(ctx context.Context, paymentIntentRef string, amount int64) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: api key not configured", domain.ErrProviderFailure)
	}
	paymentIntentRef = strings.TrimSpace(paymentIntentRef)
	if paymentIntentRef == "" {
		return "", domain.ErrEmptyReference
	}

	values := url.Values{}
	values.Set("payment_intent", paymentIntentRef)
	values.Set("amount", strconv.FormatInt(amount, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/refunds", strings.NewReader(values.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", "refund:"+paymentIntentRef)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		message := strings.TrimSpace(errResp.Error.Message)
		if message == "" {
			message = resp.Status
		}
		return "", fmt.Errorf("%w: %s", domain.ErrProviderFailure, message)
	}

	var refund refundResponse
	if err := json.NewDecoder(resp.Body).Decode(&refund); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	if strings.TrimSpace(refund.ID) == "" {
		return "", fmt.Errorf("%w: empty refund id", domain.ErrProviderFailure)
	}
	return refund.ID, nil
}
