package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody bounds how much of a delivery is read. Stripe events
// are small; anything larger is hostile.
const maxWebhookBody = 1 << 20

// StripeWebhook accepts provider deliveries. The response contract:
// 200 once the signature verified and the envelope parsed, regardless
// of handler outcome, because redelivery of a processed-with-error
// event cannot produce a different result.
func (s *Server) StripeWebhook(c *gin.Context) {
	if s.webhookLimiter != nil {
		res, err := s.webhookLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("webhook rate limiter unavailable", zap.Error(err))
		} else if !res.Allowed {
			c.Header("Retry-After", res.RetryAfter.String())
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.reconciler.Process(c.Request.Context(), payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
