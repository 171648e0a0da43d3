package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	orderservice "github.com/craftora/craftora/internal/order/service"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID      string                   `json:"customer_id"`
	PaymentIntentID string                   `json:"payment_intent_id"`
	Items           []createOrderItemRequest `json:"items"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := parseSnowflake(req.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer id"))
		return
	}

	items := make([]orderservice.CreateItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := parseSnowflake(item.ProductID)
		if err != nil {
			AbortWithError(c, newValidationError("items", "invalid_product_id", "invalid product id"))
			return
		}
		items = append(items, orderservice.CreateItem{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	resp, err := s.orderSvc.Create(c.Request.Context(), orderservice.CreateRequest{
		CustomerID:      customerID,
		Items:           items,
		PaymentIntentID: strings.TrimSpace(req.PaymentIntentID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetOrder(c *gin.Context) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid order id"))
		return
	}

	resp, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder flips the order, restores stock, and pushes the refund to
// the provider. The local cancellation is committed before the provider
// call; a provider outage surfaces as 502 with the order already
// CANCELED, and the refund is retried by support tooling.
func (s *Server) CancelOrder(c *gin.Context) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid order id"))
		return
	}

	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	signal, err := s.orderSvc.Cancel(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	refundRef, err := s.refundIssuer.IssueRefund(c.Request.Context(), signal.PaymentIntentRef, signal.Amount)
	if err != nil {
		s.metrics.ObserveRefund("provider_error")
		s.log.Error("refund issuance failed after cancellation",
			zap.String("order_id", signal.OrderID.String()),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}
	s.metrics.ObserveRefund("issued")

	if err := s.paymentSvc.Refund(c.Request.Context(), signal.OrderID, refundRef); err != nil {
		// Tolerate replays: the refund reached the provider either way.
		if !errors.Is(err, paymentdomain.ErrAlreadyFinal) {
			AbortWithError(c, err)
			return
		}
	}

	resp, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type recordShipmentRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

func (s *Server) RecordShipment(c *gin.Context) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid order id"))
		return
	}

	var req recordShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.orderSvc.RecordShipment(
		c.Request.Context(), id,
		strings.TrimSpace(req.Carrier),
		strings.TrimSpace(req.TrackingNumber),
	); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordDelivery(c *gin.Context) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid order id"))
		return
	}

	if err := s.orderSvc.RecordDelivery(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) OpenDispute(c *gin.Context) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid order id"))
		return
	}

	if err := s.orderSvc.OpenDispute(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseSnowflake(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
