package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/craftora/craftora/internal/order/domain"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	returnsdomain "github.com/craftora/craftora/internal/returns/domain"
	returnsservice "github.com/craftora/craftora/internal/returns/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createReturnItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type createReturnRequest struct {
	OrderID       string                    `json:"order_id"`
	CustomerName  string                    `json:"customer_name"`
	CustomerEmail string                    `json:"customer_email"`
	Reason        string                    `json:"reason"`
	ReasonDetails string                    `json:"reason_details"`
	Items         []createReturnItemRequest `json:"items"`
}

func (s *Server) CreateReturn(c *gin.Context) {
	var req createReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseSnowflake(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}

	reason, err := returnsdomain.ParseReason(strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]returnsservice.RequestItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := parseSnowflake(item.ProductID)
		if err != nil {
			AbortWithError(c, newValidationError("items", "invalid_product_id", "invalid product id"))
			return
		}
		items = append(items, returnsservice.RequestItem{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	resp, err := s.returnSvc.Create(c.Request.Context(), returnsservice.CreateRequest{
		OrderID:       orderID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Reason:        reason,
		ReasonDetails: strings.TrimSpace(req.ReasonDetails),
		Items:         items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetReturn(c *gin.Context) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid return id"))
		return
	}

	resp, err := s.returnSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveReturn(c *gin.Context) {
	s.transitionReturn(c, func(id snowflake.ID) error {
		return s.returnSvc.Approve(c.Request.Context(), id)
	})
}

type rejectReturnRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectReturn(c *gin.Context) {
	var req rejectReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.transitionReturn(c, func(id snowflake.ID) error {
		return s.returnSvc.Reject(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	})
}

func (s *Server) ReturnShippedBack(c *gin.Context) {
	s.transitionReturn(c, func(id snowflake.ID) error {
		return s.returnSvc.MarkShippedBack(c.Request.Context(), id)
	})
}

func (s *Server) ReturnReceived(c *gin.Context) {
	s.transitionReturn(c, func(id snowflake.ID) error {
		return s.returnSvc.MarkReceived(c.Request.Context(), id)
	})
}

// RefundReturn issues the provider refund for a RECEIVED return and
// closes it. A full-amount return also moves the order to REFUNDED; a
// partial one leaves the order DELIVERED.
func (s *Server) RefundReturn(c *gin.Context) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid return id"))
		return
	}

	ret, err := s.returnSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if ret.Status != returnsdomain.ReturnStatusReceived {
		AbortWithError(c, returnsdomain.ErrInvalidTransition)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), ret.OrderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.StripePaymentIntentID == nil {
		AbortWithError(c, orderdomain.ErrMissingPaymentRef)
		return
	}

	refundRef, err := s.refundIssuer.IssueRefund(c.Request.Context(), *order.StripePaymentIntentID, ret.RefundAmount)
	if err != nil {
		s.metrics.ObserveRefund("provider_error")
		s.log.Error("refund issuance failed for return",
			zap.String("return_id", ret.ID.String()),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}
	s.metrics.ObserveRefund("issued")

	if err := s.returnSvc.Refund(c.Request.Context(), id, refundRef); err != nil {
		AbortWithError(c, err)
		return
	}

	if ret.RefundAmount == order.TotalAmount {
		if err := s.paymentSvc.Refund(c.Request.Context(), order.ID, refundRef); err != nil &&
			!errors.Is(err, paymentdomain.ErrAlreadyFinal) {
			AbortWithError(c, err)
			return
		}
		if err := s.orderSvc.MarkRefunded(c.Request.Context(), order.ID); err != nil &&
			!errors.Is(err, orderdomain.ErrInvalidTransition) {
			AbortWithError(c, err)
			return
		}
	}

	resp, err := s.returnSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) transitionReturn(c *gin.Context, fn func(id snowflake.ID) error) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid return id"))
		return
	}

	if err := fn(id); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.returnSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
