package server

import (
	"errors"
	"net/http"

	catalogdomain "github.com/craftora/craftora/internal/catalog/domain"
	creatordomain "github.com/craftora/craftora/internal/creator/domain"
	ledgerdomain "github.com/craftora/craftora/internal/ledger/domain"
	orderdomain "github.com/craftora/craftora/internal/order/domain"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	returnsdomain "github.com/craftora/craftora/internal/returns/domain"
	subscriptiondomain "github.com/craftora/craftora/internal/subscription/domain"
	webhookdomain "github.com/craftora/craftora/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "request",
					Code:    err.Error(),
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isTransitionError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_transition",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, webhookdomain.ErrInvalidSignature),
		errors.Is(err, webhookdomain.ErrSignatureExpired):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: "invalid signature",
		}
	case errors.Is(err, webhookdomain.ErrInvalidPayload),
		errors.Is(err, webhookdomain.ErrInvalidEvent):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_payload",
			Message: "invalid payload",
		}
	case errors.Is(err, paymentdomain.ErrProviderFailure):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_failure",
			Message: "payment provider failure",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orderdomain.ErrNoItems),
		errors.Is(err, orderdomain.ErrInvalidItem),
		errors.Is(err, orderdomain.ErrMixedCreators),
		errors.Is(err, orderdomain.ErrEmptyReason),
		errors.Is(err, orderdomain.ErrEmptyTracking),
		errors.Is(err, orderdomain.ErrMissingPaymentRef),
		errors.Is(err, paymentdomain.ErrEmptyReason),
		errors.Is(err, paymentdomain.ErrEmptyReference),
		errors.Is(err, returnsdomain.ErrInvalidReason),
		errors.Is(err, returnsdomain.ErrEmptyReason),
		errors.Is(err, returnsdomain.ErrEmptyReference),
		errors.Is(err, returnsdomain.ErrInvalidQuantity),
		errors.Is(err, returnsdomain.ErrItemNotInOrder),
		errors.Is(err, returnsdomain.ErrQuantityExceeded),
		errors.Is(err, creatordomain.ErrEmptyName),
		errors.Is(err, creatordomain.ErrMissingStripeRef),
		errors.Is(err, ledgerdomain.ErrInvalidEventID),
		errors.Is(err, catalogdomain.ErrInvalidQuantity):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, returnsdomain.ErrNotFound),
		errors.Is(err, creatordomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// isTransitionError covers business-rule failures on aggregates in the
// wrong state. They are 4xx responses, never logged as exceptions.
func isTransitionError(err error) bool {
	switch {
	case errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrAlreadyFinal),
		errors.Is(err, paymentdomain.ErrNotRefundable),
		errors.Is(err, returnsdomain.ErrInvalidTransition),
		errors.Is(err, returnsdomain.ErrOrderNotDelivered),
		errors.Is(err, returnsdomain.ErrWindowExpired),
		errors.Is(err, catalogdomain.ErrInsufficientStock):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, returnsdomain.ErrActiveExists),
		errors.Is(err, paymentdomain.ErrReferenceConflict):
		return true
	default:
		return false
	}
}
