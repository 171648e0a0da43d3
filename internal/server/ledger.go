package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ListLedgerTransactions reports recognized platform revenue for one
// creator, optionally filtered to an accounting period (YYYY-MM).
func (s *Server) ListLedgerTransactions(c *gin.Context) {
	var query struct {
		CreatorID string `form:"creator_id"`
		Period    string `form:"period"`
		Limit     string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	creatorID, err := parseSnowflake(query.CreatorID)
	if err != nil {
		AbortWithError(c, newValidationError("creator_id", "invalid_creator_id", "invalid creator id"))
		return
	}

	var period time.Time
	if raw := strings.TrimSpace(query.Period); raw != "" {
		period, err = time.Parse("2006-01", raw)
		if err != nil {
			AbortWithError(c, newValidationError("period", "invalid_period", "period must be YYYY-MM"))
			return
		}
	}

	limit := 0
	if raw := strings.TrimSpace(query.Limit); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
	}

	rows, err := s.ledgerSvc.ListByCreator(c.Request.Context(), creatorID, period, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}
