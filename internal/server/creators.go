package server

import (
	"net/http"
	"strings"

	creatorservice "github.com/craftora/craftora/internal/creator/service"
	"github.com/gin-gonic/gin"
)

type registerCreatorRequest struct {
	DisplayName     string `json:"display_name"`
	Email           string `json:"email"`
	StripeAccountID string `json:"stripe_account_id"`
}

func (s *Server) RegisterCreator(c *gin.Context) {
	var req registerCreatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.creatorSvc.Register(c.Request.Context(), creatorservice.RegisterInput{
		DisplayName:     strings.TrimSpace(req.DisplayName),
		Email:           strings.TrimSpace(req.Email),
		StripeAccountID: strings.TrimSpace(req.StripeAccountID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetCreator(c *gin.Context) {
	id, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid creator id"))
		return
	}

	resp, err := s.creatorSvc.Find(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
