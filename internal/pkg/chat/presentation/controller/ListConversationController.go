package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-chatline/internal/pkg/chat/application/usecase"
)

// ListConversationController returns the caller's conversations.
type ListConversationController struct {
	UC      *usecase.ListConversationUseCase
	Timeout time.Duration
}

func NewListConversationController(uc *usecase.ListConversationUseCase, timeout time.Duration) *ListConversationController {
	return &ListConversationController{UC: uc, Timeout: timeout}
}

func (h *ListConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
		defer cancel()
		convs, err := h.UC.Execute(ctx, usecase.ListConversationInput{UserID: c.GetString(UserIDKey)})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
	}
}
