package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-chatline/internal/pkg/chat/application/usecase"
)

// LeaveConversationController removes the caller from a conversation,
// deleting it when the rules say so.
type LeaveConversationController struct {
	UC      *usecase.LeaveConversationUseCase
	Timeout time.Duration
}

func NewLeaveConversationController(uc *usecase.LeaveConversationUseCase, timeout time.Duration) *LeaveConversationController {
	return &LeaveConversationController{UC: uc, Timeout: timeout}
}

func (h *LeaveConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		if conversationID == "" {
			badRequest(c, "conversationId is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
		defer cancel()
		out, err := h.UC.Execute(ctx, usecase.LeaveConversationInput{UserID: c.GetString(UserIDKey), ConversationID: conversationID})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"conversationId": conversationID,
			"deleted":        out.Deleted,
			"members":        out.Remaining,
		})
	}
}
