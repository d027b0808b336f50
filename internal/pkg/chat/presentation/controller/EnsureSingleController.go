package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-chatline/internal/pkg/chat/application/usecase"
)

// EnsureSingleController opens (or returns) the 1:1 conversation with another user.
type EnsureSingleController struct {
	UC      *usecase.EnsureSingleUseCase
	Timeout time.Duration
}

func NewEnsureSingleController(uc *usecase.EnsureSingleUseCase, timeout time.Duration) *EnsureSingleController {
	return &EnsureSingleController{UC: uc, Timeout: timeout}
}

// ensureSingleRequest accepts both "otherUserId" and the legacy "userId".
type ensureSingleRequest struct {
	OtherUserID string `json:"otherUserId"`
	UserID      string `json:"userId"`
}

func (h *EnsureSingleController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ensureSingleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		other := req.OtherUserID
		if other == "" {
			other = req.UserID
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
		defer cancel()
		out, err := h.UC.Execute(ctx, usecase.EnsureSingleInput{UserID: c.GetString(UserIDKey), OtherUserID: other})
		if err != nil {
			respondError(c, err)
			return
		}

		status := http.StatusOK
		if out.Created {
			status = http.StatusCreated
		}
		c.JSON(status, out.Conversation)
	}
}
