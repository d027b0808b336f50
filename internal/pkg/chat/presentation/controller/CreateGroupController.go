package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-chatline/internal/pkg/chat/application/usecase"
)

// CreateGroupController handles group creation (one controller per endpoint)
type CreateGroupController struct {
	UC      *usecase.CreateGroupUseCase
	Timeout time.Duration
}

func NewCreateGroupController(uc *usecase.CreateGroupUseCase, timeout time.Duration) *CreateGroupController {
	return &CreateGroupController{UC: uc, Timeout: timeout}
}

type createGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
}

func (h *CreateGroupController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
		defer cancel()
		conv, err := h.UC.Execute(ctx, usecase.CreateGroupInput{
			UserID:    c.GetString(UserIDKey),
			Name:      req.Name,
			MemberIDs: req.MemberIDs,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, conv)
	}
}
