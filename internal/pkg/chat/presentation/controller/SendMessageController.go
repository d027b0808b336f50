package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	queueport "go-chatline/internal/infrastructure/queue/port"
	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/task"
	"go-chatline/internal/pkg/chat/application/usecase"
)

// SendMessageController handles the REST send endpoint. With a queue client
// the message is handed to a background worker after a membership check;
// without one the pipeline runs inline.
type SendMessageController struct {
	Q       queueport.Client
	UC      *usecase.SendMessageUseCase
	Check   *usecase.CheckMembershipUseCase
	Timeout time.Duration
}

func NewSendMessageController(client queueport.Client, uc *usecase.SendMessageUseCase, check *usecase.CheckMembershipUseCase, timeout time.Duration) *SendMessageController {
	return &SendMessageController{Q: client, UC: uc, Check: check, Timeout: timeout}
}

// sendMessageRequest is the DTO for the HTTP request body
type sendMessageRequest struct {
	ConversationID string            `json:"conversationId" binding:"required"`
	Content        string            `json:"content"`
	Attachments    []chat.Attachment `json:"attachments"`
}

func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		userID := c.GetString(UserIDKey)

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
		defer cancel()

		if h.Q == nil {
			msg, err := h.UC.Execute(ctx, usecase.SendMessageInput{
				ConversationID: req.ConversationID,
				SenderID:       userID,
				Content:        req.Content,
				Attachments:    req.Attachments,
			})
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusCreated, msg)
			return
		}

		if err := h.Check.Execute(ctx, usecase.CheckMembershipInput{ConversationID: req.ConversationID, UserID: userID}); err != nil {
			respondError(c, err)
			return
		}

		t, err := task.NewSendMessageTask(task.SendMessageTaskPayload{
			ConversationID: req.ConversationID,
			SenderID:       userID,
			Content:        req.Content,
			Attachments:    req.Attachments,
			RequestID:      c.GetString(RequestIDKey),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode task payload", "code": CodeInternal})
			return
		}

		opts := queueport.EnqueueOption{Queue: task.SendMessageQueue, MaxRetry: 20, Timeout: h.Timeout}
		// a client retrying with the same X-Request-ID must not post twice
		if rid := c.GetString(RequestIDKey); rid != "" {
			opts.TaskID = "send:" + rid
		}
		id, err := h.Q.Enqueue(ctx, t, opts)
		if errors.Is(err, queueport.ErrDuplicateTask) {
			c.JSON(http.StatusConflict, gin.H{"error": "message already queued", "code": CodeConflict})
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue message", "code": CodeInternal})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":         "queued",
			"taskId":         id,
			"conversationId": req.ConversationID,
			"senderId":       userID,
		})
	}
}
