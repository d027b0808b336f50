package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	qport "go-chatline/internal/infrastructure/queue/port"
	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/usecase"
)

// SendMessageTaskType is the queue task name for sending a message within the chat domain.
const SendMessageTaskType = "chat:send_message"

// SendMessageQueue is the asynq queue send tasks are routed to.
const SendMessageQueue = "chat"

// SendMessageTaskPayload is the JSON payload transported via the queue.
// Kept decoupled from domain types to avoid tight coupling with JSON tags.
type SendMessageTaskPayload struct {
	ConversationID string            `json:"conversationId"`
	SenderID       string            `json:"senderId"`
	Content        string            `json:"content"`
	Attachments    []chat.Attachment `json:"attachments,omitempty"`
	RequestID      string            `json:"requestId,omitempty"`
}

// NewSendMessageTask encodes p into a queue task.
func NewSendMessageTask(p SendMessageTaskPayload) (qport.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return qport.Task{}, err
	}
	return qport.Task{Type: SendMessageTaskType, Payload: b}, nil
}

// RegisterSendMessageTask binds the task handler to the provided server.
// The handler runs the same pipeline as the websocket chat:send path, so
// subscribers receive chat:new once the task commits.
func RegisterSendMessageTask(srv qport.Server, uc *usecase.SendMessageUseCase, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	srv.Register(SendMessageTaskType, func(ctx context.Context, t qport.Task) error {
		return HandleSendMessage(ctx, uc, log, t)
	})
}

// HandleSendMessage executes one send task. Malformed payloads and domain
// rejections are permanent; persistence failures are retried by the queue.
func HandleSendMessage(ctx context.Context, uc *usecase.SendMessageUseCase, log *zap.Logger, t qport.Task) error {
	var p SendMessageTaskPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", SendMessageTaskType, err, qport.ErrSkipRetry)
	}

	// give DB a reasonable time budget per task execution
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg, err := uc.Execute(ctx, usecase.SendMessageInput{
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		Attachments:    p.Attachments,
	})
	if err != nil {
		fields := []zap.Field{
			zap.String("conversation_id", p.ConversationID),
			zap.String("sender_id", p.SenderID),
			zap.String("request_id", p.RequestID),
			zap.Error(err),
		}
		if errors.Is(err, usecase.ErrPersistence) {
			log.Warn("send task failed, will retry", fields...)
			return err
		}
		log.Info("send task rejected", fields...)
		return fmt.Errorf("%w: %w", err, qport.ErrSkipRetry)
	}
	log.Debug("send task delivered", zap.String("message_id", msg.ID), zap.String("request_id", p.RequestID))
	return nil
}
