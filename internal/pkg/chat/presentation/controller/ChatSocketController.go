package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	authport "go-chatline/internal/infrastructure/auth/port"
	"go-chatline/internal/infrastructure/realtime"
	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/usecase"
)

// Client frame types.
const (
	FrameSend   = "chat:send"
	FrameTyping = "chat:typing"
	FrameSeen   = "chat:seen"
	FrameLeave  = "chat:leave"
)

// SocketDeps groups what the websocket endpoint needs.
type SocketDeps struct {
	Verifier       authport.Verifier
	Hub            *realtime.Hub
	Connect        *usecase.ConnectSessionUseCase
	Send           *usecase.SendMessageUseCase
	Typing         *usecase.TypingUseCase
	Seen           *usecase.MarkSeenUseCase
	Leave          *usecase.LeaveConversationUseCase
	Log            *zap.Logger
	AuthTimeout    time.Duration
	RequestTimeout time.Duration
}

// ChatSocketController handles the websocket endpoint for realtime chat traffic.
type ChatSocketController struct {
	SocketDeps
}

func NewChatSocketController(deps SocketDeps) *ChatSocketController {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.AuthTimeout <= 0 {
		deps.AuthTimeout = 5 * time.Second
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 5 * time.Second
	}
	return &ChatSocketController{SocketDeps: deps}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin; the bearer token is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Type           string            `json:"type"`
	Ref            string            `json:"ref,omitempty"`
	ConversationID string            `json:"conversationId,omitempty"`
	Content        string            `json:"content,omitempty"`
	Attachments    []chat.Attachment `json:"attachments,omitempty"`
	IsTyping       bool              `json:"isTyping,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
	Ref   string `json:"ref,omitempty"`
}

type ackFrame struct {
	Type           string `json:"type"`
	Ref            string `json:"ref,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

type connectedFrame struct {
	Type            string   `json:"type"`
	SessionID       string   `json:"sessionId"`
	UserID          string   `json:"userId"`
	ConversationIDs []string `json:"conversationIds"`
}

const (
	defaultReadTimeout = 60 * time.Second
	maxFrameBytes      = 1 << 20
)

// Handle authenticates the request, upgrades it to a websocket, subscribes
// the session to the user's conversations and processes frames until the
// client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		authCtx, cancel := context.WithTimeout(c.Request.Context(), ctl.AuthTimeout)
		userID, err := ctl.Verifier.Verify(authCtx, TokenFromRequest(c.Request))
		cancel()
		if err != nil {
			ctl.Log.Debug("websocket auth rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "code": CodeUnauthenticated})
			return
		}

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; just log and return.
			ctl.Log.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
			return
		}

		conn := realtime.NewConnection(userID, ws)
		// Register before listing so joins committed meanwhile reach this session.
		ctl.Hub.Attach(conn, nil)
		defer func() {
			ctl.Hub.Detach(conn)
			// Drain so a final error frame is not cut off by the close.
			conn.Drain(websocket.CloseNormalClosure, "session closed")
		}()
		log := ctl.Log.With(zap.String("session_id", conn.ID), zap.String("user_id", userID))

		listCtx, cancel := context.WithTimeout(c.Request.Context(), ctl.RequestTimeout)
		ids, err := ctl.Connect.Execute(listCtx, usecase.ConnectSessionInput{UserID: userID})
		cancel()
		if err != nil {
			log.Warn("load conversations failed", zap.Error(err))
			ctl.replyError(conn, codeFor(err), messageFor(err), "")
			return
		}
		ctl.Hub.Subscribe(conn, ids)
		log.Info("session connected", zap.Int("conversations", len(ids)))

		ws.SetReadLimit(maxFrameBytes)
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		ctl.reply(conn, connectedFrame{Type: "connected", SessionID: conn.ID, UserID: userID, ConversationIDs: ids})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					log.Debug("session closed by peer")
					return
				}
				log.Debug("session read ended", zap.Error(err))
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				ctl.replyError(conn, CodeBadRequest, "invalid payload", "")
				continue
			}
			ctl.dispatch(c.Request.Context(), conn, frame)
		}
	}
}

func (ctl *ChatSocketController) dispatch(parent context.Context, conn *realtime.Connection, frame inboundFrame) {
	if frame.Type != FrameSend && frame.Type != FrameTyping && frame.Type != FrameSeen && frame.Type != FrameLeave {
		ctl.replyError(conn, CodeUnsupportedType, "unknown frame type", frame.Ref)
		return
	}
	if frame.ConversationID == "" {
		ctl.replyError(conn, CodeBadRequest, "conversationId is required", frame.Ref)
		return
	}

	ctx, cancel := context.WithTimeout(parent, ctl.RequestTimeout)
	defer cancel()

	ack := ackFrame{Type: "ack", Ref: frame.Ref, ConversationID: frame.ConversationID}
	var err error
	switch frame.Type {
	case FrameSend:
		var msg *chat.Message
		msg, err = ctl.Send.Execute(ctx, usecase.SendMessageInput{
			ConversationID: frame.ConversationID,
			SenderID:       conn.UserID,
			Content:        frame.Content,
			Attachments:    frame.Attachments,
		})
		if err == nil {
			ack.MessageID = msg.ID
		}
	case FrameTyping:
		// fire-and-forget: no ack on success
		if err = ctl.Typing.Execute(ctx, usecase.TypingInput{ConversationID: frame.ConversationID, UserID: conn.UserID, IsTyping: frame.IsTyping}); err == nil {
			return
		}
	case FrameSeen:
		_, err = ctl.Seen.Execute(ctx, usecase.MarkSeenInput{ConversationID: frame.ConversationID, UserID: conn.UserID})
	case FrameLeave:
		_, err = ctl.Leave.Execute(ctx, usecase.LeaveConversationInput{ConversationID: frame.ConversationID, UserID: conn.UserID})
	}
	if err != nil {
		ctl.handleUseCaseError(conn, err, frame.Ref)
		return
	}
	ctl.reply(conn, ack)
}

// handleUseCaseError reports a failure to the initiating session only.
func (ctl *ChatSocketController) handleUseCaseError(conn *realtime.Connection, err error, ref string) {
	if errors.Is(err, usecase.ErrPersistence) || statusFor(err) == http.StatusInternalServerError {
		ctl.Log.Error("socket request failed", zap.String("session_id", conn.ID), zap.Error(err))
	}
	ctl.replyError(conn, codeFor(err), messageFor(err), ref)
}

func (ctl *ChatSocketController) replyError(conn *realtime.Connection, code string, message string, ref string) {
	ctl.reply(conn, errorFrame{Type: "error", Code: code, Error: message, Ref: ref})
}

func (ctl *ChatSocketController) reply(conn *realtime.Connection, frame any) {
	if payload, err := json.Marshal(frame); err == nil {
		_ = conn.Send(payload)
	}
}
