package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	authport "go-chatline/internal/infrastructure/auth/port"
	qport "go-chatline/internal/infrastructure/queue/port"
	"go-chatline/internal/infrastructure/realtime"
	"go-chatline/internal/pkg/chat/application/port"
	"go-chatline/internal/pkg/chat/application/usecase"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
	"go-chatline/internal/pkg/chat/presentation/controller"
)

// Deps carries the shared infrastructure the chat endpoints are built from.
type Deps struct {
	Hub      *realtime.Hub
	Verifier authport.Verifier
	// Queue is optional; without it REST sends run inline.
	Queue qport.Client
	Log   *zap.Logger

	AuthTimeout    time.Duration
	RequestTimeout time.Duration
}

// UseCases is the set of application services shared by REST, websocket
// and queue entry points.
type UseCases struct {
	EnsureSingle *usecase.EnsureSingleUseCase
	CreateGroup  *usecase.CreateGroupUseCase
	Leave        *usecase.LeaveConversationUseCase
	List         *usecase.ListConversationUseCase
	History      *usecase.GetMessageUseCase
	Send         *usecase.SendMessageUseCase
	Seen         *usecase.MarkSeenUseCase
	Typing       *usecase.TypingUseCase
	Connect      *usecase.ConnectSessionUseCase
	Check        *usecase.CheckMembershipUseCase
}

// NewUseCases wires every use case against one store and one hub. Mutating
// use cases share a lock set so per-conversation ordering holds across them.
func NewUseCases(repo repository.ChatRepository, hub port.Fanout, friends port.FriendPolicy, pageSize int) UseCases {
	locks := usecase.NewConversationLocks()
	return UseCases{
		EnsureSingle: usecase.NewEnsureSingleUseCase(repo, hub, friends),
		CreateGroup:  usecase.NewCreateGroupUseCase(repo, hub),
		Leave:        usecase.NewLeaveConversationUseCase(repo, hub, locks),
		List:         usecase.NewListConversationUseCase(repo),
		History:      usecase.NewGetMessageUseCase(repo, pageSize),
		Send:         usecase.NewSendMessageUseCase(repo, hub, locks),
		Seen:         usecase.NewMarkSeenUseCase(repo, hub, locks),
		Typing:       usecase.NewTypingUseCase(repo, hub),
		Connect:      usecase.NewConnectSessionUseCase(repo),
		Check:        usecase.NewCheckMembershipUseCase(repo),
	}
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router group
// It constructs per-endpoint controllers and binds them directly to routes.
// The websocket handler is returned so callers can mount it elsewhere too.
func RegisterRoutes(g *gin.RouterGroup, d Deps, uc UseCases) gin.HandlerFunc {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	socketCtl := controller.NewChatSocketController(controller.SocketDeps{
		Verifier:       d.Verifier,
		Hub:            d.Hub,
		Connect:        uc.Connect,
		Send:           uc.Send,
		Typing:         uc.Typing,
		Seen:           uc.Seen,
		Leave:          uc.Leave,
		Log:            d.Log,
		AuthTimeout:    d.AuthTimeout,
		RequestTimeout: timeout,
	})
	ws := socketCtl.Handle()

	// GET /api/v1/ws -> websocket endpoint; authenticates on its own before upgrading
	g.GET("/ws", ws)

	authed := g.Group("", RequireAuth(d.Verifier, d.AuthTimeout))

	conversations := authed.Group("/conversations")
	conversations.POST("/single", controller.NewEnsureSingleController(uc.EnsureSingle, timeout).Handle())
	conversations.POST("/group", controller.NewCreateGroupController(uc.CreateGroup, timeout).Handle())
	conversations.GET("/my", controller.NewListConversationController(uc.List, timeout).Handle())
	conversations.DELETE("/:conversationId", controller.NewLeaveConversationController(uc.Leave, timeout).Handle())

	messages := authed.Group("/messages")
	messages.POST("/send", controller.NewSendMessageController(d.Queue, uc.Send, uc.Check, timeout).Handle())
	messages.GET("/:conversationId", controller.NewGetMessageController(uc.History, timeout).Handle())

	return ws
}
