package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"go-chatline/internal/pkg/chat/presentation/controller"
	httpHandler "go-chatline/internal/pkg/chat/presentation/http"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1, plus the
// unversioned /health and /socket endpoints.
func RegisterRoutes(r *gin.Engine, deps httpHandler.Deps, uc httpHandler.UseCases, checks map[string]controller.HealthCheck) {
	v1 := r.Group("/api/v1")
	ws := httpHandler.RegisterRoutes(v1, deps, uc)

	// socket.io-era clients connect at /socket
	r.GET("/socket", ws)
	r.GET("/health", controller.NewHealthController(checks, 2*time.Second).Handle())
}
