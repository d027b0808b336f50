package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthController reports liveness plus the state of each registered dependency.
type HealthController struct {
	Checks  map[string]HealthCheck
	Timeout time.Duration
}

func NewHealthController(checks map[string]HealthCheck, timeout time.Duration) *HealthController {
	return &HealthController{Checks: checks, Timeout: timeout}
}

func (h *HealthController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}
		for name, check := range h.Checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}

		state := "OK"
		if status != http.StatusOK {
			state = "DEGRADED"
		}
		c.JSON(status, gin.H{"status": state, "dependencies": deps})
	}
}
