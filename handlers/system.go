package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is anything whose reachability the health check reports
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler handles system endpoints
type SystemHandler struct {
	storage Pinger
	version string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(storage Pinger, version string) *SystemHandler {
	return &SystemHandler{storage: storage, version: version}
}

// Health handles health check via GET /health. An unreachable storage
// backend turns the answer into 503 so load balancers stop routing to us.
func (h *SystemHandler) Health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	storage := "ok"

	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			storage = "unreachable"
		}
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "pasties",
		"version": h.version,
		"storage": storage,
	})
}
