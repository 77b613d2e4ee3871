package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/health"
	"github.com/ridgegate/ridgegate/internal/proxy"
)

// HealthHandler serves the aggregate health endpoints.
type HealthHandler struct {
	dispatcher *proxy.Dispatcher
	monitor    *health.Monitor
	logger     *zap.Logger
}

// Get handles GET /health. The response is always 200; a degraded gateway
// reports it in the status field.
func (h *HealthHandler) Get(c *gin.Context) {
	report, err := h.dispatcher.CheckHealth(c.Request.Context())
	if err != nil {
		h.logger.Error("health aggregation failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "health aggregation failed")
		return
	}
	c.JSON(http.StatusOK, report)
}

// History handles GET /health/history with the monitor's persisted sweeps.
func (h *HealthHandler) History(c *gin.Context) {
	if h.monitor == nil {
		writeError(c, http.StatusNotFound, "health monitoring is disabled")
		return
	}
	records, err := h.monitor.History(c.Request.Context())
	if err != nil {
		h.logger.Error("health history load failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "health history unavailable")
		return
	}
	c.JSON(http.StatusOK, records)
}
