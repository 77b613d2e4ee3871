package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/circuitbreaker"
	"github.com/ridgegate/ridgegate/internal/loadbalancer"
	"github.com/ridgegate/ridgegate/internal/metrics"
	"github.com/ridgegate/ridgegate/internal/router"
	"github.com/ridgegate/ridgegate/internal/types"
)

// RouteHandler serves the route administration endpoints.
type RouteHandler struct {
	routes   *router.Store
	breakers *circuitbreaker.Manager
	balancer *loadbalancer.RoundRobin
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRouteHandler creates the administration handler. Breaker, balancer and
// metrics references let route deletion clear the service's derived state.
func NewRouteHandler(routes *router.Store, breakers *circuitbreaker.Manager, balancer *loadbalancer.RoundRobin, m *metrics.Metrics, logger *zap.Logger) *RouteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteHandler{
		routes:   routes,
		breakers: breakers,
		balancer: balancer,
		metrics:  m,
		logger:   logger,
	}
}

// Register mounts the handler under the given group.
func (h *RouteHandler) Register(g *gin.RouterGroup) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.POST("/refresh", h.Refresh)
	g.GET("/:serviceId", h.Get)
	g.PUT("/:serviceId", h.Update)
	g.DELETE("/:serviceId", h.Delete)
}

// Create handles POST /routes.
func (h *RouteHandler) Create(c *gin.Context) {
	var route types.Route
	if err := c.ShouldBindJSON(&route); err != nil {
		writeError(c, http.StatusBadRequest, "invalid route payload: "+err.Error())
		return
	}
	created, err := h.routes.Create(c.Request.Context(), &route)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List handles GET /routes.
func (h *RouteHandler) List(c *gin.Context) {
	routes, err := h.routes.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, routes)
}

// Get handles GET /routes/:serviceId.
func (h *RouteHandler) Get(c *gin.Context) {
	route, err := h.routes.Get(c.Request.Context(), c.Param("serviceId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// Update handles PUT /routes/:serviceId.
func (h *RouteHandler) Update(c *gin.Context) {
	var patch router.RoutePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, http.StatusBadRequest, "invalid patch payload: "+err.Error())
		return
	}
	updated, err := h.routes.Update(c.Request.Context(), c.Param("serviceId"), &patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /routes/:serviceId. Derived per-service state
// (breaker, rotation cursor, metric series) goes with the route.
func (h *RouteHandler) Delete(c *gin.Context) {
	serviceID := c.Param("serviceId")
	if err := h.routes.Delete(c.Request.Context(), serviceID); err != nil {
		h.fail(c, err)
		return
	}
	h.breakers.Remove(serviceID)
	h.balancer.Clear(serviceID)
	if h.metrics != nil {
		h.metrics.RemoveService(serviceID)
	}
	c.Status(http.StatusNoContent)
}

// Refresh handles POST /routes/refresh, forcing a live index rebuild.
func (h *RouteHandler) Refresh(c *gin.Context) {
	if err := h.routes.Refresh(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "route index refreshed"})
}

func (h *RouteHandler) fail(c *gin.Context, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("route operation failed", zap.Error(err))
	}
	writeError(c, status, err.Error())
}

// statusFromError maps the error taxonomy to HTTP status codes once, at
// the boundary.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"statusCode": status, "message": message})
}
