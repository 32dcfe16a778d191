package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitrinehq/vitrine/internal/domain/fragment"
	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/domain/sandbox"
	"github.com/vitrinehq/vitrine/internal/domain/security"
	"github.com/vitrinehq/vitrine/internal/infrastructure/logging"
	"github.com/vitrinehq/vitrine/internal/infrastructure/monitoring"
	"github.com/vitrinehq/vitrine/internal/service"
	"github.com/vitrinehq/vitrine/internal/shared/id"
	"github.com/vitrinehq/vitrine/internal/shared/types"
	"github.com/vitrinehq/vitrine/internal/shared/utils"
)

// Version reported by the root endpoint
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	fragments *fragment.Manager
	registry  *service.Registry
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewHandlers creates a new handler set
func NewHandlers(fragments *fragment.Manager, registry *service.Registry, logger *logging.Logger) *Handlers {
	return &Handlers{
		fragments: fragments,
		registry:  registry,
		logger:    logger,
	}
}

// WithMetrics adds metrics to the stats endpoint
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// Root handles the basic liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "vitrine",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"fragments": h.fragments.Stats(),
		"services":  h.registry.Stats(),
	})
}

// SpawnFragment boots a fragment from a manifest
func (h *Handlers) SpawnFragment(c *gin.Context) {
	var req types.SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mf, err := decodeManifest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := mf.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if mf.Code != "" {
		if err := utils.ValidateScript(mf.Code); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	frag, err := h.fragments.Spawn(c.Request.Context(), mf)
	if err != nil {
		// The fragment's own code failing is the client's problem, not ours.
		var viol *security.ViolationError
		var exec *sandbox.ExecutionError
		if errors.As(err, &viol) || errors.As(err, &exec) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, frag)
}

// ListFragments lists fragments, optionally filtered by state
func (h *Handlers) ListFragments(c *gin.Context) {
	state, err := parseState(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fragments": h.fragments.List(state),
		"stats":     h.fragments.Stats(),
	})
}

// GetFragment returns one fragment's metadata
func (h *Handlers) GetFragment(c *gin.Context) {
	fragID := c.Param("id")
	if err := utils.ValidateID(fragID, "fragment_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frag, ok := h.fragments.Get(fragID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "fragment not found"})
		return
	}

	c.JSON(http.StatusOK, frag)
}

// CloseFragment destroys a fragment
func (h *Handlers) CloseFragment(c *gin.Context) {
	fragID := c.Param("id")
	if err := utils.ValidateID(fragID, "fragment_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	success := h.fragments.Close(fragID)

	c.JSON(http.StatusOK, gin.H{
		"success":     success,
		"fragment_id": fragID,
	})
}

// ExecuteInFragment runs code inside a live fragment's sandbox
func (h *Handlers) ExecuteInFragment(c *gin.Context) {
	fragID := c.Param("id")
	if err := utils.ValidateID(fragID, "fragment_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req types.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateScript(req.Code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.fragments.Execute(c.Request.Context(), fragID, req.Code)
	if err != nil {
		if errors.Is(err, fragment.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		var viol *security.ViolationError
		var exec *sandbox.ExecutionError
		if errors.As(err, &viol) || errors.As(err, &exec) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fragment_id": fragID,
		"result":      res,
	})
}

// PostOperation transports one operation through a fragment's boundary
func (h *Handlers) PostOperation(c *gin.Context) {
	fragID := c.Param("id")
	if err := utils.ValidateID(fragID, "fragment_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var op protocol.Operation
	if err := c.ShouldBindJSON(&op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := op.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ack, err := h.fragments.Operation(c.Request.Context(), fragID, op)
	if err != nil {
		if errors.Is(err, fragment.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fragment_id": fragID,
		"result":      ack,
	})
}

// PostBatch transports an ordered batch of operations
func (h *Handlers) PostBatch(c *gin.Context) {
	fragID := c.Param("id")
	if err := utils.ValidateID(fragID, "fragment_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Operations []protocol.Operation `json:"operations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i, op := range req.Operations {
		if err := op.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("operations[%d]: %v", i, err)})
			return
		}
	}

	results, err := h.fragments.Batch(c.Request.Context(), fragID, req.Operations)
	if err != nil {
		if errors.Is(err, fragment.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fragment_id": fragID,
		"results":     results,
	})
}

// DispatchEvent invokes a listener the fragment registered
func (h *Handlers) DispatchEvent(c *gin.Context) {
	fragID := c.Param("id")
	if err := utils.ValidateID(fragID, "fragment_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Event string `json:"event" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateID(req.Event, "event", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.fragments.DispatchEvent(c.Request.Context(), fragID, req.Event)
	if err != nil {
		if errors.Is(err, fragment.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fragment_id": fragID,
		"event":       req.Event,
		"result":      res,
	})
}

// FragmentToolCall routes a tool call through a fragment's gateway, so the
// manifest allowlist applies
func (h *Handlers) FragmentToolCall(c *gin.Context) {
	fragID := c.Param("id")
	if err := utils.ValidateID(fragID, "fragment_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req types.ToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateToolID(req.ToolID, "tool_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateParams(req.Params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	call := protocol.ToolCall{
		Type:      protocol.MessageTool,
		MessageID: id.NewMessageID().String(),
		Payload:   protocol.ToolPayload{ToolName: req.ToolID, Params: req.Params},
	}

	resp, err := h.fragments.HandleTool(c.Request.Context(), fragID, call)
	if err != nil {
		if errors.Is(err, fragment.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Refusals and failures travel inside the response envelope.
	c.JSON(http.StatusOK, resp)
}

// ListServices lists registered services
func (h *Handlers) ListServices(c *gin.Context) {
	categoryStr := c.Query("category")

	var category *types.Category
	if categoryStr != "" {
		cat := types.Category(categoryStr)
		category = &cat
	}

	c.JSON(http.StatusOK, gin.H{
		"services": h.registry.List(category),
		"stats":    h.registry.Stats(),
	})
}

// ExecuteService executes a tool directly on the registry. This is the
// host surface; fragment calls go through their gateway instead.
func (h *Handlers) ExecuteService(c *gin.Context) {
	var req types.ToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := utils.ValidateToolID(req.ToolID, "tool_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FragmentID != nil {
		if err := utils.ValidateID(*req.FragmentID, "fragment_id", false); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := utils.ValidateParams(req.Params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var fragCtx *types.Context
	if req.FragmentID != nil {
		fragCtx = &types.Context{FragmentID: req.FragmentID}
	}

	result, err := h.registry.Execute(c.Request.Context(), req.ToolID, req.Params, fragCtx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Stats returns a JSON snapshot of runtime counters
func (h *Handlers) Stats(c *gin.Context) {
	resp := gin.H{
		"timestamp": time.Now(),
		"fragments": h.fragments.Stats(),
		"services":  h.registry.Stats(),
	}

	if h.metrics != nil {
		snap := h.metrics.GetSnapshot()
		resp["requests"] = gin.H{
			"total":           snap.TotalRequests,
			"errors":          snap.TotalErrors,
			"average_seconds": h.metrics.AverageRequestSeconds(),
		}
		resp["violations"] = snap.TotalViolations
		resp["ws_connections"] = snap.ActiveConnections
		resp["uptime_seconds"] = h.metrics.UptimeSeconds()
	}

	c.JSON(http.StatusOK, resp)
}
