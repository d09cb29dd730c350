package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"water-dispatch-backend/internal/dispatch"
)

// GetMonitor mounts the caller's monitor and returns its state.
func (h *Handler) GetMonitor(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor(c).Snapshot())
}

type putLevelRequest struct {
	Level *int `json:"level" binding:"required"`
}

// PutLevel sets the simulated tank level.
func (h *Handler) PutLevel(c *gin.Context) {
	var req putLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.monitor(c).SetLevel(c.Request.Context(), *req.Level)
	h.writeSnapshot(c, snap, err)
}

type adjustLevelRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// PostAdjust raises or lowers the simulated tank level.
func (h *Handler) PostAdjust(c *gin.Context) {
	var req adjustLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.monitor(c).AdjustLevel(c.Request.Context(), req.Delta)
	h.writeSnapshot(c, snap, err)
}

// writeSnapshot reports a level change. A failed automatic submission still
// returns the updated state alongside the error.
func (h *Handler) writeSnapshot(c *gin.Context, snap dispatch.Snapshot, err error) {
	if err != nil {
		h.writeError(c, err, gin.H{"monitor": snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// PostPoll runs a completion poll now.
func (h *Handler) PostPoll(c *gin.Context) {
	m := h.monitor(c)
	reset := m.PollForCompletion(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"reset": reset, "monitor": m.Snapshot()})
}

// DeleteMonitor stops the caller's completion poll and saves its state.
func (h *Handler) DeleteMonitor(c *gin.Context) {
	if err := h.hub.Unmount(c.Request.Context(), requester(c).ID); err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetActivity returns the caller's recent activity, newest first.
func (h *Handler) GetActivity(c *gin.Context) {
	if m, err := h.hub.Get(requester(c).ID); err == nil {
		c.JSON(http.StatusOK, m.Snapshot().Activity)
		return
	}

	entries, err := h.store.RecentActivity(c.Request.Context(), requester(c).ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve activity"})
		return
	}
	c.JSON(http.StatusOK, entries)
}
