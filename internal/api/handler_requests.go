package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"water-dispatch-backend/internal/dispatch"
	"water-dispatch-backend/internal/requestsvc"
)

// PostRequest submits a manual emergency request from the form draft.
func (h *Handler) PostRequest(c *gin.Context) {
	var draft dispatch.EmergencyRequestDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.monitor(c).SubmitManualRequest(c.Request.Context(), draft)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListRequests returns the caller's requests as reported by the request service.
func (h *Handler) ListRequests(c *gin.Context) {
	requests, err := h.requests.ListByRequester(c.Request.Context(), requester(c).ID)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	if requests == nil {
		requests = []requestsvc.EmergencyRequest{}
	}
	c.JSON(http.StatusOK, requests)
}

type putStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PutRequestStatus forwards a status change to the request service.
func (h *Handler) PutRequestStatus(c *gin.Context) {
	var req putStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, ok := requestsvc.ParseStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + req.Status})
		return
	}

	updated, err := h.requests.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, updated)
}
