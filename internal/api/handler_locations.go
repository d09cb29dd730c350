package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLocations lists the candidate catalog with road distances from the depot.
func (h *Handler) GetLocations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"reference":  h.catalog.Reference(),
		"candidates": h.catalog.Ranked(),
	})
}
