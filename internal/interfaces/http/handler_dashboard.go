package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStats returns the dashboard counters
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.dashboardUsecase.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
