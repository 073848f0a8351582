package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easycicd/agent/internal/sysinfo"
)

// SystemStatus handles GET /api/system/status.
func (h *Handlers) SystemStatus(c *gin.Context) {
	snap, err := sysinfo.Sample(c.Request.Context(), h.cfg.DataDir)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to sample system status")
		return
	}
	c.JSON(http.StatusOK, snap)
}
