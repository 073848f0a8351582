package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/easycicd/agent/internal/store"
)

// ListBuilds handles GET /api/builds?project_id&limit.
func (h *Handlers) ListBuilds(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Query("project_id"), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "project_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	builds, err := h.db.ListBuildsForProject(c.Request.Context(), projectID, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list builds")
		return
	}
	c.JSON(http.StatusOK, builds)
}

func (h *Handlers) buildIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid build id")
		return 0, false
	}
	return id, true
}

func (h *Handlers) loadBuild(c *gin.Context) (store.Build, bool) {
	id, ok := h.buildIDParam(c)
	if !ok {
		return store.Build{}, false
	}
	b, err := h.db.GetBuild(c.Request.Context(), id)
	if err == store.ErrNotFound {
		errorResponse(c, http.StatusNotFound, "build not found")
		return store.Build{}, false
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load build")
		return store.Build{}, false
	}
	return b, true
}

// GetBuild handles GET /api/builds/{id}.
func (h *Handlers) GetBuild(c *gin.Context) {
	b, ok := h.loadBuild(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, b)
}

func serveLogFile(c *gin.Context, path string) {
	if path == "" {
		c.String(http.StatusOK, "")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.String(http.StatusOK, "")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to read log")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// GetBuildLogs handles GET /api/builds/{id}/logs: build and deploy logs
// concatenated.
func (h *Handlers) GetBuildLogs(c *gin.Context) {
	b, ok := h.loadBuild(c)
	if !ok {
		return
	}
	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if data, err := os.ReadFile(b.LogPath); err == nil {
		c.Writer.Write(data)
	}
	if data, err := os.ReadFile(b.DeployLogPath); err == nil {
		c.Writer.Write(data)
	}
}

// GetBuildOnlyLogs handles GET /api/builds/{id}/build-logs.
func (h *Handlers) GetBuildOnlyLogs(c *gin.Context) {
	b, ok := h.loadBuild(c)
	if !ok {
		return
	}
	serveLogFile(c, b.LogPath)
}

// GetDeployOnlyLogs handles GET /api/builds/{id}/deploy-logs.
func (h *Handlers) GetDeployOnlyLogs(c *gin.Context) {
	b, ok := h.loadBuild(c)
	if !ok {
		return
	}
	serveLogFile(c, b.DeployLogPath)
}
