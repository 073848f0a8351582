package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/store"
	"github.com/easycicd/agent/internal/wsfanout"
)

// wsUpgrader is shared by every WebSocket endpoint in this package.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GlobalEvents handles GET /ws: every event published to the bus,
// subject to the client's subscribe/unsubscribe control messages.
func (h *Handlers) GlobalEvents(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("api: global event websocket upgrade failed")
		return
	}
	h.hub.Register(c.Request.Context(), conn, wsfanout.Filter{Kind: wsfanout.TargetGlobal})
}

// ProjectRuntimeLogs handles GET /api/projects/{id}/runtime-logs: a live
// tail of the active slot's runtime container, streamed over the
// connection rather than through the event bus.
func (h *Handlers) ProjectRuntimeLogs(c *gin.Context) {
	id, ok := h.projectIDParam(c)
	if !ok {
		return
	}
	project, err := h.db.GetProject(c.Request.Context(), id)
	if err == store.ErrNotFound {
		errorResponse(c, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load project")
		return
	}
	containerID := project.ContainerIDForSlot(project.ActiveSlot)
	if containerID == nil {
		errorResponse(c, http.StatusBadRequest, "active slot has no running container")
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("api: runtime log websocket upgrade failed")
		return
	}
	defer conn.Close()

	reader, err := h.engine.StreamLogs(c.Request.Context(), *containerID)
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte("failed to stream logs: "+err.Error()))
		return
	}
	defer reader.Close()

	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if writeErr := conn.WriteMessage(websocket.TextMessage, buf[:n]); writeErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
