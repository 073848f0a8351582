package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/audit"
	"github.com/easycicd/agent/internal/runtime"
	"github.com/easycicd/agent/internal/store"
)

// standaloneNetwork is the shared daemon network every standalone
// container joins, so the reverse proxy's embedded-DNS lookup of
// "container-<name>" resolves regardless of which project
// networks also exist.
const standaloneNetwork = "easycicd-containers"

type createContainerRequest struct {
	Name          string `json:"name" binding:"required"`
	Image         string `json:"image" binding:"required"`
	ContainerPort int    `json:"container_port" binding:"required"`
	EnvVars       string `json:"env_vars"`
	Command       string `json:"command"`
	PersistData   bool   `json:"persist_data"`
	ProtocolType  string `json:"protocol_type"`
}

// CreateContainer handles POST /api/containers.
func (h *Handlers) CreateContainer(c *gin.Context) {
	var req createContainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid container payload: "+err.Error())
		return
	}

	proto := store.ProtocolType(req.ProtocolType)
	if proto == "" {
		proto = store.ProtocolHTTP
	}

	container, err := h.db.CreateContainer(c.Request.Context(), h.cfg.ContainerPortRangeStart, h.cfg.ContainerPortRangeEnd, store.ContainerSpec{
		Name:          req.Name,
		Image:         req.Image,
		ContainerPort: req.ContainerPort,
		EnvVars:       req.EnvVars,
		Command:       req.Command,
		PersistData:   req.PersistData,
		ProtocolType:  proto,
	})
	switch err {
	case nil:
	case store.ErrNameTaken:
		errorResponse(c, http.StatusBadRequest, "a container with this name already exists")
		return
	case store.ErrPortExhausted:
		errorResponse(c, http.StatusInternalServerError, "no free container ports remain")
		return
	default:
		errorResponse(c, http.StatusInternalServerError, "failed to create container")
		return
	}

	ctx := c.Request.Context()
	if err := h.engine.EnsureImage(ctx, container.Image); err != nil {
		errorResponse(c, http.StatusBadGateway, "failed to pull image: "+err.Error())
		return
	}
	if err := h.engine.EnsureNetwork(ctx, standaloneNetwork, map[string]string{"easycicd.managed": "true"}); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to ensure container network: "+err.Error())
		return
	}
	runtimeID, err := h.engine.RunRuntime(ctx, runtimeConfigFor(container, h.cfg.DataDir))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to start container: "+err.Error())
		return
	}
	if err := h.db.SetContainerRuntimeID(ctx, container.ID, &runtimeID); err != nil {
		log.Warn().Err(err).Int64("container_id", container.ID).Msg("api: failed to persist container runtime id")
	}
	if err := h.db.SetContainerStatus(ctx, container.ID, store.ContainerRunning); err != nil {
		log.Warn().Err(err).Int64("container_id", container.ID).Msg("api: failed to mark container running")
	}
	container.ContainerID = &runtimeID
	container.Status = store.ContainerRunning

	h.audit(ctx, sessionActor(c), audit.ActionContainerCreate, "container", strconv.FormatInt(container.ID, 10))
	c.JSON(http.StatusCreated, container)
}

func runtimeConfigFor(cont store.Container, dataDir string) runtime.RuntimeConfig {
	var env map[string]string
	if cont.EnvVars != "" && cont.EnvVars != "{}" {
		_ = json.Unmarshal([]byte(cont.EnvVars), &env)
	}
	var persistVolume string
	if cont.PersistData {
		persistVolume = dataDir + "/containers/" + cont.Name
	}
	return runtime.RuntimeConfig{
		Name:          cont.RuntimeContainerName(),
		Image:         cont.Image,
		Command:       cont.Command,
		HostPort:      cont.HostPort,
		ContainerPort: cont.ContainerPort,
		Env:           env,
		NetworkName:   standaloneNetwork,
		NetworkAlias:  cont.RuntimeContainerName(),
		PersistVolume: persistVolume,
		Labels:        map[string]string{"easycicd.container_id": strconv.FormatInt(cont.ID, 10)},
	}
}

// ListContainers handles GET /api/containers.
func (h *Handlers) ListContainers(c *gin.Context) {
	containers, err := h.db.ListContainers(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list containers")
		return
	}
	c.JSON(http.StatusOK, containers)
}

func (h *Handlers) containerIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid container id")
		return 0, false
	}
	return id, true
}

func (h *Handlers) loadContainer(c *gin.Context) (store.Container, bool) {
	id, ok := h.containerIDParam(c)
	if !ok {
		return store.Container{}, false
	}
	cont, err := h.db.GetContainer(c.Request.Context(), id)
	if err == store.ErrNotFound {
		errorResponse(c, http.StatusNotFound, "container not found")
		return store.Container{}, false
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load container")
		return store.Container{}, false
	}
	return cont, true
}

// GetContainer handles GET /api/containers/{id}.
func (h *Handlers) GetContainer(c *gin.Context) {
	cont, ok := h.loadContainer(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cont)
}

// DeleteContainer handles DELETE /api/containers/{id}.
func (h *Handlers) DeleteContainer(c *gin.Context) {
	cont, ok := h.loadContainer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if cont.ContainerID != nil {
		if err := h.engine.Stop(ctx, *cont.ContainerID, 10); err != nil {
			log.Warn().Err(err).Int64("container_id", cont.ID).Msg("api: failed to stop container before delete")
		}
		if err := h.engine.Remove(ctx, *cont.ContainerID, true); err != nil {
			log.Warn().Err(err).Int64("container_id", cont.ID).Msg("api: failed to remove container before delete")
		}
	}
	if err := h.db.DeleteContainer(ctx, cont.ID); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to delete container")
		return
	}
	h.audit(ctx, sessionActor(c), audit.ActionContainerDelete, "container", strconv.FormatInt(cont.ID, 10))
	c.Status(http.StatusNoContent)
}

// StartContainer handles POST /api/containers/{id}/start.
func (h *Handlers) StartContainer(c *gin.Context) {
	cont, ok := h.loadContainer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if cont.ContainerID == nil {
		errorResponse(c, http.StatusBadRequest, "container has never been created in the runtime")
		return
	}
	if err := h.engine.Start(ctx, *cont.ContainerID); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to start container: "+err.Error())
		return
	}
	_ = h.db.SetContainerStatus(ctx, cont.ID, store.ContainerRunning)
	h.audit(ctx, sessionActor(c), audit.ActionContainerStart, "container", strconv.FormatInt(cont.ID, 10))
	c.JSON(http.StatusOK, gin.H{"message": "started"})
}

// StopContainer handles POST /api/containers/{id}/stop.
func (h *Handlers) StopContainer(c *gin.Context) {
	cont, ok := h.loadContainer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if cont.ContainerID == nil {
		errorResponse(c, http.StatusBadRequest, "container has never been created in the runtime")
		return
	}
	if err := h.engine.Stop(ctx, *cont.ContainerID, 10); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to stop container: "+err.Error())
		return
	}
	_ = h.db.SetContainerStatus(ctx, cont.ID, store.ContainerStopped)
	h.audit(ctx, sessionActor(c), audit.ActionContainerStop, "container", strconv.FormatInt(cont.ID, 10))
	c.JSON(http.StatusOK, gin.H{"message": "stopped"})
}

// GetContainerLogs handles GET /api/containers/{id}/logs.
func (h *Handlers) GetContainerLogs(c *gin.Context) {
	cont, ok := h.loadContainer(c)
	if !ok {
		return
	}
	if cont.ContainerID == nil {
		c.String(http.StatusOK, "")
		return
	}
	reader, err := h.engine.StreamLogs(c.Request.Context(), *cont.ContainerID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to read logs: "+err.Error())
		return
	}
	defer reader.Close()
	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			c.Writer.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// ContainerTerminal handles GET /api/containers/{id}/terminal, a
// WebSocket bridging a client terminal to an interactive exec session.
func (h *Handlers) ContainerTerminal(c *gin.Context) {
	cont, ok := h.loadContainer(c)
	if !ok {
		return
	}
	if cont.ContainerID == nil {
		errorResponse(c, http.StatusBadRequest, "container is not running")
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("api: terminal websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	session, err := h.engine.CreateExec(ctx, *cont.ContainerID, []string{"sh"})
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte("exec failed: "+err.Error()))
		return
	}
	defer session.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := session.Output.Read(buf)
			if n > 0 {
				if writeErr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.BinaryMessage || msgType == websocket.TextMessage {
			if _, err := session.Stdin.Write(data); err != nil {
				break
			}
		}
	}
	<-done
}
