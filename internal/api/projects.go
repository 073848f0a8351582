package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/easycicd/agent/internal/audit"
	"github.com/easycicd/agent/internal/deploy"
	"github.com/easycicd/agent/internal/store"
)

type createProjectRequest struct {
	Name             string `json:"name" binding:"required"`
	Repo             string `json:"repo" binding:"required"`
	Branch           string `json:"branch" binding:"required"`
	PathFilter       string `json:"path_filter"`
	BuildImage       string `json:"build_image" binding:"required"`
	BuildCommand     string `json:"build_command" binding:"required"`
	CacheType        string `json:"cache_type"`
	WorkingDirectory string `json:"working_directory"`
	RuntimeImage     string `json:"runtime_image" binding:"required"`
	RuntimeCommand   string `json:"runtime_command" binding:"required"`
	RuntimePort      int    `json:"runtime_port" binding:"required"`
	HealthCheckURL   string `json:"health_check_url"`
}

// CreateProject handles POST /api/projects.
func (h *Handlers) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid project payload: "+err.Error())
		return
	}

	cacheType := store.CacheType(req.CacheType)
	if cacheType == "" {
		cacheType = store.CacheNone
	}
	if req.PathFilter == "" {
		req.PathFilter = "**"
	}

	cfg := h.cfg
	project, err := h.db.CreateProject(c.Request.Context(), cfg.AppPortRangeStart, cfg.AppPortRangeEnd, store.ProjectSpec{
		Name:             req.Name,
		Repo:             req.Repo,
		Branch:           req.Branch,
		PathFilter:       req.PathFilter,
		BuildImage:       req.BuildImage,
		BuildCommand:     req.BuildCommand,
		CacheType:        cacheType,
		WorkingDirectory: req.WorkingDirectory,
		RuntimeImage:     req.RuntimeImage,
		RuntimeCommand:   req.RuntimeCommand,
		RuntimePort:      req.RuntimePort,
		HealthCheckURL:   req.HealthCheckURL,
	})
	switch err {
	case nil:
	case store.ErrNameTaken:
		errorResponse(c, http.StatusBadRequest, "a project with this name already exists")
		return
	case store.ErrPortExhausted:
		errorResponse(c, http.StatusInternalServerError, "no free application ports remain")
		return
	default:
		errorResponse(c, http.StatusInternalServerError, "failed to create project")
		return
	}

	h.audit(c.Request.Context(), sessionActor(c), audit.ActionProjectCreate, "project", strconv.FormatInt(project.ID, 10))
	c.JSON(http.StatusCreated, project)
}

// ListProjects handles GET /api/projects.
func (h *Handlers) ListProjects(c *gin.Context) {
	projects, err := h.db.ListProjects(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list projects")
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handlers) projectIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid project id")
		return 0, false
	}
	return id, true
}

// GetProject handles GET /api/projects/{id}.
func (h *Handlers) GetProject(c *gin.Context) {
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
	c.JSON(http.StatusOK, project)
}

// DeleteProject handles DELETE /api/projects/{id} (cascade-delete): the
// project's builds go with its row, both slot containers are stopped and
// removed, and both slot ports are released. Workspace, output and cache
// directories are left on disk.
func (h *Handlers) DeleteProject(c *gin.Context) {
	id, ok := h.projectIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	project, getErr := h.db.GetProject(ctx, id)
	if err := h.db.DeleteProject(ctx, id); err == store.ErrNotFound {
		errorResponse(c, http.StatusNotFound, "project not found")
		return
	} else if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to delete project")
		return
	}
	if getErr == nil {
		for _, slot := range []store.Slot{store.SlotBlue, store.SlotGreen} {
			if cid := project.ContainerIDForSlot(slot); cid != nil {
				_ = h.engine.Stop(ctx, *cid, 10)
				_ = h.engine.Remove(ctx, *cid, true)
			}
			_ = h.db.ReleasePort(ctx, project.PortForSlot(slot))
		}
	}
	h.audit(c.Request.Context(), sessionActor(c), audit.ActionProjectDelete, "project", strconv.FormatInt(id, 10))
	c.Status(http.StatusNoContent)
}

// TriggerBuild handles POST /api/projects/{id}/builds.
func (h *Handlers) TriggerBuild(c *gin.Context) {
	id, ok := h.projectIDParam(c)
	if !ok {
		return
	}
	if _, err := h.db.GetProject(c.Request.Context(), id); err == store.ErrNotFound {
		errorResponse(c, http.StatusNotFound, "project not found")
		return
	} else if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load project")
		return
	}

	build, err := h.db.CreateBuild(c.Request.Context(), store.BuildSpec{ProjectID: id})
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to create build")
		return
	}

	// The log paths embed build_number, only known once the insert assigns
	// it; patch them onto the row immediately after.
	logPath, deployLogPath := h.builder.LogPaths(id, build.BuildNumber)
	if err := h.db.UpdateBuildLogPaths(c.Request.Context(), build.ID, logPath, deployLogPath); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to finalize build log paths")
		return
	}
	build.LogPath = logPath
	build.DeployLogPath = deployLogPath

	h.q.Enqueue(id, build.ID)
	h.audit(c.Request.Context(), sessionActor(c), audit.ActionBuildTrigger, "build", strconv.FormatInt(build.ID, 10))
	c.JSON(http.StatusCreated, build)
}

// RollbackBuild handles POST /api/projects/{id}/rollback/{bid}.
func (h *Handlers) RollbackBuild(c *gin.Context) {
	id, ok := h.projectIDParam(c)
	if !ok {
		return
	}
	bid, err := strconv.ParseInt(c.Param("bid"), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid build id")
		return
	}

	project, err := h.db.GetProject(c.Request.Context(), id)
	if err == store.ErrNotFound {
		errorResponse(c, http.StatusNotFound, "project not found")
		return
	} else if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load project")
		return
	}

	target, err := h.db.GetBuild(c.Request.Context(), bid)
	if err == store.ErrNotFound {
		errorResponse(c, http.StatusNotFound, "build not found")
		return
	} else if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load build")
		return
	}

	traceID := traceIDFromContext(c)
	if err := h.deployer.Rollback(c.Request.Context(), traceID, project, target); err != nil {
		if errors.Is(err, deploy.ErrRollbackPrecondition) {
			errorResponse(c, http.StatusBadRequest, "build is not a valid rollback target")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "rollback failed: "+err.Error())
		return
	}

	h.audit(c.Request.Context(), sessionActor(c), audit.ActionRollback, "project", strconv.FormatInt(id, 10))
	c.JSON(http.StatusOK, gin.H{"message": "rollback complete", "project_id": id, "build_id": bid})
}

// ProjectContainerAction handles POST /api/projects/{id}/containers/{action}.
func (h *Handlers) ProjectContainerAction(c *gin.Context) {
	id, ok := h.projectIDParam(c)
	if !ok {
		return
	}
	action := c.Param("action")

	project, err := h.db.GetProject(c.Request.Context(), id)
	if err == store.ErrNotFound {
		errorResponse(c, http.StatusNotFound, "project not found")
		return
	} else if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load project")
		return
	}

	containerID := project.ContainerIDForSlot(project.ActiveSlot)
	if containerID == nil {
		errorResponse(c, http.StatusBadRequest, "active slot has no running container")
		return
	}

	ctx := c.Request.Context()
	switch action {
	case "stop":
		err = h.engine.Stop(ctx, *containerID, 10)
	case "start":
		err = h.engine.Start(ctx, *containerID)
	case "restart":
		if err = h.engine.Stop(ctx, *containerID, 10); err == nil {
			err = h.engine.Start(ctx, *containerID)
		}
	default:
		errorResponse(c, http.StatusBadRequest, "unknown container action: "+action)
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "container action failed: "+err.Error())
		return
	}

	h.audit(ctx, sessionActor(c), audit.Action("project.container."+action), "project", strconv.FormatInt(id, 10))
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func sessionActor(c *gin.Context) string {
	if token, err := c.Cookie("easycicd_session"); err == nil && token != "" {
		return token
	}
	return "webhook"
}
