package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easycicd/agent/internal/detect"
)

const settingGitHubToken = "github_token"

func (h *Handlers) githubToken(c *gin.Context) string {
	if v, err := h.db.GetSetting(c.Request.Context(), settingGitHubToken); err == nil {
		return v
	}
	return h.cfg.GitHubToken
}

type detectResponse struct {
	ProjectType      string `json:"project_type"`
	BuildImage       string `json:"build_image"`
	BuildCommand     string `json:"build_command"`
	CacheType        string `json:"cache_type"`
	RuntimeImage     string `json:"runtime_image"`
	RuntimeCommand   string `json:"runtime_command"`
	HealthCheckURL   string `json:"health_check_url"`
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// DetectProjectConfig handles GET /api/detect, inferring a project's
// build/runtime recipe from its repository so a create-project form can
// be prefilled instead of hand-typed.
func (h *Handlers) DetectProjectConfig(c *gin.Context) {
	owner := c.Query("owner")
	repo := c.Query("repo")
	branch := c.DefaultQuery("branch", "main")
	pathFilter := c.Query("path_filter")
	workflowPath := c.Query("workflow_path")

	if owner == "" || repo == "" {
		errorResponse(c, http.StatusBadRequest, "owner and repo query params are required")
		return
	}

	token := h.githubToken(c)
	if token == "" {
		errorResponse(c, http.StatusPreconditionFailed, "no github token configured (set GITHUB_TOKEN or the github_token setting)")
		return
	}

	detector := detect.NewDetector(detect.NewHTTPClient(token))
	config, err := detector.Detect(c.Request.Context(), owner, repo, branch, pathFilter, workflowPath)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c.JSON(http.StatusOK, detectResponse{
		ProjectType:      config.ProjectType,
		BuildImage:       config.BuildImage,
		BuildCommand:     config.BuildCommand,
		CacheType:        config.CacheType,
		RuntimeImage:     config.RuntimeImage,
		RuntimeCommand:   config.RuntimeCommand,
		HealthCheckURL:   config.HealthCheckURL,
		WorkingDirectory: config.WorkingDirectory,
	})
}
