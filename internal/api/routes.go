package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/easycicd/agent/internal/metrics"
	"github.com/easycicd/agent/internal/store"
)

// SetupRoutes wires CORS, a global trace middleware, a session-gated
// /api group, and the unauthenticated webhook and global event stream
// endpoints.
func SetupRoutes(r *gin.Engine, h *Handlers, db *store.Store, corsOrigins []string) {
	if len(corsOrigins) > 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowOrigins = corsOrigins
		cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
		r.Use(cors.New(cfg))
	}

	r.Use(TraceMiddleware())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/webhook/github", h.GitHubWebhook)
	r.GET("/ws", h.GlobalEvents)

	api := r.Group("/api")
	api.Use(SessionMiddleware(db))
	{
		api.POST("/projects", h.CreateProject)
		api.GET("/projects", h.ListProjects)
		api.GET("/projects/:id", h.GetProject)
		api.DELETE("/projects/:id", h.DeleteProject)
		api.POST("/projects/:id/builds", h.TriggerBuild)
		api.POST("/projects/:id/rollback/:bid", h.RollbackBuild)
		api.POST("/projects/:id/containers/:action", h.ProjectContainerAction)
		api.GET("/projects/:id/runtime-logs", h.ProjectRuntimeLogs)

		api.GET("/system/status", h.SystemStatus)
		api.GET("/detect", h.DetectProjectConfig)

		api.GET("/settings", h.ListSettings)
		api.GET("/settings/:key", h.GetSetting)
		api.PUT("/settings/:key", h.SetSetting)

		api.GET("/builds", h.ListBuilds)
		api.GET("/builds/:id", h.GetBuild)
		api.GET("/builds/:id/logs", h.GetBuildLogs)
		api.GET("/builds/:id/build-logs", h.GetBuildOnlyLogs)
		api.GET("/builds/:id/deploy-logs", h.GetDeployOnlyLogs)

		api.POST("/containers", h.CreateContainer)
		api.GET("/containers", h.ListContainers)
		api.GET("/containers/:id", h.GetContainer)
		api.DELETE("/containers/:id", h.DeleteContainer)
		api.POST("/containers/:id/start", h.StartContainer)
		api.POST("/containers/:id/stop", h.StopContainer)
		api.GET("/containers/:id/logs", h.GetContainerLogs)
		api.GET("/containers/:id/terminal", h.ContainerTerminal)
	}
}
