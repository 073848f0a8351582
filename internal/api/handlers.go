// Package api implements the agent's HTTP surface: project and build
// CRUD, container CRUD, the GitHub webhook, and the WebSocket endpoints
// for runtime logs, container terminals, and the global event stream.
// Routed with gin-gonic/gin.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/easycicd/agent/internal/audit"
	"github.com/easycicd/agent/internal/build"
	"github.com/easycicd/agent/internal/config"
	"github.com/easycicd/agent/internal/deploy"
	"github.com/easycicd/agent/internal/events"
	"github.com/easycicd/agent/internal/queue"
	"github.com/easycicd/agent/internal/runtime"
	"github.com/easycicd/agent/internal/store"
	"github.com/easycicd/agent/internal/wsfanout"
)

// Handlers bundles every dependency the route handlers need.
type Handlers struct {
	db       *store.Store
	bus      *events.Bus
	engine   runtime.Engine
	builder  *build.Service
	deployer *deploy.Service
	q        *queue.Queue
	hub      *wsfanout.Hub
	cfg      *config.Config
	auditLog *audit.Logger
}

// New constructs the Handlers bundle.
func New(db *store.Store, bus *events.Bus, engine runtime.Engine, builder *build.Service, deployer *deploy.Service, q *queue.Queue, hub *wsfanout.Hub, cfg *config.Config) *Handlers {
	return &Handlers{
		db:       db,
		bus:      bus,
		engine:   engine,
		builder:  builder,
		deployer: deployer,
		q:        q,
		hub:      hub,
		cfg:      cfg,
		auditLog: audit.New(db),
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// TraceMiddleware reads x-trace-id, generating a v4 UUID when absent, and
// echoes it back on the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("x-trace-id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header("x-trace-id", traceID)
		c.Next()
	}
}

func traceIDFromContext(c *gin.Context) string {
	if v, ok := c.Get("trace_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SessionMiddleware gates every /api route (except the webhook) behind an
// active session cookie. OAuth/session issuance is external to this
// agent; this middleware only validates the opaque bearer token the
// session cookie carries against the store.
func SessionMiddleware(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie("easycicd_session")
		if err != nil || token == "" {
			errorResponse(c, http.StatusUnauthorized, "missing session cookie")
			c.Abort()
			return
		}
		if _, err := db.GetSession(c.Request.Context(), token); err != nil {
			errorResponse(c, http.StatusUnauthorized, "invalid or expired session")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *Handlers) audit(ctx context.Context, actor string, action audit.Action, targetType, targetID string) {
	h.auditLog.Record(ctx, actor, action, targetType, targetID, nil)
}
