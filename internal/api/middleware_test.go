package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycicd/agent/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestSessionMiddlewareRejectsMissingCookie(t *testing.T) {
	r := newTestEngine()
	r.Use(SessionMiddleware(newTestStore(t)))
	r.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionMiddlewareAcceptsValidCookie(t *testing.T) {
	db := newTestStore(t)
	require.NoError(t, db.CreateSession(context.Background(), "tok-123", "user-1", time.Now().Add(time.Hour)))

	r := newTestEngine()
	r.Use(SessionMiddleware(db))
	r.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "easycicd_session", Value: "tok-123"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTraceMiddlewareGeneratesAndEchoesTraceID(t *testing.T) {
	r := newTestEngine()
	r.Use(TraceMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("x-trace-id"))
}

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	r := newTestEngine()
	r.Use(TraceMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("x-trace-id", "fixed-trace")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "fixed-trace", rec.Header().Get("x-trace-id"))
}
