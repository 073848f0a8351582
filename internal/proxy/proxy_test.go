package proxy

import (
	"context"
	"net/http"
	"testing"

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

func TestResolveTargetSubdomainProjectRoute(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	_, err := db.CreateProject(ctx, 10000, 14999, store.ProjectSpec{Name: "hello", Repo: "octocat/hello", RuntimePort: 8080})
	require.NoError(t, err)

	p := New(db, "apps.example.com")
	upstream, path, err := p.resolveTarget(ctx, "hello-app.apps.example.com", "/index.html")
	require.NoError(t, err)
	assert.Equal(t, "project-1-blue", upstream.Hostname())
	assert.Equal(t, "8080", upstream.Port())
	assert.Equal(t, "/index.html", path)
}

func TestResolveTargetPathFallback(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	_, err := db.CreateProject(ctx, 10000, 14999, store.ProjectSpec{Name: "hello", Repo: "octocat/hello", RuntimePort: 8080})
	require.NoError(t, err)

	p := New(db, "")
	upstream, path, err := p.resolveTarget(ctx, "anything", "/hello/about")
	require.NoError(t, err)
	assert.Equal(t, "project-1-blue", upstream.Hostname())
	assert.Equal(t, "/about", path)
}

func TestResolveTargetUnknownProjectIs404(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	p := New(db, "")

	_, _, err := p.resolveTarget(ctx, "anything", "/missing")
	require.Error(t, err)
	var te *targetError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.status)
}

func TestResolveTargetContainerNotRunningIs503(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	_, err := db.CreateContainer(ctx, 15000, 19999, store.ContainerSpec{Name: "redis", Image: "redis:alpine", ContainerPort: 6379})
	require.NoError(t, err)

	p := New(db, "apps.example.com")
	_, _, err = p.resolveTarget(ctx, "redis.apps.example.com", "/")
	require.Error(t, err)
	var te *targetError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.status)
}
