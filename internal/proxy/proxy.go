// Package proxy implements the reverse proxy: a request-time router to
// the active blue/green slot of a project, or to a standalone container,
// relying on the container daemon's embedded DNS for upstream name
// resolution.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/store"
)

// Proxy routes incoming requests to project slots or standalone containers.
type Proxy struct {
	db         *store.Store
	baseDomain string
}

// New constructs a Proxy. baseDomain may be empty, disabling subdomain routing.
func New(db *store.Store, baseDomain string) *Proxy {
	return &Proxy{db: db, baseDomain: baseDomain}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}

	upstream, path, err := p.resolveTarget(r.Context(), host, r.URL.Path)
	if err != nil {
		p.writeError(w, err)
		return
	}

	forwardURL := *r.URL
	forwardURL.Path = path

	rp := httputil.NewSingleHostReverseProxy(upstream)
	originalDirector := rp.Director
	rp.Director = func(req *http.Request) {
		originalDirector(req)
		req.URL.Path = path
		req.URL.RawQuery = forwardURL.RawQuery
		req.Host = upstream.Host
		req.Header.Del("Content-Length")
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("upstream", upstream.String()).Msg("proxy: upstream error")
		w.WriteHeader(http.StatusBadGateway)
	}

	rp.ServeHTTP(w, r)
}

// targetError carries the HTTP status a resolution failure should produce.
type targetError struct {
	status  int
	message string
}

func (e *targetError) Error() string { return e.message }

func (p *Proxy) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	if te, ok := err.(*targetError); ok {
		status = te.status
		message = te.message
	}
	w.WriteHeader(status)
	fmt.Fprintf(w, "%s", message)
}

// resolveTarget tries subdomain routing first, falling back to
// path-based routing when no base domain is configured or the host
// doesn't match it.
func (p *Proxy) resolveTarget(ctx context.Context, host, path string) (*url.URL, string, error) {
	if p.baseDomain != "" && strings.HasSuffix(host, "."+p.baseDomain) {
		subdomain := strings.TrimSuffix(host, "."+p.baseDomain)
		if strings.HasSuffix(subdomain, "-app") {
			name := strings.TrimSuffix(subdomain, "-app")
			return p.resolveProject(ctx, name, path)
		}
		return p.resolveContainer(ctx, subdomain, path)
	}

	trimmed := strings.TrimPrefix(path, "/")
	segments := strings.SplitN(trimmed, "/", 2)
	name := segments[0]
	remainder := "/"
	if len(segments) == 2 {
		remainder = "/" + segments[1]
	}
	return p.resolveProject(ctx, name, remainder)
}

func (p *Proxy) resolveProject(ctx context.Context, name, path string) (*url.URL, string, error) {
	project, err := p.db.GetProjectByName(ctx, name)
	if err != nil {
		return nil, "", &targetError{status: http.StatusNotFound, message: "project not found"}
	}

	containerName := store.ProjectSlotContainerName(project.ID, project.ActiveSlot)
	upstream, err := url.Parse(fmt.Sprintf("http://%s:%d", containerName, project.RuntimePort))
	if err != nil {
		return nil, "", &targetError{status: http.StatusBadGateway, message: "failed to build upstream URL"}
	}
	return upstream, path, nil
}

func (p *Proxy) resolveContainer(ctx context.Context, name, path string) (*url.URL, string, error) {
	container, err := p.db.GetContainerByName(ctx, name)
	if err != nil {
		return nil, "", &targetError{status: http.StatusNotFound, message: "container not found"}
	}
	if container.Status != store.ContainerRunning {
		return nil, "", &targetError{status: http.StatusServiceUnavailable, message: "container not running"}
	}

	port := container.ContainerPort
	if port == 0 {
		port = container.HostPort
	}

	upstream, err := url.Parse(fmt.Sprintf("http://%s:%d", container.RuntimeContainerName(), port))
	if err != nil {
		return nil, "", &targetError{status: http.StatusBadGateway, message: "failed to build upstream URL"}
	}
	return upstream, path, nil
}
