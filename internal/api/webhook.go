package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/audit"
	"github.com/easycicd/agent/internal/store"
)

// githubHeadCommit is the commit a push event is centered on. It is a
// pointer field on githubPushPayload so a payload with no head_commit at
// all (e.g. a branch deletion push) is distinguishable from one whose
// commit touched no files.
type githubHeadCommit struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// githubPushPayload is the subset of a GitHub push event payload the
// webhook filter needs.
type githubPushPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	HeadCommit *githubHeadCommit `json:"head_commit"`
}

func (p githubPushPayload) changedFiles() []string {
	if p.HeadCommit == nil {
		return nil
	}
	out := make([]string, 0, len(p.HeadCommit.Added)+len(p.HeadCommit.Modified)+len(p.HeadCommit.Removed))
	out = append(out, p.HeadCommit.Added...)
	out = append(out, p.HeadCommit.Modified...)
	out = append(out, p.HeadCommit.Removed...)
	return out
}

// matchesPathFilter reports whether any changed file matches any glob in
// the project's comma-separated path_filter.
func matchesPathFilter(pathFilter string, changed []string) bool {
	for _, pattern := range strings.Split(pathFilter, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		for _, f := range changed {
			if ok, _ := doublestar.Match(pattern, f); ok {
				return true
			}
		}
	}
	return false
}

func verifyWebhookSignature(body []byte, signature, secret string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := prefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// GitHubWebhook handles POST /webhook/github. Verifies the
// HMAC signature, matches the push against every project's repo/branch,
// and enqueues a build for the first match whose path_filter matches at
// least one changed file.
func (h *Handlers) GitHubWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	if secret := h.webhookSecret(c); secret != "" {
		signature := c.GetHeader("x-hub-signature-256")
		if signature == "" || !verifyWebhookSignature(body, signature, secret) {
			errorResponse(c, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
	}

	var payload githubPushPayload
	if len(body) == 0 {
		errorResponse(c, http.StatusBadRequest, "empty webhook body")
		return
	}
	c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
	if err := c.ShouldBindJSON(&payload); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	projects, err := h.db.ListProjects(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list projects")
		return
	}

	var candidates []store.Project
	for _, p := range projects {
		if p.Repo == payload.Repository.FullName && payload.Ref == "refs/heads/"+p.Branch {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "no project configured for this repository"})
		return
	}

	if payload.HeadCommit == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No commits"})
		return
	}

	changed := payload.changedFiles()
	var project *store.Project
	for i := range candidates {
		if matchesPathFilter(candidates[i].PathFilter, changed) {
			project = &candidates[i]
			break
		}
	}
	if project == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Files do not match filter"})
		return
	}

	build, err := h.db.CreateBuild(c.Request.Context(), store.BuildSpec{ProjectID: project.ID})
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to create build")
		return
	}
	logPath, deployLogPath := h.builder.LogPaths(project.ID, build.BuildNumber)
	if err := h.db.UpdateBuildLogPaths(c.Request.Context(), build.ID, logPath, deployLogPath); err != nil {
		log.Warn().Err(err).Int64("build_id", build.ID).Msg("webhook: failed to finalize build log paths")
	}

	h.q.Enqueue(project.ID, build.ID)
	h.audit(c.Request.Context(), "webhook", audit.ActionBuildTrigger, "build", strconv.FormatInt(build.ID, 10))

	c.JSON(http.StatusCreated, gin.H{"message": "build triggered", "build_id": build.ID, "project_id": project.ID})
}
