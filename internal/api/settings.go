package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easycicd/agent/internal/audit"
	"github.com/easycicd/agent/internal/store"
)

// settingWebhookSecret is read back by webhookSecret below, and detect.go
// reads settingGitHubToken the same way. settingBaseDomain names the
// "base_domain" key, but nothing in the agent reads it back: the reverse
// proxy takes its base domain from configuration. Operators may store
// additional keys (e.g. "tcp_domain", "webhook_url") purely for their own
// tooling to read via GetSetting/SetSetting.
const (
	settingWebhookSecret = "webhook_secret"
	settingBaseDomain    = "base_domain"
)

// webhookSecret returns the effective HMAC secret: a persisted override in
// the settings table takes precedence over the WEBHOOK_SECRET environment
// variable, so an operator can rotate it without a restart.
func (h *Handlers) webhookSecret(c *gin.Context) string {
	if v, err := h.db.GetSetting(c.Request.Context(), settingWebhookSecret); err == nil {
		return v
	}
	return h.cfg.WebhookSecret
}

type settingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
	Set   bool   `json:"set"`
}

// GetSetting handles GET /api/settings/:key.
func (h *Handlers) GetSetting(c *gin.Context) {
	key := c.Param("key")
	value, err := h.db.GetSetting(c.Request.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, settingResponse{Key: key, Set: false})
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to get setting")
		return
	}
	c.JSON(http.StatusOK, settingResponse{Key: key, Value: value, Set: true})
}

type setSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

// SetSetting handles PUT /api/settings/:key.
func (h *Handlers) SetSetting(c *gin.Context) {
	key := c.Param("key")
	var req setSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid setting payload: "+err.Error())
		return
	}
	if err := h.db.SetSetting(c.Request.Context(), key, req.Value); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to save setting")
		return
	}
	h.audit(c.Request.Context(), "api", audit.ActionSettingUpdate, "setting", key)
	c.JSON(http.StatusOK, settingResponse{Key: key, Value: req.Value, Set: true})
}

// ListSettings handles GET /api/settings.
func (h *Handlers) ListSettings(c *gin.Context) {
	settings, err := h.db.ListSettings(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}
