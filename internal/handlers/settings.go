package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// managedSettings are owned by the extension services and cannot be written directly.
var managedSettings = map[string]struct{}{
	database.SettingEnabledPlugins: {},
	database.SettingTheme:          {},
	database.SettingInstalledAt:    {},
}

// SettingsHandler reads and writes site settings.
type SettingsHandler struct {
	settings *services.SettingsService
	actions  *services.ActionLogService
	caches   []services.CacheInvalidator
}

// NewSettingsHandler constructs a settings handler. caches are flushed
// together with the settings cache on ClearCache.
func NewSettingsHandler(settings *services.SettingsService, actions *services.ActionLogService, caches ...services.CacheInvalidator) *SettingsHandler {
	return &SettingsHandler{settings: settings, actions: actions, caches: caches}
}

type updateSettingsRequest struct {
	Settings map[string]string `json:"settings" validate:"required,min=1"`
}

// GET /api/admin/settings
func (h *SettingsHandler) List(c *gin.Context) {
	values, err := h.settings.GetAll(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, values)
}

// PUT /api/admin/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var body updateSettingsRequest
	if !bindAndValidate(c, &body) {
		return
	}

	keys := make([]string, 0, len(body.Settings))
	values := make(map[string]string, len(body.Settings))
	for key, value := range body.Settings {
		key = strings.TrimSpace(key)
		if key == "" {
			response.Error(c, errors.NewBadRequest("setting keys cannot be empty"))
			return
		}
		if isManagedSetting(key) {
			response.Error(c, errors.NewBadRequest("setting "+key+" is managed by the extension services"))
			return
		}
		keys = append(keys, key)
		values[key] = value
	}
	sort.Strings(keys)

	ctx := requestContext(c)
	if err := h.settings.SetMany(ctx, values); err != nil {
		response.Error(c, err)
		return
	}
	if h.actions != nil {
		_ = h.actions.Log(ctx, services.ActionEntry{
			Action:     services.ActionSettingsUpdate,
			EntityType: "settings",
			Data:       map[string]any{"keys": keys},
		})
	}

	all, err := h.settings.GetAll(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, all)
}

// POST /api/admin/settings/clear-cache
func (h *SettingsHandler) ClearCache(c *gin.Context) {
	ctx := requestContext(c)
	if err := h.settings.ClearCache(ctx); err != nil {
		response.Error(c, err)
		return
	}
	for _, cache := range h.caches {
		cache.Invalidate(ctx)
	}
	response.Success(c, http.StatusOK, gin.H{"cleared": true})
}

func isManagedSetting(key string) bool {
	if _, ok := managedSettings[key]; ok {
		return true
	}
	return strings.HasPrefix(key, "theme.") && strings.HasSuffix(key, ".config")
}
