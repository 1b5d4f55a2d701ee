package handlers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// PluginHandler exposes the plugin lifecycle.
type PluginHandler struct {
	plugins       *services.PluginService
	maxUploadSize int64
}

// NewPluginHandler constructs a plugin handler. maxUploadSize bounds archive uploads.
func NewPluginHandler(plugins *services.PluginService, maxUploadSize int64) *PluginHandler {
	return &PluginHandler{plugins: plugins, maxUploadSize: maxUploadSize}
}

// GET /api/admin/plugins
func (h *PluginHandler) List(c *gin.Context) {
	items, err := h.plugins.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// GET /api/admin/plugins/:id
func (h *PluginHandler) Get(c *gin.Context) {
	item, err := h.plugins.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// POST /api/admin/plugins/:id/toggle
func (h *PluginHandler) Toggle(c *gin.Context) {
	id := c.Param("id")
	enabled, err := h.plugins.Toggle(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "enabled": enabled})
}

// POST /api/admin/plugins/:id/enable
func (h *PluginHandler) Enable(c *gin.Context) {
	h.setState(c, true)
}

// POST /api/admin/plugins/:id/disable
func (h *PluginHandler) Disable(c *gin.Context) {
	h.setState(c, false)
}

func (h *PluginHandler) setState(c *gin.Context, enabled bool) {
	id := c.Param("id")
	var err error
	if enabled {
		err = h.plugins.Enable(requestContext(c), id)
	} else {
		err = h.plugins.Disable(requestContext(c), id)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "enabled": enabled})
}

// POST /api/admin/plugins/upload (multipart: file, replace)
func (h *PluginHandler) Upload(c *gin.Context) {
	file, size, ok := openUpload(c, h.maxUploadSize)
	if !ok {
		return
	}
	defer file.Close()

	dto, err := h.plugins.InstallFromArchive(requestContext(c), file, size, services.InstallOptions{
		Replace: uploadReplace(c),
		Source:  services.SourceUpload,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dto)
}

// DELETE /api/admin/plugins/:id?purge=true
func (h *PluginHandler) Uninstall(c *gin.Context) {
	id := c.Param("id")
	if err := h.plugins.Uninstall(requestContext(c), id, parseBoolQuery(c, "purge")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// ThemeHandler exposes theme activation, installs and configuration.
type ThemeHandler struct {
	themes        *services.ThemeService
	maxUploadSize int64
}

// NewThemeHandler constructs a theme handler.
func NewThemeHandler(themes *services.ThemeService, maxUploadSize int64) *ThemeHandler {
	return &ThemeHandler{themes: themes, maxUploadSize: maxUploadSize}
}

// GET /api/admin/themes
func (h *ThemeHandler) List(c *gin.Context) {
	ctx := requestContext(c)
	items, err := h.themes.List(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	active, err := h.themes.Active(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"active": active, "themes": items})
}

// POST /api/admin/themes/:id/activate
func (h *ThemeHandler) Activate(c *gin.Context) {
	id := c.Param("id")
	if err := h.themes.Activate(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"active": id})
}

// POST /api/admin/themes/deactivate
func (h *ThemeHandler) Deactivate(c *gin.Context) {
	if err := h.themes.Deactivate(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"active": ""})
}

// POST /api/admin/themes/upload
func (h *ThemeHandler) Upload(c *gin.Context) {
	file, size, ok := openUpload(c, h.maxUploadSize)
	if !ok {
		return
	}
	defer file.Close()

	dto, err := h.themes.Install(requestContext(c), file, size, services.InstallOptions{
		Replace: uploadReplace(c),
		Source:  services.SourceUpload,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dto)
}

// DELETE /api/admin/themes/:id
func (h *ThemeHandler) Uninstall(c *gin.Context) {
	id := c.Param("id")
	if err := h.themes.Uninstall(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// GET /api/admin/themes/:id/config
func (h *ThemeHandler) Config(c *gin.Context) {
	cfg, err := h.themes.Config(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cfg)
}

// PUT /api/admin/themes/:id/config
func (h *ThemeHandler) UpdateConfig(c *gin.Context) {
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}
	cfg, err := h.themes.UpdateConfig(requestContext(c), c.Param("id"), values)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cfg)
}

func openUpload(c *gin.Context, limit int64) (multipart.File, int64, bool) {
	if limit > 0 {
		// multipart framing adds a little on top of the archive itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}

	header, err := c.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			response.Error(c, errors.ErrPayloadTooLarge)
			return nil, 0, false
		}
		response.Error(c, errors.NewBadRequest("file is required"))
		return nil, 0, false
	}
	if limit > 0 && header.Size > limit {
		response.Error(c, errors.ErrPayloadTooLarge)
		return nil, 0, false
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.ErrBadRequest.WithInternal(err))
		return nil, 0, false
	}
	return file, header.Size, true
}

func uploadReplace(c *gin.Context) bool {
	switch strings.ToLower(strings.TrimSpace(c.PostForm("replace"))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
