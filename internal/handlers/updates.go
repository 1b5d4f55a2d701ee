package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// UpdateHandler reports and applies extension updates.
type UpdateHandler struct {
	updates *services.UpdateService
}

// NewUpdateHandler constructs an update handler.
func NewUpdateHandler(updates *services.UpdateService) *UpdateHandler {
	return &UpdateHandler{updates: updates}
}

// GET /api/admin/updates?force=true
func (h *UpdateHandler) Check(c *gin.Context) {
	report, err := h.updates.Check(requestContext(c), parseBoolQuery(c, "force"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// GET /api/admin/updates/counts
func (h *UpdateHandler) Counts(c *gin.Context) {
	counts, err := h.updates.Counts(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, counts)
}

// POST /api/admin/updates/:kind/:id
func (h *UpdateHandler) Apply(c *gin.Context) {
	dto, err := h.updates.Apply(requestContext(c), c.Param("kind"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// POST /api/admin/updates/clear-cache
func (h *UpdateHandler) ClearCache(c *gin.Context) {
	if err := h.updates.ClearCache(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cleared": true})
}

// MarketplaceHandler browses and installs marketplace resources.
type MarketplaceHandler struct {
	marketplace *services.MarketplaceService
}

// NewMarketplaceHandler constructs a marketplace handler.
func NewMarketplaceHandler(marketplace *services.MarketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{marketplace: marketplace}
}

// GET /api/admin/marketplace?kind=plugin|theme
func (h *MarketplaceHandler) Browse(c *gin.Context) {
	kind, err := extensions.ParseKind(c.DefaultQuery("kind", string(extensions.KindPlugin)))
	if err != nil {
		response.Error(c, errors.NewBadRequest(err.Error()))
		return
	}
	response.Success(c, http.StatusOK, h.marketplace.Browse(requestContext(c), kind))
}

// POST /api/admin/marketplace/:id/install
func (h *MarketplaceHandler) Install(c *gin.Context) {
	dto, err := h.marketplace.Install(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dto)
}
