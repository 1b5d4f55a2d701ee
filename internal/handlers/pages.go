package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// PageHandler serves static pages.
type PageHandler struct {
	pages *services.PageService
}

func NewPageHandler(pages *services.PageService) *PageHandler {
	return &PageHandler{pages: pages}
}

type pageRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Slug        *string `json:"slug" validate:"omitempty,slug"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Content     *string `json:"content"`
	IsEnabled   *bool   `json:"is_enabled"`
}

func (r pageRequest) input() services.PageInput {
	return services.PageInput{
		Title:       r.Title,
		Slug:        r.Slug,
		Description: r.Description,
		Content:     r.Content,
		IsEnabled:   r.IsEnabled,
	}
}

// GET /api/admin/pages
func (h *PageHandler) List(c *gin.Context) {
	pages, err := h.pages.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pages)
}

// GET /api/admin/pages/:id
func (h *PageHandler) Get(c *gin.Context) {
	page, err := h.pages.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

// GET /api/pages/:slug
func (h *PageHandler) GetEnabled(c *gin.Context) {
	page, err := h.pages.GetEnabledBySlug(requestContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

// POST /api/admin/pages
func (h *PageHandler) Create(c *gin.Context) {
	var body pageRequest
	if !bindAndValidate(c, &body) {
		return
	}
	page, err := h.pages.Create(requestContext(c), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, page)
}

// PATCH /api/admin/pages/:id
func (h *PageHandler) Update(c *gin.Context) {
	var body pageRequest
	if !bindAndValidate(c, &body) {
		return
	}
	page, err := h.pages.Update(requestContext(c), c.Param("id"), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

// DELETE /api/admin/pages/:id
func (h *PageHandler) Delete(c *gin.Context) {
	if err := h.pages.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
