package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// NavbarHandler manages the public site navigation.
type NavbarHandler struct {
	navbar *services.NavbarService
}

func NewNavbarHandler(navbar *services.NavbarService) *NavbarHandler {
	return &NavbarHandler{navbar: navbar}
}

type navbarRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Type     string  `json:"type" validate:"required,oneof=link page post posts plugin dropdown"`
	Value    string  `json:"value" validate:"max=255"`
	Icon     string  `json:"icon" validate:"max=100"`
	ParentID *string `json:"parent_id"`
	NewTab   bool    `json:"new_tab"`
	RoleID   *string `json:"role_id"`
}

func (r navbarRequest) input() services.NavbarInput {
	return services.NavbarInput{
		Name:     r.Name,
		Type:     r.Type,
		Value:    r.Value,
		Icon:     r.Icon,
		ParentID: r.ParentID,
		NewTab:   r.NewTab,
		RoleID:   r.RoleID,
	}
}

type reorderNavbarRequest struct {
	Elements []services.NavbarPosition `json:"elements" validate:"required,min=1,dive"`
}

// GET /api/navbar and /api/admin/navbar
func (h *NavbarHandler) Tree(c *gin.Context) {
	tree, err := h.navbar.Tree(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tree)
}

// POST /api/admin/navbar
func (h *NavbarHandler) Create(c *gin.Context) {
	var body navbarRequest
	if !bindAndValidate(c, &body) {
		return
	}
	element, err := h.navbar.Create(requestContext(c), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, element)
}

// PUT /api/admin/navbar/:id
func (h *NavbarHandler) Update(c *gin.Context) {
	var body navbarRequest
	if !bindAndValidate(c, &body) {
		return
	}
	element, err := h.navbar.Update(requestContext(c), c.Param("id"), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, element)
}

// DELETE /api/admin/navbar/:id
func (h *NavbarHandler) Delete(c *gin.Context) {
	if err := h.navbar.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/admin/navbar/reorder
func (h *NavbarHandler) Reorder(c *gin.Context) {
	var body reorderNavbarRequest
	if !bindAndValidate(c, &body) {
		return
	}
	ctx := requestContext(c)
	if err := h.navbar.Reorder(ctx, body.Elements); err != nil {
		response.Error(c, err)
		return
	}
	tree, err := h.navbar.Tree(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tree)
}
