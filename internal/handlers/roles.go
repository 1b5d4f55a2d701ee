package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/permissions"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// RoleHandler manages roles and the permissions granted to them.
type RoleHandler struct {
	roles *services.RoleService
}

func NewRoleHandler(roles *services.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Power       *int   `json:"power" validate:"omitempty,min=0,max=100"`
}

func (r roleRequest) input() services.RoleInput {
	return services.RoleInput{
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		Power:       r.Power,
	}
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type permissionDTO struct {
	ID          string   `json:"id"`
	Module      string   `json:"module"`
	DependsOn   []string `json:"depends_on"`
	Description string   `json:"description"`
}

// GET /api/admin/roles
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

// GET /api/admin/roles/:id
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.roles.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// POST /api/admin/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var body roleRequest
	if !bindAndValidate(c, &body) {
		return
	}
	role, err := h.roles.Create(requestContext(c), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, role)
}

// PATCH /api/admin/roles/:id
func (h *RoleHandler) Update(c *gin.Context) {
	var body roleRequest
	if !bindAndValidate(c, &body) {
		return
	}
	role, err := h.roles.Update(requestContext(c), c.Param("id"), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// DELETE /api/admin/roles/:id
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// PUT /api/admin/roles/:id/permissions
func (h *RoleHandler) SetPermissions(c *gin.Context) {
	var body setPermissionsRequest
	if !bindAndValidate(c, &body) {
		return
	}
	granted, err := h.roles.SetPermissions(requestContext(c), c.Param("id"), body.Permissions)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"permissions": granted})
}

// GET /api/admin/permissions lists core and plugin permissions.
func (h *RoleHandler) Permissions(c *gin.Context) {
	registered := permissions.List()
	out := make([]permissionDTO, 0, len(registered))
	for _, perm := range registered {
		deps := perm.DependsOn
		if deps == nil {
			deps = []string{}
		}
		out = append(out, permissionDTO{
			ID:          perm.ID,
			Module:      perm.Module,
			DependsOn:   deps,
			Description: perm.Description,
		})
	}
	response.Success(c, http.StatusOK, out)
}
