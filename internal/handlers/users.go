package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
)

const defaultUsersPerPage = 25

// UserHandler administers site accounts.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	IsActive *bool  `json:"is_active"`
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=32,username"`
	Email    *string `json:"email" validate:"omitempty,email"`
	IsActive *bool   `json:"is_active"`
}

type setRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

type changePasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// GET /api/admin/users
func (h *UserHandler) List(c *gin.Context) {
	page, perPage := pagination(c, defaultUsersPerPage)

	filters := services.UserFilters{Query: strings.TrimSpace(c.Query("q"))}
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, errors.NewBadRequest("active must be a boolean"))
			return
		}
		filters.IsActive = &active
	}

	users, total, err := h.users.List(requestContext(c), services.ListUsersOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, users, response.NewMeta(page, perPage, total))
}

// GET /api/admin/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/admin/users
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if !bindAndValidate(c, &body) {
		return
	}
	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		IsActive: body.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// PATCH /api/admin/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	var body updateUserRequest
	if !bindAndValidate(c, &body) {
		return
	}
	user, err := h.users.Update(requestContext(c), c.Param("id"), services.UpdateUserInput{
		Username: body.Username,
		Email:    body.Email,
		IsActive: body.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PUT /api/admin/users/:id/roles
func (h *UserHandler) SetRoles(c *gin.Context) {
	var body setRolesRequest
	if !bindAndValidate(c, &body) {
		return
	}
	user, err := h.users.SetRoles(requestContext(c), c.Param("id"), body.RoleIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PUT /api/admin/users/:id/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var body changePasswordRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if err := h.users.ChangePassword(requestContext(c), c.Param("id"), body.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// DELETE /api/admin/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id == userID {
		response.Error(c, errors.NewBadRequest("you cannot delete your own account"))
		return
	}
	if err := h.users.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
