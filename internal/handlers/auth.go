package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/exiloncms/exiloncms/internal/auth"
	"github.com/exiloncms/exiloncms/internal/middleware"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// PermissionResolver lists the permissions a user holds.
type PermissionResolver interface {
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
}

// AuthHandler issues and revokes admin API tokens.
type AuthHandler struct {
	users       *services.UserService
	jwt         *iauth.JWTService
	revocations *iauth.Revocations
	permissions PermissionResolver
	log         *zap.Logger
}

func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService, revocations *iauth.Revocations, resolver PermissionResolver) *AuthHandler {
	return &AuthHandler{
		users:       users,
		jwt:         jwt,
		revocations: revocations,
		permissions: resolver,
		log:         logger.WithModule("auth"),
	}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type changeOwnPasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type sessionResponse struct {
	Token       *iauth.IssuedToken `json:"token,omitempty"`
	User        *models.User       `json:"user"`
	Permissions []string           `json:"permissions"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.Authenticate(ctx, body.Identifier, body.Password, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.Issue(iauth.Identity{UserID: user.ID, Username: user.Username, IsRoot: user.IsRoot})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	h.log.Info("user logged in", zap.String("user_id", user.ID), zap.String("ip", c.ClientIP()))

	h.respondSession(c, user, token)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	if err := h.revocations.Revoke(requestContext(c), claims); err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondSession(c, user, nil)
}

// PUT /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body changeOwnPasswordRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := h.users.Authenticate(ctx, user.Username, body.CurrentPassword, c.ClientIP()); err != nil {
		response.Error(c, errors.NewBadRequest("current password is incorrect"))
		return
	}
	if err := h.users.ChangePassword(ctx, userID, body.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

func (h *AuthHandler) respondSession(c *gin.Context, user *models.User, token *iauth.IssuedToken) {
	granted := []string{}
	if h.permissions != nil {
		perms, err := h.permissions.GetUserPermissions(requestContext(c), user.ID)
		if err != nil {
			response.Error(c, err)
			return
		}
		if perms != nil {
			granted = perms
		}
	}
	response.Success(c, http.StatusOK, sessionResponse{Token: token, User: user, Permissions: granted})
}
