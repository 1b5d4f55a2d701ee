package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/exiloncms/exiloncms/internal/auth"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// InstallHandler runs the first-time setup wizard.
type InstallHandler struct {
	install *services.InstallService
	jwt     *iauth.JWTService
}

func NewInstallHandler(install *services.InstallService, jwt *iauth.JWTService) *InstallHandler {
	return &InstallHandler{install: install, jwt: jwt}
}

type installRequest struct {
	SiteName string `json:"site_name" validate:"required,max=100"`
	SiteURL  string `json:"site_url" validate:"required,url"`
	Locale   string `json:"locale" validate:"max=35"`
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// GET /api/install/status
func (h *InstallHandler) Status(c *gin.Context) {
	status, err := h.install.Status(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// POST /api/install
func (h *InstallHandler) Install(c *gin.Context) {
	var body installRequest
	if !bindAndValidate(c, &body) {
		return
	}

	admin, err := h.install.Install(requestContext(c), services.InstallInput{
		SiteName: body.SiteName,
		SiteURL:  body.SiteURL,
		Locale:   body.Locale,
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.Issue(iauth.Identity{UserID: admin.ID, Username: admin.Username, IsRoot: admin.IsRoot})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"user": admin, "token": token})
}
