package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// ServerHandler manages game servers and their reachability.
type ServerHandler struct {
	servers *services.ServerService
}

func NewServerHandler(servers *services.ServerService) *ServerHandler {
	return &ServerHandler{servers: servers}
}

type serverRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Address   string `json:"address" validate:"required,max=255"`
	Port      int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Type      string `json:"type" validate:"omitempty,oneof=minecraft steam fivem tcp"`
	JoinURL   string `json:"join_url" validate:"omitempty,url"`
	IsDefault bool   `json:"is_default"`
	IsHidden  bool   `json:"is_hidden"`
}

func (r serverRequest) input() services.ServerInput {
	return services.ServerInput{
		Name:      r.Name,
		Address:   r.Address,
		Port:      r.Port,
		Type:      r.Type,
		JoinURL:   r.JoinURL,
		IsDefault: r.IsDefault,
		IsHidden:  r.IsHidden,
	}
}

// GET /api/admin/servers
func (h *ServerHandler) List(c *gin.Context) {
	h.list(c, true)
}

// GET /api/servers
func (h *ServerHandler) ListVisible(c *gin.Context) {
	h.list(c, false)
}

func (h *ServerHandler) list(c *gin.Context, includeHidden bool) {
	servers, err := h.servers.List(requestContext(c), includeHidden)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, servers)
}

// POST /api/admin/servers
func (h *ServerHandler) Create(c *gin.Context) {
	var body serverRequest
	if !bindAndValidate(c, &body) {
		return
	}
	server, err := h.servers.Create(requestContext(c), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, server)
}

// PUT /api/admin/servers/:id
func (h *ServerHandler) Update(c *gin.Context) {
	var body serverRequest
	if !bindAndValidate(c, &body) {
		return
	}
	server, err := h.servers.Update(requestContext(c), c.Param("id"), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, server)
}

// DELETE /api/admin/servers/:id
func (h *ServerHandler) Delete(c *gin.Context) {
	if err := h.servers.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/servers/:id/status
func (h *ServerHandler) Status(c *gin.Context) {
	ctx := requestContext(c)
	server, err := h.servers.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if server.IsHidden {
		response.Error(c, services.ErrServerNotFound)
		return
	}
	status, err := h.servers.Status(ctx, server.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}
