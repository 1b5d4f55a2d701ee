package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// NavigationHandler serves the admin sidebar, core entries merged with
// sections contributed by enabled plugins.
type NavigationHandler struct {
	navigation *services.NavigationService
}

func NewNavigationHandler(navigation *services.NavigationService) *NavigationHandler {
	return &NavigationHandler{navigation: navigation}
}

// GET /api/admin/navigation
func (h *NavigationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	items, err := h.navigation.ForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}
