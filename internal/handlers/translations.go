package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// TranslationHandler edits translation overrides and exports them per locale.
type TranslationHandler struct {
	translations *services.TranslationService
}

func NewTranslationHandler(translations *services.TranslationService) *TranslationHandler {
	return &TranslationHandler{translations: translations}
}

type setTranslationRequest struct {
	Locale string `json:"locale" validate:"required,max=35"`
	Group  string `json:"group" validate:"max=64"`
	Key    string `json:"key" validate:"required,max=191"`
	Value  string `json:"value"`
}

// GET /api/admin/translations
func (h *TranslationHandler) Locales(c *gin.Context) {
	locales, err := h.translations.Locales(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, locales)
}

// GET /api/admin/translations/:locale
func (h *TranslationHandler) List(c *gin.Context) {
	rows, err := h.translations.List(requestContext(c), c.Param("locale"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// GET /api/translations/:locale
func (h *TranslationHandler) Export(c *gin.Context) {
	values, err := h.translations.Export(requestContext(c), c.Param("locale"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, values)
}

// PUT /api/admin/translations
func (h *TranslationHandler) Set(c *gin.Context) {
	var body setTranslationRequest
	if !bindAndValidate(c, &body) {
		return
	}
	row, err := h.translations.Set(requestContext(c), services.TranslationInput{
		Locale: body.Locale,
		Group:  body.Group,
		Key:    body.Key,
		Value:  body.Value,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, row)
}

// DELETE /api/admin/translations/:locale/:group/:key
func (h *TranslationHandler) Delete(c *gin.Context) {
	if err := h.translations.Delete(requestContext(c), c.Param("locale"), c.Param("group"), c.Param("key")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
