package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-crm-api/internal/service"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
	"github.com/noah-isme/edu-crm-api/pkg/response"
)

// WebhookHandler exposes outbound webhook registration endpoints.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// List godoc
// @Summary List webhooks
// @Tags Webhooks
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /webhooks [get]
func (h *WebhookHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	hooks, err := h.webhooks.List(c.Request.Context(), claims.InstitutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hooks, nil)
}

// Create godoc
// @Summary Register webhook
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param payload body service.CreateWebhookRequest true "Webhook payload"
// @Success 201 {object} response.Envelope
// @Router /webhooks [post]
func (h *WebhookHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	hook, err := h.webhooks.Create(c.Request.Context(), claims.InstitutionID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, hook)
}

// Update godoc
// @Summary Update webhook
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param id path string true "Webhook ID"
// @Param payload body service.UpdateWebhookRequest true "Webhook payload"
// @Success 200 {object} response.Envelope
// @Router /webhooks/{id} [put]
func (h *WebhookHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	hook, err := h.webhooks.Update(c.Request.Context(), claims.InstitutionID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hook, nil)
}

// Delete godoc
// @Summary Delete webhook
// @Tags Webhooks
// @Produce json
// @Param id path string true "Webhook ID"
// @Success 204 {object} response.Envelope
// @Router /webhooks/{id} [delete]
func (h *WebhookHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.webhooks.Delete(c.Request.Context(), claims.InstitutionID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
