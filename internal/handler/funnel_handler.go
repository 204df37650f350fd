package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-crm-api/internal/models"
	"github.com/noah-isme/edu-crm-api/internal/service"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
	"github.com/noah-isme/edu-crm-api/pkg/response"
)

// FunnelHandler exposes the aggregated funnel metric endpoints.
type FunnelHandler struct {
	funnel *service.FunnelService
}

// NewFunnelHandler constructs FunnelHandler.
func NewFunnelHandler(funnel *service.FunnelService) *FunnelHandler {
	return &FunnelHandler{funnel: funnel}
}

// Overview godoc
// @Summary Funnel dashboard overview
// @Tags Funnel
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /funnel/overview [get]
func (h *FunnelHandler) Overview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	overview, err := h.funnel.Overview(c.Request.Context(), claims.InstitutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// StageCounts godoc
// @Summary Lead counts per stage
// @Tags Funnel
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /funnel/stages [get]
func (h *FunnelHandler) StageCounts(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	counts, err := h.funnel.CountsByStage(c.Request.Context(), claims.InstitutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counts, nil)
}

// Conversion godoc
// @Summary Tenant-wide conversion rate
// @Tags Funnel
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /funnel/conversion [get]
func (h *FunnelHandler) Conversion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	conversion, err := h.funnel.ConversionRate(c.Request.Context(), claims.InstitutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conversion, nil)
}

// Leaderboard godoc
// @Summary User conversion leaderboard
// @Tags Funnel
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /funnel/leaderboard [get]
func (h *FunnelHandler) Leaderboard(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entries, err := h.funnel.UserLeaderboard(c.Request.Context(), claims.InstitutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// VisitStats godoc
// @Summary Visit outcome statistics
// @Tags Funnel
// @Produce json
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /funnel/visits [get]
func (h *FunnelHandler) VisitStats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.VisitStatsFilter{InstitutionID: claims.InstitutionID}
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp"))
			return
		}
		filter.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp"))
			return
		}
		filter.To = &ts
	}

	stats, err := h.funnel.VisitStats(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
