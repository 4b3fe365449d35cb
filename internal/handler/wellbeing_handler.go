package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-wellbeing-api/internal/dto"
	"github.com/noah-isme/sma-wellbeing-api/internal/middleware"
	"github.com/noah-isme/sma-wellbeing-api/internal/models"
	appErrors "github.com/noah-isme/sma-wellbeing-api/pkg/errors"
	"github.com/noah-isme/sma-wellbeing-api/pkg/response"
)

type analyticsService interface {
	GetAnalytics(ctx context.Context, filter models.WellbeingFilter) (*dto.WellbeingReport, bool, error)
}

// analyticsEnvelope is the legacy response body the dashboard consumes.
type analyticsEnvelope struct {
	Success   bool                 `json:"success"`
	Analytics *dto.WellbeingReport `json:"analytics"`
}

// WellbeingHandler exposes the analytics report endpoint.
type WellbeingHandler struct {
	service analyticsService
}

// NewWellbeingHandler constructs the handler.
func NewWellbeingHandler(svc analyticsService) *WellbeingHandler {
	return &WellbeingHandler{service: svc}
}

// Analytics godoc
// @Summary School wellbeing analytics report
// @Description Aggregated wellbeing metrics, class rollups and student insights for the caller's school
// @Tags Wellbeing
// @Produce json
// @Param timeRange query string false "Reporting window" Enums(7d, 30d, 90d) default(7d)
// @Param grade query string false "Grade filter, 'all' for unfiltered"
// @Success 200 {object} analyticsEnvelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Security BearerAuth
// @Router /wellbeing/analytics [get]
func (h *WellbeingHandler) Analytics(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleSuperAdmin {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	timeRange, err := models.ParseTimeRange(c.Query("timeRange"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "timeRange must be one of 7d, 30d, 90d"))
		return
	}
	grade := c.DefaultQuery("grade", "all")

	report, cached, err := h.service.GetAnalytics(c.Request.Context(), models.WellbeingFilter{
		SchoolID:  claims.SchoolID,
		TimeRange: timeRange,
		Grade:     grade,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)

	c.JSON(http.StatusOK, analyticsEnvelope{Success: true, Analytics: report})
}
