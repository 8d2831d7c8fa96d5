package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bfm-api/internal/middleware"
	"github.com/noah-isme/bfm-api/internal/models"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
	"github.com/noah-isme/bfm-api/pkg/response"
)

type analyticsService interface {
	VarianceReport(ctx context.Context, budgetID string) (*models.VarianceReport, error)
	FiscalYearVariance(ctx context.Context, fiscalYear int) ([]models.VarianceReport, error)
	SystemMetrics() models.SystemMetrics
}

// AnalyticsHandler exposes variance analysis and operational metrics endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Variance godoc
// @Summary Planned-versus-actual variance for one budget
// @Tags Analytics
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/variance/{id} [get]
func (h *AnalyticsHandler) Variance(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	report, err := h.analytics.VarianceReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, report, nil, meta)
}

// FiscalYearVariance godoc
// @Summary Variance across every budget of a fiscal year
// @Tags Analytics
// @Produce json
// @Param fiscalYear query int true "Fiscal year"
// @Success 200 {object} response.Envelope
// @Router /analytics/variance [get]
func (h *AnalyticsHandler) FiscalYearVariance(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	fiscalYear := parseIntQuery(c, "fiscalYear")
	if fiscalYear == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "fiscalYear is required"))
		return
	}
	reports, err := h.analytics.FiscalYearVariance(c.Request.Context(), fiscalYear)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil)
}

// SystemMetrics godoc
// @Summary Operational counters for the running service
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) SystemMetrics(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.analytics.SystemMetrics(), nil)
}
