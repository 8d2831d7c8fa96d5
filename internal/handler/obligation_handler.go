package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bfm-api/internal/dto"
	"github.com/noah-isme/bfm-api/internal/models"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
	"github.com/noah-isme/bfm-api/pkg/response"
)

type obligationService interface {
	Create(ctx context.Context, req dto.CreateObligationRequest, actorID string) (*models.Obligation, error)
	Get(ctx context.Context, id string) (*models.Obligation, error)
	List(ctx context.Context, query dto.ObligationQuery) ([]models.Obligation, error)
	Obligate(ctx context.Context, id, actorID string) (*models.Obligation, error)
	Deobligate(ctx context.Context, id, actorID string) (*models.Obligation, error)
	Cancel(ctx context.Context, id, actorID string) (*models.Obligation, error)
	Summary(ctx context.Context, budgetID string) (*models.ObligationSummary, error)
}

// ObligationHandler exposes REST endpoints for obligations.
type ObligationHandler struct {
	service obligationService
}

// NewObligationHandler constructs the handler.
func NewObligationHandler(service obligationService) *ObligationHandler {
	return &ObligationHandler{service: service}
}

// Create godoc
// @Summary Record an obligation and reserve the funds it commits
// @Tags Obligations
// @Accept json
// @Produce json
// @Param payload body dto.CreateObligationRequest true "Obligation payload"
// @Success 201 {object} response.Envelope
// @Router /obligations [post]
func (h *ObligationHandler) Create(c *gin.Context) {
	var req dto.CreateObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid obligation payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	obligation, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, obligation, nil)
}

// List godoc
// @Summary List obligations
// @Tags Obligations
// @Produce json
// @Param budgetId query string false "Budget ID"
// @Param status query string false "Comma-separated statuses"
// @Success 200 {object} response.Envelope
// @Router /obligations [get]
func (h *ObligationHandler) List(c *gin.Context) {
	query := dto.ObligationQuery{
		BudgetID:          strings.TrimSpace(c.Query("budgetId")),
		AppropriationCode: strings.TrimSpace(c.Query("appropriationCode")),
		FiscalYear:        parseIntQuery(c, "fiscalYear"),
		Limit:             parseIntQuery(c, "limit"),
		Offset:            parseIntQuery(c, "offset"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, status := range strings.Split(rawStatus, ",") {
			status = strings.ToUpper(strings.TrimSpace(status))
			if status != "" {
				query.Status = append(query.Status, models.ObligationStatus(status))
			}
		}
	}
	obligations, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, obligations, nil)
}

// Get godoc
// @Summary Get obligation detail
// @Tags Obligations
// @Produce json
// @Param id path string true "Obligation ID"
// @Success 200 {object} response.Envelope
// @Router /obligations/{id} [get]
func (h *ObligationHandler) Get(c *gin.Context) {
	obligation, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, obligation, nil)
}

// Obligate godoc
// @Summary Complete a pending obligation, drawing appropriation funds
// @Tags Obligations
// @Produce json
// @Param id path string true "Obligation ID"
// @Success 200 {object} response.Envelope
// @Router /obligations/{id}/obligate [post]
func (h *ObligationHandler) Obligate(c *gin.Context) {
	h.transition(c, h.service.Obligate)
}

// Deobligate godoc
// @Summary Release an obligation and return its unspent funds
// @Tags Obligations
// @Produce json
// @Param id path string true "Obligation ID"
// @Success 200 {object} response.Envelope
// @Router /obligations/{id}/deobligate [post]
func (h *ObligationHandler) Deobligate(c *gin.Context) {
	h.transition(c, h.service.Deobligate)
}

// Cancel godoc
// @Summary Cancel an obligation
// @Tags Obligations
// @Produce json
// @Param id path string true "Obligation ID"
// @Success 200 {object} response.Envelope
// @Router /obligations/{id}/cancel [post]
func (h *ObligationHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *ObligationHandler) transition(c *gin.Context, op func(ctx context.Context, id, actorID string) (*models.Obligation, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	obligation, err := op(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, obligation, nil)
}

// Summary godoc
// @Summary Summarize obligations of a budget by status
// @Tags Obligations
// @Produce json
// @Param budgetId query string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /obligations/summary [get]
func (h *ObligationHandler) Summary(c *gin.Context) {
	budgetID := strings.TrimSpace(c.Query("budgetId"))
	if budgetID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "budgetId is required"))
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), budgetID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
