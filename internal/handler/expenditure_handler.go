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

type expenditureService interface {
	Create(ctx context.Context, req dto.CreateExpenditureRequest, actorID string) (*models.Expenditure, error)
	Get(ctx context.Context, id string) (*models.Expenditure, error)
	List(ctx context.Context, query dto.ExpenditureQuery) ([]models.Expenditure, error)
	Pay(ctx context.Context, id, actorID string) (*models.Expenditure, error)
	Cancel(ctx context.Context, id, actorID string) (*models.Expenditure, error)
	Summary(ctx context.Context, budgetID string) (*models.ExpenditureSummary, error)
}

// ExpenditureHandler exposes REST endpoints for expenditures.
type ExpenditureHandler struct {
	service expenditureService
}

// NewExpenditureHandler constructs the handler.
func NewExpenditureHandler(service expenditureService) *ExpenditureHandler {
	return &ExpenditureHandler{service: service}
}

// Create godoc
// @Summary Record a payment against a budget or obligation
// @Tags Expenditures
// @Accept json
// @Produce json
// @Param payload body dto.CreateExpenditureRequest true "Expenditure payload"
// @Success 201 {object} response.Envelope
// @Router /expenditures [post]
func (h *ExpenditureHandler) Create(c *gin.Context) {
	var req dto.CreateExpenditureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid expenditure payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	expenditure, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, expenditure, nil)
}

// List godoc
// @Summary List expenditures
// @Tags Expenditures
// @Produce json
// @Param budgetId query string false "Budget ID"
// @Param obligationId query string false "Obligation ID"
// @Param status query string false "Comma-separated statuses"
// @Success 200 {object} response.Envelope
// @Router /expenditures [get]
func (h *ExpenditureHandler) List(c *gin.Context) {
	query := dto.ExpenditureQuery{
		BudgetID:     strings.TrimSpace(c.Query("budgetId")),
		ObligationID: strings.TrimSpace(c.Query("obligationId")),
		Limit:        parseIntQuery(c, "limit"),
		Offset:       parseIntQuery(c, "offset"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, status := range strings.Split(rawStatus, ",") {
			status = strings.ToUpper(strings.TrimSpace(status))
			if status != "" {
				query.Status = append(query.Status, models.ExpenditureStatus(status))
			}
		}
	}
	expenditures, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, expenditures, nil)
}

// Get godoc
// @Summary Get expenditure detail
// @Tags Expenditures
// @Produce json
// @Param id path string true "Expenditure ID"
// @Success 200 {object} response.Envelope
// @Router /expenditures/{id} [get]
func (h *ExpenditureHandler) Get(c *gin.Context) {
	expenditure, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, expenditure, nil)
}

// Pay godoc
// @Summary Settle a pending payment
// @Tags Expenditures
// @Produce json
// @Param id path string true "Expenditure ID"
// @Success 200 {object} response.Envelope
// @Router /expenditures/{id}/pay [post]
func (h *ExpenditureHandler) Pay(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	expenditure, err := h.service.Pay(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, expenditure, nil)
}

// Cancel godoc
// @Summary Cancel a recorded payment
// @Tags Expenditures
// @Produce json
// @Param id path string true "Expenditure ID"
// @Success 200 {object} response.Envelope
// @Router /expenditures/{id}/cancel [post]
func (h *ExpenditureHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	expenditure, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, expenditure, nil)
}

// Summary godoc
// @Summary Summarize expenditures of a budget by status
// @Tags Expenditures
// @Produce json
// @Param budgetId query string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /expenditures/summary [get]
func (h *ExpenditureHandler) Summary(c *gin.Context) {
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
