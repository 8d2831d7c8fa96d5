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

type budgetService interface {
	Create(ctx context.Context, req dto.CreateBudgetRequest, ownerID string) (*models.Budget, error)
	Get(ctx context.Context, id string) (*models.Budget, error)
	List(ctx context.Context, query dto.BudgetQuery) ([]models.Budget, error)
	Update(ctx context.Context, id string, req dto.UpdateBudgetRequest, actorID string) (*models.Budget, error)
	Submit(ctx context.Context, id, actorID string) (*models.Budget, *models.ApprovalRequest, error)
	Activate(ctx context.Context, id, actorID string) (*models.Budget, error)
	Close(ctx context.Context, id, actorID string) (*models.Budget, error)
	Rollback(ctx context.Context, id string, req dto.RollbackBudgetRequest, actorID string) (*models.Budget, error)
	ListVersions(ctx context.Context, budgetID string) ([]models.BudgetVersion, error)
	AddLineItem(ctx context.Context, budgetID string, req dto.CreateLineItemRequest) (*models.LineItem, error)
	ListLineItems(ctx context.Context, budgetID string) ([]models.LineItem, error)
	Summary(ctx context.Context, budgetID string) (*models.BudgetSummary, error)
}

// BudgetHandler exposes REST endpoints around budget lifecycle and line items.
type BudgetHandler struct {
	service budgetService
}

// NewBudgetHandler constructs the handler.
func NewBudgetHandler(service budgetService) *BudgetHandler {
	return &BudgetHandler{service: service}
}

// Create godoc
// @Summary Create a draft budget
// @Tags Budgets
// @Accept json
// @Produce json
// @Param payload body dto.CreateBudgetRequest true "Budget payload"
// @Success 201 {object} response.Envelope
// @Router /budgets [post]
func (h *BudgetHandler) Create(c *gin.Context) {
	var req dto.CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid budget payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	budget, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, budget, nil)
}

// List godoc
// @Summary List budgets
// @Tags Budgets
// @Produce json
// @Param fiscalYear query int false "Fiscal year"
// @Param status query string false "Budget status"
// @Param ownerId query string false "Owner user ID"
// @Success 200 {object} response.Envelope
// @Router /budgets [get]
func (h *BudgetHandler) List(c *gin.Context) {
	query := dto.BudgetQuery{
		FiscalYear: parseIntQuery(c, "fiscalYear"),
		OwnerID:    strings.TrimSpace(c.Query("ownerId")),
		Limit:      parseIntQuery(c, "limit"),
		Offset:     parseIntQuery(c, "offset"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, status := range strings.Split(rawStatus, ",") {
			status = strings.ToUpper(strings.TrimSpace(status))
			if status != "" {
				query.Status = append(query.Status, models.BudgetStatus(status))
			}
		}
	}
	budgets, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, budgets, nil)
}

// Get godoc
// @Summary Get budget detail
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id} [get]
func (h *BudgetHandler) Get(c *gin.Context) {
	budget, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, budget, nil)
}

// Update godoc
// @Summary Update a mutable budget
// @Tags Budgets
// @Accept json
// @Produce json
// @Param id path string true "Budget ID"
// @Param payload body dto.UpdateBudgetRequest true "Budget changes"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id} [put]
func (h *BudgetHandler) Update(c *gin.Context) {
	var req dto.UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid budget payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	budget, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, budget, nil)
}

// Submit godoc
// @Summary Submit a budget for approval
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id}/submit [post]
func (h *BudgetHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	budget, request, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"budget":          budget,
		"approvalRequest": request,
	}, nil)
}

// Activate godoc
// @Summary Activate an approved budget
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id}/activate [post]
func (h *BudgetHandler) Activate(c *gin.Context) {
	h.transition(c, h.service.Activate)
}

// Close godoc
// @Summary Close an active budget and release unspent funds
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id}/close [post]
func (h *BudgetHandler) Close(c *gin.Context) {
	h.transition(c, h.service.Close)
}

func (h *BudgetHandler) transition(c *gin.Context, op func(ctx context.Context, id, actorID string) (*models.Budget, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	budget, err := op(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, budget, nil)
}

// Rollback godoc
// @Summary Restore a budget to a previous version
// @Tags Budgets
// @Accept json
// @Produce json
// @Param id path string true "Budget ID"
// @Param payload body dto.RollbackBudgetRequest true "Rollback payload"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id}/rollback [post]
func (h *BudgetHandler) Rollback(c *gin.Context) {
	var req dto.RollbackBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rollback payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	budget, err := h.service.Rollback(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, budget, nil)
}

// ListVersions godoc
// @Summary List historical versions of a budget
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id}/versions [get]
func (h *BudgetHandler) ListVersions(c *gin.Context) {
	versions, err := h.service.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// AddLineItem godoc
// @Summary Add a line item to a mutable budget
// @Tags Budgets
// @Accept json
// @Produce json
// @Param id path string true "Budget ID"
// @Param payload body dto.CreateLineItemRequest true "Line item payload"
// @Success 201 {object} response.Envelope
// @Router /budgets/{id}/line-items [post]
func (h *BudgetHandler) AddLineItem(c *gin.Context) {
	var req dto.CreateLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid line item payload"))
		return
	}
	lineItem, err := h.service.AddLineItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, lineItem, nil)
}

// ListLineItems godoc
// @Summary List line items of a budget
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id}/line-items [get]
func (h *BudgetHandler) ListLineItems(c *gin.Context) {
	lineItems, err := h.service.ListLineItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lineItems, nil)
}

// Summary godoc
// @Summary Get the execution summary of a budget
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id}/summary [get]
func (h *BudgetHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
