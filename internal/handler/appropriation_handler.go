package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bfm-api/internal/dto"
	"github.com/noah-isme/bfm-api/internal/models"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
	"github.com/noah-isme/bfm-api/pkg/response"
)

type appropriationService interface {
	Create(ctx context.Context, req dto.CreateAppropriationRequest, actorID string) (*models.Appropriation, error)
	Get(ctx context.Context, id string) (*models.Appropriation, error)
	List(ctx context.Context, query dto.AppropriationQuery) ([]models.Appropriation, error)
	CheckAvailability(ctx context.Context, req dto.CheckAvailabilityRequest) (*models.AvailabilityResult, error)
	Validate(ctx context.Context, code string, fiscalYear int) (*models.ValidationResult, error)
	Allocate(ctx context.Context, id string, amount decimal.Decimal, actorID string) (*models.Appropriation, error)
	Deallocate(ctx context.Context, id string, amount decimal.Decimal, actorID string) (*models.Appropriation, error)
}

// AppropriationHandler exposes REST endpoints for the appropriation ledger.
type AppropriationHandler struct {
	service appropriationService
}

// NewAppropriationHandler constructs the handler.
func NewAppropriationHandler(service appropriationService) *AppropriationHandler {
	return &AppropriationHandler{service: service}
}

// Create godoc
// @Summary Register an appropriation
// @Tags Appropriations
// @Accept json
// @Produce json
// @Param payload body dto.CreateAppropriationRequest true "Appropriation payload"
// @Success 201 {object} response.Envelope
// @Router /appropriations [post]
func (h *AppropriationHandler) Create(c *gin.Context) {
	var req dto.CreateAppropriationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid appropriation payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	appropriation, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, appropriation, nil)
}

// List godoc
// @Summary List appropriations
// @Tags Appropriations
// @Produce json
// @Param code query string false "Appropriation code"
// @Param fiscalYear query int false "Fiscal year"
// @Param type query string false "Appropriation type"
// @Success 200 {object} response.Envelope
// @Router /appropriations [get]
func (h *AppropriationHandler) List(c *gin.Context) {
	query := dto.AppropriationQuery{
		Code:   strings.TrimSpace(c.Query("code")),
		Limit:  parseIntQuery(c, "limit"),
		Offset: parseIntQuery(c, "offset"),
	}
	query.FiscalYear = parseIntQuery(c, "fiscalYear")
	if rawType := c.Query("type"); rawType != "" {
		query.Type = models.AppropriationType(strings.ToUpper(rawType))
	}
	appropriations, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appropriations, nil)
}

// Get godoc
// @Summary Get appropriation detail
// @Tags Appropriations
// @Produce json
// @Param id path string true "Appropriation ID"
// @Success 200 {object} response.Envelope
// @Router /appropriations/{id} [get]
func (h *AppropriationHandler) Get(c *gin.Context) {
	appropriation, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appropriation, nil)
}

// CheckAvailability godoc
// @Summary Check fund availability
// @Tags Appropriations
// @Accept json
// @Produce json
// @Param payload body dto.CheckAvailabilityRequest true "Availability check payload"
// @Success 200 {object} response.Envelope
// @Router /appropriations/check-availability [post]
func (h *AppropriationHandler) CheckAvailability(c *gin.Context) {
	var req dto.CheckAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid availability payload"))
		return
	}
	result, err := h.service.CheckAvailability(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Validate godoc
// @Summary Run the composite appropriation pre-flight check
// @Tags Appropriations
// @Produce json
// @Param code query string true "Appropriation code"
// @Param fiscalYear query int true "Fiscal year"
// @Success 200 {object} response.Envelope
// @Router /appropriations/validate [get]
func (h *AppropriationHandler) Validate(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	fiscalYear := parseIntQuery(c, "fiscalYear")
	if code == "" || fiscalYear == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "code and fiscalYear are required"))
		return
	}
	result, err := h.service.Validate(c.Request.Context(), code, fiscalYear)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Allocate godoc
// @Summary Reserve funds against an appropriation
// @Tags Appropriations
// @Accept json
// @Produce json
// @Param id path string true "Appropriation ID"
// @Param payload body dto.AllocationRequest true "Allocation payload"
// @Success 200 {object} response.Envelope
// @Router /appropriations/{id}/allocate [post]
func (h *AppropriationHandler) Allocate(c *gin.Context) {
	h.moveFunds(c, h.service.Allocate)
}

// Deallocate godoc
// @Summary Release previously reserved funds
// @Tags Appropriations
// @Accept json
// @Produce json
// @Param id path string true "Appropriation ID"
// @Param payload body dto.AllocationRequest true "Allocation payload"
// @Success 200 {object} response.Envelope
// @Router /appropriations/{id}/deallocate [post]
func (h *AppropriationHandler) Deallocate(c *gin.Context) {
	h.moveFunds(c, h.service.Deallocate)
}

func (h *AppropriationHandler) moveFunds(c *gin.Context, op func(ctx context.Context, id string, amount decimal.Decimal, actorID string) (*models.Appropriation, error)) {
	var req dto.AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid allocation payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	appropriation, err := op(c.Request.Context(), c.Param("id"), req.Amount, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appropriation, nil)
}

func parseIntQuery(c *gin.Context, key string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
