package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bfm-api/internal/dto"
	"github.com/noah-isme/bfm-api/internal/middleware"
	"github.com/noah-isme/bfm-api/internal/models"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
)

type appropriationServiceMock struct {
	createResp   *models.Appropriation
	createErr    error
	getResp      *models.Appropriation
	listResp     []models.Appropriation
	checkResp    *models.AvailabilityResult
	validateResp *models.ValidationResult
	moveResp     *models.Appropriation
	moveErr      error

	lastMoveID     string
	lastMoveAmount decimal.Decimal
}

func (m *appropriationServiceMock) Create(ctx context.Context, req dto.CreateAppropriationRequest, actorID string) (*models.Appropriation, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *appropriationServiceMock) Get(ctx context.Context, id string) (*models.Appropriation, error) {
	if m.getResp == nil {
		return nil, appErrors.ErrNotFound
	}
	return m.getResp, nil
}

func (m *appropriationServiceMock) List(ctx context.Context, query dto.AppropriationQuery) ([]models.Appropriation, error) {
	return m.listResp, nil
}

func (m *appropriationServiceMock) CheckAvailability(ctx context.Context, req dto.CheckAvailabilityRequest) (*models.AvailabilityResult, error) {
	return m.checkResp, nil
}

func (m *appropriationServiceMock) Validate(ctx context.Context, code string, fiscalYear int) (*models.ValidationResult, error) {
	return m.validateResp, nil
}

func (m *appropriationServiceMock) Allocate(ctx context.Context, id string, amount decimal.Decimal, actorID string) (*models.Appropriation, error) {
	m.lastMoveID = id
	m.lastMoveAmount = amount
	if m.moveErr != nil {
		return nil, m.moveErr
	}
	return m.moveResp, nil
}

func (m *appropriationServiceMock) Deallocate(ctx context.Context, id string, amount decimal.Decimal, actorID string) (*models.Appropriation, error) {
	m.lastMoveID = id
	m.lastMoveAmount = amount
	if m.moveErr != nil {
		return nil, m.moveErr
	}
	return m.moveResp, nil
}

func officerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "officer-1", Role: models.RoleBudgetOfficer}
}

func TestAppropriationHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &appropriationServiceMock{createResp: &models.Appropriation{ID: "appr-1", Code: "0100-2026-OM"}}
	handler := NewAppropriationHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateAppropriationRequest{
		Code:           "0100-2026-OM",
		FiscalYear:     2026,
		Type:           models.AppropriationTypeAnnual,
		TotalAmount:    decimal.NewFromInt(1000000),
		ExpirationDate: time.Now().AddDate(1, 0, 0),
	})
	req, _ := http.NewRequest(http.MethodPost, "/appropriations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, officerClaims())

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestAppropriationHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAppropriationHandler(&appropriationServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appropriations", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, officerClaims())

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppropriationHandlerCreateRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAppropriationHandler(&appropriationServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateAppropriationRequest{Code: "0100-2026-OM", FiscalYear: 2026})
	req, _ := http.NewRequest(http.MethodPost, "/appropriations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAppropriationHandlerValidateRequiresParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAppropriationHandler(&appropriationServiceMock{validateResp: &models.ValidationResult{Valid: true}})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appropriations/validate?code=0100-2026-OM", nil)
	c.Request = req

	handler.Validate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppropriationHandlerAllocate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &appropriationServiceMock{moveResp: &models.Appropriation{ID: "appr-1"}}
	handler := NewAppropriationHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.AllocationRequest{Amount: decimal.NewFromInt(2500)})
	req, _ := http.NewRequest(http.MethodPost, "/appropriations/appr-1/allocate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "appr-1"}}
	c.Set(middleware.ContextUserKey, officerClaims())

	handler.Allocate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "appr-1", mock.lastMoveID)
	assert.True(t, mock.lastMoveAmount.Equal(decimal.NewFromInt(2500)))
}

func TestAppropriationHandlerAllocateInsufficientFunds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &appropriationServiceMock{moveErr: appErrors.ErrInsufficientFunds}
	handler := NewAppropriationHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.AllocationRequest{Amount: decimal.NewFromInt(9999999)})
	req, _ := http.NewRequest(http.MethodPost, "/appropriations/appr-1/allocate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "appr-1"}}
	c.Set(middleware.ContextUserKey, officerClaims())

	handler.Allocate(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
