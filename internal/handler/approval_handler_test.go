package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bfm-api/internal/dto"
	"github.com/noah-isme/bfm-api/internal/middleware"
	"github.com/noah-isme/bfm-api/internal/models"
)

type approvalServiceMock struct {
	workflowResp *models.ApprovalWorkflow
	requestResp  *models.ApprovalRequest
	listResp     []models.ApprovalRequest
	pendingResp  []models.ApprovalRequest
	err          error

	lastDecision models.Decision
	lastQuery    dto.ApprovalQuery
}

func (m *approvalServiceMock) CreateWorkflow(ctx context.Context, req dto.CreateWorkflowRequest, actorID string) (*models.ApprovalWorkflow, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.workflowResp, nil
}

func (m *approvalServiceMock) ListWorkflows(ctx context.Context, entityType models.ApprovalEntityType) ([]models.ApprovalWorkflow, error) {
	return nil, nil
}

func (m *approvalServiceMock) CreateRequest(ctx context.Context, req dto.CreateApprovalRequest, requesterID string) (*models.ApprovalRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.requestResp, nil
}

func (m *approvalServiceMock) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return m.requestResp, nil
}

func (m *approvalServiceMock) List(ctx context.Context, query dto.ApprovalQuery) ([]models.ApprovalRequest, error) {
	m.lastQuery = query
	return m.listResp, nil
}

func (m *approvalServiceMock) GetPendingApprovals(ctx context.Context, approverID string, role models.UserRole) ([]models.ApprovalRequest, error) {
	return m.pendingResp, nil
}

func (m *approvalServiceMock) StartReview(ctx context.Context, requestID, actorID string, role models.UserRole) (*models.ApprovalRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.requestResp, nil
}

func (m *approvalServiceMock) ProcessApproval(ctx context.Context, requestID string, decision models.Decision, approverID string, role models.UserRole, comments string) (*models.ApprovalRequest, error) {
	m.lastDecision = decision
	if m.err != nil {
		return nil, m.err
	}
	return m.requestResp, nil
}

func (m *approvalServiceMock) Cancel(ctx context.Context, requestID, actorID string) (*models.ApprovalRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.requestResp, nil
}

func TestApprovalHandlerCreateWorkflow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &approvalServiceMock{workflowResp: &models.ApprovalWorkflow{ID: "wf-1"}}
	handler := NewApprovalHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateWorkflowRequest{
		Name:       "budget-two-step",
		EntityType: models.ApprovalEntityBudget,
		Steps: []dto.WorkflowStepInput{
			{StepOrder: 0, RequiredRole: models.RoleApprover},
			{StepOrder: 1, RequiredRole: models.RoleAdmin},
		},
	})
	req, _ := http.NewRequest(http.MethodPost, "/approvals/workflows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.CreateWorkflow(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestApprovalHandlerCreateWorkflowRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&approvalServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateWorkflowRequest{Name: "budget-two-step", EntityType: models.ApprovalEntityBudget})
	req, _ := http.NewRequest(http.MethodPost, "/approvals/workflows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.CreateWorkflow(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApprovalHandlerDecide(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &approvalServiceMock{requestResp: &models.ApprovalRequest{ID: "req-1", Status: models.RequestStatusPending}}
	handler := NewApprovalHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.DecisionRequest{Decision: models.DecisionApproved, Comments: "within ceiling"})
	req, _ := http.NewRequest(http.MethodPost, "/approvals/requests/req-1/decision", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "approver-1", Role: models.RoleApprover})

	handler.Decide(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DecisionApproved, mock.lastDecision)
}

func TestApprovalHandlerDecideInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&approvalServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/approvals/requests/req-1/decision", bytes.NewReader([]byte(`{`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "approver-1", Role: models.RoleApprover})

	handler.Decide(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalHandlerListParsesStatusFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &approvalServiceMock{}
	handler := NewApprovalHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/approvals/requests?entityType=budget&status=pending,in_review", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ApprovalEntityBudget, mock.lastQuery.EntityType)
	assert.Equal(t, []models.RequestStatus{"PENDING", "IN_REVIEW"}, mock.lastQuery.Status)
}
