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

type approvalService interface {
	CreateWorkflow(ctx context.Context, req dto.CreateWorkflowRequest, actorID string) (*models.ApprovalWorkflow, error)
	ListWorkflows(ctx context.Context, entityType models.ApprovalEntityType) ([]models.ApprovalWorkflow, error)
	CreateRequest(ctx context.Context, req dto.CreateApprovalRequest, requesterID string) (*models.ApprovalRequest, error)
	Get(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, query dto.ApprovalQuery) ([]models.ApprovalRequest, error)
	GetPendingApprovals(ctx context.Context, approverID string, role models.UserRole) ([]models.ApprovalRequest, error)
	StartReview(ctx context.Context, requestID, actorID string, role models.UserRole) (*models.ApprovalRequest, error)
	ProcessApproval(ctx context.Context, requestID string, decision models.Decision, approverID string, role models.UserRole, comments string) (*models.ApprovalRequest, error)
	Cancel(ctx context.Context, requestID, actorID string) (*models.ApprovalRequest, error)
}

// ApprovalHandler exposes REST endpoints for workflows and approval requests.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// CreateWorkflow godoc
// @Summary Register an approval workflow
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.CreateWorkflowRequest true "Workflow payload"
// @Success 201 {object} response.Envelope
// @Router /approvals/workflows [post]
func (h *ApprovalHandler) CreateWorkflow(c *gin.Context) {
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid workflow payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	workflow, err := h.service.CreateWorkflow(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, workflow, nil)
}

// ListWorkflows godoc
// @Summary List approval workflows
// @Tags Approvals
// @Produce json
// @Param entityType query string false "Entity type filter"
// @Success 200 {object} response.Envelope
// @Router /approvals/workflows [get]
func (h *ApprovalHandler) ListWorkflows(c *gin.Context) {
	entityType := models.ApprovalEntityType(strings.ToUpper(c.Query("entityType")))
	workflows, err := h.service.ListWorkflows(c.Request.Context(), entityType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workflows, nil)
}

// CreateRequest godoc
// @Summary Open an approval request for an entity
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.CreateApprovalRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /approvals/requests [post]
func (h *ApprovalHandler) CreateRequest(c *gin.Context) {
	var req dto.CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval request payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.CreateRequest(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List approval requests
// @Tags Approvals
// @Produce json
// @Param entityType query string false "Entity type"
// @Param entityId query string false "Entity ID"
// @Param status query string false "Comma-separated statuses"
// @Success 200 {object} response.Envelope
// @Router /approvals/requests [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	query := dto.ApprovalQuery{
		EntityType: models.ApprovalEntityType(strings.ToUpper(c.Query("entityType"))),
		EntityID:   strings.TrimSpace(c.Query("entityId")),
		Limit:      parseIntQuery(c, "limit"),
		Offset:     parseIntQuery(c, "offset"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, status := range strings.Split(rawStatus, ",") {
			status = strings.ToUpper(strings.TrimSpace(status))
			if status != "" {
				query.Status = append(query.Status, models.RequestStatus(status))
			}
		}
	}
	requests, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get an approval request with its action trail
// @Tags Approvals
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/requests/{id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Pending godoc
// @Summary List requests waiting on the calling approver
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) Pending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	requests, err := h.service.GetPendingApprovals(c.Request.Context(), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// StartReview godoc
// @Summary Move a pending request into review
// @Tags Approvals
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/requests/{id}/review [post]
func (h *ApprovalHandler) StartReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.StartReview(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Decide godoc
// @Summary Record an approve or reject decision on the current step
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /approvals/requests/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.ProcessApproval(c.Request.Context(), c.Param("id"), req.Decision, claims.UserID, claims.Role, req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Cancel an in-flight approval request
// @Tags Approvals
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/requests/{id}/cancel [post]
func (h *ApprovalHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
