package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-asrama-api/internal/dto"
	"github.com/noah-isme/sma-asrama-api/internal/models"
	appErrors "github.com/noah-isme/sma-asrama-api/pkg/errors"
	"github.com/noah-isme/sma-asrama-api/pkg/response"
)

type leaveService interface {
	Create(ctx context.Context, req dto.CreateLeaveRequest, actor *models.JWTClaims) (*dto.LeaveView, error)
	List(ctx context.Context, query dto.LeaveQuery, actor *models.JWTClaims) ([]dto.LeaveView, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.LeaveView, error)
	DecideAsParent(ctx context.Context, id string, req dto.LeaveDecisionRequest, actor *models.JWTClaims) (*dto.LeaveView, error)
	DecideAsWarden(ctx context.Context, id string, req dto.LeaveDecisionRequest, actor *models.JWTClaims) (*dto.LeaveView, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*dto.LeaveView, error)
	GatePass(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, error)
}

// LeaveHandler exposes REST endpoints for the outing request workflow.
type LeaveHandler struct {
	service leaveService
}

// NewLeaveHandler constructs the handler.
func NewLeaveHandler(service leaveService) *LeaveHandler {
	return &LeaveHandler{service: service}
}

// Create godoc
// @Summary Submit an outing request
// @Tags Leaves
// @Accept json
// @Produce json
// @Param payload body dto.CreateLeaveRequest true "Leave payload"
// @Success 201 {object} response.Envelope
// @Router /leaves [post]
func (h *LeaveHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "leave service not configured"))
		return
	}
	var req dto.CreateLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid leave payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	leave, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, leave, nil)
}

// List godoc
// @Summary List outing requests visible to the caller
// @Tags Leaves
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Leave type"
// @Param studentId query string false "Student ID (supervisors only)"
// @Success 200 {object} response.Envelope
// @Router /leaves [get]
func (h *LeaveHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "leave service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.LeaveQuery{
		Type:      strings.TrimSpace(c.Query("type")),
		StudentID: strings.TrimSpace(c.Query("studentId")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.LeaveStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.LeaveStatus(part))
		}
		query.Status = statuses
	}
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if limit, err := strconv.Atoi(rawLimit); err == nil {
			query.Limit = limit
		}
	}
	if rawOffset := c.Query("offset"); rawOffset != "" {
		if offset, err := strconv.Atoi(rawOffset); err == nil {
			query.Offset = offset
		}
	}
	leaves, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leaves, nil)
}

// Get godoc
// @Summary Get outing request detail
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "leave service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	leave, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

// ParentDecision godoc
// @Summary Approve or reject an outing request as the linked guardian
// @Tags Leaves
// @Accept json
// @Produce json
// @Param id path string true "Leave ID"
// @Param payload body dto.LeaveDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/parent-decision [post]
func (h *LeaveHandler) ParentDecision(c *gin.Context) {
	h.decide(c, h.service.DecideAsParent)
}

// WardenDecision godoc
// @Summary Finalize a parent-approved outing request
// @Tags Leaves
// @Accept json
// @Produce json
// @Param id path string true "Leave ID"
// @Param payload body dto.LeaveDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/decision [post]
func (h *LeaveHandler) WardenDecision(c *gin.Context) {
	h.decide(c, h.service.DecideAsWarden)
}

func (h *LeaveHandler) decide(c *gin.Context, fn func(context.Context, string, dto.LeaveDecisionRequest, *models.JWTClaims) (*dto.LeaveView, error)) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "leave service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LeaveDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	leave, err := fn(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

// Cancel godoc
// @Summary Cancel a pending outing request
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/cancel [post]
func (h *LeaveHandler) Cancel(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "leave service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	leave, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

// Pass godoc
// @Summary Download the gate pass for an approved outing request
// @Tags Leaves
// @Produce application/pdf
// @Param id path string true "Leave ID"
// @Success 200 {file} binary
// @Router /leaves/{id}/pass [get]
func (h *LeaveHandler) Pass(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "leave service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pass, err := h.service.GatePass(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="gate-pass.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pass)
}
