package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-asrama-api/internal/dto"
	"github.com/noah-isme/sma-asrama-api/internal/models"
	"github.com/noah-isme/sma-asrama-api/internal/service"
	appErrors "github.com/noah-isme/sma-asrama-api/pkg/errors"
	"github.com/noah-isme/sma-asrama-api/pkg/response"
)

// PaymentHandler exposes hostel fee endpoints.
type PaymentHandler struct {
	service *service.PaymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// Create godoc
// @Summary Raise a hostel fee invoice
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.CreateFeeRequest true "Fee payload"
// @Success 201 {object} response.Envelope
// @Router /fees [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid fee payload"))
		return
	}
	fee, err := h.service.CreateFee(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, fee, nil)
}

// List godoc
// @Summary List fee invoices
// @Tags Payments
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param studentId query string false "Student ID"
// @Success 200 {object} response.Envelope
// @Router /fees [get]
func (h *PaymentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.FeeQuery{
		StudentID: strings.TrimSpace(c.Query("studentId")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.FeeStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.FeeStatus(part))
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
	fees, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, nil)
}

// Pay godoc
// @Summary Record a gateway capture against an invoice
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Fee ID"
// @Param payload body dto.PayFeeRequest true "Capture payload"
// @Success 200 {object} response.Envelope
// @Router /fees/{id}/pay [post]
func (h *PaymentHandler) Pay(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.PayFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid capture payload"))
		return
	}
	fee, err := h.service.Pay(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Receipt godoc
// @Summary Download the receipt for a paid invoice
// @Tags Payments
// @Produce application/pdf
// @Param id path string true "Fee ID"
// @Success 200 {file} binary
// @Router /fees/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	receipt, err := h.service.Receipt(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="receipt.pdf"`)
	c.Data(http.StatusOK, "application/pdf", receipt)
}
