package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-asrama-api/internal/dto"
	"github.com/noah-isme/sma-asrama-api/internal/service"
	appErrors "github.com/noah-isme/sma-asrama-api/pkg/errors"
	"github.com/noah-isme/sma-asrama-api/pkg/response"
)

// LocationHandler exposes geolocation tracking endpoints.
type LocationHandler struct {
	service *service.LocationService
}

// NewLocationHandler constructs the handler.
func NewLocationHandler(svc *service.LocationService) *LocationHandler {
	return &LocationHandler{service: svc}
}

// Ping godoc
// @Summary Submit a geolocation sample during an approved leave
// @Tags Locations
// @Accept json
// @Produce json
// @Param payload body dto.LocationPingRequest true "Location sample"
// @Success 201 {object} response.Envelope
// @Router /locations/ping [post]
func (h *LocationHandler) Ping(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LocationPingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid location payload"))
		return
	}
	ping, err := h.service.Ping(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, ping, nil)
}

// LastKnown godoc
// @Summary Get the last known position of a resident
// @Tags Locations
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /locations/{studentId}/last [get]
func (h *LocationHandler) LastKnown(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	loc, err := h.service.LastKnown(c.Request.Context(), c.Param("studentId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loc, nil)
}

// History godoc
// @Summary List recent geolocation samples for a resident
// @Tags Locations
// @Produce json
// @Param studentId path string true "Student ID"
// @Param limit query int false "Maximum samples"
// @Success 200 {object} response.Envelope
// @Router /locations/{studentId}/history [get]
func (h *LocationHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}
	pings, err := h.service.History(c.Request.Context(), c.Param("studentId"), limit, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pings, nil)
}
