package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront/internal/auth"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/service"
)

// LeadHandler handles the contact form endpoints.
type LeadHandler struct {
	leadService service.LeadService
	metrics     *metrics.Metrics
}

// NewLeadHandler creates a new lead handler.
func NewLeadHandler(leadService service.LeadService, m *metrics.Metrics) *LeadHandler {
	return &LeadHandler{leadService: leadService, metrics: m}
}

// LeadRequest is a contact form submission.
type LeadRequest struct {
	Name    string  `json:"name" validate:"required,max=255"`
	Email   string  `json:"email" validate:"required,email,max=255"`
	Message *string `json:"message"`
}

// LeadCreatedResponse acknowledges a submission.
type LeadCreatedResponse struct {
	Message string `json:"message"`
	ID      uint   `json:"id"`
}

// LeadResponse is a lead as shown to admins.
type LeadResponse struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Message   *string `json:"message"`
	CreatedAt string  `json:"created_at" example:"2024-05-01 09:30:00"`
}

func toLeadResponse(l model.Lead) LeadResponse {
	return LeadResponse{
		ID:        l.ID,
		Name:      l.Name,
		Email:     l.Email,
		Message:   l.Message,
		CreatedAt: l.CreatedAt.Format(model.LeadTimeLayout),
	}
}

// Submit godoc
// @Summary Submit the contact form
// @Tags leads
// @Accept json
// @Produce json
// @Param request body LeadRequest true "Lead"
// @Success 201 {object} LeadCreatedResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Router /leads [post]
func (h *LeadHandler) Submit(c echo.Context) error {
	var req LeadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	lead, err := h.leadService.Submit(c.Request().Context(), req.Name, req.Email, req.Message)
	if err != nil {
		return httpError(err)
	}
	h.metrics.LeadSubmitted()
	return c.JSON(http.StatusCreated, LeadCreatedResponse{Message: "Lead added successfully", ID: lead.ID})
}

// List godoc
// @Summary List leads, newest first
// @Tags leads
// @Produce json
// @Security BearerAuth
// @Success 200 {array} LeadResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/leads [get]
func (h *LeadHandler) List(c echo.Context, _ *auth.Claims) error {
	leads, err := h.leadService.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, toLeadResponse(l))
	}
	return c.JSON(http.StatusOK, out)
}
