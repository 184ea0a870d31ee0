package email

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/email", h.SendRecord)
}

type sendRequest struct {
	To           string    `json:"to"`
	BillingCodes []CodeKey `json:"billing_codes"`
}

type sendResponse struct {
	Sent  int    `json:"sent"`
	To    string `json:"to"`
	Codes int    `json:"codes"`
}

func (h *Handler) SendRecord(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.To == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to is required")
	}

	count, err := h.svc.SendRecord(c.Request().Context(), c.Param("id"), req.BillingCodes, req.To)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, sendResponse{Sent: 1, To: req.To, Codes: count})
}
