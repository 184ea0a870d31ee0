package patient

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.CreateRecord)
	api.GET("/patients/current", h.GetCurrent)
	api.POST("/patients/current/reset", h.ResetCurrent)
	api.POST("/patients/current/billing-codes", h.AppendBillingCodes)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.ReplacePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
	api.GET("/patients/:id/billing-codes", h.ListBillingCodes)
	api.DELETE("/patients/:id/billing-codes", h.DeleteBillingCode)
}

type createRecordRequest struct {
	PatientName   string            `json:"patient_name"`
	ExtractedInfo map[string]string `json:"extracted_info"`
}

type createRecordResponse struct {
	PatientID string `json:"patient_id"`
}

// CreateRecord resolves the extracted info against the index: a match reuses
// the existing record, otherwise a new one is created. Either way the record
// becomes current.
func (h *Handler) CreateRecord(c echo.Context) error {
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ExtractedInfo == nil {
		req.ExtractedInfo = map[string]string{}
	}
	id := h.svc.CreateOrReuse(req.PatientName, req.ExtractedInfo)
	return c.JSON(http.StatusOK, createRecordResponse{PatientID: id})
}

type patientListItem struct {
	*PatientRecord
	AllCodesEmailed bool `json:"all_codes_emailed"`
}

func (h *Handler) ListPatients(c echo.Context) error {
	records := h.svc.AllByDateDesc()
	items := make([]patientListItem, 0, len(records))
	for _, rec := range records {
		items = append(items, patientListItem{
			PatientRecord:   rec,
			AllCodesEmailed: h.svc.AllCodesEmailed(rec.PatientID),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patients": items,
		"total":    len(items),
	})
}

func (h *Handler) GetCurrent(c echo.Context) error {
	rec := h.svc.Current()
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no current patient")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ResetCurrent(c echo.Context) error {
	h.svc.ResetCurrent()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetPatient(c echo.Context) error {
	rec := h.svc.ByID(c.Param("id"))
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ReplacePatient(c echo.Context) error {
	var rec PatientRecord
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec.PatientID = c.Param("id")
	h.svc.Replace(&rec)
	return c.JSON(http.StatusOK, &rec)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	h.svc.Delete(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

type appendCodesRequest struct {
	BillingCodes []BillingCode `json:"billing_codes"`
}

func (h *Handler) AppendBillingCodes(c echo.Context) error {
	var req appendCodesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.BillingCodes) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "billing_codes is required")
	}
	for _, code := range req.BillingCodes {
		if code.Code == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "billing code must not be empty")
		}
	}
	if h.svc.Current() == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no current patient")
	}
	h.svc.AppendToCurrent(req.BillingCodes)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListBillingCodes(c echo.Context) error {
	id := c.Param("id")
	if h.svc.ByID(id) == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	codes := h.svc.BillingCodesByDateDesc(id)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"billing_codes":     codes,
		"all_codes_emailed": h.svc.AllCodesEmailed(id),
	})
}

type deleteCodeRequest struct {
	Code string    `json:"code"`
	Date time.Time `json:"date"`
}

func (h *Handler) DeleteBillingCode(c echo.Context) error {
	var req deleteCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	h.svc.DeleteBillingCode(c.Param("id"), req.Code, req.Date)
	return c.NoContent(http.StatusNoContent)
}
