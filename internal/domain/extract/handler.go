package extract

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler exposes the key-holding proxy endpoint. Devices send raw OCR text
// with their app token; the Anthropic API key only ever lives here.
type Handler struct {
	client *Client
	logger zerolog.Logger
}

func NewHandler(client *Client, logger zerolog.Logger) *Handler {
	return &Handler{client: client, logger: logger.With().Str("component", "extract_handler").Logger()}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/claude/extract-patient-info", h.ExtractPatientInfo)
}

type extractionRequest struct {
	Text string `json:"text"`
}

func (h *Handler) ExtractPatientInfo(c echo.Context) error {
	var req extractionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing text field in request body")
	}

	info, err := h.client.ExtractPatientInfo(c.Request().Context(), req.Text)
	if err != nil {
		// The device still gets an all-empty field set it can hand-correct.
		h.logger.Error().Err(err).Msg("patient info extraction failed")
	}
	return c.JSON(http.StatusOK, info)
}
