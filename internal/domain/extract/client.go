package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	systemPrompt = "You are a helpful assistant that extracts structured patient information from OCR text. Only respond with the JSON data, nothing else."

	promptTemplate = `Extract patient information from the following text that was obtained through OCR from a medical document or patient sticker.

Here's the OCR text:
%s

Please extract and return ONLY the following information in JSON format:
{
  "firstName": "First name of the patient",
  "lastName": "Last name of the patient",
  "dateOfBirth": "Date of birth (any format found)",
  "address": "Full address if available",
  "phoneNumber": "Patient's phone number if available",
  "medicareNumber": "Medicare number if available",
  "healthcareFund": "Name of healthcare fund if available",
  "healthcareFundNumber": "Healthcare fund number if available"
}

If a field is not found, leave it as an empty string. Analyze the text carefully for these details, looking for patterns or labels like "Name:", "DOB:", "Address:", etc.
Return ONLY the JSON, no other text.`
)

// Client calls the Anthropic Messages API to turn raw OCR text into
// structured patient fields. The API key stays on the server; devices talk to
// the proxy handler, never to this client directly.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an extraction client. baseURL overrides the Anthropic
// endpoint for tests; pass "" for the real API.
func NewClient(apiKey, model, baseURL string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "extract_client").Logger(),
	}
}

type messageRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ExtractPatientInfo sends the OCR text to the model and parses the reply.
// Any failure along the way degrades to an all-empty PatientInfo; the
// transport error is returned alongside so the proxy can log it, but callers
// holding a PatientInfo always have something usable.
func (c *Client) ExtractPatientInfo(ctx context.Context, text string) (*PatientInfo, error) {
	req := messageRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: fmt.Sprintf(promptTemplate, text)}},
		System:      systemPrompt,
		MaxTokens:   1000,
		Temperature: 0.3,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return &PatientInfo{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return &PatientInfo{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &PatientInfo{}, fmt.Errorf("call model api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &PatientInfo{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &PatientInfo{}, fmt.Errorf("model api returned %d: %s", resp.StatusCode, respBody)
	}

	var mr messageResponse
	if err := json.Unmarshal(respBody, &mr); err != nil {
		return &PatientInfo{}, fmt.Errorf("decode response: %w", err)
	}

	var content string
	for _, block := range mr.Content {
		if block.Type == "text" {
			content = block.Text
			break
		}
	}

	info := ParseModelReply(content)
	c.logger.Debug().Str("model", c.model).Msg("patient info extracted")
	return info, nil
}

var (
	jsonBlockRe = regexp.MustCompile(`\{[\s\S]*\}`)
	fieldRes    = map[string]*regexp.Regexp{
		"firstName":            regexp.MustCompile(`"firstName"\s*:\s*"([^"]*)"`),
		"lastName":             regexp.MustCompile(`"lastName"\s*:\s*"([^"]*)"`),
		"dateOfBirth":          regexp.MustCompile(`"dateOfBirth"\s*:\s*"([^"]*)"`),
		"address":              regexp.MustCompile(`"address"\s*:\s*"([^"]*)"`),
		"phoneNumber":          regexp.MustCompile(`"phoneNumber"\s*:\s*"([^"]*)"`),
		"medicareNumber":       regexp.MustCompile(`"medicareNumber"\s*:\s*"([^"]*)"`),
		"healthcareFund":       regexp.MustCompile(`"healthcareFund"\s*:\s*"([^"]*)"`),
		"healthcareFundNumber": regexp.MustCompile(`"healthcareFundNumber"\s*:\s*"([^"]*)"`),
	}
)

// ParseModelReply pulls a PatientInfo out of the model's text reply. The
// reply may wrap the JSON in markdown fences or prose, so the first brace
// block is tried as JSON; when that fails each field is fished out with a
// per-field pattern; when even that fails the result is all-empty.
func ParseModelReply(content string) *PatientInfo {
	jsonText := content
	if m := jsonBlockRe.FindString(content); m != "" {
		jsonText = m
	}

	var info PatientInfo
	if err := json.Unmarshal([]byte(jsonText), &info); err == nil {
		return &info
	}

	info = PatientInfo{}
	pick := func(field string) string {
		if m := fieldRes[field].FindStringSubmatch(content); len(m) == 2 {
			return m[1]
		}
		return ""
	}
	info.FirstName = pick("firstName")
	info.LastName = pick("lastName")
	info.DateOfBirth = pick("dateOfBirth")
	info.Address = pick("address")
	info.PhoneNumber = pick("phoneNumber")
	info.MedicareNumber = pick("medicareNumber")
	info.HealthcareFund = pick("healthcareFund")
	info.HealthcareFundNumber = pick("healthcareFundNumber")
	return &info
}
