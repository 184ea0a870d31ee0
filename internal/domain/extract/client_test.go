package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseModelReply(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    PatientInfo
	}{
		{
			name:    "bare json",
			content: `{"firstName":"Jane","lastName":"Doe","medicareNumber":"2950 12345 1"}`,
			want:    PatientInfo{FirstName: "Jane", LastName: "Doe", MedicareNumber: "2950 12345 1"},
		},
		{
			name: "json wrapped in prose and fences",
			content: "Here is the extracted information:\n```json\n" +
				`{"firstName":"Jane","lastName":"Doe","dateOfBirth":"12/03/1985"}` +
				"\n```\nLet me know if you need anything else.",
			want: PatientInfo{FirstName: "Jane", LastName: "Doe", DateOfBirth: "12/03/1985"},
		},
		{
			name: "broken json falls back to per-field patterns",
			content: `{"firstName": "Jane", "lastName": "Doe", "address": "1 High St", trailing garbage`,
			want:    PatientInfo{FirstName: "Jane", LastName: "Doe", Address: "1 High St"},
		},
		{
			name:    "no structure at all",
			content: "I could not find any patient information in the text.",
			want:    PatientInfo{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseModelReply(tc.content)
			if *got != tc.want {
				t.Errorf("ParseModelReply() = %+v, want %+v", *got, tc.want)
			}
		})
	}
}

func fakeAnthropic(t *testing.T, replyText string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") == "" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MaxTokens != 1000 {
			t.Errorf("max_tokens = %d", req.MaxTokens)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(messageResponse{Content: []contentBlock{
				{Type: "text", Text: replyText},
			}})
		}
	}))
}

func TestExtractPatientInfo(t *testing.T) {
	srv := fakeAnthropic(t, `{"firstName":"Jane","lastName":"Doe"}`, http.StatusOK)
	defer srv.Close()

	client := NewClient("test-key", "claude-3-5-sonnet-20241022", srv.URL, zerolog.Nop())
	info, err := client.ExtractPatientInfo(context.Background(), "Name: Jane Doe")
	if err != nil {
		t.Fatalf("ExtractPatientInfo: %v", err)
	}
	if info.FirstName != "Jane" || info.LastName != "Doe" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestExtractPatientInfoAPIError(t *testing.T) {
	srv := fakeAnthropic(t, "", http.StatusInternalServerError)
	defer srv.Close()

	client := NewClient("test-key", "claude-3-5-sonnet-20241022", srv.URL, zerolog.Nop())
	info, err := client.ExtractPatientInfo(context.Background(), "Name: Jane Doe")
	if err == nil {
		t.Fatal("expected an error from a 500 response")
	}
	if info == nil {
		t.Fatal("callers must always get a usable PatientInfo")
	}
	if *info != (PatientInfo{}) {
		t.Errorf("expected all-empty info, got %+v", *info)
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		info PatientInfo
		want string
	}{
		{PatientInfo{FirstName: "Jane", LastName: "Doe"}, "Jane Doe"},
		{PatientInfo{FirstName: "Jane"}, "Jane"},
		{PatientInfo{LastName: "Doe"}, "Doe"},
		{PatientInfo{}, "Unknown Patient"},
	}
	for _, tc := range cases {
		if got := tc.info.DisplayName(); got != tc.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tc.info, got, tc.want)
		}
	}
}

func TestToMapOmitsEmptyFields(t *testing.T) {
	info := PatientInfo{FirstName: "Jane", MedicareNumber: "2950 12345 1"}
	m := info.ToMap()
	if len(m) != 2 {
		t.Fatalf("expected 2 entries, got %v", m)
	}
	if m["firstName"] != "Jane" || m["medicareNumber"] != "2950 12345 1" {
		t.Errorf("unexpected map: %v", m)
	}
}
