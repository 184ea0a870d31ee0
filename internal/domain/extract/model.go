package extract

import "strings"

// PatientInfo holds the structured fields pulled out of OCR text. Every field
// defaults to the empty string; extraction failures produce a zero PatientInfo
// rather than an error so the capture workflow can continue with manual entry.
type PatientInfo struct {
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	DateOfBirth          string `json:"dateOfBirth"`
	Address              string `json:"address"`
	PhoneNumber          string `json:"phoneNumber"`
	MedicareNumber       string `json:"medicareNumber"`
	HealthcareFund       string `json:"healthcareFund"`
	HealthcareFundNumber string `json:"healthcareFundNumber"`
	ReferringDoctor      string `json:"referringDoctor,omitempty"`
}

// ToMap converts the info to the field map stored on a patient record.
// Empty fields are omitted rather than stored as empty values.
func (p *PatientInfo) ToMap() map[string]string {
	out := make(map[string]string, 8)
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("firstName", p.FirstName)
	put("lastName", p.LastName)
	put("dateOfBirth", p.DateOfBirth)
	put("address", p.Address)
	put("phoneNumber", p.PhoneNumber)
	put("medicareNumber", p.MedicareNumber)
	put("healthcareFund", p.HealthcareFund)
	put("healthcareFundNumber", p.HealthcareFundNumber)
	return out
}

// DisplayName builds the record label shown in list views: "First Last"
// trimmed, or "Unknown Patient" when both parts are missing.
func (p *PatientInfo) DisplayName() string {
	full := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if full == "" {
		return "Unknown Patient"
	}
	return full
}
