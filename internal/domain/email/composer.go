package email

import (
	"strings"

	"github.com/vitruvial/vitruvial/internal/domain/patient"
)

const bodyDateFormat = "January 02, 2006"

// ComposeSubject builds the subject line for a patient record email.
func ComposeSubject(p *patient.PatientRecord) string {
	return "Patient Record: " + p.PatientName
}

// ComposeBody renders the plain-text email for a patient and the billing
// codes selected for dispatch. Missing fields render as "Unknown" so the
// recipient can see what the record lacks.
func ComposeBody(p *patient.PatientRecord, selected []patient.BillingCode) string {
	var sb strings.Builder

	field := func(key string) string {
		if v := p.ExtractedInfo[key]; v != "" {
			return v
		}
		return "Unknown"
	}

	sb.WriteString("PATIENT INFORMATION\n")
	sb.WriteString("------------------\n")
	sb.WriteString("Name: " + fullName(p) + "\n")
	sb.WriteString("Date of Birth: " + field(patient.FieldDateOfBirth) + "\n")
	sb.WriteString("Medicare Number: " + field(patient.FieldMedicareNumber) + "\n")
	sb.WriteString("Address: " + field(patient.FieldAddress) + "\n")
	sb.WriteString("Phone: " + field(patient.FieldPhoneNumber) + "\n")
	sb.WriteString("Healthcare Fund: " + field(patient.FieldHealthcareFund) + "\n")
	sb.WriteString("Healthcare Fund Number: " + field(patient.FieldHealthcareFundNumber) + "\n")
	sb.WriteString("\n")

	sb.WriteString("BILLING INFORMATION\n")
	sb.WriteString("------------------\n")
	if len(selected) == 0 {
		sb.WriteString("No billing codes selected.\n")
	} else {
		for _, code := range selected {
			doctor := code.ReferringDoctor
			if doctor == "" {
				doctor = "Not specified"
			}
			sb.WriteString("Billing Code: " + code.Code + "\n")
			sb.WriteString("Date: " + code.Date.Format(bodyDateFormat) + "\n")
			sb.WriteString("Referring Doctor: " + doctor + "\n")
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// fullName prefers the extracted first/last name pair, falling back to the
// record's display label.
func fullName(p *patient.PatientRecord) string {
	full := strings.TrimSpace(p.ExtractedInfo[patient.FieldFirstName] + " " + p.ExtractedInfo[patient.FieldLastName])
	if full == "" {
		return p.PatientName
	}
	return full
}
