package patient

import (
	"time"
)

// Extracted-info field keys. These mirror the shape produced by the
// extraction collaborator; a field that was not found is absent from the
// map rather than present with a null value.
const (
	FieldFirstName            = "firstName"
	FieldLastName             = "lastName"
	FieldDateOfBirth          = "dateOfBirth"
	FieldAddress              = "address"
	FieldPhoneNumber          = "phoneNumber"
	FieldMedicareNumber       = "medicareNumber"
	FieldHealthcareFund       = "healthcareFund"
	FieldHealthcareFundNumber = "healthcareFundNumber"
)

// BillingCode is a single billed service attached to a patient record.
// Within a record a code is identified by the (Code, Date) pair; EmailedDate
// and EmailedTo stay nil until an email referencing the code succeeds and are
// never cleared afterwards.
type BillingCode struct {
	Code            string     `json:"code"`
	Date            time.Time  `json:"date"`
	ReferringDoctor string     `json:"referring_doctor,omitempty"`
	EmailedDate     *time.Time `json:"emailed_date,omitempty"`
	EmailedTo       *string    `json:"emailed_to,omitempty"`
}

// SameKey reports whether two billing codes share the (code, date) natural key.
func (b *BillingCode) SameKey(code string, date time.Time) bool {
	return b.Code == code && b.Date.Equal(date)
}

// PatientRecord is a patient and the billing codes accumulated for them.
// PatientID and CreationDate are assigned once at creation and never change.
type PatientRecord struct {
	PatientID     string            `json:"patient_id"`
	PatientName   string            `json:"patient_name"`
	ExtractedInfo map[string]string `json:"extracted_info"`
	BillingCodes  []BillingCode     `json:"billing_codes"`
	CreationDate  time.Time         `json:"creation_date"`
}

// SamePatient decides whether info describes the same real-world patient as
// this record. A non-empty Medicare number that matches wins outright;
// otherwise first name, last name, date of birth and address must all be
// equal. Two records with all four fields empty therefore match.
func (p *PatientRecord) SamePatient(info map[string]string) bool {
	medicare := p.ExtractedInfo[FieldMedicareNumber]
	if medicare != "" && medicare == info[FieldMedicareNumber] {
		return true
	}

	return p.ExtractedInfo[FieldFirstName] == info[FieldFirstName] &&
		p.ExtractedInfo[FieldLastName] == info[FieldLastName] &&
		p.ExtractedInfo[FieldDateOfBirth] == info[FieldDateOfBirth] &&
		p.ExtractedInfo[FieldAddress] == info[FieldAddress]
}

// Clone returns a deep copy of the record so callers can never alias the
// service's guarded index.
func (p *PatientRecord) Clone() *PatientRecord {
	cp := &PatientRecord{
		PatientID:     p.PatientID,
		PatientName:   p.PatientName,
		ExtractedInfo: make(map[string]string, len(p.ExtractedInfo)),
		CreationDate:  p.CreationDate,
	}
	for k, v := range p.ExtractedInfo {
		cp.ExtractedInfo[k] = v
	}
	if len(p.BillingCodes) > 0 {
		cp.BillingCodes = make([]BillingCode, len(p.BillingCodes))
		for i, c := range p.BillingCodes {
			cp.BillingCodes[i] = *cloneCode(&c)
		}
	}
	return cp
}

func cloneCode(c *BillingCode) *BillingCode {
	cp := BillingCode{
		Code:            c.Code,
		Date:            c.Date,
		ReferringDoctor: c.ReferringDoctor,
	}
	if c.EmailedDate != nil {
		d := *c.EmailedDate
		cp.EmailedDate = &d
	}
	if c.EmailedTo != nil {
		to := *c.EmailedTo
		cp.EmailedTo = &to
	}
	return &cp
}
