package patient

import (
	"context"
	"time"
)

// Repository is the durable side of the record service. Implementations are
// written to only by the service's background writer and read back only
// during startup rehydration via LoadAll.
type Repository interface {
	// UpsertPatient writes the patient row (not its billing codes),
	// replacing any existing row with the same patient ID.
	UpsertPatient(ctx context.Context, p *PatientRecord) error

	// UpsertBillingCodes writes billing-code rows keyed by
	// (patientID, code, date), replacing rows that already exist.
	UpsertBillingCodes(ctx context.Context, patientID string, codes []BillingCode) error

	// UpdateEmailStatus sets the emailed provenance on the row matching
	// (patientID, code, date). Missing rows are not an error.
	UpdateEmailStatus(ctx context.Context, patientID, code string, date, emailedDate time.Time, emailedTo string) error

	// DeleteBillingCode removes the row matching (patientID, code, date).
	DeleteBillingCode(ctx context.Context, patientID, code string, date time.Time) error

	// DeletePatient removes the patient row and all its billing codes in a
	// single transaction.
	DeletePatient(ctx context.Context, patientID string) error

	// LoadAll reads every persisted patient with its billing codes, newest
	// patients first. Used once at startup to rehydrate the in-memory index.
	LoadAll(ctx context.Context) ([]*PatientRecord, error)
}
