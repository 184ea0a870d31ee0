package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitruvial/vitruvial/internal/domain/patient"
)

// ErrPatientNotFound indicates the record to email no longer exists.
var ErrPatientNotFound = errors.New("patient not found")

// CodeKey identifies one billing code within a record.
type CodeKey struct {
	Code string    `json:"code"`
	Date time.Time `json:"date"`
}

// Service composes and dispatches patient record emails. On a successful
// send each selected code's emailed provenance is recorded through the
// patient service; a failed send records nothing.
type Service struct {
	patients *patient.Service
	sender   Sender
	logger   zerolog.Logger
}

func NewService(patients *patient.Service, sender Sender, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		sender:   sender,
		logger:   logger.With().Str("component", "email_service").Logger(),
	}
}

// SendRecord emails the patient's details plus the selected billing codes to
// the given address. Keys that do not resolve to a code on the record are
// skipped. Returns the number of codes included in the email.
func (s *Service) SendRecord(ctx context.Context, patientID string, keys []CodeKey, to string) (int, error) {
	rec := s.patients.ByID(patientID)
	if rec == nil {
		return 0, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}

	var selected []patient.BillingCode
	for _, key := range keys {
		for i := range rec.BillingCodes {
			if rec.BillingCodes[i].SameKey(key.Code, key.Date) {
				selected = append(selected, rec.BillingCodes[i])
				break
			}
		}
	}

	msg := Message{
		To:      to,
		Subject: ComposeSubject(rec),
		Body:    ComposeBody(rec, selected),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return 0, fmt.Errorf("send patient record: %w", err)
	}

	sentAt := time.Now()
	for _, code := range selected {
		s.patients.UpdateEmailStatus(patientID, code.Code, code.Date, sentAt, to)
	}

	s.logger.Info().
		Str("patient_id", patientID).
		Int("codes", len(selected)).
		Msg("patient record emailed")
	return len(selected), nil
}
