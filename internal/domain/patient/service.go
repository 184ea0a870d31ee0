package patient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WriteErrorFunc observes durable-write failures. Failures are absorbed by
// the service (in-memory state stays authoritative for the process lifetime),
// so this hook is the only way they become visible.
type WriteErrorFunc func(op string, err error)

// Service owns the live patient index and mirrors every mutation to the
// injected Repository through a dedicated background writer. All operations
// are synchronous against the in-memory index and safe for concurrent use;
// only Load and Flush touch durable storage on the calling goroutine.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	onWriteError WriteErrorFunc

	mu        sync.RWMutex
	records   map[string]*PatientRecord
	order     []string // insertion order, for stable match iteration
	currentID string

	queue *writeQueue
	ready chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithWriteErrorHook installs a callback invoked on every failed durable
// write, after the failure has been logged.
func WithWriteErrorHook(fn WriteErrorFunc) Option {
	return func(s *Service) { s.onWriteError = fn }
}

// NewService creates a record service backed by repo. Call Load before
// accepting mutations and Close on shutdown.
func NewService(repo Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		logger:  logger.With().Str("component", "patient_service").Logger(),
		records: make(map[string]*PatientRecord),
		queue:   newWriteQueue(),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load rehydrates the in-memory index from durable storage. The loaded
// records replace the index atomically; a partial load is never visible.
// On failure the index is left empty and the service still accepts new
// records for the rest of the process lifetime.
func (s *Service) Load(ctx context.Context) error {
	defer close(s.ready)

	loaded, err := s.repo.LoadAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("rehydration failed, starting with empty index")
		return err
	}

	records := make(map[string]*PatientRecord, len(loaded))
	order := make([]string, 0, len(loaded))
	for _, rec := range loaded {
		records[rec.PatientID] = rec
		order = append(order, rec.PatientID)
	}

	s.mu.Lock()
	s.records = records
	s.order = order
	s.mu.Unlock()

	s.logger.Info().Int("patients", len(loaded)).Msg("rehydrated patient index")
	return nil
}

// Ready is closed once Load has finished, successfully or not.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// CreateOrReuse resolves extracted info to a patient ID. When the info
// matches an existing record (medicare number, or the full name/DOB/address
// quadruple) that record becomes current and its stored fields are left
// untouched. Otherwise a new record with no billing codes is created, made
// current, and scheduled for persistence.
func (s *Service) CreateOrReuse(patientName string, extractedInfo map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if rec := s.records[id]; rec != nil && rec.SamePatient(extractedInfo) {
			s.currentID = id
			return id
		}
	}

	info := make(map[string]string, len(extractedInfo))
	for k, v := range extractedInfo {
		info[k] = v
	}
	rec := &PatientRecord{
		PatientID:     uuid.New().String(),
		PatientName:   patientName,
		ExtractedInfo: info,
		CreationDate:  time.Now(),
	}
	s.records[rec.PatientID] = rec
	s.order = append(s.order, rec.PatientID)
	s.currentID = rec.PatientID

	s.schedulePatientSave(rec)
	return rec.PatientID
}

// Current returns a copy of the record being built by the active workflow,
// or nil when no current patient is set or it has been deleted.
func (s *Service) Current() *PatientRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return nil
	}
	rec := s.records[s.currentID]
	if rec == nil {
		return nil
	}
	return rec.Clone()
}

// ByID returns a copy of the record with the given ID, or nil.
func (s *Service) ByID(patientID string) *PatientRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.records[patientID]
	if rec == nil {
		return nil
	}
	return rec.Clone()
}

// All returns copies of every record in insertion order.
func (s *Service) All() []*PatientRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PatientRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec := s.records[id]; rec != nil {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// AllByDateDesc returns copies of every record, newest creation date first.
func (s *Service) AllByDateDesc() []*PatientRecord {
	out := s.All()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreationDate.After(out[j].CreationDate)
	})
	return out
}

// ResetCurrent clears the current-patient pointer. Called when the capture
// workflow restarts from the entry point.
func (s *Service) ResetCurrent() {
	s.mu.Lock()
	s.currentID = ""
	s.mu.Unlock()
}

// Replace overwrites the stored record with the given one, keyed by its
// patient ID, and schedules persistence of the full record. A record with an
// empty ID is ignored.
func (s *Service) Replace(rec *PatientRecord) {
	if rec == nil || rec.PatientID == "" {
		return
	}
	cp := rec.Clone()

	s.mu.Lock()
	if _, exists := s.records[cp.PatientID]; !exists {
		s.order = append(s.order, cp.PatientID)
	}
	s.records[cp.PatientID] = cp
	s.mu.Unlock()

	s.schedulePatientSave(cp)
}

// Delete removes the record and schedules durable deletion of the patient
// row together with all its billing codes.
func (s *Service) Delete(patientID string) {
	s.mu.Lock()
	if _, ok := s.records[patientID]; ok {
		delete(s.records, patientID)
		for i, id := range s.order {
			if id == patientID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	s.queue.Enqueue(func(ctx context.Context) {
		if err := s.repo.DeletePatient(ctx, patientID); err != nil {
			s.writeFailed("delete_patient", err)
		}
	})
}

// AppendToCurrent appends billing codes to the current record and schedules
// persistence of exactly the appended codes. A no-op when no current patient
// is set.
func (s *Service) AppendToCurrent(codes []BillingCode) {
	if len(codes) == 0 {
		return
	}

	s.mu.Lock()
	rec := s.records[s.currentID]
	if rec == nil {
		s.mu.Unlock()
		return
	}
	patientID := rec.PatientID
	snapshot := make([]BillingCode, len(codes))
	for i, c := range codes {
		snapshot[i] = *cloneCode(&c)
	}
	rec.BillingCodes = append(rec.BillingCodes, snapshot...)
	s.mu.Unlock()

	s.queue.Enqueue(func(ctx context.Context) {
		if err := s.repo.UpsertBillingCodes(ctx, patientID, snapshot); err != nil {
			s.writeFailed("upsert_billing_codes", err)
		}
	})
}

// UpdateEmailStatus records that the billing code identified by (code, date)
// was emailed. Unknown patients or codes are silently ignored in memory; the
// durable update is scheduled either way and is a no-op on missing rows.
func (s *Service) UpdateEmailStatus(patientID, code string, date, emailedDate time.Time, emailedTo string) {
	s.mu.Lock()
	if rec := s.records[patientID]; rec != nil {
		for i := range rec.BillingCodes {
			if rec.BillingCodes[i].SameKey(code, date) {
				d := emailedDate
				to := emailedTo
				rec.BillingCodes[i].EmailedDate = &d
				rec.BillingCodes[i].EmailedTo = &to
				break
			}
		}
	}
	s.mu.Unlock()

	s.queue.Enqueue(func(ctx context.Context) {
		if err := s.repo.UpdateEmailStatus(ctx, patientID, code, date, emailedDate, emailedTo); err != nil {
			s.writeFailed("update_email_status", err)
		}
	})
}

// DeleteBillingCode removes the first billing code matching (code, date)
// from the patient and schedules durable deletion by the same key.
func (s *Service) DeleteBillingCode(patientID, code string, date time.Time) {
	s.mu.Lock()
	if rec := s.records[patientID]; rec != nil {
		for i := range rec.BillingCodes {
			if rec.BillingCodes[i].SameKey(code, date) {
				rec.BillingCodes = append(rec.BillingCodes[:i], rec.BillingCodes[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	s.queue.Enqueue(func(ctx context.Context) {
		if err := s.repo.DeleteBillingCode(ctx, patientID, code, date); err != nil {
			s.writeFailed("delete_billing_code", err)
		}
	})
}

// BillingCodesByDateDesc returns copies of the patient's billing codes
// ordered by service date, newest first, ties kept in insertion order.
func (s *Service) BillingCodesByDateDesc(patientID string) []BillingCode {
	s.mu.RLock()
	rec := s.records[patientID]
	var out []BillingCode
	if rec != nil {
		out = make([]BillingCode, len(rec.BillingCodes))
		for i, c := range rec.BillingCodes {
			out[i] = *cloneCode(&c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// AllCodesEmailed reports whether the patient has at least one billing code
// and every one of them carries an emailed date. Used by list views to
// highlight records whose billing is fully dispatched.
func (s *Service) AllCodesEmailed(patientID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.records[patientID]
	if rec == nil || len(rec.BillingCodes) == 0 {
		return false
	}
	for i := range rec.BillingCodes {
		if rec.BillingCodes[i].EmailedDate == nil {
			return false
		}
	}
	return true
}

// Flush blocks until every durable write scheduled before the call has
// completed. Used by tests and during shutdown.
func (s *Service) Flush() {
	s.queue.Flush()
}

// Close drains pending durable writes and stops the background writer.
func (s *Service) Close() {
	s.queue.Close()
}

// schedulePatientSave persists a full record snapshot: the patient row plus
// all its billing codes, mirroring the in-memory state at schedule time.
func (s *Service) schedulePatientSave(rec *PatientRecord) {
	snapshot := rec.Clone()
	s.queue.Enqueue(func(ctx context.Context) {
		if err := s.repo.UpsertPatient(ctx, snapshot); err != nil {
			s.writeFailed("upsert_patient", err)
			return
		}
		if len(snapshot.BillingCodes) == 0 {
			return
		}
		if err := s.repo.UpsertBillingCodes(ctx, snapshot.PatientID, snapshot.BillingCodes); err != nil {
			s.writeFailed("upsert_billing_codes", err)
		}
	})
}

func (s *Service) writeFailed(op string, err error) {
	s.logger.Error().Err(err).Str("op", op).Msg("durable write failed")
	if s.onWriteError != nil {
		s.onWriteError(op, err)
	}
}
