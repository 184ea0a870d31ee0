package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitruvial/vitruvial/internal/platform/phi"
)

type repoPG struct {
	pool      *pgxpool.Pool
	encryptor phi.FieldEncryptor
}

// NewRepoPG creates a Postgres-backed repository. The encryptor is applied to
// the patient name and the serialized extracted-info map before storage; pass
// nil to store plaintext.
func NewRepoPG(pool *pgxpool.Pool, enc phi.FieldEncryptor) Repository {
	return &repoPG{pool: pool, encryptor: enc}
}

func (r *repoPG) UpsertPatient(ctx context.Context, p *PatientRecord) error {
	name, err := encryptField(r.encryptor, p.PatientName)
	if err != nil {
		return fmt.Errorf("patient upsert: %w", err)
	}
	info, err := encodeInfo(r.encryptor, p.ExtractedInfo)
	if err != nil {
		return fmt.Errorf("patient upsert: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO patients (patient_id, patient_name, extracted_info, creation_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id) DO UPDATE SET
			patient_name = EXCLUDED.patient_name,
			extracted_info = EXCLUDED.extracted_info,
			creation_date = EXCLUDED.creation_date`,
		p.PatientID, name, info, p.CreationDate,
	)
	if err != nil {
		return fmt.Errorf("patient upsert: %w", err)
	}
	return nil
}

func (r *repoPG) UpsertBillingCodes(ctx context.Context, patientID string, codes []BillingCode) error {
	if len(codes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range codes {
		batch.Queue(`
			INSERT INTO billing_codes (patient_id, code, date, referring_doctor, emailed_date, emailed_to)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (patient_id, code, date) DO UPDATE SET
				referring_doctor = EXCLUDED.referring_doctor,
				emailed_date = EXCLUDED.emailed_date,
				emailed_to = EXCLUDED.emailed_to`,
			patientID, c.Code, c.Date, c.ReferringDoctor, c.EmailedDate, c.EmailedTo,
		)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range codes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("billing codes upsert: %w", err)
		}
	}
	return nil
}

func (r *repoPG) UpdateEmailStatus(ctx context.Context, patientID, code string, date, emailedDate time.Time, emailedTo string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE billing_codes SET emailed_date = $4, emailed_to = $5
		WHERE patient_id = $1 AND code = $2 AND date = $3`,
		patientID, code, date, emailedDate, emailedTo,
	)
	if err != nil {
		return fmt.Errorf("billing code email status: %w", err)
	}
	return nil
}

func (r *repoPG) DeleteBillingCode(ctx context.Context, patientID, code string, date time.Time) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM billing_codes WHERE patient_id = $1 AND code = $2 AND date = $3`,
		patientID, code, date,
	)
	if err != nil {
		return fmt.Errorf("billing code delete: %w", err)
	}
	return nil
}

func (r *repoPG) DeletePatient(ctx context.Context, patientID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `DELETE FROM billing_codes WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("patient delete: billing codes: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM patients WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("patient delete: commit: %w", err)
	}
	return nil
}

func (r *repoPG) LoadAll(ctx context.Context) ([]*PatientRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT patient_id, patient_name, extracted_info, creation_date
		FROM patients ORDER BY creation_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	var records []*PatientRecord
	byID := make(map[string]*PatientRecord)
	for rows.Next() {
		var (
			rec        PatientRecord
			name, info string
		)
		if err := rows.Scan(&rec.PatientID, &name, &info, &rec.CreationDate); err != nil {
			return nil, fmt.Errorf("load patients: scan: %w", err)
		}
		if rec.PatientName, err = decryptField(r.encryptor, name); err != nil {
			return nil, fmt.Errorf("load patients: %w", err)
		}
		if rec.ExtractedInfo, err = decodeInfo(r.encryptor, info); err != nil {
			return nil, fmt.Errorf("load patients: %w", err)
		}
		records = append(records, &rec)
		byID[rec.PatientID] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	codeRows, err := r.pool.Query(ctx, `
		SELECT patient_id, code, date, referring_doctor, emailed_date, emailed_to
		FROM billing_codes ORDER BY patient_id, date DESC`)
	if err != nil {
		return nil, fmt.Errorf("load billing codes: %w", err)
	}
	defer codeRows.Close()

	for codeRows.Next() {
		var (
			patientID string
			c         BillingCode
		)
		if err := codeRows.Scan(&patientID, &c.Code, &c.Date, &c.ReferringDoctor, &c.EmailedDate, &c.EmailedTo); err != nil {
			return nil, fmt.Errorf("load billing codes: scan: %w", err)
		}
		if rec := byID[patientID]; rec != nil {
			rec.BillingCodes = append(rec.BillingCodes, c)
		}
	}
	if err := codeRows.Err(); err != nil {
		return nil, fmt.Errorf("load billing codes: %w", err)
	}

	return records, nil
}
