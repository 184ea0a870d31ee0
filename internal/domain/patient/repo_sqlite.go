package patient

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vitruvial/vitruvial/internal/platform/phi"
)

type repoSQLite struct {
	db        *sql.DB
	encryptor phi.FieldEncryptor
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS patients (
	patient_id    TEXT PRIMARY KEY,
	patient_name  TEXT NOT NULL,
	extracted_info TEXT NOT NULL,
	creation_date INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS billing_codes (
	patient_id       TEXT NOT NULL,
	code             TEXT NOT NULL,
	date             INTEGER NOT NULL,
	referring_doctor TEXT NOT NULL DEFAULT '',
	emailed_date     INTEGER,
	emailed_to       TEXT,
	PRIMARY KEY (patient_id, code, date)
);
`

// NewRepoSQLite creates a repository over an embedded SQLite database,
// creating the schema on first use. Timestamps are stored as unix
// milliseconds. The encryptor covers the patient name and the serialized
// extracted-info map; nil stores plaintext.
func NewRepoSQLite(db *sql.DB, enc phi.FieldEncryptor) (Repository, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &repoSQLite{db: db, encryptor: enc}, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func (r *repoSQLite) UpsertPatient(ctx context.Context, p *PatientRecord) error {
	name, err := encryptField(r.encryptor, p.PatientName)
	if err != nil {
		return fmt.Errorf("patient upsert: %w", err)
	}
	info, err := encodeInfo(r.encryptor, p.ExtractedInfo)
	if err != nil {
		return fmt.Errorf("patient upsert: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO patients (patient_id, patient_name, extracted_info, creation_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (patient_id) DO UPDATE SET
			patient_name = excluded.patient_name,
			extracted_info = excluded.extracted_info,
			creation_date = excluded.creation_date`,
		p.PatientID, name, info, millis(p.CreationDate),
	)
	if err != nil {
		return fmt.Errorf("patient upsert: %w", err)
	}
	return nil
}

func (r *repoSQLite) UpsertBillingCodes(ctx context.Context, patientID string, codes []BillingCode) error {
	if len(codes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("billing codes upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, c := range codes {
		var emailedAt *int64
		if c.EmailedDate != nil {
			ms := millis(*c.EmailedDate)
			emailedAt = &ms
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO billing_codes (patient_id, code, date, referring_doctor, emailed_date, emailed_to)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (patient_id, code, date) DO UPDATE SET
				referring_doctor = excluded.referring_doctor,
				emailed_date = excluded.emailed_date,
				emailed_to = excluded.emailed_to`,
			patientID, c.Code, millis(c.Date), c.ReferringDoctor, emailedAt, c.EmailedTo,
		)
		if err != nil {
			return fmt.Errorf("billing codes upsert: %w", err)
		}
	}
	return tx.Commit()
}

func (r *repoSQLite) UpdateEmailStatus(ctx context.Context, patientID, code string, date, emailedDate time.Time, emailedTo string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE billing_codes SET emailed_date = ?, emailed_to = ?
		WHERE patient_id = ? AND code = ? AND date = ?`,
		millis(emailedDate), emailedTo, patientID, code, millis(date),
	)
	if err != nil {
		return fmt.Errorf("billing code email status: %w", err)
	}
	return nil
}

func (r *repoSQLite) DeleteBillingCode(ctx context.Context, patientID, code string, date time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM billing_codes WHERE patient_id = ? AND code = ? AND date = ?`,
		patientID, code, millis(date),
	)
	if err != nil {
		return fmt.Errorf("billing code delete: %w", err)
	}
	return nil
}

func (r *repoSQLite) DeletePatient(ctx context.Context, patientID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM billing_codes WHERE patient_id = ?`, patientID); err != nil {
		return fmt.Errorf("patient delete: billing codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM patients WHERE patient_id = ?`, patientID); err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	return tx.Commit()
}

func (r *repoSQLite) LoadAll(ctx context.Context) ([]*PatientRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
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
			createdMs  int64
		)
		if err := rows.Scan(&rec.PatientID, &name, &info, &createdMs); err != nil {
			return nil, fmt.Errorf("load patients: scan: %w", err)
		}
		rec.CreationDate = fromMillis(createdMs)
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

	codeRows, err := r.db.QueryContext(ctx, `
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
			dateMs    int64
			emailedMs *int64
		)
		if err := codeRows.Scan(&patientID, &c.Code, &dateMs, &c.ReferringDoctor, &emailedMs, &c.EmailedTo); err != nil {
			return nil, fmt.Errorf("load billing codes: scan: %w", err)
		}
		c.Date = fromMillis(dateMs)
		if emailedMs != nil {
			t := fromMillis(*emailedMs)
			c.EmailedDate = &t
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
