package patient

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitruvial/vitruvial/internal/platform/db"
	"github.com/vitruvial/vitruvial/internal/platform/phi"
)

func newSQLiteRepo(t *testing.T, enc phi.FieldEncryptor) Repository {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	repo, err := NewRepoSQLite(conn, enc)
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	return repo
}

func testEncryptor(t *testing.T) phi.FieldEncryptor {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	enc, err := phi.NewEncryptor(key)
	if err != nil {
		t.Fatalf("create encryptor: %v", err)
	}
	return enc
}

func TestSQLiteRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		enc  func(*testing.T) phi.FieldEncryptor
	}{
		{"plaintext", func(*testing.T) phi.FieldEncryptor { return nil }},
		{"encrypted", testEncryptor},
	} {
		t.Run(tc.name, func(t *testing.T) {
			repo := newSQLiteRepo(t, tc.enc(t))
			ctx := context.Background()

			created := time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC)
			rec := &PatientRecord{
				PatientID:   "p1",
				PatientName: "Jane Doe",
				ExtractedInfo: map[string]string{
					FieldFirstName:      "Jane",
					FieldMedicareNumber: "2950 12345 1",
				},
				CreationDate: created,
			}
			if err := repo.UpsertPatient(ctx, rec); err != nil {
				t.Fatalf("upsert patient: %v", err)
			}

			day := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
			codes := []BillingCode{
				{Code: "23", Date: day, ReferringDoctor: "Dr Smith"},
				{Code: "36", Date: day.AddDate(0, 0, 1)},
			}
			if err := repo.UpsertBillingCodes(ctx, "p1", codes); err != nil {
				t.Fatalf("upsert codes: %v", err)
			}

			loaded, err := repo.LoadAll(ctx)
			if err != nil {
				t.Fatalf("load all: %v", err)
			}
			if len(loaded) != 1 {
				t.Fatalf("expected 1 record, got %d", len(loaded))
			}
			got := loaded[0]
			if got.PatientName != "Jane Doe" {
				t.Errorf("name = %q", got.PatientName)
			}
			if got.ExtractedInfo[FieldMedicareNumber] != "2950 12345 1" {
				t.Errorf("extracted info lost: %v", got.ExtractedInfo)
			}
			if !got.CreationDate.Equal(created) {
				t.Errorf("creation date = %v, want %v", got.CreationDate, created)
			}
			if len(got.BillingCodes) != 2 {
				t.Fatalf("expected 2 codes, got %d", len(got.BillingCodes))
			}
			// LoadAll orders codes newest first.
			if got.BillingCodes[0].Code != "36" || got.BillingCodes[1].Code != "23" {
				t.Errorf("unexpected code order: %v", got.BillingCodes)
			}
			if got.BillingCodes[1].ReferringDoctor != "Dr Smith" {
				t.Errorf("referring doctor lost: %v", got.BillingCodes[1])
			}
			if got.BillingCodes[0].EmailedDate != nil {
				t.Error("fresh code must have no emailed date")
			}
		})
	}
}

func TestSQLiteUpsertPatientOverwrites(t *testing.T) {
	repo := newSQLiteRepo(t, nil)
	ctx := context.Background()

	rec := &PatientRecord{PatientID: "p1", PatientName: "Jane Doe", CreationDate: time.Now()}
	if err := repo.UpsertPatient(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.PatientName = "Jane A Doe"
	if err := repo.UpsertPatient(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	loaded, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(loaded) != 1 || loaded[0].PatientName != "Jane A Doe" {
		t.Errorf("upsert did not overwrite: %v", loaded)
	}
}

func TestSQLiteEmailStatusRoundTrip(t *testing.T) {
	repo := newSQLiteRepo(t, nil)
	ctx := context.Background()

	if err := repo.UpsertPatient(ctx, &PatientRecord{PatientID: "p1", CreationDate: time.Now()}); err != nil {
		t.Fatalf("upsert patient: %v", err)
	}
	day := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	if err := repo.UpsertBillingCodes(ctx, "p1", []BillingCode{{Code: "23", Date: day}}); err != nil {
		t.Fatalf("upsert codes: %v", err)
	}

	sent := time.Date(2026, 2, 4, 9, 15, 0, 0, time.UTC)
	if err := repo.UpdateEmailStatus(ctx, "p1", "23", day, sent, "clinic@example.com"); err != nil {
		t.Fatalf("update email status: %v", err)
	}

	loaded, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	code := loaded[0].BillingCodes[0]
	if code.EmailedDate == nil || !code.EmailedDate.Equal(sent) {
		t.Errorf("emailed date = %v, want %v", code.EmailedDate, sent)
	}
	if code.EmailedTo == nil || *code.EmailedTo != "clinic@example.com" {
		t.Errorf("emailed to = %v", code.EmailedTo)
	}
}

func TestSQLiteDeletes(t *testing.T) {
	repo := newSQLiteRepo(t, nil)
	ctx := context.Background()

	day := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	if err := repo.UpsertPatient(ctx, &PatientRecord{PatientID: "p1", CreationDate: time.Now()}); err != nil {
		t.Fatalf("upsert patient: %v", err)
	}
	if err := repo.UpsertBillingCodes(ctx, "p1", []BillingCode{
		{Code: "23", Date: day}, {Code: "36", Date: day},
	}); err != nil {
		t.Fatalf("upsert codes: %v", err)
	}

	if err := repo.DeleteBillingCode(ctx, "p1", "23", day); err != nil {
		t.Fatalf("delete code: %v", err)
	}
	loaded, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(loaded[0].BillingCodes) != 1 || loaded[0].BillingCodes[0].Code != "36" {
		t.Errorf("unexpected codes after delete: %v", loaded[0].BillingCodes)
	}

	if err := repo.DeletePatient(ctx, "p1"); err != nil {
		t.Fatalf("delete patient: %v", err)
	}
	loaded, err = repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty store, got %v", loaded)
	}
}

func TestSQLiteCiphertextAtRest(t *testing.T) {
	enc := testEncryptor(t)
	path := filepath.Join(t.TempDir(), "records.db")
	conn, err := db.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	repo, err := NewRepoSQLite(conn, enc)
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}

	ctx := context.Background()
	if err := repo.UpsertPatient(ctx, &PatientRecord{
		PatientID:     "p1",
		PatientName:   "Jane Doe",
		ExtractedInfo: map[string]string{FieldFirstName: "Jane"},
		CreationDate:  time.Now(),
	}); err != nil {
		t.Fatalf("upsert patient: %v", err)
	}

	var name, info string
	row := conn.QueryRow(`SELECT patient_name, extracted_info FROM patients WHERE patient_id = 'p1'`)
	if err := row.Scan(&name, &info); err != nil {
		t.Fatalf("scan raw row: %v", err)
	}
	if name == "Jane Doe" {
		t.Error("patient name stored in plaintext")
	}
	if info == `{"firstName":"Jane"}` {
		t.Error("extracted info stored in plaintext")
	}
}
