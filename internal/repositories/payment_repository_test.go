package repositories

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"paydesk/internal/models"
)

func TestDialectRebind(t *testing.T) {
	q := `SELECT id FROM payments WHERE status = ? AND payment_method = ? LIMIT ?`
	if got := DialectMySQL.Rebind(q); got != q {
		t.Fatalf("mysql rebind changed query: %s", got)
	}
	want := `SELECT id FROM payments WHERE status = $1 AND payment_method = $2 LIMIT $3`
	if got := DialectPostgres.Rebind(q); got != want {
		t.Fatalf("postgres rebind = %s", got)
	}
}

func TestParseDialect(t *testing.T) {
	cases := map[string]Dialect{"": DialectMySQL, "MySQL": DialectMySQL, "postgres": DialectPostgres, "pgx": DialectPostgres}
	for in, want := range cases {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("sqlite"); err == nil {
		t.Error("expected error for sqlite")
	}
}

// The store tests need a live database: set PAYDESK_TEST_DB_DRIVER and
// PAYDESK_TEST_DB_URL (mysql DSNs need parseTime=true).
func openTestDB(t *testing.T) (*sql.DB, Dialect) {
	t.Helper()
	url := os.Getenv("PAYDESK_TEST_DB_URL")
	if url == "" {
		t.Skip("PAYDESK_TEST_DB_URL not set")
	}
	dialect, err := ParseDialect(os.Getenv("PAYDESK_TEST_DB_DRIVER"))
	if err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open(dialect.DriverName(), url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := NewPaymentRepo(db, dialect).Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return db, dialect
}

func TestPaymentRepoLifecycle(t *testing.T) {
	db, dialect := openTestDB(t)
	repo := NewPaymentRepo(db, dialect)
	ctx := context.Background()

	lead := "L-1"
	created, err := repo.CreatePayment(ctx, Submitter{Subject: "u-1", FullName: "Ann"}, models.CreatePaymentRequest{
		Amount:        12.5,
		PaymentMethod: "cash",
		Description:   "deposit",
		LeadID:        &lead,
		Attachments:   []models.Attachment{{Filename: "a.pdf", URL: "http://s3/a.pdf", Size: 3, Type: "application/pdf"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.Status != models.PaymentStatusPending || created.OfficialReceipt == "" || len(created.Attachments) != 1 {
		t.Fatalf("created = %+v", created)
	}

	list, err := repo.ListPayments(ctx, models.PaymentFilter{PaymentMethod: "cash"})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, p := range list {
		if p.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("created payment not listed")
	}

	updated, err := repo.UpdateReceipt(ctx, created.ID.String(), "OR-777", "Bob")
	if err != nil {
		t.Fatal(err)
	}
	if updated.OfficialReceipt != "OR-777" || updated.Status != models.PaymentStatusReviewed || updated.ProcessedAt == nil {
		t.Fatalf("updated = %+v", updated)
	}

	if _, err := repo.UpdateReceipt(ctx, "missing", "x", "Bob"); !errors.Is(err, models.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
