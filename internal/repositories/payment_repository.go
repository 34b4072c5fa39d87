package repositories

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"paydesk/internal/models"
)

type PaymentRepo struct {
	DB      *sql.DB
	Dialect Dialect
	now     func() time.Time
}

func NewPaymentRepo(db *sql.DB, dialect Dialect) *PaymentRepo {
	return &PaymentRepo{DB: db, Dialect: dialect, now: time.Now}
}

var paymentSchema = []string{
	`CREATE TABLE IF NOT EXISTS payments (
		id VARCHAR(36) PRIMARY KEY,
		user_sub VARCHAR(128) NOT NULL,
		user_name VARCHAR(255) NOT NULL DEFAULT '',
		user_email VARCHAR(255) NOT NULL DEFAULT '',
		amount DECIMAL(14,2) NOT NULL,
		currency VARCHAR(8) NOT NULL DEFAULT 'MYR',
		payment_method VARCHAR(32) NOT NULL,
		description TEXT,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		official_receipt VARCHAR(64),
		reference_number VARCHAR(64),
		transaction_id VARCHAR(64),
		attachments TEXT,
		lead_id VARCHAR(64),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NULL,
		processed_at TIMESTAMP NULL,
		processed_by VARCHAR(255)
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id VARCHAR(36) PRIMARY KEY,
		source_type VARCHAR(16) NOT NULL,
		ref_id VARCHAR(64) NOT NULL,
		full_name VARCHAR(255) NOT NULL,
		email_address VARCHAR(255) NOT NULL DEFAULT '',
		phone_number VARCHAR(64) NOT NULL DEFAULT '',
		company_name VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(32) NOT NULL DEFAULT ''
	)`,
}

// Migrate creates the sandbox tables when missing.
func (r *PaymentRepo) Migrate(ctx context.Context) error {
	for _, stmt := range paymentSchema {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Submitter is the signed-in user a payment is recorded for.
type Submitter struct {
	Subject  string
	FullName string
	Email    string
}

func (r *PaymentRepo) CreatePayment(ctx context.Context, by Submitter, req models.CreatePaymentRequest) (models.Payment, error) {
	attachments, err := json.Marshal(req.Attachments)
	if err != nil {
		return models.Payment{}, err
	}
	id := uuid.NewString()
	now := r.now().UTC().Truncate(time.Second)
	receipt, err := newCode("OR-")
	if err != nil {
		return models.Payment{}, err
	}
	reference := fmt.Sprintf("PAY-%s-%s", now.Format("20060102"), strings.ToUpper(id[:8]))
	var leadID sql.NullString
	if req.LeadID != nil && *req.LeadID != "" {
		leadID = sql.NullString{String: *req.LeadID, Valid: true}
	}

	const q = `INSERT INTO payments (id, user_sub, user_name, user_email, amount, payment_method, description,
		status, official_receipt, reference_number, attachments, lead_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?)`
	_, err = r.DB.ExecContext(ctx, r.Dialect.Rebind(q),
		id, by.Subject, by.FullName, by.Email, req.Amount, req.PaymentMethod, req.Description,
		receipt, reference, string(attachments), leadID, now,
	)
	if err != nil {
		return models.Payment{}, err
	}
	return r.GetPayment(ctx, id)
}

const paymentColumns = `id, user_name, user_email, amount, currency, payment_method, description, status,
	official_receipt, reference_number, transaction_id, attachments, lead_id, created_at, updated_at,
	processed_at, processed_by`

func (r *PaymentRepo) GetPayment(ctx context.Context, id string) (models.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	p, err := scanPayment(r.DB.QueryRowContext(ctx, r.Dialect.Rebind(q), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, models.ErrPaymentNotFound
	}
	return p, err
}

// ListPayments returns every payment matching f, newest first.
func (r *PaymentRepo) ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments`
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.PaymentMethod != "" {
		where = append(where, "payment_method = ?")
		args = append(args, f.PaymentMethod)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdateReceipt sets the official receipt and marks the payment reviewed.
func (r *PaymentRepo) UpdateReceipt(ctx context.Context, id, receipt, processedBy string) (models.Payment, error) {
	now := r.now().UTC().Truncate(time.Second)
	const q = `UPDATE payments SET official_receipt = ?, status = 'reviewed', processed_at = ?, processed_by = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(q), receipt, now, processedBy, now, id)
	if err != nil {
		return models.Payment{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Payment{}, models.ErrPaymentNotFound
	}
	return r.GetPayment(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (models.Payment, error) {
	var (
		p                                     models.Payment
		userName, userEmail, amount, currency sql.NullString
		description, receipt, reference, txn  sql.NullString
		attachments, leadID, processedBy      sql.NullString
		createdAt, updatedAt, processedAt     sql.NullTime
		id, method, status                    string
	)
	err := row.Scan(&id, &userName, &userEmail, &amount, &currency, &method, &description, &status,
		&receipt, &reference, &txn, &attachments, &leadID, &createdAt, &updatedAt, &processedAt, &processedBy)
	if err != nil {
		return models.Payment{}, err
	}

	p.ID = models.ID(id)
	p.Amount = json.Number(nullString(amount))
	p.Currency = nullString(currency)
	p.PaymentMethod = method
	p.Description = nullString(description)
	p.Status = status
	p.OfficialReceipt = nullString(receipt)
	p.ReferenceNumber = nullString(reference)
	p.TransactionID = nullString(txn)
	p.LeadID = models.ID(nullString(leadID))
	p.ProcessedBy = nullString(processedBy)
	if userName.Valid || userEmail.Valid {
		p.UserDetails = &models.UserDetails{FullName: userName.String, Email: userEmail.String}
	}
	if s := nullString(attachments); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &p.Attachments); err != nil {
			return models.Payment{}, fmt.Errorf("payment %s attachments: %w", id, err)
		}
	}
	p.CreatedAt = timestamp(createdAt)
	p.UpdatedAt = timestamp(updatedAt)
	p.ProcessedAt = timestamp(processedAt)
	return p, nil
}

func timestamp(t sql.NullTime) *models.Timestamp {
	if !t.Valid {
		return nil
	}
	return &models.Timestamp{Time: t.Time}
}

func newCode(prefix string) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%X", prefix, b), nil
}
