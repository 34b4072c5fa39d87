package repositories

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"paydesk/internal/models"
)

type LeadRepo struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewLeadRepo(db *sql.DB, dialect Dialect) *LeadRepo {
	return &LeadRepo{DB: db, Dialect: dialect}
}

// SearchLeads matches q against name, email, phone and company,
// case-insensitively.
func (r *LeadRepo) SearchLeads(ctx context.Context, q string, limit int) ([]models.LeadOrCustomerSummary, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	query := `SELECT id, source_type, ref_id, full_name, email_address, phone_number, company_name, status
		FROM leads
		WHERE LOWER(full_name) LIKE ? OR LOWER(email_address) LIKE ? OR phone_number LIKE ? OR LOWER(company_name) LIKE ?
		ORDER BY full_name
		LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(query), pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []models.LeadOrCustomerSummary{}
	for rows.Next() {
		var (
			l               models.LeadOrCustomerSummary
			id, source, ref string
		)
		if err := rows.Scan(&id, &source, &ref, &l.FullName, &l.EmailAddress, &l.PhoneNumber, &l.CompanyName, &l.Status); err != nil {
			return nil, err
		}
		l.ID = models.ID(id)
		l.SourceType = source
		if source == models.SourceCustomer {
			l.CustomerID = models.ID(ref)
		} else {
			l.LeadID = models.ID(ref)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// SeedLeads inserts a few rows into an empty leads table.
func (r *LeadRepo) SeedLeads(ctx context.Context, leads []models.LeadOrCustomerSummary) (int, error) {
	var count int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	const q = `INSERT INTO leads (id, source_type, ref_id, full_name, email_address, phone_number, company_name, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, l := range leads {
		_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(q),
			uuid.NewString(), l.SourceType, l.RefID().String(), l.FullName, l.EmailAddress, l.PhoneNumber, l.CompanyName, l.Status)
		if err != nil {
			return 0, err
		}
	}
	return len(leads), nil
}
