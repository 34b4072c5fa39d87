package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Payment statuses known to the console. The remote API owns transitions.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusReviewed   = "reviewed"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp decodes RFC 3339 as well as the plain SQL datetime layout.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Attachment is a file already stored in object storage.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

// UserDetails is the denormalized submitter shown in the records table.
type UserDetails struct {
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

type Payment struct {
	ID              ID           `json:"id"`
	Amount          json.Number  `json:"amount"`
	Currency        string       `json:"currency,omitempty"`
	PaymentMethod   string       `json:"payment_method"`
	Description     string       `json:"description,omitempty"`
	Status          string       `json:"status"`
	OfficialReceipt string       `json:"official_receipt,omitempty"`
	ReferenceNumber string       `json:"reference_number,omitempty"`
	TransactionID   string       `json:"transaction_id,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	LeadID          ID           `json:"lead_id,omitempty"`
	UserDetails     *UserDetails `json:"user_details,omitempty"`
	CreatedAt       *Timestamp   `json:"created_at,omitempty"`
	UpdatedAt       *Timestamp   `json:"updated_at,omitempty"`
	ProcessedAt     *Timestamp   `json:"processed_at,omitempty"`
	ProcessedBy     string       `json:"processed_by,omitempty"`
}

// AmountValue returns the amount as a float and whether it parsed.
func (p Payment) AmountValue() (float64, bool) {
	if p.Amount == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(p.Amount.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// MergeReceiptUpdate copies the fields the server changes on a receipt update.
func (p *Payment) MergeReceiptUpdate(updated Payment) {
	p.OfficialReceipt = updated.OfficialReceipt
	if updated.Status != "" {
		p.Status = updated.Status
	}
	if updated.ProcessedAt != nil {
		p.ProcessedAt = updated.ProcessedAt
	}
	if updated.ProcessedBy != "" {
		p.ProcessedBy = updated.ProcessedBy
	}
}

// CreatePaymentRequest is the body of POST /payments.
type CreatePaymentRequest struct {
	Amount        float64      `json:"amount"`
	PaymentMethod string       `json:"payment_method"`
	Description   string       `json:"description"`
	LeadID        *string      `json:"lead_id"`
	Attachments   []Attachment `json:"attachments"`
}

// UpdateReceiptRequest is the body of PUT /payments/{id}.
type UpdateReceiptRequest struct {
	OfficialReceipt string `json:"official_receipt"`
}

// PaymentFilter holds the server-side query filters. Empty means all.
type PaymentFilter struct {
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
}
