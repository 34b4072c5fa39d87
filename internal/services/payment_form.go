package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"paydesk/internal/config"
	"paydesk/internal/models"
)

// SelectedLead is the lead or customer attached to the draft.
type SelectedLead struct {
	SourceType string                       `json:"source_type"`
	ID         models.ID                    `json:"id"`
	Summary    models.LeadOrCustomerSummary `json:"summary"`
}

type Draft struct {
	Amount        string        `json:"amount"`
	PaymentMethod string        `json:"payment_method"`
	Description   string        `json:"description"`
	Lead          *SelectedLead `json:"lead"`
}

// FormState is everything the payment form renders.
type FormState struct {
	Draft              Draft            `json:"draft"`
	Files              []UploadableFile `json:"files"`
	Search             SearchResult     `json:"search"`
	Methods            []config.Option  `json:"payment_methods"`
	AttachmentsEnabled bool             `json:"attachments_enabled"`
	Error              string           `json:"error,omitempty"`
	Success            string           `json:"success,omitempty"`
}

type PaymentCreator interface {
	CreatePayment(ctx context.Context, req models.CreatePaymentRequest) (models.Payment, error)
}

// PaymentForm is the payment creation flow of one console session.
type PaymentForm struct {
	cfg    config.ConsoleConfig
	api    PaymentCreator
	search *LeadSearch
	files  *AttachmentQueue
	logger *slog.Logger

	draft   Draft
	errMsg  string
	success string
}

func NewPaymentForm(cfg config.ConsoleConfig, api PaymentCreator, search *LeadSearch, files *AttachmentQueue, logger *slog.Logger) *PaymentForm {
	if logger == nil {
		logger = slog.Default()
	}
	f := &PaymentForm{cfg: cfg, api: api, search: search, files: files, logger: logger}
	f.draft = f.emptyDraft()
	return f
}

func (f *PaymentForm) emptyDraft() Draft {
	return Draft{PaymentMethod: f.cfg.DefaultMethod}
}

// SetField updates one draft field and clears any shown message.
func (f *PaymentForm) SetField(name, value string) error {
	switch name {
	case "amount":
		f.draft.Amount = value
	case "payment_method":
		f.draft.PaymentMethod = value
	case "description":
		f.draft.Description = value
	default:
		return fmt.Errorf("unknown field %q", name)
	}
	f.errMsg, f.success = "", ""
	return nil
}

func (f *PaymentForm) Search() *LeadSearch { return f.search }

func (f *PaymentForm) Files() *AttachmentQueue { return f.files }

// SelectLead attaches a row of the current search results to the draft and
// clears the search.
func (f *PaymentForm) SelectLead(id models.ID, sourceType string) error {
	row, ok := f.search.Find(id, sourceType)
	if !ok {
		return models.ErrLeadNotFound
	}
	f.draft.Lead = &SelectedLead{SourceType: row.SourceType, ID: row.RefID(), Summary: row}
	f.search.Clear()
	return nil
}

func (f *PaymentForm) ClearLead() { f.draft.Lead = nil }

// Submit validates the draft, uploads pending attachments and creates the
// payment. On failure the draft is kept as is.
func (f *PaymentForm) Submit(ctx context.Context) (models.Payment, error) {
	f.errMsg, f.success = "", ""

	p, err := f.submit(ctx)
	if err != nil {
		f.errMsg = err.Error()
		return models.Payment{}, err
	}

	f.reset()
	f.success = fmt.Sprintf("Payment created successfully! Payment ID: %s | Official Receipt: %s", p.ID, p.OfficialReceipt)
	f.logger.Info("payment created", "payment_id", p.ID.String(), "receipt", p.OfficialReceipt)
	return p, nil
}

func (f *PaymentForm) submit(ctx context.Context) (models.Payment, error) {
	amount, err := ParseAmount(f.draft.Amount)
	if err != nil {
		return models.Payment{}, err
	}
	if !f.cfg.HasMethod(f.draft.PaymentMethod) {
		return models.Payment{}, models.ErrInvalidMethod
	}

	if !f.files.Ready() {
		f.files.UploadPending(ctx)
	}
	if !f.files.Ready() {
		return models.Payment{}, models.ErrAttachmentsNotReady
	}

	req := models.CreatePaymentRequest{
		Amount:        amount,
		PaymentMethod: f.draft.PaymentMethod,
		Description:   strings.TrimSpace(f.draft.Description),
		Attachments:   f.files.Uploaded(),
	}
	if f.draft.Lead != nil && f.draft.Lead.ID != "" {
		id := f.draft.Lead.ID.String()
		req.LeadID = &id
	}
	return f.api.CreatePayment(ctx, req)
}

// Reset discards the draft, search and files.
func (f *PaymentForm) Reset() {
	f.reset()
	f.errMsg, f.success = "", ""
}

func (f *PaymentForm) reset() {
	f.draft = f.emptyDraft()
	f.search.Clear()
	f.files.Reset()
}

func (f *PaymentForm) State() FormState {
	return FormState{
		Draft:              f.draft,
		Files:              f.files.Files(),
		Search:             f.search.Current(),
		Methods:            f.cfg.PaymentMethods,
		AttachmentsEnabled: f.cfg.Attachments.Enabled,
		Error:              f.errMsg,
		Success:            f.success,
	}
}

// ParseAmount accepts a positive finite decimal.
func ParseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, models.ErrInvalidAmount
	}
	return v, nil
}
