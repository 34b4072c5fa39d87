package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"paydesk/internal/config"
	"paydesk/internal/models"
)

type SortKey string

const (
	SortByID              SortKey = "id"
	SortByAmount          SortKey = "amount"
	SortByStatus          SortKey = "status"
	SortByCreatedAt       SortKey = "created_at"
	SortByUpdatedAt       SortKey = "updated_at"
	SortByOfficialReceipt SortKey = "official_receipt"
	SortByPaymentMethod   SortKey = "payment_method"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortByID, SortByAmount, SortByStatus, SortByCreatedAt, SortByUpdatedAt, SortByOfficialReceipt, SortByPaymentMethod:
		return true
	}
	return false
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type SortSpec struct {
	Key       SortKey       `json:"key"`
	Direction SortDirection `json:"direction"`
}

// FilterPayments keeps the payments matching query case-insensitively in
// any searchable field. A blank query keeps everything.
func FilterPayments(payments []models.Payment, query string) []models.Payment {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Payment, 0, len(payments))
	for _, p := range payments {
		if q == "" || matchesPayment(p, q) {
			out = append(out, p)
		}
	}
	return out
}

func matchesPayment(p models.Payment, q string) bool {
	fields := []string{p.ID.String(), p.Description, p.OfficialReceipt, p.ReferenceNumber, p.TransactionID}
	if p.UserDetails != nil {
		fields = append(fields, p.UserDetails.FullName)
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// sortValue is one payment's value under a sort key. Absent values sort
// after present ones in both directions.
type sortValue struct {
	present bool
	num     float64
	numeric bool
	when    time.Time
	isTime  bool
	text    string
}

func valueFor(p models.Payment, key SortKey) sortValue {
	switch key {
	case SortByID:
		if p.ID == "" {
			return sortValue{}
		}
		if n, err := strconv.ParseFloat(p.ID.String(), 64); err == nil {
			return sortValue{present: true, num: n, numeric: true}
		}
		return sortValue{present: true, text: p.ID.String()}
	case SortByAmount:
		if v, ok := p.AmountValue(); ok {
			return sortValue{present: true, num: v, numeric: true}
		}
		return sortValue{}
	case SortByCreatedAt:
		return timeValue(p.CreatedAt)
	case SortByUpdatedAt:
		return timeValue(p.UpdatedAt)
	case SortByStatus:
		return textValue(p.Status)
	case SortByOfficialReceipt:
		return textValue(p.OfficialReceipt)
	case SortByPaymentMethod:
		return textValue(p.PaymentMethod)
	}
	return sortValue{}
}

func timeValue(t *models.Timestamp) sortValue {
	if t == nil || t.IsZero() {
		return sortValue{}
	}
	return sortValue{present: true, when: t.Time, isTime: true}
}

// textValue treats an empty string as absent: the API sends "" and null
// interchangeably for unset text fields, so both sort last.
func textValue(s string) sortValue {
	if s == "" {
		return sortValue{}
	}
	return sortValue{present: true, text: s}
}

// SortPayments returns a stably sorted copy. Strings compare with a
// locale-aware collator, numbers and times by value.
func SortPayments(payments []models.Payment, spec SortSpec) []models.Payment {
	out := slices.Clone(payments)
	if !spec.Key.Valid() {
		return out
	}
	col := collate.New(language.English)
	values := make(map[int]sortValue, len(out))
	idx := make([]int, len(out))
	for i := range out {
		idx[i] = i
		values[i] = valueFor(out[i], spec.Key)
	}

	slices.SortStableFunc(idx, func(a, b int) int {
		va, vb := values[a], values[b]
		switch {
		case !va.present && !vb.present:
			return 0
		case !va.present:
			return 1
		case !vb.present:
			return -1
		}
		c := compareValues(col, va, vb)
		if spec.Direction == SortDesc {
			c = -c
		}
		return c
	})

	sorted := make([]models.Payment, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}

func compareValues(col *collate.Collator, a, b sortValue) int {
	switch {
	case a.numeric && b.numeric:
		return cmpFloat(a.num, b.num)
	case a.isTime && b.isTime:
		return a.when.Compare(b.when)
	case a.numeric != b.numeric:
		// Mixed numeric and text ids: numbers first.
		if a.numeric {
			return -1
		}
		return 1
	default:
		return col.CompareString(a.text, b.text)
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Paginate returns page (clamped to the valid range) of size items and the
// page count, at least 1.
func Paginate(payments []models.Payment, page, size int) ([]models.Payment, int, int) {
	if size <= 0 {
		size = len(payments)
		if size == 0 {
			size = 1
		}
	}
	totalPages := (len(payments) + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	page = clampPage(page, totalPages)
	start := (page - 1) * size
	if start > len(payments) {
		start = len(payments)
	}
	end := start + size
	if end > len(payments) {
		end = len(payments)
	}
	return payments[start:end], page, totalPages
}

func clampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

type RecordsAPI interface {
	ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error)
	UpdateReceipt(ctx context.Context, id, receipt string) (models.Payment, error)
}

// ReceiptEdit is the one row whose official receipt is being edited.
type ReceiptEdit struct {
	PaymentID models.ID `json:"payment_id"`
	Value     string    `json:"value"`
	Error     string    `json:"error,omitempty"`
}

// RecordsState is the derived, paginated view of the records table.
type RecordsState struct {
	Filter     models.PaymentFilter `json:"filter"`
	Search     string               `json:"search"`
	Sort       SortSpec             `json:"sort"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
	Total      int                  `json:"total"`
	Loaded     int                  `json:"loaded"`
	Showing    string               `json:"showing"`
	Rows       []models.Payment     `json:"rows"`
	Edit       *ReceiptEdit         `json:"edit"`
	CanEdit    bool                 `json:"can_edit"`
	Error      string               `json:"error,omitempty"`
	Statuses   []config.Option      `json:"statuses"`
	Methods    []config.Option      `json:"payment_methods"`
}

// PaymentRecords is the records view of one signed-in user.
type PaymentRecords struct {
	cfg    config.ConsoleConfig
	api    RecordsAPI
	gate   *Gate
	role   string
	logger *slog.Logger

	payments []models.Payment
	filter   models.PaymentFilter
	search   string
	sort     SortSpec
	page     int
	edit     *ReceiptEdit
	errMsg   string
	fetched  bool
}

func NewPaymentRecords(cfg config.ConsoleConfig, api RecordsAPI, gate *Gate, role string, logger *slog.Logger) *PaymentRecords {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentRecords{
		cfg:    cfg,
		api:    api,
		gate:   gate,
		role:   role,
		logger: logger,
		sort:   SortSpec{Key: SortByCreatedAt, Direction: SortDesc},
		page:   1,
	}
}

func (r *PaymentRecords) checkAccess() error {
	if !r.gate.Allowed(r.role, models.ViewPaymentRecords) {
		return models.ErrAccessDenied
	}
	return nil
}

// Load fetches the records for the current server-side filters. On failure
// the previously loaded records stay.
func (r *PaymentRecords) Load(ctx context.Context) error {
	if err := r.checkAccess(); err != nil {
		return err
	}
	payments, err := r.api.ListPayments(ctx, r.filter)
	r.fetched = true
	if err != nil {
		r.errMsg = err.Error()
		r.logger.Warn("load payments failed", "err", err)
		return err
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	r.payments = payments
	r.errMsg = ""
	return nil
}

func (r *PaymentRecords) Refresh(ctx context.Context) error { return r.Load(ctx) }

// LoadOnce loads the records unless a load was already attempted. An empty
// result or a failed load counts as attempted.
func (r *PaymentRecords) LoadOnce(ctx context.Context) error {
	if err := r.checkAccess(); err != nil {
		return err
	}
	if r.fetched {
		return nil
	}
	return r.Load(ctx)
}

// SetFilters replaces both server-side filters, resets the page and reloads.
func (r *PaymentRecords) SetFilters(ctx context.Context, f models.PaymentFilter) error {
	if err := r.checkAccess(); err != nil {
		return err
	}
	if f.Status != "" && !r.cfg.HasStatus(f.Status) {
		return fmt.Errorf("unknown status %q", f.Status)
	}
	if f.PaymentMethod != "" && !r.cfg.HasMethod(f.PaymentMethod) {
		return fmt.Errorf("%w: %q", models.ErrInvalidMethod, f.PaymentMethod)
	}
	r.filter = f
	r.page = 1
	return r.Load(ctx)
}

func (r *PaymentRecords) SetStatusFilter(ctx context.Context, status string) error {
	f := r.filter
	f.Status = status
	return r.SetFilters(ctx, f)
}

func (r *PaymentRecords) SetMethodFilter(ctx context.Context, method string) error {
	f := r.filter
	f.PaymentMethod = method
	return r.SetFilters(ctx, f)
}

// SetSearch changes the free-text filter and resets the page.
func (r *PaymentRecords) SetSearch(q string) {
	r.search = q
	r.page = 1
}

// Sort flips the direction for the current key; a new key starts descending.
func (r *PaymentRecords) Sort(key SortKey) error {
	if !key.Valid() {
		return fmt.Errorf("unknown sort key %q", key)
	}
	if r.sort.Key == key {
		if r.sort.Direction == SortDesc {
			r.sort.Direction = SortAsc
		} else {
			r.sort.Direction = SortDesc
		}
		return nil
	}
	r.sort = SortSpec{Key: key, Direction: SortDesc}
	return nil
}

func (r *PaymentRecords) SetPage(page int) {
	_, total := r.derived()
	r.page = clampPage(page, total)
}

func (r *PaymentRecords) derived() ([]models.Payment, int) {
	rows := SortPayments(FilterPayments(r.payments, r.search), r.sort)
	size := r.cfg.PageSize
	total := 1
	if size > 0 {
		total = (len(rows) + size - 1) / size
	}
	if total < 1 {
		total = 1
	}
	return rows, total
}

func (r *PaymentRecords) View() (RecordsState, error) {
	if err := r.checkAccess(); err != nil {
		return RecordsState{}, err
	}
	rows, _ := r.derived()
	pageRows, page, totalPages := Paginate(rows, r.page, r.cfg.PageSize)
	st := RecordsState{
		Filter:     r.filter,
		Search:     r.search,
		Sort:       r.sort,
		Page:       page,
		PageSize:   r.cfg.PageSize,
		TotalPages: totalPages,
		Total:      len(rows),
		Loaded:     len(r.payments),
		Showing:    fmt.Sprintf("Showing %d of %d records", len(pageRows), len(rows)),
		Rows:       pageRows,
		CanEdit:    r.gate.Can(r.role, models.ActionEditReceipt),
		Error:      r.errMsg,
		Statuses:   r.cfg.Statuses,
		Methods:    r.cfg.PaymentMethods,
	}
	if r.edit != nil {
		e := *r.edit
		st.Edit = &e
	}
	return st, nil
}

// BeginEdit opens the receipt editor on one row, replacing any open edit.
func (r *PaymentRecords) BeginEdit(id models.ID) error {
	if err := r.checkAccess(); err != nil {
		return err
	}
	if !r.gate.Can(r.role, models.ActionEditReceipt) {
		return models.ErrAccessDenied
	}
	for _, p := range r.payments {
		if p.ID == id {
			r.edit = &ReceiptEdit{PaymentID: id, Value: p.OfficialReceipt}
			return nil
		}
	}
	return models.ErrPaymentNotFound
}

func (r *PaymentRecords) CancelEdit() { r.edit = nil }

// SaveReceipt sends the edited receipt. On success the server's fields are
// merged into the loaded record and the edit closes; on failure it stays
// open carrying the error.
func (r *PaymentRecords) SaveReceipt(ctx context.Context, value string) (models.Payment, error) {
	if r.edit == nil {
		return models.Payment{}, models.ErrNoEditInProgress
	}
	r.edit.Value = value
	receipt := strings.TrimSpace(value)
	if receipt == "" {
		r.edit.Error = models.ErrEmptyReceipt.Error()
		return models.Payment{}, models.ErrEmptyReceipt
	}

	updated, err := r.api.UpdateReceipt(ctx, r.edit.PaymentID.String(), receipt)
	if err != nil {
		r.edit.Error = err.Error()
		return models.Payment{}, err
	}
	if updated.OfficialReceipt == "" {
		updated.OfficialReceipt = receipt
	}

	var merged models.Payment
	for i := range r.payments {
		if r.payments[i].ID == r.edit.PaymentID {
			r.payments[i].MergeReceiptUpdate(updated)
			merged = r.payments[i]
			break
		}
	}
	r.logger.Info("official receipt updated", "payment_id", r.edit.PaymentID.String())
	r.edit = nil
	return merged, nil
}
