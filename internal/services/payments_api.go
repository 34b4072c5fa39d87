package services

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"paydesk/internal/models"
)

// Caller is the request pipeline as seen by the typed API wrapper.
type Caller interface {
	Call(ctx context.Context, method, endpoint string, body, out any) (*models.Envelope, error)
}

// PaymentsAPI exposes the remote API endpoints the console uses.
type PaymentsAPI struct {
	api Caller
}

func NewPaymentsAPI(api Caller) *PaymentsAPI { return &PaymentsAPI{api: api} }

func (p *PaymentsAPI) Profile(ctx context.Context) (models.UserProfile, error) {
	var profile models.UserProfile
	_, err := p.api.Call(ctx, http.MethodGet, "/user/profile", nil, &profile)
	return profile, err
}

func (p *PaymentsAPI) CreatePayment(ctx context.Context, req models.CreatePaymentRequest) (models.Payment, error) {
	var created models.Payment
	_, err := p.api.Call(ctx, http.MethodPost, "/payments", req, &created)
	return created, err
}

// ListPayments omits empty filter values so the server returns all.
func (p *PaymentsAPI) ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.PaymentMethod != "" {
		q.Set("payment_method", f.PaymentMethod)
	}
	endpoint := "/payments"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var payments []models.Payment
	if _, err := p.api.Call(ctx, http.MethodGet, endpoint, nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (p *PaymentsAPI) UpdateReceipt(ctx context.Context, id, receipt string) (models.Payment, error) {
	var updated models.Payment
	_, err := p.api.Call(ctx, http.MethodPut, "/payments/"+url.PathEscape(id), models.UpdateReceiptRequest{OfficialReceipt: receipt}, &updated)
	return updated, err
}

func (p *PaymentsAPI) SearchLeads(ctx context.Context, query string) ([]models.LeadOrCustomerSummary, error) {
	var results []models.LeadOrCustomerSummary
	endpoint := "/leads/search?q=" + url.QueryEscape(strings.TrimSpace(query))
	if _, err := p.api.Call(ctx, http.MethodGet, endpoint, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PaymentsAPI) PresignUpload(ctx context.Context, req models.PresignRequest) (models.PresignResponse, error) {
	var out models.PresignResponse
	_, err := p.api.Call(ctx, http.MethodPost, "/upload/presigned-url", req, &out)
	return out, err
}
