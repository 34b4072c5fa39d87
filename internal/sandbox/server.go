// Package sandbox is a local stand-in for the remote payments API. It speaks
// the same envelope, trusts ID tokens of the dev identity provider and keeps
// its data in SQL.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/bmizerany/pat"
	"github.com/google/uuid"
	"github.com/justinas/alice"

	"paydesk/internal/config"
	"paydesk/internal/models"
	"paydesk/internal/repositories"
	"paydesk/internal/services"
	"paydesk/utils"
)

const searchLimit = 20

type PaymentStore interface {
	CreatePayment(ctx context.Context, by repositories.Submitter, req models.CreatePaymentRequest) (models.Payment, error)
	ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error)
	UpdateReceipt(ctx context.Context, id, receipt, processedBy string) (models.Payment, error)
}

type LeadStore interface {
	SearchLeads(ctx context.Context, q string, limit int) ([]models.LeadOrCustomerSummary, error)
}

// UserDirectory resolves token subjects to dev accounts.
type UserDirectory interface {
	User(subject string) (config.DevUser, bool)
}

type Presigner interface {
	PresignPut(key, contentType string, size int64) (string, string, error)
}

type Server struct {
	Payments  PaymentStore
	Leads     LeadStore
	Users     UserDirectory
	Tokens    *utils.Manager
	Presigner Presigner
	Console   config.ConsoleConfig
	Logger    *slog.Logger

	policy services.AttachmentPolicy
}

func NewServer(s Server) (*Server, error) {
	if s.Payments == nil || s.Leads == nil || s.Users == nil || s.Tokens == nil {
		return nil, errors.New("sandbox: payments, leads, users and tokens are required")
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	att := s.Console.Attachments
	att.Enabled = true
	s.policy = services.NewAttachmentPolicy(att)
	return &s, nil
}

type ctxKey int

const userKey ctxKey = iota

func (s *Server) Routes() http.Handler {
	standard := alice.New(s.recoverPanic, s.logRequest)
	authed := standard.Append(s.authenticate)

	mux := pat.New()
	mux.Get("/user/profile", authed.ThenFunc(s.profile))
	mux.Post("/payments", authed.ThenFunc(s.createPayment))
	mux.Get("/payments", authed.ThenFunc(s.listPayments))
	mux.Put("/payments/:id", authed.ThenFunc(s.updateReceipt))
	mux.Get("/leads/search", authed.ThenFunc(s.searchLeads))
	mux.Post("/upload/presigned-url", authed.ThenFunc(s.presign))
	return mux
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Logger.Info("request", "method", r.Method, "path", r.URL.Path, "request_id", r.Header.Get("X-Request-ID"))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				s.Logger.Error("panic", "err", fmt.Sprint(err))
				writeFailure(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate accepts "Bearer <id token>" issued by the dev provider.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeFailure(w, http.StatusUnauthorized, "Authorization header missing or invalid")
			return
		}
		claims, err := s.Tokens.Parse(raw)
		if err != nil || claims.TokenUse != "id" {
			writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		user, ok := s.Users.User(claims.Subject)
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "Unknown user")
			return
		}
		if user.Subject == "" {
			user.Subject = claims.Subject
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func currentUser(r *http.Request) config.DevUser {
	u, _ := r.Context().Value(userKey).(config.DevUser)
	return u
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	writeData(w, http.StatusOK, models.UserProfile{
		ID:         models.ID(u.Subject),
		FullName:   u.FullName,
		Email:      u.Email,
		Department: u.Department,
		Role:       u.Role,
	})
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeFailure(w, http.StatusBadRequest, "Amount must be greater than 0")
		return
	}
	if !s.Console.HasMethod(req.PaymentMethod) {
		writeFailure(w, http.StatusBadRequest, "Unsupported payment method")
		return
	}

	u := currentUser(r)
	p, err := s.Payments.CreatePayment(r.Context(), repositories.Submitter{Subject: u.Subject, FullName: u.FullName, Email: u.Email}, req)
	if err != nil {
		s.serverError(w, "create payment", err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	f := models.PaymentFilter{
		Status:        r.URL.Query().Get("status"),
		PaymentMethod: r.URL.Query().Get("payment_method"),
	}
	ps, err := s.Payments.ListPayments(r.Context(), f)
	if err != nil {
		s.serverError(w, "list payments", err)
		return
	}
	writeData(w, http.StatusOK, ps)
}

func (s *Server) updateReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(":id")
	var req models.UpdateReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	receipt := strings.TrimSpace(req.OfficialReceipt)
	if receipt == "" {
		writeFailure(w, http.StatusBadRequest, "Official receipt is required")
		return
	}

	u := currentUser(r)
	p, err := s.Payments.UpdateReceipt(r.Context(), id, receipt, u.FullName)
	if errors.Is(err, models.ErrPaymentNotFound) {
		writeFailure(w, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		s.serverError(w, "update receipt", err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *Server) searchLeads(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeData(w, http.StatusOK, []models.LeadOrCustomerSummary{})
		return
	}
	leads, err := s.Leads.SearchLeads(r.Context(), q, searchLimit)
	if err != nil {
		s.serverError(w, "search leads", err)
		return
	}
	writeData(w, http.StatusOK, leads)
}

func (s *Server) presign(w http.ResponseWriter, r *http.Request) {
	if s.Presigner == nil {
		writeFailure(w, http.StatusServiceUnavailable, "File storage is not configured")
		return
	}
	var req models.PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.policy.Check(req.Filename, req.Filetype, req.Filesize); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	key := objectKey(req.Filename)
	uploadURL, fileURL, err := s.Presigner.PresignPut(key, req.Filetype, req.Filesize)
	if err != nil {
		s.serverError(w, "presign", err)
		return
	}
	writeData(w, http.StatusOK, models.PresignResponse{UploadURL: uploadURL, FileURL: fileURL})
}

// objectKey places uploads under payments/<uuid>/ keeping a safe base name.
func objectKey(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return "payments/" + uuid.NewString() + "/" + name
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.Logger.Error("sandbox request failed", "op", op, "err", err)
	writeFailure(w, http.StatusInternalServerError, "Internal server error")
}

type envelope struct {
	Success bool                  `json:"success"`
	Data    any                   `json:"data,omitempty"`
	Error   *models.EnvelopeError `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &models.EnvelopeError{Message: msg}})
}
