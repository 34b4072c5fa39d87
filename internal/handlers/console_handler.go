package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"paydesk/internal/config"
	"paydesk/internal/identity"
	"paydesk/internal/models"
	"paydesk/internal/services"
	"paydesk/internal/workspace"
)

type ctxKey int

const workspaceKey ctxKey = iota

// WithWorkspace attaches the console workspace resolved from the cookie.
func WithWorkspace(ctx context.Context, w *workspace.Workspace) context.Context {
	return context.WithValue(ctx, workspaceKey, w)
}

func WorkspaceFrom(ctx context.Context) (*workspace.Workspace, bool) {
	w, ok := ctx.Value(workspaceKey).(*workspace.Workspace)
	return w, ok
}

const maxUploadRequest = 64 << 20

type response struct {
	Success bool                  `json:"success"`
	Data    any                   `json:"data,omitempty"`
	Error   *models.EnvelopeError `json:"error,omitempty"`
	Reload  bool                  `json:"reload,omitempty"`
}

type ConsoleHandler struct {
	Gate    *services.Gate
	Console config.ConsoleConfig
	Logger  *slog.Logger
}

func NewConsoleHandler(gate *services.Gate, cfg config.ConsoleConfig, logger *slog.Logger) *ConsoleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleHandler{Gate: gate, Console: cfg, Logger: logger}
}

type sessionView struct {
	State   services.AuthState      `json:"state"`
	User    *models.UserProfile     `json:"user,omitempty"`
	Views   []models.ViewDescriptor `json:"views"`
	Current *services.ViewState     `json:"current,omitempty"`
}

func (h *ConsoleHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	h.run(w, r, func(ws *workspace.Workspace) (any, error) {
		if _, err := ws.Login(r.Context(), req.Email, req.Password); err != nil {
			return nil, &loginError{err: err}
		}
		return h.sessionView(ws), nil
	})
}

func (h *ConsoleHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ws *workspace.Workspace) (any, error) {
		ws.Logout(r.Context())
		return h.sessionView(ws), nil
	})
}

func (h *ConsoleHandler) Me(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ws *workspace.Workspace) (any, error) {
		return h.sessionView(ws), nil
	})
}

// SelectView switches the current view. A forbidden view is not an error:
// the access-denied state is returned for the SPA to render.
func (h *ConsoleHandler) SelectView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		View models.ViewID `json:"view"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.run(w, r, func(ws *workspace.Workspace) (any, error) {
		nav, err := ws.Navigator()
		if err != nil {
			return nil, err
		}
		return nav.Select(req.View), nil
	})
}

// AccessMatrix backs the user-admin view.
func (h *ConsoleHandler) AccessMatrix(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ws *workspace.Workspace) (any, error) {
		u, err := ws.User()
		if err != nil {
			return nil, err
		}
		if !h.Gate.Allowed(u.Role, models.ViewUserAdmin) {
			return nil, models.ErrAccessDenied
		}
		return h.Gate.Matrix(), nil
	})
}

func (h *ConsoleHandler) sessionView(ws *workspace.Workspace) sessionView {
	v := sessionView{State: ws.Auth().State(), Views: []models.ViewDescriptor{}}
	u, err := ws.User()
	if err != nil {
		return v
	}
	v.User = &u
	if nav, err := ws.Navigator(); err == nil {
		v.Views = nav.Views()
		cur := nav.Current()
		v.Current = &cur
	}
	return v
}

// Payment form

func (h *ConsoleHandler) withForm(w http.ResponseWriter, r *http.Request, fn func(f *services.PaymentForm) (any, error)) {
	h.run(w, r, func(ws *workspace.Workspace) (any, error) {
		u, err := ws.User()
		if err != nil {
			return nil, err
		}
		if !h.Gate.Allowed(u.Role, models.ViewPaymentCreate) {
			return nil, models.ErrAccessDenied
		}
		f, err := ws.Form()
		if err != nil {
			return nil, err
		}
		return fn(f)
	})
}

func (h *ConsoleHandler) FormState(w http.ResponseWriter, r *http.Request) {
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		return f.State(), nil
	})
}

func (h *ConsoleHandler) SetField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		if err := f.SetField(req.Name, req.Value); err != nil {
			return nil, badRequest(err)
		}
		return f.State(), nil
	})
}

// SearchLeads schedules a debounced search and returns its sequence number.
// Results arrive over the search stream or with the next form state.
func (h *ConsoleHandler) SearchLeads(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"q"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		seq := f.Search().Type(req.Query)
		return map[string]any{"seq": seq, "search": f.Search().Current()}, nil
	})
}

func (h *ConsoleHandler) SelectLead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         models.ID `json:"id"`
		SourceType string    `json:"source_type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		if err := f.SelectLead(req.ID, req.SourceType); err != nil {
			return nil, err
		}
		return f.State(), nil
	})
}

func (h *ConsoleHandler) ClearLead(w http.ResponseWriter, r *http.Request) {
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		f.ClearLead()
		return f.State(), nil
	})
}

// AddFiles accepts one or more multipart "file" parts. Rejected files are
// reported next to the form state; accepted ones are queued as pending.
func (h *ConsoleHandler) AddFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadRequest)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	type upload struct {
		name, ctype string
		content     []byte
	}
	var uploads []upload
	for _, fh := range r.MultipartForm.File["file"] {
		file, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unable to read "+fh.Filename)
			return
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unable to read "+fh.Filename)
			return
		}
		ctype := fh.Header.Get("Content-Type")
		if ctype == "" {
			ctype = http.DetectContentType(content)
		}
		uploads = append(uploads, upload{name: fh.Filename, ctype: ctype, content: content})
	}
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}

	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		rejected := []string{}
		for _, u := range uploads {
			if _, err := f.Files().Add(u.name, u.ctype, u.content); err != nil {
				if errors.Is(err, models.ErrAttachmentsDisabled) {
					return nil, badRequest(err)
				}
				rejected = append(rejected, err.Error())
			}
		}
		return map[string]any{"form": f.State(), "rejected": rejected}, nil
	})
}

func (h *ConsoleHandler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		if err := f.Files().Remove(id); err != nil {
			return nil, err
		}
		return f.State(), nil
	})
}

func (h *ConsoleHandler) RetryFile(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		if err := f.Files().Retry(id); err != nil {
			return nil, err
		}
		return f.State(), nil
	})
}

func (h *ConsoleHandler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		f.Files().UploadPending(r.Context())
		return f.State(), nil
	})
}

func (h *ConsoleHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		p, err := f.Submit(r.Context())
		if err != nil {
			return nil, err
		}
		return map[string]any{"payment": p, "form": f.State()}, nil
	})
}

func (h *ConsoleHandler) ResetForm(w http.ResponseWriter, r *http.Request) {
	h.withForm(w, r, func(f *services.PaymentForm) (any, error) {
		f.Reset()
		return f.State(), nil
	})
}

// Payment records

func (h *ConsoleHandler) withRecords(w http.ResponseWriter, r *http.Request, fn func(rec *services.PaymentRecords) error) {
	h.run(w, r, func(ws *workspace.Workspace) (any, error) {
		rec, err := ws.Records()
		if err != nil {
			return nil, err
		}
		if err := fn(rec); err != nil {
			return nil, err
		}
		return rec.View()
	})
}

// Records returns the table, loading it on first open.
func (h *ConsoleHandler) Records(w http.ResponseWriter, r *http.Request) {
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		return rec.LoadOnce(r.Context())
	})
}

func (h *ConsoleHandler) RefreshRecords(w http.ResponseWriter, r *http.Request) {
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		return rec.Refresh(r.Context())
	})
}

func (h *ConsoleHandler) SetRecordFilters(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentFilter
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		return rec.SetFilters(r.Context(), req)
	})
}

func (h *ConsoleHandler) SearchRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"q"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		rec.SetSearch(req.Query)
		return nil
	})
}

func (h *ConsoleHandler) SortRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key services.SortKey `json:"key"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		if err := rec.Sort(req.Key); err != nil {
			return badRequest(err)
		}
		return nil
	})
}

func (h *ConsoleHandler) SetRecordPage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Page int `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if page, convErr := strconv.Atoi(r.URL.Query().Get("page")); convErr == nil {
			req.Page = page
		} else {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
	}
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		rec.SetPage(req.Page)
		return nil
	})
}

func (h *ConsoleHandler) BeginReceiptEdit(w http.ResponseWriter, r *http.Request) {
	id := models.ID(pathParam(r, "id"))
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		return rec.BeginEdit(id)
	})
}

// SaveReceiptEdit keeps the edit open on failure. The failure is answered
// with the error envelope; the next records GET shows the edit with its error.
func (h *ConsoleHandler) SaveReceiptEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		_, err := rec.SaveReceipt(r.Context(), req.Value)
		return err
	})
}

func (h *ConsoleHandler) CancelReceiptEdit(w http.ResponseWriter, r *http.Request) {
	h.withRecords(w, r, func(rec *services.PaymentRecords) error {
		rec.CancelEdit()
		return nil
	})
}

// run resolves the workspace, executes fn under its lock and writes the
// envelope.
func (h *ConsoleHandler) run(w http.ResponseWriter, r *http.Request, fn func(ws *workspace.Workspace) (any, error)) {
	ws, ok := WorkspaceFrom(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "console session missing")
		return
	}

	var data any
	err := ws.Run(r.Context(), func() error {
		var err error
		data, err = fn(ws)
		return err
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func (h *ConsoleHandler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := consoleErrorStatus(err)
	msg := err.Error()

	var le *loginError
	if errors.As(err, &le) {
		msg = services.LoginMessage(le.err)
	}
	var br *badRequestError
	if errors.As(err, &br) {
		msg = br.err.Error()
	}
	switch {
	case le != nil:
	case errors.Is(err, services.ErrTransport):
		msg = services.ErrTransport.Error()
	case errors.Is(err, services.ErrInvalidResponseFormat):
		msg = services.ErrInvalidResponseFormat.Error()
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("console request failed", "op", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, response{
		Error:  &models.EnvelopeError{Message: msg},
		Reload: errors.Is(err, services.ErrSessionReset),
	})
}

type loginError struct{ err error }

func (e *loginError) Error() string { return e.err.Error() }
func (e *loginError) Unwrap() error { return e.err }

type badRequestError struct{ err error }

func badRequest(err error) error         { return &badRequestError{err: err} }
func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// consoleErrorStatus maps service errors to HTTP statuses. Remote API 4xx
// statuses pass through, everything else from upstream is a bad gateway.
func consoleErrorStatus(err error) int {
	var le *loginError
	if errors.As(err, &le) {
		if errors.Is(err, services.ErrTransport) || errors.Is(err, services.ErrInvalidResponseFormat) {
			return http.StatusBadGateway
		}
		return http.StatusUnauthorized
	}
	var br *badRequestError
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}

	switch {
	case errors.Is(err, services.ErrSessionReset), errors.Is(err, models.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrPaymentNotFound), errors.Is(err, models.ErrLeadNotFound), errors.Is(err, models.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrInvalidMethod),
		errors.Is(err, models.ErrEmptyReceipt), errors.Is(err, models.ErrNoEditInProgress),
		errors.Is(err, models.ErrAttachmentsNotReady), errors.Is(err, models.ErrAttachmentsDisabled),
		errors.Is(err, identity.ErrSignInIncomplete):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTransport), errors.Is(err, services.ErrInvalidResponseFormat):
		return http.StatusBadGateway
	}

	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Error: &models.EnvelopeError{Message: msg}})
}
