package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	consoleMiddleware := standardMiddleware.Append(app.consoleSession)
	h := app.consoleHandler

	mux := pat.New()

	mux.Get("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Session
	mux.Post("/console/login", consoleMiddleware.ThenFunc(h.Login))
	mux.Post("/console/logout", consoleMiddleware.ThenFunc(h.Logout))
	mux.Get("/console/me", consoleMiddleware.ThenFunc(h.Me))
	mux.Post("/console/view", consoleMiddleware.ThenFunc(h.SelectView))
	mux.Get("/console/views/user-admin", consoleMiddleware.ThenFunc(h.AccessMatrix))

	// Payment form
	mux.Get("/console/payment-form", consoleMiddleware.ThenFunc(h.FormState))
	mux.Post("/console/payment-form/field", consoleMiddleware.ThenFunc(h.SetField))
	mux.Post("/console/payment-form/search", consoleMiddleware.ThenFunc(h.SearchLeads))
	mux.Get("/console/payment-form/search/stream", consoleMiddleware.ThenFunc(app.leadSearchStream))
	mux.Post("/console/payment-form/lead", consoleMiddleware.ThenFunc(h.SelectLead))
	mux.Del("/console/payment-form/lead", consoleMiddleware.ThenFunc(h.ClearLead))
	mux.Post("/console/payment-form/files/upload", consoleMiddleware.ThenFunc(h.UploadFiles))
	mux.Post("/console/payment-form/files/:id/retry", consoleMiddleware.ThenFunc(h.RetryFile))
	mux.Del("/console/payment-form/files/:id", consoleMiddleware.ThenFunc(h.RemoveFile))
	mux.Post("/console/payment-form/files", consoleMiddleware.ThenFunc(h.AddFiles))
	mux.Post("/console/payment-form/submit", consoleMiddleware.ThenFunc(h.Submit))
	mux.Post("/console/payment-form/reset", consoleMiddleware.ThenFunc(h.ResetForm))

	// Payment records
	mux.Get("/console/payment-records", consoleMiddleware.ThenFunc(h.Records))
	mux.Post("/console/payment-records/refresh", consoleMiddleware.ThenFunc(h.RefreshRecords))
	mux.Post("/console/payment-records/filters", consoleMiddleware.ThenFunc(h.SetRecordFilters))
	mux.Post("/console/payment-records/search", consoleMiddleware.ThenFunc(h.SearchRecords))
	mux.Post("/console/payment-records/sort", consoleMiddleware.ThenFunc(h.SortRecords))
	mux.Post("/console/payment-records/page", consoleMiddleware.ThenFunc(h.SetRecordPage))
	mux.Put("/console/payment-records/edit", consoleMiddleware.ThenFunc(h.SaveReceiptEdit))
	mux.Del("/console/payment-records/edit", consoleMiddleware.ThenFunc(h.CancelReceiptEdit))
	mux.Post("/console/payment-records/:id/edit", consoleMiddleware.ThenFunc(h.BeginReceiptEdit))

	return mux
}
