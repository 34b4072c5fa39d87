// Package workspace keeps one console workspace per browser session: the
// session object, the identity adapter, the request pipeline and the views
// built on top of them for the signed-in user.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"paydesk/internal/config"
	"paydesk/internal/identity"
	"paydesk/internal/models"
	"paydesk/internal/services"
	"paydesk/internal/session"
)

// Deps are shared by every workspace.
type Deps struct {
	Config     config.Config
	Gate       *services.Gate
	Provider   identity.Provider
	Persister  session.Persister
	HTTPClient *http.Client
	Uploader   services.Uploader
	Logger     *slog.Logger
}

func (d Deps) Validate() error {
	if d.Gate == nil {
		return fmt.Errorf("workspace: gate is nil")
	}
	if d.Provider == nil {
		return fmt.Errorf("workspace: identity provider is nil")
	}
	if d.Persister == nil {
		return fmt.Errorf("workspace: session persister is nil")
	}
	if d.Uploader == nil {
		return fmt.Errorf("workspace: uploader is nil")
	}
	return nil
}

// Workspace is the server-side state of one console session. Operations run
// one at a time under Run.
type Workspace struct {
	ID string

	deps     Deps
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	lastSeen atomic.Int64
	resetHit atomic.Bool

	mu          sync.Mutex
	initialized bool
	session     *session.Session
	identity    *identity.Adapter
	api         *services.PaymentsAPI
	auth        *services.AuthService

	role      string
	navigator *services.Navigator
	search    *services.LeadSearch
	form      *services.PaymentForm
	records   *services.PaymentRecords
}

func newWorkspace(id string, deps Deps, now time.Time) (*Workspace, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("workspace", id)
	ctx, cancel := context.WithCancel(context.Background())

	w := &Workspace{ID: id, deps: deps, logger: logger, ctx: ctx, cancel: cancel}
	w.lastSeen.Store(now.UnixNano())

	w.session = session.New(id, deps.Persister, logger)
	w.identity = identity.NewAdapter(deps.Provider, w.session, logger)
	client, err := services.NewAPIClient(services.APIClientConfig{
		BaseURL: deps.Config.API.BaseURL,
		Client:  deps.HTTPClient,
		Tokens:  w.identity,
		Session: w.session,
		Logger:  logger,
		OnReset: func() { w.resetHit.Store(true) },
	})
	if err != nil {
		cancel()
		return nil, err
	}
	w.api = services.NewPaymentsAPI(client)
	w.auth = services.NewAuthService(w.identity, w.api, w.session, logger)
	return w, nil
}

// Run executes fn with the workspace locked. The first Run restores the
// persisted session and resolves the signed-in user. If the session was reset
// since the last Run, fn is skipped and services.ErrSessionReset returned.
func (w *Workspace) Run(ctx context.Context, fn func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch(time.Now())

	if !w.initialized {
		if err := w.session.Restore(ctx); err != nil {
			w.logger.Warn("session restore failed", "err", err)
		}
		w.auth.Init(ctx)
		w.initialized = true
	}

	// A reset can land between operations, from the debounced lead search.
	if w.applyReset() {
		return services.ErrSessionReset
	}
	err := fn()
	w.applyReset()
	return err
}

func (w *Workspace) applyReset() bool {
	if !w.resetHit.Swap(false) {
		return false
	}
	w.auth.Invalidate()
	w.dropViews()
	return true
}

func (w *Workspace) touch(now time.Time) { w.lastSeen.Store(now.UnixNano()) }

func (w *Workspace) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, w.lastSeen.Load()))
}

// The accessors below must be called inside Run.

func (w *Workspace) Auth() *services.AuthService { return w.auth }

func (w *Workspace) Session() *session.Session { return w.session }

// User returns the signed-in profile or models.ErrNotAuthenticated.
func (w *Workspace) User() (models.UserProfile, error) {
	u, ok := w.auth.User()
	if !ok {
		return models.UserProfile{}, models.ErrNotAuthenticated
	}
	return u, nil
}

func (w *Workspace) Navigator() (*services.Navigator, error) {
	if err := w.ensureViews(); err != nil {
		return nil, err
	}
	return w.navigator, nil
}

func (w *Workspace) Form() (*services.PaymentForm, error) {
	if err := w.ensureViews(); err != nil {
		return nil, err
	}
	return w.form, nil
}

func (w *Workspace) Records() (*services.PaymentRecords, error) {
	if err := w.ensureViews(); err != nil {
		return nil, err
	}
	return w.records, nil
}

// Login signs in and rebuilds the views for the new user.
func (w *Workspace) Login(ctx context.Context, email, password string) (models.UserProfile, error) {
	w.dropViews()
	return w.auth.Login(ctx, email, password)
}

func (w *Workspace) Logout(ctx context.Context) {
	w.auth.Logout(ctx)
	w.dropViews()
}

func (w *Workspace) ensureViews() error {
	u, err := w.User()
	if err != nil {
		return err
	}
	if w.form != nil && w.role == u.Role {
		return nil
	}
	w.dropViews()

	cfg := w.deps.Config.Console
	w.role = u.Role
	w.navigator = services.NewNavigator(w.deps.Gate, u.Role)
	w.search = services.NewLeadSearch(w.ctx, w.api, cfg.SearchDebounce, w.logger)
	files := services.NewAttachmentQueue(services.NewAttachmentPolicy(cfg.Attachments), w.api, w.deps.Uploader, w.logger)
	w.form = services.NewPaymentForm(cfg, w.api, w.search, files, w.logger)
	w.records = services.NewPaymentRecords(cfg, w.api, w.deps.Gate, u.Role, w.logger)
	return nil
}

func (w *Workspace) dropViews() {
	if w.search != nil {
		w.search.Close()
	}
	w.role = ""
	w.navigator, w.search, w.form, w.records = nil, nil, nil, nil
}

// Search returns the lead search of the current form, for streaming. It
// locks the workspace itself.
func (w *Workspace) Search(ctx context.Context) (*services.LeadSearch, error) {
	var s *services.LeadSearch
	err := w.Run(ctx, func() error {
		f, err := w.Form()
		if err != nil {
			return err
		}
		s = f.Search()
		return nil
	})
	return s, err
}

func (w *Workspace) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropViews()
	w.cancel()
}
