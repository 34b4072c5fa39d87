package workspace

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"paydesk/internal/config"
	"paydesk/internal/identity"
	"paydesk/internal/models"
	"paydesk/internal/services"
	"paydesk/internal/session"
)

type fixture struct {
	deps         Deps
	unauthorized atomic.Bool
	listCalls    atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fx.unauthorized.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"success":false}`)
			return
		}
		switch {
		case r.URL.Path == "/user/profile":
			io.WriteString(w, `{"success":true,"data":{"id":1,"fullName":"Ann","role":"account"}}`)
		case r.URL.Path == "/payments":
			fx.listCalls.Add(1)
			io.WriteString(w, `{"success":true,"data":[{"id":1,"amount":"5","status":"pending"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"success":false}`)
		}
	}))
	t.Cleanup(srv.Close)

	cfg, err := config.Parse([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	cfg.API.BaseURL = srv.URL
	gate, err := services.NewGate(cfg.Console)
	if err != nil {
		t.Fatal(err)
	}
	provider, err := identity.NewDevProvider(config.IdentityConfig{
		DevSecret: "secret",
		DevUsers:  []config.DevUser{{Email: "ann@example.com", Password: "pw", Role: "account"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	fx.deps = Deps{
		Config:     cfg,
		Gate:       gate,
		Provider:   provider,
		Persister:  session.NewMemoryStore(),
		HTTPClient: srv.Client(),
		Uploader:   services.NewObjectUploader(srv.Client()),
	}
	return fx
}

func TestWorkspaceLoginAndRecords(t *testing.T) {
	fx := newFixture(t)
	reg, err := NewRegistry(fx.deps)
	if err != nil {
		t.Fatal(err)
	}
	w, _ := reg.Get("ws-1")
	ctx := context.Background()

	err = w.Run(ctx, func() error {
		if w.Auth().State() != services.StateUnauthenticated {
			t.Errorf("state = %s", w.Auth().State())
		}
		_, err := w.Records()
		return err
	})
	if !errors.Is(err, models.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	err = w.Run(ctx, func() error {
		p, err := w.Login(ctx, "ann@example.com", "pw")
		if err != nil {
			return err
		}
		if p.Role != "account" {
			t.Errorf("role = %q", p.Role)
		}
		nav, err := w.Navigator()
		if err != nil {
			return err
		}
		if nav.Current().View != models.ViewPaymentRecords {
			t.Errorf("landing view = %s", nav.Current().View)
		}
		rec, err := w.Records()
		if err != nil {
			return err
		}
		return rec.Load(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
	if fx.listCalls.Load() != 1 {
		t.Fatalf("list calls = %d", fx.listCalls.Load())
	}
	if again, _ := reg.Get("ws-1"); again != w {
		t.Fatal("registry returned a different workspace")
	}
}

func TestWorkspaceRestoresPersistedSession(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, _ := NewRegistry(fx.deps)
	w, _ := first.Get("ws-2")
	if err := w.Run(ctx, func() error {
		_, err := w.Login(ctx, "ann@example.com", "pw")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	second, _ := NewRegistry(fx.deps)
	w2, _ := second.Get("ws-2")
	err := w2.Run(ctx, func() error {
		if w2.Auth().State() != services.StateAuthenticated {
			t.Errorf("state after restore = %s", w2.Auth().State())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWorkspaceResetInvalidatesUser(t *testing.T) {
	fx := newFixture(t)
	reg, _ := NewRegistry(fx.deps)
	w, _ := reg.Get("ws-3")
	ctx := context.Background()
	if err := w.Run(ctx, func() error {
		_, err := w.Login(ctx, "ann@example.com", "pw")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	fx.unauthorized.Store(true)
	err := w.Run(ctx, func() error {
		rec, err := w.Records()
		if err != nil {
			return err
		}
		return rec.Load(ctx)
	})
	if !errors.Is(err, services.ErrSessionReset) {
		t.Fatalf("expected ErrSessionReset, got %v", err)
	}
	w.Run(ctx, func() error {
		if w.Auth().State() != services.StateUnauthenticated {
			t.Errorf("state = %s", w.Auth().State())
		}
		if w.Session().Token() != "" {
			t.Error("token survived reset")
		}
		return nil
	})
}

func TestWorkspaceResetFromLeadSearch(t *testing.T) {
	fx := newFixture(t)
	fx.deps.Config.Console.SearchDebounce = 5 * time.Millisecond
	reg, _ := NewRegistry(fx.deps)
	w, _ := reg.Get("ws-5")
	ctx := context.Background()
	if err := w.Run(ctx, func() error {
		_, err := w.Login(ctx, "ann@example.com", "pw")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	search, err := w.Search(ctx)
	if err != nil {
		t.Fatal(err)
	}
	results, unsubscribe := search.Subscribe()
	defer unsubscribe()

	fx.unauthorized.Store(true)
	search.Type("acme")
	select {
	case res := <-results:
		if !res.Reload {
			t.Fatalf("search result = %+v, want reload", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("search result not published")
	}

	fx.unauthorized.Store(false)
	err = w.Run(ctx, func() error {
		t.Error("operation ran after the session was reset")
		return nil
	})
	if !errors.Is(err, services.ErrSessionReset) {
		t.Fatalf("expected ErrSessionReset, got %v", err)
	}
	if fx.listCalls.Load() != 0 {
		t.Fatalf("list calls = %d", fx.listCalls.Load())
	}
	if _, ok := <-results; ok {
		t.Fatal("search subscription still open after reset")
	}

	err = w.Run(ctx, func() error {
		if w.Auth().State() != services.StateUnauthenticated {
			t.Errorf("state = %s", w.Auth().State())
		}
		_, err := w.Records()
		return err
	})
	if !errors.Is(err, models.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestWorkspaceLogout(t *testing.T) {
	fx := newFixture(t)
	reg, _ := NewRegistry(fx.deps)
	w, _ := reg.Get("ws-4")
	ctx := context.Background()
	w.Run(ctx, func() error {
		if _, err := w.Login(ctx, "ann@example.com", "pw"); err != nil {
			t.Fatal(err)
		}
		w.Logout(ctx)
		if _, err := w.Form(); !errors.Is(err, models.ErrNotAuthenticated) {
			t.Errorf("form after logout: %v", err)
		}
		return nil
	})
	if _, err := fx.deps.Persister.Load(ctx, "ws-4"); !errors.Is(err, models.ErrNoRecord) {
		t.Fatalf("persisted session survived logout: %v", err)
	}
}

func TestRegistryEvictIdle(t *testing.T) {
	fx := newFixture(t)
	reg, _ := NewRegistry(fx.deps)
	now := time.Now()
	reg.now = func() time.Time { return now }

	reg.Get("old")
	fresh, _ := reg.Get("fresh")
	now = now.Add(time.Hour)
	fresh.touch(now)

	if n := reg.EvictIdle(30 * time.Minute); n != 1 {
		t.Fatalf("evicted %d", n)
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d", reg.Len())
	}
	reg.Drop("fresh")
	if reg.Len() != 0 {
		t.Fatal("drop failed")
	}
}

func TestDepsValidate(t *testing.T) {
	if _, err := NewRegistry(Deps{}); err == nil {
		t.Fatal("expected validation error")
	}
}
