package services

import (
	"testing"

	"paydesk/internal/config"
	"paydesk/internal/models"
)

func defaultConsole(t *testing.T) config.ConsoleConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	return cfg.Console
}

func newGate(t *testing.T, cfg config.ConsoleConfig) *Gate {
	t.Helper()
	g, err := NewGate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestGateVisibleViews(t *testing.T) {
	g := newGate(t, defaultConsole(t))

	cases := map[string][]models.ViewID{
		"agent":   {models.ViewPaymentCreate},
		"account": {models.ViewPaymentCreate, models.ViewPaymentRecords},
		"admin":   {models.ViewPaymentCreate, models.ViewPaymentRecords, models.ViewUserAdmin},
		"guest":   {},
	}
	for role, want := range cases {
		t.Run(role, func(t *testing.T) {
			got := g.VisibleViews(role)
			if len(got) != len(want) {
				t.Fatalf("views = %+v", got)
			}
			for i := range want {
				if got[i].ID != want[i] {
					t.Errorf("view %d = %s, want %s", i, got[i].ID, want[i])
				}
				if !g.Allowed(role, want[i]) {
					t.Errorf("visible view %s not allowed", want[i])
				}
			}
		})
	}
}

func TestGateRecordsAccess(t *testing.T) {
	g := newGate(t, defaultConsole(t))
	if !g.Allowed("account", models.ViewPaymentRecords) {
		t.Error("account must see records")
	}
	if g.Allowed("sales", models.ViewPaymentRecords) {
		t.Error("sales must not see records")
	}
	if !g.Can("sales_admin", models.ActionEditReceipt) || g.Can("agent", models.ActionEditReceipt) {
		t.Error("edit-receipt allow-list mismatch")
	}
}

func TestGateDefaultView(t *testing.T) {
	g := newGate(t, defaultConsole(t))
	if v, _ := g.DefaultView("account"); v != models.ViewPaymentRecords {
		t.Errorf("account default = %s", v)
	}
	if v, _ := g.DefaultView("admin"); v != models.ViewPaymentCreate {
		t.Errorf("admin default = %s", v)
	}
	if _, ok := g.DefaultView("guest"); ok {
		t.Error("guest has no views")
	}
}

func TestGateRejectsUnknownView(t *testing.T) {
	cfg := defaultConsole(t)
	cfg.Views = append(cfg.Views, config.ViewRule{ID: "reports", Roles: []string{"admin"}})
	if _, err := NewGate(cfg); err == nil {
		t.Fatal("expected error for unknown view")
	}
}

func TestGateMatrix(t *testing.T) {
	g := newGate(t, defaultConsole(t))
	rows := g.Matrix()
	var admin *RoleAccess
	for i := range rows {
		if i > 0 && rows[i-1].Role >= rows[i].Role {
			t.Fatalf("matrix not sorted: %v", rows)
		}
		if rows[i].Role == "admin" {
			admin = &rows[i]
		}
	}
	if admin == nil || len(admin.Views) != 3 || len(admin.Actions) != 1 {
		t.Fatalf("admin row = %+v", admin)
	}
}

func TestNavigatorSelect(t *testing.T) {
	g := newGate(t, defaultConsole(t))
	n := NewNavigator(g, "agent")
	if n.Current().View != models.ViewPaymentCreate {
		t.Fatalf("landing = %+v", n.Current())
	}

	st := n.Select(models.ViewPaymentRecords)
	if !st.AccessDenied {
		t.Fatal("agent must be denied records")
	}
	st = n.Select(models.ViewID("nowhere"))
	if !st.AccessDenied {
		t.Fatal("unknown view must be denied")
	}

	a := n.Select(models.ViewPaymentCreate)
	b := n.Select(models.ViewPaymentCreate)
	if a != b || a.AccessDenied {
		t.Fatalf("select not idempotent: %+v %+v", a, b)
	}
}
