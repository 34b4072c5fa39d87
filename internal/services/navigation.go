package services

import (
	"fmt"
	"sort"

	"paydesk/internal/config"
	"paydesk/internal/models"
)

type gateView struct {
	desc  models.ViewDescriptor
	roles map[string]bool
}

// Gate is the declarative role table. The sidebar and every view's own
// access check read from the same Gate.
type Gate struct {
	views    []gateView
	actions  map[string]map[string]bool
	defaults map[string]models.ViewID
}

func NewGate(cfg config.ConsoleConfig) (*Gate, error) {
	g := &Gate{
		actions:  make(map[string]map[string]bool, len(cfg.Actions)),
		defaults: make(map[string]models.ViewID, len(cfg.DefaultViews)),
	}
	seen := map[models.ViewID]bool{}
	for _, rule := range cfg.Views {
		id := models.ViewID(rule.ID)
		if !id.Valid() {
			return nil, fmt.Errorf("navigation: unknown view %q", rule.ID)
		}
		if seen[id] {
			return nil, fmt.Errorf("navigation: view %q declared twice", rule.ID)
		}
		seen[id] = true
		g.views = append(g.views, gateView{
			desc:  models.ViewDescriptor{ID: id, Label: rule.Label, Description: rule.Description},
			roles: toSet(rule.Roles),
		})
	}
	for action, roles := range cfg.Actions {
		g.actions[action] = toSet(roles)
	}
	for role, view := range cfg.DefaultViews {
		id := models.ViewID(view)
		if !id.Valid() {
			return nil, fmt.Errorf("navigation: default view %q for role %q is unknown", view, role)
		}
		g.defaults[role] = id
	}
	return g, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// VisibleViews returns the views role may open, in navigation order.
func (g *Gate) VisibleViews(role string) []models.ViewDescriptor {
	out := []models.ViewDescriptor{}
	for _, v := range g.views {
		if v.roles[role] {
			out = append(out, v.desc)
		}
	}
	return out
}

func (g *Gate) Allowed(role string, view models.ViewID) bool {
	for _, v := range g.views {
		if v.desc.ID == view {
			return v.roles[role]
		}
	}
	return false
}

// Can reports whether role may perform action.
func (g *Gate) Can(role, action string) bool {
	return g.actions[action][role]
}

// DefaultView is the landing view for role: its configured default when
// allowed, else the first visible view.
func (g *Gate) DefaultView(role string) (models.ViewID, bool) {
	if v, ok := g.defaults[role]; ok && g.Allowed(role, v) {
		return v, true
	}
	visible := g.VisibleViews(role)
	if len(visible) == 0 {
		return "", false
	}
	return visible[0].ID, true
}

// RoleAccess is one row of the read-only role matrix.
type RoleAccess struct {
	Role    string          `json:"role"`
	Views   []models.ViewID `json:"views"`
	Actions []string        `json:"actions"`
}

// Matrix lists every role the table mentions with what it may do.
func (g *Gate) Matrix() []RoleAccess {
	roles := map[string]bool{}
	for _, v := range g.views {
		for r := range v.roles {
			roles[r] = true
		}
	}
	for _, set := range g.actions {
		for r := range set {
			roles[r] = true
		}
	}
	names := make([]string, 0, len(roles))
	for r := range roles {
		names = append(names, r)
	}
	sort.Strings(names)

	actionNames := make([]string, 0, len(g.actions))
	for a := range g.actions {
		actionNames = append(actionNames, a)
	}
	sort.Strings(actionNames)

	out := make([]RoleAccess, 0, len(names))
	for _, r := range names {
		row := RoleAccess{Role: r, Views: []models.ViewID{}, Actions: []string{}}
		for _, v := range g.views {
			if v.roles[r] {
				row.Views = append(row.Views, v.desc.ID)
			}
		}
		for _, a := range actionNames {
			if g.actions[a][r] {
				row.Actions = append(row.Actions, a)
			}
		}
		out = append(out, row)
	}
	return out
}

// ViewState is what the console renders in its main area.
type ViewState struct {
	View         models.ViewID `json:"view"`
	AccessDenied bool          `json:"access_denied"`
}

// Navigator tracks the selected view of one signed-in user.
type Navigator struct {
	gate    *Gate
	role    string
	current ViewState
}

func NewNavigator(gate *Gate, role string) *Navigator {
	n := &Navigator{gate: gate, role: role}
	if v, ok := gate.DefaultView(role); ok {
		n.current = ViewState{View: v}
	} else {
		n.current = ViewState{AccessDenied: true}
	}
	return n
}

// Select switches to view. Unknown or forbidden views yield the
// access-denied state instead of an empty view.
func (n *Navigator) Select(view models.ViewID) ViewState {
	n.current = ViewState{View: view, AccessDenied: !n.gate.Allowed(n.role, view)}
	return n.current
}

func (n *Navigator) Current() ViewState { return n.current }

func (n *Navigator) Views() []models.ViewDescriptor { return n.gate.VisibleViews(n.role) }
