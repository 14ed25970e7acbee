// Package access decides which columns and actions the current session may
// use. Decisions come from small expr-lang rules declared per table, e.g.
//
//	admin || "it" in groups
//
// evaluated once against the session's Capabilities.
package access

import (
	"errors"
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ErrForbidden is returned for actions the session may not run.
var ErrForbidden = errors.New("access: forbidden")

// Capabilities describe the signed-in session. They are passed explicitly to
// whatever needs them; there is no global session.
type Capabilities struct {
	UserID string
	Admin  bool
	Groups []string
}

func (c Capabilities) env() map[string]any {
	groups := c.Groups
	if groups == nil {
		groups = []string{}
	}
	return map[string]any{
		"user":   c.UserID,
		"admin":  c.Admin,
		"groups": groups,
	}
}

// Rules maps column ids and action names to boolean expressions. A missing
// or empty rule allows.
type Rules struct {
	Columns map[string]string
	Actions map[string]string
}

// Gate holds the evaluated rules for one session.
type Gate struct {
	caps    Capabilities
	columns map[string]bool
	actions map[string]bool
}

// NewGate compiles every rule and evaluates it against caps. A rule that
// fails to compile or does not yield a bool is an error.
func NewGate(rules Rules, caps Capabilities) (*Gate, error) {
	g := &Gate{
		caps:    caps,
		columns: make(map[string]bool, len(rules.Columns)),
		actions: make(map[string]bool, len(rules.Actions)),
	}
	env := caps.env()

	for id, rule := range rules.Columns {
		ok, err := evaluate(rule, env)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", id, err)
		}
		g.columns[id] = ok
	}
	for name, rule := range rules.Actions {
		ok, err := evaluate(rule, env)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", name, err)
		}
		g.actions[name] = ok
	}
	return g, nil
}

func compile(rule string) (*exprvm.Program, error) {
	return exprlang.Compile(rule,
		exprlang.Env(Capabilities{}.env()),
		exprlang.AsBool(),
	)
}

func evaluate(rule string, env map[string]any) (bool, error) {
	if rule == "" {
		return true, nil
	}
	program, err := compile(rule)
	if err != nil {
		return false, fmt.Errorf("compile %q: %w", rule, err)
	}
	out, err := exprlang.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", rule, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Capabilities returns the session the gate was built for.
func (g *Gate) Capabilities() Capabilities {
	if g == nil {
		return Capabilities{}
	}
	return g.caps
}

// ColumnAllowed reports whether the column may be shown at all. A nil gate
// allows everything.
func (g *Gate) ColumnAllowed(id string) bool {
	if g == nil {
		return true
	}
	ok, declared := g.columns[id]
	return !declared || ok
}

// Allow returns ErrForbidden when the action is gated off.
func (g *Gate) Allow(action string) error {
	if g == nil {
		return nil
	}
	if ok, declared := g.actions[action]; declared && !ok {
		return fmt.Errorf("%w: %s", ErrForbidden, action)
	}
	return nil
}
