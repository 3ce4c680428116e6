// Package state tracks global state variables across one verification run.
package state

import (
	"github.com/pkg/errors"

	"ruleveri/internal/spec"
)

// Registry holds the state declarations of a run. It is read-only once
// built and shared by every unit.
type Registry struct {
	decls []*spec.State
	index map[string]*spec.State
}

func NewRegistry(decls []*spec.State) (*Registry, error) {
	r := &Registry{index: make(map[string]*spec.State, len(decls))}
	for _, d := range decls {
		if _, dup := r.index[d.Name]; dup {
			return nil, errors.Errorf("duplicate state variable %s", d.Name)
		}
		r.index[d.Name] = d
		r.decls = append(r.decls, d)
	}
	return r, nil
}

// States returns declarations in declaration order.
func (r *Registry) States() []*spec.State {
	return r.decls
}

func (r *Registry) Lookup(name string) (*spec.State, bool) {
	d, ok := r.index[name]
	return d, ok
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.decls))
	for i, d := range r.decls {
		names[i] = d.Name
	}
	return names
}

// Tracker records, for one unit, how specs modify state. C is the
// builder's handle for a boolean condition.
type Tracker[C comparable] struct {
	reg           *Registry
	unconditional map[string]bool
	conds         map[string][]C
}

func NewTracker[C comparable](r *Registry) *Tracker[C] {
	return &Tracker[C]{
		reg:           r,
		unconditional: map[string]bool{},
		conds:         map[string][]C{},
	}
}

// Modify records an unconditional modification.
func (t *Tracker[C]) Modify(name string) error {
	if _, ok := t.reg.Lookup(name); !ok {
		return errors.Errorf("modifies undeclared state %s", name)
	}
	t.unconditional[name] = true
	return nil
}

// ModifyWhen records a modification guarded by cond.
func (t *Tracker[C]) ModifyWhen(name string, cond C) error {
	if _, ok := t.reg.Lookup(name); !ok {
		return errors.Errorf("modifies undeclared state %s", name)
	}
	t.conds[name] = append(t.conds[name], cond)
	return nil
}

type DefaultKind int

const (
	// DefaultAssumed: no spec touched the state.
	DefaultAssumed DefaultKind = iota
	// DefaultSuppressed: some spec modified the state unconditionally.
	DefaultSuppressed
	// DefaultGated: the default holds unless one of Conds holds.
	DefaultGated
)

// Default is the resolved treatment of one state variable's default.
type Default[C comparable] struct {
	State *spec.State
	Kind  DefaultKind
	Conds []C
}

// Defaults resolves the default spec treatment for every declared state.
func (t *Tracker[C]) Defaults() []Default[C] {
	out := make([]Default[C], 0, len(t.reg.decls))
	for _, d := range t.reg.decls {
		switch {
		case t.unconditional[d.Name]:
			out = append(out, Default[C]{State: d, Kind: DefaultSuppressed})
		case len(t.conds[d.Name]) > 0:
			out = append(out, Default[C]{State: d, Kind: DefaultGated, Conds: t.conds[d.Name]})
		default:
			out = append(out, Default[C]{State: d, Kind: DefaultAssumed})
		}
	}
	return out
}

// References reports whether e mentions the state variable name.
func References(e *spec.Expr, name string) bool {
	for _, v := range spec.FreeVariables(e) {
		if v == name {
			return true
		}
	}
	return false
}
