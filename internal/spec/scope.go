package spec

import (
	"github.com/pkg/errors"
)

type scopeSet map[string]bool

func (s scopeSet) bind(name string, e *Expr) error {
	if s[name] {
		return errors.Errorf("%s: %s shadows visible variable %s", e.Pos, e.Kind, name)
	}
	s[name] = true
	return nil
}

// CheckScope verifies that every variable e references is bound, either
// by visible or by an enclosing let, with or match arm, and that no
// binder aliases a name already in scope.
func CheckScope(e *Expr, visible []string) error {
	s := scopeSet{}
	for _, name := range visible {
		if s[name] {
			return errors.Errorf("redefinition of variable %s", name)
		}
		s[name] = true
	}
	return s.check(e)
}

func (s scopeSet) check(e *Expr) error {
	switch e.Kind {
	case Var:
		if !s[e.Name] {
			return errors.Errorf("%s: undefined variable %s", e.Pos, e.Name)
		}
		return nil

	case Let:
		var bound []string
		defer func() {
			for _, name := range bound {
				delete(s, name)
			}
		}()
		for _, b := range e.Bindings {
			if err := s.check(b.Value); err != nil {
				return err
			}
			if err := s.bind(b.Name, e); err != nil {
				return err
			}
			bound = append(bound, b.Name)
		}
		return s.check(e.Args[0])

	case With:
		var bound []string
		defer func() {
			for _, name := range bound {
				delete(s, name)
			}
		}()
		for _, name := range e.Vars {
			if err := s.bind(name, e); err != nil {
				return err
			}
			bound = append(bound, name)
		}
		return s.check(e.Args[0])

	case Cases:
		if err := s.check(e.Args[0]); err != nil {
			return err
		}
		for _, arm := range e.Arms {
			if arm.Key != nil {
				if err := s.check(arm.Key); err != nil {
					return err
				}
			}
			if err := s.checkArm(arm, e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, c := range e.Children() {
		if err := s.check(c); err != nil {
			return err
		}
	}
	return nil
}

func (s scopeSet) checkArm(arm Arm, e *Expr) error {
	var bound []string
	defer func() {
		for _, name := range bound {
			delete(s, name)
		}
	}()
	for _, name := range arm.Binds {
		if name == "_" {
			continue
		}
		if err := s.bind(name, e); err != nil {
			return err
		}
		bound = append(bound, name)
	}
	return s.check(arm.Body)
}

// FreeVariables lists the variables e references that it does not bind
// itself, in first-occurrence order.
func FreeVariables(e *Expr) []string {
	var out []string
	seen := map[string]bool{}
	var visit func(e *Expr, bound map[string]bool)
	visit = func(e *Expr, bound map[string]bool) {
		switch e.Kind {
		case Var:
			if !bound[e.Name] && !seen[e.Name] {
				seen[e.Name] = true
				out = append(out, e.Name)
			}
			return
		case Let:
			inner := extend(bound)
			for _, b := range e.Bindings {
				visit(b.Value, inner)
				inner[b.Name] = true
			}
			visit(e.Args[0], inner)
			return
		case With:
			inner := extend(bound, e.Vars...)
			visit(e.Args[0], inner)
			return
		case Cases:
			visit(e.Args[0], bound)
			for _, arm := range e.Arms {
				if arm.Key != nil {
					visit(arm.Key, bound)
				}
				visit(arm.Body, extend(bound, arm.Binds...))
			}
			return
		}
		for _, c := range e.Children() {
			visit(c, bound)
		}
	}
	visit(e, map[string]bool{})
	return out
}

func extend(bound map[string]bool, names ...string) map[string]bool {
	out := make(map[string]bool, len(bound)+len(names))
	for k := range bound {
		out[k] = true
	}
	for _, n := range names {
		out[n] = true
	}
	return out
}
