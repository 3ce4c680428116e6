package runner

import (
	"strings"

	"github.com/pkg/errors"

	"ruleveri/internal/program"
	"ruleveri/internal/veri"
)

// Predicate selects expansions.
type Predicate interface {
	Match(ctx *filterContext, exp *veri.Expansion) (bool, error)
	String() string
}

type filterContext struct {
	prog *program.Program
	env  *veri.Env
}

type firstRuleNamed struct{}

func (firstRuleNamed) Match(_ *filterContext, exp *veri.Expansion) (bool, error) {
	return !exp.Rule.Anonymous, nil
}

func (firstRuleNamed) String() string { return "first-rule-named" }

// specified holds when every term the expansion calls has a spec. Chained
// terms are inlined and need none.
type specified struct{}

func (specified) Match(ctx *filterContext, exp *veri.Expansion) (bool, error) {
	for _, r := range append([]*program.Rule{exp.Rule}, exp.Chained...) {
		for _, name := range r.Terms() {
			if t, ok := ctx.prog.Term(name); ok && t.Chain {
				continue
			}
			if _, err := ctx.env.Spec(name); err != nil {
				return false, nil
			}
		}
	}
	return true, nil
}

func (specified) String() string { return "specified" }

type tagged string

func (p tagged) Match(_ *filterContext, exp *veri.Expansion) (bool, error) {
	if exp.Rule.HasTag(string(p)) {
		return true, nil
	}
	for _, r := range exp.Chained {
		if r.HasTag(string(p)) {
			return true, nil
		}
	}
	return false, nil
}

func (p tagged) String() string { return "tag:" + string(p) }

type root string

func (p root) Match(_ *filterContext, exp *veri.Expansion) (bool, error) {
	return exp.Rule.Root == string(p), nil
}

func (p root) String() string { return "root:" + string(p) }

// containsRule holds when the rule is the expansion's own or one of its
// chained choices.
type containsRule string

func (p containsRule) Match(ctx *filterContext, exp *veri.Expansion) (bool, error) {
	known := false
	for _, r := range ctx.prog.Rules {
		if r.Name == string(p) {
			known = true
			break
		}
	}
	if !known {
		return false, errors.Errorf("unknown rule %q", string(p))
	}
	for _, name := range exp.Names() {
		if name == string(p) {
			return true, nil
		}
	}
	return false, nil
}

func (p containsRule) String() string { return "rule:" + string(p) }

type not struct{ p Predicate }

func (n not) Match(ctx *filterContext, exp *veri.Expansion) (bool, error) {
	ok, err := n.p.Match(ctx, exp)
	return !ok, err
}

func (n not) String() string { return "not:" + n.p.String() }

type and struct{ p, q Predicate }

func (a and) Match(ctx *filterContext, exp *veri.Expansion) (bool, error) {
	ok, err := a.p.Match(ctx, exp)
	if err != nil || !ok {
		return false, err
	}
	return a.q.Match(ctx, exp)
}

func (a and) String() string { return a.p.String() + "," + a.q.String() }

// ParsePredicate parses the predicate grammar: first-rule-named, specified,
// tag:<t>, root:<term>, rule:<name> (or name:<name>), not:<p> and p,q.
func ParsePredicate(s string) (Predicate, error) {
	if p, q, ok := strings.Cut(s, ","); ok {
		left, err := ParsePredicate(p)
		if err != nil {
			return nil, err
		}
		right, err := ParsePredicate(q)
		if err != nil {
			return nil, err
		}
		return and{left, right}, nil
	}
	if p, ok := strings.CutPrefix(s, "not:"); ok {
		inner, err := ParsePredicate(p)
		if err != nil {
			return nil, err
		}
		return not{inner}, nil
	}
	switch s {
	case "first-rule-named":
		return firstRuleNamed{}, nil
	case "specified":
		return specified{}, nil
	}
	prefixed := []struct {
		prefix string
		make   func(string) Predicate
	}{
		{"tag:", func(v string) Predicate { return tagged(v) }},
		{"root:", func(v string) Predicate { return root(v) }},
		{"rule:", func(v string) Predicate { return containsRule(v) }},
		{"name:", func(v string) Predicate { return containsRule(v) }},
	}
	for _, pp := range prefixed {
		if v, ok := strings.CutPrefix(s, pp.prefix); ok && v != "" {
			return pp.make(v), nil
		}
	}
	return nil, errors.Errorf("invalid expansion predicate %q", s)
}

type Filter struct {
	Include   bool
	Predicate Predicate
}

// ParseFilter parses include:<p> or exclude:<p>; a bare predicate
// includes.
func ParseFilter(s string) (Filter, error) {
	include := true
	p := s
	if v, ok := strings.CutPrefix(s, "include:"); ok {
		p = v
	} else if v, ok := strings.CutPrefix(s, "exclude:"); ok {
		include, p = false, v
	}
	pred, err := ParsePredicate(p)
	if err != nil {
		return Filter{}, errors.Wrapf(err, "filter %q", s)
	}
	return Filter{Include: include, Predicate: pred}, nil
}

func ParseFilters(specs []string) ([]Filter, error) {
	out := make([]Filter, 0, len(specs))
	for _, s := range specs {
		f, err := ParseFilter(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (f Filter) String() string {
	if f.Include {
		return "include:" + f.Predicate.String()
	}
	return "exclude:" + f.Predicate.String()
}

// selected applies the filters in order; the last one that matches wins.
// An expansion no filter matches is selected only when no include filter
// was given.
func selected(ctx *filterContext, filters []Filter, exp *veri.Expansion) (bool, error) {
	verdict := true
	for _, f := range filters {
		if f.Include {
			verdict = false
			break
		}
	}
	for _, f := range filters {
		ok, err := f.Predicate.Match(ctx, exp)
		if err != nil {
			return false, errors.Wrapf(err, "filter %s", f)
		}
		if ok {
			verdict = f.Include
		}
	}
	return verdict, nil
}
