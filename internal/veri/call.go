package veri

import (
	"github.com/pkg/errors"

	"ruleveri/internal/program"
	"ruleveri/internal/spec"
	"ruleveri/internal/state"
	"ruleveri/internal/types"
)

// polarity decides which side of a spec's contract a call site is on.
type polarity int

const (
	// caller: the rule invokes the term, so requires are obligations and
	// provides are facts.
	caller polarity = iota
	// callee: the rule implements the term, so requires are facts and
	// provides are obligations.
	callee
	// speculative: evaluating whether another rule would have matched.
	// Requires are dropped and state is not modified.
	speculative
)

func (p polarity) String() string {
	switch p {
	case callee:
		return "callee"
	case speculative:
		return "speculative"
	}
	return "caller"
}

// call applies the spec of term to an invocation. For extractors the
// result is the input and the arguments are the outputs. When some is
// non-nil the term is partial and some holds exactly when the term
// matched.
func (b *builder) call(term *program.Term, args []Symbolic, ret Symbolic, pol polarity, some *ExprID) error {
	b.cond.Calls = append(b.cond.Calls, Call{
		Term:       term.Name,
		Args:       args,
		Ret:        ret,
		Signatures: b.env.Specs.Signatures(term.Name),
	})

	s, err := b.env.Spec(term.Name)
	if err != nil {
		return err
	}
	b.pushPos(s.Pos)
	defer b.popPos()
	if len(s.Args) != len(args) {
		return configErrorf(s.Pos, "spec for %s takes %d arguments, term has %d", term.Name, len(s.Args), len(args))
	}
	if len(s.Matches) > 0 && !term.Partial {
		return configErrorf(s.Pos, "spec matches on non-partial function %s", term.Name)
	}

	base := newScope(nil)
	for _, name := range b.cond.StateOrder {
		_ = base.set(name, b.cond.State[name])
	}
	gates := map[string]ExprID{}
	for _, m := range s.Modifies {
		if m.Cond == "" {
			if pol != speculative {
				if err := b.tracker.Modify(m.State); err != nil {
					return configErrorf(m.Pos, "%v", err)
				}
			}
			continue
		}
		c := b.variable(types.Bool, m.State+"_modification_cond")
		if err := base.set(m.Cond, &Scalar{ID: c}); err != nil {
			return configErrorf(m.Pos, "%v", err)
		}
		gates[m.State] = c
		if pol != speculative {
			if err := b.tracker.ModifyWhen(m.State, c); err != nil {
				return configErrorf(m.Pos, "%v", err)
			}
		}
	}

	inputs, outputs := newScope(base), (*scope)(nil)
	bindArgs := func(sc *scope) error {
		for i, name := range s.Args {
			if err := sc.set(name, args[i]); err != nil {
				return configErrorf(s.Pos, "%v", err)
			}
		}
		return nil
	}
	if term.Kind == program.Extractor {
		if err := inputs.set(s.Ret, ret); err != nil {
			return configErrorf(s.Pos, "%v", err)
		}
		outputs = newScope(inputs)
		if err := bindArgs(outputs); err != nil {
			return err
		}
	} else {
		if err := bindArgs(inputs); err != nil {
			return err
		}
		outputs = newScope(inputs)
		if err := outputs.set(s.Ret, ret); err != nil {
			return configErrorf(s.Pos, "%v", err)
		}
	}

	eval := func(clauses []*spec.Expr, sc *scope) ([]ExprID, error) {
		out := make([]ExprID, 0, len(clauses))
		for _, c := range clauses {
			id, err := b.scalarExpr(c, sc)
			if err != nil {
				return nil, errors.Wrapf(err, "spec for %s", term.Name)
			}
			out = append(out, id)
		}
		return out, nil
	}
	requires, err := eval(s.Requires, inputs)
	if err != nil {
		return err
	}
	matches, err := eval(s.Matches, inputs)
	if err != nil {
		return err
	}
	provides, err := eval(s.Provides, outputs)
	if err != nil {
		return err
	}
	for i, clause := range s.Provides {
		var conds []ExprID
		for _, name := range b.cond.StateOrder {
			if c, ok := gates[name]; ok && state.References(clause, name) {
				conds = append(conds, c)
			}
		}
		if len(conds) > 0 {
			provides[i] = b.imp(b.all(conds), provides[i])
		}
	}

	if some != nil {
		matched := b.all(matches)
		b.assume(b.eqScalar(*some, matched))
		provides = []ExprID{b.imp(matched, b.all(provides))}
	}

	switch pol {
	case caller:
		for _, r := range requires {
			b.assert(r)
		}
		for _, p := range provides {
			b.assume(p)
		}
	case callee:
		for _, r := range requires {
			b.assume(r)
		}
		for _, p := range provides {
			b.assert(p)
		}
	case speculative:
		for _, p := range provides {
			b.assume(p)
		}
	}
	return nil
}
