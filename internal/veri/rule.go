package veri

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ruleveri/internal/program"
	"ruleveri/internal/sexp"
	"ruleveri/internal/spec"
	"ruleveri/internal/types"
)

// binding is a rule variable: its value and rule-language type name.
type binding struct {
	value Symbolic
	ty    string
}

type extraction struct {
	outputs []binding
	some    *ExprID
}

// matchCtx accumulates the constraints under which a rule's patterns and
// if-lets match.
type matchCtx struct {
	vars        map[string]binding
	constraints []ExprID
	pol         polarity
}

func newMatchCtx(pol polarity) *matchCtx {
	return &matchCtx{vars: map[string]binding{}, pol: pol}
}

func (b *builder) build() error {
	if err := b.initState(); err != nil {
		return err
	}
	rule := b.exp.Rule
	root, ok := b.env.Prog.Term(rule.Root)
	if !ok {
		return configErrorf(rule.Pos, "unknown root term %s", rule.Root)
	}
	b.pushPos(rule.Pos)
	defer b.popPos()

	args := make([]binding, len(root.Args))
	values := make([]Symbolic, len(root.Args))
	for i, ty := range root.Args {
		v, err := b.allocType(ty, fmt.Sprintf("arg%d", i))
		if err != nil {
			return err
		}
		args[i] = binding{value: v, ty: ty}
		values[i] = v
	}
	result, err := b.allocType(root.Ret, "result")
	if err != nil {
		return err
	}
	b.cond.Result = result

	m := newMatchCtx(caller)
	if len(rule.Args) != len(args) {
		return configErrorf(rule.Pos, "rule %s has %d patterns, %s takes %d", rule.Name, len(rule.Args), root.Name, len(args))
	}
	for i, pat := range rule.Args {
		if err := b.matchPattern(m, pat, args[i]); err != nil {
			return err
		}
	}

	var some *ExprID
	if root.Partial {
		s := b.variable(types.Bool, "result_some")
		b.assume(s)
		some = &s
	}
	if err := b.call(root, values, result, callee, some); err != nil {
		return err
	}

	if err := b.ifLets(m, rule); err != nil {
		return err
	}
	for _, c := range m.constraints {
		b.assume(c)
	}
	if err := b.priority(rule, args); err != nil {
		return err
	}

	rhs, _, err := b.evalBody(rule.RHS, m.vars, caller, root.Ret, false)
	if err != nil {
		return err
	}
	eq, err := b.equal(result, rhs.value)
	if err != nil {
		return configErrorf(rule.Pos, "rule result: %v", err)
	}
	b.assume(eq)

	if err := b.stateDefaults(); err != nil {
		return err
	}
	if b.chain != len(b.exp.Chained) {
		return errors.Errorf("expansion chose %d chained rules, %d call sites reached", len(b.exp.Chained), b.chain)
	}
	if err := b.cond.Validate(); err != nil {
		log.Debugf("rule %s: %v", rule.Name, err)
	}
	return nil
}

func (b *builder) ifLets(m *matchCtx, rule *program.Rule) error {
	for _, il := range rule.IfLets {
		v, some, err := b.evalBody(il.Expr, m.vars, m.pol, "", true)
		if err != nil {
			return err
		}
		if some != nil {
			m.constraints = append(m.constraints, *some)
		}
		if err := b.matchPattern(m, il.Pattern, v); err != nil {
			return err
		}
	}
	return nil
}

// typedInt builds an integer literal at the type of v.
func (b *builder) typedInt(n *big.Int, v binding, pos sexp.Pos) (ExprID, error) {
	m, err := b.env.Model(v.ty)
	if err != nil {
		return 0, configErrorf(pos, "%v", err)
	}
	p, ok := m.(*types.Primitive)
	if !ok {
		return 0, configErrorf(pos, "integer literal of non-primitive type %s", v.ty)
	}
	switch t := p.Type; {
	case t.HasWidth():
		return b.constant(types.BitVectorConst(t.Width, n)), nil
	case t.IsBitVector():
		if v.value == nil {
			// No value to take the width from: the literal gets its own
			// variable so inference can size it at the use site.
			x := b.variable(t, b.name("lit"))
			b.assume(b.eqScalar(x, b.op(OpInt2BV, b.op(OpWidthOf, x), b.constant(types.IntConst(n)))))
			return x, nil
		}
		x, err := asScalar(v.value)
		if err != nil {
			return 0, configErrorf(pos, "%v", err)
		}
		return b.op(OpInt2BV, b.op(OpWidthOf, x), b.constant(types.IntConst(n))), nil
	case t.Kind == types.KindInt:
		return b.constant(types.IntConst(n)), nil
	case t.Kind == types.KindBool:
		return b.boolean(n.Sign() != 0), nil
	}
	return 0, configErrorf(pos, "integer literal of type %s", v.ty)
}

func (b *builder) matchPattern(m *matchCtx, pat *program.Pattern, v binding) error {
	b.pushPos(pat.Pos)
	defer b.popPos()

	switch pat.Kind {
	case program.PWildcard:
		return nil

	case program.PVar:
		if prev, ok := m.vars[pat.Name]; ok {
			eq, err := b.equal(prev.value, v.value)
			if err != nil {
				return configErrorf(pat.Pos, "%s: %v", pat.Name, err)
			}
			m.constraints = append(m.constraints, eq)
			return nil
		}
		m.vars[pat.Name] = v
		return nil

	case program.PInt:
		c, err := b.typedInt(pat.Value, v, pat.Pos)
		if err != nil {
			return err
		}
		x, err := asScalar(v.value)
		if err != nil {
			return configErrorf(pat.Pos, "%v", err)
		}
		m.constraints = append(m.constraints, b.eqScalar(x, c))
		return nil

	case program.PConst:
		c, err := b.specConst(&spec.Expr{Kind: spec.ConstRef, Name: pat.Name, Pos: pat.Pos})
		if err != nil {
			return err
		}
		eq, err := b.equal(v.value, c)
		if err != nil {
			return configErrorf(pat.Pos, "$%s: %v", pat.Name, err)
		}
		m.constraints = append(m.constraints, eq)
		return nil

	case program.PTerm:
		term, ok := b.env.Prog.Term(pat.Name)
		if !ok {
			return configErrorf(pat.Pos, "unknown term %s", pat.Name)
		}
		outputs, err := b.extract(m, term, v)
		if err != nil {
			return err
		}
		for i, sub := range pat.Args {
			if err := b.matchPattern(m, sub, outputs[i]); err != nil {
				return err
			}
		}
		return nil

	case program.PVariant:
		en, ok := v.value.(*Enum)
		if !ok {
			return configErrorf(pat.Pos, "variant pattern %s.%s against non-enum %s", pat.Enum, pat.Variant, v.value)
		}
		sv, ok := en.Variant(pat.Variant)
		if !ok {
			return configErrorf(pat.Pos, "enum %s has no variant %s", en.Type, pat.Variant)
		}
		decl, ok := b.env.Prog.Enum(pat.Enum)
		if !ok {
			return configErrorf(pat.Pos, "unknown enum %s", pat.Enum)
		}
		vd, _, _ := decl.Variant(pat.Variant)
		m.constraints = append(m.constraints, b.eqScalar(en.Discriminant, b.intConst(sv.Discriminant)))
		for i, sub := range pat.Args {
			field := binding{value: sv.Value.Fields[i].Value, ty: vd.Fields[i].Type}
			if err := b.matchPattern(m, sub, field); err != nil {
				return err
			}
		}
		return nil

	case program.PAnd:
		for _, sub := range pat.Args {
			if err := b.matchPattern(m, sub, v); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.Errorf("%s: unsupported pattern %s", pat.Pos, pat)
}

// extract applies an extractor to v. Extractors are functions of their
// input, so a repeated application reuses the first one's outputs.
// Speculative applications are never cached, as they skip the spec's
// requires.
func (b *builder) extract(m *matchCtx, term *program.Term, v binding) ([]binding, error) {
	key := fmt.Sprintf("%s|%v", term.Name, Scalars(v.value))
	if prev, ok := b.extracted[key]; ok {
		if prev.some != nil {
			m.constraints = append(m.constraints, *prev.some)
		}
		return prev.outputs, nil
	}
	outputs := make([]binding, len(term.Args))
	values := make([]Symbolic, len(term.Args))
	for i, ty := range term.Args {
		o, err := b.allocType(ty, b.name("b"))
		if err != nil {
			return nil, err
		}
		outputs[i] = binding{value: o, ty: ty}
		values[i] = o
	}
	var some *ExprID
	if term.Partial {
		s := b.variable(types.Bool, term.Name+"_some")
		m.constraints = append(m.constraints, s)
		some = &s
	}
	if err := b.call(term, values, v.value, m.pol, some); err != nil {
		return nil, err
	}
	if m.pol != speculative {
		b.extracted[key] = extraction{outputs: outputs, some: some}
	}
	return outputs, nil
}

// evalBody evaluates a right-hand side expression. want is the expected
// type name, or empty when the context does not fix one. A non-nil some
// is returned for a partial constructor call, which is only allowed at
// the top of an if-let.
func (b *builder) evalBody(bd *program.Body, vars map[string]binding, pol polarity, want string, top bool) (binding, *ExprID, error) {
	b.pushPos(bd.Pos)
	defer b.popPos()

	switch bd.Kind {
	case program.BVar:
		v, ok := vars[bd.Name]
		if !ok {
			return binding{}, nil, configErrorf(bd.Pos, "unbound variable %s", bd.Name)
		}
		return v, nil, nil

	case program.BInt:
		if want == "" {
			return binding{}, nil, configErrorf(bd.Pos, "cannot infer the type of literal %s", bd.Value)
		}
		id, err := b.typedInt(bd.Value, binding{ty: want}, bd.Pos)
		if err != nil {
			return binding{}, nil, err
		}
		return binding{value: &Scalar{ID: id}, ty: want}, nil, nil

	case program.BConst:
		v, err := b.specConst(&spec.Expr{Kind: spec.ConstRef, Name: bd.Name, Pos: bd.Pos})
		if err != nil {
			return binding{}, nil, err
		}
		return binding{value: v, ty: want}, nil, nil

	case program.BLet:
		inner := make(map[string]binding, len(vars)+len(bd.Bindings))
		for k, v := range vars {
			inner[k] = v
		}
		for _, bind := range bd.Bindings {
			v, _, err := b.evalBody(bind.Value, inner, pol, "", false)
			if err != nil {
				return binding{}, nil, err
			}
			inner[bind.Name] = v
		}
		return b.evalBody(bd.Args[0], inner, pol, want, top)

	case program.BVariant:
		v, err := b.variantBody(bd, vars, pol)
		return v, nil, err

	case program.BCall:
		term, ok := b.env.Prog.Term(bd.Name)
		if !ok {
			return binding{}, nil, configErrorf(bd.Pos, "unknown term %s", bd.Name)
		}
		if len(bd.Args) != len(term.Args) {
			return binding{}, nil, configErrorf(bd.Pos, "%s takes %d arguments, got %d", term.Name, len(term.Args), len(bd.Args))
		}
		args := make([]binding, len(bd.Args))
		values := make([]Symbolic, len(bd.Args))
		for i, a := range bd.Args {
			v, _, err := b.evalBody(a, vars, pol, term.Args[i], false)
			if err != nil {
				return binding{}, nil, err
			}
			args[i] = v
			values[i] = v.value
		}
		if term.Chain {
			if pol == speculative {
				ret, err := b.allocType(term.Ret, b.name(term.Name+"_spec"))
				return binding{value: ret, ty: term.Ret}, nil, err
			}
			v, err := b.inline(term, args, pol)
			return v, nil, err
		}
		ret, err := b.allocType(term.Ret, term.Name+"_result")
		if err != nil {
			return binding{}, nil, err
		}
		var some *ExprID
		if term.Partial {
			if !top {
				return binding{}, nil, configErrorf(bd.Pos, "partial term %s outside an if-let", term.Name)
			}
			s := b.variable(types.Bool, term.Name+"_some")
			some = &s
		}
		if err := b.call(term, values, ret, pol, some); err != nil {
			return binding{}, nil, err
		}
		return binding{value: ret, ty: term.Ret}, some, nil
	}
	return binding{}, nil, errors.Errorf("%s: unsupported expression %s", bd.Pos, bd)
}

// variantBody constructs an enum variant. The variant's constructor term
// is recorded as a call so its signatures take part in type inference,
// and its spec is applied when one exists.
func (b *builder) variantBody(bd *program.Body, vars map[string]binding, pol polarity) (binding, error) {
	decl, ok := b.env.Prog.Enum(bd.Enum)
	if !ok {
		return binding{}, configErrorf(bd.Pos, "unknown enum %s", bd.Enum)
	}
	vd, _, ok := decl.Variant(bd.Variant)
	if !ok {
		return binding{}, configErrorf(bd.Pos, "enum %s has no variant %s", bd.Enum, bd.Variant)
	}
	if len(bd.Args) != len(vd.Fields) {
		return binding{}, configErrorf(bd.Pos, "variant %s.%s takes %d fields, got %d", bd.Enum, bd.Variant, len(vd.Fields), len(bd.Args))
	}
	values := make([]Symbolic, len(bd.Args))
	for i, a := range bd.Args {
		v, _, err := b.evalBody(a, vars, pol, vd.Fields[i].Type, false)
		if err != nil {
			return binding{}, err
		}
		values[i] = v.value
	}
	val, err := b.construct(&spec.Expr{Kind: spec.Construct, Enum: bd.Enum, Name: bd.Variant, Pos: bd.Pos}, values)
	if err != nil {
		return binding{}, err
	}
	name := program.VariantTermName(bd.Enum, bd.Variant)
	term, ok := b.env.Prog.Term(name)
	if ok {
		if _, has := b.env.Specs.Specs[name]; has {
			if err := b.call(term, values, val, pol, nil); err != nil {
				return binding{}, err
			}
			return binding{value: val, ty: bd.Enum}, nil
		}
	}
	b.cond.Calls = append(b.cond.Calls, Call{
		Term:       name,
		Args:       values,
		Ret:        val,
		Signatures: b.env.Specs.Signatures(name),
		Variant:    true,
	})
	return binding{value: val, ty: bd.Enum}, nil
}

// inline replaces a call to a chained term by the rule the expansion
// chose for this call site. The chosen rule's match conditions become
// assumptions.
func (b *builder) inline(term *program.Term, args []binding, pol polarity) (binding, error) {
	idx := b.chain
	b.chain++
	if idx >= len(b.exp.Chained) {
		return binding{}, errors.Errorf("no rule chosen for chained call %d to %s", idx, term.Name)
	}
	r := b.exp.Chained[idx]
	if r.Root != term.Name {
		return binding{}, errors.Errorf("chained call %d to %s resolved to rule %s of %s", idx, term.Name, r.Name, r.Root)
	}
	if len(r.Args) != len(args) {
		return binding{}, configErrorf(r.Pos, "rule %s has %d patterns, %s takes %d", r.Name, len(r.Args), term.Name, len(args))
	}
	b.pushPos(r.Pos)
	defer b.popPos()

	m := newMatchCtx(pol)
	for i, pat := range r.Args {
		if err := b.matchPattern(m, pat, args[i]); err != nil {
			return binding{}, err
		}
	}
	if err := b.ifLets(m, r); err != nil {
		return binding{}, err
	}
	for _, c := range m.constraints {
		b.assume(c)
	}
	if err := b.priority(r, args); err != nil {
		return binding{}, err
	}
	v, _, err := b.evalBody(r.RHS, m.vars, pol, term.Ret, false)
	if err != nil {
		return binding{}, errors.Wrapf(err, "chained rule %s", r.Name)
	}
	return v, nil
}

// priority assumes that no overlapping higher-priority rule for the same
// root matched the arguments.
func (b *builder) priority(r *program.Rule, args []binding) error {
	if b.opts.IgnorePriority || !r.HasAttr(program.AttrPriority) {
		return nil
	}
	for _, other := range b.env.Prog.RulesFor(r.Root) {
		if other == r || other.Priority <= r.Priority || !program.RulesOverlap(r, other) {
			continue
		}
		m := newMatchCtx(speculative)
		for i, pat := range other.Args {
			if err := b.matchPattern(m, pat, args[i]); err != nil {
				return errors.Wrapf(err, "excluding rule %s", other.Name)
			}
		}
		if err := b.ifLets(m, other); err != nil {
			return errors.Wrapf(err, "excluding rule %s", other.Name)
		}
		if reason, exact := b.exactMatch(other); !exact {
			warn := fmt.Sprintf("exclusion of rule %s from rule %s is inexact: %s", other.Name, r.Name, reason)
			log.Warn(warn)
			b.cond.Warnings = append(b.cond.Warnings, warn)
		}
		b.assume(b.not(b.all(m.constraints)))
	}
	return nil
}

// exactMatch reports whether the match condition of r is fully captured
// by its patterns and specs.
func (b *builder) exactMatch(r *program.Rule) (string, bool) {
	if len(r.IfLets) > 0 {
		return "rule has if-let clauses", false
	}
	for _, pat := range r.Args {
		for _, name := range pat.Terms() {
			term, ok := b.env.Prog.Term(name)
			if !ok || !term.Partial {
				continue
			}
			if s, ok := b.env.Specs.Specs[name]; !ok || len(s.Matches) == 0 {
				return fmt.Sprintf("partial extractor %s has no matches clause", name), false
			}
		}
	}
	return "", true
}
