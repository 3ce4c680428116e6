package veri

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ruleveri/internal/sexp"
	"ruleveri/internal/state"
	"ruleveri/internal/types"
)

// Options tune condition construction.
type Options struct {
	// IgnorePriority disables priority exclusion.
	IgnorePriority bool
	// MaxChainDepth bounds nested chained rule inlining.
	MaxChainDepth int
}

// DefaultChainDepth is used when Options.MaxChainDepth is unset.
const DefaultChainDepth = 4

type builder struct {
	env     *Env
	exp     *Expansion
	opts    Options
	cond    *Conditions
	keys    map[string]ExprID
	tracker *state.Tracker[ExprID]
	consts  map[string]Symbolic
	pos     []sexp.Pos
	counter int
	fresh   int
	chain   int

	// extracted caches extractor applications by term and input.
	extracted map[string]extraction
}

// Build constructs the verification conditions of an expansion.
func Build(env *Env, exp *Expansion, opts Options) (*Conditions, error) {
	if opts.MaxChainDepth <= 0 {
		opts.MaxChainDepth = DefaultChainDepth
	}
	b := &builder{
		env:     env,
		exp:     exp,
		opts:    opts,
		cond:    newConditions(),
		keys:    map[string]ExprID{},
		tracker: state.NewTracker[ExprID](env.States),
		consts:  map[string]Symbolic{},

		extracted: map[string]extraction{},
	}
	if err := b.build(); err != nil {
		return nil, errors.Wrapf(err, "expansion %d (%s)", exp.ID, exp.Description())
	}
	return b.cond, nil
}

func (b *builder) name(prefix string) string {
	b.counter++
	return fmt.Sprintf("%s%d", prefix, b.counter)
}

func (b *builder) pushPos(p sexp.Pos) {
	b.pos = append(b.pos, p)
}

func (b *builder) popPos() {
	b.pos = b.pos[:len(b.pos)-1]
}

func (b *builder) add(e Expr) ExprID {
	if !e.IsPure() {
		b.fresh++
		e.Fresh = b.fresh
	}
	k := e.key()
	if id, ok := b.keys[k]; ok {
		return id
	}
	id := ExprID(len(b.cond.Exprs))
	b.cond.Exprs = append(b.cond.Exprs, e)
	b.keys[k] = id
	if len(b.pos) > 0 {
		b.cond.Pos[id] = b.pos[len(b.pos)-1]
	}
	return id
}

func (b *builder) op(op Op, args ...ExprID) ExprID {
	return b.add(Expr{Op: op, Args: args})
}

func (b *builder) constant(c types.Const) ExprID {
	return b.add(Expr{Op: OpConst, Const: c})
}

func (b *builder) boolean(v bool) ExprID {
	return b.constant(types.BoolConst(v))
}

func (b *builder) intConst(v int) ExprID {
	return b.constant(types.IntConstInt64(int64(v)))
}

func (b *builder) variable(t types.Type, name string) ExprID {
	v := VariableID(len(b.cond.Variables))
	b.cond.Variables = append(b.cond.Variables, Variable{Type: t, Name: name})
	return b.add(Expr{Op: OpVariable, Var: v})
}

func (b *builder) not(x ExprID) ExprID { return b.op(OpNot, x) }

func (b *builder) imp(a, c ExprID) ExprID { return b.op(OpImp, a, c) }

func (b *builder) eqScalar(x, y ExprID) ExprID { return b.op(OpEq, x, y) }

// all folds a conjunction to the right. The empty conjunction is true.
func (b *builder) all(xs []ExprID) ExprID {
	return b.fold(OpAnd, xs, true)
}

// any folds a disjunction to the right. The empty disjunction is false.
func (b *builder) any(xs []ExprID) ExprID {
	return b.fold(OpOr, xs, false)
}

func (b *builder) fold(op Op, xs []ExprID, unit bool) ExprID {
	if len(xs) == 0 {
		return b.boolean(unit)
	}
	acc := xs[len(xs)-1]
	for i := len(xs) - 2; i >= 0; i-- {
		acc = b.op(op, xs[i], acc)
	}
	return acc
}

func (b *builder) assume(x ExprID) {
	b.cond.Assumptions = append(b.cond.Assumptions, x)
}

func (b *builder) assert(x ExprID) {
	b.cond.Assertions = append(b.cond.Assertions, x)
}

// allocType allocates a fresh value modelling the rule-language type ty.
func (b *builder) allocType(ty, name string) (Symbolic, error) {
	m, err := b.env.Model(ty)
	if err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}
	return b.alloc(m, name)
}

// alloc allocates fresh variables shaped like the model c. Enum
// discriminants are assumed in range.
func (b *builder) alloc(c types.Compound, name string) (Symbolic, error) {
	switch c := c.(type) {
	case *types.Primitive:
		return &Scalar{ID: b.variable(c.Type, name)}, nil
	case *types.Struct:
		s := &Struct{}
		for _, f := range c.Fields {
			v, err := b.alloc(f.Type, name+"_"+f.Name)
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, SymField{Name: f.Name, Value: v})
		}
		return s, nil
	case *types.Enum:
		disc := b.variable(types.Int, name+"_discriminant")
		e := &Enum{Type: c.Name, Discriminant: disc}
		for i, v := range c.Variants {
			payload, err := b.alloc(&types.Struct{Fields: v.Fields}, name+"_"+v.Name)
			if err != nil {
				return nil, err
			}
			e.Variants = append(e.Variants, SymVariant{Name: v.Name, Discriminant: i, Value: payload.(*Struct)})
		}
		b.assume(b.op(OpLte, b.intConst(0), disc))
		b.assume(b.op(OpLt, disc, b.intConst(len(c.Variants))))
		return e, nil
	case *types.Named:
		m, err := b.env.Model(c.Name)
		if err != nil {
			return nil, &ConfigError{Msg: err.Error()}
		}
		return b.alloc(m, name)
	}
	return nil, errors.Errorf("cannot allocate value of type %s", c)
}

// undefinedLike allocates unconstrained values with the shape of v.
func (b *builder) undefinedLike(v Symbolic) Symbolic {
	switch v := v.(type) {
	case *Scalar:
		return &Scalar{ID: b.variable(types.Unknown, b.name("undef"))}
	case *Struct:
		s := &Struct{}
		for _, f := range v.Fields {
			s.Fields = append(s.Fields, SymField{Name: f.Name, Value: b.undefinedLike(f.Value)})
		}
		return s
	case *Enum:
		e := &Enum{Type: v.Type, Discriminant: b.variable(types.Int, b.name("undef"))}
		for _, sv := range v.Variants {
			e.Variants = append(e.Variants, SymVariant{
				Name:         sv.Name,
				Discriminant: sv.Discriminant,
				Value:        b.undefinedLike(sv.Value).(*Struct),
			})
		}
		return e
	case *Option:
		return &Option{Some: b.variable(types.Bool, b.name("undef")), Inner: b.undefinedLike(v.Inner)}
	case *Tuple:
		t := &Tuple{}
		for _, el := range v.Elems {
			t.Elems = append(t.Elems, b.undefinedLike(el))
		}
		return t
	}
	return v
}

func asScalar(v Symbolic) (ExprID, error) {
	s, ok := v.(*Scalar)
	if !ok {
		return 0, errors.Errorf("expected scalar value, got %s", v)
	}
	return s.ID, nil
}

// equal builds the structural equality of two values.
func (b *builder) equal(x, y Symbolic) (ExprID, error) {
	switch x := x.(type) {
	case *Scalar:
		ys, ok := y.(*Scalar)
		if !ok {
			break
		}
		return b.eqScalar(x.ID, ys.ID), nil
	case *Struct:
		ys, ok := y.(*Struct)
		if !ok || len(x.Fields) != len(ys.Fields) {
			break
		}
		var eqs []ExprID
		for i, f := range x.Fields {
			if f.Name != ys.Fields[i].Name {
				return 0, errors.Errorf("struct field mismatch: %s vs %s", f.Name, ys.Fields[i].Name)
			}
			eq, err := b.equal(f.Value, ys.Fields[i].Value)
			if err != nil {
				return 0, err
			}
			eqs = append(eqs, eq)
		}
		return b.all(eqs), nil
	case *Enum:
		ye, ok := y.(*Enum)
		if !ok || x.Type != ye.Type || len(x.Variants) != len(ye.Variants) {
			break
		}
		eqs := []ExprID{b.eqScalar(x.Discriminant, ye.Discriminant)}
		for i, v := range x.Variants {
			payload, err := b.equal(v.Value, ye.Variants[i].Value)
			if err != nil {
				return 0, err
			}
			selected := b.eqScalar(x.Discriminant, b.intConst(v.Discriminant))
			eqs = append(eqs, b.imp(selected, payload))
		}
		return b.all(eqs), nil
	case *Option:
		yo, ok := y.(*Option)
		if !ok {
			break
		}
		inner, err := b.equal(x.Inner, yo.Inner)
		if err != nil {
			return 0, err
		}
		return b.all([]ExprID{b.eqScalar(x.Some, yo.Some), b.imp(x.Some, inner)}), nil
	case *Tuple:
		yt, ok := y.(*Tuple)
		if !ok || len(x.Elems) != len(yt.Elems) {
			break
		}
		var eqs []ExprID
		for i := range x.Elems {
			eq, err := b.equal(x.Elems[i], yt.Elems[i])
			if err != nil {
				return 0, err
			}
			eqs = append(eqs, eq)
		}
		return b.all(eqs), nil
	}
	return 0, errors.Errorf("cannot compare %s with %s", x, y)
}

// conditional merges two values of the same shape under c.
func (b *builder) conditional(c ExprID, t, e Symbolic) (Symbolic, error) {
	switch t := t.(type) {
	case *Scalar:
		es, ok := e.(*Scalar)
		if !ok {
			break
		}
		return &Scalar{ID: b.op(OpConditional, c, t.ID, es.ID)}, nil
	case *Struct:
		est, ok := e.(*Struct)
		if !ok || len(t.Fields) != len(est.Fields) {
			break
		}
		out := &Struct{}
		for i, f := range t.Fields {
			v, err := b.conditional(c, f.Value, est.Fields[i].Value)
			if err != nil {
				return nil, err
			}
			out.Fields = append(out.Fields, SymField{Name: f.Name, Value: v})
		}
		return out, nil
	case *Enum:
		ee, ok := e.(*Enum)
		if !ok || t.Type != ee.Type || len(t.Variants) != len(ee.Variants) {
			break
		}
		out := &Enum{Type: t.Type, Discriminant: b.op(OpConditional, c, t.Discriminant, ee.Discriminant)}
		for i, v := range t.Variants {
			payload, err := b.conditional(c, v.Value, ee.Variants[i].Value)
			if err != nil {
				return nil, err
			}
			out.Variants = append(out.Variants, SymVariant{Name: v.Name, Discriminant: v.Discriminant, Value: payload.(*Struct)})
		}
		return out, nil
	case *Option:
		eo, ok := e.(*Option)
		if !ok {
			break
		}
		inner, err := b.conditional(c, t.Inner, eo.Inner)
		if err != nil {
			return nil, err
		}
		return &Option{Some: b.op(OpConditional, c, t.Some, eo.Some), Inner: inner}, nil
	case *Tuple:
		et, ok := e.(*Tuple)
		if !ok || len(t.Elems) != len(et.Elems) {
			break
		}
		out := &Tuple{}
		for i := range t.Elems {
			v, err := b.conditional(c, t.Elems[i], et.Elems[i])
			if err != nil {
				return nil, err
			}
			out.Elems = append(out.Elems, v)
		}
		return out, nil
	}
	return nil, errors.Errorf("conditional branches differ in shape: %s vs %s", t, e)
}

func (b *builder) initState() error {
	for _, s := range b.env.States.States() {
		m, err := b.env.ResolveType(s.Type)
		if err != nil {
			return &ConfigError{Msg: fmt.Sprintf("state %s: %v", s.Name, err)}
		}
		v, err := b.alloc(m, s.Name)
		if err != nil {
			return err
		}
		b.cond.State[s.Name] = v
		b.cond.StateOrder = append(b.cond.StateOrder, s.Name)
	}
	return nil
}

// stateDefaults assumes each state's default spec unless some spec in the
// unit modified the state.
func (b *builder) stateDefaults() error {
	for _, d := range b.tracker.Defaults() {
		if d.Kind == state.DefaultSuppressed {
			log.Debugf("state %s modified unconditionally, default suppressed", d.State.Name)
			continue
		}
		vars := newScope(nil)
		_ = vars.set(d.State.Name, b.cond.State[d.State.Name])
		b.pushPos(d.State.Default.Pos)
		v, err := b.specExpr(d.State.Default, vars)
		b.popPos()
		if err != nil {
			return errors.Wrapf(err, "state %s default", d.State.Name)
		}
		def, err := asScalar(v)
		if err != nil {
			return errors.Wrapf(err, "state %s default", d.State.Name)
		}
		if d.Kind == state.DefaultGated {
			def = b.imp(b.not(b.any(d.Conds)), def)
		}
		b.assume(def)
	}
	return nil
}
