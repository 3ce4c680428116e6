package veri

import (
	"github.com/pkg/errors"

	"ruleveri/internal/spec"
	"ruleveri/internal/types"
)

type scope struct {
	parent *scope
	vars   map[string]Symbolic
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: map[string]Symbolic{}}
}

func (s *scope) lookup(name string) (Symbolic, bool) {
	for ; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// set binds name in s. Names are never redefined.
func (s *scope) set(name string, v Symbolic) error {
	if _, ok := s.lookup(name); ok {
		return errors.Errorf("redefinition of %s", name)
	}
	s.vars[name] = v
	return nil
}

// scalarOps maps spec operators onto arena operators taking the same
// scalar operands in the same order.
var scalarOps = map[spec.Kind]Op{
	spec.Not: OpNot,
	spec.Imp: OpImp,
	spec.Eq:  OpEq,
	spec.Lt:  OpLt,
	spec.Lte: OpLte,
	spec.Add: OpAdd,
	spec.Sub: OpSub,
	spec.Mul: OpMul,

	spec.BVUlt:   OpBVUlt,
	spec.BVUle:   OpBVUle,
	spec.BVUgt:   OpBVUgt,
	spec.BVUge:   OpBVUge,
	spec.BVSlt:   OpBVSlt,
	spec.BVSle:   OpBVSle,
	spec.BVSgt:   OpBVSgt,
	spec.BVSge:   OpBVSge,
	spec.BVSaddo: OpBVSaddo,

	spec.BVNot:  OpBVNot,
	spec.BVNeg:  OpBVNeg,
	spec.Cls:    OpCls,
	spec.Clz:    OpClz,
	spec.Rev:    OpRev,
	spec.Popcnt: OpPopcnt,

	spec.BVAdd:  OpBVAdd,
	spec.BVSub:  OpBVSub,
	spec.BVMul:  OpBVMul,
	spec.BVSDiv: OpBVSDiv,
	spec.BVUDiv: OpBVUDiv,
	spec.BVSRem: OpBVSRem,
	spec.BVURem: OpBVURem,
	spec.BVAnd:  OpBVAnd,
	spec.BVOr:   OpBVOr,
	spec.BVXor:  OpBVXor,
	spec.BVShl:  OpBVShl,
	spec.BVLShr: OpBVLShr,
	spec.BVAShr: OpBVAShr,
	spec.Rotl:   OpBVRotl,
	spec.Rotr:   OpBVRotr,

	spec.ZeroExt: OpBVZeroExt,
	spec.SignExt: OpBVSignExt,
	spec.ConvTo:  OpBVConvTo,
	spec.Int2BV:  OpInt2BV,
	spec.BV2Nat:  OpBV2Nat,
	spec.WidthOf: OpWidthOf,

	spec.ToFP:         OpToFP,
	spec.ToFPUnsigned: OpToFPUnsigned,
	spec.ToFPFromFP:   OpToFPFromFP,
	spec.FPToUBV:      OpFPToUBV,
	spec.FPToSBV:      OpFPToSBV,

	spec.FPPosInf:  OpFPPosInf,
	spec.FPNegInf:  OpFPNegInf,
	spec.FPPosZero: OpFPPosZero,
	spec.FPNegZero: OpFPNegZero,
	spec.FPNaN:     OpFPNaN,

	spec.FPEq: OpFPEq,
	spec.FPNe: OpFPNe,
	spec.FPLt: OpFPLt,
	spec.FPGt: OpFPGt,
	spec.FPLe: OpFPLe,
	spec.FPGe: OpFPGe,

	spec.FPAdd: OpFPAdd,
	spec.FPSub: OpFPSub,
	spec.FPMul: OpFPMul,
	spec.FPDiv: OpFPDiv,
	spec.FPMin: OpFPMin,
	spec.FPMax: OpFPMax,

	spec.FPNeg:     OpFPNeg,
	spec.FPCeil:    OpFPCeil,
	spec.FPFloor:   OpFPFloor,
	spec.FPSqrt:    OpFPSqrt,
	spec.FPTrunc:   OpFPTrunc,
	spec.FPNearest: OpFPNearest,

	spec.FPIsZero: OpFPIsZero,
	spec.FPIsInf:  OpFPIsInf,
	spec.FPIsNaN:  OpFPIsNaN,
	spec.FPIsNeg:  OpFPIsNeg,
	spec.FPIsPos:  OpFPIsPos,
}

func (b *builder) scalarExpr(e *spec.Expr, sc *scope) (ExprID, error) {
	v, err := b.specExpr(e, sc)
	if err != nil {
		return 0, err
	}
	id, err := asScalar(v)
	if err != nil {
		return 0, configErrorf(e.Pos, "%v", err)
	}
	return id, nil
}

func (b *builder) scalarArgs(e *spec.Expr, sc *scope) ([]ExprID, error) {
	ids := make([]ExprID, len(e.Args))
	for i, a := range e.Args {
		id, err := b.scalarExpr(a, sc)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// specExpr evaluates a macro-expanded spec expression.
func (b *builder) specExpr(e *spec.Expr, sc *scope) (Symbolic, error) {
	b.pushPos(e.Pos)
	defer b.popPos()

	if op, ok := scalarOps[e.Kind]; ok {
		args, err := b.scalarArgs(e, sc)
		if err != nil {
			return nil, err
		}
		return &Scalar{ID: b.op(op, args...)}, nil
	}

	switch e.Kind {
	case spec.Var:
		v, ok := sc.lookup(e.Name)
		if !ok {
			return nil, configErrorf(e.Pos, "undefined variable %s", e.Name)
		}
		return v, nil

	case spec.Lit:
		return &Scalar{ID: b.constant(e.Value)}, nil

	case spec.ConstRef:
		return b.specConst(e)

	case spec.Gt, spec.Gte:
		args, err := b.scalarArgs(e, sc)
		if err != nil {
			return nil, err
		}
		op := OpLt
		if e.Kind == spec.Gte {
			op = OpLte
		}
		return &Scalar{ID: b.op(op, args[1], args[0])}, nil

	case spec.And, spec.Or:
		args, err := b.scalarArgs(e, sc)
		if err != nil {
			return nil, err
		}
		if e.Kind == spec.And {
			return &Scalar{ID: b.all(args)}, nil
		}
		return &Scalar{ID: b.any(args)}, nil

	case spec.Concat:
		args, err := b.scalarArgs(e, sc)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, encodingErrorf(e.Pos, "concat of nothing")
		}
		return &Scalar{ID: b.foldOp(OpBVConcat, args)}, nil

	case spec.Extract:
		x, err := b.scalarExpr(e.Args[0], sc)
		if err != nil {
			return nil, err
		}
		if e.Hi < e.Lo || e.Lo < 0 {
			return nil, encodingErrorf(e.Pos, "bad extract range %d..%d", e.Hi, e.Lo)
		}
		return &Scalar{ID: b.add(Expr{Op: OpBVExtract, Args: []ExprID{x}, Hi: e.Hi, Lo: e.Lo})}, nil

	case spec.Replicate:
		x, err := b.scalarExpr(e.Args[0], sc)
		if err != nil {
			return nil, err
		}
		if e.Hi < 1 {
			return nil, encodingErrorf(e.Pos, "replicate count must be positive, got %d", e.Hi)
		}
		return &Scalar{ID: b.replicate(x, e.Hi)}, nil

	case spec.If:
		c, err := b.scalarExpr(e.Args[0], sc)
		if err != nil {
			return nil, err
		}
		t, err := b.specExpr(e.Args[1], sc)
		if err != nil {
			return nil, err
		}
		f, err := b.specExpr(e.Args[2], sc)
		if err != nil {
			return nil, err
		}
		v, err := b.conditional(c, t, f)
		if err != nil {
			return nil, configErrorf(e.Pos, "%v", err)
		}
		return v, nil

	case spec.Field:
		v, err := b.specExpr(e.Args[0], sc)
		if err != nil {
			return nil, err
		}
		s, ok := v.(*Struct)
		if !ok {
			return nil, configErrorf(e.Pos, "field %s of non-struct value %s", e.Name, v)
		}
		f, ok := s.Field(e.Name)
		if !ok {
			return nil, configErrorf(e.Pos, "no field %s in %s", e.Name, v)
		}
		return f, nil

	case spec.Discriminator:
		v, err := b.specExpr(e.Args[0], sc)
		if err != nil {
			return nil, err
		}
		en, ok := v.(*Enum)
		if !ok {
			return nil, configErrorf(e.Pos, "discriminator of non-enum value %s", v)
		}
		if e.Enum != "" && e.Enum != en.Type {
			return nil, configErrorf(e.Pos, "discriminator %s.%s applied to %s", e.Enum, e.Name, en.Type)
		}
		sv, ok := en.Variant(e.Name)
		if !ok {
			return nil, configErrorf(e.Pos, "enum %s has no variant %s", en.Type, e.Name)
		}
		return &Scalar{ID: b.eqScalar(en.Discriminant, b.intConst(sv.Discriminant))}, nil

	case spec.StructLit:
		s := &Struct{}
		for _, f := range e.Fields {
			v, err := b.specExpr(f.Value, sc)
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, SymField{Name: f.Name, Value: v})
		}
		return s, nil

	case spec.Construct:
		args := make([]Symbolic, len(e.Args))
		for i, a := range e.Args {
			v, err := b.specExpr(a, sc)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return b.construct(e, args)

	case spec.As:
		v, err := b.specExpr(e.Args[0], sc)
		if err != nil {
			return nil, err
		}
		ty, err := b.env.ResolveType(e.Type)
		if err != nil {
			return nil, configErrorf(e.Pos, "%v", err)
		}
		b.cond.Qualifiers = append(b.cond.Qualifiers, Qualifier{Value: v, Type: ty})
		return v, nil

	case spec.Cases:
		return b.cases(e, sc)

	case spec.Let:
		inner := newScope(sc)
		for _, bind := range e.Bindings {
			v, err := b.specExpr(bind.Value, inner)
			if err != nil {
				return nil, err
			}
			if err := inner.set(bind.Name, v); err != nil {
				return nil, configErrorf(e.Pos, "%v", err)
			}
		}
		return b.specExpr(e.Args[0], inner)

	case spec.With:
		inner := newScope(sc)
		for _, name := range e.Vars {
			v := &Scalar{ID: b.variable(types.Unknown, b.name(name))}
			if err := inner.set(name, v); err != nil {
				return nil, configErrorf(e.Pos, "%v", err)
			}
		}
		return b.specExpr(e.Args[0], inner)

	case spec.MacroCall:
		return nil, encodingErrorf(e.Pos, "unexpanded macro call %s", e.Name)
	}
	return nil, encodingErrorf(e.Pos, "unsupported expression %s", e.Kind)
}

// foldOp folds a binary operator to the right over at least one operand.
func (b *builder) foldOp(op Op, xs []ExprID) ExprID {
	acc := xs[len(xs)-1]
	for i := len(xs) - 2; i >= 0; i-- {
		acc = b.op(op, xs[i], acc)
	}
	return acc
}

// replicate concatenates n copies of x, splitting the count in halves so
// the tree depth stays logarithmic.
func (b *builder) replicate(x ExprID, n int) ExprID {
	if n == 1 {
		return x
	}
	h := n / 2
	return b.op(OpBVConcat, b.replicate(x, n-h), b.replicate(x, h))
}

func (b *builder) specConst(e *spec.Expr) (Symbolic, error) {
	if v, ok := b.consts[e.Name]; ok {
		return v, nil
	}
	def, ok := b.env.Specs.Consts[e.Name]
	if !ok {
		return nil, configErrorf(e.Pos, "undefined constant $%s", e.Name)
	}
	v, err := b.specExpr(def, newScope(nil))
	if err != nil {
		return nil, errors.Wrapf(err, "constant $%s", e.Name)
	}
	b.consts[e.Name] = v
	return v, nil
}

// construct builds an enum value with the given variant selected. The
// payloads of the other variants are left unconstrained.
func (b *builder) construct(e *spec.Expr, args []Symbolic) (Symbolic, error) {
	m, err := b.env.Model(e.Enum)
	if err != nil {
		return nil, configErrorf(e.Pos, "%v", err)
	}
	model, ok := m.(*types.Enum)
	if !ok {
		return nil, configErrorf(e.Pos, "%s is not an enum", e.Enum)
	}
	out := &Enum{Type: model.Name}
	selected := -1
	for i, v := range model.Variants {
		if v.Name != e.Name {
			payload, err := b.alloc(&types.Struct{Fields: v.Fields}, b.name(model.Name+"_"+v.Name+"_undef"))
			if err != nil {
				return nil, err
			}
			out.Variants = append(out.Variants, SymVariant{Name: v.Name, Discriminant: i, Value: payload.(*Struct)})
			continue
		}
		if len(args) != len(v.Fields) {
			return nil, configErrorf(e.Pos, "variant %s.%s takes %d fields, got %d", e.Enum, e.Name, len(v.Fields), len(args))
		}
		payload := &Struct{}
		for j, f := range v.Fields {
			payload.Fields = append(payload.Fields, SymField{Name: f.Name, Value: args[j]})
		}
		out.Variants = append(out.Variants, SymVariant{Name: v.Name, Discriminant: i, Value: payload})
		selected = i
	}
	if selected < 0 {
		return nil, configErrorf(e.Pos, "enum %s has no variant %s", e.Enum, e.Name)
	}
	out.Discriminant = b.intConst(selected)
	return out, nil
}

func (b *builder) cases(e *spec.Expr, sc *scope) (Symbolic, error) {
	if len(e.Arms) == 0 {
		return nil, configErrorf(e.Pos, "cases without arms")
	}
	v, err := b.specExpr(e.Args[0], sc)
	if err != nil {
		return nil, err
	}
	if e.ByVariant {
		return b.variantCases(e, v, sc)
	}

	var fallback Symbolic
	type arm struct {
		cond ExprID
		body Symbolic
	}
	var arms []arm
	for _, a := range e.Arms {
		body, err := b.specExpr(a.Body, sc)
		if err != nil {
			return nil, err
		}
		if a.Wildcard {
			fallback = body
			break
		}
		key, err := b.specExpr(a.Key, sc)
		if err != nil {
			return nil, err
		}
		c, err := b.equal(v, key)
		if err != nil {
			return nil, configErrorf(a.Key.Pos, "%v", err)
		}
		arms = append(arms, arm{cond: c, body: body})
	}
	if fallback == nil {
		fallback = b.undefinedLike(arms[0].body)
	}
	acc := fallback
	for i := len(arms) - 1; i >= 0; i-- {
		acc, err = b.conditional(arms[i].cond, arms[i].body, acc)
		if err != nil {
			return nil, configErrorf(e.Pos, "%v", err)
		}
	}
	return acc, nil
}

func (b *builder) variantCases(e *spec.Expr, v Symbolic, sc *scope) (Symbolic, error) {
	en, ok := v.(*Enum)
	if !ok {
		return nil, configErrorf(e.Pos, "match on non-enum value %s", v)
	}
	type arm struct {
		disc int
		body Symbolic
	}
	var (
		arms     []arm
		fallback Symbolic
		covered  = map[string]bool{}
	)
	for _, a := range e.Arms {
		if a.Wildcard {
			body, err := b.specExpr(a.Body, sc)
			if err != nil {
				return nil, err
			}
			fallback = body
			break
		}
		sv, ok := en.Variant(a.Variant)
		if !ok {
			return nil, configErrorf(e.Pos, "enum %s has no variant %s", en.Type, a.Variant)
		}
		if covered[a.Variant] {
			continue
		}
		covered[a.Variant] = true
		if len(a.Binds) != len(sv.Value.Fields) {
			return nil, configErrorf(e.Pos, "variant %s has %d fields, arm binds %d", a.Variant, len(sv.Value.Fields), len(a.Binds))
		}
		inner := newScope(sc)
		for i, name := range a.Binds {
			if name == "_" {
				continue
			}
			if err := inner.set(name, sv.Value.Fields[i].Value); err != nil {
				return nil, configErrorf(e.Pos, "%v", err)
			}
		}
		body, err := b.specExpr(a.Body, inner)
		if err != nil {
			return nil, err
		}
		arms = append(arms, arm{disc: sv.Discriminant, body: body})
	}
	if fallback == nil {
		for _, sv := range en.Variants {
			if !covered[sv.Name] {
				return nil, encodingErrorf(e.Pos, "match on %s does not cover variant %s", en.Type, sv.Name)
			}
		}
		if len(arms) == 0 {
			return nil, encodingErrorf(e.Pos, "match on empty enum %s", en.Type)
		}
		fallback = arms[len(arms)-1].body
		arms = arms[:len(arms)-1]
	}
	acc := fallback
	var err error
	for i := len(arms) - 1; i >= 0; i-- {
		c := b.eqScalar(en.Discriminant, b.intConst(arms[i].disc))
		acc, err = b.conditional(c, arms[i].body, acc)
		if err != nil {
			return nil, configErrorf(e.Pos, "%v", err)
		}
	}
	return acc, nil
}
