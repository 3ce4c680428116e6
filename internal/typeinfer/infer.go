// Package typeinfer assigns concrete types to the expressions of a
// verification condition under one choice of term signatures.
package typeinfer

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
	"ruleveri/internal/veri"
)

type Status int

const (
	Solved Status = iota
	// Inapplicable: the signatures make the rule's assumptions false.
	Inapplicable
	// Underconstrained: some reachable expression has no concrete type.
	Underconstrained
	// TypeError: conflicting types, widths or shapes.
	TypeError
)

func (s Status) String() string {
	switch s {
	case Solved:
		return "solved"
	case Inapplicable:
		return "inapplicable"
	case Underconstrained:
		return "underconstrained"
	case TypeError:
		return "type error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Conflict is a type conflict at an expression.
type Conflict struct {
	Pos sexp.Pos
	Msg string
}

func (c *Conflict) Error() string {
	if c.Pos.Line == 0 {
		return "type conflict: " + c.Msg
	}
	return fmt.Sprintf("%s: type conflict: %s", c.Pos, c.Msg)
}

// valueConflict is an integer expression required to hold two values.
type valueConflict struct {
	msg string
}

func (v *valueConflict) Error() string { return v.msg }

// Assignment picks one resolved signature per instantiated term.
type Assignment map[string]types.Signature

// Solution is the outcome of inference.
type Solution struct {
	Status Status
	Reason string
	// Types is indexed by expression id.
	Types []types.Type
	// Values holds the known values of integer expressions.
	Values map[veri.ExprID]*big.Int
}

func (s *Solution) Type(id veri.ExprID) types.Type {
	return s.Types[id]
}

// Value returns the known integer value of id.
func (s *Solution) Value(id veri.ExprID) (*big.Int, bool) {
	v, ok := s.Values[id]
	return v, ok
}

type inference struct {
	c       *veri.Conditions
	ty      []types.Type
	vals    map[veri.ExprID]*big.Int
	changed bool
}

// Infer runs inference to a fixpoint.
func Infer(c *veri.Conditions, assign Assignment) *Solution {
	inf := &inference{
		c:    c,
		ty:   make([]types.Type, len(c.Exprs)),
		vals: map[veri.ExprID]*big.Int{},
	}
	sol := &Solution{Types: inf.ty, Values: inf.vals}
	if err := inf.run(assign); err != nil {
		var vc *valueConflict
		if errors.As(err, &vc) {
			sol.Status = Inapplicable
		} else {
			sol.Status = TypeError
		}
		sol.Reason = err.Error()
		return sol
	}
	if reason, bad := inf.falseAssumption(); bad {
		sol.Status = Inapplicable
		sol.Reason = reason
		return sol
	}
	reach := c.Reachable()
	for id, ok := range reach {
		if ok && !inf.ty[id].IsConcrete() {
			sol.Status = Underconstrained
			sol.Reason = fmt.Sprintf("e%d %s has type %s", id, c.ExprString(veri.ExprID(id)), inf.ty[id])
			return sol
		}
	}
	sol.Status = Solved
	return sol
}

func (inf *inference) run(assign Assignment) error {
	for id, e := range inf.c.Exprs {
		switch e.Op {
		case veri.OpConst:
			inf.ty[id] = e.Const.Type()
			if e.Const.Kind == types.ConstInt {
				inf.vals[veri.ExprID(id)] = e.Const.Value
			}
		case veri.OpVariable:
			inf.ty[id] = inf.c.Variables[e.Var].Type
		default:
			inf.ty[id] = types.Unknown
		}
	}

	for _, call := range inf.c.Calls {
		sig, ok := assign[call.Term]
		if !ok {
			continue
		}
		if len(sig.Args) != len(call.Args) {
			return &Conflict{Msg: fmt.Sprintf("signature %s of %s has %d arguments, call has %d", sig, call.Term, len(sig.Args), len(call.Args))}
		}
		for i, a := range call.Args {
			if err := inf.shape(a, sig.Args[i]); err != nil {
				return errors.Wrapf(err, "%s argument %d", call.Term, i)
			}
		}
		if err := inf.shape(call.Ret, sig.Ret); err != nil {
			return errors.Wrapf(err, "%s result", call.Term)
		}
	}
	for _, q := range inf.c.Qualifiers {
		if err := inf.shape(q.Value, q.Type); err != nil {
			return err
		}
	}

	for round := 0; ; round++ {
		inf.changed = false
		for id := range inf.c.Exprs {
			if err := inf.step(veri.ExprID(id)); err != nil {
				return err
			}
		}
		if err := inf.topLevel(); err != nil {
			return err
		}
		if !inf.changed {
			log.Debugf("type inference converged after %d rounds", round+1)
			return nil
		}
	}
}

func (inf *inference) conflict(id veri.ExprID, format string, args ...interface{}) error {
	return &Conflict{Pos: inf.c.Pos[id], Msg: fmt.Sprintf("e%d: ", id) + fmt.Sprintf(format, args...)}
}

func (inf *inference) unify(id veri.ExprID, t types.Type) error {
	cur := inf.ty[id]
	j, ok := cur.Join(t)
	if !ok {
		return inf.conflict(id, "%s is %s, required %s", inf.c.ExprString(id), cur, t)
	}
	if j != cur {
		inf.ty[id] = j
		inf.changed = true
	}
	return nil
}

func (inf *inference) same(ids ...veri.ExprID) error {
	t := types.Unknown
	for _, id := range ids {
		j, ok := t.Join(inf.ty[id])
		if !ok {
			return inf.conflict(id, "%s is %s, operands require %s", inf.c.ExprString(id), inf.ty[id], t)
		}
		t = j
	}
	for _, id := range ids {
		if err := inf.unify(id, t); err != nil {
			return err
		}
	}
	return nil
}

func (inf *inference) all(t types.Type, ids ...veri.ExprID) error {
	for _, id := range ids {
		if err := inf.unify(id, t); err != nil {
			return err
		}
	}
	return nil
}

func (inf *inference) setValue(id veri.ExprID, v *big.Int) error {
	if cur, ok := inf.vals[id]; ok {
		if cur.Cmp(v) != 0 {
			return &valueConflict{msg: fmt.Sprintf("e%d %s is both %s and %s", id, inf.c.ExprString(id), cur, v)}
		}
		return nil
	}
	inf.vals[id] = v
	inf.changed = true
	return nil
}

// width returns the known width of a bit-vector expression.
func (inf *inference) width(id veri.ExprID) (int, bool) {
	t := inf.ty[id]
	return t.Width, t.HasWidth()
}

// sized constrains res to the bit-vector width held by the integer w,
// and w to the width of res.
func (inf *inference) sized(res, w veri.ExprID) error {
	if err := inf.unify(w, types.Int); err != nil {
		return err
	}
	if v, ok := inf.vals[w]; ok {
		if !v.IsInt64() || v.Sign() <= 0 {
			return inf.conflict(res, "invalid width %s", v)
		}
		return inf.unify(res, types.BitVector(int(v.Int64())))
	}
	if err := inf.unify(res, types.BitVectorUnknown()); err != nil {
		return err
	}
	if n, ok := inf.width(res); ok {
		return inf.setValue(w, big.NewInt(int64(n)))
	}
	return nil
}

func (inf *inference) step(id veri.ExprID) error {
	e := inf.c.Expr(id)
	a := e.Args
	bv := types.BitVectorUnknown()
	switch e.Op {
	case veri.OpConst, veri.OpVariable:
		return nil

	case veri.OpNot, veri.OpAnd, veri.OpOr, veri.OpImp:
		return inf.all(types.Bool, append([]veri.ExprID{id}, a...)...)

	case veri.OpEq:
		if err := inf.unify(id, types.Bool); err != nil {
			return err
		}
		return inf.same(a[0], a[1])

	case veri.OpLt, veri.OpLte:
		if err := inf.unify(id, types.Bool); err != nil {
			return err
		}
		return inf.all(types.Int, a...)

	case veri.OpAdd, veri.OpSub, veri.OpMul:
		if err := inf.all(types.Int, id, a[0], a[1]); err != nil {
			return err
		}
		x, okx := inf.vals[a[0]]
		y, oky := inf.vals[a[1]]
		if okx && oky {
			r := new(big.Int)
			switch e.Op {
			case veri.OpAdd:
				r.Add(x, y)
			case veri.OpSub:
				r.Sub(x, y)
			default:
				r.Mul(x, y)
			}
			return inf.setValue(id, r)
		}
		return nil

	case veri.OpBVUgt, veri.OpBVUge, veri.OpBVUlt, veri.OpBVUle,
		veri.OpBVSgt, veri.OpBVSge, veri.OpBVSlt, veri.OpBVSle, veri.OpBVSaddo,
		veri.OpFPEq, veri.OpFPNe, veri.OpFPLt, veri.OpFPGt, veri.OpFPLe, veri.OpFPGe:
		if err := inf.unify(id, types.Bool); err != nil {
			return err
		}
		if err := inf.all(bv, a...); err != nil {
			return err
		}
		return inf.same(a[0], a[1])

	case veri.OpBVNot, veri.OpBVNeg, veri.OpCls, veri.OpClz, veri.OpRev, veri.OpPopcnt,
		veri.OpFPNeg, veri.OpFPCeil, veri.OpFPFloor, veri.OpFPSqrt, veri.OpFPTrunc, veri.OpFPNearest:
		if err := inf.all(bv, id, a[0]); err != nil {
			return err
		}
		return inf.same(id, a[0])

	case veri.OpBVAdd, veri.OpBVSub, veri.OpBVMul, veri.OpBVSDiv, veri.OpBVUDiv,
		veri.OpBVSRem, veri.OpBVURem, veri.OpBVAnd, veri.OpBVOr, veri.OpBVXor,
		veri.OpBVShl, veri.OpBVLShr, veri.OpBVAShr, veri.OpBVRotl, veri.OpBVRotr,
		veri.OpFPAdd, veri.OpFPSub, veri.OpFPMul, veri.OpFPDiv, veri.OpFPMin, veri.OpFPMax:
		if err := inf.all(bv, id, a[0], a[1]); err != nil {
			return err
		}
		return inf.same(id, a[0], a[1])

	case veri.OpFPIsZero, veri.OpFPIsInf, veri.OpFPIsNaN, veri.OpFPIsNeg, veri.OpFPIsPos:
		if err := inf.unify(id, types.Bool); err != nil {
			return err
		}
		return inf.unify(a[0], bv)

	case veri.OpConditional:
		if err := inf.unify(a[0], types.Bool); err != nil {
			return err
		}
		return inf.same(id, a[1], a[2])

	case veri.OpBVZeroExt, veri.OpBVSignExt, veri.OpBVConvTo,
		veri.OpToFP, veri.OpToFPUnsigned, veri.OpToFPFromFP, veri.OpFPToUBV, veri.OpFPToSBV:
		if err := inf.unify(a[1], bv); err != nil {
			return err
		}
		return inf.sized(id, a[0])

	case veri.OpInt2BV:
		if err := inf.unify(a[1], types.Int); err != nil {
			return err
		}
		return inf.sized(id, a[0])

	case veri.OpFPPosInf, veri.OpFPNegInf, veri.OpFPPosZero, veri.OpFPNegZero, veri.OpFPNaN:
		return inf.sized(id, a[0])

	case veri.OpBVExtract:
		if err := inf.unify(a[0], bv); err != nil {
			return err
		}
		if w, ok := inf.width(a[0]); ok && e.Hi >= w {
			return inf.conflict(id, "extract %d..%d from %d bits", e.Hi, e.Lo, w)
		}
		return inf.unify(id, types.BitVector(e.Hi-e.Lo+1))

	case veri.OpBVConcat:
		if err := inf.all(bv, id, a[0], a[1]); err != nil {
			return err
		}
		wx, okx := inf.width(a[0])
		wy, oky := inf.width(a[1])
		wr, okr := inf.width(id)
		switch {
		case okx && oky:
			return inf.unify(id, types.BitVector(wx+wy))
		case okx && okr:
			if wr <= wx {
				return inf.conflict(id, "concat of %d bits into %d", wx, wr)
			}
			return inf.unify(a[1], types.BitVector(wr-wx))
		case oky && okr:
			if wr <= wy {
				return inf.conflict(id, "concat of %d bits into %d", wy, wr)
			}
			return inf.unify(a[0], types.BitVector(wr-wy))
		}
		return nil

	case veri.OpBV2Nat:
		if err := inf.unify(id, types.Int); err != nil {
			return err
		}
		return inf.unify(a[0], bv)

	case veri.OpWidthOf:
		if err := inf.unify(id, types.Int); err != nil {
			return err
		}
		if err := inf.unify(a[0], bv); err != nil {
			return err
		}
		if w, ok := inf.width(a[0]); ok {
			return inf.setValue(id, big.NewInt(int64(w)))
		}
		return nil
	}
	return inf.conflict(id, "no typing rule for %s", e.Op)
}

// conjuncts flattens top-level conjunctions of the assumptions.
func (inf *inference) conjuncts() []veri.ExprID {
	var out []veri.ExprID
	var visit func(veri.ExprID)
	visit = func(id veri.ExprID) {
		if e := inf.c.Expr(id); e.Op == veri.OpAnd {
			visit(e.Args[0])
			visit(e.Args[1])
			return
		}
		out = append(out, id)
	}
	for _, a := range inf.c.Assumptions {
		visit(a)
	}
	return out
}

// topLevel propagates integer values across assumed equalities.
func (inf *inference) topLevel() error {
	for _, id := range inf.conjuncts() {
		e := inf.c.Expr(id)
		if e.Op != veri.OpEq || inf.ty[e.Args[0]].Kind != types.KindInt {
			continue
		}
		x, y := e.Args[0], e.Args[1]
		if v, ok := inf.vals[x]; ok {
			if err := inf.setValue(y, v); err != nil {
				return err
			}
		}
		if v, ok := inf.vals[y]; ok {
			if err := inf.setValue(x, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// fold evaluates a boolean expression from constants and known integer
// values.
func (inf *inference) fold(id veri.ExprID) (value, known bool) {
	e := inf.c.Expr(id)
	switch e.Op {
	case veri.OpConst:
		if e.Const.Kind == types.ConstBool {
			return e.Const.Bool, true
		}
	case veri.OpNot:
		v, ok := inf.fold(e.Args[0])
		return !v, ok
	case veri.OpAnd:
		x, okx := inf.fold(e.Args[0])
		y, oky := inf.fold(e.Args[1])
		if (okx && !x) || (oky && !y) {
			return false, true
		}
		return true, okx && oky
	case veri.OpOr:
		x, okx := inf.fold(e.Args[0])
		y, oky := inf.fold(e.Args[1])
		if (okx && x) || (oky && y) {
			return true, true
		}
		return false, okx && oky
	case veri.OpEq, veri.OpLt, veri.OpLte:
		x, okx := inf.vals[e.Args[0]]
		y, oky := inf.vals[e.Args[1]]
		if !okx || !oky || inf.ty[e.Args[0]].Kind != types.KindInt {
			return false, false
		}
		switch e.Op {
		case veri.OpEq:
			return x.Cmp(y) == 0, true
		case veri.OpLt:
			return x.Cmp(y) < 0, true
		default:
			return x.Cmp(y) <= 0, true
		}
	}
	return false, false
}

func (inf *inference) falseAssumption() (string, bool) {
	for _, id := range inf.c.Assumptions {
		if v, ok := inf.fold(id); ok && !v {
			return fmt.Sprintf("assumption %s is false", inf.c.ExprString(id)), true
		}
	}
	return "", false
}

// shape applies a resolved type model to a structured value.
func (inf *inference) shape(s veri.Symbolic, c types.Compound) error {
	if o, ok := s.(*veri.Option); ok {
		if err := inf.unify(o.Some, types.Bool); err != nil {
			return err
		}
		return inf.shape(o.Inner, c)
	}
	switch c := c.(type) {
	case *types.Primitive:
		sc, ok := s.(*veri.Scalar)
		if !ok {
			return &Conflict{Msg: fmt.Sprintf("%s is not a scalar of type %s", s, c)}
		}
		return inf.unify(sc.ID, c.Type)
	case *types.Struct:
		st, ok := s.(*veri.Struct)
		if !ok || len(st.Fields) != len(c.Fields) {
			return &Conflict{Msg: fmt.Sprintf("%s does not have shape %s", s, c)}
		}
		for i, f := range c.Fields {
			if st.Fields[i].Name != f.Name {
				return &Conflict{Msg: fmt.Sprintf("field %s of %s, expected %s", st.Fields[i].Name, s, f.Name)}
			}
			if err := inf.shape(st.Fields[i].Value, f.Type); err != nil {
				return err
			}
		}
		return nil
	case *types.Enum:
		en, ok := s.(*veri.Enum)
		if !ok || len(en.Variants) != len(c.Variants) {
			return &Conflict{Msg: fmt.Sprintf("%s is not an enum %s", s, c.Name)}
		}
		if err := inf.unify(en.Discriminant, types.Int); err != nil {
			return err
		}
		for i, v := range c.Variants {
			if en.Variants[i].Name != v.Name {
				return &Conflict{Msg: fmt.Sprintf("variant %s of %s, expected %s", en.Variants[i].Name, c.Name, v.Name)}
			}
			if err := inf.shape(en.Variants[i].Value, &types.Struct{Fields: v.Fields}); err != nil {
				return err
			}
		}
		return nil
	}
	return &Conflict{Msg: fmt.Sprintf("unresolved type %s", c)}
}
