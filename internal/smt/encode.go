// Package smt lowers typed verification conditions to SMT-LIB and decodes
// solver models. The same command list drives external solvers and the
// in-process yices context.
package smt

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"ruleveri/internal/sexp"
	"ruleveri/internal/typeinfer"
	"ruleveri/internal/types"
	"ruleveri/internal/veri"
)

const (
	UnspecifiedSort = "Unspecified"
	UnitSort        = "Unit"
)

// ModelVar is a declared constant whose value a counterexample reads.
type ModelVar struct {
	ID   veri.ExprID
	Name string
	Type types.Type
}

// Query is the SMT-LIB rendering of one typed instantiation.
type Query struct {
	// Prelude sets options, the logic and the special sorts.
	Prelude []sexp.SExp
	// Commands declare every expression and assert its definition.
	Commands    []sexp.SExp
	Assumptions sexp.SExp
	Assertions  sexp.SExp
	Model       []ModelVar
}

// Feasibility is the formula checked before the verification condition:
// unsatisfiable assumptions make the rule inapplicable.
func (q *Query) Feasibility() sexp.SExp {
	return q.Assumptions
}

// Condition is the negated verification condition; unsat means valid.
func (q *Query) Condition() sexp.SExp {
	return sexp.Sym("not", sexp.Sym("=>", q.Assumptions, q.Assertions))
}

// ModelNames lists the declared names of the model variables.
func (q *Query) ModelNames() []sexp.SExp {
	out := make([]sexp.SExp, len(q.Model))
	for i, v := range q.Model {
		out[i] = sexp.NewAtom(v.Name)
	}
	return out
}

// WriteScript writes a standalone script equivalent to what a backend
// sends, for replaying a query by hand.
func (q *Query) WriteScript(w io.Writer) error {
	var cmds []sexp.SExp
	cmds = append(cmds, q.Prelude...)
	cmds = append(cmds, q.Commands...)
	cmds = append(cmds,
		sexp.Sym("push", num(1)),
		sexp.Sym("assert", q.Feasibility()),
		sexp.Sym("check-sat"),
		sexp.Sym("pop", num(1)),
		sexp.Sym("push", num(1)),
		sexp.Sym("assert", q.Condition()),
		sexp.Sym("check-sat"),
	)
	if len(q.Model) > 0 {
		cmds = append(cmds, sexp.Sym("get-value", sexp.NewList(q.ModelNames()...)))
	}
	cmds = append(cmds, sexp.Sym("pop", num(1)))
	for _, cmd := range cmds {
		if _, err := fmt.Fprintln(w, cmd); err != nil {
			return err
		}
	}
	return nil
}

type encoder struct {
	c     *veri.Conditions
	sol   *typeinfer.Solution
	q     *Query
	names []string
	tmp   int
}

// Encode lowers the conditions under a solved type assignment. Only the
// expressions reachable from the assumptions and assertions, plus the
// model values whose types are known, are declared.
func Encode(c *veri.Conditions, sol *typeinfer.Solution) (*Query, error) {
	if sol.Status != typeinfer.Solved {
		return nil, errors.Errorf("cannot encode %s instantiation", sol.Status)
	}
	enc := &encoder{
		c:     c,
		sol:   sol,
		q:     &Query{},
		names: make([]string, len(c.Exprs)),
	}
	enc.q.Prelude = []sexp.SExp{
		sexp.Sym("set-option", sexp.NewAtom(":produce-models"), sexp.NewAtom("true")),
		sexp.Sym("set-logic", sexp.NewAtom("ALL")),
		sexp.Sym("declare-sort", sexp.NewAtom(UnspecifiedSort), num(0)),
		sexp.Sym("declare-sort", sexp.NewAtom(UnitSort), num(0)),
	}

	want := c.Reachable()
	for _, id := range c.ModelExprs() {
		enc.include(id, want)
	}
	for id, ok := range want {
		if !ok {
			continue
		}
		if err := enc.declare(veri.ExprID(id)); err != nil {
			return nil, err
		}
	}

	enc.q.Assumptions = enc.all(c.Assumptions)
	enc.q.Assertions = enc.all(c.Assertions)
	for _, id := range c.ModelExprs() {
		if want[id] {
			enc.q.Model = append(enc.q.Model, ModelVar{ID: id, Name: enc.names[id], Type: sol.Type(id)})
		}
	}
	return enc.q, nil
}

// include adds an unreachable expression and its operands when all of
// them have concrete types.
func (enc *encoder) include(id veri.ExprID, want []bool) bool {
	if want[id] {
		return true
	}
	if !enc.sol.Type(id).IsConcrete() {
		return false
	}
	for _, a := range enc.c.Expr(id).Args {
		if !enc.include(a, want) {
			return false
		}
	}
	want[id] = true
	return true
}

// Name returns the declared name of an expression: variables keep their
// source name, suffixed by the expression id.
func Name(c *veri.Conditions, id veri.ExprID) string {
	e := c.Expr(id)
	if e.Op == veri.OpVariable {
		return sanitize(c.Variables[e.Var].Name) + "_" + fmt.Sprint(id)
	}
	return fmt.Sprintf("e%d", id)
}

func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Sort renders a concrete type as an SMT-LIB sort.
func Sort(t types.Type) (sexp.SExp, error) {
	switch t.Kind {
	case types.KindBool:
		return sexp.NewAtom("Bool"), nil
	case types.KindInt:
		return sexp.NewAtom("Int"), nil
	case types.KindBitVector:
		if t.HasWidth() {
			return bvSort(t.Width), nil
		}
	case types.KindUnspecified:
		return sexp.NewAtom(UnspecifiedSort), nil
	case types.KindUnit:
		return sexp.NewAtom(UnitSort), nil
	}
	return nil, errors.Errorf("no sort for non-concrete type %s", t)
}

func (enc *encoder) emit(cmd sexp.SExp) {
	enc.q.Commands = append(enc.q.Commands, cmd)
}

func (enc *encoder) declare(id veri.ExprID) error {
	sort, err := Sort(enc.sol.Type(id))
	if err != nil {
		return enc.errorf(id, "e%d %s: %s", id, enc.c.ExprString(id), err)
	}
	name := Name(enc.c, id)
	enc.names[id] = name
	enc.emit(sexp.Sym("declare-const", sexp.NewAtom(name), sort))

	e := enc.c.Expr(id)
	if e.Op == veri.OpVariable {
		return nil
	}
	def, err := enc.define(id, e)
	if err != nil {
		return err
	}
	if def == nil {
		return nil
	}
	eq := sexp.Sym("=", sexp.NewAtom(name), def)
	enc.emit(sexp.Sym("assert", sexp.Sym("!", eq, sexp.NewAtom(":named"), sexp.NewAtom(fmt.Sprintf("expr%d", id)))))
	return nil
}

// temp declares a fresh auxiliary constant.
func (enc *encoder) temp(label string, t types.Type) (sexp.SExp, error) {
	sort, err := Sort(t)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("tmp%d_%s", enc.tmp, sanitize(label))
	enc.tmp++
	enc.emit(sexp.Sym("declare-const", sexp.NewAtom(name), sort))
	return sexp.NewAtom(name), nil
}

func (enc *encoder) errorf(id veri.ExprID, format string, args ...interface{}) error {
	return &veri.EncodingError{Pos: enc.c.Pos[id], Msg: fmt.Sprintf(format, args...)}
}

func (enc *encoder) all(ids []veri.ExprID) sexp.SExp {
	switch len(ids) {
	case 0:
		return sexp.NewAtom("true")
	case 1:
		return enc.atom(ids[0])
	}
	args := make([]sexp.SExp, len(ids))
	for i, id := range ids {
		args[i] = enc.atom(id)
	}
	return sexp.Sym("and", args...)
}

func (enc *encoder) atom(id veri.ExprID) sexp.SExp {
	return sexp.NewAtom(enc.names[id])
}

func (enc *encoder) width(id veri.ExprID) (int, error) {
	t := enc.sol.Type(id)
	if !t.HasWidth() {
		return 0, enc.errorf(id, "%s should be a bit-vector of known width, is %s", enc.c.ExprString(id), t)
	}
	return t.Width, nil
}

func (enc *encoder) intValue(id veri.ExprID) (int, error) {
	v, ok := enc.sol.Value(id)
	if !ok || !v.IsInt64() {
		return 0, enc.errorf(id, "%s should have a known integer value", enc.c.ExprString(id))
	}
	return int(v.Int64()), nil
}

// simple maps operators that translate one to one.
var simple = map[veri.Op]string{
	veri.OpNot: "not", veri.OpAnd: "and", veri.OpOr: "or", veri.OpImp: "=>",
	veri.OpEq: "=", veri.OpLt: "<", veri.OpLte: "<=",
	veri.OpAdd: "+", veri.OpSub: "-", veri.OpMul: "*",

	veri.OpBVUgt: "bvugt", veri.OpBVUge: "bvuge", veri.OpBVUlt: "bvult", veri.OpBVUle: "bvule",
	veri.OpBVSgt: "bvsgt", veri.OpBVSge: "bvsge", veri.OpBVSlt: "bvslt", veri.OpBVSle: "bvsle",

	veri.OpBVNot: "bvnot", veri.OpBVNeg: "bvneg",
	veri.OpBVAdd: "bvadd", veri.OpBVSub: "bvsub", veri.OpBVMul: "bvmul",
	veri.OpBVSDiv: "bvsdiv", veri.OpBVUDiv: "bvudiv", veri.OpBVSRem: "bvsrem", veri.OpBVURem: "bvurem",
	veri.OpBVAnd: "bvand", veri.OpBVOr: "bvor", veri.OpBVXor: "bvxor",
	veri.OpBVShl: "bvshl", veri.OpBVLShr: "bvlshr", veri.OpBVAShr: "bvashr",
	veri.OpBVConcat: "concat", veri.OpBV2Nat: "bv2nat",
	veri.OpConditional: "ite",
}

// define returns the right-hand side of an expression's definition, or nil
// for a constant of an uninterpreted sort.
func (enc *encoder) define(id veri.ExprID, e *veri.Expr) (sexp.SExp, error) {
	if op, ok := simple[e.Op]; ok {
		args := make([]sexp.SExp, len(e.Args))
		for i, a := range e.Args {
			args[i] = enc.atom(a)
		}
		return sexp.Sym(op, args...), nil
	}
	a := e.Args
	switch e.Op {
	case veri.OpConst:
		if e.Const.Kind == types.ConstUnspecified {
			return nil, nil
		}
		return constant(e.Const), nil

	case veri.OpBVSaddo, veri.OpCls, veri.OpClz, veri.OpRev, veri.OpPopcnt, veri.OpBVRotl, veri.OpBVRotr:
		w, err := enc.width(a[0])
		if err != nil {
			return nil, err
		}
		x := enc.atom(a[0])
		switch e.Op {
		case veri.OpBVSaddo:
			return saddo(x, enc.atom(a[1]), w), nil
		case veri.OpCls:
			return cls(x, w), nil
		case veri.OpClz:
			return clz(x, w), nil
		case veri.OpRev:
			return rev(x, w), nil
		case veri.OpPopcnt:
			return popcnt(x, w), nil
		case veri.OpBVRotl:
			return rotate(true, x, enc.atom(a[1]), w), nil
		default:
			return rotate(false, x, enc.atom(a[1]), w), nil
		}

	case veri.OpBVZeroExt, veri.OpBVSignExt, veri.OpBVConvTo:
		dst, err := enc.intValue(a[0])
		if err != nil {
			return nil, err
		}
		src, err := enc.width(a[1])
		if err != nil {
			return nil, err
		}
		return enc.resize(id, e.Op, dst, src, enc.atom(a[1]))

	case veri.OpBVExtract:
		return extract(e.Hi, e.Lo, enc.atom(a[0])), nil

	case veri.OpInt2BV:
		w, err := enc.intValue(a[0])
		if err != nil {
			return nil, err
		}
		return indexed("int2bv", []int{w}, enc.atom(a[1])), nil

	case veri.OpWidthOf:
		w, err := enc.width(a[0])
		if err != nil {
			return nil, err
		}
		return num(w), nil
	}
	return enc.float(id, e)
}

func (enc *encoder) resize(id veri.ExprID, op veri.Op, dst, src int, x sexp.SExp) (sexp.SExp, error) {
	switch {
	case dst == src:
		return x, nil
	case op == veri.OpBVConvTo && dst < src:
		return extract(dst-1, 0, x), nil
	case dst < src:
		return nil, enc.errorf(id, "cannot %s from %d to %d bits", op, src, dst)
	case op == veri.OpBVZeroExt:
		return indexed("zero_extend", []int{dst - src}, x), nil
	case op == veri.OpBVSignExt:
		return indexed("sign_extend", []int{dst - src}, x), nil
	}
	padding, err := enc.temp("conv_to_padding", types.BitVector(dst-src))
	if err != nil {
		return nil, err
	}
	return sexp.Sym("concat", padding, x), nil
}
