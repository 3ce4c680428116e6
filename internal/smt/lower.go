package smt

import (
	"math/big"
	"strconv"

	"github.com/pkg/errors"
	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
)

type binaryFn func(yices2.TermT, yices2.TermT) yices2.TermT

// binaries are the SMT-LIB operators with a direct yices counterpart.
var binaries = map[string]binaryFn{
	"=":  yices2.Eq,
	"=>": yices2.Implies,
	"<":  yices2.ArithLtAtom,
	"<=": yices2.ArithLeqAtom,
	"+":  yices2.Add,
	"*":  yices2.Mul,

	"bvadd":  yices2.Bvadd,
	"bvsub":  yices2.Bvsub,
	"bvmul":  yices2.Bvmul,
	"bvudiv": yices2.Bvdiv,
	"bvsdiv": yices2.Bvsdiv,
	"bvurem": yices2.Bvrem,
	"bvsrem": yices2.Bvsrem,
	"bvand":  yices2.Bvand2,
	"bvor":   yices2.Bvor2,
	"bvxor":  yices2.Bvxor2,
	"bvshl":  yices2.Bvshl,
	"bvlshr": yices2.Bvlshr,
	"bvashr": yices2.Bvashr,
	"concat": yices2.Bvconcat2,

	"bvugt": yices2.BvgtAtom,
	"bvuge": yices2.BvgeAtom,
	"bvult": yices2.BvltAtom,
	"bvule": yices2.BvleAtom,
	"bvsgt": yices2.BvsgtAtom,
	"bvsge": yices2.BvsgeAtom,
	"bvslt": yices2.BvsltAtom,
	"bvsle": yices2.BvsleAtom,
}

func index(x sexp.SExp) (uint32, error) {
	a, ok := x.(*sexp.Atom)
	if !ok {
		return 0, errors.Errorf("expected index, found %s", x)
	}
	n, err := strconv.ParseUint(a.Value, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "index %s", a.Value)
	}
	return uint32(n), nil
}

// term lowers an SMT-LIB term to yices. Floating-point, int2bv and
// bv2nat have no yices counterpart.
func (s *Solver) term(x sexp.SExp) (yices2.TermT, error) {
	if a, ok := x.(*sexp.Atom); ok {
		return s.atom(a)
	}
	l := x.(*sexp.List)
	if l.Len() == 0 {
		return yices2.NullTerm, errors.New("empty term")
	}
	if op, ok := l.Items[0].(*sexp.List); ok {
		return s.indexed(op, l.Tail())
	}

	head := l.Head()
	if head == "!" {
		return s.term(l.Items[1])
	}
	args := make([]yices2.TermT, 0, l.Len()-1)
	for _, item := range l.Tail() {
		t, err := s.term(item)
		if err != nil {
			return yices2.NullTerm, err
		}
		args = append(args, t)
	}

	if fn, ok := binaries[head]; ok {
		if len(args) != 2 {
			return yices2.NullTerm, errors.Errorf("%s takes two operands: %s", head, l)
		}
		return check(fn(args[0], args[1]), head)
	}
	switch head {
	case "and":
		return check(yices2.And(args), head)
	case "or":
		return check(yices2.Or(args), head)
	case "not":
		return check(yices2.Not(args[0]), head)
	case "ite":
		return check(yices2.Ite(args[0], args[1], args[2]), head)
	case "-":
		if len(args) == 1 {
			return check(yices2.Neg(args[0]), head)
		}
		return check(yices2.Sub(args[0], args[1]), head)
	case "bvnot":
		return check(yices2.Bvnot(args[0]), head)
	case "bvneg":
		return check(yices2.Bvneg(args[0]), head)
	}
	return yices2.NullTerm, errors.Errorf("yices backend does not support %s", head)
}

func check(t yices2.TermT, op string) (yices2.TermT, error) {
	if t == yices2.NullTerm {
		return t, yicesError(op)
	}
	return t, nil
}

func (s *Solver) indexed(op *sexp.List, operands []sexp.SExp) (yices2.TermT, error) {
	if op.Len() < 3 || !sexp.IsAtom(op.Items[0], "_") || len(operands) != 1 {
		return yices2.NullTerm, errors.Errorf("unsupported indexed operator %s", op)
	}
	name := op.Items[1].String()
	idx := make([]uint32, 0, op.Len()-2)
	for _, i := range op.Items[2:] {
		n, err := index(i)
		if err != nil {
			return yices2.NullTerm, err
		}
		idx = append(idx, n)
	}
	x, err := s.term(operands[0])
	if err != nil {
		return yices2.NullTerm, err
	}
	switch name {
	case "extract":
		return check(yices2.Bvextract(x, idx[1], idx[0]), name)
	case "zero_extend":
		return check(yices2.ZeroExtend(x, idx[0]), name)
	case "sign_extend":
		return check(yices2.SignExtend(x, idx[0]), name)
	}
	return yices2.NullTerm, errors.Errorf("yices backend does not support %s", name)
}

func (s *Solver) atom(a *sexp.Atom) (yices2.TermT, error) {
	switch a.Value {
	case "true":
		return yices2.True(), nil
	case "false":
		return yices2.False(), nil
	}
	if t, ok := s.terms[a.Value]; ok {
		return t, nil
	}
	c, err := types.ParseLiteral(a.Value)
	if err != nil {
		return yices2.NullTerm, errors.Errorf("unknown symbol %s", a.Value)
	}
	switch c.Kind {
	case types.ConstBitVector:
		return bvConstTerm(c.Value, c.Width), nil
	case types.ConstInt:
		if !c.Value.IsInt64() {
			return yices2.NullTerm, errors.Errorf("integer %s out of range", c.Value)
		}
		return yices2.Int64(c.Value.Int64()), nil
	}
	return yices2.NullTerm, errors.Errorf("unsupported literal %s", a.Value)
}

// bvConstTerm builds a bit-vector constant from its bits, least
// significant first.
func bvConstTerm(value *big.Int, size int) yices2.TermT {
	v := make([]int32, size)
	for j := 0; j < size; j++ {
		v[j] = int32(value.Bit(j))
	}
	return yices2.BvconstFromArray(v)
}
