package smt

import (
	"fmt"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
)

func num(n int) *sexp.Atom {
	return sexp.NewAtom(fmt.Sprint(n))
}

func bvSort(w int) sexp.SExp {
	return indexedSym("BitVec", w)
}

func indexedSym(name string, idx ...int) *sexp.List {
	items := []sexp.SExp{sexp.NewAtom("_"), sexp.NewAtom(name)}
	for _, i := range idx {
		items = append(items, num(i))
	}
	return sexp.NewList(items...)
}

// indexed applies an indexed operator such as (_ extract 7 0).
func indexed(name string, idx []int, args ...sexp.SExp) sexp.SExp {
	items := append([]sexp.SExp{indexedSym(name, idx...)}, args...)
	return sexp.NewList(items...)
}

func constant(c types.Const) sexp.SExp {
	if c.Kind == types.ConstInt && c.Value.Sign() < 0 {
		return sexp.Sym("-", sexp.NewAtom(c.Value.Text(10)[1:]))
	}
	return sexp.NewAtom(c.String())
}

func bvConst(w int, v int64) sexp.SExp {
	return sexp.NewAtom(types.BitVectorConstInt64(w, v).String())
}

func extract(hi, lo int, x sexp.SExp) sexp.SExp {
	return indexed("extract", []int{hi, lo}, x)
}

func bit(i int, x sexp.SExp) sexp.SExp {
	return extract(i, i, x)
}

// concat folds operands into nested binary concatenations, the first
// operand ending up in the high bits.
func concat(xs ...sexp.SExp) sexp.SExp {
	out := xs[len(xs)-1]
	for i := len(xs) - 2; i >= 0; i-- {
		out = sexp.Sym("concat", xs[i], out)
	}
	return out
}

// rotate desugars a rotation by a dynamic amount into shifts, since the
// SMT-LIB rotate operators take a static index.
func rotate(left bool, x, amount sexp.SExp, w int) sexp.SExp {
	width := bvConst(w, int64(w))
	n := sexp.Sym("bvurem", amount, width)
	delta := sexp.Sym("bvsub", width, n)
	if left {
		return sexp.Sym("bvor", sexp.Sym("bvshl", x, n), sexp.Sym("bvlshr", x, delta))
	}
	return sexp.Sym("bvor", sexp.Sym("bvshl", x, delta), sexp.Sym("bvlshr", x, n))
}

// clz counts leading zeros as a chain of tests from the top bit down.
func clz(x sexp.SExp, w int) sexp.SExp {
	out := bvConst(w, int64(w))
	one := bvConst(1, 1)
	for i := 0; i < w; i++ {
		out = sexp.Sym("ite", sexp.Sym("=", bit(i, x), one), bvConst(w, int64(w-1-i)), out)
	}
	return out
}

// cls counts the bits below the sign bit that equal it: the leading zeros
// of x xor (x >> 1), less one.
func cls(x sexp.SExp, w int) sexp.SExp {
	diff := sexp.Sym("bvxor", x, sexp.Sym("bvashr", x, bvConst(w, 1)))
	return sexp.Sym("bvsub", clz(diff, w), bvConst(w, 1))
}

func rev(x sexp.SExp, w int) sexp.SExp {
	if w == 1 {
		return x
	}
	bits := make([]sexp.SExp, w)
	for i := 0; i < w; i++ {
		bits[i] = bit(i, x)
	}
	return concat(bits...)
}

func popcnt(x sexp.SExp, w int) sexp.SExp {
	if w == 1 {
		return x
	}
	var out sexp.SExp
	for i := 0; i < w; i++ {
		b := indexed("zero_extend", []int{w - 1}, bit(i, x))
		if out == nil {
			out = b
		} else {
			out = sexp.Sym("bvadd", out, b)
		}
	}
	return out
}

// saddo is signed addition overflow: equal operand signs that differ from
// the sign of the sum.
func saddo(x, y sexp.SExp, w int) sexp.SExp {
	top := w - 1
	sx, sy := bit(top, x), bit(top, y)
	ss := bit(top, sexp.Sym("bvadd", x, y))
	return sexp.Sym("and", sexp.Sym("=", sx, sy), sexp.Sym("not", sexp.Sym("=", ss, sx)))
}
