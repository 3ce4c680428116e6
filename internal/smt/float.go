package smt

import (
	"github.com/pkg/errors"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
	"ruleveri/internal/veri"
)

const (
	roundNearestEven = "roundNearestTiesToEven"
	roundTowardZero  = "roundTowardZero"
	roundTowardPos   = "roundTowardPositive"
	roundTowardNeg   = "roundTowardNegative"
)

// fpFormat returns the exponent and significand bits of a float width.
func fpFormat(w int) (eb, sb int, err error) {
	switch w {
	case 32:
		return 8, 24, nil
	case 64:
		return 11, 53, nil
	}
	return 0, 0, errors.Errorf("unsupported floating-point width %d", w)
}

// toFP reinterprets a bit-vector as an IEEE-754 float.
func toFP(x sexp.SExp, w int) (sexp.SExp, error) {
	eb, sb, err := fpFormat(w)
	if err != nil {
		return nil, err
	}
	return indexed("to_fp", []int{eb, sb}, x), nil
}

var fpPredicates = map[veri.Op]string{
	veri.OpFPIsZero: "fp.isZero",
	veri.OpFPIsInf:  "fp.isInfinite",
	veri.OpFPIsNaN:  "fp.isNaN",
	veri.OpFPIsNeg:  "fp.isNegative",
	veri.OpFPIsPos:  "fp.isPositive",
}

var fpTests = map[veri.Op]string{
	veri.OpFPEq: "fp.eq",
	veri.OpFPLt: "fp.lt",
	veri.OpFPGt: "fp.gt",
	veri.OpFPLe: "fp.leq",
	veri.OpFPGe: "fp.geq",
}

var fpSpecials = map[veri.Op]string{
	veri.OpFPPosInf:  "+oo",
	veri.OpFPNegInf:  "-oo",
	veri.OpFPPosZero: "+zero",
	veri.OpFPNegZero: "-zero",
	veri.OpFPNaN:     "NaN",
}

// float encodes the floating-point operators. Float results are bit
// patterns: a fresh bit-vector whose float reading equals the result.
func (enc *encoder) float(id veri.ExprID, e *veri.Expr) (sexp.SExp, error) {
	a := e.Args
	fp := func(x veri.ExprID) (sexp.SExp, int, error) {
		w, err := enc.width(x)
		if err != nil {
			return nil, 0, err
		}
		f, err := toFP(enc.atom(x), w)
		if err != nil {
			return nil, 0, enc.errorf(id, "%s", err)
		}
		return f, w, nil
	}

	if op, ok := fpPredicates[e.Op]; ok {
		x, _, err := fp(a[0])
		if err != nil {
			return nil, err
		}
		return sexp.Sym(op, x), nil
	}
	if op, ok := fpTests[e.Op]; ok || e.Op == veri.OpFPNe {
		x, _, err := fp(a[0])
		if err != nil {
			return nil, err
		}
		y, _, err := fp(a[1])
		if err != nil {
			return nil, err
		}
		if e.Op == veri.OpFPNe {
			return sexp.Sym("not", sexp.Sym("fp.eq", x, y)), nil
		}
		return sexp.Sym(op, x, y), nil
	}
	if name, ok := fpSpecials[e.Op]; ok {
		w, err := enc.intValue(a[0])
		if err != nil {
			return nil, err
		}
		eb, sb, err := fpFormat(w)
		if err != nil {
			return nil, enc.errorf(id, "%s", err)
		}
		return enc.fpResult(id, name, w, indexedSym(name, eb, sb))
	}

	rne := sexp.NewAtom(roundNearestEven)
	switch e.Op {
	case veri.OpFPAdd, veri.OpFPSub, veri.OpFPMul, veri.OpFPDiv, veri.OpFPMin, veri.OpFPMax:
		x, w, err := fp(a[0])
		if err != nil {
			return nil, err
		}
		y, _, err := fp(a[1])
		if err != nil {
			return nil, err
		}
		var r sexp.SExp
		switch e.Op {
		case veri.OpFPMin, veri.OpFPMax:
			r = sexp.Sym(e.Op.String(), x, y)
		default:
			r = sexp.Sym(e.Op.String(), rne, x, y)
		}
		return enc.fpResult(id, e.Op.String(), w, r)

	case veri.OpFPNeg, veri.OpFPSqrt, veri.OpFPCeil, veri.OpFPFloor, veri.OpFPTrunc, veri.OpFPNearest:
		x, w, err := fp(a[0])
		if err != nil {
			return nil, err
		}
		var r sexp.SExp
		switch e.Op {
		case veri.OpFPNeg:
			r = sexp.Sym("fp.neg", x)
		case veri.OpFPSqrt:
			r = sexp.Sym("fp.sqrt", rne, x)
		case veri.OpFPCeil:
			r = sexp.Sym("fp.roundToIntegral", sexp.NewAtom(roundTowardPos), x)
		case veri.OpFPFloor:
			r = sexp.Sym("fp.roundToIntegral", sexp.NewAtom(roundTowardNeg), x)
		case veri.OpFPTrunc:
			r = sexp.Sym("fp.roundToIntegral", sexp.NewAtom(roundTowardZero), x)
		default:
			r = sexp.Sym("fp.roundToIntegral", rne, x)
		}
		return enc.fpResult(id, e.Op.String(), w, r)

	case veri.OpToFP, veri.OpToFPUnsigned, veri.OpToFPFromFP:
		w, err := enc.intValue(a[0])
		if err != nil {
			return nil, err
		}
		eb, sb, err := fpFormat(w)
		if err != nil {
			return nil, enc.errorf(id, "%s", err)
		}
		src := enc.atom(a[1])
		conv := "to_fp"
		switch e.Op {
		case veri.OpToFPUnsigned:
			conv = "to_fp_unsigned"
		case veri.OpToFPFromFP:
			if src, _, err = fp(a[1]); err != nil {
				return nil, err
			}
		}
		return enc.fpResult(id, "conv", w, indexed(conv, []int{eb, sb}, rne, src))

	case veri.OpFPToUBV, veri.OpFPToSBV:
		w, err := enc.intValue(a[0])
		if err != nil {
			return nil, err
		}
		x, _, err := fp(a[1])
		if err != nil {
			return nil, err
		}
		conv := "fp.to_ubv"
		if e.Op == veri.OpFPToSBV {
			conv = "fp.to_sbv"
		}
		return indexed(conv, []int{w}, sexp.NewAtom(roundTowardZero), x), nil
	}
	return nil, enc.errorf(id, "no encoding for operator %s", e.Op)
}

// fpResult declares a bit pattern for a float result and returns it.
func (enc *encoder) fpResult(id veri.ExprID, label string, w int, r sexp.SExp) (sexp.SExp, error) {
	bits, err := enc.temp(label, types.BitVector(w))
	if err != nil {
		return nil, enc.errorf(id, "%s", err)
	}
	f, err := toFP(bits, w)
	if err != nil {
		return nil, enc.errorf(id, "%s", err)
	}
	enc.emit(sexp.Sym("assert", sexp.Sym("=", f, r)))
	return bits, nil
}
