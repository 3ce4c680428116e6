package veri

import (
	"fmt"
	"strings"

	"ruleveri/internal/types"
)

// ExprID indexes the expression arena of a Conditions.
type ExprID int

// VariableID indexes Conditions.Variables.
type VariableID int

// Op is the closed set of verification condition operators.
type Op int

const (
	OpConst Op = iota
	OpVariable

	OpNot
	OpAnd
	OpOr
	OpImp
	OpEq
	OpLt
	OpLte
	OpAdd
	OpSub
	OpMul

	OpBVUgt
	OpBVUge
	OpBVUlt
	OpBVUle
	OpBVSgt
	OpBVSge
	OpBVSlt
	OpBVSle
	OpBVSaddo

	OpBVNot
	OpBVNeg
	OpCls
	OpClz
	OpRev
	OpPopcnt

	OpBVAdd
	OpBVSub
	OpBVMul
	OpBVSDiv
	OpBVUDiv
	OpBVSRem
	OpBVURem
	OpBVAnd
	OpBVOr
	OpBVXor
	OpBVShl
	OpBVLShr
	OpBVAShr
	OpBVRotl
	OpBVRotr

	OpConditional

	OpBVZeroExt
	OpBVSignExt
	OpBVConvTo
	OpBVExtract
	OpBVConcat
	OpInt2BV
	OpBV2Nat
	OpWidthOf

	OpToFP
	OpToFPUnsigned
	OpToFPFromFP
	OpFPToUBV
	OpFPToSBV

	OpFPPosInf
	OpFPNegInf
	OpFPPosZero
	OpFPNegZero
	OpFPNaN

	OpFPEq
	OpFPNe
	OpFPLt
	OpFPGt
	OpFPLe
	OpFPGe

	OpFPAdd
	OpFPSub
	OpFPMul
	OpFPDiv
	OpFPMin
	OpFPMax

	OpFPNeg
	OpFPCeil
	OpFPFloor
	OpFPSqrt
	OpFPTrunc
	OpFPNearest

	OpFPIsZero
	OpFPIsInf
	OpFPIsNaN
	OpFPIsNeg
	OpFPIsPos
)

var opNames = map[Op]string{
	OpConst:    "const",
	OpVariable: "var",

	OpNot: "not",
	OpAnd: "and",
	OpOr:  "or",
	OpImp: "=>",
	OpEq:  "=",
	OpLt:  "<",
	OpLte: "<=",
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",

	OpBVUgt:   "bvugt",
	OpBVUge:   "bvuge",
	OpBVUlt:   "bvult",
	OpBVUle:   "bvule",
	OpBVSgt:   "bvsgt",
	OpBVSge:   "bvsge",
	OpBVSlt:   "bvslt",
	OpBVSle:   "bvsle",
	OpBVSaddo: "bvsaddo",

	OpBVNot:  "bvnot",
	OpBVNeg:  "bvneg",
	OpCls:    "cls",
	OpClz:    "clz",
	OpRev:    "rev",
	OpPopcnt: "popcnt",

	OpBVAdd:  "bvadd",
	OpBVSub:  "bvsub",
	OpBVMul:  "bvmul",
	OpBVSDiv: "bvsdiv",
	OpBVUDiv: "bvudiv",
	OpBVSRem: "bvsrem",
	OpBVURem: "bvurem",
	OpBVAnd:  "bvand",
	OpBVOr:   "bvor",
	OpBVXor:  "bvxor",
	OpBVShl:  "bvshl",
	OpBVLShr: "bvlshr",
	OpBVAShr: "bvashr",
	OpBVRotl: "rotl",
	OpBVRotr: "rotr",

	OpConditional: "if",

	OpBVZeroExt: "zero_ext",
	OpBVSignExt: "sign_ext",
	OpBVConvTo:  "conv_to",
	OpBVExtract: "extract",
	OpBVConcat:  "concat",
	OpInt2BV:    "int2bv",
	OpBV2Nat:    "bv2nat",
	OpWidthOf:   "widthof",

	OpToFP:         "to_fp",
	OpToFPUnsigned: "to_fp_unsigned",
	OpToFPFromFP:   "to_fp_from_fp",
	OpFPToUBV:      "fp.to_ubv",
	OpFPToSBV:      "fp.to_sbv",

	OpFPPosInf:  "fp.+oo",
	OpFPNegInf:  "fp.-oo",
	OpFPPosZero: "fp.+zero",
	OpFPNegZero: "fp.-zero",
	OpFPNaN:     "fp.nan",

	OpFPEq: "fp.eq",
	OpFPNe: "fp.ne",
	OpFPLt: "fp.lt",
	OpFPGt: "fp.gt",
	OpFPLe: "fp.le",
	OpFPGe: "fp.ge",

	OpFPAdd: "fp.add",
	OpFPSub: "fp.sub",
	OpFPMul: "fp.mul",
	OpFPDiv: "fp.div",
	OpFPMin: "fp.min",
	OpFPMax: "fp.max",

	OpFPNeg:     "fp.neg",
	OpFPCeil:    "fp.ceil",
	OpFPFloor:   "fp.floor",
	OpFPSqrt:    "fp.sqrt",
	OpFPTrunc:   "fp.trunc",
	OpFPNearest: "fp.nearest",

	OpFPIsZero: "fp.isZero",
	OpFPIsInf:  "fp.isInfinite",
	OpFPIsNaN:  "fp.isNaN",
	OpFPIsNeg:  "fp.isNegative",
	OpFPIsPos:  "fp.isPositive",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Expr is a node of the verification condition arena.
type Expr struct {
	Op    Op
	Args  []ExprID
	Const types.Const
	Var   VariableID
	// Hi and Lo are the bit range of OpBVExtract.
	Hi, Lo int
	// Fresh distinguishes otherwise identical impure nodes.
	Fresh int
}

// IsPure reports whether identical nodes may be shared. conv_to widens
// with unconstrained padding, so two conversions of the same value differ.
func (e *Expr) IsPure() bool {
	return e.Op != OpBVConvTo
}

func (e *Expr) key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|", e.Op)
	for _, a := range e.Args {
		fmt.Fprintf(&sb, "%d,", a)
	}
	switch e.Op {
	case OpConst:
		fmt.Fprintf(&sb, "|%d:%s", e.Const.Kind, e.Const)
	case OpVariable:
		fmt.Fprintf(&sb, "|v%d", e.Var)
	case OpBVExtract:
		fmt.Fprintf(&sb, "|%d:%d", e.Hi, e.Lo)
	}
	if !e.IsPure() {
		fmt.Fprintf(&sb, "|#%d", e.Fresh)
	}
	return sb.String()
}
