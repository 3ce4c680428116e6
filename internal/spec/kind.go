package spec

// Kind is the closed set of specification expression forms.
type Kind int

const (
	Var Kind = iota
	Lit
	ConstRef
	Field
	Discriminator
	StructLit
	Construct
	As
	If
	Cases
	Let
	With
	MacroCall

	Not
	And
	Or
	Imp
	Eq
	Lt
	Lte
	Gt
	Gte
	Add
	Sub
	Mul

	BVUlt
	BVUle
	BVUgt
	BVUge
	BVSlt
	BVSle
	BVSgt
	BVSge
	BVSaddo

	BVNot
	BVNeg
	Cls
	Clz
	Rev
	Popcnt

	BVAdd
	BVSub
	BVMul
	BVSDiv
	BVUDiv
	BVSRem
	BVURem
	BVAnd
	BVOr
	BVXor
	BVShl
	BVLShr
	BVAShr
	Rotl
	Rotr

	ZeroExt
	SignExt
	ConvTo
	Extract
	Concat
	Replicate
	Int2BV
	BV2Nat
	WidthOf

	ToFP
	ToFPUnsigned
	ToFPFromFP
	FPToUBV
	FPToSBV

	FPPosInf
	FPNegInf
	FPPosZero
	FPNegZero
	FPNaN

	FPEq
	FPNe
	FPLt
	FPGt
	FPLe
	FPGe

	FPAdd
	FPSub
	FPMul
	FPDiv
	FPMin
	FPMax

	FPNeg
	FPCeil
	FPFloor
	FPSqrt
	FPTrunc
	FPNearest

	FPIsZero
	FPIsInf
	FPIsNaN
	FPIsNeg
	FPIsPos
)

const variadic = -1

type opInfo struct {
	kind  Kind
	arity int
}

// operators maps surface names to operator kinds. Forms with special
// syntax (if, let, match, extract, ...) are handled by the parser.
var operators = map[string]opInfo{
	"not": {Not, 1},
	"and": {And, variadic},
	"or":  {Or, variadic},
	"=>":  {Imp, 2},
	"=":   {Eq, 2},
	"<":   {Lt, 2},
	"<=":  {Lte, 2},
	">":   {Gt, 2},
	">=":  {Gte, 2},
	"+":   {Add, 2},
	"-":   {Sub, 2},
	"*":   {Mul, 2},

	"bvult":   {BVUlt, 2},
	"bvule":   {BVUle, 2},
	"bvugt":   {BVUgt, 2},
	"bvuge":   {BVUge, 2},
	"bvslt":   {BVSlt, 2},
	"bvsle":   {BVSle, 2},
	"bvsgt":   {BVSgt, 2},
	"bvsge":   {BVSge, 2},
	"bvsaddo": {BVSaddo, 2},

	"bvnot":  {BVNot, 1},
	"bvneg":  {BVNeg, 1},
	"cls":    {Cls, 1},
	"clz":    {Clz, 1},
	"rev":    {Rev, 1},
	"popcnt": {Popcnt, 1},

	"bvadd":  {BVAdd, 2},
	"bvsub":  {BVSub, 2},
	"bvmul":  {BVMul, 2},
	"bvsdiv": {BVSDiv, 2},
	"bvudiv": {BVUDiv, 2},
	"bvsrem": {BVSRem, 2},
	"bvurem": {BVURem, 2},
	"bvand":  {BVAnd, 2},
	"bvor":   {BVOr, 2},
	"bvxor":  {BVXor, 2},
	"bvshl":  {BVShl, 2},
	"bvlshr": {BVLShr, 2},
	"bvashr": {BVAShr, 2},
	"rotl":   {Rotl, 2},
	"rotr":   {Rotr, 2},

	"zero_ext": {ZeroExt, 2},
	"sign_ext": {SignExt, 2},
	"conv_to":  {ConvTo, 2},
	"concat":   {Concat, variadic},
	"int2bv":   {Int2BV, 2},
	"bv2nat":   {BV2Nat, 1},
	"widthof":  {WidthOf, 1},

	"to_fp":          {ToFP, 2},
	"to_fp_unsigned": {ToFPUnsigned, 2},
	"to_fp_from_fp":  {ToFPFromFP, 2},
	"fp.to_ubv":      {FPToUBV, 2},
	"fp.to_sbv":      {FPToSBV, 2},

	"fp.+oo":   {FPPosInf, 1},
	"fp.-oo":   {FPNegInf, 1},
	"fp.+zero": {FPPosZero, 1},
	"fp.-zero": {FPNegZero, 1},
	"fp.nan":   {FPNaN, 1},

	"fp.eq": {FPEq, 2},
	"fp.ne": {FPNe, 2},
	"fp.lt": {FPLt, 2},
	"fp.gt": {FPGt, 2},
	"fp.le": {FPLe, 2},
	"fp.ge": {FPGe, 2},

	"fp.add": {FPAdd, 2},
	"fp.sub": {FPSub, 2},
	"fp.mul": {FPMul, 2},
	"fp.div": {FPDiv, 2},
	"fp.min": {FPMin, 2},
	"fp.max": {FPMax, 2},

	"fp.neg":     {FPNeg, 1},
	"fp.ceil":    {FPCeil, 1},
	"fp.floor":   {FPFloor, 1},
	"fp.sqrt":    {FPSqrt, 1},
	"fp.trunc":   {FPTrunc, 1},
	"fp.nearest": {FPNearest, 1},

	"fp.isZero":     {FPIsZero, 1},
	"fp.isInfinite": {FPIsInf, 1},
	"fp.isNaN":      {FPIsNaN, 1},
	"fp.isNegative": {FPIsNeg, 1},
	"fp.isPositive": {FPIsPos, 1},
}

var kindNames = func() map[Kind]string {
	names := map[Kind]string{
		Extract:   "extract",
		Replicate: "replicate",
	}
	for name, info := range operators {
		names[info.kind] = name
	}
	return names
}()

// IsOperator reports whether k is a primitive operator.
func (k Kind) IsOperator() bool {
	return k >= Not
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	switch k {
	case Var:
		return "var"
	case Lit:
		return "lit"
	case ConstRef:
		return "const"
	case Field:
		return "field"
	case Discriminator:
		return "discriminator"
	case StructLit:
		return "struct"
	case Construct:
		return "construct"
	case As:
		return "as"
	case If:
		return "if"
	case Cases:
		return "cases"
	case Let:
		return "let"
	case With:
		return "with"
	case MacroCall:
		return "macro"
	}
	return "unknown"
}
