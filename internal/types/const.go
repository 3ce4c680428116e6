package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
)

type ConstKind int

const (
	ConstBool ConstKind = iota
	ConstInt
	ConstBitVector
	// ConstUnspecified is an abstract solver value of the Unspecified sort.
	ConstUnspecified
)

// Const is a literal value. Bit-vector values are kept normalized to
// [0, 2^Width).
type Const struct {
	Kind  ConstKind
	Bool  bool
	Value *big.Int
	Width int
	Label string
}

func BoolConst(b bool) Const {
	return Const{Kind: ConstBool, Bool: b}
}

func IntConst(v *big.Int) Const {
	return Const{Kind: ConstInt, Value: new(big.Int).Set(v)}
}

func IntConstInt64(v int64) Const {
	return Const{Kind: ConstInt, Value: big.NewInt(v)}
}

// BitVectorConst wraps v into w bits, two's complement for negatives.
func BitVectorConst(w int, v *big.Int) Const {
	return Const{Kind: ConstBitVector, Width: w, Value: Wrap(v, w)}
}

func BitVectorConstInt64(w int, v int64) Const {
	return BitVectorConst(w, big.NewInt(v))
}

func UnspecifiedConst(label string) Const {
	return Const{Kind: ConstUnspecified, Label: label}
}

// Modulus returns 2^w.
func Modulus(w int) *big.Int {
	return math.BigPow(2, int64(w))
}

// Wrap reduces v modulo 2^w into the unsigned range.
func Wrap(v *big.Int, w int) *big.Int {
	m := Modulus(w)
	r := new(big.Int).Mod(v, m)
	return r
}

// FitsWidth reports whether v is representable in w bits, either as an
// unsigned or a two's complement signed value.
func FitsWidth(v *big.Int, w int) bool {
	m := Modulus(w)
	if v.Sign() >= 0 {
		return v.Cmp(m) < 0
	}
	half := new(big.Int).Rsh(m, 1)
	return new(big.Int).Neg(v).Cmp(half) <= 0
}

// Type returns the primitive type of the constant.
func (c Const) Type() Type {
	switch c.Kind {
	case ConstBool:
		return Bool
	case ConstInt:
		return Int
	case ConstBitVector:
		return BitVector(c.Width)
	}
	return Unspecified
}

// Signed interprets a bit-vector constant as two's complement.
func (c Const) Signed() *big.Int {
	v := new(big.Int).Set(c.Value)
	if c.Width > 0 && v.Bit(c.Width-1) == 1 {
		v.Sub(v, Modulus(c.Width))
	}
	return v
}

func (c Const) Equal(d Const) bool {
	if c.Kind != d.Kind {
		return false
	}
	switch c.Kind {
	case ConstBool:
		return c.Bool == d.Bool
	case ConstInt:
		return c.Value.Cmp(d.Value) == 0
	case ConstBitVector:
		return c.Width == d.Width && c.Value.Cmp(d.Value) == 0
	}
	return c.Label == d.Label
}

// String renders the constant in SMT-LIB syntax. Bit-vectors use #x when
// the width is a multiple of four, #b otherwise.
func (c Const) String() string {
	switch c.Kind {
	case ConstBool:
		if c.Bool {
			return "true"
		}
		return "false"
	case ConstInt:
		if c.Value.Sign() < 0 {
			return fmt.Sprintf("(- %s)", new(big.Int).Neg(c.Value))
		}
		return c.Value.String()
	case ConstBitVector:
		if c.Width%4 == 0 {
			return "#x" + pad(c.Value.Text(16), c.Width/4)
		}
		return "#b" + pad(c.Value.Text(2), c.Width)
	}
	if c.Label == "" {
		return "?"
	}
	return c.Label
}

func pad(digits string, n int) string {
	if len(digits) >= n {
		return digits
	}
	return strings.Repeat("0", n-len(digits)) + digits
}

// ParseLiteral reads true, false, #x.., #b.. and decimal integers.
func ParseLiteral(s string) (Const, error) {
	switch {
	case s == "true":
		return BoolConst(true), nil
	case s == "false":
		return BoolConst(false), nil
	case strings.HasPrefix(s, "#x"):
		return parseBits(s[2:], 16, 4)
	case strings.HasPrefix(s, "#b"):
		return parseBits(s[2:], 2, 1)
	}
	digits := strings.ReplaceAll(s, "_", "")
	v, ok := new(big.Int).SetString(digits, 0)
	if !ok {
		return Const{}, errors.Errorf("invalid literal %q", s)
	}
	return IntConst(v), nil
}

func parseBits(digits string, base, bitsPerDigit int) (Const, error) {
	if digits == "" {
		return Const{}, errors.New("empty bit-vector literal")
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return Const{}, errors.Errorf("invalid bit-vector digits %q", digits)
	}
	return BitVectorConst(len(digits)*bitsPerDigit, v), nil
}
