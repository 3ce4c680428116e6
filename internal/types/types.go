// Package types models verification types: the primitive lattice used by
// inference, compound models of rule-language types, constants and term
// signatures.
package types

import (
	"fmt"
)

type Kind int

const (
	// KindUnspecified is the sort of values the specification leaves
	// uninterpreted.
	KindUnspecified Kind = iota
	// KindUnknown is the bottom of the lattice ("Auto").
	KindUnknown
	KindBitVector
	KindInt
	KindBool
	KindUnit
)

// UnknownWidth marks a bit-vector whose width is not yet resolved.
const UnknownWidth = -1

// Type is a primitive verification type.
type Type struct {
	Kind  Kind
	Width int
}

var (
	Unspecified = Type{Kind: KindUnspecified}
	Unknown     = Type{Kind: KindUnknown}
	Int         = Type{Kind: KindInt}
	Bool        = Type{Kind: KindBool}
	Unit        = Type{Kind: KindUnit}
)

// BitVector returns the bit-vector type of width w.
func BitVector(w int) Type {
	return Type{Kind: KindBitVector, Width: w}
}

// BitVectorUnknown is a bit-vector with unresolved width.
func BitVectorUnknown() Type {
	return Type{Kind: KindBitVector, Width: UnknownWidth}
}

func (t Type) IsBitVector() bool { return t.Kind == KindBitVector }

func (t Type) HasWidth() bool { return t.Kind == KindBitVector && t.Width >= 0 }

// IsConcrete reports whether the type is fully resolved.
func (t Type) IsConcrete() bool {
	switch t.Kind {
	case KindUnknown:
		return false
	case KindBitVector:
		return t.Width >= 0
	default:
		return true
	}
}

// Join returns the least upper bound of t and u in the partial order
// Unknown < BitVector(?) < BitVector(n); Unknown < Int, Bool, Unit.
// Unspecified is only comparable with itself and Unknown. ok is false
// when t and u conflict.
func (t Type) Join(u Type) (Type, bool) {
	if t == u {
		return t, true
	}
	if t.Kind == KindUnknown {
		return u, true
	}
	if u.Kind == KindUnknown {
		return t, true
	}
	if t.Kind != u.Kind {
		return Type{}, false
	}
	if t.Kind == KindBitVector {
		switch {
		case t.Width < 0:
			return u, true
		case u.Width < 0:
			return t, true
		}
	}
	return Type{}, false
}

// IsCompatibleWith reports whether t and u have a join.
func (t Type) IsCompatibleWith(u Type) bool {
	_, ok := t.Join(u)
	return ok
}

func (t Type) String() string {
	switch t.Kind {
	case KindUnspecified:
		return "Unspecified"
	case KindUnknown:
		return "Auto"
	case KindBitVector:
		if t.Width < 0 {
			return "(bv)"
		}
		return fmt.Sprintf("(bv %d)", t.Width)
	case KindInt:
		return "Int"
	case KindBool:
		return "Bool"
	case KindUnit:
		return "Unit"
	}
	return fmt.Sprintf("Type(%d)", int(t.Kind))
}
