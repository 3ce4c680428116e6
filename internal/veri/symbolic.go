package veri

import (
	"fmt"
	"strings"
)

// Symbolic is the structured value of a term argument or result. It is one
// of *Scalar, *Struct, *Enum, *Option or *Tuple.
type Symbolic interface {
	symbolic()
	String() string
}

type Scalar struct {
	ID ExprID
}

type SymField struct {
	Name  string
	Value Symbolic
}

type Struct struct {
	Fields []SymField
}

type SymVariant struct {
	Name         string
	Discriminant int
	Value        *Struct
}

// Enum is a tagged union: a discriminant plus a payload per variant. Only
// the payload selected by the discriminant is meaningful.
type Enum struct {
	Type         string
	Discriminant ExprID
	Variants     []SymVariant
}

// Option is the result of a partial term: Some holds when the term
// matched, and Inner is only meaningful then.
type Option struct {
	Some  ExprID
	Inner Symbolic
}

type Tuple struct {
	Elems []Symbolic
}

func (*Scalar) symbolic() {}
func (*Struct) symbolic() {}
func (*Enum) symbolic()   {}
func (*Option) symbolic() {}
func (*Tuple) symbolic()  {}

func (s *Scalar) String() string { return fmt.Sprintf("e%d", s.ID) }

func (s *Struct) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s *Struct) Field(name string) (Symbolic, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (e *Enum) String() string {
	parts := make([]string, len(e.Variants))
	for i, v := range e.Variants {
		parts[i] = fmt.Sprintf("%s: %s", v.Name, v.Value)
	}
	return fmt.Sprintf("%s[e%d]{%s}", e.Type, e.Discriminant, strings.Join(parts, ", "))
}

func (e *Enum) Variant(name string) (*SymVariant, bool) {
	for i := range e.Variants {
		if e.Variants[i].Name == name {
			return &e.Variants[i], true
		}
	}
	return nil, false
}

func (o *Option) String() string {
	return fmt.Sprintf("Option[e%d](%s)", o.Some, o.Inner)
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Scalars flattens a symbolic value into its scalar expressions.
func Scalars(s Symbolic) []ExprID {
	switch s := s.(type) {
	case *Scalar:
		return []ExprID{s.ID}
	case *Struct:
		var out []ExprID
		for _, f := range s.Fields {
			out = append(out, Scalars(f.Value)...)
		}
		return out
	case *Enum:
		out := []ExprID{s.Discriminant}
		for _, v := range s.Variants {
			out = append(out, Scalars(v.Value)...)
		}
		return out
	case *Option:
		return append([]ExprID{s.Some}, Scalars(s.Inner)...)
	case *Tuple:
		var out []ExprID
		for _, e := range s.Elems {
			out = append(out, Scalars(e)...)
		}
		return out
	}
	return nil
}
