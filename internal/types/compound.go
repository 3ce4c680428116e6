package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Compound is the model of a rule-language type. It is one of
// *Primitive, *Struct, *Enum or *Named.
type Compound interface {
	compound()
	String() string
}

type Primitive struct {
	Type Type
}

type Field struct {
	Name string
	Type Compound
}

type Struct struct {
	Fields []Field
}

type Variant struct {
	Name   string
	Fields []Field
}

// Enum models a tagged union. Variant order defines discriminants.
type Enum struct {
	Name     string
	Variants []Variant
}

// Named refers to another model by type name.
type Named struct {
	Name string
}

func (*Primitive) compound() {}
func (*Struct) compound()    {}
func (*Enum) compound()      {}
func (*Named) compound()     {}

func Prim(t Type) *Primitive { return &Primitive{Type: t} }

func (p *Primitive) String() string { return p.Type.String() }

func (s *Struct) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("(%s %s)", f.Name, f.Type)
	}
	return "(struct " + strings.Join(parts, " ") + ")"
}

func (s *Struct) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (e *Enum) String() string { return e.Name }

// Discriminant returns the index of the named variant.
func (e *Enum) Discriminant(name string) (int, bool) {
	for i, v := range e.Variants {
		if v.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (n *Named) String() string { return n.Name }

// Lookup resolves a type name to its model.
type Lookup func(name string) (Compound, bool)

// Resolve replaces Named references, recursively, using lookup.
func Resolve(c Compound, lookup Lookup) (Compound, error) {
	return resolve(c, lookup, map[string]bool{})
}

func resolve(c Compound, lookup Lookup, visiting map[string]bool) (Compound, error) {
	switch c := c.(type) {
	case *Primitive:
		return c, nil
	case *Named:
		if visiting[c.Name] {
			return nil, errors.Errorf("recursive type model %s", c.Name)
		}
		target, ok := lookup(c.Name)
		if !ok {
			return nil, errors.Errorf("no model for type %s", c.Name)
		}
		visiting[c.Name] = true
		defer delete(visiting, c.Name)
		return resolve(target, lookup, visiting)
	case *Struct:
		fields, err := resolveFields(c.Fields, lookup, visiting)
		if err != nil {
			return nil, err
		}
		return &Struct{Fields: fields}, nil
	case *Enum:
		variants := make([]Variant, len(c.Variants))
		for i, v := range c.Variants {
			fields, err := resolveFields(v.Fields, lookup, visiting)
			if err != nil {
				return nil, errors.Wrapf(err, "variant %s.%s", c.Name, v.Name)
			}
			variants[i] = Variant{Name: v.Name, Fields: fields}
		}
		return &Enum{Name: c.Name, Variants: variants}, nil
	}
	return nil, errors.Errorf("unknown compound type %T", c)
}

func resolveFields(fields []Field, lookup Lookup, visiting map[string]bool) ([]Field, error) {
	out := make([]Field, len(fields))
	for i, f := range fields {
		t, err := resolve(f.Type, lookup, visiting)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", f.Name)
		}
		out[i] = Field{Name: f.Name, Type: t}
	}
	return out, nil
}

// Equal reports structural equality of two compound types. Named types
// compare by name.
func Equal(a, b Compound) bool {
	switch a := a.(type) {
	case *Primitive:
		b, ok := b.(*Primitive)
		return ok && a.Type == b.Type
	case *Named:
		b, ok := b.(*Named)
		return ok && a.Name == b.Name
	case *Struct:
		b, ok := b.(*Struct)
		return ok && fieldsEqual(a.Fields, b.Fields)
	case *Enum:
		b, ok := b.(*Enum)
		if !ok || a.Name != b.Name || len(a.Variants) != len(b.Variants) {
			return false
		}
		for i := range a.Variants {
			if a.Variants[i].Name != b.Variants[i].Name || !fieldsEqual(a.Variants[i].Fields, b.Variants[i].Fields) {
				return false
			}
		}
		return true
	}
	return false
}

func fieldsEqual(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !Equal(a[i].Type, b[i].Type) {
			return false
		}
	}
	return true
}
