// Package spec holds the specification language: expression trees, the
// macro expander and the specification database.
package spec

import (
	"fmt"
	"strings"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
)

// Expr is a specification expression node. Which fields are meaningful
// depends on Kind:
//
//	Var, ConstRef, MacroCall   Name
//	Lit                        Value
//	Field                      Name (field), Args[0]
//	Discriminator              Name (variant), Enum, Args[0]
//	StructLit                  Fields
//	Construct                  Enum, Name (variant), Args
//	As                         Args[0], Type
//	Cases                      Args[0] (scrutinee), Arms, ByVariant
//	Let                        Bindings, Args[0] (body)
//	With                       Vars, Args[0] (body)
//	Extract                    Hi, Lo, Args[0]
//	Replicate                  Hi (count), Args[0]
type Expr struct {
	Kind      Kind
	Pos       sexp.Pos
	Name      string
	Enum      string
	Value     types.Const
	Hi, Lo    int
	Type      types.Compound
	Args      []*Expr
	Bindings  []Binding
	Vars      []string
	Fields    []FieldInit
	Arms      []Arm
	ByVariant bool
}

type Binding struct {
	Name  string
	Value *Expr
}

type FieldInit struct {
	Name  string
	Value *Expr
}

// Arm is one case of a Cases expression. Variant-keyed arms bind the
// variant's fields positionally; value-keyed arms compare against Key.
type Arm struct {
	Variant  string
	Binds    []string
	Key      *Expr
	Wildcard bool
	Body     *Expr
}

// Children returns every direct sub-expression, in evaluation order.
func (e *Expr) Children() []*Expr {
	var out []*Expr
	switch e.Kind {
	case Let:
		for _, b := range e.Bindings {
			out = append(out, b.Value)
		}
		return append(out, e.Args...)
	case StructLit:
		for _, f := range e.Fields {
			out = append(out, f.Value)
		}
		return out
	case Cases:
		out = append(out, e.Args...)
		for _, a := range e.Arms {
			if a.Key != nil {
				out = append(out, a.Key)
			}
			out = append(out, a.Body)
		}
		return out
	}
	return e.Args
}

// Walk visits e and its sub-expressions depth first. Returning false from
// fn skips the children of the visited node.
func Walk(e *Expr, fn func(*Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range e.Children() {
		Walk(c, fn)
	}
}

// MapChildren returns a shallow copy of e with every sub-expression
// replaced by fn's result.
func MapChildren(e *Expr, fn func(*Expr) (*Expr, error)) (*Expr, error) {
	out := *e
	var err error
	if len(e.Args) > 0 {
		out.Args = make([]*Expr, len(e.Args))
		for i, a := range e.Args {
			if out.Args[i], err = fn(a); err != nil {
				return nil, err
			}
		}
	}
	if len(e.Bindings) > 0 {
		out.Bindings = make([]Binding, len(e.Bindings))
		for i, b := range e.Bindings {
			v, err := fn(b.Value)
			if err != nil {
				return nil, err
			}
			out.Bindings[i] = Binding{Name: b.Name, Value: v}
		}
	}
	if len(e.Fields) > 0 {
		out.Fields = make([]FieldInit, len(e.Fields))
		for i, f := range e.Fields {
			v, err := fn(f.Value)
			if err != nil {
				return nil, err
			}
			out.Fields[i] = FieldInit{Name: f.Name, Value: v}
		}
	}
	if len(e.Arms) > 0 {
		out.Arms = make([]Arm, len(e.Arms))
		for i, a := range e.Arms {
			arm := a
			if a.Key != nil {
				if arm.Key, err = fn(a.Key); err != nil {
					return nil, err
				}
			}
			if arm.Body, err = fn(a.Body); err != nil {
				return nil, err
			}
			out.Arms[i] = arm
		}
	}
	return &out, nil
}

// String renders the expression back into surface syntax.
func (e *Expr) String() string {
	switch e.Kind {
	case Var, ConstRef:
		if e.Kind == ConstRef {
			return "$" + e.Name
		}
		return e.Name
	case Lit:
		return e.Value.String()
	case Field:
		return fmt.Sprintf("(:%s %s)", e.Name, e.Args[0])
	case Discriminator:
		return fmt.Sprintf("(?%s %s)", qualify(e.Enum, e.Name), e.Args[0])
	case StructLit:
		parts := []string{"struct"}
		for _, f := range e.Fields {
			parts = append(parts, fmt.Sprintf("(%s %s)", f.Name, f.Value))
		}
		return "(" + strings.Join(parts, " ") + ")"
	case Construct:
		return list(qualify(e.Enum, e.Name), e.Args)
	case As:
		return fmt.Sprintf("(as %s %s)", e.Args[0], e.Type)
	case Extract:
		return fmt.Sprintf("(extract %d %d %s)", e.Hi, e.Lo, e.Args[0])
	case Replicate:
		return fmt.Sprintf("(replicate %s %d)", e.Args[0], e.Hi)
	case Let:
		parts := make([]string, len(e.Bindings))
		for i, b := range e.Bindings {
			parts[i] = fmt.Sprintf("(%s %s)", b.Name, b.Value)
		}
		return fmt.Sprintf("(let (%s) %s)", strings.Join(parts, " "), e.Args[0])
	case With:
		return fmt.Sprintf("(with (%s) %s)", strings.Join(e.Vars, " "), e.Args[0])
	case Cases:
		head := "switch"
		if e.ByVariant {
			head = "match"
		}
		parts := []string{head, e.Args[0].String()}
		for _, a := range e.Arms {
			var pat string
			switch {
			case a.Wildcard:
				pat = "_"
			case e.ByVariant:
				pat = "(" + strings.Join(append([]string{a.Variant}, a.Binds...), " ") + ")"
			default:
				pat = a.Key.String()
			}
			parts = append(parts, fmt.Sprintf("(%s %s)", pat, a.Body))
		}
		return "(" + strings.Join(parts, " ") + ")"
	case MacroCall:
		return list(e.Name, e.Args)
	}
	return list(e.Kind.String(), e.Args)
}

func qualify(enum, variant string) string {
	if enum == "" {
		return variant
	}
	return enum + "." + variant
}

func list(head string, args []*Expr) string {
	parts := []string{head}
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}
