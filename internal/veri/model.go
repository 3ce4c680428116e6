package veri

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"ruleveri/internal/types"
)

// Model assigns concrete values to arena expressions.
type Model map[ExprID]types.Const

// Value is a concrete structured value read back from a model.
type Value interface {
	String() string
}

type ScalarValue struct {
	Const types.Const
}

type FieldValue struct {
	Name  string
	Value Value
}

type StructValue struct {
	Fields []FieldValue
}

type EnumValue struct {
	Type    string
	Variant string
	Payload *StructValue
}

// OptionValue is None when Inner is nil.
type OptionValue struct {
	Inner Value
}

type TupleValue struct {
	Elems []Value
}

func (v ScalarValue) String() string { return v.Const.String() }

func (v *StructValue) String() string {
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (v *EnumValue) String() string {
	if len(v.Payload.Fields) == 0 {
		return v.Type + "." + v.Variant
	}
	return v.Type + "." + v.Variant + " " + v.Payload.String()
}

func (v *OptionValue) String() string {
	if v.Inner == nil {
		return "None"
	}
	return "Some(" + v.Inner.String() + ")"
}

func (v *TupleValue) String() string {
	parts := make([]string, len(v.Elems))
	for i, e := range v.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (m Model) scalar(id ExprID) (types.Const, error) {
	c, ok := m[id]
	if !ok {
		return types.Const{}, errors.Errorf("model has no value for e%d", id)
	}
	return c, nil
}

// Eval reads a symbolic value back from the model. Only the payload of
// the selected enum variant is read.
func (m Model) Eval(s Symbolic) (Value, error) {
	switch s := s.(type) {
	case *Scalar:
		c, err := m.scalar(s.ID)
		if err != nil {
			return nil, err
		}
		return ScalarValue{Const: c}, nil
	case *Struct:
		out := &StructValue{}
		for _, f := range s.Fields {
			v, err := m.Eval(f.Value)
			if err != nil {
				return nil, err
			}
			out.Fields = append(out.Fields, FieldValue{Name: f.Name, Value: v})
		}
		return out, nil
	case *Enum:
		d, err := m.scalar(s.Discriminant)
		if err != nil {
			return nil, err
		}
		if d.Kind != types.ConstInt || !d.Value.IsInt64() {
			return nil, errors.Errorf("discriminant of %s is %s", s.Type, d)
		}
		n := int(d.Value.Int64())
		for _, v := range s.Variants {
			if v.Discriminant != n {
				continue
			}
			payload, err := m.Eval(v.Value)
			if err != nil {
				return nil, err
			}
			return &EnumValue{Type: s.Type, Variant: v.Name, Payload: payload.(*StructValue)}, nil
		}
		return nil, errors.Errorf("discriminant %d out of range for %s", n, s.Type)
	case *Option:
		some, err := m.scalar(s.Some)
		if err != nil {
			return nil, err
		}
		if !some.Bool {
			return &OptionValue{}, nil
		}
		inner, err := m.Eval(s.Inner)
		if err != nil {
			return nil, err
		}
		return &OptionValue{Inner: inner}, nil
	case *Tuple:
		out := &TupleValue{}
		for _, e := range s.Elems {
			v, err := m.Eval(e)
			if err != nil {
				return nil, err
			}
			out.Elems = append(out.Elems, v)
		}
		return out, nil
	}
	return nil, errors.Errorf("cannot evaluate %v", s)
}

// ModelExprs lists the expressions a counterexample printout reads.
func (c *Conditions) ModelExprs() []ExprID {
	var out []ExprID
	seen := map[ExprID]bool{}
	add := func(s Symbolic) {
		for _, id := range Scalars(s) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	for _, call := range c.Calls {
		for _, a := range call.Args {
			add(a)
		}
		add(call.Ret)
	}
	if c.Result != nil {
		add(c.Result)
	}
	for _, name := range c.StateOrder {
		add(c.State[name])
	}
	return out
}

// PrintModel writes the calls of a counterexample with their concrete
// arguments and results. Nullary variant constructors are omitted and
// values the model does not cover print as "?".
func (c *Conditions) PrintModel(w io.Writer, m Model) error {
	show := func(s Symbolic) string {
		v, err := m.Eval(s)
		if err != nil {
			return "?"
		}
		return v.String()
	}
	for _, name := range c.StateOrder {
		if _, err := fmt.Fprintf(w, "%s = %s\n", name, show(c.State[name])); err != nil {
			return errors.Wrap(err, "print model")
		}
	}
	for _, call := range c.Calls {
		if call.Variant && len(call.Args) == 0 {
			continue
		}
		args := make([]string, len(call.Args))
		for i, a := range call.Args {
			args[i] = show(a)
		}
		if _, err := fmt.Fprintf(w, "(%s %s) -> %s\n", call.Term, strings.Join(args, " "), show(call.Ret)); err != nil {
			return errors.Wrap(err, "print model")
		}
	}
	return nil
}
