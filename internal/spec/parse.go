package spec

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
)

// ParseExprString parses a specification expression from source text.
func ParseExprString(file, src string) (*Expr, error) {
	s, err := sexp.ParseFile(file, src)
	if err != nil {
		return nil, err
	}
	return ParseExpr(s)
}

// ParseExpr converts an s-expression into a specification expression.
func ParseExpr(s sexp.SExp) (*Expr, error) {
	switch s := s.(type) {
	case *sexp.Atom:
		return parseAtom(s)
	case *sexp.List:
		return parseList(s)
	}
	return nil, errors.Errorf("unexpected s-expression %T", s)
}

func parseAtom(a *sexp.Atom) (*Expr, error) {
	v := a.Value
	if isLiteral(v) {
		c, err := types.ParseLiteral(v)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", a.Pos)
		}
		return &Expr{Kind: Lit, Value: c, Pos: a.Pos}, nil
	}
	if strings.HasPrefix(v, "$") && len(v) > 1 {
		return &Expr{Kind: ConstRef, Name: v[1:], Pos: a.Pos}, nil
	}
	if enum, variant, ok := splitVariant(v); ok {
		return &Expr{Kind: Construct, Enum: enum, Name: variant, Pos: a.Pos}, nil
	}
	return &Expr{Kind: Var, Name: v, Pos: a.Pos}, nil
}

func isLiteral(v string) bool {
	if v == "true" || v == "false" || strings.HasPrefix(v, "#x") || strings.HasPrefix(v, "#b") {
		return true
	}
	if v == "" {
		return false
	}
	c := v[0]
	if c == '-' && len(v) > 1 {
		c = v[1]
	}
	return c >= '0' && c <= '9'
}

// splitVariant splits Enum.Variant names. Operator names with dots (fp.*)
// are not variants.
func splitVariant(v string) (string, string, bool) {
	if _, ok := operators[v]; ok {
		return "", "", false
	}
	i := strings.LastIndex(v, ".")
	if i <= 0 || i == len(v)-1 {
		return "", "", false
	}
	return v[:i], v[i+1:], true
}

func parseList(l *sexp.List) (*Expr, error) {
	if len(l.Items) == 0 {
		return nil, errors.Errorf("%s: empty expression", l.Pos)
	}
	head, ok := sexp.AsAtom(l.Items[0])
	if !ok {
		return nil, errors.Errorf("%s: expression head must be a symbol", l.Pos)
	}
	args := l.Tail()
	e := &Expr{Pos: l.Pos}

	switch head {
	case "if":
		if len(args) != 3 {
			return nil, errors.Errorf("%s: if takes 3 arguments", l.Pos)
		}
		e.Kind = If
		return parseArgs(e, args)

	case "let":
		return parseLet(l, args)

	case "with":
		if len(args) != 2 {
			return nil, errors.Errorf("%s: with takes a variable list and a body", l.Pos)
		}
		vars, ok := sexp.AsList(args[0])
		if !ok {
			return nil, errors.Errorf("%s: with expects a variable list", l.Pos)
		}
		e.Kind = With
		for _, v := range vars.Items {
			name, ok := sexp.AsAtom(v)
			if !ok {
				return nil, errors.Errorf("%s: with variable must be a symbol", v.Position())
			}
			e.Vars = append(e.Vars, name)
		}
		return parseArgs(e, args[1:])

	case "switch", "match":
		return parseCases(l, head == "match", args)

	case "as":
		if len(args) != 2 {
			return nil, errors.Errorf("%s: as takes an expression and a type", l.Pos)
		}
		t, err := ParseType(args[1])
		if err != nil {
			return nil, err
		}
		e.Kind = As
		e.Type = t
		return parseArgs(e, args[:1])

	case "extract":
		if len(args) != 3 {
			return nil, errors.Errorf("%s: extract takes high, low and an expression", l.Pos)
		}
		hi, err := intAtom(args[0])
		if err != nil {
			return nil, err
		}
		lo, err := intAtom(args[1])
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, errors.Errorf("%s: extract high bit %d below low bit %d", l.Pos, hi, lo)
		}
		e.Kind, e.Hi, e.Lo = Extract, hi, lo
		return parseArgs(e, args[2:])

	case "replicate":
		if len(args) != 2 {
			return nil, errors.Errorf("%s: replicate takes an expression and a count", l.Pos)
		}
		n, err := intAtom(args[1])
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, errors.Errorf("%s: replicate count must be positive", l.Pos)
		}
		e.Kind, e.Hi = Replicate, n
		return parseArgs(e, args[:1])

	case "struct":
		e.Kind = StructLit
		for _, f := range args {
			fl, ok := sexp.AsList(f)
			if !ok || fl.Len() != 2 || fl.Head() == "" {
				return nil, errors.Errorf("%s: struct field must be (name expr)", f.Position())
			}
			v, err := ParseExpr(fl.Items[1])
			if err != nil {
				return nil, err
			}
			e.Fields = append(e.Fields, FieldInit{Name: fl.Head(), Value: v})
		}
		return e, nil
	}

	if strings.HasPrefix(head, ":") && len(head) > 1 {
		if len(args) != 1 {
			return nil, errors.Errorf("%s: field access takes one argument", l.Pos)
		}
		e.Kind, e.Name = Field, head[1:]
		return parseArgs(e, args)
	}
	if strings.HasPrefix(head, "?") && len(head) > 1 {
		if len(args) != 1 {
			return nil, errors.Errorf("%s: discriminator takes one argument", l.Pos)
		}
		e.Kind = Discriminator
		if enum, variant, ok := splitVariant(head[1:]); ok {
			e.Enum, e.Name = enum, variant
		} else {
			e.Name = head[1:]
		}
		return parseArgs(e, args)
	}
	if info, ok := operators[head]; ok {
		if info.arity == variadic {
			if len(args) == 0 && info.kind == Concat {
				return nil, errors.Errorf("%s: concat needs arguments", l.Pos)
			}
		} else if len(args) != info.arity {
			return nil, errors.Errorf("%s: %s takes %d arguments, got %d", l.Pos, head, info.arity, len(args))
		}
		e.Kind = info.kind
		return parseArgs(e, args)
	}
	if enum, variant, ok := splitVariant(head); ok {
		e.Kind, e.Enum, e.Name = Construct, enum, variant
		return parseArgs(e, args)
	}

	e.Kind, e.Name = MacroCall, head
	return parseArgs(e, args)
}

func parseArgs(e *Expr, args []sexp.SExp) (*Expr, error) {
	for _, a := range args {
		x, err := ParseExpr(a)
		if err != nil {
			return nil, err
		}
		e.Args = append(e.Args, x)
	}
	return e, nil
}

func parseLet(l *sexp.List, args []sexp.SExp) (*Expr, error) {
	if len(args) != 2 {
		return nil, errors.Errorf("%s: let takes a binding list and a body", l.Pos)
	}
	binds, ok := sexp.AsList(args[0])
	if !ok {
		return nil, errors.Errorf("%s: let expects a binding list", l.Pos)
	}
	e := &Expr{Kind: Let, Pos: l.Pos}
	for _, b := range binds.Items {
		bl, ok := sexp.AsList(b)
		if !ok || bl.Len() != 2 || bl.Head() == "" {
			return nil, errors.Errorf("%s: let binding must be (name expr)", b.Position())
		}
		v, err := ParseExpr(bl.Items[1])
		if err != nil {
			return nil, err
		}
		e.Bindings = append(e.Bindings, Binding{Name: bl.Head(), Value: v})
	}
	return parseArgs(e, args[1:])
}

// parseCases reads both match (variant keyed) and switch (value keyed)
// into a single Cases node.
func parseCases(l *sexp.List, byVariant bool, args []sexp.SExp) (*Expr, error) {
	if len(args) < 2 {
		return nil, errors.Errorf("%s: %s needs a scrutinee and at least one arm", l.Pos, l.Head())
	}
	on, err := ParseExpr(args[0])
	if err != nil {
		return nil, err
	}
	e := &Expr{Kind: Cases, Pos: l.Pos, ByVariant: byVariant, Args: []*Expr{on}}
	for _, a := range args[1:] {
		al, ok := sexp.AsList(a)
		if !ok || al.Len() != 2 {
			return nil, errors.Errorf("%s: case arm must be (pattern body)", a.Position())
		}
		body, err := ParseExpr(al.Items[1])
		if err != nil {
			return nil, err
		}
		arm := Arm{Body: body}
		pat := al.Items[0]
		switch {
		case sexp.IsAtom(pat, "_"):
			arm.Wildcard = true
		case byVariant:
			arm.Variant, arm.Binds, err = parseVariantPattern(pat)
			if err != nil {
				return nil, err
			}
		default:
			if arm.Key, err = ParseExpr(pat); err != nil {
				return nil, err
			}
		}
		e.Arms = append(e.Arms, arm)
	}
	return e, nil
}

func parseVariantPattern(pat sexp.SExp) (string, []string, error) {
	if name, ok := sexp.AsAtom(pat); ok {
		return variantName(name), nil, nil
	}
	pl, _ := sexp.AsList(pat)
	if pl.Head() == "" {
		return "", nil, errors.Errorf("%s: variant pattern must start with a variant name", pat.Position())
	}
	var binds []string
	for _, b := range pl.Tail() {
		name, ok := sexp.AsAtom(b)
		if !ok {
			return "", nil, errors.Errorf("%s: variant pattern binds plain names only", b.Position())
		}
		binds = append(binds, name)
	}
	return variantName(pl.Head()), binds, nil
}

func variantName(v string) string {
	if _, variant, ok := splitVariant(v); ok {
		return variant
	}
	return v
}

func intAtom(s sexp.SExp) (int, error) {
	v, ok := sexp.AsAtom(s)
	if !ok {
		return 0, errors.Errorf("%s: expected integer", s.Position())
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Errorf("%s: expected integer, got %q", s.Position(), v)
	}
	return n, nil
}

// ParseType reads a verification type:
//
//	Int | Bool | Unit | Unspecified | Auto | bv | (bv) | (bv N)
//	(struct (name type)...) | (enum (Variant (name type)...)...) | Name
func ParseType(s sexp.SExp) (types.Compound, error) {
	if a, ok := s.(*sexp.Atom); ok {
		switch a.Value {
		case "Int":
			return types.Prim(types.Int), nil
		case "Bool":
			return types.Prim(types.Bool), nil
		case "Unit":
			return types.Prim(types.Unit), nil
		case "Unspecified":
			return types.Prim(types.Unspecified), nil
		case "Auto":
			return types.Prim(types.Unknown), nil
		case "bv":
			return types.Prim(types.BitVectorUnknown()), nil
		}
		return &types.Named{Name: a.Value}, nil
	}
	l := s.(*sexp.List)
	switch l.Head() {
	case "bv":
		switch l.Len() {
		case 1:
			return types.Prim(types.BitVectorUnknown()), nil
		case 2:
			w, err := intAtom(l.Items[1])
			if err != nil {
				return nil, err
			}
			if w < 1 {
				return nil, errors.Errorf("%s: bit-vector width must be positive", l.Pos)
			}
			return types.Prim(types.BitVector(w)), nil
		}
	case "struct":
		fields, err := parseFieldTypes(l.Tail())
		if err != nil {
			return nil, err
		}
		return &types.Struct{Fields: fields}, nil
	case "enum":
		e := &types.Enum{}
		for _, v := range l.Tail() {
			if name, ok := sexp.AsAtom(v); ok {
				e.Variants = append(e.Variants, types.Variant{Name: name})
				continue
			}
			vl := v.(*sexp.List)
			if vl.Head() == "" {
				return nil, errors.Errorf("%s: enum variant must be named", v.Position())
			}
			fields, err := parseFieldTypes(vl.Tail())
			if err != nil {
				return nil, err
			}
			e.Variants = append(e.Variants, types.Variant{Name: vl.Head(), Fields: fields})
		}
		return e, nil
	}
	return nil, errors.Errorf("%s: invalid type %s", l.Pos, l)
}

func parseFieldTypes(items []sexp.SExp) ([]types.Field, error) {
	var fields []types.Field
	for _, f := range items {
		fl, ok := sexp.AsList(f)
		if !ok || fl.Len() != 2 || fl.Head() == "" {
			return nil, errors.Errorf("%s: field must be (name type)", f.Position())
		}
		t, err := ParseType(fl.Items[1])
		if err != nil {
			return nil, err
		}
		fields = append(fields, types.Field{Name: fl.Head(), Type: t})
	}
	return fields, nil
}

// ParseTypeString parses a type from source text.
func ParseTypeString(src string) (types.Compound, error) {
	s, err := sexp.Parse(src)
	if err != nil {
		return nil, err
	}
	return ParseType(s)
}
