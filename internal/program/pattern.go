package program

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"ruleveri/internal/sexp"
)

type PatternKind int

const (
	PVar PatternKind = iota
	PWildcard
	PInt
	PConst
	PTerm
	PVariant
	PAnd
)

// Pattern matches a value on the left-hand side of a rule. A variable
// occurring twice requires both occurrences to be equal.
type Pattern struct {
	Kind    PatternKind
	Name    string
	Enum    string
	Variant string
	Value   *big.Int
	Args    []*Pattern
	Pos     sexp.Pos
}

type BodyKind int

const (
	BVar BodyKind = iota
	BInt
	BConst
	BCall
	BVariant
	BLet
)

type BodyBinding struct {
	Name  string
	Value *Body
}

// Body is a right-hand side expression: a tree of constructor calls.
type Body struct {
	Kind     BodyKind
	Name     string
	Enum     string
	Variant  string
	Value    *big.Int
	Args     []*Body
	Bindings []BodyBinding
	Pos      sexp.Pos
}

// Vars lists the variables a pattern binds, in first-occurrence order.
func (p *Pattern) Vars() []string {
	var out []string
	seen := map[string]bool{}
	var visit func(*Pattern)
	visit = func(p *Pattern) {
		if p.Kind == PVar && !seen[p.Name] {
			seen[p.Name] = true
			out = append(out, p.Name)
		}
		for _, a := range p.Args {
			visit(a)
		}
	}
	visit(p)
	return out
}

// Terms lists the term names used by the pattern.
func (p *Pattern) Terms() []string {
	var out []string
	var visit func(*Pattern)
	visit = func(p *Pattern) {
		if p.Kind == PTerm {
			out = append(out, p.Name)
		}
		for _, a := range p.Args {
			visit(a)
		}
	}
	visit(p)
	return out
}

// Terms lists the constructor terms called by the body.
func (b *Body) Terms() []string {
	var out []string
	var visit func(*Body)
	visit = func(b *Body) {
		if b.Kind == BCall {
			out = append(out, b.Name)
		}
		for _, bind := range b.Bindings {
			visit(bind.Value)
		}
		for _, a := range b.Args {
			visit(a)
		}
	}
	visit(b)
	return out
}

func (p *Pattern) String() string {
	switch p.Kind {
	case PVar, PConst:
		if p.Kind == PConst {
			return "$" + p.Name
		}
		return p.Name
	case PWildcard:
		return "_"
	case PInt:
		return p.Value.String()
	}
	head := p.Name
	switch p.Kind {
	case PVariant:
		head = VariantTermName(p.Enum, p.Variant)
	case PAnd:
		head = "and"
	}
	parts := []string{head}
	for _, a := range p.Args {
		parts = append(parts, a.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (b *Body) String() string {
	switch b.Kind {
	case BVar:
		return b.Name
	case BConst:
		return "$" + b.Name
	case BInt:
		return b.Value.String()
	case BLet:
		parts := make([]string, len(b.Bindings))
		for i, bind := range b.Bindings {
			parts[i] = "(" + bind.Name + " " + bind.Value.String() + ")"
		}
		return "(let (" + strings.Join(parts, " ") + ") " + b.Args[0].String() + ")"
	}
	head := b.Name
	if b.Kind == BVariant {
		head = VariantTermName(b.Enum, b.Variant)
	}
	parts := []string{head}
	for _, a := range b.Args {
		parts = append(parts, a.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func parseInt(v string) (*big.Int, bool) {
	if v == "" {
		return nil, false
	}
	c := v[0]
	if c == '-' && len(v) > 1 {
		c = v[1]
	}
	if c < '0' || c > '9' {
		return nil, false
	}
	return new(big.Int).SetString(strings.ReplaceAll(v, "_", ""), 0)
}

// splitVariant recognizes Enum.Variant when Enum is a declared enum.
func (p *Program) splitVariant(name string) (string, string, bool) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return "", "", false
	}
	enum, variant := name[:i], name[i+1:]
	decl, ok := p.Enum(enum)
	if !ok {
		return "", "", false
	}
	if _, _, ok := decl.Variant(variant); !ok {
		return "", "", false
	}
	return enum, variant, true
}

// ParsePattern reads a left-hand side pattern.
func (p *Program) ParsePattern(s sexp.SExp) (*Pattern, error) {
	if a, ok := s.(*sexp.Atom); ok {
		pat := &Pattern{Pos: a.Pos}
		switch v := a.Value; {
		case v == "_":
			pat.Kind = PWildcard
		case strings.HasPrefix(v, "$"):
			pat.Kind, pat.Name = PConst, v[1:]
		default:
			if n, ok := parseInt(v); ok {
				pat.Kind, pat.Value = PInt, n
			} else if enum, variant, ok := p.splitVariant(v); ok {
				pat.Kind, pat.Enum, pat.Variant = PVariant, enum, variant
			} else {
				pat.Kind, pat.Name = PVar, v
			}
		}
		return pat, nil
	}

	l := s.(*sexp.List)
	head := l.Head()
	if head == "" {
		return nil, errors.Errorf("%s: pattern must start with a name", l.Pos)
	}
	pat := &Pattern{Pos: l.Pos}
	switch {
	case head == "and":
		pat.Kind = PAnd
	default:
		if enum, variant, ok := p.splitVariant(head); ok {
			pat.Kind, pat.Enum, pat.Variant = PVariant, enum, variant
		} else {
			pat.Kind, pat.Name = PTerm, head
		}
	}
	for _, a := range l.Tail() {
		sub, err := p.ParsePattern(a)
		if err != nil {
			return nil, err
		}
		pat.Args = append(pat.Args, sub)
	}
	return pat, nil
}

// ParseBody reads a right-hand side expression.
func (p *Program) ParseBody(s sexp.SExp) (*Body, error) {
	if a, ok := s.(*sexp.Atom); ok {
		b := &Body{Pos: a.Pos}
		switch v := a.Value; {
		case strings.HasPrefix(v, "$"):
			b.Kind, b.Name = BConst, v[1:]
		default:
			if n, ok := parseInt(v); ok {
				b.Kind, b.Value = BInt, n
			} else if enum, variant, ok := p.splitVariant(v); ok {
				b.Kind, b.Enum, b.Variant = BVariant, enum, variant
			} else {
				b.Kind, b.Name = BVar, v
			}
		}
		return b, nil
	}

	l := s.(*sexp.List)
	head := l.Head()
	if head == "" {
		return nil, errors.Errorf("%s: expression must start with a name", l.Pos)
	}
	if head == "let" {
		return p.parseLet(l)
	}
	b := &Body{Pos: l.Pos}
	if enum, variant, ok := p.splitVariant(head); ok {
		b.Kind, b.Enum, b.Variant = BVariant, enum, variant
	} else {
		b.Kind, b.Name = BCall, head
	}
	for _, a := range l.Tail() {
		sub, err := p.ParseBody(a)
		if err != nil {
			return nil, err
		}
		b.Args = append(b.Args, sub)
	}
	return b, nil
}

func (p *Program) parseLet(l *sexp.List) (*Body, error) {
	if l.Len() != 3 {
		return nil, errors.Errorf("%s: let takes a binding list and a body", l.Pos)
	}
	binds, ok := sexp.AsList(l.Items[1])
	if !ok {
		return nil, errors.Errorf("%s: let expects a binding list", l.Pos)
	}
	b := &Body{Kind: BLet, Pos: l.Pos}
	for _, item := range binds.Items {
		bl, ok := sexp.AsList(item)
		if !ok || bl.Len() != 2 || bl.Head() == "" {
			return nil, errors.Errorf("%s: let binding must be (name expr)", item.Position())
		}
		v, err := p.ParseBody(bl.Items[1])
		if err != nil {
			return nil, err
		}
		b.Bindings = append(b.Bindings, BodyBinding{Name: bl.Head(), Value: v})
	}
	body, err := p.ParseBody(l.Items[2])
	if err != nil {
		return nil, err
	}
	b.Args = []*Body{body}
	return b, nil
}
