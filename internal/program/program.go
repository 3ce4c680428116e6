// Package program is the term and rule database: rule-language types,
// term declarations and rewrite rules.
package program

import (
	"sort"

	"ruleveri/internal/sexp"
)

type TermKind int

const (
	Constructor TermKind = iota
	Extractor
)

func (k TermKind) String() string {
	if k == Extractor {
		return "extractor"
	}
	return "constructor"
}

// Term is a declared operation with a typed signature.
type Term struct {
	Name    string
	Args    []string
	Ret     string
	Kind    TermKind
	Partial bool
	Pure    bool
	// Chain terms are verified by inlining their own rules instead of a
	// spec.
	Chain   bool
	Variant bool
}

type FieldDecl struct {
	Name string
	Type string
}

type VariantDecl struct {
	Name   string
	Fields []FieldDecl
}

// TypeDecl is a rule-language type: either primitive or an enum.
type TypeDecl struct {
	Name      string
	Primitive bool
	Variants  []VariantDecl
}

func (t *TypeDecl) Variant(name string) (*VariantDecl, int, bool) {
	for i := range t.Variants {
		if t.Variants[i].Name == name {
			return &t.Variants[i], i, true
		}
	}
	return nil, 0, false
}

// Attribute names understood on rules.
const (
	// AttrPriority marks a rule whose correctness depends on higher
	// priority rules not matching.
	AttrPriority = "priority"
)

type Rule struct {
	ID       int
	Name     string
	Priority int
	Tags     []string
	Attrs    []string
	Root     string
	Args     []*Pattern
	IfLets   []IfLet
	RHS      *Body
	Pos      sexp.Pos

	// Anonymous rules were given a generated name.
	Anonymous bool
}

func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Terms lists every term the rule invokes, root first, without
// duplicates.
func (r *Rule) Terms() []string {
	out := []string{r.Root}
	seen := map[string]bool{r.Root: true}
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	for _, a := range r.Args {
		add(a.Terms())
	}
	for _, il := range r.IfLets {
		add(il.Pattern.Terms())
		add(il.Expr.Terms())
	}
	add(r.RHS.Terms())
	return out
}

func (r *Rule) HasAttr(attr string) bool {
	for _, a := range r.Attrs {
		if a == attr {
			return true
		}
	}
	return false
}

// IfLet binds the result of Expr against Pattern; the rule applies only
// when the match succeeds.
type IfLet struct {
	Pattern *Pattern
	Expr    *Body
}

type Program struct {
	Types map[string]*TypeDecl
	Terms map[string]*Term
	Rules []*Rule
}

func New() *Program {
	return &Program{
		Types: map[string]*TypeDecl{},
		Terms: map[string]*Term{},
	}
}

func (p *Program) Term(name string) (*Term, bool) {
	t, ok := p.Terms[name]
	return t, ok
}

// Enum returns the declaration of an enum type.
func (p *Program) Enum(name string) (*TypeDecl, bool) {
	t, ok := p.Types[name]
	if !ok || t.Primitive {
		return nil, false
	}
	return t, true
}

// RulesFor returns the rules rooted at term, in declaration order.
func (p *Program) RulesFor(term string) []*Rule {
	var out []*Rule
	for _, r := range p.Rules {
		if r.Root == term {
			out = append(out, r)
		}
	}
	return out
}

// TermNames returns all declared term names, sorted.
func (p *Program) TermNames() []string {
	names := make([]string, 0, len(p.Terms))
	for n := range p.Terms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// VariantTermName is the term name of an enum variant constructor.
func VariantTermName(enum, variant string) string {
	return enum + "." + variant
}

// addVariantTerms declares a constructor term per enum variant.
func (p *Program) addVariantTerms(t *TypeDecl) {
	for _, v := range t.Variants {
		args := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			args[i] = f.Type
		}
		name := VariantTermName(t.Name, v.Name)
		p.Terms[name] = &Term{
			Name:    name,
			Args:    args,
			Ret:     t.Name,
			Kind:    Constructor,
			Pure:    true,
			Variant: true,
		}
	}
}
