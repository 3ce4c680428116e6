package program

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"ruleveri/internal/sexp"
)

type fileField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type fileVariant struct {
	Name   string      `yaml:"name"`
	Fields []fileField `yaml:"fields"`
}

type fileType struct {
	Name      string        `yaml:"name"`
	Primitive bool          `yaml:"primitive"`
	Enum      []fileVariant `yaml:"enum"`
}

type fileTerm struct {
	Name    string   `yaml:"name"`
	Args    []string `yaml:"args"`
	Ret     string   `yaml:"ret"`
	Kind    string   `yaml:"kind"`
	Partial bool     `yaml:"partial"`
	Pure    bool     `yaml:"pure"`
	Chain   bool     `yaml:"chain"`
}

type fileIfLet struct {
	Pattern string `yaml:"pattern"`
	Expr    string `yaml:"expr"`
}

type fileRule struct {
	Name     string      `yaml:"name"`
	Priority int         `yaml:"priority"`
	Tags     []string    `yaml:"tags"`
	Attrs    []string    `yaml:"attrs"`
	LHS      string      `yaml:"lhs"`
	IfLets   []fileIfLet `yaml:"iflets"`
	RHS      string      `yaml:"rhs"`
}

type file struct {
	Types []fileType `yaml:"types"`
	Terms []fileTerm `yaml:"terms"`
	Rules []fileRule `yaml:"rules"`
}

// LoadFile reads a term and rule database from a YAML file.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return Load(path, data)
}

// Load parses and validates a term and rule database.
func Load(name string, data []byte) (*Program, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parse %s", name)
	}
	p := New()

	for _, t := range f.Types {
		if _, dup := p.Types[t.Name]; dup {
			return nil, errors.Errorf("duplicate type %s", t.Name)
		}
		decl := &TypeDecl{Name: t.Name, Primitive: t.Primitive || len(t.Enum) == 0}
		for _, v := range t.Enum {
			vd := VariantDecl{Name: v.Name}
			for _, fld := range v.Fields {
				vd.Fields = append(vd.Fields, FieldDecl{Name: fld.Name, Type: fld.Type})
			}
			decl.Variants = append(decl.Variants, vd)
		}
		p.Types[t.Name] = decl
		if !decl.Primitive {
			p.addVariantTerms(decl)
		}
	}

	for _, t := range f.Terms {
		if _, dup := p.Terms[t.Name]; dup {
			return nil, errors.Errorf("duplicate term %s", t.Name)
		}
		term := &Term{
			Name:    t.Name,
			Args:    t.Args,
			Ret:     t.Ret,
			Partial: t.Partial,
			Pure:    t.Pure,
			Chain:   t.Chain,
		}
		switch t.Kind {
		case "", "constructor":
			term.Kind = Constructor
		case "extractor":
			term.Kind = Extractor
		default:
			return nil, errors.Errorf("term %s: unknown kind %q", t.Name, t.Kind)
		}
		p.Terms[t.Name] = term
	}
	if err := p.checkTypes(); err != nil {
		return nil, err
	}

	for i, r := range f.Rules {
		rule, err := p.loadRule(name, i, r)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s", rule.Name)
		}
		p.Rules = append(p.Rules, rule)
	}
	return p, nil
}

func (p *Program) checkTypes() error {
	known := func(ty string) bool {
		_, ok := p.Types[ty]
		return ok
	}
	for _, t := range p.Types {
		for _, v := range t.Variants {
			for _, f := range v.Fields {
				if !known(f.Type) {
					return errors.Errorf("variant %s.%s: unknown type %s", t.Name, v.Name, f.Type)
				}
			}
		}
	}
	for _, name := range p.TermNames() {
		term := p.Terms[name]
		for _, a := range term.Args {
			if !known(a) {
				return errors.Errorf("term %s: unknown type %s", name, a)
			}
		}
		if !known(term.Ret) {
			return errors.Errorf("term %s: unknown type %s", name, term.Ret)
		}
	}
	return nil
}

func (p *Program) loadRule(file string, id int, r fileRule) (*Rule, error) {
	rule := &Rule{
		ID:       id,
		Name:     r.Name,
		Priority: r.Priority,
		Tags:     r.Tags,
		Attrs:    r.Attrs,
	}
	if rule.Name == "" {
		rule.Name = fmt.Sprintf("rule%d", id)
		rule.Anonymous = true
	}
	src := fmt.Sprintf("%s:%s", file, rule.Name)

	lhs, err := sexp.ParseFile(src, r.LHS)
	if err != nil {
		return rule, errors.Wrap(err, "lhs")
	}
	root, ok := sexp.AsList(lhs)
	if !ok || root.Head() == "" {
		return rule, errors.Errorf("%s: lhs must be a term application", lhs.Position())
	}
	rule.Root = root.Head()
	rule.Pos = root.Pos
	for _, a := range root.Tail() {
		pat, err := p.ParsePattern(a)
		if err != nil {
			return rule, err
		}
		rule.Args = append(rule.Args, pat)
	}

	for i, il := range r.IfLets {
		ps, err := sexp.ParseFile(fmt.Sprintf("%s.iflet[%d]", src, i), il.Pattern)
		if err != nil {
			return rule, err
		}
		pat, err := p.ParsePattern(ps)
		if err != nil {
			return rule, err
		}
		es, err := sexp.ParseFile(fmt.Sprintf("%s.iflet[%d]", src, i), il.Expr)
		if err != nil {
			return rule, err
		}
		expr, err := p.ParseBody(es)
		if err != nil {
			return rule, err
		}
		rule.IfLets = append(rule.IfLets, IfLet{Pattern: pat, Expr: expr})
	}

	rhs, err := sexp.ParseFile(src+".rhs", r.RHS)
	if err != nil {
		return rule, errors.Wrap(err, "rhs")
	}
	if rule.RHS, err = p.ParseBody(rhs); err != nil {
		return rule, err
	}
	return rule, p.checkRule(rule)
}

// checkRule validates term usage and arities.
func (p *Program) checkRule(r *Rule) error {
	root, ok := p.Term(r.Root)
	if !ok {
		return errors.Errorf("%s: unknown root term %s", r.Pos, r.Root)
	}
	if root.Kind != Constructor {
		return errors.Errorf("%s: root term %s must be a constructor", r.Pos, r.Root)
	}
	if len(root.Args) != len(r.Args) {
		return errors.Errorf("%s: root term %s takes %d arguments", r.Pos, r.Root, len(root.Args))
	}
	for _, a := range r.Args {
		if err := p.checkPattern(a); err != nil {
			return err
		}
	}

	bound := map[string]bool{}
	for _, a := range r.Args {
		for _, v := range a.Vars() {
			bound[v] = true
		}
	}
	for _, il := range r.IfLets {
		if err := p.checkBody(il.Expr, bound, true); err != nil {
			return err
		}
		if err := p.checkPattern(il.Pattern); err != nil {
			return err
		}
		for _, v := range il.Pattern.Vars() {
			bound[v] = true
		}
	}
	return p.checkBody(r.RHS, bound, false)
}

func (p *Program) checkPattern(pat *Pattern) error {
	switch pat.Kind {
	case PTerm:
		t, ok := p.Term(pat.Name)
		if !ok {
			return errors.Errorf("%s: unknown term %s", pat.Pos, pat.Name)
		}
		if t.Kind != Extractor {
			return errors.Errorf("%s: term %s is not an extractor", pat.Pos, pat.Name)
		}
		if len(t.Args) != len(pat.Args) {
			return errors.Errorf("%s: extractor %s binds %d values", pat.Pos, pat.Name, len(t.Args))
		}
	case PVariant:
		decl, _ := p.Enum(pat.Enum)
		v, _, _ := decl.Variant(pat.Variant)
		if len(v.Fields) != len(pat.Args) {
			return errors.Errorf("%s: variant %s has %d fields", pat.Pos, pat, len(v.Fields))
		}
	}
	for _, a := range pat.Args {
		if err := p.checkPattern(a); err != nil {
			return err
		}
	}
	return nil
}

func (p *Program) checkBody(b *Body, bound map[string]bool, partialOK bool) error {
	switch b.Kind {
	case BVar:
		if !bound[b.Name] {
			return errors.Errorf("%s: unbound variable %s", b.Pos, b.Name)
		}
	case BCall:
		t, ok := p.Term(b.Name)
		if !ok {
			return errors.Errorf("%s: unknown term %s", b.Pos, b.Name)
		}
		if t.Kind != Constructor {
			return errors.Errorf("%s: term %s is not a constructor", b.Pos, b.Name)
		}
		if t.Partial && !partialOK {
			return errors.Errorf("%s: partial constructor %s outside if-let", b.Pos, b.Name)
		}
		if len(t.Args) != len(b.Args) {
			return errors.Errorf("%s: term %s takes %d arguments", b.Pos, b.Name, len(t.Args))
		}
	case BVariant:
		decl, _ := p.Enum(b.Enum)
		v, _, _ := decl.Variant(b.Variant)
		if len(v.Fields) != len(b.Args) {
			return errors.Errorf("%s: variant %s has %d fields", b.Pos, b, len(v.Fields))
		}
	case BLet:
		inner := make(map[string]bool, len(bound))
		for k := range bound {
			inner[k] = true
		}
		for _, bind := range b.Bindings {
			if err := p.checkBody(bind.Value, inner, false); err != nil {
				return err
			}
			if inner[bind.Name] {
				return errors.Errorf("%s: let rebinds %s", b.Pos, bind.Name)
			}
			inner[bind.Name] = true
		}
		return p.checkBody(b.Args[0], inner, false)
	}
	for _, a := range b.Args {
		if err := p.checkBody(a, bound, false); err != nil {
			return err
		}
	}
	return nil
}
