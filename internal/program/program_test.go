package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/sexp"
)

const programYAML = `
types:
  - {name: Value, primitive: true}
  - {name: Inst, primitive: true}
  - name: Opt
    enum:
      - name: Some
        fields: [{name: v, type: Value}]
      - name: None
terms:
  - {name: lower, args: [Inst], ret: Value}
  - {name: iadd, args: [Value, Value], ret: Inst, kind: extractor}
  - {name: iconst_zero, args: [], ret: Value, kind: extractor, partial: true}
  - {name: add, args: [Value, Value], ret: Value}
  - {name: try_add, args: [Value], ret: Value, partial: true}
rules:
  - name: iadd_base
    lhs: (lower (iadd x y))
    rhs: (add x y)
  - name: iadd_zero
    priority: 1
    tags: [simplify]
    lhs: (lower (iadd x (iconst_zero)))
    rhs: x
  - name: iadd_dup
    attrs: [priority]
    lhs: (lower (iadd x x))
    iflets:
      - {pattern: v, expr: (try_add x)}
    rhs: (let ((s (add v v))) s)
`

func load(t *testing.T) *Program {
	p, err := Load("rules.yaml", []byte(programYAML))
	require.Nil(t, err)
	return p
}

func Test_Load(t *testing.T) {
	p := load(t)
	require.Equal(t, 3, len(p.Rules))
	r := p.Rules[1]
	assert.Equal(t, "lower", r.Root)
	assert.Equal(t, 1, r.Priority)
	assert.True(t, r.HasTag("simplify"))
	assert.Equal(t, "(iadd x (iconst_zero))", r.Args[0].String())
	assert.True(t, p.Rules[2].HasAttr(AttrPriority))
	assert.Equal(t, "(let ((s (add v v))) s)", p.Rules[2].RHS.String())

	vt, ok := p.Term("Opt.Some")
	require.True(t, ok)
	assert.True(t, vt.Variant)
	assert.Equal(t, []string{"Value"}, vt.Args)
	assert.Equal(t, 3, len(p.RulesFor("lower")))
}

func Test_LoadErrors(t *testing.T) {
	base := `
types:
  - {name: Value, primitive: true}
terms:
  - {name: lower, args: [Value], ret: Value}
  - {name: ext, args: [Value], ret: Value, kind: extractor}
  - {name: part, args: [Value], ret: Value, partial: true}
rules:
`
	for _, rule := range []string{
		"  - {lhs: (lower x), rhs: y}",
		"  - {lhs: (lower (lower x)), rhs: x}",
		"  - {lhs: (lower x), rhs: (ext x)}",
		"  - {lhs: (lower x), rhs: (part x)}",
		"  - {lhs: (ext x), rhs: x}",
		"  - {lhs: (lower x y), rhs: x}",
	} {
		_, err := Load("rules.yaml", []byte(base+rule+"\n"))
		assert.NotNil(t, err, rule)
	}
}

func pattern(t *testing.T, p *Program, src string) *Pattern {
	s, err := sexp.Parse(src)
	require.Nil(t, err)
	pat, err := p.ParsePattern(s)
	require.Nil(t, err)
	return pat
}

func Test_Overlap(t *testing.T) {
	p := load(t)
	cases := []struct {
		a, b string
		want bool
	}{
		{"x", "(iadd a b)", true},
		{"(iadd x y)", "(iadd a (iconst_zero))", true},
		{"1", "2", false},
		{"3", "3", true},
		{"(Opt.Some x)", "Opt.None", false},
		{"(Opt.Some 1)", "(Opt.Some 2)", false},
		{"(Opt.Some x)", "(Opt.Some 2)", true},
		{"(and x (Opt.Some 1))", "(Opt.Some 2)", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Overlap(pattern(t, p, c.a), pattern(t, p, c.b)), "%s vs %s", c.a, c.b)
	}
	assert.True(t, RulesOverlap(p.Rules[0], p.Rules[1]))
}

func Test_PatternVars(t *testing.T) {
	p := load(t)
	pat := pattern(t, p, "(iadd x (and y x))")
	assert.Equal(t, []string{"x", "y"}, pat.Vars())
	assert.Equal(t, []string{"iadd"}, pat.Terms())
}

func Test_RuleTerms(t *testing.T) {
	p := load(t)
	assert.Equal(t, []string{"lower", "iadd", "add"}, p.Rules[0].Terms())
	assert.Equal(t, []string{"lower", "iadd", "iconst_zero"}, p.Rules[1].Terms())
	assert.Equal(t, []string{"lower", "iadd", "try_add", "add"}, p.Rules[2].Terms())
	for _, r := range p.Rules {
		assert.False(t, r.Anonymous, r.Name)
	}
}
