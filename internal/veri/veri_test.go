package veri

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/program"
	"ruleveri/internal/spec"
	"ruleveri/internal/types"
)

const rulesYAML = `
types:
  - {name: Value, primitive: true}
  - {name: Inst, primitive: true}
terms:
  - {name: lower, args: [Inst], ret: Value}
  - {name: iadd, args: [Value, Value], ret: Inst, kind: extractor}
  - {name: iconst_zero, args: [], ret: Value, kind: extractor, partial: true}
  - {name: add, args: [Value, Value], ret: Value}
  - {name: helper, args: [Value], ret: Value, chain: true}
  - {name: double, args: [Inst], ret: Value}
rules:
  - name: iadd_base
    attrs: [priority]
    lhs: (lower (iadd x y))
    rhs: (add x y)
  - name: iadd_zero
    priority: 1
    lhs: (lower (iadd x (iconst_zero)))
    rhs: x
  - name: double_base
    lhs: (double (iadd x y))
    rhs: (helper (add x y))
  - name: helper_id
    lhs: (helper x)
    rhs: x
  - name: helper_rec
    lhs: (helper x)
    rhs: (helper (add x x))
`

const specsYAML = `
models:
  Value: (bv 8)
  Inst: (bv 8)
specs:
  - {term: lower, args: [i], provides: ["(= result i)"]}
  - {term: double, args: [i], provides: ["(= result i)"]}
  - {term: iadd, args: [a, b], ret: r, provides: ["(= r (bvadd a b))"]}
  - {term: add, args: [a, b], provides: ["(= result (bvadd a b))"]}
  - {term: iconst_zero, args: [], ret: r, matches: ["(= r #x00)"], provides: []}
`

func loadEnv(t *testing.T, rules, specs string) *Env {
	prog, err := program.Load("rules.yaml", []byte(rules))
	require.Nil(t, err)
	se, err := spec.Load("specs.yaml", []byte(specs))
	require.Nil(t, err)
	require.Nil(t, se.Prepare(spec.DefaultMacroDepth))
	env, err := NewEnv(prog, se)
	require.Nil(t, err)
	return env
}

func expansion(t *testing.T, env *Env, root, rule string) *Expansion {
	exps, err := Expansions(env.Prog, root, 0)
	require.Nil(t, err)
	for _, e := range exps {
		if e.Rule.Name == rule && len(e.Chained) == 0 {
			return e
		}
	}
	t.Fatalf("no expansion for %s", rule)
	return nil
}

func exprStrings(c *Conditions, ids []ExprID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = c.ExprString(id)
	}
	return out
}

func Test_BuildSimpleRule(t *testing.T) {
	env := loadEnv(t, rulesYAML, specsYAML)
	c, err := Build(env, expansion(t, env, "lower", "iadd_base"), Options{IgnorePriority: true})
	require.Nil(t, err)

	assert.Equal(t, []string{"(= result arg0)"}, exprStrings(c, c.Assertions))
	assumptions := exprStrings(c, c.Assumptions)
	assert.Contains(t, assumptions, "(= arg0 (bvadd b1 b2))")
	assert.Contains(t, assumptions, "(= add_result (bvadd b1 b2))")
	assert.Contains(t, assumptions, "(= result add_result)")
	assert.Equal(t, []string{"iadd", "lower", "add"}, c.Terms())

	adds := 0
	for _, e := range c.Exprs {
		if e.Op == OpBVAdd {
			adds++
		}
	}
	assert.Equal(t, 1, adds)
	assert.Empty(t, c.Warnings)

	var buf bytes.Buffer
	c.Print(&buf)
	assert.Contains(t, buf.String(), "assertions = [")
}

func Test_BuildPriorityExclusion(t *testing.T) {
	env := loadEnv(t, rulesYAML, specsYAML)
	exp := expansion(t, env, "lower", "iadd_base")

	c, err := Build(env, exp, Options{})
	require.Nil(t, err)
	assert.Empty(t, c.Warnings)
	assumptions := exprStrings(c, c.Assumptions)
	assert.Contains(t, assumptions, "(not iconst_zero_some)")
	assert.Contains(t, assumptions, "(= iconst_zero_some (= b2 #x00))")

	inexact := strings.Replace(specsYAML, `matches: ["(= r #x00)"], `, "", 1)
	env = loadEnv(t, rulesYAML, inexact)
	c, err = Build(env, expansion(t, env, "lower", "iadd_base"), Options{})
	require.Nil(t, err)
	require.Equal(t, 1, len(c.Warnings))
	assert.Contains(t, c.Warnings[0], "iadd_zero")
}

func Test_BuildMatchesOnNonPartial(t *testing.T) {
	bad := strings.Replace(specsYAML,
		`{term: iadd, args: [a, b], ret: r, provides: ["(= r (bvadd a b))"]}`,
		`{term: iadd, args: [a, b], ret: r, matches: ["true"], provides: ["(= r (bvadd a b))"]}`, 1)
	env := loadEnv(t, rulesYAML, bad)
	_, err := Build(env, expansion(t, env, "lower", "iadd_base"), Options{IgnorePriority: true})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "spec matches on non-partial function")
}

func Test_BuildMissingSpec(t *testing.T) {
	missing := strings.Replace(specsYAML, `  - {term: add, args: [a, b], provides: ["(= result (bvadd a b))"]}`+"\n", "", 1)
	env := loadEnv(t, rulesYAML, missing)
	_, err := Build(env, expansion(t, env, "lower", "iadd_base"), Options{IgnorePriority: true})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "no spec for term add")
}

func Test_Expansions(t *testing.T) {
	env := loadEnv(t, rulesYAML, specsYAML)
	exps, err := Expansions(env.Prog, "double", 2)
	require.Nil(t, err)
	var names []string
	for _, e := range exps {
		names = append(names, e.Description())
	}
	assert.Equal(t, []string{
		"double_base via helper_id",
		"double_base via helper_rec, helper_id",
	}, names)

	_, err = Expansions(env.Prog, "nope", 2)
	assert.NotNil(t, err)
}

func Test_BuildChained(t *testing.T) {
	env := loadEnv(t, rulesYAML, specsYAML)
	exps, err := Expansions(env.Prog, "double", 2)
	require.Nil(t, err)
	require.Equal(t, 2, len(exps))

	c, err := Build(env, exps[1], Options{})
	require.Nil(t, err)
	assert.Equal(t, []string{"iadd", "double", "add", "add"}, exprStringsTerms(c))
	assert.Equal(t, []string{"(= result arg0)"}, exprStrings(c, c.Assertions))

	short := &Expansion{ID: 9, Rule: exps[1].Rule}
	_, err = Build(env, short, Options{})
	assert.NotNil(t, err)
}

func exprStringsTerms(c *Conditions) []string {
	var out []string
	for _, call := range c.Calls {
		out = append(out, call.Term)
	}
	return out
}

const stateRules = `
types:
  - {name: Value, primitive: true}
terms:
  - {name: lower, args: [Value], ret: Value}
  - {name: store, args: [Value], ret: Value}
rules:
  - name: lower_store
    lhs: (lower x)
    rhs: (store x)
`

const stateSpecs = `
models:
  Value: (bv 8)
state:
  - {name: flags, type: Int, default: "(= flags 0)"}
specs:
  - {term: lower, args: [x], provides: ["(= result x)"]}
  - term: store
    args: [x]
    modifies: [{state: flags, cond: c}]
    provides: ["(= result x)", "(= flags 1)"]
`

func Test_BuildStateGated(t *testing.T) {
	env := loadEnv(t, stateRules, stateSpecs)
	c, err := Build(env, expansion(t, env, "lower", "lower_store"), Options{})
	require.Nil(t, err)
	assumptions := exprStrings(c, c.Assumptions)
	assert.Contains(t, assumptions, "(=> flags_modification_cond (= flags 1))")
	assert.Contains(t, assumptions, "(=> (not flags_modification_cond) (= flags 0))")
	assert.Contains(t, assumptions, "(= store_result arg0)")
	assert.Equal(t, []string{"flags"}, c.StateNames())
}

func Test_BuildStateUnconditional(t *testing.T) {
	specs := strings.Replace(stateSpecs, "{state: flags, cond: c}", "{state: flags}", 1)
	env := loadEnv(t, stateRules, specs)
	c, err := Build(env, expansion(t, env, "lower", "lower_store"), Options{})
	require.Nil(t, err)
	assumptions := exprStrings(c, c.Assumptions)
	assert.Contains(t, assumptions, "(= flags 1)")
	assert.NotContains(t, assumptions, "(= flags 0)")
}

func Test_BuildStateUntouched(t *testing.T) {
	specs := strings.Replace(stateSpecs, "    modifies: [{state: flags, cond: c}]\n", "", 1)
	specs = strings.Replace(specs, `, "(= flags 1)"`, "", 1)
	env := loadEnv(t, stateRules, specs)
	c, err := Build(env, expansion(t, env, "lower", "lower_store"), Options{})
	require.Nil(t, err)
	assert.Contains(t, exprStrings(c, c.Assumptions), "(= flags 0)")
}

const enumRules = `
types:
  - {name: Value, primitive: true}
  - name: Shape
    enum:
      - name: Small
        fields: [{name: v, type: Value}]
      - name: Big
terms:
  - {name: lower, args: [Shape], ret: Value}
  - {name: pick, args: [Shape], ret: Shape}
rules:
  - name: lower_small
    lhs: (lower (Shape.Small v))
    rhs: v
  - name: pick_big
    lhs: (pick _)
    rhs: Shape.Big
`

const enumSpecs = `
models:
  Value: (bv 8)
specs:
  - term: lower
    args: [s]
    provides: ["(match s ((Small v) (= result v)) ((Big) (= result #x00)))"]
  - term: pick
    args: [s]
    provides: ["(?Big result)"]
`

func Test_BuildEnum(t *testing.T) {
	env := loadEnv(t, enumRules, enumSpecs)
	c, err := Build(env, expansion(t, env, "lower", "lower_small"), Options{})
	require.Nil(t, err)
	assumptions := exprStrings(c, c.Assumptions)
	assert.Contains(t, assumptions, "(<= 0 arg0_discriminant)")
	assert.Contains(t, assumptions, "(< arg0_discriminant 2)")
	assert.Contains(t, assumptions, "(= arg0_discriminant 0)")
	require.Equal(t, 1, len(c.Assertions))
	assert.Equal(t, OpConditional, c.Expr(c.Assertions[0]).Op)

	c, err = Build(env, expansion(t, env, "pick", "pick_big"), Options{})
	require.Nil(t, err)
	var variant *Call
	for i := range c.Calls {
		if c.Calls[i].Term == "Shape.Big" {
			variant = &c.Calls[i]
		}
	}
	require.NotNil(t, variant)
	assert.True(t, variant.Variant)
}

func Test_BuildMatchNotExhaustive(t *testing.T) {
	specs := strings.Replace(enumSpecs, " ((Big) (= result #x00))", "", 1)
	require.NotEqual(t, enumSpecs, specs)
	env := loadEnv(t, enumRules, specs)
	_, err := Build(env, expansion(t, env, "lower", "lower_small"), Options{})
	require.NotNil(t, err)
	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr), "%v", err)
	assert.Contains(t, encErr.Msg, "does not cover variant Big")
}

func Test_ModelEval(t *testing.T) {
	e := &Enum{
		Type:         "Shape",
		Discriminant: 0,
		Variants: []SymVariant{
			{Name: "Small", Discriminant: 0, Value: &Struct{Fields: []SymField{{Name: "v", Value: &Scalar{ID: 1}}}}},
			{Name: "Big", Discriminant: 1, Value: &Struct{}},
		},
	}
	m := Model{0: types.IntConstInt64(0), 1: types.BitVectorConstInt64(8, 7)}
	v, err := m.Eval(e)
	require.Nil(t, err)
	assert.Equal(t, "Shape.Small {v: #x07}", v.String())

	m[0] = types.IntConstInt64(1)
	v, err = m.Eval(e)
	require.Nil(t, err)
	assert.Equal(t, "Shape.Big", v.String())

	m[0] = types.IntConstInt64(5)
	_, err = m.Eval(e)
	assert.NotNil(t, err)

	none, err := Model{2: types.BoolConst(false)}.Eval(&Option{Some: 2, Inner: &Scalar{ID: 3}})
	require.Nil(t, err)
	assert.Equal(t, "None", none.String())

	_, err = Model{}.Eval(&Scalar{ID: 4})
	assert.NotNil(t, err)
}
