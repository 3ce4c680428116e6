package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/types"
)

func mustParse(t *testing.T, src string) *Expr {
	e, err := ParseExprString("test", src)
	require.Nil(t, err, src)
	return e
}

func Test_ParseForms(t *testing.T) {
	cases := []struct {
		src  string
		kind Kind
	}{
		{"x", Var},
		{"#x0f", Lit},
		{"$ZERO", ConstRef},
		{"(bvadd x y)", BVAdd},
		{"(fp.add x y)", FPAdd},
		{"(:lo p)", Field},
		{"(?Some o)", Discriminator},
		{"(Opt.Some x)", Construct},
		{"Opt.None", Construct},
		{"(struct (lo a) (hi b))", StructLit},
		{"(as x (bv 8))", As},
		{"(extract 7 0 x)", Extract},
		{"(replicate x 4)", Replicate},
		{"(let ((t (bvadd x y))) t)", Let},
		{"(with (t) (= t x))", With},
		{"(switch w (8 a) (16 b))", Cases},
		{"(match o ((Some v) v) (_ x))", Cases},
		{"(double x)", MacroCall},
	}
	for _, c := range cases {
		e := mustParse(t, c.src)
		assert.Equal(t, c.kind, e.Kind, c.src)
	}

	m := mustParse(t, "(match o ((Opt.Some v) v) (None x))")
	assert.True(t, m.ByVariant)
	assert.Equal(t, "Some", m.Arms[0].Variant)
	assert.Equal(t, []string{"v"}, m.Arms[0].Binds)

	x := mustParse(t, "(extract 15 8 x)")
	assert.Equal(t, 15, x.Hi)
	assert.Equal(t, 8, x.Lo)
}

func Test_ParseErrors(t *testing.T) {
	for _, src := range []string{
		"(bvadd x)",
		"(extract 0 7 x)",
		"(if a b)",
		"(let (x) y)",
		"()",
		"(replicate x 0)",
	} {
		_, err := ParseExprString("test", src)
		assert.NotNil(t, err, src)
	}
}

func Test_ParseType(t *testing.T) {
	ty, err := ParseTypeString("(bv 8)")
	require.Nil(t, err)
	assert.True(t, types.Equal(ty, types.Prim(types.BitVector(8))))

	ty, err = ParseTypeString("(enum (Some (v (bv 8))) None)")
	require.Nil(t, err)
	e := ty.(*types.Enum)
	assert.Equal(t, 2, len(e.Variants))
	assert.Equal(t, "v", e.Variants[0].Fields[0].Name)

	ty, err = ParseTypeString("Reg")
	require.Nil(t, err)
	assert.Equal(t, "Reg", ty.(*types.Named).Name)
}

func macros(t *testing.T, defs map[string][2]string) map[string]*Macro {
	out := map[string]*Macro{}
	for name, def := range defs {
		var params []string
		if def[0] != "" {
			for _, p := range mustParse(t, "(p "+def[0]+")").Args {
				params = append(params, p.Name)
			}
		}
		out[name] = &Macro{Name: name, Params: params, Body: mustParse(t, def[1])}
	}
	return out
}

func Test_Expand(t *testing.T) {
	ms := macros(t, map[string][2]string{
		"double": {"x", "(bvadd x x)"},
		"quad":   {"x", "(double (double x))"},
	})
	require.Nil(t, CheckMacros(ms))
	x := NewExpander(ms, 0)

	e, err := x.Expand(mustParse(t, "(= r (quad a))"))
	require.Nil(t, err)
	assert.Equal(t, "(= r (bvadd (bvadd a a) (bvadd a a)))", e.String())

	again, err := x.Expand(e)
	require.Nil(t, err)
	assert.Equal(t, e, again)
}

func Test_ExpandRejectsRecursion(t *testing.T) {
	ms := macros(t, map[string][2]string{
		"loop": {"x", "(loop x)"},
	})
	assert.NotNil(t, CheckMacros(ms))

	_, err := NewExpander(ms, 0).Expand(mustParse(t, "(loop a)"))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "recursive macro loop -> loop")

	mutual := macros(t, map[string][2]string{
		"ping": {"x", "(pong x)"},
		"pong": {"x", "(not (ping x))"},
	})
	err = CheckMacros(mutual)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "ping -> pong -> ping")
}

func Test_ExpandDepthBound(t *testing.T) {
	ms := macros(t, map[string][2]string{
		"a": {"x", "(b x)"},
		"b": {"x", "(c x)"},
		"c": {"x", "(not x)"},
	})
	require.Nil(t, CheckMacros(ms))
	_, err := NewExpander(ms, 2).Expand(mustParse(t, "(a y)"))
	assert.NotNil(t, err)
	e, err := NewExpander(ms, 3).Expand(mustParse(t, "(a y)"))
	require.Nil(t, err)
	assert.Equal(t, "(not y)", e.String())
}

func Test_CheckMacrosFreeVariables(t *testing.T) {
	ms := macros(t, map[string][2]string{
		"leaky": {"x", "(bvadd x y)"},
	})
	assert.NotNil(t, CheckMacros(ms))
}

func Test_CheckScope(t *testing.T) {
	assert.Nil(t, CheckScope(mustParse(t, "(let ((t (bvadd x y)) (u t)) (= u result))"), []string{"x", "y", "result"}))
	assert.NotNil(t, CheckScope(mustParse(t, "(let ((x y)) x)"), []string{"x", "y"}))
	assert.NotNil(t, CheckScope(mustParse(t, "(with (y) y)"), []string{"y"}))
	assert.NotNil(t, CheckScope(mustParse(t, "(match o ((Some o) o))"), []string{"o"}))
	assert.NotNil(t, CheckScope(mustParse(t, "(= a b)"), []string{"a"}))
	assert.NotNil(t, CheckScope(mustParse(t, "a"), []string{"a", "a"}))
}

func Test_FreeVariables(t *testing.T) {
	e := mustParse(t, "(let ((t (bvadd x y))) (match t ((Some v) (= v z)) (_ w)))")
	assert.Equal(t, []string{"x", "y", "z", "w"}, FreeVariables(e))
}

const specYAML = `
models:
  Value: (bv)
  Flag: Bool
consts:
  ZERO: "#x00"
macros:
  - name: double
    params: [x]
    body: (bvadd x x)
state:
  - name: loaded
    type: Bool
    default: (not loaded)
specs:
  - term: iadd
    args: [x, y]
    provides: ["(= result (bvadd x y))"]
  - term: ishl2
    args: [x]
    provides: ["(= result (double x))"]
  - term: load
    args: [a]
    provides: ["(=> c loaded)"]
    modifies: [{state: loaded, cond: c}]
  - term: bad
    args: [x]
    provides: ["(let ((x x)) x)"]
  - term: ghost
    args: [x]
    modifies: [{state: nowhere}]
forms:
  bin8:
    - {args: ["(bv 8)", "(bv 8)"], ret: "(bv 8)"}
    - {args: ["(bv 16)", "(bv 16)"], ret: "(bv 16)"}
instantiations:
  iadd: {form: bin8}
  ishl2:
    signatures:
      - {args: ["(bv 32)"], ret: "(bv 32)"}
`

func Test_LoadAndPrepare(t *testing.T) {
	env, err := Load("specs.yaml", []byte(specYAML))
	require.Nil(t, err)
	require.Nil(t, env.Prepare(0))

	assert.Equal(t, 2, len(env.Signatures("iadd")))
	assert.Equal(t, 1, len(env.Signatures("ishl2")))
	assert.Equal(t, "(= result (bvadd x x))", env.Specs["ishl2"].Provides[0].String())
	assert.Equal(t, "result", env.Specs["iadd"].Ret)

	assert.NotNil(t, env.Invalid["bad"])
	require.NotNil(t, env.Invalid["ghost"])
	assert.Contains(t, env.Invalid["ghost"].Error(), "specs.yaml:ghost.modifies[0]:1:1: modifies undeclared state nowhere")
	assert.Nil(t, env.Invalid["load"])
	assert.Nil(t, env.Invalid["iadd"])
}

func Test_LoadRejectsRecursiveMacros(t *testing.T) {
	src := `
macros:
  - name: f
    params: [x]
    body: (g x)
  - name: g
    params: [x]
    body: (f x)
`
	env, err := Load("specs.yaml", []byte(src))
	require.Nil(t, err)
	assert.NotNil(t, env.Prepare(0))
}
