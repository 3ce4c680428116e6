package instantiate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/program"
	"ruleveri/internal/spec"
	"ruleveri/internal/typeinfer"
	"ruleveri/internal/types"
	"ruleveri/internal/veri"
)

const rulesYAML = `
types:
  - {name: Value, primitive: true}
  - {name: Inst, primitive: true}
terms:
  - {name: lower, args: [Inst], ret: Value}
  - {name: iadd, args: [Value, Value], ret: Inst, kind: extractor}
  - {name: add, args: [Value, Value], ret: Value}
rules:
  - name: iadd_base
    lhs: (lower (iadd x y))
    rhs: (add x y)
`

const specsYAML = `
models:
  Value: (bv)
  Inst: (bv)
specs:
  - {term: lower, args: [i], provides: ["(= result i)"]}
  - {term: iadd, args: [a, b], ret: r, provides: ["(= r (bvadd a b))"]}
  - {term: add, args: [a, b], provides: ["(= result (bvadd a b))"]}
forms:
  unary:
    - {args: ["(bv 8)"], ret: "(bv 8)"}
    - {args: ["(bv 16)"], ret: "(bv 16)"}
    - {args: ["(bv 8)"], ret: "(bv 16)"}
instantiations:
  lower: {form: unary}
  add:
    signatures:
      - {args: ["(bv 8)", "(bv 8)"], ret: "(bv 8)"}
      - {args: ["(bv 16)", "(bv 16)"], ret: "(bv 16)"}
`

func setup(t *testing.T, specs string) (*veri.Env, *veri.Conditions) {
	return setupRoot(t, rulesYAML, specs, "lower")
}

func setupRoot(t *testing.T, rules, specs, root string) (*veri.Env, *veri.Conditions) {
	prog, err := program.Load("rules.yaml", []byte(rules))
	require.Nil(t, err)
	se, err := spec.Load("specs.yaml", []byte(specs))
	require.Nil(t, err)
	require.Nil(t, se.Prepare(spec.DefaultMacroDepth))
	env, err := veri.NewEnv(prog, se)
	require.Nil(t, err)
	exps, err := veri.Expansions(prog, root, 0)
	require.Nil(t, err)
	c, err := veri.Build(env, exps[0], veri.Options{})
	require.Nil(t, err)
	return env, c
}

func Test_Enumerate(t *testing.T) {
	env, c := setup(t, specsYAML)
	combos, err := Enumerate(env, c)
	require.Nil(t, err)
	require.Equal(t, 6, len(combos))
	for _, combo := range combos {
		require.Equal(t, 2, len(combo))
		assert.Equal(t, "lower", combo[0].Term)
		assert.Equal(t, "add", combo[1].Term)
	}
	assert.Equal(t, "(args (bv 8)) (ret (bv 8))", combos[0][0].Signature.String())
	assert.Equal(t, "(args (bv 16) (bv 16)) (ret (bv 16))", combos[1][1].Signature.String())
	assert.Equal(t, "(args (bv 16)) (ret (bv 16))", combos[2][0].Signature.String())
}

func Test_Instances(t *testing.T) {
	env, c := setup(t, specsYAML)
	ins, err := Instances(env, c)
	require.Nil(t, err)
	require.Equal(t, 6, len(ins))

	var solved []int
	for _, in := range ins {
		if in.Solution.Status == typeinfer.Solved {
			solved = append(solved, in.Index)
		} else {
			assert.Equal(t, typeinfer.TypeError, in.Solution.Status, in.String())
		}
	}
	assert.Equal(t, []int{0, 3}, solved)
	assert.Contains(t, ins[3].String(), "lower (args (bv 16))")
}

func Test_NoSignatures(t *testing.T) {
	env, c := setup(t, `
models:
  Value: (bv 8)
  Inst: (bv 8)
specs:
  - {term: lower, args: [i], provides: ["(= result i)"]}
  - {term: iadd, args: [a, b], ret: r, provides: ["(= r (bvadd a b))"]}
  - {term: add, args: [a, b], provides: ["(= result (bvadd a b))"]}
`)
	ins, err := Instances(env, c)
	require.Nil(t, err)
	require.Equal(t, 1, len(ins))
	assert.Equal(t, "<no signatures>", ins[0].String())
	assert.Equal(t, typeinfer.Solved, ins[0].Solution.Status, ins[0].Solution.Reason)
}

func Test_NamedSignature(t *testing.T) {
	env, c := setup(t, `
models:
  Value: (bv 8)
  Inst: (bv 8)
specs:
  - {term: lower, args: [i], provides: ["(= result i)"]}
  - {term: iadd, args: [a, b], ret: r, provides: ["(= r (bvadd a b))"]}
  - {term: add, args: [a, b], provides: ["(= result (bvadd a b))"]}
instantiations:
  lower:
    signatures:
      - {args: [Inst], ret: Value}
`)
	combos, err := Enumerate(env, c)
	require.Nil(t, err)
	require.Equal(t, 1, len(combos))
	p, ok := combos[0][0].Signature.Ret.(*types.Primitive)
	require.True(t, ok)
	assert.Equal(t, types.BitVector(8), p.Type)
}

func Test_VariantWithoutSignatures(t *testing.T) {
	env, c := setupRoot(t, `
types:
  - {name: Value, primitive: true}
  - name: Shape
    enum:
      - name: Small
        fields: [{name: v, type: Value}]
      - name: Big
terms:
  - {name: pick, args: [Value], ret: Shape}
rules:
  - name: pick_small
    lhs: (pick x)
    rhs: (Shape.Small x)
`, `
models:
  Value: (bv)
specs:
  - term: pick
    args: [a]
    provides: ["(?Small result)"]
instantiations:
  pick:
    signatures:
      - {args: ["(bv 8)"], ret: Shape}
      - {args: ["(bv 16)"], ret: Shape}
`, "pick")

	var variant bool
	for _, call := range c.Calls {
		if call.Term == "Shape.Small" {
			variant = true
			assert.Empty(t, call.Signatures)
		}
	}
	require.True(t, variant)

	combos, err := Enumerate(env, c)
	require.Nil(t, err)
	require.Equal(t, 2, len(combos))
	for _, combo := range combos {
		require.Equal(t, 1, len(combo))
		assert.Equal(t, "pick", combo[0].Term)
	}
}
