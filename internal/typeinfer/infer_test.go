package typeinfer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/program"
	"ruleveri/internal/spec"
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
`

func conditions(t *testing.T, specs string) (*veri.Conditions, []types.Signature) {
	prog, err := program.Load("rules.yaml", []byte(rulesYAML))
	require.Nil(t, err)
	se, err := spec.Load("specs.yaml", []byte(specs))
	require.Nil(t, err)
	require.Nil(t, se.Prepare(spec.DefaultMacroDepth))
	env, err := veri.NewEnv(prog, se)
	require.Nil(t, err)
	exps, err := veri.Expansions(prog, "lower", 0)
	require.Nil(t, err)
	require.Equal(t, 1, len(exps))
	c, err := veri.Build(env, exps[0], veri.Options{})
	require.Nil(t, err)
	return c, se.Signatures("lower")
}

func Test_InferSolved(t *testing.T) {
	c, sigs := conditions(t, specsYAML)
	sol := Infer(c, Assignment{"lower": sigs[0]})
	require.Equal(t, Solved, sol.Status, sol.Reason)
	for id, e := range c.Exprs {
		if e.Op == veri.OpBVAdd {
			assert.Equal(t, types.BitVector(8), sol.Type(veri.ExprID(id)))
		}
	}

	sol = Infer(c, Assignment{"lower": sigs[1]})
	require.Equal(t, Solved, sol.Status, sol.Reason)
	assert.Equal(t, types.BitVector(16), sol.Type(veri.Scalars(c.Result)[0]))
}

func Test_InferUnderconstrained(t *testing.T) {
	c, _ := conditions(t, specsYAML)
	sol := Infer(c, Assignment{})
	assert.Equal(t, Underconstrained, sol.Status)
	assert.Contains(t, sol.Reason, "(bv)")
}

func Test_InferTypeError(t *testing.T) {
	c, sigs := conditions(t, specsYAML)
	sol := Infer(c, Assignment{"lower": sigs[2]})
	assert.Equal(t, TypeError, sol.Status)
	assert.Contains(t, sol.Reason, "type conflict")
}

func Test_InferInapplicable(t *testing.T) {
	specs := strings.Replace(specsYAML,
		`{term: lower, args: [i], provides: ["(= result i)"]}`,
		`{term: lower, args: [i], requires: ["(= (widthof i) 8)"], provides: ["(= result i)"]}`, 1)
	c, sigs := conditions(t, specs)

	sol := Infer(c, Assignment{"lower": sigs[0]})
	assert.Equal(t, Solved, sol.Status, sol.Reason)

	sol = Infer(c, Assignment{"lower": sigs[1]})
	assert.Equal(t, Inapplicable, sol.Status)
}

func Test_InferWidthValues(t *testing.T) {
	specs := strings.Replace(specsYAML,
		`{term: add, args: [a, b], provides: ["(= result (bvadd a b))"]}`,
		`{term: add, args: [a, b], provides: ["(= result (extract 7 0 (zero_ext (+ (widthof a) 8) (bvadd a b))))"]}`, 1)
	c, sigs := conditions(t, specs)
	sol := Infer(c, Assignment{"lower": sigs[0]})
	require.Equal(t, Solved, sol.Status, sol.Reason)
	for id, e := range c.Exprs {
		switch e.Op {
		case veri.OpBVZeroExt:
			assert.Equal(t, types.BitVector(16), sol.Type(veri.ExprID(id)))
		case veri.OpAdd:
			v, ok := sol.Value(veri.ExprID(id))
			require.True(t, ok)
			assert.Equal(t, int64(16), v.Int64())
		}
	}
}
