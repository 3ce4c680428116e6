package smt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/program"
	"ruleveri/internal/sexp"
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
  Value: (bv 8)
  Inst: (bv 8)
specs:
  - {term: lower, args: [i], provides: ["(= result i)"]}
  - {term: iadd, args: [a, b], ret: r, provides: ["(= r (bvadd a b))"]}
  - {term: add, args: [a, b], provides: ["(= result ADD)"]}
`

func encode(t *testing.T, add string) (*veri.Conditions, *Query) {
	prog, err := program.Load("rules.yaml", []byte(rulesYAML))
	require.Nil(t, err)
	se, err := spec.Load("specs.yaml", []byte(strings.Replace(specsYAML, "ADD", add, 1)))
	require.Nil(t, err)
	require.Nil(t, se.Prepare(spec.DefaultMacroDepth))
	env, err := veri.NewEnv(prog, se)
	require.Nil(t, err)
	exps, err := veri.Expansions(prog, "lower", 0)
	require.Nil(t, err)
	c, err := veri.Build(env, exps[0], veri.Options{})
	require.Nil(t, err)
	sol := typeinfer.Infer(c, typeinfer.Assignment{})
	require.Equal(t, typeinfer.Solved, sol.Status, sol.Reason)
	q, err := Encode(c, sol)
	require.Nil(t, err)
	return c, q
}

func commands(q *Query) string {
	var sb strings.Builder
	for _, cmd := range q.Commands {
		sb.WriteString(cmd.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func Test_Encode(t *testing.T) {
	c, q := encode(t, "(bvadd a b)")
	text := commands(q)

	reach := c.Reachable()
	for id, e := range c.Exprs {
		if e.Op == veri.OpVariable && reach[id] {
			name := Name(c, veri.ExprID(id))
			assert.True(t, strings.HasPrefix(name, c.Variables[e.Var].Name+"_"), name)
			assert.Contains(t, text, "(declare-const "+name+" (_ BitVec 8))")
		}
	}
	assert.Contains(t, text, ":named expr")
	assert.Contains(t, text, "(bvadd ")

	assert.Equal(t, "not", q.Condition().(*sexp.List).Head())
	assert.Equal(t, len(c.ModelExprs()), len(q.Model))

	var buf bytes.Buffer
	require.Nil(t, q.WriteScript(&buf))
	script := buf.String()
	assert.True(t, strings.HasPrefix(script, "(set-option :produce-models true)\n(set-logic ALL)\n"))
	assert.Equal(t, 2, strings.Count(script, "(check-sat)"))
	assert.Contains(t, script, "(get-value (")
}

func Test_EncodeDesugared(t *testing.T) {
	_, q := encode(t, "(rotl (bvadd a b) b)")
	text := commands(q)
	assert.Contains(t, text, "(bvurem ")
	assert.NotContains(t, text, "rotl")

	_, q = encode(t, "(zero_ext 8 (extract 3 0 (bvadd a b)))")
	assert.Contains(t, commands(q), "((_ zero_extend 4) ")

	_, q = encode(t, "(extract 7 0 (conv_to 16 (bvadd a b)))")
	assert.Contains(t, commands(q), "_conv_to_padding (_ BitVec 8))")
}

func Test_EncodeUnsolved(t *testing.T) {
	_, err := Encode(&veri.Conditions{}, &typeinfer.Solution{Status: typeinfer.TypeError})
	assert.NotNil(t, err)
}

func Test_DecodeValue(t *testing.T) {
	parse := func(s string) sexp.SExp {
		x, err := sexp.Parse(s)
		require.Nil(t, err)
		return x
	}
	tests := []struct {
		in   string
		ty   types.Type
		want types.Const
	}{
		{"#x0f", types.BitVector(8), types.BitVectorConstInt64(8, 15)},
		{"#b101", types.BitVector(3), types.BitVectorConstInt64(3, 5)},
		{"(_ bv5 8)", types.BitVector(8), types.BitVectorConstInt64(8, 5)},
		{"42", types.Int, types.IntConstInt64(42)},
		{"(- 3)", types.Int, types.IntConstInt64(-3)},
		{"true", types.Bool, types.BoolConst(true)},
		{"(as @a0 Unspecified)", types.Unspecified, types.UnspecifiedConst("@a0")},
		{"Unspecified!val!0", types.Unspecified, types.UnspecifiedConst("Unspecified!val!0")},
	}
	for _, tt := range tests {
		got, err := DecodeValue(parse(tt.in), tt.ty)
		require.Nil(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err := DecodeValue(parse("#x0f"), types.BitVector(16))
	assert.NotNil(t, err)
	_, err = DecodeValue(parse("true"), types.Int)
	assert.NotNil(t, err)
}

func Test_DecodeModel(t *testing.T) {
	q := &Query{Model: []ModelVar{
		{ID: 3, Name: "x_3", Type: types.BitVector(8)},
		{ID: 5, Name: "e5", Type: types.Bool},
	}}
	resp, err := sexp.Parse("((x_3 #xff) (e5 false))")
	require.Nil(t, err)
	m, err := DecodeModel(q, resp)
	require.Nil(t, err)
	assert.Equal(t, 2, len(m))
	assert.Equal(t, "#xff", m[3].String())
	assert.Equal(t, "false", m[5].String())

	resp, err = sexp.Parse("((y_1 #xff))")
	require.Nil(t, err)
	_, err = DecodeModel(q, resp)
	assert.NotNil(t, err)
}
