package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Join(t *testing.T) {
	cases := []struct {
		a, b Type
		want Type
		ok   bool
	}{
		{Unknown, Int, Int, true},
		{Bool, Unknown, Bool, true},
		{BitVectorUnknown(), BitVector(8), BitVector(8), true},
		{BitVector(8), BitVectorUnknown(), BitVector(8), true},
		{BitVector(8), BitVector(16), Type{}, false},
		{Int, Bool, Type{}, false},
		{Unspecified, Unspecified, Unspecified, true},
		{Unspecified, Int, Type{}, false},
		{Unknown, Unspecified, Unspecified, true},
	}
	for _, c := range cases {
		got, ok := c.a.Join(c.b)
		assert.Equal(t, c.ok, ok, "%s join %s", c.a, c.b)
		if c.ok {
			assert.Equal(t, c.want, got)
		}
	}
}

func Test_IsConcrete(t *testing.T) {
	assert.False(t, Unknown.IsConcrete())
	assert.False(t, BitVectorUnknown().IsConcrete())
	assert.True(t, BitVector(1).IsConcrete())
	assert.True(t, Unit.IsConcrete())
}

func Test_ConstString(t *testing.T) {
	assert.Equal(t, "#x0f", BitVectorConstInt64(8, 15).String())
	assert.Equal(t, "#b011", BitVectorConstInt64(3, 3).String())
	assert.Equal(t, "#xff", BitVectorConstInt64(8, -1).String())
	assert.Equal(t, "(- 4)", IntConstInt64(-4).String())
	assert.Equal(t, "true", BoolConst(true).String())
}

func Test_ParseLiteral(t *testing.T) {
	c, err := ParseLiteral("#x00ff")
	require.Nil(t, err)
	assert.Equal(t, 16, c.Width)
	assert.Equal(t, int64(255), c.Value.Int64())

	c, err = ParseLiteral("#b101")
	require.Nil(t, err)
	assert.Equal(t, BitVector(3), c.Type())

	c, err = ParseLiteral("-12")
	require.Nil(t, err)
	assert.Equal(t, Int, c.Type())
	assert.Equal(t, int64(-12), c.Value.Int64())

	_, err = ParseLiteral("#xzz")
	assert.NotNil(t, err)
	_, err = ParseLiteral("foo")
	assert.NotNil(t, err)
}

func Test_SignedAndFits(t *testing.T) {
	c := BitVectorConstInt64(8, 0x80)
	assert.Equal(t, int64(-128), c.Signed().Int64())
	assert.True(t, FitsWidth(big.NewInt(255), 8))
	assert.False(t, FitsWidth(big.NewInt(256), 8))
	assert.True(t, FitsWidth(big.NewInt(-128), 8))
	assert.False(t, FitsWidth(big.NewInt(-129), 8))
}

func Test_Resolve(t *testing.T) {
	models := map[string]Compound{
		"Reg":  Prim(BitVector(64)),
		"Pair": &Struct{Fields: []Field{{Name: "lo", Type: &Named{Name: "Reg"}}, {Name: "hi", Type: &Named{Name: "Reg"}}}},
		"Loop": &Named{Name: "Loop"},
	}
	lookup := func(name string) (Compound, bool) {
		c, ok := models[name]
		return c, ok
	}

	c, err := Resolve(&Named{Name: "Pair"}, lookup)
	require.Nil(t, err)
	s := c.(*Struct)
	assert.True(t, Equal(s.Fields[1].Type, Prim(BitVector(64))))

	_, err = Resolve(&Named{Name: "Loop"}, lookup)
	assert.NotNil(t, err)
	_, err = Resolve(&Named{Name: "Missing"}, lookup)
	assert.NotNil(t, err)
}
