package sexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Parse(t *testing.T) {
	s, err := Parse("(bvadd x ; comment\n  #x0f)")
	require.Nil(t, err)
	l, ok := AsList(s)
	require.True(t, ok)
	assert.Equal(t, "bvadd", l.Head())
	assert.Equal(t, 2, len(l.Tail()))
	assert.Equal(t, "(bvadd x #x0f)", s.String())
	assert.Equal(t, Pos{Line: 2, Col: 3}, l.Items[2].Position())
}

func Test_ParseErrors(t *testing.T) {
	_, err := Parse("(a b")
	assert.NotNil(t, err)
	_, err = Parse(")")
	assert.NotNil(t, err)
	_, err = Parse("a b")
	assert.NotNil(t, err)
	_, err = Parse("   ")
	assert.NotNil(t, err)
}

func Test_ParseAll(t *testing.T) {
	all, err := ParseAll("sat\n((x #b01) (y true))\n")
	require.Nil(t, err)
	require.Equal(t, 2, len(all))
	assert.True(t, IsAtom(all[0], "sat"))
	assert.Equal(t, "((x #b01) (y true))", all[1].String())
}

func Test_QuotedAtoms(t *testing.T) {
	s, err := Parse(`(:reason-unknown "time""out")`)
	require.Nil(t, err)
	a := s.(*List).Items[1].(*Atom)
	assert.True(t, a.Quoted())
	assert.Equal(t, `time"out`, a.Unquote())

	s, err = Parse("|odd name|")
	require.Nil(t, err)
	assert.Equal(t, "odd name", s.(*Atom).Unquote())
}

func Test_Reader(t *testing.T) {
	r := &Reader{}
	r.Feed("succ")
	s, err := r.Next()
	assert.Nil(t, err)
	assert.Nil(t, s)

	r.Feed("ess\n((x")
	s, err = r.Next()
	require.Nil(t, err)
	assert.True(t, IsAtom(s, "success"))

	s, err = r.Next()
	assert.Nil(t, err)
	assert.Nil(t, s)

	r.Feed(" #x01))\n")
	s, err = r.Next()
	require.Nil(t, err)
	assert.Equal(t, "((x #x01))", s.String())

	s, err = r.Next()
	assert.Nil(t, err)
	assert.Nil(t, s)
}
