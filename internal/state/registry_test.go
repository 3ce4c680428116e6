package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/spec"
	"ruleveri/internal/types"
)

func decl(t *testing.T, name, def string) *spec.State {
	d, err := spec.ParseExprString("test", def)
	require.Nil(t, err)
	return &spec.State{Name: name, Type: types.Prim(types.Bool), Default: d}
}

func Test_Registry(t *testing.T) {
	_, err := NewRegistry([]*spec.State{decl(t, "a", "(not a)"), decl(t, "a", "a")})
	assert.NotNil(t, err)

	r, err := NewRegistry([]*spec.State{decl(t, "a", "(not a)"), decl(t, "b", "(not b)")})
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "b"}, r.Names())
	_, ok := r.Lookup("b")
	assert.True(t, ok)
}

func Test_TrackerDefaults(t *testing.T) {
	r, err := NewRegistry([]*spec.State{
		decl(t, "untouched", "(not untouched)"),
		decl(t, "always", "(not always)"),
		decl(t, "sometimes", "(not sometimes)"),
	})
	require.Nil(t, err)

	tr := NewTracker[int](r)
	assert.Nil(t, tr.Modify("always"))
	assert.Nil(t, tr.ModifyWhen("sometimes", 7))
	assert.Nil(t, tr.ModifyWhen("sometimes", 9))
	assert.NotNil(t, tr.Modify("missing"))
	assert.NotNil(t, tr.ModifyWhen("missing", 1))

	defaults := tr.Defaults()
	require.Equal(t, 3, len(defaults))
	assert.Equal(t, DefaultAssumed, defaults[0].Kind)
	assert.Equal(t, DefaultSuppressed, defaults[1].Kind)
	assert.Equal(t, DefaultGated, defaults[2].Kind)
	assert.Equal(t, []int{7, 9}, defaults[2].Conds)
}

func Test_References(t *testing.T) {
	e, err := spec.ParseExprString("test", "(let ((x mem)) (= x a))")
	require.Nil(t, err)
	assert.True(t, References(e, "mem"))
	assert.False(t, References(e, "x"))
	assert.False(t, References(e, "other"))
}
