package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DFS(t *testing.T) {
	var s Strategy[int] = NewDFS[int]()
	assert.False(t, s.HasNext())
	_, err := s.Pop()
	assert.Error(t, err)

	require.NoError(t, s.Push(1, 2))
	assert.Equal(t, 2, s.Size())
	v, err := s.Pop()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, s.Push(3))
	v, _ = s.Pop()
	assert.Equal(t, 3, v)
	v, _ = s.Pop()
	assert.Equal(t, 2, v)
	assert.False(t, s.HasNext())
}
