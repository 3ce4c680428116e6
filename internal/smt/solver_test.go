package smt

import (
	"testing"
	"time"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
)

// evalBV solves (= r f(x)) for a constant x and returns r.
func evalBV(t *testing.T, w int, x int64, f func(x sexp.SExp) sexp.SExp) types.Const {
	s := NewSolver()
	defer s.Close()

	require.Nil(t, s.Exec(sexp.Sym("declare-const", sexp.NewAtom("r"), bvSort(w))))
	def := sexp.Sym("=", sexp.NewAtom("r"), f(bvConst(w, x)))
	require.Nil(t, s.Exec(sexp.Sym("assert", def)))
	status, err := s.Check(time.Second)
	require.Nil(t, err)
	require.Equal(t, StatusSat, status)
	m, err := s.Values([]ModelVar{{ID: 0, Name: "r", Type: types.BitVector(w)}})
	require.Nil(t, err)
	return m[0]
}

func Test_BitOperators(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	tests := []struct {
		name string
		w    int
		x    int64
		f    func(x sexp.SExp, w int) sexp.SExp
		want int64
	}{
		{"clz", 8, 0x10, clz, 3},
		{"clz zero", 8, 0, clz, 8},
		{"clz top", 16, 0x8000, clz, 0},
		{"cls positive", 8, 0x10, cls, 2},
		{"cls negative", 8, -1, cls, 7},
		{"rev", 8, 0x01, rev, 0x80},
		{"rev pattern", 8, 0x0b, rev, 0xd0},
		{"popcnt", 8, 0xf3, popcnt, 6},
		{"popcnt wide", 32, 0x7fffffff, popcnt, 31},
		{"rotl", 8, 0x81, func(x sexp.SExp, w int) sexp.SExp { return rotate(true, x, bvConst(w, 9), w) }, 0x03},
		{"rotr", 8, 0x81, func(x sexp.SExp, w int) sexp.SExp { return rotate(false, x, bvConst(w, 1), w) }, 0xc0},
		{"rotl zero", 8, 0x81, func(x sexp.SExp, w int) sexp.SExp { return rotate(true, x, bvConst(w, 0), w) }, 0x81},
	}
	for _, tt := range tests {
		got := evalBV(t, tt.w, tt.x, func(x sexp.SExp) sexp.SExp { return tt.f(x, tt.w) })
		assert.True(t, types.BitVectorConstInt64(tt.w, tt.want).Equal(got), "%s: got %s", tt.name, got)
	}
}

func Test_Saddo(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	check := func(x, y int64) Status {
		s := NewSolver()
		defer s.Close()
		require.Nil(t, s.Exec(sexp.Sym("assert", saddo(bvConst(8, x), bvConst(8, y), 8))))
		status, err := s.Check(time.Second)
		require.Nil(t, err)
		return status
	}
	assert.Equal(t, StatusSat, check(127, 1))
	assert.Equal(t, StatusSat, check(-128, -1))
	assert.Equal(t, StatusUnsat, check(127, -1))
	assert.Equal(t, StatusUnsat, check(3, 4))
}

func Test_SolverQuery(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	run := func(q *Query) (Status, error) {
		s := NewSolver()
		defer s.Close()
		for _, cmd := range append(q.Prelude, q.Commands...) {
			if err := s.Exec(cmd); err != nil {
				return StatusUnknown, err
			}
		}
		require.Nil(t, s.Exec(sexp.Sym("assert", q.Condition())))
		return s.Check(10 * time.Second)
	}

	_, q := encode(t, "(bvadd a b)")
	status, err := run(q)
	require.Nil(t, err)
	assert.Equal(t, StatusUnsat, status)

	_, q = encode(t, "(bvadd a a)")
	status, err = run(q)
	require.Nil(t, err)
	assert.Equal(t, StatusSat, status)

	_, q = encode(t, "(popcnt (bvadd a b))")
	status, err = run(q)
	require.Nil(t, err)
	assert.Equal(t, StatusSat, status)
}

func Test_SolverUnsupported(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	s := NewSolver()
	defer s.Close()
	require.Nil(t, s.Exec(sexp.Sym("declare-const", sexp.NewAtom("x"), sexp.NewAtom("Int"))))
	err := s.Exec(sexp.Sym("assert", sexp.Sym("=", indexed("int2bv", []int{8}, sexp.NewAtom("x")), bvConst(8, 1))))
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "int2bv")
}
