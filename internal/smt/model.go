package smt

import (
	"math/big"

	"github.com/pkg/errors"
	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"

	"ruleveri/internal/types"
	"ruleveri/internal/veri"
)

// Values reads the model variables from the last satisfiable check.
func (s *Solver) Values(vars []ModelVar) (veri.Model, error) {
	model := yices2.GetModel(s.ctx, 1)
	if model == nil {
		return nil, yicesError("get model")
	}
	defer yices2.CloseModel(model)

	m := veri.Model{}
	for _, v := range vars {
		term, ok := s.terms[v.Name]
		if !ok {
			return nil, errors.Errorf("undeclared model variable %s", v.Name)
		}
		c, err := value(model, term, v.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "model value of %s", v.Name)
		}
		m[v.ID] = c
	}
	return m, nil
}

func value(model *yices2.ModelT, term yices2.TermT, t types.Type) (types.Const, error) {
	switch t.Kind {
	case types.KindBool:
		var val int32
		if errcode := yices2.GetBoolValue(*model, term, &val); errcode != 0 {
			return types.Const{}, yicesError("bool value")
		}
		return types.BoolConst(val != 0), nil
	case types.KindInt:
		var val int64
		if errcode := yices2.GetInt64Value(*model, term, &val); errcode != 0 {
			return types.Const{}, yicesError("int value")
		}
		return types.IntConstInt64(val), nil
	case types.KindBitVector:
		bits := make([]int32, t.Width)
		if errcode := yices2.GetBvValue(*model, term, bits); errcode != 0 {
			return types.Const{}, yicesError("bit-vector value")
		}
		return types.BitVectorConst(t.Width, bitsValue(bits)), nil
	case types.KindUnspecified, types.KindUnit:
		return types.UnspecifiedConst("yices"), nil
	}
	return types.Const{}, errors.Errorf("no value for type %s", t)
}

// bitsValue assembles a value from bits, least significant first.
func bitsValue(bits []int32) *big.Int {
	result := big.NewInt(0)
	for i, b := range bits {
		if b == 1 {
			result.SetBit(result, i, 1)
		}
	}
	return result
}
