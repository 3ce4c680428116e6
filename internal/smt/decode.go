package smt

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
	"ruleveri/internal/veri"
)

// DecodeValue reads a solver value and checks it against the declared
// type.
func DecodeValue(s sexp.SExp, t types.Type) (types.Const, error) {
	c, err := decode(s, t)
	if err != nil {
		return types.Const{}, err
	}
	if c.Kind == types.ConstUnspecified && t.Kind == types.KindUnit {
		return c, nil
	}
	if got := c.Type(); got != t {
		return types.Const{}, errors.Errorf("value %s has type %s, declared %s", s, got, t)
	}
	return c, nil
}

func decode(s sexp.SExp, t types.Type) (types.Const, error) {
	switch s := s.(type) {
	case *sexp.Atom:
		if t.Kind == types.KindUnspecified || t.Kind == types.KindUnit {
			// z3 prints Unspecified!val!0, cvc5 @a0.
			return types.UnspecifiedConst(s.Unquote()), nil
		}
		return types.ParseLiteral(s.Value)
	case *sexp.List:
		switch s.Head() {
		case "-":
			if s.Len() != 2 {
				break
			}
			c, err := decode(s.Items[1], t)
			if err != nil {
				return c, err
			}
			if c.Kind != types.ConstInt {
				break
			}
			return types.IntConst(new(big.Int).Neg(c.Value)), nil
		case "as":
			// (as @a0 Unspecified)
			if s.Len() == 3 && (t.Kind == types.KindUnspecified || t.Kind == types.KindUnit) {
				if v, ok := s.Items[1].(*sexp.Atom); ok {
					return types.UnspecifiedConst(v.Value), nil
				}
			}
		case "_":
			// (_ bv5 8)
			if s.Len() == 3 {
				v, vok := s.Items[1].(*sexp.Atom)
				w, wok := s.Items[2].(*sexp.Atom)
				if vok && wok && strings.HasPrefix(v.Value, "bv") {
					n, ok1 := new(big.Int).SetString(v.Value[2:], 10)
					width, ok2 := new(big.Int).SetString(w.Value, 10)
					if ok1 && ok2 && width.IsInt64() {
						return types.BitVectorConst(int(width.Int64()), n), nil
					}
				}
			}
		}
	}
	return types.Const{}, errors.Errorf("unsupported solver value %s", s)
}

// DecodeModel reads a get-value response for the query's model variables.
func DecodeModel(q *Query, resp sexp.SExp) (veri.Model, error) {
	l, ok := resp.(*sexp.List)
	if !ok {
		return nil, errors.Errorf("unexpected get-value response %s", resp)
	}
	byName := map[string]ModelVar{}
	for _, v := range q.Model {
		byName[v.Name] = v
	}
	m := veri.Model{}
	for _, item := range l.Items {
		pair, ok := item.(*sexp.List)
		if !ok || pair.Len() != 2 {
			return nil, errors.Errorf("malformed model entry %s", item)
		}
		name, ok := pair.Items[0].(*sexp.Atom)
		if !ok {
			return nil, errors.Errorf("malformed model entry %s", item)
		}
		v, ok := byName[name.Unquote()]
		if !ok {
			return nil, errors.Errorf("model entry for undeclared %s", name)
		}
		c, err := DecodeValue(pair.Items[1], v.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "model value of %s", v.Name)
		}
		m[v.ID] = c
	}
	return m, nil
}
