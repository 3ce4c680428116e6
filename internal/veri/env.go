// Package veri builds verification conditions for rewrite rules.
package veri

import (
	"sync"

	"github.com/pkg/errors"

	"ruleveri/internal/program"
	"ruleveri/internal/spec"
	"ruleveri/internal/state"
	"ruleveri/internal/types"
)

// Env ties the term and rule database to the specification database for
// one run. It is safe for concurrent use once built.
type Env struct {
	Prog   *program.Program
	Specs  *spec.Env
	States *state.Registry

	mu     sync.Mutex
	models map[string]types.Compound
}

func NewEnv(prog *program.Program, specs *spec.Env) (*Env, error) {
	reg, err := state.NewRegistry(specs.States)
	if err != nil {
		return nil, err
	}
	env := &Env{
		Prog:   prog,
		Specs:  specs,
		States: reg,
		models: map[string]types.Compound{},
	}
	for name := range specs.Models {
		if _, ok := prog.Types[name]; !ok {
			return nil, errors.Errorf("model given for undeclared type %s", name)
		}
	}
	return env, nil
}

// declared returns the unresolved model of a rule-language type: the
// explicit model when one is given, otherwise an enum inferred from the
// type's declaration.
func (env *Env) declared(name string) (types.Compound, bool) {
	if m, ok := env.Specs.Models[name]; ok {
		return m, true
	}
	decl, ok := env.Prog.Enum(name)
	if !ok {
		return nil, false
	}
	e := &types.Enum{Name: name}
	for _, v := range decl.Variants {
		tv := types.Variant{Name: v.Name}
		for _, f := range v.Fields {
			tv.Fields = append(tv.Fields, types.Field{Name: f.Name, Type: &types.Named{Name: f.Type}})
		}
		e.Variants = append(e.Variants, tv)
	}
	return e, true
}

// Model returns the resolved model of a rule-language type.
func (env *Env) Model(name string) (types.Compound, error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	if m, ok := env.models[name]; ok {
		return m, nil
	}
	m, err := types.Resolve(&types.Named{Name: name}, env.declared)
	if err != nil {
		return nil, err
	}
	env.models[name] = m
	return m, nil
}

// ResolveType resolves Named references inside an arbitrary model.
func (env *Env) ResolveType(c types.Compound) (types.Compound, error) {
	return types.Resolve(c, env.declared)
}

// Spec returns the spec of a term, or a configuration error.
func (env *Env) Spec(term string) (*spec.Spec, error) {
	if err, bad := env.Specs.Invalid[term]; bad {
		return nil, &ConfigError{Msg: "invalid spec for term " + term + ": " + err.Error()}
	}
	s, ok := env.Specs.Specs[term]
	if !ok {
		return nil, &ConfigError{Msg: "no spec for term " + term}
	}
	return s, nil
}
