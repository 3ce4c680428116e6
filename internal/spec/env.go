package spec

import (
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
)

// DefaultRet names the result of a term when a spec does not.
const DefaultRet = "result"

type Modifies struct {
	State string
	// Cond names a boolean that holds when the state is modified. Empty
	// means the modification is unconditional.
	Cond string
	Pos  sexp.Pos
}

// Spec is the contract of one term.
type Spec struct {
	Term     string
	Args     []string
	Ret      string
	Provides []*Expr
	Requires []*Expr
	Matches  []*Expr
	Modifies []Modifies
	Pos      sexp.Pos
}

// Clauses returns every expression of the spec.
func (s *Spec) Clauses() []*Expr {
	out := make([]*Expr, 0, len(s.Provides)+len(s.Requires)+len(s.Matches))
	out = append(out, s.Provides...)
	out = append(out, s.Requires...)
	return append(out, s.Matches...)
}

// State declares a global state variable and its default behaviour.
type State struct {
	Name    string
	Type    types.Compound
	Default *Expr
}

// Env is the specification database.
type Env struct {
	Models         map[string]types.Compound
	Consts         map[string]*Expr
	Macros         map[string]*Macro
	States         []*State
	Specs          map[string]*Spec
	Forms          map[string][]types.Signature
	Instantiations map[string][]types.Signature

	// Invalid records specs rejected while preparing the database. Rules
	// touching them fail individually.
	Invalid map[string]error
}

func NewEnv() *Env {
	return &Env{
		Models:         map[string]types.Compound{},
		Consts:         map[string]*Expr{},
		Macros:         map[string]*Macro{},
		Specs:          map[string]*Spec{},
		Forms:          map[string][]types.Signature{},
		Instantiations: map[string][]types.Signature{},
		Invalid:        map[string]error{},
	}
}

// State looks up a state declaration by name.
func (env *Env) State(name string) (*State, bool) {
	for _, s := range env.States {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Signatures returns the declared instantiations of a term.
func (env *Env) Signatures(term string) []types.Signature {
	return env.Instantiations[term]
}

// Prepare validates macros, then expands and scope checks every spec,
// state default and constant. A recursive or malformed macro set is fatal.
// Errors in individual specs are recorded in Invalid.
func (env *Env) Prepare(maxDepth int) error {
	if err := CheckMacros(env.Macros); err != nil {
		return err
	}
	x := NewExpander(env.Macros, maxDepth)

	stateNames := make([]string, 0, len(env.States))
	for _, s := range env.States {
		stateNames = append(stateNames, s.Name)
	}

	for _, s := range env.States {
		if s.Default == nil {
			return errors.Errorf("state %s has no default", s.Name)
		}
		d, err := x.Expand(s.Default)
		if err != nil {
			return errors.Wrapf(err, "state %s default", s.Name)
		}
		if err := CheckScope(d, []string{s.Name}); err != nil {
			return errors.Wrapf(err, "state %s default", s.Name)
		}
		s.Default = d
	}

	for name, c := range env.Consts {
		v, err := x.Expand(c)
		if err != nil {
			return errors.Wrapf(err, "constant %s", name)
		}
		if err := CheckScope(v, nil); err != nil {
			return errors.Wrapf(err, "constant %s", name)
		}
		env.Consts[name] = v
	}

	terms := make([]string, 0, len(env.Specs))
	for term := range env.Specs {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	for _, term := range terms {
		if err := env.prepareSpec(x, env.Specs[term], stateNames); err != nil {
			log.Warnf("spec %s rejected: %v", term, err)
			env.Invalid[term] = err
		}
	}
	return nil
}

func (env *Env) prepareSpec(x *Expander, s *Spec, stateNames []string) error {
	visible := append([]string{}, stateNames...)
	for _, m := range s.Modifies {
		if _, ok := env.State(m.State); !ok {
			return errors.Errorf("%s: modifies undeclared state %s", m.Pos, m.State)
		}
		if m.Cond != "" {
			visible = append(visible, m.Cond)
		}
	}
	visible = append(visible, s.Args...)
	visible = append(visible, s.Ret)

	expand := func(clauses []*Expr) ([]*Expr, error) {
		out := make([]*Expr, len(clauses))
		for i, c := range clauses {
			e, err := x.Expand(c)
			if err != nil {
				return nil, err
			}
			if err := CheckScope(e, visible); err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	}
	var err error
	if s.Provides, err = expand(s.Provides); err != nil {
		return errors.Wrap(err, "provides")
	}
	if s.Requires, err = expand(s.Requires); err != nil {
		return errors.Wrap(err, "requires")
	}
	if s.Matches, err = expand(s.Matches); err != nil {
		return errors.Wrap(err, "matches")
	}
	return nil
}
