package spec

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
)

type fileModifies struct {
	State string `yaml:"state"`
	Cond  string `yaml:"cond"`
}

type fileSpec struct {
	Term     string         `yaml:"term"`
	Args     []string       `yaml:"args"`
	Ret      string         `yaml:"ret"`
	Provides []string       `yaml:"provides"`
	Requires []string       `yaml:"requires"`
	Matches  []string       `yaml:"matches"`
	Modifies []fileModifies `yaml:"modifies"`
}

type fileMacro struct {
	Name   string   `yaml:"name"`
	Params []string `yaml:"params"`
	Body   string   `yaml:"body"`
}

type fileState struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default string `yaml:"default"`
}

type fileSignature struct {
	Args []string `yaml:"args"`
	Ret  string   `yaml:"ret"`
}

type fileInstantiation struct {
	Form       string          `yaml:"form"`
	Signatures []fileSignature `yaml:"signatures"`
}

type file struct {
	Models         map[string]string            `yaml:"models"`
	Consts         map[string]string            `yaml:"consts"`
	Macros         []fileMacro                  `yaml:"macros"`
	State          []fileState                  `yaml:"state"`
	Specs          []fileSpec                   `yaml:"specs"`
	Forms          map[string][]fileSignature   `yaml:"forms"`
	Instantiations map[string]fileInstantiation `yaml:"instantiations"`
}

// LoadFile reads a specification database from a YAML file.
func LoadFile(path string) (*Env, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return Load(path, data)
}

// Load parses a specification database. Expressions are not expanded
// until Prepare is called.
func Load(name string, data []byte) (*Env, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parse %s", name)
	}
	env := NewEnv()

	for ty, src := range f.Models {
		t, err := ParseTypeString(src)
		if err != nil {
			return nil, errors.Wrapf(err, "model %s", ty)
		}
		if e, ok := t.(*types.Enum); ok {
			e.Name = ty
		}
		env.Models[ty] = t
	}

	for cname, src := range f.Consts {
		e, err := ParseExprString(fmt.Sprintf("%s:$%s", name, cname), src)
		if err != nil {
			return nil, errors.Wrapf(err, "constant %s", cname)
		}
		env.Consts[cname] = e
	}

	for _, m := range f.Macros {
		if _, dup := env.Macros[m.Name]; dup {
			return nil, errors.Errorf("duplicate macro %s", m.Name)
		}
		if _, isOp := operators[m.Name]; isOp {
			return nil, errors.Errorf("macro %s redefines an operator", m.Name)
		}
		body, err := ParseExprString(fmt.Sprintf("%s:macro %s", name, m.Name), m.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "macro %s", m.Name)
		}
		env.Macros[m.Name] = &Macro{Name: m.Name, Params: m.Params, Body: body, Pos: body.Pos}
	}

	for _, s := range f.State {
		if _, dup := env.State(s.Name); dup {
			return nil, errors.Errorf("duplicate state %s", s.Name)
		}
		t, err := ParseTypeString(s.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "state %s", s.Name)
		}
		d, err := ParseExprString(fmt.Sprintf("%s:state %s", name, s.Name), s.Default)
		if err != nil {
			return nil, errors.Wrapf(err, "state %s default", s.Name)
		}
		env.States = append(env.States, &State{Name: s.Name, Type: t, Default: d})
	}

	for _, s := range f.Specs {
		if _, dup := env.Specs[s.Term]; dup {
			return nil, errors.Errorf("duplicate spec for term %s", s.Term)
		}
		sp, err := loadSpec(name, s)
		if err != nil {
			return nil, errors.Wrapf(err, "spec %s", s.Term)
		}
		env.Specs[s.Term] = sp
	}

	for form, sigs := range f.Forms {
		parsed, err := loadSignatures(sigs)
		if err != nil {
			return nil, errors.Wrapf(err, "form %s", form)
		}
		env.Forms[form] = parsed
	}

	for term, inst := range f.Instantiations {
		switch {
		case inst.Form != "" && len(inst.Signatures) > 0:
			return nil, errors.Errorf("instantiation of %s names both a form and signatures", term)
		case inst.Form != "":
			sigs, ok := env.Forms[inst.Form]
			if !ok {
				return nil, errors.Errorf("instantiation of %s uses unknown form %s", term, inst.Form)
			}
			env.Instantiations[term] = sigs
		default:
			sigs, err := loadSignatures(inst.Signatures)
			if err != nil {
				return nil, errors.Wrapf(err, "instantiation of %s", term)
			}
			env.Instantiations[term] = sigs
		}
	}
	return env, nil
}

func loadSpec(file string, s fileSpec) (*Spec, error) {
	sp := &Spec{Term: s.Term, Args: s.Args, Ret: s.Ret}
	if sp.Ret == "" {
		sp.Ret = DefaultRet
	}
	parse := func(kind string, srcs []string) ([]*Expr, error) {
		out := make([]*Expr, 0, len(srcs))
		for i, src := range srcs {
			e, err := ParseExprString(fmt.Sprintf("%s:%s.%s[%d]", file, s.Term, kind, i), src)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	}
	var err error
	if sp.Provides, err = parse("provides", s.Provides); err != nil {
		return nil, err
	}
	if sp.Requires, err = parse("requires", s.Requires); err != nil {
		return nil, err
	}
	if sp.Matches, err = parse("matches", s.Matches); err != nil {
		return nil, err
	}
	for i, m := range s.Modifies {
		pos := sexp.Pos{File: fmt.Sprintf("%s:%s.modifies[%d]", file, s.Term, i), Line: 1, Col: 1}
		sp.Modifies = append(sp.Modifies, Modifies{State: m.State, Cond: m.Cond, Pos: pos})
	}
	if len(sp.Provides) > 0 {
		sp.Pos = sp.Provides[0].Pos
	}
	return sp, nil
}

func loadSignatures(sigs []fileSignature) ([]types.Signature, error) {
	out := make([]types.Signature, 0, len(sigs))
	for _, s := range sigs {
		var sig types.Signature
		for _, a := range s.Args {
			t, err := ParseTypeString(a)
			if err != nil {
				return nil, err
			}
			sig.Args = append(sig.Args, t)
		}
		t, err := ParseTypeString(s.Ret)
		if err != nil {
			return nil, err
		}
		sig.Ret = t
		out = append(out, sig)
	}
	return out, nil
}
