// Package instantiate enumerates the signature choices of an expansion and
// runs type inference on each.
package instantiate

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ruleveri/internal/typeinfer"
	"ruleveri/internal/types"
	"ruleveri/internal/veri"
)

// Choice is one signature picked for one term.
type Choice struct {
	Term      string
	Signature types.Signature
}

// Instance is a typed instantiation of an expansion.
type Instance struct {
	Index    int
	Choices  []Choice
	Solution *typeinfer.Solution
}

func (in *Instance) Assignment() typeinfer.Assignment {
	a := typeinfer.Assignment{}
	for _, ch := range in.Choices {
		a[ch.Term] = ch.Signature
	}
	return a
}

// String names the instantiation by the signature of each term, in call
// order.
func (in *Instance) String() string {
	if len(in.Choices) == 0 {
		return "<no signatures>"
	}
	parts := make([]string, len(in.Choices))
	for i, ch := range in.Choices {
		parts[i] = ch.Term + " " + ch.Signature.String()
	}
	return strings.Join(parts, "; ")
}

type candidates struct {
	term string
	sigs []types.Signature
}

// signatures collects the resolved signatures of every called term that
// declares some. Terms without declared signatures are left to inference.
func signatures(env *veri.Env, c *veri.Conditions) ([]candidates, error) {
	byTerm := map[string][]types.Signature{}
	for _, call := range c.Calls {
		if _, ok := byTerm[call.Term]; ok || len(call.Signatures) == 0 {
			continue
		}
		var sigs []types.Signature
		for _, sig := range call.Signatures {
			r, err := resolve(env, sig)
			if err != nil {
				return nil, errors.Wrapf(err, "signature of %s", call.Term)
			}
			sigs = append(sigs, r)
		}
		byTerm[call.Term] = sigs
	}
	var out []candidates
	for _, term := range c.Terms() {
		if sigs, ok := byTerm[term]; ok {
			out = append(out, candidates{term: term, sigs: sigs})
		}
	}
	return out, nil
}

func resolve(env *veri.Env, sig types.Signature) (types.Signature, error) {
	out := types.Signature{Args: make([]types.Compound, len(sig.Args))}
	for i, a := range sig.Args {
		r, err := env.ResolveType(a)
		if err != nil {
			return out, err
		}
		out.Args[i] = r
	}
	r, err := env.ResolveType(sig.Ret)
	if err != nil {
		return out, err
	}
	out.Ret = r
	return out, nil
}

// Enumerate lists every combination of signatures, the last called term
// varying fastest. An expansion calling no instantiated term has exactly
// one, empty, combination.
func Enumerate(env *veri.Env, c *veri.Conditions) ([][]Choice, error) {
	cands, err := signatures(env, c)
	if err != nil {
		return nil, err
	}
	combos := [][]Choice{nil}
	for _, cd := range cands {
		next := make([][]Choice, 0, len(combos)*len(cd.sigs))
		for _, prefix := range combos {
			for _, sig := range cd.sigs {
				combo := append(append([]Choice{}, prefix...), Choice{Term: cd.term, Signature: sig})
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos, nil
}

// Instances types the expansion under every signature combination.
func Instances(env *veri.Env, c *veri.Conditions) ([]*Instance, error) {
	combos, err := Enumerate(env, c)
	if err != nil {
		return nil, err
	}
	out := make([]*Instance, len(combos))
	for i, combo := range combos {
		in := &Instance{Index: i, Choices: combo}
		in.Solution = typeinfer.Infer(c, in.Assignment())
		log.Debugf("instantiation %d (%s): %s", i, in, in.Solution.Status)
		out[i] = in
	}
	return out, nil
}
