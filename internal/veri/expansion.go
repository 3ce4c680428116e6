package veri

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ruleveri/internal/program"
	"ruleveri/internal/strategy"
)

// Expansion is one rule together with the rules chosen for its chained
// call sites, in the order the builder reaches them.
type Expansion struct {
	ID      int
	Rule    *program.Rule
	Chained []*program.Rule
}

func (e *Expansion) Description() string {
	if len(e.Chained) == 0 {
		return e.Rule.Name
	}
	names := make([]string, len(e.Chained))
	for i, r := range e.Chained {
		names[i] = r.Name
	}
	return e.Rule.Name + " via " + strings.Join(names, ", ")
}

// Names returns the rule name and every chained rule name.
func (e *Expansion) Names() []string {
	out := []string{e.Rule.Name}
	for _, r := range e.Chained {
		out = append(out, r.Name)
	}
	return out
}

// Expansions enumerates the expansions of every rule rooted at root.
// Chained call sites nested deeper than maxDepth are not explored.
func Expansions(prog *program.Program, root string, maxDepth int) ([]*Expansion, error) {
	if _, ok := prog.Term(root); !ok {
		return nil, errors.Errorf("unknown root term %s", root)
	}
	if maxDepth <= 0 {
		maxDepth = DefaultChainDepth
	}
	var out []*Expansion
	for _, rule := range prog.RulesFor(root) {
		work := strategy.NewDFS[[]*program.Rule]()
		_ = work.Push(nil)
		for work.HasNext() {
			choices, err := work.Pop()
			if err != nil {
				return nil, err
			}
			site, found := nextChainSite(prog, rule, choices)
			if !found {
				out = append(out, &Expansion{ID: len(out), Rule: rule, Chained: choices})
				continue
			}
			if site.depth >= maxDepth {
				log.Warnf("rule %s: chained call to %s exceeds depth %d, not expanded", rule.Name, site.term, maxDepth)
				continue
			}
			candidates := prog.RulesFor(site.term)
			if len(candidates) == 0 {
				log.Warnf("rule %s: chained term %s has no rules", rule.Name, site.term)
				continue
			}
			next := make([][]*program.Rule, len(candidates))
			for i, c := range candidates {
				next[i] = append(append([]*program.Rule{}, choices...), c)
			}
			_ = work.Push(next...)
		}
	}
	return out, nil
}

type chainSite struct {
	term  string
	depth int
}

// chainWalker visits call sites in the order the builder evaluates them:
// arguments before the call, if-lets before the right-hand side.
type chainWalker struct {
	prog    *program.Program
	choices []*program.Rule
	next    int
	site    *chainSite
}

// nextChainSite finds the first chained call site with no chosen rule.
func nextChainSite(prog *program.Program, rule *program.Rule, choices []*program.Rule) (chainSite, bool) {
	w := &chainWalker{prog: prog, choices: choices}
	w.rule(rule, 0)
	if w.site == nil {
		return chainSite{}, false
	}
	return *w.site, true
}

func (w *chainWalker) rule(r *program.Rule, depth int) {
	for _, il := range r.IfLets {
		if w.body(il.Expr, depth); w.site != nil {
			return
		}
	}
	w.body(r.RHS, depth)
}

func (w *chainWalker) body(b *program.Body, depth int) {
	if b.Kind == program.BLet {
		for _, bind := range b.Bindings {
			if w.body(bind.Value, depth); w.site != nil {
				return
			}
		}
	}
	for _, a := range b.Args {
		if w.body(a, depth); w.site != nil {
			return
		}
	}
	if b.Kind != program.BCall {
		return
	}
	term, ok := w.prog.Term(b.Name)
	if !ok || !term.Chain {
		return
	}
	i := w.next
	w.next++
	if i >= len(w.choices) {
		w.site = &chainSite{term: term.Name, depth: depth}
		return
	}
	w.rule(w.choices[i], depth+1)
}
