package spec

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"ruleveri/internal/sexp"
)

// Macro is a named expression template. Expansion substitutes arguments
// for parameters without renaming.
type Macro struct {
	Name   string
	Params []string
	Body   *Expr
	Pos    sexp.Pos
}

// DefaultMacroDepth bounds nested macro expansion.
const DefaultMacroDepth = 64

// Expander expands macro calls into primitive operator form.
type Expander struct {
	Macros   map[string]*Macro
	MaxDepth int
}

func NewExpander(macros map[string]*Macro, maxDepth int) *Expander {
	if maxDepth <= 0 {
		maxDepth = DefaultMacroDepth
	}
	return &Expander{Macros: macros, MaxDepth: maxDepth}
}

// Expand returns e with every macro call replaced by its expansion.
// Expanding an already expanded expression returns an equal tree.
func (x *Expander) Expand(e *Expr) (*Expr, error) {
	return x.expand(e, nil)
}

func (x *Expander) expand(e *Expr, stack []string) (*Expr, error) {
	if e.Kind != MacroCall {
		return MapChildren(e, func(c *Expr) (*Expr, error) {
			return x.expand(c, stack)
		})
	}

	m, ok := x.Macros[e.Name]
	if !ok {
		return nil, errors.Errorf("%s: unknown operator or macro %s", e.Pos, e.Name)
	}
	if len(e.Args) != len(m.Params) {
		return nil, errors.Errorf("%s: macro %s takes %d arguments, got %d", e.Pos, m.Name, len(m.Params), len(e.Args))
	}
	for i, name := range stack {
		if name == m.Name {
			cycle := append(append([]string{}, stack[i:]...), m.Name)
			return nil, errors.Errorf("%s: recursive macro %s", e.Pos, strings.Join(cycle, " -> "))
		}
	}
	if len(stack) >= x.MaxDepth {
		return nil, errors.Errorf("%s: macro expansion exceeds depth %d at %s", e.Pos, x.MaxDepth, m.Name)
	}

	// Arguments are expanded in the caller's context, so a macro passed a
	// call to itself is not mistaken for recursion.
	bound := make(map[string]*Expr, len(m.Params))
	for i, p := range m.Params {
		a, err := x.expand(e.Args[i], stack)
		if err != nil {
			return nil, err
		}
		bound[p] = a
	}
	body, err := substitute(m.Body, bound)
	if err != nil {
		return nil, err
	}
	next := append(append(make([]string, 0, len(stack)+1), stack...), m.Name)
	return x.expand(body, next)
}

func substitute(e *Expr, bound map[string]*Expr) (*Expr, error) {
	if e.Kind == Var {
		if v, ok := bound[e.Name]; ok {
			return v, nil
		}
		return e, nil
	}
	return MapChildren(e, func(c *Expr) (*Expr, error) {
		return substitute(c, bound)
	})
}

// CheckMacros validates a macro set before use: macros may only refer to
// their own parameters and local binders, and the call graph must be
// acyclic.
func CheckMacros(macros map[string]*Macro) error {
	names := make([]string, 0, len(macros))
	for name := range macros {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := macros[name]
		seen := map[string]bool{}
		for _, p := range m.Params {
			if seen[p] {
				return errors.Errorf("%s: macro %s repeats parameter %s", m.Pos, m.Name, p)
			}
			seen[p] = true
		}
		if err := CheckScope(m.Body, m.Params); err != nil {
			return errors.Wrapf(err, "macro %s", m.Name)
		}
	}
	if cycles := macroCycles(macros); len(cycles) > 0 {
		return errors.Errorf("recursive macro %s", strings.Join(cycles[0], " -> "))
	}
	return nil
}

// macroCycles finds cycles in the macro call graph with a coloured DFS.
func macroCycles(macros map[string]*Macro) [][]string {
	edges := map[string][]string{}
	nodes := make([]string, 0, len(macros))
	for name, m := range macros {
		nodes = append(nodes, name)
		callees := map[string]bool{}
		Walk(m.Body, func(e *Expr) bool {
			if e.Kind == MacroCall {
				if _, ok := macros[e.Name]; ok && !callees[e.Name] {
					callees[e.Name] = true
					edges[name] = append(edges[name], e.Name)
				}
			}
			return true
		})
		sort.Strings(edges[name])
	}
	sort.Strings(nodes)

	const (
		white = iota
		grey
		black
	)
	color := map[string]int{}
	var cycles [][]string
	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		color[node] = grey
		path = append(path, node)
		for _, to := range edges[node] {
			switch color[to] {
			case grey:
				for i, n := range path {
					if n == to {
						cycle := append(append([]string{}, path[i:]...), to)
						cycles = append(cycles, cycle)
						break
					}
				}
			case white:
				dfs(to, append([]string{}, path...))
			}
		}
		color[node] = black
	}
	for _, n := range nodes {
		if color[n] == white {
			dfs(n, nil)
		}
	}
	return cycles
}
