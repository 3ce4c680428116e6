package veri

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"ruleveri/internal/sexp"
	"ruleveri/internal/types"
)

type Variable struct {
	Type types.Type
	Name string
}

// Call records a term invocation so type inference can apply the term's
// signatures to its arguments and result.
type Call struct {
	Term       string
	Args       []Symbolic
	Ret        Symbolic
	Signatures []types.Signature
	// Variant marks the implicit constructor of an enum variant.
	Variant bool
}

// Qualifier is a type annotation from an (as x ty) expression.
type Qualifier struct {
	Value Symbolic
	Type  types.Compound
}

// Conditions is the verification condition of one expansion: assumptions
// that must imply the assertions.
type Conditions struct {
	Exprs       []Expr
	Assumptions []ExprID
	Assertions  []ExprID
	Variables   []Variable
	Calls       []Call
	Qualifiers  []Qualifier
	State       map[string]Symbolic
	StateOrder  []string
	Pos         map[ExprID]sexp.Pos
	// Warnings are non-fatal notes from construction, such as inexact
	// priority exclusions.
	Warnings []string
	// Result is the value the expansion produces.
	Result Symbolic
}

func newConditions() *Conditions {
	return &Conditions{
		State: map[string]Symbolic{},
		Pos:   map[ExprID]sexp.Pos{},
	}
}

func (c *Conditions) Expr(id ExprID) *Expr {
	return &c.Exprs[id]
}

// Reachable marks every expression reachable from the assumptions and
// assertions.
func (c *Conditions) Reachable() []bool {
	seen := make([]bool, len(c.Exprs))
	stack := append(append([]ExprID{}, c.Assumptions...), c.Assertions...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, c.Exprs[id].Args...)
	}
	return seen
}

// Validate reports non-variable expressions that no condition uses.
func (c *Conditions) Validate() error {
	var unused []string
	for id, ok := range c.Reachable() {
		if !ok && c.Exprs[id].Op != OpVariable {
			unused = append(unused, fmt.Sprintf("e%d", id))
		}
	}
	if len(unused) > 0 {
		return errors.Errorf("unreachable expressions: %s", strings.Join(unused, ", "))
	}
	return nil
}

// ExprString renders an expression tree for diagnostics.
func (c *Conditions) ExprString(id ExprID) string {
	e := c.Exprs[id]
	switch e.Op {
	case OpConst:
		return e.Const.String()
	case OpVariable:
		return c.Variables[e.Var].Name
	case OpBVExtract:
		return fmt.Sprintf("(extract %d %d %s)", e.Hi, e.Lo, c.ExprString(e.Args[0]))
	}
	parts := []string{e.Op.String()}
	for _, a := range e.Args {
		parts = append(parts, c.ExprString(a))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Print writes a readable dump of the conditions.
func (c *Conditions) Print(w io.Writer) {
	fmt.Fprintln(w, "conditions {")
	fmt.Fprintln(w, "\texprs = [")
	for id, e := range c.Exprs {
		switch e.Op {
		case OpConst:
			fmt.Fprintf(w, "\t\te%d = %s\n", id, e.Const)
		case OpVariable:
			v := c.Variables[e.Var]
			fmt.Fprintf(w, "\t\te%d = var %s: %s\n", id, v.Name, v.Type)
		case OpBVExtract:
			fmt.Fprintf(w, "\t\te%d = extract(%d, %d, e%d)\n", id, e.Hi, e.Lo, e.Args[0])
		default:
			args := make([]string, len(e.Args))
			for i, a := range e.Args {
				args[i] = fmt.Sprintf("e%d", a)
			}
			fmt.Fprintf(w, "\t\te%d = %s(%s)\n", id, e.Op, strings.Join(args, ", "))
		}
	}
	fmt.Fprintln(w, "\t]")
	fmt.Fprintln(w, "\tassumptions = [")
	for _, a := range c.Assumptions {
		fmt.Fprintf(w, "\t\t%s\n", c.ExprString(a))
	}
	fmt.Fprintln(w, "\t]")
	fmt.Fprintln(w, "\tassertions = [")
	for _, a := range c.Assertions {
		fmt.Fprintf(w, "\t\t%s\n", c.ExprString(a))
	}
	fmt.Fprintln(w, "\t]")
	fmt.Fprintln(w, "\tcalls = [")
	for _, call := range c.Calls {
		args := make([]string, len(call.Args))
		for i, a := range call.Args {
			args[i] = a.String()
		}
		fmt.Fprintf(w, "\t\t%s(%s) -> %s\n", call.Term, strings.Join(args, ", "), call.Ret)
		for _, sig := range call.Signatures {
			fmt.Fprintf(w, "\t\t\t%s\n", sig)
		}
	}
	fmt.Fprintln(w, "\t]")
	if len(c.Warnings) > 0 {
		fmt.Fprintln(w, "\twarnings = [")
		for _, warn := range c.Warnings {
			fmt.Fprintf(w, "\t\t%s\n", warn)
		}
		fmt.Fprintln(w, "\t]")
	}
	fmt.Fprintln(w, "}")
}

// Terms returns the distinct called terms in first-call order.
func (c *Conditions) Terms() []string {
	var out []string
	seen := map[string]bool{}
	for _, call := range c.Calls {
		if !seen[call.Term] {
			seen[call.Term] = true
			out = append(out, call.Term)
		}
	}
	return out
}

// StateNames returns the state variable names, sorted.
func (c *Conditions) StateNames() []string {
	names := append([]string{}, c.StateOrder...)
	sort.Strings(names)
	return names
}
