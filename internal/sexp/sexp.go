// Package sexp reads and prints s-expressions.
//
// It is shared by the specification parser, the rule loader and the
// solver driver, which reads SMT-LIB responses with it.
package sexp

import (
	"fmt"
	"strings"
)

// Pos is a 1-based source location. File is optional.
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string {
	if p.Line == 0 {
		return "<unknown>"
	}
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// SExp is either an *Atom or a *List.
type SExp interface {
	Position() Pos
	String() string
}

type Atom struct {
	Value string
	Pos   Pos
}

func (a *Atom) Position() Pos { return a.Pos }

func (a *Atom) String() string { return a.Value }

// Quoted reports whether the atom is a string literal.
func (a *Atom) Quoted() bool {
	return len(a.Value) >= 2 && a.Value[0] == '"' && a.Value[len(a.Value)-1] == '"'
}

// Unquote strips string literal quotes and SMT-LIB |symbol| bars.
func (a *Atom) Unquote() string {
	v := a.Value
	if a.Quoted() {
		return strings.ReplaceAll(v[1:len(v)-1], `""`, `"`)
	}
	if len(v) >= 2 && v[0] == '|' && v[len(v)-1] == '|' {
		return v[1 : len(v)-1]
	}
	return v
}

type List struct {
	Items []SExp
	Pos   Pos
}

func (l *List) Position() Pos { return l.Pos }

func (l *List) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, item := range l.Items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(item.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (l *List) Len() int { return len(l.Items) }

// Head returns the leading atom of the list, or "" when the list is empty
// or starts with a list.
func (l *List) Head() string {
	if len(l.Items) == 0 {
		return ""
	}
	if a, ok := l.Items[0].(*Atom); ok {
		return a.Value
	}
	return ""
}

// Tail returns every item after the head.
func (l *List) Tail() []SExp {
	if len(l.Items) == 0 {
		return nil
	}
	return l.Items[1:]
}

// NewAtom and NewList build nodes without position information.
func NewAtom(v string) *Atom { return &Atom{Value: v} }

func NewList(items ...SExp) *List { return &List{Items: items} }

// Sym is shorthand for a list whose head is the symbol op.
func Sym(op string, args ...SExp) *List {
	items := make([]SExp, 0, len(args)+1)
	items = append(items, NewAtom(op))
	items = append(items, args...)
	return &List{Items: items}
}

// IsAtom reports whether s is the atom v.
func IsAtom(s SExp, v string) bool {
	a, ok := s.(*Atom)
	return ok && a.Value == v
}

// AsAtom returns the atom value when s is an atom.
func AsAtom(s SExp) (string, bool) {
	a, ok := s.(*Atom)
	if !ok {
		return "", false
	}
	return a.Value, true
}

// AsList returns s as a list when it is one.
func AsList(s SExp) (*List, bool) {
	l, ok := s.(*List)
	return l, ok
}
