package smt

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"

	"ruleveri/internal/sexp"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusSat
	StatusUnsat
)

func (s Status) String() string {
	switch s {
	case StatusSat:
		return "sat"
	case StatusUnsat:
		return "unsat"
	}
	return "unknown"
}

// ParseStatus reads a check-sat response.
func ParseStatus(s sexp.SExp) (Status, error) {
	switch {
	case sexp.IsAtom(s, "sat"):
		return StatusSat, nil
	case sexp.IsAtom(s, "unsat"):
		return StatusUnsat, nil
	case sexp.IsAtom(s, "unknown"):
		return StatusUnknown, nil
	}
	return StatusUnknown, errors.Errorf("unexpected check-sat response %s", s)
}

// ErrInterrupted is returned when a yices check is stopped by its time
// limit.
var ErrInterrupted = errors.New("search interrupted")

// Solver is an in-process yices context that executes encoded commands.
// The yices library must be initialised with yices2.Init, and a Solver
// must not be used from more than one goroutine.
type Solver struct {
	ctx   yices2.ContextT
	sorts map[string]yices2.TypeT
	terms map[string]yices2.TermT
}

func NewSolver() *Solver {
	s := &Solver{
		ctx:   yices2.ContextT{},
		sorts: map[string]yices2.TypeT{},
		terms: map[string]yices2.TermT{},
	}
	yices2.InitContext(yices2.ConfigT{}, &s.ctx)
	return s
}

func (s *Solver) Close() {
	yices2.CloseContext(&s.ctx)
}

func yicesError(what string) error {
	return errors.Errorf("yices %s: %s", what, yices2.ErrorString())
}

// Exec runs one command. Options, the logic and named annotations have no
// effect on a yices context.
func (s *Solver) Exec(cmd sexp.SExp) error {
	l, ok := cmd.(*sexp.List)
	if !ok {
		return errors.Errorf("malformed command %s", cmd)
	}
	switch l.Head() {
	case "set-option", "set-logic":
		return nil
	case "declare-sort":
		name := l.Items[1].String()
		s.sorts[name] = yices2.NewUninterpretedType()
		return nil
	case "declare-const":
		name := l.Items[1].String()
		typ, err := s.sort(l.Items[2])
		if err != nil {
			return errors.Wrapf(err, "declare %s", name)
		}
		term := yices2.NewUninterpretedTerm(typ)
		if errcode := yices2.SetTermName(term, name); errcode < 0 {
			return yicesError("set term name " + name)
		}
		s.terms[name] = term
		return nil
	case "assert":
		term, err := s.term(l.Items[1])
		if err != nil {
			return errors.Wrapf(err, "assert %s", l.Items[1])
		}
		if errcode := yices2.AssertFormula(s.ctx, term); errcode < 0 {
			return yicesError("assert")
		}
		return nil
	case "push":
		if errcode := yices2.Push(s.ctx); errcode < 0 {
			return yicesError("push")
		}
		return nil
	case "pop":
		if errcode := yices2.Pop(s.ctx); errcode < 0 {
			return yicesError("pop")
		}
		return nil
	}
	return errors.Errorf("unsupported command %s", l.Head())
}

// Stop interrupts a running Check. It has no effect when no search is in
// progress.
func (s *Solver) Stop() {
	yices2.StopSearch(s.ctx)
}

// Check decides the current assertions. A search running past the
// timeout is stopped and reported as ErrInterrupted.
func (s *Solver) Check(timeout time.Duration) (Status, error) {
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			yices2.StopSearch(s.ctx)
		})
		defer timer.Stop()
	}
	status := yices2.CheckContext(s.ctx, yices2.ParamT{})
	switch status {
	case yices2.StatusSat:
		return StatusSat, nil
	case yices2.StatusUnsat:
		return StatusUnsat, nil
	case yices2.StatusInterrupted:
		return StatusUnknown, ErrInterrupted
	case yices2.StatusError:
		return StatusUnknown, yicesError("check")
	}
	return StatusUnknown, fmt.Errorf("unexpected yices status %d", status)
}

func (s *Solver) sort(x sexp.SExp) (yices2.TypeT, error) {
	if a, ok := x.(*sexp.Atom); ok {
		switch a.Value {
		case "Bool":
			return yices2.BoolType(), nil
		case "Int":
			return yices2.IntType(), nil
		}
		if t, ok := s.sorts[a.Value]; ok {
			return t, nil
		}
		return 0, errors.Errorf("undeclared sort %s", a.Value)
	}
	l := x.(*sexp.List)
	if l.Len() == 3 && sexp.IsAtom(l.Items[0], "_") && sexp.IsAtom(l.Items[1], "BitVec") {
		w, err := index(l.Items[2])
		if err != nil {
			return 0, err
		}
		return yices2.BvType(w), nil
	}
	return 0, errors.Errorf("unsupported sort %s", x)
}
