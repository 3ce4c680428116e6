package solver

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ruleveri/internal/sexp"
	"ruleveri/internal/smt"
	"ruleveri/internal/veri"
)

// Backend decides queries. replay, when not nil, receives a script that
// reproduces the run.
type Backend interface {
	Name() string
	Check(ctx context.Context, q *smt.Query, replay io.Writer) (*Result, error)
	Close() error
}

// DefaultTimeout bounds each satisfiability check.
const DefaultTimeout = 10 * time.Second

// New returns the named backend: z3, cvc5 or yices.
func New(name string, timeout time.Duration) (Backend, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	switch name {
	case "z3":
		return Z3(timeout), nil
	case "cvc5":
		return CVC5(timeout), nil
	case "yices":
		return NewYices(timeout), nil
	}
	return nil, errors.Errorf("unknown solver backend %q", name)
}

var errTimeout = errors.New("solver time limit reached")

// session is one solver conversation.
type session interface {
	exec(cmd sexp.SExp) error
	checkSat() (smt.Status, error)
	values(q *smt.Query) (veri.Model, error)
}

func push() sexp.SExp { return sexp.Sym("push", sexp.NewAtom("1")) }
func pop() sexp.SExp  { return sexp.Sym("pop", sexp.NewAtom("1")) }

// decide runs the applicability check and then the verification
// condition.
func decide(s session, q *smt.Query) (*Result, error) {
	start := time.Now()
	result := func(v Verdict, reason string) *Result {
		return &Result{Verdict: v, Reason: reason, Duration: time.Since(start)}
	}
	inconclusive := func(stage string, err error) (*Result, error) {
		if errors.Is(err, errTimeout) {
			return result(Timeout, stage+": "+err.Error()), nil
		}
		return nil, errors.Wrap(err, stage)
	}

	cmds := append(append([]sexp.SExp{}, q.Prelude...), q.Commands...)
	for _, cmd := range cmds {
		if err := s.exec(cmd); err != nil {
			return nil, err
		}
	}

	for _, cmd := range []sexp.SExp{push(), sexp.Sym("assert", q.Feasibility())} {
		if err := s.exec(cmd); err != nil {
			return nil, err
		}
	}
	status, err := s.checkSat()
	if err != nil {
		return inconclusive("applicability", err)
	}
	if err := s.exec(pop()); err != nil {
		return nil, err
	}
	log.Debugf("applicability: %s", status)
	switch status {
	case smt.StatusUnsat:
		return result(Inapplicable, "assumptions are unsatisfiable"), nil
	case smt.StatusUnknown:
		return result(Unknown, "applicability unknown"), nil
	}

	for _, cmd := range []sexp.SExp{push(), sexp.Sym("assert", q.Condition())} {
		if err := s.exec(cmd); err != nil {
			return nil, err
		}
	}
	status, err = s.checkSat()
	if err != nil {
		return inconclusive("verification", err)
	}
	log.Debugf("verification: %s", status)
	switch status {
	case smt.StatusUnsat:
		return result(Valid, ""), nil
	case smt.StatusUnknown:
		return result(Unknown, "verification unknown"), nil
	}
	m, err := s.values(q)
	if err != nil {
		return nil, errors.Wrap(err, "read counterexample")
	}
	r := result(Counterexample, "")
	r.Model = m
	return r, nil
}
