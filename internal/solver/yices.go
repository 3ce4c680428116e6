package solver

import (
	"context"
	"io"
	"sync"
	"time"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/pkg/errors"

	"ruleveri/internal/sexp"
	"ruleveri/internal/smt"
	"ruleveri/internal/veri"
)

// Yices decides queries in process. The library keeps global state, so
// checks are serialised.
type Yices struct {
	mu      sync.Mutex
	timeout time.Duration
}

func NewYices(timeout time.Duration) *Yices {
	yices2.Init()
	return &Yices{timeout: timeout}
}

func (y *Yices) Name() string { return "yices" }

func (y *Yices) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	yices2.Exit()
	return nil
}

func (y *Yices) Check(ctx context.Context, q *smt.Query, replay io.Writer) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if replay != nil {
		if err := q.WriteScript(replay); err != nil {
			return nil, errors.Wrap(err, "write replay")
		}
	}
	s := &yicesSession{ctx: ctx, solver: smt.NewSolver(), timeout: y.timeout}
	defer s.solver.Close()
	res, err := decide(s, q)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return res, err
}

type yicesSession struct {
	ctx     context.Context
	solver  *smt.Solver
	timeout time.Duration
}

func (s *yicesSession) exec(cmd sexp.SExp) error {
	return s.solver.Exec(cmd)
}

// checkSat stops the search when the run is cancelled.
func (s *yicesSession) checkSat() (smt.Status, error) {
	if err := s.ctx.Err(); err != nil {
		return smt.StatusUnknown, err
	}
	done, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-s.ctx.Done():
			s.solver.Stop()
		case <-done:
		}
	}()

	status, err := s.solver.Check(s.timeout)
	close(done)
	<-stopped
	if s.ctx.Err() != nil {
		return smt.StatusUnknown, s.ctx.Err()
	}
	if errors.Is(err, smt.ErrInterrupted) {
		return status, errTimeout
	}
	return status, err
}

func (s *yicesSession) values(q *smt.Query) (veri.Model, error) {
	return s.solver.Values(q.Model)
}
