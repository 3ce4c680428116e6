package solver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ruleveri/internal/sexp"
	"ruleveri/internal/smt"
	"ruleveri/internal/veri"
)

// Process is a backend that talks SMT-LIB to a solver over its standard
// input and output.
type Process struct {
	name    string
	binary  string
	args    []string
	timeout time.Duration
}

// Z3 runs z3 reading commands from stdin with a per-check time limit.
func Z3(timeout time.Duration) *Process {
	return &Process{
		name:    "z3",
		binary:  "z3",
		args:    []string{"-smt2", "-in", fmt.Sprintf("-t:%d", timeout.Milliseconds())},
		timeout: timeout,
	}
}

// CVC5 runs cvc5 in incremental mode with a per-check time limit.
func CVC5(timeout time.Duration) *Process {
	return &Process{
		name:   "cvc5",
		binary: "cvc5",
		args: []string{
			"--incremental",
			"--print-success",
			"--lang", "smt2",
			fmt.Sprintf("--tlimit-per=%d", timeout.Milliseconds()),
			"-",
		},
		timeout: timeout,
	}
}

// WithBinary overrides the solver executable.
func (p *Process) WithBinary(path string) *Process {
	if path != "" {
		p.binary = path
	}
	return p
}

func (p *Process) Name() string { return p.name }

func (p *Process) Close() error { return nil }

// Check starts a fresh solver process for the query. The process is
// killed when ctx is cancelled or both checks overrun their time limit.
func (p *Process) Check(ctx context.Context, q *smt.Query, replay io.Writer) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*p.timeout+5*time.Second)
	defer cancel()

	s, err := p.start(ctx, replay)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.close(); cerr != nil {
			log.Debugf("%s: %s", p.name, cerr)
		}
	}()
	res, err := decide(s, q)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &Result{Verdict: Timeout, Reason: p.name + " killed after deadline"}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return res, nil
}

type response struct {
	s   sexp.SExp
	err error
}

type process struct {
	name      string
	ctx       context.Context
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	replay    io.Writer
	responses chan response

	mu     sync.Mutex
	stderr bytes.Buffer
}

// Write collects standard error.
func (s *process) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stderr.Write(b)
}

func (s *process) errText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.stderr.String())
}

func (p *Process) start(ctx context.Context, replay io.Writer) (*process, error) {
	s := &process{
		name:      p.name,
		ctx:       ctx,
		replay:    replay,
		responses: make(chan response, 16),
	}
	s.cmd = exec.CommandContext(ctx, p.binary, p.args...)
	s.cmd.Stderr = s
	s.cmd.WaitDelay = time.Second
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "%s stdin", p.name)
	}
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "%s stdout", p.name)
	}
	s.stdin = stdin
	if err := s.cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", p.binary)
	}
	log.Debugf("started %s %s", p.binary, strings.Join(p.args, " "))
	go s.pump(stdout)
	return s, nil
}

// pump parses solver output into responses, dropping the acknowledgements
// printed by --print-success.
func (s *process) pump(stdout io.Reader) {
	defer close(s.responses)
	var r sexp.Reader
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			r.Feed(string(buf[:n]))
			for {
				x, perr := r.Next()
				if perr != nil {
					s.responses <- response{err: perr}
					return
				}
				if x == nil {
					break
				}
				if sexp.IsAtom(x, "success") {
					continue
				}
				s.responses <- response{s: x}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *process) exec(cmd sexp.SExp) error {
	line := cmd.String() + "\n"
	if s.replay != nil {
		if _, err := io.WriteString(s.replay, line); err != nil {
			return errors.Wrap(err, "write replay")
		}
	}
	if _, err := io.WriteString(s.stdin, line); err != nil {
		return errors.Wrapf(err, "write to %s", s.name)
	}
	return nil
}

func (s *process) read() (sexp.SExp, error) {
	select {
	case r, ok := <-s.responses:
		if !ok {
			return nil, errors.Errorf("%s exited: %s", s.name, s.errText())
		}
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "parse %s output", s.name)
		}
		if l, isList := r.s.(*sexp.List); isList && l.Head() == "error" {
			return nil, errors.Errorf("%s: %s", s.name, sexp.NewList(l.Tail()...))
		}
		return r.s, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

func (s *process) checkSat() (smt.Status, error) {
	if err := s.exec(sexp.Sym("check-sat")); err != nil {
		return smt.StatusUnknown, err
	}
	resp, err := s.read()
	if err != nil {
		return smt.StatusUnknown, err
	}
	status, err := smt.ParseStatus(resp)
	if err != nil || status != smt.StatusUnknown {
		return status, err
	}
	if err := s.exec(sexp.Sym("get-info", sexp.NewAtom(":reason-unknown"))); err != nil {
		return status, err
	}
	reason, err := s.read()
	if err != nil {
		return status, err
	}
	text := reason.String()
	for _, marker := range []string{"timeout", "canceled", "cancelled", "resourceout"} {
		if strings.Contains(text, marker) {
			return status, errTimeout
		}
	}
	log.Debugf("%s: unknown: %s", s.name, text)
	return status, nil
}

func (s *process) values(q *smt.Query) (veri.Model, error) {
	if len(q.Model) == 0 {
		return veri.Model{}, nil
	}
	if err := s.exec(sexp.Sym("get-value", sexp.NewList(q.ModelNames()...))); err != nil {
		return nil, err
	}
	resp, err := s.read()
	if err != nil {
		return nil, err
	}
	return smt.DecodeModel(q, resp)
}

// close ends the conversation and reaps the process.
func (s *process) close() error {
	go func() {
		for range s.responses {
		}
	}()
	_ = s.exec(sexp.Sym("exit"))
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil && s.ctx.Err() == nil {
		return errors.Wrapf(err, "%s: %s", s.name, s.errText())
	}
	return nil
}
