// Package runner expands the rules of a root term, instantiates their
// types and fans the resulting units out to a solver backend.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ruleveri/internal/instantiate"
	"ruleveri/internal/program"
	"ruleveri/internal/report"
	"ruleveri/internal/smt"
	"ruleveri/internal/solver"
	"ruleveri/internal/spec"
	"ruleveri/internal/typeinfer"
	"ruleveri/internal/veri"
)

// DefaultLogDir holds per-expansion reports and replay scripts.
const DefaultLogDir = ".veriisle"

type Options struct {
	Root    string
	Filters []Filter
	// Workers bounds concurrent expansions; 0 means one per CPU.
	Workers int
	// LogDir is cleaned at the start of a run. Empty disables logging.
	LogDir string
	// ResultsToLogDir also writes conditions dumps and solver replay
	// scripts under LogDir.
	ResultsToLogDir bool
	SkipSolver      bool
	ChainDepth      int
	IgnorePriority  bool
	Progress        bool
}

type Runner struct {
	prog    *program.Program
	env     *veri.Env
	backend solver.Backend
	opts    Options
}

// New prepares a run. The backend may be nil when the solver is skipped.
func New(prog *program.Program, specs *spec.Env, backend solver.Backend, opts Options) (*Runner, error) {
	if backend == nil && !opts.SkipSolver {
		return nil, errors.New("no solver backend")
	}
	env, err := veri.NewEnv(prog, specs)
	if err != nil {
		return nil, err
	}
	if opts.Root == "" {
		opts.Root = "lower"
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Runner{prog: prog, env: env, backend: backend, opts: opts}, nil
}

// Expansions returns the expansions of the root term that pass the
// filters.
func (r *Runner) Expansions() ([]*veri.Expansion, error) {
	all, err := veri.Expansions(r.prog, r.opts.Root, r.opts.ChainDepth)
	if err != nil {
		return nil, err
	}
	ctx := &filterContext{prog: r.prog, env: r.env}
	var out []*veri.Expansion
	for _, exp := range all {
		ok, err := selected(ctx, r.opts.Filters, exp)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, exp)
		} else {
			log.Debugf("expansion %d (%s) filtered out", exp.ID, exp.Description())
		}
	}
	log.Infof("expansions: %d of %d selected", len(out), len(all))
	return out, nil
}

// Run verifies every selected expansion. Unit failures are recorded in
// the report; only cancellation and log directory errors abort the run.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	log.Infof("verifying rules of %s", r.opts.Root)
	defer log.Infof("exit verifying")

	if r.opts.LogDir != "" {
		if err := os.RemoveAll(r.opts.LogDir); err != nil {
			return nil, errors.Wrapf(err, "clean log directory %s", r.opts.LogDir)
		}
	}
	exps, err := r.Expansions()
	if err != nil {
		return nil, err
	}

	rep := report.New()
	var bar *progressbar.ProgressBar
	if r.opts.Progress {
		bar = progressbar.NewOptions(len(exps),
			progressbar.OptionSetDescription(r.opts.Root),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, exp := range exps {
		exp := exp
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if bar != nil {
				defer bar.Add(1)
			}
			return r.verify(gctx, exp, rep)
		})
	}
	err = g.Wait()
	rep.Elapsed = time.Since(rep.Started)
	if err != nil {
		return rep, err
	}
	return rep, ctx.Err()
}

func (r *Runner) expansionDir(exp *veri.Expansion) string {
	return filepath.Join(r.opts.LogDir, fmt.Sprintf("%05d", exp.ID))
}

// verify runs one expansion to completion.
func (r *Runner) verify(ctx context.Context, exp *veri.Expansion, rep *report.Report) error {
	logger := log.WithFields(log.Fields{"expansion": exp.ID, "rule": exp.Rule.Name})
	out := &report.Expansion{ID: exp.ID, Rule: exp.Rule.Name}
	for _, c := range exp.Chained {
		out.Chained = append(out.Chained, c.Name)
	}
	record := func(rec *report.Record) {
		rec.Expansion, rec.Rule, rec.Chained = exp.ID, exp.Rule.Name, out.Chained
		out.Instances = append(out.Instances, rec)
		rep.Add(rec)
	}

	c, err := veri.Build(r.env, exp, veri.Options{
		IgnorePriority: r.opts.IgnorePriority,
		MaxChainDepth:  r.opts.ChainDepth,
	})
	if err == nil {
		err = r.logConditions(exp, c)
	}
	var instances []*instantiate.Instance
	if err == nil {
		out.Warnings = c.Warnings
		instances, err = instantiate.Instances(r.env, c)
	}
	if err != nil {
		logger.Errorf("%v", err)
		out.Error = err.Error()
		record(&report.Record{Verdict: solver.Error, Reason: err.Error()})
		return r.writeReport(exp, out)
	}

	for _, inst := range instances {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := r.instance(ctx, exp, c, inst)
		rec.Warnings = c.Warnings
		logger.WithField("instance", inst.Index).Debugf("%s: %s", inst, rec.Verdict)
		record(rec)
	}
	return r.writeReport(exp, out)
}

func (r *Runner) instance(ctx context.Context, exp *veri.Expansion, c *veri.Conditions, inst *instantiate.Instance) *report.Record {
	rec := &report.Record{Instance: inst.Index, Signatures: inst.String()}
	switch inst.Solution.Status {
	case typeinfer.Solved:
	case typeinfer.Inapplicable:
		rec.Verdict, rec.Reason = solver.Inapplicable, inst.Solution.Reason
		return rec
	default:
		rec.Verdict = solver.Skipped
		rec.Reason = inst.Solution.Status.String() + ": " + inst.Solution.Reason
		return rec
	}
	if r.opts.SkipSolver {
		rec.Verdict, rec.Reason = solver.Skipped, "solver disabled"
		return rec
	}

	q, err := smt.Encode(c, inst.Solution)
	if err != nil {
		rec.Verdict, rec.Reason = solver.Error, err.Error()
		return rec
	}
	replay, closeReplay, err := r.replay(exp, inst)
	if err != nil {
		rec.Verdict, rec.Reason = solver.Error, err.Error()
		return rec
	}
	defer closeReplay()

	res, err := r.backend.Check(ctx, q, replay)
	if err != nil {
		rec.Verdict, rec.Reason = solver.Error, err.Error()
		return rec
	}
	rec.Verdict, rec.Reason, rec.Duration = res.Verdict, res.Reason, res.Duration
	if res.Verdict == solver.Counterexample {
		var buf bytes.Buffer
		if err := c.PrintModel(&buf, res.Model); err != nil {
			log.Warnf("print model: %v", err)
		}
		if text := strings.TrimRight(buf.String(), "\n"); text != "" {
			rec.Model = strings.Split(text, "\n")
		}
	}
	return rec
}

// replay opens the solver script of one instantiation, or returns a nil
// writer when scripts are not kept.
func (r *Runner) replay(exp *veri.Expansion, inst *instantiate.Instance) (io.Writer, func(), error) {
	if r.opts.LogDir == "" || !r.opts.ResultsToLogDir {
		return nil, func() {}, nil
	}
	dir := filepath.Join(r.expansionDir(exp), fmt.Sprintf("%03d", inst.Index))
	f, err := create(dir, "solver.smt2")
	if err != nil {
		return nil, nil, err
	}
	return f, func() {
		if err := f.Close(); err != nil {
			log.Warnf("close %s: %v", f.Name(), err)
		}
	}, nil
}

func (r *Runner) logConditions(exp *veri.Expansion, c *veri.Conditions) error {
	if r.opts.LogDir == "" || !r.opts.ResultsToLogDir {
		return nil
	}
	f, err := create(r.expansionDir(exp), "conditions.txt")
	if err != nil {
		return err
	}
	defer f.Close()
	c.Print(f)
	return nil
}

func (r *Runner) writeReport(exp *veri.Expansion, out *report.Expansion) error {
	if r.opts.LogDir == "" {
		return nil
	}
	f, err := create(r.expansionDir(exp), "report.json")
	if err != nil {
		return err
	}
	defer f.Close()
	return out.WriteJSON(f)
}

func create(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", name)
	}
	return f, nil
}
