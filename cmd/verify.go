package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ruleveri/internal/config"
	"ruleveri/internal/program"
	"ruleveri/internal/runner"
	"ruleveri/internal/solver"
	"ruleveri/internal/spec"
)

var verifyCommand = &cobra.Command{
	Use:   "verify <rules.yaml> <specs.yaml>",
	Short: "verify every rule of the root term",
	Long:  ``,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyExec(cmd, args[0], args[1])
	},
	SilenceUsage: true,
}

var verbose bool

func init() {
	config.AddFlags(verifyCommand.Flags())
	verifyCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every instantiation, not only failures")
}

// loadInputs reads both databases and prepares the specs for expansion.
func loadInputs(cfg *config.Config, rulesPath, specsPath string) (*program.Program, *spec.Env, error) {
	prog, err := program.LoadFile(rulesPath)
	if err != nil {
		return nil, nil, err
	}
	specs, err := spec.LoadFile(specsPath)
	if err != nil {
		return nil, nil, err
	}
	if err := specs.Prepare(cfg.MacroDepth); err != nil {
		return nil, nil, err
	}
	return prog, specs, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Debug)
	return cfg, nil
}

func verifyExec(cmd *cobra.Command, rulesPath, specsPath string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	prog, specs, err := loadInputs(cfg, rulesPath, specsPath)
	if err != nil {
		return err
	}
	filters, err := runner.ParseFilters(cfg.Filters)
	if err != nil {
		return err
	}

	var backend solver.Backend
	if !cfg.SkipSolver {
		backend, err = solver.New(cfg.Solver, cfg.Timeout)
		if err != nil {
			return err
		}
		if p, ok := backend.(*solver.Process); ok {
			p.WithBinary(cfg.SolverPath)
		}
		defer backend.Close()
	}

	r, err := runner.New(prog, specs, backend, runner.Options{
		Root:            cfg.Root,
		Filters:         filters,
		Workers:         cfg.Workers,
		LogDir:          cfg.LogDir,
		ResultsToLogDir: cfg.ResultsToLogDir,
		SkipSolver:      cfg.SkipSolver,
		ChainDepth:      cfg.ChainDepth,
		IgnorePriority:  cfg.IgnorePriority,
		Progress:        cfg.Progress,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := r.Run(ctx)
	if rep != nil {
		rep.Summary(os.Stdout, verbose)
	}
	if err != nil {
		return errors.Wrap(err, "verify")
	}
	if rep.Failed() {
		return errors.New("some rules have counterexamples")
	}
	log.Infof("verification finished in %s", rep.Elapsed)
	return nil
}
