// Package config layers defaults, an optional config file, the environment
// and command-line flags into the settings of a verification run.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeySolver          = "solver"
	KeyTimeout         = "timeout"
	KeyWorkers         = "workers"
	KeyLogDir          = "log_dir"
	KeyResultsToLogDir = "results_to_log_dir"
	KeySkipSolver      = "skip_solver"
	KeyDebug           = "debug"
	KeyRoot            = "root"
	KeyFilters         = "filters"
	KeyChainDepth      = "chain_depth"
	KeyMacroDepth      = "macro_depth"
	KeyIgnorePriority  = "ignore_priority"
	KeyProgress        = "progress"
	KeySolverPath      = "solver_path"
)

var solvers = []string{"z3", "cvc5", "yices"}

type Config struct {
	Solver          string        `mapstructure:"solver"`
	SolverPath      string        `mapstructure:"solver_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Workers         int           `mapstructure:"workers"`
	LogDir          string        `mapstructure:"log_dir"`
	ResultsToLogDir bool          `mapstructure:"results_to_log_dir"`
	SkipSolver      bool          `mapstructure:"skip_solver"`
	Debug           bool          `mapstructure:"debug"`
	Root            string        `mapstructure:"root"`
	Filters         []string      `mapstructure:"filters"`
	ChainDepth      int           `mapstructure:"chain_depth"`
	MacroDepth      int           `mapstructure:"macro_depth"`
	IgnorePriority  bool          `mapstructure:"ignore_priority"`
	Progress        bool          `mapstructure:"progress"`
}

// New returns a viper instance with defaults and environment bindings.
// Besides RULEVERI_<KEY>, ISLE_VERI_SOLVER and ISLE_VERI_TIMEOUT are
// honoured.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeySolver, "z3")
	v.SetDefault(KeySolverPath, "")
	v.SetDefault(KeyTimeout, 10*time.Second)
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyLogDir, ".veriisle")
	v.SetDefault(KeyResultsToLogDir, false)
	v.SetDefault(KeySkipSolver, false)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyRoot, "lower")
	v.SetDefault(KeyFilters, []string{})
	v.SetDefault(KeyChainDepth, 4)
	v.SetDefault(KeyMacroDepth, 64)
	v.SetDefault(KeyIgnorePriority, false)
	v.SetDefault(KeyProgress, true)

	v.SetEnvPrefix("ruleveri")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(KeySolver, "RULEVERI_SOLVER", "ISLE_VERI_SOLVER")
	_ = v.BindEnv(KeyTimeout, "RULEVERI_TIMEOUT", "ISLE_VERI_TIMEOUT")
	return v
}

// AddFlags declares the run flags. Flag names use dashes; BindFlags maps
// them onto the underscore keys.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file")
	fs.String("solver", "z3", "solver backend: z3, cvc5 or yices")
	fs.String("solver-path", "", "solver executable, defaults to the backend name")
	fs.Duration("timeout", 10*time.Second, "time limit per satisfiability check")
	fs.Int("workers", 0, "concurrent expansions, 0 for one per CPU")
	fs.String("log-dir", ".veriisle", "directory for per-expansion reports, empty to disable")
	fs.Bool("results-to-log-dir", false, "also write conditions and solver scripts to the log directory")
	fs.Bool("skip-solver", false, "stop after type inference")
	fs.Bool("debug", false, "debug logging")
	fs.String("root", "lower", "root term whose rules are verified")
	fs.StringSlice("filter", nil, "include:<pred> or exclude:<pred>, last match wins")
	fs.Int("chain-depth", 4, "maximum nesting of chained rule expansion")
	fs.Int("macro-depth", 64, "maximum macro expansion depth")
	fs.Bool("ignore-priority", false, "do not exclude higher priority rules")
	fs.Bool("progress", true, "show a progress bar")
}

// BindFlags binds every flag AddFlags declared and reads the config file
// named by --config, if any.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if f.Name == "filter" {
			key = KeyFilters
		}
		err = v.BindPFlag(key, f)
	})
	if err != nil {
		return errors.Wrap(err, "bind flags")
	}
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", f.Value.String())
		}
	}
	return nil
}

// Load decodes and validates the layered settings.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	known := false
	for _, s := range solvers {
		if c.Solver == s {
			known = true
		}
	}
	if !known {
		return errors.Errorf("unknown solver %q, want one of %s", c.Solver, strings.Join(solvers, ", "))
	}
	if c.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.ChainDepth <= 0 || c.MacroDepth <= 0 {
		return errors.New("chain_depth and macro_depth must be positive")
	}
	if c.Root == "" {
		return errors.New("root term is required")
	}
	return nil
}
