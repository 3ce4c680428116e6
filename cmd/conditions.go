package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ruleveri/internal/config"
	"ruleveri/internal/instantiate"
	"ruleveri/internal/runner"
	"ruleveri/internal/veri"
)

var conditionsCommand = &cobra.Command{
	Use:   "conditions <rules.yaml> <specs.yaml>",
	Short: "print the expansions and verification conditions of the root term",
	Long:  ``,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printConditions(cmd, args[0], args[1])
	},
	SilenceUsage: true,
}

var showInstances bool

func init() {
	config.AddFlags(conditionsCommand.Flags())
	conditionsCommand.Flags().BoolVar(&showInstances, "instances", false, "also print the type instantiations")
}

func printConditions(cmd *cobra.Command, rulesPath, specsPath string) error {
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
	r, err := runner.New(prog, specs, nil, runner.Options{
		Root:       cfg.Root,
		Filters:    filters,
		SkipSolver: true,
		ChainDepth: cfg.ChainDepth,
	})
	if err != nil {
		return err
	}
	exps, err := r.Expansions()
	if err != nil {
		return err
	}
	env, err := veri.NewEnv(prog, specs)
	if err != nil {
		return err
	}

	for _, exp := range exps {
		fmt.Printf("expansion %05d: %s\n", exp.ID, exp.Description())
		c, err := veri.Build(env, exp, veri.Options{
			IgnorePriority: cfg.IgnorePriority,
			MaxChainDepth:  cfg.ChainDepth,
		})
		if err != nil {
			fmt.Printf("\terror: %v\n\n", err)
			continue
		}
		c.Print(os.Stdout)
		for _, w := range c.Warnings {
			fmt.Printf("\twarning: %s\n", w)
		}
		if showInstances {
			instances, err := instantiate.Instances(env, c)
			if err != nil {
				fmt.Printf("\terror: %v\n", err)
			}
			for _, inst := range instances {
				fmt.Printf("\tinstance %03d: %s: %s", inst.Index, inst, inst.Solution.Status)
				if inst.Solution.Reason != "" {
					fmt.Printf(" (%s)", inst.Solution.Reason)
				}
				fmt.Println()
			}
		}
		fmt.Println()
	}
	return nil
}
