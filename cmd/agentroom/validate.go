package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentroom/config"
)

func newValidateCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [scenario.yaml...]",
		Short: "Check scenario files",
		Long: `Parse and validate scenario files. Without arguments every configuration
of the catalog is checked.

Examples:
  agentroom validate ./scenarios/research.yaml
  CONFIG_RESEARCH=./scenarios/research.yaml agentroom validate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := make(map[string]string, len(args))
			names := args
			for _, path := range args {
				targets[path] = path
			}
			if len(args) == 0 {
				cfg, err := load()
				if err != nil {
					return err
				}
				catalog := config.NewCatalog(cfg.Scenarios, nil)
				names = catalog.Names()
				for _, name := range names {
					path, _ := catalog.Path(name)
					targets[name] = path
				}
			}
			return validate(cmd.OutOrStdout(), names, targets)
		},
	}
}

func validate(out io.Writer, names []string, targets map[string]string) error {
	if len(names) == 0 {
		fmt.Fprintln(out, "no configurations found")
		return nil
	}

	failed := 0
	for _, name := range names {
		sc, err := config.LoadScenario(targets[name])
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: %v\n", name, err)
			continue
		}
		steps := sc.CoreVariables().StepNames()
		fmt.Fprintf(out, "%s: ok (%d agents, steps: %s)\n", name, len(sc.Agents), strings.Join(steps, ", "))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios invalid", failed, len(names))
	}
	return nil
}
