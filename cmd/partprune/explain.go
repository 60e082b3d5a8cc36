package main

import (
	"encoding/json"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arkilian/partprune/internal/app"
	"github.com/arkilian/partprune/internal/query/planner"
)

func newExplainCmd(flags *globalFlags) *cobra.Command {
	var (
		asJSON  bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "explain <sql>",
		Short: "Plan a statement against the catalog and print the pruned plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, commandLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.Planner().Plan(commandContext(cmd), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(plan.View())
			}
			return planner.Explain(out, plan, !noColor && !color.NoColor)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}
