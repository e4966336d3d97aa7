package cmd

import (
	"github.com/spf13/cobra"

	"retire/internal/scenario"
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Print the resolved inputs as a scenario file",
		Long: `scenario prints the inputs an estimate with the same flags would use,
in a format that --scenario loads back. Rates are written as fractions.`,
		Example: `  retire-cli scenario --current-age 45 > plan.yaml
  retire-cli scenario --scenario plan.yaml --format toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("format")
			format, err := scenario.ParseFormat(name)
			if err != nil {
				return err
			}
			in, err := resolveInputs(cmd)
			if err != nil {
				return err
			}
			return scenario.Write(cmd.OutOrStdout(), in, format)
		},
	}
	addInputFlags(cmd)
	cmd.Flags().StringP("format", "f", "yaml", "Scenario format: yaml, toml or json")
	return cmd
}
