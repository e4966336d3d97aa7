package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"retire/internal/core"
	"retire/internal/diagnostics"
	"retire/internal/services"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// errEstimateFailed is returned after a failed estimate has been reported.
var errEstimateFailed = errors.New("estimate failed")

type estimateOutput struct {
	CalculationID string                `json:"calculation_id"`
	Outcome       diagnostics.Outcome   `json:"outcome"`
	TotalSavings  *float64              `json:"total_savings,omitempty"`
	Formatted     string                `json:"formatted,omitempty"`
	Breakdown     *core.Estimate        `json:"breakdown,omitempty"`
	Kind          core.FailureKind      `json:"kind,omitempty"`
	Message       string                `json:"message,omitempty"`
	Inputs        core.RetirementInputs `json:"inputs"`
}

func newEstimateCmd(newService ServiceFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the savings needed at retirement",
		Example: `  retire-cli estimate
  retire-cli estimate --current-age 45 --return-rate 6
  retire-cli estimate --scenario plan.yaml --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output != outputText && output != outputJSON {
				return fmt.Errorf("invalid output %q: must be text or json", output)
			}
			policy, err := policyFrom(cmd)
			if err != nil {
				return err
			}
			in, err := resolveInputs(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := newService(ctx, policy, loggerFrom(cmd))
			if err != nil {
				return err
			}
			defer svc.Close()

			calc, calcErr := svc.Estimate(ctx, diagnostics.SourceCLI, in)
			result := buildOutput(in, calc, calcErr)

			out := cmd.OutOrStdout()
			if output == outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				if calcErr != nil {
					return errEstimateFailed
				}
				return nil
			}

			if calcErr != nil {
				return errors.New(result.Message)
			}
			return printText(out, result)
		},
	}
	addInputFlags(cmd)
	cmd.Flags().StringP("output", "o", outputText, "Output format: text or json")
	return cmd
}

func buildOutput(in core.RetirementInputs, calc services.Calculation, err error) estimateOutput {
	if err != nil {
		return estimateOutput{
			CalculationID: calc.ID,
			Outcome:       diagnostics.OutcomeFailure,
			Kind:          core.KindOf(err),
			Message:       core.UserMessage(err),
			Inputs:        in,
		}
	}
	est := calc.Estimate
	return estimateOutput{
		CalculationID: calc.ID,
		Outcome:       diagnostics.OutcomeSuccess,
		TotalSavings:  &est.TotalSavings,
		Formatted:     core.FormatCurrency(est.TotalSavings),
		Breakdown:     &est,
		Inputs:        in,
	}
}

func printText(w io.Writer, result estimateOutput) error {
	est := result.Breakdown
	printf(w, "Total Retirement Savings Needed: %s\n\n", result.Formatted)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	printf(tw, "  Annual expenses today\t%s\n", core.FormatCurrency(est.AnnualExpenses))
	printf(tw, "  Years until retirement\t%g\n", est.YearsToRetirement)
	printf(tw, "  Annual expenses at retirement\t%s\n", core.FormatCurrency(est.InflationAdjustedExpenses))
	printf(tw, "  Years in retirement\t%g\n", est.YearsInRetirement)
	printf(tw, "  Real return rate\t%.2f%%\n", core.RateToPercent(est.RealReturnRate))
	if err := tw.Flush(); err != nil {
		return err
	}
	printf(w, "\nCalculation ID: %s\n", result.CalculationID)
	return nil
}
