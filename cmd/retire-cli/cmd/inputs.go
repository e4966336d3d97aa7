package cmd

import (
	"github.com/spf13/cobra"

	"retire/internal/core"
	"retire/internal/scenario"
)

// inputFlag binds one command line flag to one input field. Percent flags
// take 3.5 for 3.5% and are stored as fractions.
type inputFlag struct {
	name    string
	usage   string
	percent bool
	field   func(*core.RetirementInputs) *float64
}

var inputFlags = []inputFlag{
	{"housing-monthly", "Monthly housing cost", false, func(in *core.RetirementInputs) *float64 { return &in.HousingMonthly }},
	{"living-monthly", "Monthly living expenses", false, func(in *core.RetirementInputs) *float64 { return &in.LivingMonthly }},
	{"going-out-monthly", "Monthly spending on going out", false, func(in *core.RetirementInputs) *float64 { return &in.GoingOutMonthly }},
	{"vacation-annual", "Annual vacation budget", false, func(in *core.RetirementInputs) *float64 { return &in.VacationAnnual }},
	{"membership-annual", "Annual memberships and fees", false, func(in *core.RetirementInputs) *float64 { return &in.MembershipAnnual }},
	{"family-monthly", "Monthly family support", false, func(in *core.RetirementInputs) *float64 { return &in.FamilyMonthly }},
	{"emergency-annual", "Annual emergency fund", false, func(in *core.RetirementInputs) *float64 { return &in.EmergencyAnnual }},
	{"healthcare-monthly", "Monthly healthcare cost", false, func(in *core.RetirementInputs) *float64 { return &in.HealthcareMonthly }},
	{"current-age", "Current age in years", false, func(in *core.RetirementInputs) *float64 { return &in.CurrentAge }},
	{"retirement-age", "Retirement age in years", false, func(in *core.RetirementInputs) *float64 { return &in.RetirementAge }},
	{"life-expectancy", "Life expectancy in years", false, func(in *core.RetirementInputs) *float64 { return &in.LifeExpectancy }},
	{"inflation-rate", "Annual inflation rate in percent", true, func(in *core.RetirementInputs) *float64 { return &in.InflationRate }},
	{"return-rate", "Annual return on investment in percent", true, func(in *core.RetirementInputs) *float64 { return &in.ReturnRate }},
}

func addInputFlags(cmd *cobra.Command) {
	defaults := core.DefaultInputs()
	for _, f := range inputFlags {
		def := *f.field(&defaults)
		if f.percent {
			def = core.RateToPercent(def)
		}
		cmd.Flags().Float64(f.name, def, f.usage)
	}
	cmd.Flags().String("scenario", "", "Scenario file (.yaml, .yml, .toml or .json) loaded over the defaults")
}

// resolveInputs layers defaults, the scenario file and the flags that were
// set explicitly, in that order.
func resolveInputs(cmd *cobra.Command) (core.RetirementInputs, error) {
	in := core.DefaultInputs()
	if path, _ := cmd.Flags().GetString("scenario"); path != "" {
		loaded, err := scenario.Load(path, in)
		if err != nil {
			return in, err
		}
		in = loaded
	}
	for _, f := range inputFlags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		v, err := cmd.Flags().GetFloat64(f.name)
		if err != nil {
			return in, err
		}
		if f.percent {
			v = core.PercentToRate(v)
		}
		*f.field(&in) = v
	}
	return in, nil
}
