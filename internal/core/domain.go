package core

import (
	"math"
)

type (
	// RetirementInputs is the flat set of values a single estimate is computed from.
	// Monthly figures are annualized by 12, annual figures are added as they are.
	// Rates are fractions (0.035 is 3.5%).
	RetirementInputs struct {
		HousingMonthly    float64 `json:"housing_monthly" yaml:"housing_monthly" toml:"housing_monthly"`
		LivingMonthly     float64 `json:"living_monthly" yaml:"living_monthly" toml:"living_monthly"`
		GoingOutMonthly   float64 `json:"going_out_monthly" yaml:"going_out_monthly" toml:"going_out_monthly"`
		VacationAnnual    float64 `json:"vacation_annual" yaml:"vacation_annual" toml:"vacation_annual"`
		MembershipAnnual  float64 `json:"membership_annual" yaml:"membership_annual" toml:"membership_annual"`
		FamilyMonthly     float64 `json:"family_monthly" yaml:"family_monthly" toml:"family_monthly"`
		EmergencyAnnual   float64 `json:"emergency_annual" yaml:"emergency_annual" toml:"emergency_annual"`
		HealthcareMonthly float64 `json:"healthcare_monthly" yaml:"healthcare_monthly" toml:"healthcare_monthly"`

		CurrentAge     float64 `json:"current_age" yaml:"current_age" toml:"current_age"`
		RetirementAge  float64 `json:"retirement_age" yaml:"retirement_age" toml:"retirement_age"`
		LifeExpectancy float64 `json:"life_expectancy" yaml:"life_expectancy" toml:"life_expectancy"`

		InflationRate float64 `json:"inflation_rate" yaml:"inflation_rate" toml:"inflation_rate"`
		ReturnRate    float64 `json:"return_rate" yaml:"return_rate" toml:"return_rate"`
	}

	// Estimate is a successful calculation. TotalSavings is the lump sum needed at
	// retirement; the other fields are the intermediate steps, kept for display.
	Estimate struct {
		AnnualExpenses            float64 `json:"annual_expenses"`
		YearsToRetirement         float64 `json:"years_to_retirement"`
		InflationAdjustedExpenses float64 `json:"inflation_adjusted_expenses"`
		YearsInRetirement         float64 `json:"years_in_retirement"`
		RealReturnRate            float64 `json:"real_return_rate"`
		TotalSavings              float64 `json:"total_savings"`
	}
)

// Field names, in validation order.
const (
	FieldHousingMonthly    = "housing_monthly"
	FieldLivingMonthly     = "living_monthly"
	FieldGoingOutMonthly   = "going_out_monthly"
	FieldVacationAnnual    = "vacation_annual"
	FieldMembershipAnnual  = "membership_annual"
	FieldFamilyMonthly     = "family_monthly"
	FieldEmergencyAnnual   = "emergency_annual"
	FieldHealthcareMonthly = "healthcare_monthly"
	FieldCurrentAge        = "current_age"
	FieldRetirementAge     = "retirement_age"
	FieldLifeExpectancy    = "life_expectancy"
	FieldInflationRate     = "inflation_rate"
	FieldReturnRate        = "return_rate"
)

// DefaultInputs returns the scenario the form starts from.
func DefaultInputs() RetirementInputs {
	return RetirementInputs{
		HousingMonthly:    7000,
		LivingMonthly:     2000,
		GoingOutMonthly:   1500,
		VacationAnnual:    10000,
		MembershipAnnual:  25000,
		FamilyMonthly:     500,
		EmergencyAnnual:   5000,
		HealthcareMonthly: 2000,
		CurrentAge:        50,
		RetirementAge:     60,
		LifeExpectancy:    85,
		InflationRate:     0.035,
		ReturnRate:        0.05,
	}
}

type namedValue struct {
	name  string
	value *float64
}

// fields exposes every input with its name so validation and clamping walk
// the same list in the same order.
func (in *RetirementInputs) fields() []namedValue {
	return []namedValue{
		{FieldHousingMonthly, &in.HousingMonthly},
		{FieldLivingMonthly, &in.LivingMonthly},
		{FieldGoingOutMonthly, &in.GoingOutMonthly},
		{FieldVacationAnnual, &in.VacationAnnual},
		{FieldMembershipAnnual, &in.MembershipAnnual},
		{FieldFamilyMonthly, &in.FamilyMonthly},
		{FieldEmergencyAnnual, &in.EmergencyAnnual},
		{FieldHealthcareMonthly, &in.HealthcareMonthly},
		{FieldCurrentAge, &in.CurrentAge},
		{FieldRetirementAge, &in.RetirementAge},
		{FieldLifeExpectancy, &in.LifeExpectancy},
		{FieldInflationRate, &in.InflationRate},
		{FieldReturnRate, &in.ReturnRate},
	}
}

// Validate checks every constraint on the inputs: finite, non-negative and
// ordered ages. It does not look at the real return rate.
func (in RetirementInputs) Validate() error {
	if err := in.validateValues(); err != nil {
		return err
	}
	return in.validateAges()
}

func (in RetirementInputs) validateValues() error {
	for _, f := range in.fields() {
		v := *f.value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &CalculationError{Kind: KindInvalidInput, Field: f.name, Reason: "value is not a finite number"}
		}
		if v < 0 {
			return &CalculationError{Kind: KindInvalidInput, Field: f.name, Reason: "value is negative"}
		}
	}
	return nil
}

func (in RetirementInputs) validateAges() error {
	if in.RetirementAge <= in.CurrentAge {
		return &CalculationError{
			Kind:   KindInvalidAgeOrdering,
			Field:  FieldRetirementAge,
			Reason: "retirement age is less than or equal to current age",
		}
	}
	if in.LifeExpectancy <= in.RetirementAge {
		return &CalculationError{
			Kind:   KindInvalidAgeOrdering,
			Field:  FieldLifeExpectancy,
			Reason: "life expectancy is less than or equal to retirement age",
		}
	}
	return nil
}

// clampNegative returns a copy with every negative field raised to zero.
// NaN and infinities are left alone so validation still rejects them.
func (in RetirementInputs) clampNegative() RetirementInputs {
	out := in
	for _, f := range out.fields() {
		if *f.value < 0 {
			*f.value = 0
		}
	}
	return out
}
