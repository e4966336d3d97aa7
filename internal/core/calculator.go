package core

import (
	"fmt"
	"math"
	"strings"
)

// MonthsPerYear annualizes the monthly expense fields.
const MonthsPerYear = 12

// Policy selects how negative inputs are treated.
type Policy int

const (
	// PolicyStrict rejects negative inputs with KindInvalidInput.
	PolicyStrict Policy = iota
	// PolicyClamp raises negative inputs to zero before validating.
	PolicyClamp
)

func (p Policy) String() string {
	switch p {
	case PolicyClamp:
		return "clamp"
	default:
		return "strict"
	}
}

// ParsePolicy accepts "strict" or "clamp" (case-insensitive). Empty means strict.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return PolicyStrict, nil
	case "clamp":
		return PolicyClamp, nil
	default:
		return PolicyStrict, fmt.Errorf("unknown input policy %q: must be strict or clamp", s)
	}
}

// Calculator computes retirement estimates. The zero value uses PolicyStrict.
// It holds no state and is safe for concurrent use.
type Calculator struct {
	Policy Policy
}

// NewCalculator returns a calculator with the given input policy.
func NewCalculator(p Policy) Calculator {
	return Calculator{Policy: p}
}

// Compute runs the strict calculator on in.
func Compute(in RetirementInputs) (Estimate, error) {
	return Calculator{}.Compute(in)
}

// Compute returns the lump sum needed at retirement to fund the inflation
// adjusted annual expenses of in for every year between retirement age and
// life expectancy, discounted at the real return rate. Every failure is a
// *CalculationError.
func (c Calculator) Compute(in RetirementInputs) (Estimate, error) {
	if c.Policy == PolicyClamp {
		in = in.clampNegative()
	}
	if err := in.Validate(); err != nil {
		return Estimate{}, err
	}

	est := Estimate{
		AnnualExpenses: MonthsPerYear*(in.HousingMonthly+in.LivingMonthly+in.GoingOutMonthly+in.FamilyMonthly+in.HealthcareMonthly) +
			in.VacationAnnual + in.MembershipAnnual + in.EmergencyAnnual,
		YearsToRetirement: in.RetirementAge - in.CurrentAge,
		YearsInRetirement: in.LifeExpectancy - in.RetirementAge,
		RealReturnRate:    in.ReturnRate - in.InflationRate,
	}
	if !isFinite(est.AnnualExpenses) {
		return Estimate{}, overflow("annual expenses")
	}

	est.InflationAdjustedExpenses = est.AnnualExpenses * math.Pow(1+in.InflationRate, est.YearsToRetirement)
	if !isFinite(est.InflationAdjustedExpenses) {
		return Estimate{}, overflow("inflation adjusted expenses")
	}

	// Must short-circuit before the annuity factor divides by the rate.
	if est.RealReturnRate <= 0 {
		return Estimate{}, &CalculationError{
			Kind:   KindNonPositiveRealReturn,
			Field:  FieldReturnRate,
			Reason: fmt.Sprintf("return rate %g minus inflation rate %g is %g", in.ReturnRate, in.InflationRate, est.RealReturnRate),
		}
	}

	est.TotalSavings = est.InflationAdjustedExpenses * annuityFactor(est.RealReturnRate, est.YearsInRetirement)
	if !isFinite(est.TotalSavings) {
		return Estimate{}, overflow("total savings")
	}
	return est, nil
}

// annuityFactor is the present value of 1 paid yearly for n years at rate r,
// (1 - (1+r)^-n) / r, written with expm1/log1p so tiny rates keep precision.
func annuityFactor(r, n float64) float64 {
	return -math.Expm1(-n*math.Log1p(r)) / r
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func overflow(step string) *CalculationError {
	return &CalculationError{Kind: KindComputationFailure, Reason: step + " is not finite"}
}
