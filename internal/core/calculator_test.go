package core

import (
	"errors"
	"math"
	"testing"
)

func approxEqual(got, want, relTol float64) bool {
	if want == 0 {
		return got == 0
	}
	return math.Abs(got-want)/math.Abs(want) <= relTol
}

func TestComputeDefaultScenario(t *testing.T) {
	est, err := Compute(DefaultInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.AnnualExpenses != 196000 {
		t.Fatalf("annual expenses: got %v, want 196000", est.AnnualExpenses)
	}
	if est.YearsToRetirement != 10 || est.YearsInRetirement != 25 {
		t.Fatalf("years: got %v/%v, want 10/25", est.YearsToRetirement, est.YearsInRetirement)
	}
	if !approxEqual(est.RealReturnRate, 0.015, 1e-9) {
		t.Fatalf("real return rate: got %v, want 0.015", est.RealReturnRate)
	}
	if !approxEqual(est.InflationAdjustedExpenses, 276477.3570817397, 1e-12) {
		t.Fatalf("inflation adjusted expenses: got %v", est.InflationAdjustedExpenses)
	}
	if !approxEqual(est.TotalSavings, 5728503.3438864, 1e-9) {
		t.Fatalf("total savings: got %v, want ~5728503.3438864", est.TotalSavings)
	}
	if got := FormatCurrency(est.TotalSavings); got != "$5,728,503.34" {
		t.Fatalf("formatted: got %q", got)
	}
}

func TestComputeMatchesClosedForm(t *testing.T) {
	in := DefaultInputs()
	in.CurrentAge, in.RetirementAge, in.LifeExpectancy = 30, 67, 92
	in.InflationRate, in.ReturnRate = 0.02, 0.07

	est, err := Compute(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	adj := est.AnnualExpenses * math.Pow(1.02, 37)
	r := 0.07 - 0.02
	want := (adj / r) * (1 - math.Pow(1+r, -25))
	if !approxEqual(est.TotalSavings, want, 1e-9) {
		t.Fatalf("got %v, want %v", est.TotalSavings, want)
	}
}

func TestComputeFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RetirementInputs)
		kind   FailureKind
		is     error
		field  string
	}{
		{
			name:   "real return negative",
			mutate: func(in *RetirementInputs) { in.ReturnRate, in.InflationRate = 0.02, 0.035 },
			kind:   KindNonPositiveRealReturn,
			is:     ErrNonPositiveRealReturn,
			field:  FieldReturnRate,
		},
		{
			name:   "real return zero",
			mutate: func(in *RetirementInputs) { in.ReturnRate, in.InflationRate = 0.04, 0.04 },
			kind:   KindNonPositiveRealReturn,
			is:     ErrNonPositiveRealReturn,
			field:  FieldReturnRate,
		},
		{
			name:   "retirement before current age",
			mutate: func(in *RetirementInputs) { in.CurrentAge, in.RetirementAge = 60, 50 },
			kind:   KindInvalidAgeOrdering,
			is:     ErrInvalidAgeOrdering,
			field:  FieldRetirementAge,
		},
		{
			name:   "retirement equals current age",
			mutate: func(in *RetirementInputs) { in.CurrentAge, in.RetirementAge = 60, 60 },
			kind:   KindInvalidAgeOrdering,
			is:     ErrInvalidAgeOrdering,
			field:  FieldRetirementAge,
		},
		{
			name:   "life expectancy before retirement",
			mutate: func(in *RetirementInputs) { in.RetirementAge, in.LifeExpectancy = 65, 60 },
			kind:   KindInvalidAgeOrdering,
			is:     ErrInvalidAgeOrdering,
			field:  FieldLifeExpectancy,
		},
		{
			name:   "negative housing",
			mutate: func(in *RetirementInputs) { in.HousingMonthly = -100 },
			kind:   KindInvalidInput,
			is:     ErrInvalidInput,
			field:  FieldHousingMonthly,
		},
		{
			name:   "negative rate",
			mutate: func(in *RetirementInputs) { in.InflationRate = -0.01 },
			kind:   KindInvalidInput,
			is:     ErrInvalidInput,
			field:  FieldInflationRate,
		},
		{
			name:   "NaN amount",
			mutate: func(in *RetirementInputs) { in.VacationAnnual = math.NaN() },
			kind:   KindInvalidInput,
			is:     ErrInvalidInput,
			field:  FieldVacationAnnual,
		},
		{
			name:   "infinite age",
			mutate: func(in *RetirementInputs) { in.LifeExpectancy = math.Inf(1) },
			kind:   KindInvalidInput,
			is:     ErrInvalidInput,
			field:  FieldLifeExpectancy,
		},
		{
			name:   "overflowing expenses",
			mutate: func(in *RetirementInputs) { in.HousingMonthly = math.MaxFloat64 },
			kind:   KindComputationFailure,
			is:     ErrComputationFailure,
		},
		{
			name: "overflowing inflation projection",
			mutate: func(in *RetirementInputs) {
				in.InflationRate, in.ReturnRate = 10, 11
				in.CurrentAge, in.RetirementAge, in.LifeExpectancy = 0, 400, 410
			},
			kind: KindComputationFailure,
			is:   ErrComputationFailure,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := DefaultInputs()
			tc.mutate(&in)

			est, err := Compute(in)
			if err == nil {
				t.Fatalf("expected error, got estimate %+v", est)
			}
			if est != (Estimate{}) {
				t.Fatalf("expected zero estimate on failure, got %+v", est)
			}
			if !errors.Is(err, tc.is) {
				t.Fatalf("expected errors.Is(%v), got %v", tc.is, err)
			}
			var ce *CalculationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CalculationError, got %T", err)
			}
			if ce.Kind != tc.kind {
				t.Fatalf("kind: got %s, want %s", ce.Kind, tc.kind)
			}
			if tc.field != "" && ce.Field != tc.field {
				t.Fatalf("field: got %q, want %q", ce.Field, tc.field)
			}
		})
	}
}

func TestComputeZeroExpenses(t *testing.T) {
	in := RetirementInputs{
		CurrentAge:     40,
		RetirementAge:  65,
		LifeExpectancy: 90,
		InflationRate:  0.03,
		ReturnRate:     0.06,
	}
	est, err := Compute(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.TotalSavings != 0 {
		t.Fatalf("expected exactly 0, got %v", est.TotalSavings)
	}
}

func TestComputeFractionalAges(t *testing.T) {
	in := DefaultInputs()
	in.CurrentAge, in.RetirementAge, in.LifeExpectancy = 50.5, 60.25, 85.75
	est, err := Compute(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.YearsToRetirement != 9.75 || est.YearsInRetirement != 25.5 {
		t.Fatalf("years: got %v/%v", est.YearsToRetirement, est.YearsInRetirement)
	}
	if est.TotalSavings <= 0 {
		t.Fatalf("expected positive savings, got %v", est.TotalSavings)
	}
}

func TestComputeTinyRealReturn(t *testing.T) {
	in := DefaultInputs()
	in.InflationRate, in.ReturnRate = 0.03, 0.03+1e-12
	est, err := Compute(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// As r -> 0 the annuity factor tends to n.
	want := est.InflationAdjustedExpenses * est.YearsInRetirement
	if !approxEqual(est.TotalSavings, want, 1e-6) {
		t.Fatalf("got %v, want ~%v", est.TotalSavings, want)
	}
}

func TestComputeClampPolicy(t *testing.T) {
	in := DefaultInputs()
	in.HousingMonthly = -100

	if _, err := NewCalculator(PolicyStrict).Compute(in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("strict: expected invalid input, got %v", err)
	}

	clamped, err := NewCalculator(PolicyClamp).Compute(in)
	if err != nil {
		t.Fatalf("clamp: unexpected error: %v", err)
	}
	zeroed := DefaultInputs()
	zeroed.HousingMonthly = 0
	want, _ := Compute(zeroed)
	if clamped != want {
		t.Fatalf("clamp: got %+v, want %+v", clamped, want)
	}

	in.VacationAnnual = math.NaN()
	if _, err := NewCalculator(PolicyClamp).Compute(in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("clamp: expected NaN to be rejected, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in   string
		want Policy
		ok   bool
	}{
		{"", PolicyStrict, true},
		{"strict", PolicyStrict, true},
		{" Clamp ", PolicyClamp, true},
		{"lenient", PolicyStrict, false},
	}
	for _, tc := range cases {
		got, err := ParsePolicy(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: got %v, %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.in)
		}
	}
	if PolicyClamp.String() != "clamp" || PolicyStrict.String() != "strict" {
		t.Fatalf("unexpected policy names")
	}
}

// sweep returns a small grid of valid inputs around the default scenario.
func sweep() []RetirementInputs {
	var out []RetirementInputs
	for _, current := range []float64{0, 25, 50} {
		for _, span := range []float64{1, 10, 40} {
			for _, horizon := range []float64{1, 20, 45} {
				for _, rates := range [][2]float64{{0, 0.01}, {0.02, 0.07}, {0.035, 0.05}, {0.1, 0.1001}} {
					in := DefaultInputs()
					in.CurrentAge = current
					in.RetirementAge = current + span
					in.LifeExpectancy = current + span + horizon
					in.InflationRate, in.ReturnRate = rates[0], rates[1]
					out = append(out, in)
				}
			}
		}
	}
	return out
}

func TestPropertyNonNegative(t *testing.T) {
	for _, in := range sweep() {
		est, err := Compute(in)
		if err != nil {
			t.Fatalf("unexpected error for %+v: %v", in, err)
		}
		if est.TotalSavings < 0 {
			t.Fatalf("negative result %v for %+v", est.TotalSavings, in)
		}
	}
}

func TestPropertyMonotonicInExpenses(t *testing.T) {
	for _, base := range sweep() {
		baseEst, err := Compute(base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 0; i < 8; i++ {
			bumped := base
			*bumped.fields()[i].value += 250
			est, err := Compute(bumped)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if est.TotalSavings < baseEst.TotalSavings {
				t.Fatalf("raising %s lowered the result: %v < %v", bumped.fields()[i].name, est.TotalSavings, baseEst.TotalSavings)
			}
		}
	}
}

func TestPropertyMonotonicInHorizon(t *testing.T) {
	for _, base := range sweep() {
		prev, err := Compute(base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		in := base
		for step := 0; step < 10; step++ {
			in.LifeExpectancy += 0.5
			est, err := Compute(in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if est.TotalSavings < prev.TotalSavings {
				t.Fatalf("longer retirement lowered the result at %v: %v < %v", in.LifeExpectancy, est.TotalSavings, prev.TotalSavings)
			}
			prev = est
		}
	}
}

func TestPropertyRealReturnGuard(t *testing.T) {
	for _, rates := range [][2]float64{{0.05, 0.05}, {0.05, 0.02}, {0, 0}, {0.2, 0.1999}} {
		in := DefaultInputs()
		in.InflationRate, in.ReturnRate = rates[0], rates[1]
		_, err := Compute(in)
		if KindOf(err) != KindNonPositiveRealReturn {
			t.Fatalf("rates %v: got %v", rates, err)
		}
	}
}

func TestPropertyAgeOrderingGuard(t *testing.T) {
	ages := [][3]float64{{50, 50, 85}, {50, 40, 85}, {50, 60, 60}, {50, 60, 55}, {70, 60, 50}}
	for _, a := range ages {
		in := DefaultInputs()
		in.CurrentAge, in.RetirementAge, in.LifeExpectancy = a[0], a[1], a[2]
		_, err := Compute(in)
		if KindOf(err) != KindInvalidAgeOrdering {
			t.Fatalf("ages %v: got %v", a, err)
		}
	}
}

func TestPropertyDeterministic(t *testing.T) {
	for _, in := range sweep() {
		a, errA := Compute(in)
		b, errB := Compute(in)
		if errA != nil || errB != nil {
			t.Fatalf("unexpected errors: %v %v", errA, errB)
		}
		if math.Float64bits(a.TotalSavings) != math.Float64bits(b.TotalSavings) {
			t.Fatalf("results differ: %v vs %v", a.TotalSavings, b.TotalSavings)
		}
	}
}
