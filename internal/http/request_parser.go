// Package http provides HTTP server and handler implementations.
//
// This file turns estimate requests, form-encoded from the page or JSON from
// the API, into core.RetirementInputs.

package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"retire/internal/core"
)

// maxBodyBytes bounds estimate request bodies.
const maxBodyBytes = 64 << 10

// estimateForm holds the raw form values. Rates are percentages, as on the
// sliders.
type estimateForm struct {
	HousingMonthly    string `form:"housing_monthly" validate:"required,max=32"`
	LivingMonthly     string `form:"living_monthly" validate:"required,max=32"`
	GoingOutMonthly   string `form:"going_out_monthly" validate:"required,max=32"`
	VacationAnnual    string `form:"vacation_annual" validate:"required,max=32"`
	MembershipAnnual  string `form:"membership_annual" validate:"required,max=32"`
	FamilyMonthly     string `form:"family_monthly" validate:"required,max=32"`
	EmergencyAnnual   string `form:"emergency_annual" validate:"required,max=32"`
	HealthcareMonthly string `form:"healthcare_monthly" validate:"required,max=32"`
	CurrentAge        string `form:"current_age" validate:"required,max=32"`
	RetirementAge     string `form:"retirement_age" validate:"required,max=32"`
	LifeExpectancy    string `form:"life_expectancy" validate:"required,max=32"`
	InflationPercent  string `form:"inflation_rate" validate:"required,max=32"`
	ReturnPercent     string `form:"return_rate" validate:"required,max=32"`
}

// estimateRequest is the JSON body of POST /api/estimate. Rates are
// fractions. Pointers tell a missing field from an explicit zero.
type estimateRequest struct {
	HousingMonthly    *float64 `json:"housing_monthly" validate:"required"`
	LivingMonthly     *float64 `json:"living_monthly" validate:"required"`
	GoingOutMonthly   *float64 `json:"going_out_monthly" validate:"required"`
	VacationAnnual    *float64 `json:"vacation_annual" validate:"required"`
	MembershipAnnual  *float64 `json:"membership_annual" validate:"required"`
	FamilyMonthly     *float64 `json:"family_monthly" validate:"required"`
	EmergencyAnnual   *float64 `json:"emergency_annual" validate:"required"`
	HealthcareMonthly *float64 `json:"healthcare_monthly" validate:"required"`
	CurrentAge        *float64 `json:"current_age" validate:"required"`
	RetirementAge     *float64 `json:"retirement_age" validate:"required"`
	LifeExpectancy    *float64 `json:"life_expectancy" validate:"required"`
	InflationRate     *float64 `json:"inflation_rate" validate:"required"`
	ReturnRate        *float64 `json:"return_rate" validate:"required"`
}

// RequestError is a request that could not be turned into inputs at all. It
// maps to 400 and is not recorded as a calculation.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// newValidator reports field errors under their form or json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			if name, _, _ := strings.Cut(fld.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// describeValidation turns validator errors into one user-facing line.
func describeValidation(err error) *RequestError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{Message: "Invalid request."}
	}
	var missing, tooLong []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		default:
			tooLong = append(tooLong, fe.Field())
		}
	}
	sort.Strings(missing)
	sort.Strings(tooLong)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "Missing value for: "+strings.Join(missing, ", ")+".")
	}
	if len(tooLong) > 0 {
		parts = append(parts, "Value too long for: "+strings.Join(tooLong, ", ")+".")
	}
	return &RequestError{Message: strings.Join(parts, " ")}
}

func decodeEstimateForm(values url.Values) estimateForm {
	get := func(key string) string { return sanitizeInput(values.Get(key)) }
	return estimateForm{
		HousingMonthly:    get(core.FieldHousingMonthly),
		LivingMonthly:     get(core.FieldLivingMonthly),
		GoingOutMonthly:   get(core.FieldGoingOutMonthly),
		VacationAnnual:    get(core.FieldVacationAnnual),
		MembershipAnnual:  get(core.FieldMembershipAnnual),
		FamilyMonthly:     get(core.FieldFamilyMonthly),
		EmergencyAnnual:   get(core.FieldEmergencyAnnual),
		HealthcareMonthly: get(core.FieldHealthcareMonthly),
		CurrentAge:        get(core.FieldCurrentAge),
		RetirementAge:     get(core.FieldRetirementAge),
		LifeExpectancy:    get(core.FieldLifeExpectancy),
		InflationPercent:  get(core.FieldInflationRate),
		ReturnPercent:     get(core.FieldReturnRate),
	}
}

// inputs parses every value. It returns the fields parsed so far together
// with an INVALID_INPUT error naming the first field that is not a number.
func (f estimateForm) inputs() (core.RetirementInputs, error) {
	var in core.RetirementInputs
	fields := []struct {
		name    string
		raw     string
		dst     *float64
		percent bool
	}{
		{core.FieldHousingMonthly, f.HousingMonthly, &in.HousingMonthly, false},
		{core.FieldLivingMonthly, f.LivingMonthly, &in.LivingMonthly, false},
		{core.FieldGoingOutMonthly, f.GoingOutMonthly, &in.GoingOutMonthly, false},
		{core.FieldVacationAnnual, f.VacationAnnual, &in.VacationAnnual, false},
		{core.FieldMembershipAnnual, f.MembershipAnnual, &in.MembershipAnnual, false},
		{core.FieldFamilyMonthly, f.FamilyMonthly, &in.FamilyMonthly, false},
		{core.FieldEmergencyAnnual, f.EmergencyAnnual, &in.EmergencyAnnual, false},
		{core.FieldHealthcareMonthly, f.HealthcareMonthly, &in.HealthcareMonthly, false},
		{core.FieldCurrentAge, f.CurrentAge, &in.CurrentAge, false},
		{core.FieldRetirementAge, f.RetirementAge, &in.RetirementAge, false},
		{core.FieldLifeExpectancy, f.LifeExpectancy, &in.LifeExpectancy, false},
		{core.FieldInflationRate, f.InflationPercent, &in.InflationRate, true},
		{core.FieldReturnRate, f.ReturnPercent, &in.ReturnRate, true},
	}
	for _, fld := range fields {
		v, err := core.ParseNumber(fld.raw)
		if err != nil {
			return in, &core.CalculationError{
				Kind:   core.KindInvalidInput,
				Field:  fld.name,
				Reason: fmt.Sprintf("%q is not a number", fld.raw),
			}
		}
		if fld.percent {
			v = core.PercentToRate(v)
		}
		*fld.dst = v
	}
	return in, nil
}

func (req estimateRequest) inputs() core.RetirementInputs {
	return core.RetirementInputs{
		HousingMonthly:    *req.HousingMonthly,
		LivingMonthly:     *req.LivingMonthly,
		GoingOutMonthly:   *req.GoingOutMonthly,
		VacationAnnual:    *req.VacationAnnual,
		MembershipAnnual:  *req.MembershipAnnual,
		FamilyMonthly:     *req.FamilyMonthly,
		EmergencyAnnual:   *req.EmergencyAnnual,
		HealthcareMonthly: *req.HealthcareMonthly,
		CurrentAge:        *req.CurrentAge,
		RetirementAge:     *req.RetirementAge,
		LifeExpectancy:    *req.LifeExpectancy,
		InflationRate:     *req.InflationRate,
		ReturnRate:        *req.ReturnRate,
	}
}

// parseEstimateForm validates the posted form. A *RequestError means the form
// is incomplete; a *core.CalculationError means a value is not a number, in
// which case the partially parsed inputs are returned for recording.
func parseEstimateForm(w http.ResponseWriter, r *http.Request, v *validator.Validate) (core.RetirementInputs, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return core.RetirementInputs{}, &RequestError{Message: "Invalid request format."}
	}
	form := decodeEstimateForm(r.PostForm)
	if err := v.Struct(form); err != nil {
		return core.RetirementInputs{}, describeValidation(err)
	}
	return form.inputs()
}

// parseEstimateJSON decodes and validates an API request body.
func parseEstimateJSON(r *http.Request, v *validator.Validate) (core.RetirementInputs, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	var req estimateRequest
	if err := dec.Decode(&req); err != nil {
		return core.RetirementInputs{}, &RequestError{Message: "Invalid JSON body: " + err.Error()}
	}
	if err := v.Struct(req); err != nil {
		return core.RetirementInputs{}, describeValidation(err)
	}
	return req.inputs(), nil
}

// formValues renders inputs back into form values, rates as percentages.
// Used to pre-fill the page.
func formValues(in core.RetirementInputs) map[string]float64 {
	return map[string]float64{
		core.FieldHousingMonthly:    in.HousingMonthly,
		core.FieldLivingMonthly:     in.LivingMonthly,
		core.FieldGoingOutMonthly:   in.GoingOutMonthly,
		core.FieldVacationAnnual:    in.VacationAnnual,
		core.FieldMembershipAnnual:  in.MembershipAnnual,
		core.FieldFamilyMonthly:     in.FamilyMonthly,
		core.FieldEmergencyAnnual:   in.EmergencyAnnual,
		core.FieldHealthcareMonthly: in.HealthcareMonthly,
		core.FieldCurrentAge:        in.CurrentAge,
		core.FieldRetirementAge:     in.RetirementAge,
		core.FieldLifeExpectancy:    in.LifeExpectancy,
		core.FieldInflationRate:     core.RateToPercent(in.InflationRate),
		core.FieldReturnRate:        core.RateToPercent(in.ReturnRate),
	}
}
