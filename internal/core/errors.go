package core

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a calculation produced no amount.
type FailureKind string

// Failure kinds, as recorded in diagnostics events.
const (
	KindInvalidInput          FailureKind = "INVALID_INPUT"
	KindInvalidAgeOrdering    FailureKind = "INVALID_AGE_ORDERING"
	KindNonPositiveRealReturn FailureKind = "NON_POSITIVE_REAL_RETURN"
	KindComputationFailure    FailureKind = "COMPUTATION_FAILURE"
)

// Sentinels a *CalculationError unwraps to, one per FailureKind, for use
// with errors.Is.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidAgeOrdering    = errors.New("invalid age ordering")
	ErrNonPositiveRealReturn = errors.New("non-positive real return rate")
	ErrComputationFailure    = errors.New("computation failure")
)

func (k FailureKind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindInvalidAgeOrdering:
		return ErrInvalidAgeOrdering
	case KindNonPositiveRealReturn:
		return ErrNonPositiveRealReturn
	default:
		return ErrComputationFailure
	}
}

// CalculationError is the failure half of a calculation result. Reason is
// internal detail meant for diagnostics, never for the end user.
type CalculationError struct {
	Kind   FailureKind
	Field  string
	Reason string
}

func (e *CalculationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind.sentinel(), e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind.sentinel(), e.Reason)
}

func (e *CalculationError) Unwrap() error {
	return e.Kind.sentinel()
}

// KindOf reports the failure kind carried by err. Errors that did not come
// from the calculator are reported as computation failures.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var ce *CalculationError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindComputationFailure
}

// UserMessage maps an error to the corrective text shown to the user.
func UserMessage(err error) string {
	var ce *CalculationError
	if !errors.As(err, &ce) {
		return "An error occurred during the calculation. Please check your inputs."
	}
	switch ce.Kind {
	case KindInvalidInput:
		return "All amounts, ages and rates must be non-negative numbers."
	case KindInvalidAgeOrdering:
		if ce.Field == FieldLifeExpectancy {
			return "Life expectancy must be greater than retirement age."
		}
		return "Retirement age must be greater than current age."
	case KindNonPositiveRealReturn:
		return "The real return rate must be greater than 0. Adjust inflation or return rates."
	default:
		return "An error occurred during the calculation. Please check your inputs."
	}
}
