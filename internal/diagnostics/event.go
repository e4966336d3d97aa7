// Package diagnostics records one event per retirement calculation.
//
// The calculator in package core never sees this package: the caller builds
// an Event from the calculator's result and hands it to a Sink. Sinks are
// append-only; readers return the most recent events first.
package diagnostics

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"retire/internal/core"
)

// Outcome is the result class of a calculation.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Source names the surface that asked for the calculation.
type Source string

const (
	SourceWeb Source = "web"
	SourceAPI Source = "api"
	SourceCLI Source = "cli"
)

// Event is the diagnostic record of a single calculation. On failure Reason
// holds the internal error text, which is never shown to end users.
type Event struct {
	ID           string                `json:"id"`
	Timestamp    time.Time             `json:"timestamp"`
	Source       Source                `json:"source"`
	RequestID    string                `json:"request_id,omitempty"`
	Outcome      Outcome               `json:"outcome"`
	TotalSavings float64               `json:"total_savings,omitempty"`
	FailureKind  core.FailureKind      `json:"failure_kind,omitempty"`
	Reason       string                `json:"reason,omitempty"`
	Duration     time.Duration         `json:"duration_ns"`
	Inputs       core.RetirementInputs `json:"inputs"`
}

// NewEvent builds the record for one calculation. err is the calculator's
// error, or nil when est is valid.
func NewEvent(source Source, requestID string, in core.RetirementInputs, est core.Estimate, err error, took time.Duration) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		RequestID: requestID,
		Duration:  took,
		Inputs:    in,
	}
	if err != nil {
		ev.Outcome = OutcomeFailure
		ev.FailureKind = core.KindOf(err)
		ev.Reason = err.Error()
		return ev
	}
	ev.Outcome = OutcomeSuccess
	ev.TotalSavings = est.TotalSavings
	return ev
}

// Succeeded reports whether the calculation produced an amount.
func (e Event) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}

// Message is the one-line human summary written to text logs.
func (e Event) Message() string {
	if e.Succeeded() {
		return "Calculation successful: Total Savings = " + core.FormatCurrency(e.TotalSavings)
	}
	return fmt.Sprintf("Calculation failed: %s", e.FailureKind)
}
