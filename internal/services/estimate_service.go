package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"retire/internal/core"
	"retire/internal/diagnostics"
	"retire/internal/log"
	"retire/internal/middleware/trace"
)

// Calculation is a successful estimate together with the id of the
// diagnostics event recorded for it.
type Calculation struct {
	ID string `json:"calculation_id"`
	core.Estimate
}

// EstimateService runs the calculator and records exactly one diagnostics
// event per invocation.
type EstimateService struct {
	calc   core.Calculator
	sink   diagnostics.Sink
	reader diagnostics.Reader
	logger *slog.Logger
	events *log.StructuredLogger
}

// NewEstimateService wires the calculator to its diagnostics. sink and reader
// may be nil.
func NewEstimateService(calc core.Calculator, sink diagnostics.Sink, reader diagnostics.Reader, logger *slog.Logger) *EstimateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EstimateService{
		calc:   calc,
		sink:   sink,
		reader: reader,
		logger: logger,
		events: log.NewStructuredLogger(log.FromSlog(logger, log.ComponentCalc)),
	}
}

// Policy returns the input policy of the underlying calculator.
func (s *EstimateService) Policy() core.Policy {
	return s.calc.Policy
}

// Estimate computes the savings needed for in. The calculator's error is
// returned unchanged so callers can map it with core.UserMessage. A failing
// sink is logged and never fails the estimate.
func (s *EstimateService) Estimate(ctx context.Context, source diagnostics.Source, in core.RetirementInputs) (Calculation, error) {
	start := time.Now()
	est, err := s.calc.Compute(in)
	took := time.Since(start)

	ev := diagnostics.NewEvent(source, trace.GetRequestID(ctx), in, est, err, took)
	s.record(ctx, ev, err)

	if err != nil {
		return Calculation{ID: ev.ID}, err
	}
	return Calculation{ID: ev.ID, Estimate: est}, nil
}

// Reject records a calculation that a surface refused before calling the
// calculator, e.g. when the form's age ordering is wrong. err should be a
// *core.CalculationError; anything else is recorded as a computation failure.
func (s *EstimateService) Reject(ctx context.Context, source diagnostics.Source, in core.RetirementInputs, err error) string {
	if err == nil {
		err = &core.CalculationError{Kind: core.KindComputationFailure, Reason: "rejected without a reason"}
	}
	ev := diagnostics.NewEvent(source, trace.GetRequestID(ctx), in, core.Estimate{}, err, 0)
	s.record(ctx, ev, err)
	return ev.ID
}

// Recent lists recorded events, newest first.
func (s *EstimateService) Recent(ctx context.Context, limit int) ([]diagnostics.Event, error) {
	if s.reader == nil {
		return nil, diagnostics.ErrNoReader
	}
	events, err := s.reader.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	return events, nil
}

// CanListEvents reports whether Recent is backed by a reader.
func (s *EstimateService) CanListEvents() bool {
	return s.reader != nil
}

// record logs the outcome and hands ev to the sink. Rejected inputs are
// warnings; a computation failure is logged as an error.
func (s *EstimateService) record(ctx context.Context, ev diagnostics.Event, err error) {
	switch {
	case err == nil:
		s.events.LogCalculation(ctx, ev.Message(), ev.ID, string(ev.Source), string(ev.Outcome), "", "")
	case IsUserError(err):
		s.events.LogCalculation(ctx, "Calculation returned no value", ev.ID, string(ev.Source), string(ev.Outcome), string(ev.FailureKind), ev.Reason)
	default:
		s.events.LogError(ctx, "Calculation failed", err, log.OpEstimate,
			log.NewFields().
				WithCalculation(ev.ID, string(ev.Source), string(ev.Outcome)).
				WithFailure(string(ev.FailureKind), ev.Reason))
	}

	if s.sink == nil {
		s.logger.WarnContext(ctx, "Diagnostics sink not available, skipping event", "calculation_id", ev.ID)
		return
	}
	if err := s.sink.Record(ctx, ev); err != nil {
		// The estimate stands even if diagnostics are down.
		s.events.LogError(ctx, "Failed to record calculation event", err, log.OpRecord,
			log.NewFields().WithCalculation(ev.ID, string(ev.Source), string(ev.Outcome)))
	}
}

// Close releases the diagnostics sink.
func (s *EstimateService) Close() error {
	if s.sink == nil {
		return nil
	}
	if err := s.sink.Close(); err != nil {
		return fmt.Errorf("close estimate service: %w", err)
	}
	return nil
}

// IsUserError reports whether err came from input validation or the real
// return guard, as opposed to an unexpected computation failure.
func IsUserError(err error) bool {
	return errors.Is(err, core.ErrInvalidInput) ||
		errors.Is(err, core.ErrInvalidAgeOrdering) ||
		errors.Is(err, core.ErrNonPositiveRealReturn)
}
