package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"retire/internal/core"
	"retire/internal/diagnostics"
	"retire/internal/diagnostics/memory"
	"retire/internal/middleware/trace"
)

type failingSink struct {
	calls  int
	closed bool
}

func (f *failingSink) Record(context.Context, diagnostics.Event) error {
	f.calls++
	return errors.New("sink unavailable")
}

func (f *failingSink) Close() error {
	f.closed = true
	return errors.New("close failed")
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestEstimateServiceRecordsSuccess(t *testing.T) {
	store := memory.New(10)
	var buf bytes.Buffer
	svc := NewEstimateService(core.Calculator{}, store, store, newTestLogger(&buf))

	ctx := context.WithValue(context.Background(), trace.RequestIDKey, "req_test")
	calc, err := svc.Estimate(ctx, diagnostics.SourceWeb, core.DefaultInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calc.ID == "" || calc.TotalSavings <= 0 {
		t.Fatalf("unexpected calculation: %+v", calc)
	}

	events, err := svc.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.ID != calc.ID || ev.RequestID != "req_test" || ev.Source != diagnostics.SourceWeb || !ev.Succeeded() {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !strings.Contains(buf.String(), "Calculation successful: Total Savings = $5,728,503.34") {
		t.Fatalf("expected success log line, got:\n%s", buf.String())
	}
}

func TestEstimateServiceRecordsFailure(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*core.RetirementInputs)
		is     error
	}{
		{"real return", func(in *core.RetirementInputs) { in.ReturnRate = 0.02 }, core.ErrNonPositiveRealReturn},
		{"ages", func(in *core.RetirementInputs) { in.CurrentAge, in.RetirementAge = 60, 50 }, core.ErrInvalidAgeOrdering},
		{"negative", func(in *core.RetirementInputs) { in.HousingMonthly = -100 }, core.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.New(10)
			var buf bytes.Buffer
			svc := NewEstimateService(core.Calculator{}, store, store, newTestLogger(&buf))

			in := core.DefaultInputs()
			tc.mutate(&in)
			calc, err := svc.Estimate(context.Background(), diagnostics.SourceAPI, in)
			if !errors.Is(err, tc.is) {
				t.Fatalf("expected %v, got %v", tc.is, err)
			}
			if calc.TotalSavings != 0 {
				t.Fatalf("failure must not carry an amount: %+v", calc)
			}
			if !IsUserError(err) {
				t.Fatalf("expected a user error")
			}
			if out := buf.String(); !strings.Contains(out, "level=WARN") || strings.Contains(out, "level=ERROR") {
				t.Fatalf("expected a warning only, got:\n%s", out)
			}

			events, _ := store.Recent(context.Background(), 0)
			if len(events) != 1 || events[0].Succeeded() || events[0].ID != calc.ID {
				t.Fatalf("expected one failure event, got %+v", events)
			}
		})
	}
}

func TestEstimateServiceSinkFailureIsNotFatal(t *testing.T) {
	sink := &failingSink{}
	var buf bytes.Buffer
	svc := NewEstimateService(core.Calculator{}, sink, nil, newTestLogger(&buf))

	calc, err := svc.Estimate(context.Background(), diagnostics.SourceCLI, core.DefaultInputs())
	if err != nil {
		t.Fatalf("sink failure must not fail the estimate: %v", err)
	}
	if calc.TotalSavings <= 0 || sink.calls != 1 {
		t.Fatalf("unexpected result %+v, sink calls %d", calc, sink.calls)
	}
	if !strings.Contains(buf.String(), "Failed to record calculation event") {
		t.Fatalf("expected sink error to be logged, got:\n%s", buf.String())
	}

	if _, err := svc.Recent(context.Background(), 5); !errors.Is(err, diagnostics.ErrNoReader) {
		t.Fatalf("expected ErrNoReader, got %v", err)
	}
	if svc.CanListEvents() {
		t.Fatalf("expected no reader")
	}
	if err := svc.Close(); err == nil || !sink.closed {
		t.Fatalf("expected close to reach the sink and report its error")
	}
}

func TestEstimateServiceReject(t *testing.T) {
	store := memory.New(10)
	var buf bytes.Buffer
	svc := NewEstimateService(core.Calculator{}, store, store, newTestLogger(&buf))

	in := core.DefaultInputs()
	in.LifeExpectancy = 55
	id := svc.Reject(context.Background(), diagnostics.SourceWeb, in, &core.CalculationError{
		Kind:   core.KindInvalidAgeOrdering,
		Field:  core.FieldLifeExpectancy,
		Reason: "life expectancy is less than or equal to retirement age",
	})

	events, _ := store.Recent(context.Background(), 1)
	if len(events) != 1 || events[0].ID != id || events[0].FailureKind != core.KindInvalidAgeOrdering {
		t.Fatalf("unexpected events: %+v", events)
	}

	if strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("rejected inputs must not log at error level:\n%s", buf.String())
	}

	buf.Reset()
	svc.Reject(context.Background(), diagnostics.SourceWeb, in, nil)
	events, _ = store.Recent(context.Background(), 1)
	if events[0].FailureKind != core.KindComputationFailure {
		t.Fatalf("expected nil reason to record a computation failure, got %s", events[0].FailureKind)
	}
	if out := buf.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, `msg="Calculation failed"`) {
		t.Fatalf("expected an error log for a computation failure, got:\n%s", out)
	}
}

func TestEstimateServiceClampPolicy(t *testing.T) {
	svc := NewEstimateService(core.NewCalculator(core.PolicyClamp), nil, nil, newTestLogger(&bytes.Buffer{}))
	if svc.Policy() != core.PolicyClamp {
		t.Fatalf("expected clamp policy")
	}
	in := core.DefaultInputs()
	in.VacationAnnual = -5
	if _, err := svc.Estimate(context.Background(), diagnostics.SourceWeb, in); err != nil {
		t.Fatalf("clamp policy should accept negatives: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close without sink: %v", err)
	}
}
