package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"retire/internal/core"
)

func TestFileSinkRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "retirement_calculator.log")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	in := core.DefaultInputs()
	est, _ := core.Compute(in)
	ctx := context.Background()
	if err := sink.Record(ctx, NewEvent(SourceWeb, "req_abc", in, est, nil, 0)); err != nil {
		t.Fatalf("record success: %v", err)
	}

	bad := in
	bad.CurrentAge, bad.RetirementAge = 60, 50
	_, cerr := core.Compute(bad)
	if err := sink.Record(ctx, NewEvent(SourceWeb, "", bad, core.Estimate{}, cerr, 0)); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	huge := in
	huge.HousingMonthly = 1e308
	_, herr := core.Compute(huge)
	if err := sink.Record(ctx, NewEvent(SourceCLI, "", huge, core.Estimate{}, herr, 0)); err != nil {
		t.Fatalf("record computation failure: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], "level=INFO") ||
		!strings.Contains(lines[0], `msg="Calculation successful: Total Savings = $5,728,503.34"`) ||
		!strings.Contains(lines[0], "request_id=req_abc") {
		t.Fatalf("unexpected success line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "level=WARN") || !strings.Contains(lines[1], "failure_kind=INVALID_AGE_ORDERING") {
		t.Fatalf("unexpected failure line: %s", lines[1])
	}
	if !strings.Contains(lines[2], "level=ERROR") || !strings.Contains(lines[2], "failure_kind=COMPUTATION_FAILURE") {
		t.Fatalf("unexpected computation failure line: %s", lines[2])
	}
}

func TestFileSinkAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calc.log")
	for i := 0; i < 2; i++ {
		sink, err := NewFileSink(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := sink.Record(context.Background(), Event{Outcome: OutcomeSuccess, TotalSavings: 1}); err != nil {
			t.Fatalf("record: %v", err)
		}
		_ = sink.Close()
	}
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
}

func TestFileSinkConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calc.log")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Record(context.Background(), Event{Outcome: OutcomeSuccess, TotalSavings: 42})
		}()
	}
	wg.Wait()
	_ = sink.Close()

	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "\n"); n != 20 {
		t.Fatalf("expected 20 lines, got %d", n)
	}
}

func TestFileSinkClosed(t *testing.T) {
	sink, err := NewFileSink(filepath.Join(t.TempDir(), "calc.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = sink.Close()
	if err := sink.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if err := sink.Record(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error recording on closed sink")
	}
}
