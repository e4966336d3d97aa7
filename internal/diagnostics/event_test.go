package diagnostics

import (
	"errors"
	"testing"
	"time"

	"retire/internal/core"
)

func TestNewEvent(t *testing.T) {
	in := core.DefaultInputs()
	est, err := core.Compute(in)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	ev := NewEvent(SourceWeb, "req_1", in, est, nil, time.Millisecond)
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp to be set: %+v", ev)
	}
	if !ev.Succeeded() || ev.TotalSavings != est.TotalSavings || ev.FailureKind != "" {
		t.Fatalf("unexpected success event: %+v", ev)
	}
	if ev.Message() != "Calculation successful: Total Savings = $5,728,503.34" {
		t.Fatalf("unexpected message %q", ev.Message())
	}

	in.ReturnRate = 0.02
	_, err = core.Compute(in)
	ev = NewEvent(SourceAPI, "", in, core.Estimate{}, err, 0)
	if ev.Succeeded() || ev.FailureKind != core.KindNonPositiveRealReturn || ev.Reason == "" {
		t.Fatalf("unexpected failure event: %+v", ev)
	}
	if ev.TotalSavings != 0 {
		t.Fatalf("failure must carry no amount, got %v", ev.TotalSavings)
	}
	if ev.Message() != "Calculation failed: NON_POSITIVE_REAL_RETURN" {
		t.Fatalf("unexpected message %q", ev.Message())
	}

	other := NewEvent(SourceCLI, "", in, core.Estimate{}, errors.New("boom"), 0)
	if other.FailureKind != core.KindComputationFailure {
		t.Fatalf("expected computation failure, got %s", other.FailureKind)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := []struct{ limit, max, want int }{
		{0, 0, DefaultRecentLimit},
		{-3, 200, DefaultRecentLimit},
		{10, 200, 10},
		{500, 200, 200},
		{10, 0, 10},
	}
	for _, tc := range cases {
		if got := NormalizeLimit(tc.limit, tc.max); got != tc.want {
			t.Fatalf("NormalizeLimit(%d, %d) = %d, want %d", tc.limit, tc.max, got, tc.want)
		}
	}
}
