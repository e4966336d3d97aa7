package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"retire/internal/core"
	"retire/internal/diagnostics"
	"retire/internal/storage"
)

type recordingSink struct {
	events []diagnostics.Event
	err    error
	closed bool
}

func (s *recordingSink) Record(_ context.Context, ev diagnostics.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func successEvent() diagnostics.Event {
	in := core.DefaultInputs()
	est, err := core.Compute(in)
	if err != nil {
		panic(err)
	}
	return diagnostics.NewEvent(diagnostics.SourceWeb, "req-1", in, est, nil, time.Millisecond)
}

func failureEvent() diagnostics.Event {
	in := core.DefaultInputs()
	in.RetirementAge = 40
	_, err := core.Compute(in)
	return diagnostics.NewEvent(diagnostics.SourceCLI, "", in, core.Estimate{}, err, 0)
}

func TestHandleEventStoresAndExports(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	export := &recordingSink{}
	w := NewEventWorker(store, export, quietLogger())

	ok, bad := successEvent(), failureEvent()
	for _, ev := range []diagnostics.Event{ok, bad} {
		if err := w.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent(%s) error = %v", ev.ID, err)
		}
	}

	// Redelivery is idempotent in storage.
	if err := w.HandleEvent(ctx, ok); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("stored %d events, want 2", len(recent))
	}
	if len(export.events) != 3 {
		t.Errorf("exported %d events, want 3", len(export.events))
	}

	counts, err := store.OutcomeCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[diagnostics.OutcomeSuccess] != 1 || counts[diagnostics.OutcomeFailure] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if err := w.StartupReport(ctx); err != nil {
		t.Errorf("StartupReport() error = %v", err)
	}

	if got := w.Stats(); got != (Stats{Stored: 3, Exported: 3}) {
		t.Errorf("Stats() = %+v", got)
	}
	if err := w.Close(); err != nil || !export.closed {
		t.Errorf("Close() = %v, exporter closed %v", err, export.closed)
	}
}

func TestHandleEventFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("export failure requeues", func(t *testing.T) {
		store := newStore(t)
		w := NewEventWorker(store, &recordingSink{err: errors.New("quota exceeded")}, quietLogger())
		if err := w.HandleEvent(ctx, successEvent()); err == nil {
			t.Fatal("expected error")
		}
		if s := w.Stats(); s.Stored != 1 || s.Failed != 1 {
			t.Errorf("Stats() = %+v", s)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		w := NewEventWorker(newStore(t), nil, quietLogger())
		if err := w.HandleEvent(ctx, diagnostics.Event{}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("store closed", func(t *testing.T) {
		store := newStore(t)
		_ = store.Close()
		w := NewEventWorker(store, nil, quietLogger())
		if err := w.HandleEvent(ctx, successEvent()); err == nil {
			t.Fatal("expected error")
		}
		if err := w.StartupReport(ctx); err == nil {
			t.Error("expected StartupReport error")
		}
	})

	t.Run("no exporter", func(t *testing.T) {
		w := NewEventWorker(newStore(t), nil, quietLogger())
		if err := w.HandleEvent(ctx, successEvent()); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Error(err)
		}
	})
}
