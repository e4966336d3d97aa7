// Package worker drains calculation events published on AMQP into durable
// storage and, when configured, a Google Sheets log.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"retire/internal/diagnostics"
	"retire/internal/log"
)

// EventStore is the durable copy of the event log.
type EventStore interface {
	Record(ctx context.Context, ev diagnostics.Event) error
	OutcomeCounts(ctx context.Context) (map[diagnostics.Outcome]int64, error)
}

// Stats counts what the worker has handled since start.
type Stats struct {
	Stored   int64
	Exported int64
	Failed   int64
}

// EventWorker handles calculation events received from the queue.
type EventWorker struct {
	store  EventStore
	export diagnostics.Sink
	logger *log.Logger

	stored   atomic.Int64
	exported atomic.Int64
	failed   atomic.Int64
}

// NewEventWorker stores every event in store. export may be nil.
func NewEventWorker(store EventStore, export diagnostics.Sink, logger *slog.Logger) *EventWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWorker{
		store:  store,
		export: export,
		logger: log.FromSlog(logger, log.ComponentWorker),
	}
}

// HandleEvent stores ev and then exports it. Any error requeues the message;
// storing is idempotent on the event id so a redelivery is safe.
func (w *EventWorker) HandleEvent(ctx context.Context, ev diagnostics.Event) error {
	if ev.ID == "" {
		w.failed.Add(1)
		return errors.New("event has no id")
	}

	w.logger.InfoContext(ctx, "Processing calculation event",
		log.FieldCalculationID, ev.ID,
		log.FieldSource, string(ev.Source),
		log.FieldOutcome, string(ev.Outcome),
		log.FieldOperation, log.OpConsume)

	if err := w.store.Record(ctx, ev); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("store event %s: %w", ev.ID, err)
	}
	w.stored.Add(1)

	if w.export == nil {
		return nil
	}
	if err := w.export.Record(ctx, ev); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("export event %s: %w", ev.ID, err)
	}
	w.exported.Add(1)
	return nil
}

// StartupReport logs how many events storage already holds.
func (w *EventWorker) StartupReport(ctx context.Context) error {
	counts, err := w.store.OutcomeCounts(ctx)
	if err != nil {
		return fmt.Errorf("count stored events: %w", err)
	}
	w.logger.InfoContext(ctx, "Event store ready",
		"success", counts[diagnostics.OutcomeSuccess],
		"failure", counts[diagnostics.OutcomeFailure],
		"export_enabled", w.export != nil,
		log.FieldOperation, log.OpStartup)
	return nil
}

// Stats returns the counters since the worker started.
func (w *EventWorker) Stats() Stats {
	return Stats{
		Stored:   w.stored.Load(),
		Exported: w.exported.Load(),
		Failed:   w.failed.Load(),
	}
}

// Close closes the exporter. The store is owned by the caller.
func (w *EventWorker) Close() error {
	if w.export == nil {
		return nil
	}
	return w.export.Close()
}
