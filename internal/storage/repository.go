package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"retire/internal/core"
	"retire/internal/diagnostics"
)

// MaxRecent caps a single Recent query.
const MaxRecent = 500

// SQLiteRepository stores calculation events in the calculation_events table.
// It implements diagnostics.Sink and diagnostics.Reader.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Record inserts ev. Recording the same event id twice is a no-op so a
// redelivered queue message does not create duplicates.
func (r *SQLiteRepository) Record(ctx context.Context, ev diagnostics.Event) error {
	inputs, err := json.Marshal(ev.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}

	var total sql.NullFloat64
	if ev.Succeeded() {
		total = sql.NullFloat64{Float64: ev.TotalSavings, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO calculation_events
			(id, recorded_at, source, request_id, outcome, total_savings, failure_kind, reason, duration_ns, inputs_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Timestamp.UTC().UnixNano(),
		string(ev.Source),
		ev.RequestID,
		string(ev.Outcome),
		total,
		string(ev.FailureKind),
		ev.Reason,
		int64(ev.Duration),
		string(inputs),
	)
	if err != nil {
		return fmt.Errorf("insert calculation event: %w", err)
	}

	slog.DebugContext(ctx, "Calculation event saved to SQLite",
		"id", ev.ID,
		"outcome", ev.Outcome)
	return nil
}

// Recent returns the newest events first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]diagnostics.Event, error) {
	limit = diagnostics.NormalizeLimit(limit, MaxRecent)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recorded_at, source, request_id, outcome, total_savings, failure_kind, reason, duration_ns, inputs_json
		FROM calculation_events
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query calculation events: %w", err)
	}
	defer rows.Close()

	events := make([]diagnostics.Event, 0, limit)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calculation events: %w", err)
	}
	return events, nil
}

// OutcomeCounts returns how many events were recorded per outcome.
func (r *SQLiteRepository) OutcomeCounts(ctx context.Context) (map[diagnostics.Outcome]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM calculation_events GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count calculation events: %w", err)
	}
	defer rows.Close()

	counts := map[diagnostics.Outcome]int64{}
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[diagnostics.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

func scanEvent(rows *sql.Rows) (diagnostics.Event, error) {
	var (
		ev         diagnostics.Event
		recordedAt int64
		source     string
		outcome    string
		total      sql.NullFloat64
		kind       string
		durationNs int64
		inputs     string
	)
	if err := rows.Scan(&ev.ID, &recordedAt, &source, &ev.RequestID, &outcome, &total, &kind, &ev.Reason, &durationNs, &inputs); err != nil {
		return ev, fmt.Errorf("scan calculation event: %w", err)
	}
	ev.Timestamp = time.Unix(0, recordedAt).UTC()
	ev.Source = diagnostics.Source(source)
	ev.Outcome = diagnostics.Outcome(outcome)
	ev.TotalSavings = total.Float64
	ev.FailureKind = core.FailureKind(kind)
	ev.Duration = time.Duration(durationNs)
	if err := json.Unmarshal([]byte(inputs), &ev.Inputs); err != nil {
		return ev, fmt.Errorf("decode inputs of event %s: %w", ev.ID, err)
	}
	return ev, nil
}
