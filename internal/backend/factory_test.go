package backend

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"retire/internal/config"
	"retire/internal/core"
	"retire/internal/diagnostics"
)

type fakeSink struct {
	events []diagnostics.Event
	closed bool
}

func (s *fakeSink) Record(_ context.Context, ev diagnostics.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func newTestFactory(buf *bytes.Buffer) *DefaultFactory {
	return NewFactory(slog.New(slog.NewTextHandler(buf, nil))).(*DefaultFactory)
}

func sampleEvent() diagnostics.Event {
	est, err := core.Compute(core.DefaultInputs())
	return diagnostics.NewEvent(diagnostics.SourceCLI, "", core.DefaultInputs(), est, err, time.Millisecond)
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        func(dir string) Config
		wantSinks  []string
		wantReader bool
	}{
		{
			name:      "file",
			cfg:       func(dir string) Config { return Config{Type: FileBackend, LogFile: filepath.Join(dir, "calc.log")} },
			wantSinks: []string{"file"},
		},
		{
			name:       "memory",
			cfg:        func(dir string) Config { return Config{Type: MemoryBackend, LogFile: filepath.Join(dir, "calc.log")} },
			wantSinks:  []string{"file", "memory"},
			wantReader: true,
		},
		{
			name: "sqlite",
			cfg: func(dir string) Config {
				return Config{Type: SQLiteBackend, LogFile: filepath.Join(dir, "calc.log"), SQLiteDBPath: filepath.Join(dir, "db", "retire.db")}
			},
			wantSinks:  []string{"file", "sqlite"},
			wantReader: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var buf bytes.Buffer
			f := newTestFactory(&buf)
			cfg := tt.cfg(dir)

			res, err := f.Create(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			defer res.Cleanup()

			if !slices.Equal(res.Sinks, tt.wantSinks) {
				t.Errorf("Sinks = %v, want %v", res.Sinks, tt.wantSinks)
			}
			if (res.Reader != nil) != tt.wantReader {
				t.Errorf("Reader present = %v, want %v", res.Reader != nil, tt.wantReader)
			}

			ev := sampleEvent()
			if err := res.Sink.Record(context.Background(), ev); err != nil {
				t.Fatalf("Record() error = %v", err)
			}

			data, err := os.ReadFile(cfg.LogFile)
			if err != nil {
				t.Fatalf("read log: %v", err)
			}
			if !strings.Contains(string(data), ev.ID) {
				t.Errorf("log file does not mention event %s:\n%s", ev.ID, data)
			}

			if res.Reader != nil {
				got, err := res.Reader.Recent(context.Background(), 10)
				if err != nil || len(got) != 1 || got[0].ID != ev.ID {
					t.Errorf("Recent() = %v, %v", got, err)
				}
			}
		})
	}
}

func TestCreate_AMQP(t *testing.T) {
	t.Run("publisher added", func(t *testing.T) {
		var buf bytes.Buffer
		f := newTestFactory(&buf)
		pub := &fakeSink{}
		f.dialAMQP = func(url, exchange, queue string) (diagnostics.Sink, error) {
			if exchange != "retire" || queue != "calculation_events" {
				t.Errorf("dial(%q, %q, %q)", url, exchange, queue)
			}
			return pub, nil
		}

		res, err := f.Create(context.Background(), Config{
			Type:         FileBackend,
			LogFile:      filepath.Join(t.TempDir(), "calc.log"),
			AMQPURL:      "amqp://localhost/",
			AMQPExchange: "retire",
			AMQPQueue:    "calculation_events",
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !slices.Equal(res.Sinks, []string{"file", "amqp"}) {
			t.Fatalf("Sinks = %v", res.Sinks)
		}
		if err := res.Sink.Record(context.Background(), sampleEvent()); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if len(pub.events) != 1 {
			t.Errorf("publisher got %d events, want 1", len(pub.events))
		}
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if !pub.closed {
			t.Error("publisher was not closed")
		}
		if err := res.Cleanup(); err != nil {
			t.Errorf("second Cleanup() error = %v", err)
		}
	})

	t.Run("unreachable broker is skipped", func(t *testing.T) {
		var buf bytes.Buffer
		f := newTestFactory(&buf)
		f.dialAMQP = func(string, string, string) (diagnostics.Sink, error) {
			return nil, errors.New("dial tcp: connection refused")
		}

		res, err := f.Create(context.Background(), Config{
			Type:    FileBackend,
			LogFile: filepath.Join(t.TempDir(), "calc.log"),
			AMQPURL: "amqp://localhost/",
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		defer res.Cleanup()
		if !slices.Equal(res.Sinks, []string{"file"}) {
			t.Errorf("Sinks = %v", res.Sinks)
		}
		if !strings.Contains(buf.String(), "continuing without publishing") {
			t.Errorf("expected warning, got %q", buf.String())
		}
	})
}

func TestCreate_Invalid(t *testing.T) {
	f := newTestFactory(&bytes.Buffer{})
	tests := []Config{
		{Type: "postgres", LogFile: "x.log"},
		{Type: FileBackend},
		{Type: SQLiteBackend, LogFile: "x.log"},
		{Type: SheetsBackend, LogFile: "x.log", GoogleSpreadsheetID: "id"},
	}
	for _, cfg := range tests {
		if _, err := f.Create(context.Background(), cfg); err == nil {
			t.Errorf("Create(%+v) expected error", cfg)
		}
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	app := &config.Config{
		DiagnosticsBackend: "sqlite",
		DiagnosticsLogFile: "calc.log",
		SQLiteDBPath:       "/tmp/x.db",
		AMQPURL:            "amqp://localhost/",
		AMQPExchange:       "retire",
		AMQPQueue:          "q",
		GoogleSheetName:    "Calculations",
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.LogFile != "calc.log" || cfg.SQLiteDBPath != "/tmp/x.db" || cfg.AMQPQueue != "q" {
		t.Errorf("unexpected config %+v", cfg)
	}

	app.DiagnosticsBackend = "mongo"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	want := []string{"file", "sqlite", "sheets", "memory"}
	if !slices.Equal(got, want) {
		t.Errorf("GetBackendTypeStrings() = %v, want %v", got, want)
	}
}
