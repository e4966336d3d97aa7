package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"retire/internal/amqp"
	"retire/internal/diagnostics"
	"retire/internal/diagnostics/memory"
	gsheet "retire/internal/sheets/google"
	"retire/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger

	// Overridable in tests.
	dialAMQP func(url, exchange, queue string) (diagnostics.Sink, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		dialAMQP: func(url, exchange, queue string) (diagnostics.Sink, error) {
			return amqp.NewClient(url, exchange, queue)
		},
	}
}

type namedSink struct {
	name string
	sink diagnostics.Sink
}

// Create builds the append-only file sink, the sink of config.Type and, when
// AMQPURL is set, an AMQP publisher. A publisher that cannot connect is
// skipped with a warning; every other failure closes what was opened.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	fileSink, err := diagnostics.NewFileSink(config.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostics log: %w", err)
	}
	sinks := []namedSink{{"file", fileSink}}
	var reader diagnostics.Reader

	switch config.Type {
	case FileBackend:
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize SQLite repository: %w", err), fileSink.Close())
		}
		sinks = append(sinks, namedSink{"sqlite", repo})
		reader = repo
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case SheetsBackend:
		cli, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize Google Sheets client: %w", err), fileSink.Close())
		}
		sinks = append(sinks, namedSink{"sheets", cli})
		f.logger.Info("Initialized Google Sheets backend", "sheet", cli.SheetName())
	case MemoryBackend:
		store := memory.New(config.MemoryCapacity)
		sinks = append(sinks, namedSink{"memory", store})
		reader = store
		f.logger.Info("Initialized memory backend")
	default:
		_ = fileSink.Close()
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.AMQPURL != "" {
		client, err := f.dialAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without publishing", "error", err)
		} else {
			sinks = append(sinks, namedSink{"amqp", client})
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	all := make([]diagnostics.Sink, len(sinks))
	names := make([]string, len(sinks))
	for i, s := range sinks {
		all[i] = s.sink
		names[i] = s.name
	}
	fan := diagnostics.NewFanout(all...)

	f.logger.Info("Diagnostics ready",
		"backend", config.Type,
		"log_file", config.LogFile,
		"sinks", names,
		"can_list_events", reader != nil)

	return &Result{
		Sink:    fan,
		Reader:  reader,
		Cleanup: fan.Close,
		Sinks:   names,
	}, nil
}
