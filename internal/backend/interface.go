package backend

import (
	"context"

	"retire/internal/diagnostics"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result is the diagnostics pipeline built for one process. Reader is nil
// when the backend cannot list events.
type Result struct {
	Sink    diagnostics.Sink
	Reader  diagnostics.Reader
	Cleanup CleanupFunc

	// Sinks names every sink in Sink, in recording order.
	Sinks []string
}

// Factory creates backends based on configuration
type Factory interface {
	// Create builds the sink and optional reader described by config.
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// File sink, always present
	LogFile string

	// SQLite specific
	SQLiteDBPath string

	// AMQP publishing, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Memory backend specific
	MemoryCapacity int
}

// BackendType represents the type of backend
type BackendType string

const (
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FileBackend, SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
