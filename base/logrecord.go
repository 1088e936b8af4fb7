package base

import (
	"time"

	"github.com/google/uuid"
)

// LogRecord is the normalised log datum flowing through the pipeline, created by the line parser
//
// ID, Timestamp, Level, Message, Application and Hostname are fixed at construction.
// Metadata is extended by later pipeline stages; no locking is needed because only one
// stage owns a record at any time (handler -> buffer -> processor -> storage).
type LogRecord struct {
	ID          string            // opaque unique identifier
	Timestamp   time.Time         // construction time, millisecond precision in output
	Level       LogLevel          // severity
	Message     string            // free-form text
	Application string            // storage partition key
	Hostname    string            // origin host, "unknown" if not given
	Metadata    map[string]string // extended by parser, handler and processor
}

// DefaultOrigin is the application and hostname used when the input doesn't carry one
const DefaultOrigin = "unknown"

// NewLogRecord creates a LogRecord with a fresh ID and the current timestamp
func NewLogRecord(level LogLevel, message string, application string, hostname string, metadata map[string]string) *LogRecord {
	if application == "" {
		application = DefaultOrigin
	}
	if hostname == "" {
		hostname = DefaultOrigin
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &LogRecord{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Level:       level,
		Message:     message,
		Application: application,
		Hostname:    hostname,
		Metadata:    metadata,
	}
}

// SetMetadata adds or overwrites one metadata entry
func (record *LogRecord) SetMetadata(key string, value string) {
	record.Metadata[key] = value
}
