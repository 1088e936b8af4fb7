package base

import (
	"fmt"
)

// LogStorage is a sink of processed log records, partitioned by application
//
// StoreBatch is the primary write path; Store exists for single records. Both may drop
// records on I/O failure - durability across crashes is not guaranteed anywhere in the
// pipeline. The Get* methods re-read persisted records best-effort for diagnostics and
// tests; they are not a query path.
type LogStorage interface {
	Store(record *LogRecord) error
	StoreBatch(records []*LogRecord) error
	GetByApplication(application string, limit int) ([]*LogRecord, error)
	GetByLevel(level LogLevel, limit int) ([]*LogRecord, error)
	Stats() StorageStats
	Close() error
}

// StorageStats is a snapshot of storage counters
type StorageStats struct {
	OpenFiles     int
	StoredRecords uint64
	WrittenBytes  uint64
}

func (stats StorageStats) String() string {
	return fmt.Sprintf("Storage Stats - Files: %d, Logs: %d, Bytes: %d MB",
		stats.OpenFiles, stats.StoredRecords, stats.WrittenBytes/(1024*1024))
}
