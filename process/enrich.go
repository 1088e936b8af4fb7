package process

import (
	"strconv"
	"strings"
	"time"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/defs"
)

// Metadata keys added by processor workers
const (
	MetaKeyProcessorThread = "processor_thread"
	MetaKeyProcessedAt     = "processed_at"
	MetaKeyTruncated       = "truncated"
	MetaKeyComponent       = "component"
	MetaKeySeverity        = "severity"
)

func (w *worker) enrich(record *base.LogRecord) {
	record.SetMetadata(MetaKeyProcessorThread, w.name)
	record.SetMetadata(MetaKeyProcessedAt, strconv.FormatInt(time.Now().UnixMilli(), 10))
	if len(record.Message) > defs.ProcessorTruncationBytes {
		record.SetMetadata(MetaKeyTruncated, "true")
	}
	if component := classifyComponent(record.Message); component != "" {
		record.SetMetadata(MetaKeyComponent, component)
	}
	record.SetMetadata(MetaKeySeverity, severityTag(record.Level))
}

func classifyComponent(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "sql") || strings.Contains(lower, "database") || strings.Contains(lower, "query"):
		return "database"
	case strings.Contains(lower, "http") || strings.Contains(lower, "request") || strings.Contains(lower, "response"):
		return "web"
	case strings.Contains(lower, "memory") || strings.Contains(lower, "gc") || strings.Contains(lower, "heap"):
		return "memory"
	case strings.Contains(lower, "security") || strings.Contains(lower, "auth") || strings.Contains(lower, "login"):
		return "security"
	default:
		return ""
	}
}

func severityTag(level base.LogLevel) string {
	switch {
	case level >= base.LevelError:
		return "high"
	case level == base.LevelWarn:
		return "medium"
	default:
		return "low"
	}
}
