// Package lineparser parses incoming wire lines to log records.
//
// Two formats are recognised: the extended pipe-separated format
// "LEVEL|APPLICATION|HOSTNAME|MESSAGE|META" where META is a comma-separated list of
// key=value pairs, and the simple format "LEVEL message". A line matching neither
// becomes an INFO record carrying the raw line; parsing never fails.
package lineparser

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/defs"
)

// Synthetic metadata keys added by the parser
const (
	MetaKeyRawLength = "raw_length"
	MetaKeyParsedAt  = "parsed_at"
)

// Metadata keys added by Enrich
const (
	MetaKeyClientIP   = "client_ip"
	MetaKeyServerTime = "server_time"
	MetaKeyClientID   = "client_id"
	MetaKeyCategory   = "category"
)

// IsValidMessage checks the size constraints enforced before parsing
func IsValidMessage(line string) bool {
	return len(strings.TrimSpace(line)) > 0 && len(line) < defs.InputLogMaxMessageBytes
}

// Parse parses one wire line to a LogRecord. It never fails: an unrecognisable line
// yields an INFO record whose message is the raw line.
func Parse(line string) *base.LogRecord {
	record := parseFormats(line)
	record.SetMetadata(MetaKeyRawLength, strconv.Itoa(len(line)))
	record.SetMetadata(MetaKeyParsedAt, strconv.FormatInt(time.Now().UnixMilli(), 10))
	return record
}

func parseFormats(line string) *base.LogRecord {
	parts := strings.SplitN(line, "|", 5)
	if len(parts) >= 4 {
		level := base.LevelFromString(strings.TrimSpace(parts[0]))
		application := strings.TrimSpace(parts[1])
		hostname := strings.TrimSpace(parts[2])
		message := strings.TrimSpace(parts[3])

		var metadata map[string]string
		if len(parts) == 5 {
			metadata = parseMetadata(parts[4])
		}
		return base.NewLogRecord(level, message, application, hostname, metadata)
	}

	// simple format: first token is the level name, the rest is the message
	tokens := strings.SplitN(line, " ", 2)
	if len(tokens) == 2 {
		return base.NewLogRecord(base.LevelFromString(tokens[0]), tokens[1], base.DefaultOrigin, base.DefaultOrigin, nil)
	}

	return base.NewLogRecord(base.LevelInfo, line, base.DefaultOrigin, base.DefaultOrigin, nil)
}

// parseMetadata parses "k1=v1,k2=v2"; pairs without '=' are dropped, surrounding
// whitespace is trimmed, duplicate keys last-wins
func parseMetadata(field string) map[string]string {
	if strings.TrimSpace(field) == "" {
		return nil
	}
	metadata := make(map[string]string, 8)
	for _, pair := range strings.Split(field, ",") {
		keyValue := strings.SplitN(pair, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		metadata[strings.TrimSpace(keyValue[0])] = strings.TrimSpace(keyValue[1])
	}
	return metadata
}

// Enrich adds connection-level metadata and the category classifier to a parsed record
func Enrich(record *base.LogRecord, clientIP string, clientID string) {
	record.SetMetadata(MetaKeyClientIP, clientIP)
	record.SetMetadata(MetaKeyServerTime, strconv.FormatInt(time.Now().UnixMilli(), 10))
	record.SetMetadata(MetaKeyClientID, clientID)
	record.SetMetadata(MetaKeyCategory, categorize(record.Message))
}

func categorize(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "exception"):
		return "error"
	case strings.Contains(lower, "warn"):
		return "warning"
	case strings.Contains(lower, "startup") || strings.Contains(lower, "shutdown"):
		return "lifecycle"
	default:
		return "general"
	}
}

// WireString renders a record in the extended wire format, with metadata keys sorted
// for deterministic output. Mainly for tests and diagnostics.
func WireString(record *base.LogRecord) string {
	builder := &strings.Builder{}
	builder.WriteString(record.Level.String())
	builder.WriteByte('|')
	builder.WriteString(record.Application)
	builder.WriteByte('|')
	builder.WriteString(record.Hostname)
	builder.WriteByte('|')
	builder.WriteString(record.Message)
	builder.WriteByte('|')

	keys := maps.Keys(record.Metadata)
	slices.Sort(keys)
	for i, key := range keys {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(record.Metadata[key])
	}
	return builder.String()
}
