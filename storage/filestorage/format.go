package filestorage

import (
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/logtide/logtide/base"
)

// timestampLayout is the human-readable timestamp used in stored lines, millisecond precision
const timestampLayout = "2006-01-02 15:04:05.000"

// FormatRecord renders one record as a stored line:
//
//	[YYYY-MM-DD HH:MM:SS.mmm] LEVEL [application] [hostname] - message {k1=v1, k2=v2}
//
// The metadata section is omitted when empty. Keys are written in sorted order so the
// output is deterministic; readers must not rely on the order.
func FormatRecord(record *base.LogRecord) string {
	builder := &strings.Builder{}
	builder.WriteByte('[')
	builder.WriteString(record.Timestamp.Format(timestampLayout))
	builder.WriteString("] ")
	builder.WriteString(record.Level.String())
	builder.WriteString(" [")
	builder.WriteString(record.Application)
	builder.WriteString("] [")
	builder.WriteString(record.Hostname)
	builder.WriteString("] - ")
	builder.WriteString(record.Message)

	if len(record.Metadata) > 0 {
		keys := maps.Keys(record.Metadata)
		slices.Sort(keys)
		builder.WriteString(" {")
		for i, key := range keys {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString(key)
			builder.WriteByte('=')
			builder.WriteString(record.Metadata[key])
		}
		builder.WriteByte('}')
	}
	return builder.String()
}

// ParseStoredLine parses a line written by FormatRecord back to a record, best-effort.
// Returns nil if the line doesn't look like a stored record. The returned record gets a
// fresh ID; metadata values containing "}" or ", " may parse imprecisely.
func ParseStoredLine(line string) *base.LogRecord {
	if !strings.HasPrefix(line, "[") {
		return nil
	}
	timestampEnd := strings.Index(line, "] ")
	if timestampEnd < 0 {
		return nil
	}
	timestamp, terr := time.ParseInLocation(timestampLayout, line[1:timestampEnd], time.Local)
	if terr != nil {
		return nil
	}
	rest := line[timestampEnd+2:]

	levelEnd := strings.IndexByte(rest, ' ')
	if levelEnd < 0 {
		return nil
	}
	levelName := rest[:levelEnd]
	if !base.IsLevelName(levelName) {
		return nil
	}
	rest = rest[levelEnd+1:]

	application, rest, ok := cutBracketField(rest)
	if !ok {
		return nil
	}
	hostname, rest, ok := cutBracketField(rest)
	if !ok {
		return nil
	}
	if !strings.HasPrefix(rest, "- ") {
		return nil
	}
	message := rest[2:]

	var metadata map[string]string
	if strings.HasSuffix(message, "}") {
		if metaStart := strings.LastIndex(message, " {"); metaStart >= 0 {
			metadata = parseStoredMetadata(message[metaStart+2 : len(message)-1])
			message = message[:metaStart]
		}
	}

	record := base.NewLogRecord(base.LevelFromString(levelName), message, application, hostname, metadata)
	record.Timestamp = timestamp
	return record
}

// cutBracketField cuts a leading "[value] " field and returns (value, rest, ok)
func cutBracketField(input string) (string, string, bool) {
	if !strings.HasPrefix(input, "[") {
		return "", input, false
	}
	end := strings.Index(input, "] ")
	if end < 0 {
		return "", input, false
	}
	return input[1:end], input[end+2:], true
}

func parseStoredMetadata(field string) map[string]string {
	metadata := make(map[string]string, 8)
	for _, pair := range strings.Split(field, ", ") {
		keyValue := strings.SplitN(pair, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		metadata[keyValue[0]] = keyValue[1]
	}
	return metadata
}
