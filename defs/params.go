package defs

import (
	"time"
)

var (
	// InputLogMaxMessageBytes defines the length limit of one log line; lines of this length or longer are rejected at validation
	InputLogMaxMessageBytes = 10000

	// ListenerAcceptTimeout defines how long the acceptor blocks in accept() before it re-checks the stop request
	ListenerAcceptTimeout = 5 * time.Second

	// ConnectionReadTimeout defines the per-read deadline of client connections; an expired deadline closes the connection
	ConnectionReadTimeout = 30 * time.Second

	// ConnectionShutDownTimeout is the duration to wait for connection handlers to finish during shutdown
	ConnectionShutDownTimeout = 10 * time.Second

	// ProcessorPollInterval defines how long a processor worker sleeps when the buffer is empty
	ProcessorPollInterval = 100 * time.Millisecond

	// ProcessorBatchTimeout defines how long a non-empty batch may wait before it's flushed regardless of size
	ProcessorBatchTimeout = 5 * time.Second

	// ProcessorShutDownTimeout is the duration to wait for processor workers to drain the buffer and flush during shutdown
	ProcessorShutDownTimeout = 30 * time.Second

	// ProcessorTruncationBytes defines the message length above which a record is tagged truncated=true
	ProcessorTruncationBytes = 5000

	// StatsReportInterval defines how often the stats reporter logs server-wide statistics
	StatsReportInterval = 30 * time.Second

	// StatsShutDownTimeout is the duration to wait for the stats reporter to stop during shutdown
	StatsShutDownTimeout = 5 * time.Second
)

var (
	// TestReadTimeout is the max duration tests wait for components to stop or produce output
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode shortens intervals for tests
func EnableTestMode() {
	ProcessorPollInterval = 10 * time.Millisecond
	ProcessorBatchTimeout = 200 * time.Millisecond
	StatsReportInterval = 1 * time.Second
}
