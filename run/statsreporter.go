package run

import (
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"

	"github.com/logtide/logtide/defs"
)

// statsReporter periodically logs server-wide statistics: buffer occupancy, storage
// totals, processed counts and open connections
type statsReporter struct {
	logger     logger.Logger
	loader     *Loader
	startedAt  time.Time
	stopSignal *channels.SignalAwaitable
	stopped    *channels.SignalAwaitable
}

func newStatsReporter(parentLogger logger.Logger, loader *Loader) *statsReporter {
	return &statsReporter{
		logger:     parentLogger.WithField(defs.LabelComponent, "StatsReporter"),
		loader:     loader,
		startedAt:  time.Now(),
		stopSignal: channels.NewSignalAwaitable(),
		stopped:    channels.NewSignalAwaitable(),
	}
}

func (reporter *statsReporter) Launch() {
	go reporter.run()
}

func (reporter *statsReporter) run() {
	for {
		if reporter.stopSignal.Wait(defs.StatsReportInterval) {
			break
		}
		reporter.report()
	}
	reporter.stopped.Signal()
}

func (reporter *statsReporter) report() {
	loader := reporter.loader
	reporter.logger.Infof("uptime=%s clients=%d | %s | %s | processed=%d batches=%d",
		time.Since(reporter.startedAt).Round(time.Second),
		loader.server.ActiveConnections(),
		loader.buffer.Stats(),
		loader.storage.Stats(),
		loader.pool.ProcessedRecords(),
		loader.pool.FlushedBatches())
}

// Stop ends the reporter with a final report, bounded by the stats shutdown budget
func (reporter *statsReporter) Stop() {
	reporter.stopSignal.Signal()
	if !reporter.stopped.Wait(defs.StatsShutDownTimeout) {
		reporter.logger.Warn("stats reporter did not stop in time")
		return
	}
	reporter.report()
}
