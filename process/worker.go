package process

import (
	"fmt"
	"time"

	"github.com/relex/gotils/logger"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/defs"
)

// worker accumulates records from the buffer into a local batch and flushes it when the
// batch is full, when the batch timeout passes, or on shutdown
type worker struct {
	logger    logger.Logger
	pool      *ProcessorPool
	name      string
	batch     []*base.LogRecord
	lastFlush time.Time
}

func newWorker(pool *ProcessorPool, number int) *worker {
	name := fmt.Sprintf("processor-%d", number)
	return &worker{
		logger: pool.logger.WithField(defs.LabelWorkerNumber, name),
		pool:   pool,
		name:   name,
		batch:  make([]*base.LogRecord, 0, pool.batchSize),
	}
}

func (w *worker) run() {
	defer w.pool.taskCounter.Done()
	w.logger.Info("started")
	w.lastFlush = time.Now()

	for {
		record := w.pool.buffer.TryDequeue()
		if record != nil {
			w.batch = append(w.batch, record)
		}

		if len(w.batch) >= w.pool.batchSize ||
			(len(w.batch) > 0 && time.Since(w.lastFlush) > defs.ProcessorBatchTimeout) {
			w.flush()
		}

		if record == nil {
			if w.pool.stopSignal.Peek() {
				break
			}
			// interruptible sleep; returns early when shutdown is signaled
			w.pool.stopSignal.Wait(defs.ProcessorPollInterval)
		}
	}

	w.drain()
	w.logger.Info("stopped")
}

// drain empties the buffer and flushes the final batch on shutdown
func (w *worker) drain() {
	for {
		record := w.pool.buffer.TryDequeue()
		if record == nil {
			break
		}
		w.batch = append(w.batch, record)
		if len(w.batch) >= w.pool.batchSize {
			w.flush()
		}
	}
	if len(w.batch) > 0 {
		w.flush()
	}
}

func (w *worker) flush() {
	for _, record := range w.batch {
		w.enrich(record)
	}
	if err := w.pool.storage.StoreBatch(w.batch); err != nil {
		w.logger.Warnf("batch of %d dropped records on write failure: %s", len(w.batch), err.Error())
	}
	w.pool.metrics.processedTotal.Add(uint64(len(w.batch)))
	w.pool.metrics.batchesTotal.Inc()

	w.batch = w.batch[:0]
	w.lastFlush = time.Now()
}
