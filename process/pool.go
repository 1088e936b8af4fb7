// Package process drains the shared buffer with a pool of batching workers and submits
// the batches to storage. Workers are independent: they share nothing but the buffer and
// the sink.
package process

import (
	"sync"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/defs"
)

type poolMetrics struct {
	processedTotal promext.RWCounter
	batchesTotal   promext.RWCounter
}

// ProcessorPool runs N identical workers consuming from the shared buffer
type ProcessorPool struct {
	logger      logger.Logger
	buffer      base.LogBuffer
	storage     base.LogStorage
	workerCount int
	batchSize   int
	stopSignal  *channels.SignalAwaitable
	taskCounter *sync.WaitGroup
	stopped     channels.Awaitable
	metrics     poolMetrics
}

// BatchSizeFor derives the per-worker batch target from buffer capacity and worker count
func BatchSizeFor(bufferCapacity int, workerCount int) int {
	size := bufferCapacity / (10 * workerCount)
	if size < 10 {
		return 10
	}
	return size
}

// NewProcessorPool creates a pool of workerCount workers flushing batches of batchSize
func NewProcessorPool(parentLogger logger.Logger, buffer base.LogBuffer, storage base.LogStorage,
	workerCount int, batchSize int, metricFactory *base.MetricFactory) *ProcessorPool {

	taskCounter := &sync.WaitGroup{}
	return &ProcessorPool{
		logger:      parentLogger.WithField(defs.LabelComponent, "ProcessorPool"),
		buffer:      buffer,
		storage:     storage,
		workerCount: workerCount,
		batchSize:   batchSize,
		stopSignal:  channels.NewSignalAwaitable(),
		taskCounter: taskCounter,
		stopped:     channels.NewWaitGroupAwaitable(taskCounter),
		metrics: poolMetrics{
			processedTotal: metricFactory.AddOrGetCounter("process_processed_records_total", "Numbers of processed log records", nil, nil),
			batchesTotal:   metricFactory.AddOrGetCounter("process_flushed_batches_total", "Numbers of flushed batches", nil, nil),
		},
	}
}

// Launch starts all workers in background
func (pool *ProcessorPool) Launch() {
	pool.logger.Infof("starting %d workers, batch size %d", pool.workerCount, pool.batchSize)
	for number := 1; number <= pool.workerCount; number++ {
		pool.taskCounter.Add(1)
		go newWorker(pool, number).run()
	}
}

// Stopped is signaled when all workers have drained and exited
func (pool *ProcessorPool) Stopped() channels.Awaitable {
	return pool.stopped
}

// Shutdown asks all workers to drain the buffer and flush, waiting up to the processor
// shutdown budget. Records still queued when the budget expires are lost.
func (pool *ProcessorPool) Shutdown() {
	pool.stopSignal.Signal()
	if !pool.stopped.Wait(defs.ProcessorShutDownTimeout) {
		pool.logger.Errorf("workers did not stop within %s, abandoning drain", defs.ProcessorShutDownTimeout)
		return
	}
	pool.logger.Infof("all workers stopped - processed=%d batches=%d",
		pool.metrics.processedTotal.Get(), pool.metrics.batchesTotal.Get())
}

// ProcessedRecords returns the total numbers of records flushed to storage
func (pool *ProcessorPool) ProcessedRecords() uint64 {
	return pool.metrics.processedTotal.Get()
}

// FlushedBatches returns the total numbers of batches flushed to storage
func (pool *ProcessorPool) FlushedBatches() uint64 {
	return pool.metrics.batchesTotal.Get()
}
