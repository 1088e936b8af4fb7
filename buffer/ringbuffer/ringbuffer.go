// Package ringbuffer provides the bounded in-memory queue between connection handlers
// and processor workers, with priority-aware eviction under back-pressure.
package ringbuffer

import (
	"sync"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/defs"
)

// Back-pressure thresholds as fractions of capacity; the gap between them is the
// hysteresis band that keeps the flag from flapping around 90%.
const (
	backPressureHighWatermark = 0.9
	backPressureLowWatermark  = 0.7
)

type bufferMetrics struct {
	addedTotal    promext.RWCounter // all enqueue attempts, accepted or not
	droppedTotal  promext.RWCounter // evicted victims plus rejected enqueues
	queuedRecords promext.RWGauge   // current numbers of records held
	backPressure  promext.RWGauge   // 1 while the back-pressure flag is set
}

// RingBuffer is a fixed-capacity circular queue of log records
//
// Enqueue never blocks. Once utilisation reaches the high watermark the buffer enters
// back-pressure state; a full buffer makes room by evicting the first DEBUG/TRACE record
// found from the read cursor, falling back to the oldest record of any level. Eviction
// compacts the ring forward so FIFO order of the remaining records is preserved.
//
// The counters double as Prometheus metrics and are readable without taking the lock.
type RingBuffer struct {
	logger       logger.Logger
	capacity     int
	slots        []*base.LogRecord
	readIndex    int
	writeIndex   int
	size         int
	mutex        sync.Mutex
	notEmpty     *sync.Cond
	closed       bool
	backPressure bool
	metrics      bufferMetrics
}

// NewRingBuffer creates a RingBuffer of the given capacity
func NewRingBuffer(parentLogger logger.Logger, capacity int, metricFactory *base.MetricFactory) *RingBuffer {
	if capacity <= 0 {
		parentLogger.Panicf("invalid buffer capacity %d", capacity)
	}
	buffer := &RingBuffer{
		logger:   parentLogger.WithField(defs.LabelComponent, "RingBuffer"),
		capacity: capacity,
		slots:    make([]*base.LogRecord, capacity),
		metrics: bufferMetrics{
			addedTotal:    metricFactory.AddOrGetCounter("buffer_added_records_total", "Numbers of enqueue attempts", nil, nil),
			droppedTotal:  metricFactory.AddOrGetCounter("buffer_dropped_records_total", "Numbers of evicted or rejected records", nil, nil),
			queuedRecords: metricFactory.AddOrGetGauge("buffer_queued_records", "Current numbers of queued records", nil, nil),
			backPressure:  metricFactory.AddOrGetGauge("buffer_backpressure_active", "Whether back-pressure is active (0 or 1)", nil, nil),
		},
	}
	buffer.notEmpty = sync.NewCond(&buffer.mutex)
	return buffer
}

// Enqueue appends a record, evicting a low-priority record if the buffer is full.
// Returns false if the record was rejected.
func (buffer *RingBuffer) Enqueue(record *base.LogRecord) bool {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()

	buffer.metrics.addedTotal.Inc()

	if buffer.closed {
		buffer.metrics.droppedTotal.Inc()
		return false
	}

	if float64(buffer.size) >= float64(buffer.capacity)*backPressureHighWatermark {
		buffer.setBackPressure(true)
		if buffer.size >= buffer.capacity {
			if !buffer.evictOne() {
				buffer.metrics.droppedTotal.Inc()
				return false
			}
		}
	} else if float64(buffer.size) < float64(buffer.capacity)*backPressureLowWatermark {
		buffer.setBackPressure(false)
	}

	buffer.slots[buffer.writeIndex] = record
	buffer.writeIndex = (buffer.writeIndex + 1) % buffer.capacity
	buffer.size++
	buffer.metrics.queuedRecords.Inc()

	buffer.notEmpty.Signal()
	return true
}

// Dequeue removes the oldest record, blocking until one is available or the buffer is
// closed. Returns false only when the buffer is closed and drained.
func (buffer *RingBuffer) Dequeue() (*base.LogRecord, bool) {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()

	for buffer.size == 0 && !buffer.closed {
		buffer.notEmpty.Wait()
	}
	if buffer.size == 0 {
		return nil, false
	}
	return buffer.take(), true
}

// TryDequeue removes the oldest record without blocking, nil if the buffer is empty
func (buffer *RingBuffer) TryDequeue() *base.LogRecord {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()

	if buffer.size == 0 {
		return nil
	}
	return buffer.take()
}

// Close wakes all blocked consumers; records still queued can be drained with TryDequeue
// or Dequeue, and further enqueues are rejected.
func (buffer *RingBuffer) Close() {
	buffer.mutex.Lock()
	buffer.closed = true
	buffer.mutex.Unlock()
	buffer.notEmpty.Broadcast()
}

// Stats returns a snapshot of the buffer counters without taking the lock
func (buffer *RingBuffer) Stats() base.BufferStats {
	return base.BufferStats{
		Size:               int(buffer.metrics.queuedRecords.Get()),
		Capacity:           buffer.capacity,
		TotalAdded:         buffer.metrics.addedTotal.Get(),
		TotalDropped:       buffer.metrics.droppedTotal.Get(),
		BackPressureActive: buffer.metrics.backPressure.Get() != 0,
	}
}

// setBackPressure moves the observable back-pressure flag between states, updating the
// gauge only on transitions. Caller must hold the lock.
func (buffer *RingBuffer) setBackPressure(active bool) {
	if active == buffer.backPressure {
		return
	}
	buffer.backPressure = active
	if active {
		buffer.metrics.backPressure.Inc()
		buffer.logger.Warnf("back-pressure activated at %d/%d", buffer.size, buffer.capacity)
	} else {
		buffer.metrics.backPressure.Dec()
		buffer.logger.Infof("back-pressure cleared at %d/%d", buffer.size, buffer.capacity)
	}
}

// take removes and returns the record at the read cursor. Caller must hold the lock and
// have checked size > 0.
func (buffer *RingBuffer) take() *base.LogRecord {
	record := buffer.slots[buffer.readIndex]
	buffer.slots[buffer.readIndex] = nil // release the reference for GC
	buffer.readIndex = (buffer.readIndex + 1) % buffer.capacity
	buffer.size--
	buffer.metrics.queuedRecords.Dec()
	return record
}

// evictOne drops the first DEBUG or TRACE record found from the read cursor, or the
// oldest record if no low-priority victim exists. Caller must hold the lock. Returns
// false only if the buffer is empty, which cannot happen on the full-buffer path.
func (buffer *RingBuffer) evictOne() bool {
	index := buffer.readIndex
	for i := 0; i < buffer.size; i++ {
		victim := buffer.slots[index]
		if victim != nil && victim.Level.IsLowPriority() {
			buffer.removeAt(index)
			buffer.metrics.droppedTotal.Inc()
			buffer.logger.Debugf("evicted %s record %s under back-pressure", victim.Level, victim.ID)
			return true
		}
		index = (index + 1) % buffer.capacity
	}

	if buffer.size > 0 {
		victim := buffer.take()
		buffer.metrics.droppedTotal.Inc()
		buffer.logger.Debugf("evicted oldest %s record %s under back-pressure", victim.Level, victim.ID)
		return true
	}
	return false
}

// removeAt removes the record at an arbitrary ring position by shifting the records
// behind it one slot toward the read cursor, keeping the ring contiguous. Caller must
// hold the lock.
func (buffer *RingBuffer) removeAt(index int) {
	// on a full ring the write cursor equals the read cursor, so the loop must run at
	// least once even when the victim sits at the read cursor
	current := index
	for {
		next := (current + 1) % buffer.capacity
		if next == buffer.writeIndex {
			break
		}
		buffer.slots[current] = buffer.slots[next]
		current = next
	}
	buffer.writeIndex = current
	buffer.slots[current] = nil
	buffer.size--
	buffer.metrics.queuedRecords.Dec()
}
