package ringbuffer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"

	"github.com/logtide/logtide/base"
)

func newTestBuffer(t *testing.T, capacity int, metricPrefix string) *RingBuffer {
	mfactory := base.NewMetricFactory(metricPrefix)
	return NewRingBuffer(logger.WithField("test", t.Name()), capacity, mfactory)
}

func newTestRecord(level base.LogLevel, message string) *base.LogRecord {
	return base.NewLogRecord(level, message, "app", "host", nil)
}

func TestRingBufferFIFO(t *testing.T) {
	buf := newTestBuffer(t, 5, "tbuf_fifo_")
	for i := 1; i <= 5; i++ {
		assert.True(t, buf.Enqueue(newTestRecord(base.LevelInfo, fmt.Sprintf("m%d", i))))
	}
	stats := buf.Stats()
	assert.Equal(t, 5, stats.Size)
	assert.Equal(t, uint64(5), stats.TotalAdded)
	assert.Equal(t, uint64(0), stats.TotalDropped)

	for i := 1; i <= 5; i++ {
		record := buf.TryDequeue()
		if assert.NotNil(t, record, i) {
			assert.Equal(t, fmt.Sprintf("m%d", i), record.Message)
		}
	}
	assert.Nil(t, buf.TryDequeue())
	assert.Equal(t, 0, buf.Stats().Size)
}

func TestRingBufferEvictOldestWithoutLowPriorityVictim(t *testing.T) {
	buf := newTestBuffer(t, 5, "tbuf_oldest_")
	for i := 1; i <= 5; i++ {
		assert.True(t, buf.Enqueue(newTestRecord(base.LevelInfo, fmt.Sprintf("m%d", i))))
	}
	// full of INFO records: the oldest one is dropped to make room
	assert.True(t, buf.Enqueue(newTestRecord(base.LevelDebug, "m6")))

	stats := buf.Stats()
	assert.Equal(t, 5, stats.Size)
	assert.Equal(t, uint64(6), stats.TotalAdded)
	assert.Equal(t, uint64(1), stats.TotalDropped)

	expected := []string{"m2", "m3", "m4", "m5", "m6"}
	for _, message := range expected {
		record := buf.TryDequeue()
		if assert.NotNil(t, record, message) {
			assert.Equal(t, message, record.Message)
		}
	}
}

func TestRingBufferEvictLowPriorityFirst(t *testing.T) {
	buf := newTestBuffer(t, 5, "tbuf_lowprio_")
	levels := []base.LogLevel{base.LevelInfo, base.LevelDebug, base.LevelInfo, base.LevelDebug, base.LevelInfo}
	for i, level := range levels {
		assert.True(t, buf.Enqueue(newTestRecord(level, fmt.Sprintf("m%d", i+1))))
	}
	// the first DEBUG from the read cursor (m2) is evicted, not any WARN/ERROR/INFO
	assert.True(t, buf.Enqueue(newTestRecord(base.LevelInfo, "m6")))

	stats := buf.Stats()
	assert.Equal(t, 5, stats.Size)
	assert.Equal(t, uint64(1), stats.TotalDropped)

	expected := []string{"m1", "m3", "m4", "m5", "m6"}
	for _, message := range expected {
		record := buf.TryDequeue()
		if assert.NotNil(t, record, message) {
			assert.Equal(t, message, record.Message)
		}
	}
}

func TestRingBufferEvictionInMiddleKeepsOrderWhenWrapped(t *testing.T) {
	buf := newTestBuffer(t, 4, "tbuf_wrap_")
	// advance the cursors so the ring wraps
	assert.True(t, buf.Enqueue(newTestRecord(base.LevelInfo, "x1")))
	assert.True(t, buf.Enqueue(newTestRecord(base.LevelInfo, "x2")))
	assert.NotNil(t, buf.TryDequeue())
	assert.NotNil(t, buf.TryDequeue())

	levels := []base.LogLevel{base.LevelWarn, base.LevelInfo, base.LevelTrace, base.LevelError}
	for i, level := range levels {
		assert.True(t, buf.Enqueue(newTestRecord(level, fmt.Sprintf("m%d", i+1))))
	}
	assert.True(t, buf.Enqueue(newTestRecord(base.LevelFatal, "m5")))

	expected := []string{"m1", "m2", "m4", "m5"}
	for _, message := range expected {
		record := buf.TryDequeue()
		if assert.NotNil(t, record, message) {
			assert.Equal(t, message, record.Message)
		}
	}
}

func TestRingBufferBackPressureHysteresis(t *testing.T) {
	buf := newTestBuffer(t, 10, "tbuf_bp_")
	for i := 0; i < 8; i++ {
		buf.Enqueue(newTestRecord(base.LevelInfo, "m"))
	}
	assert.False(t, buf.Stats().BackPressureActive)

	// 9th enqueue sees size 8 < 90%, 10th sees size 9 >= 90%
	buf.Enqueue(newTestRecord(base.LevelInfo, "m"))
	assert.False(t, buf.Stats().BackPressureActive)
	buf.Enqueue(newTestRecord(base.LevelInfo, "m"))
	assert.True(t, buf.Stats().BackPressureActive)

	// stays active inside the hysteresis band
	for i := 0; i < 3; i++ {
		assert.NotNil(t, buf.TryDequeue())
	}
	buf.Enqueue(newTestRecord(base.LevelInfo, "m"))
	assert.True(t, buf.Stats().BackPressureActive)

	// clears once utilisation drops below 70% at the next enqueue
	for i := 0; i < 2; i++ {
		assert.NotNil(t, buf.TryDequeue())
	}
	buf.Enqueue(newTestRecord(base.LevelInfo, "m"))
	assert.False(t, buf.Stats().BackPressureActive)
}

func TestRingBufferBlockingDequeue(t *testing.T) {
	buf := newTestBuffer(t, 5, "tbuf_block_")
	resultChan := make(chan *base.LogRecord, 1)
	go func() {
		record, ok := buf.Dequeue()
		assert.True(t, ok)
		resultChan <- record
	}()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, buf.Enqueue(newTestRecord(base.LevelInfo, "wake")))
	select {
	case record := <-resultChan:
		assert.Equal(t, "wake", record.Message)
	case <-time.After(time.Second):
		t.Fatal("blocking dequeue did not wake up")
	}

	buf.Close()
	_, ok := buf.Dequeue()
	assert.False(t, ok)
	assert.False(t, buf.Enqueue(newTestRecord(base.LevelInfo, "late")))
}

func TestRingBufferConcurrentProducersAndConsumer(t *testing.T) {
	const producers = 4
	const perProducer = 100
	buf := newTestBuffer(t, producers*perProducer, "tbuf_conc_")

	producerGroup := &sync.WaitGroup{}
	for p := 0; p < producers; p++ {
		producerGroup.Add(1)
		go func(p int) {
			defer producerGroup.Done()
			for i := 0; i < perProducer; i++ {
				assert.True(t, buf.Enqueue(newTestRecord(base.LevelInfo, fmt.Sprintf("p%d-%d", p, i))))
			}
		}(p)
	}

	seen := make(map[string]bool, producers*perProducer)
	lastPerProducer := make(map[string]int, producers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for count := 0; count < producers*perProducer; count++ {
			record, ok := buf.Dequeue()
			if !ok {
				return
			}
			assert.False(t, seen[record.ID], "duplicate record %s", record.ID)
			seen[record.ID] = true

			// per-producer FIFO: sequence numbers arrive in order
			var producer, sequence int
			fmt.Sscanf(record.Message, "p%d-%d", &producer, &sequence)
			key := fmt.Sprintf("p%d", producer)
			if last, ok := lastPerProducer[key]; ok {
				assert.Greater(t, sequence, last)
			}
			lastPerProducer[key] = sequence
		}
	}()

	producerGroup.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
	assert.Len(t, seen, producers*perProducer)

	stats := buf.Stats()
	assert.Equal(t, uint64(producers*perProducer), stats.TotalAdded)
	assert.Equal(t, uint64(0), stats.TotalDropped)
	assert.Equal(t, 0, stats.Size)
}
