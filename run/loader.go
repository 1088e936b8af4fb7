// Package run wires the ingestion pipeline together and runs it until stopped
package run

import (
	"fmt"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/buffer/ringbuffer"
	"github.com/logtide/logtide/defs"
	"github.com/logtide/logtide/input/tcpserver"
	"github.com/logtide/logtide/process"
	"github.com/logtide/logtide/storage/filestorage"
)

// Loader builds the pipeline from a Config and controls its lifecycle. Components are
// created bottom-up (storage, buffer, pool, server) so every producer has a working
// consumer below it before the port opens.
type Loader struct {
	Config        Config
	MetricFactory *base.MetricFactory

	stopRequest *channels.SignalAwaitable
	buffer      *ringbuffer.RingBuffer
	storage     *filestorage.FileStorage
	pool        *process.ProcessorPool
	server      *tcpserver.TCPServer
	reporter    *statsReporter
}

// NewLoader creates the pipeline components without starting anything
func NewLoader(config Config, metricPrefix string) (*Loader, error) {
	if config.MaxMessageSize > 0 {
		defs.InputLogMaxMessageBytes = int(config.MaxMessageSize.Bytes())
	}

	metricFactory := base.NewMetricFactory(metricPrefix)
	storage, err := filestorage.NewFileStorage(logger.Root(), config.StorageDirectory, config.StorageCompress, metricFactory)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage directory %s: %w", config.StorageDirectory, err)
	}

	buffer := ringbuffer.NewRingBuffer(logger.Root(), config.BufferSize, metricFactory)
	batchSize := process.BatchSizeFor(config.BufferSize, config.WorkerCount)
	pool := process.NewProcessorPool(logger.Root(), buffer, storage, config.WorkerCount, batchSize, metricFactory)

	return &Loader{
		Config:        config,
		MetricFactory: metricFactory,
		stopRequest:   channels.NewSignalAwaitable(),
		buffer:        buffer,
		storage:       storage,
		pool:          pool,
	}, nil
}

// Launch starts processors, the TCP server and the stats reporter, returning the bound
// listen address. A bind failure is returned to the caller and is fatal.
func (loader *Loader) Launch() (string, error) {
	loader.pool.Launch()

	server, address, err := tcpserver.NewTCPServer(logger.Root(),
		fmt.Sprintf(":%d", loader.Config.Port), loader.Config.MaxClients,
		loader.buffer, loader.MetricFactory, loader.stopRequest)
	if err != nil {
		return "", err
	}
	loader.server = server
	server.Start()

	loader.reporter = newStatsReporter(logger.Root(), loader)
	loader.reporter.Launch()
	return address, nil
}

// Shutdown stops the pipeline in dependency order: no new connections, handlers out,
// workers drain the buffer, then storage is flushed and closed
func (loader *Loader) Shutdown() {
	loader.stopRequest.Signal()

	if loader.server != nil {
		if !loader.server.Stopped().Wait(defs.ConnectionShutDownTimeout) {
			logger.Errorf("connection handlers did not stop within %s", defs.ConnectionShutDownTimeout)
		}
	}
	loader.pool.Shutdown()
	if loader.reporter != nil {
		loader.reporter.Stop()
	}
	loader.buffer.Close()
	if err := loader.storage.Close(); err != nil {
		logger.Errorf("error closing storage: %s", err.Error())
	}
}

// Buffer exposes the buffer for tests and the stats reporter
func (loader *Loader) Buffer() base.LogBuffer {
	return loader.buffer
}

// Storage exposes the storage for tests and the stats reporter
func (loader *Loader) Storage() base.LogStorage {
	return loader.storage
}
