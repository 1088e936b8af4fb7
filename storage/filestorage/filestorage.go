// Package filestorage persists log records to per-application, daily-rotated append-only
// files under a base directory. Rotation is implicit: the first write for a new
// (application, day) key opens a new file. With compression enabled, each handle writes
// one gzip stream appended to the file; a day file is then a valid multi-stream gzip.
package filestorage

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/defs"
)

const dayLayout = "2006-01-02"

type fileKey struct {
	application string
	day         string
}

// appendHandle is an opened, append-positioned writer for one (application, day) file.
// Writes and flushes are serialised by the handle mutex.
type appendHandle struct {
	mutex  sync.Mutex
	file   *os.File
	gzip   *gzip.Writer
	writer *bufio.Writer
}

type storageMetrics struct {
	storedTotal      promext.RWCounter
	writtenBytes     promext.RWCounter
	openedFilesTotal promext.RWCounter
	openFiles        promext.RWGauge
}

// FileStorage implements base.LogStorage on plain text files named
// <baseDir>/<application>_<YYYY-MM-DD>.log (plus ".gz" when compressing)
//
// The handle map is guarded by a readers-writer lock: batch writes share the map read
// side while handle creation takes the write side.
type FileStorage struct {
	logger     logger.Logger
	baseDir    string
	compress   bool
	handleLock sync.RWMutex
	handles    map[fileKey]*appendHandle
	metrics    storageMetrics
}

// NewFileStorage creates a FileStorage writing under baseDir, creating it if needed
func NewFileStorage(parentLogger logger.Logger, baseDir string, compress bool, metricFactory *base.MetricFactory) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	storage := &FileStorage{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "FileStorage",
			defs.LabelName:      baseDir,
		}),
		baseDir:  baseDir,
		compress: compress,
		handles:  make(map[fileKey]*appendHandle, 20),
		metrics: storageMetrics{
			storedTotal:      metricFactory.AddOrGetCounter("storage_stored_records_total", "Numbers of records written to files", nil, nil),
			writtenBytes:     metricFactory.AddOrGetCounter("storage_written_bytes_total", "Total length in bytes of written log lines", nil, nil),
			openedFilesTotal: metricFactory.AddOrGetCounter("storage_opened_files_total", "Numbers of log files ever opened", nil, nil),
			openFiles:        metricFactory.AddOrGetGauge("storage_open_files", "Current numbers of open log files", nil, nil),
		},
	}
	storage.logger.Info("storage ready")
	return storage, nil
}

// Store writes a single record
func (storage *FileStorage) Store(record *base.LogRecord) error {
	return storage.StoreBatch([]*base.LogRecord{record})
}

// StoreBatch writes a batch of records, grouped by (application, day) so each target
// handle is written once and flushed once
func (storage *FileStorage) StoreBatch(records []*base.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	// keys are computed per record; a batch written across midnight lands in two files
	groups := make(map[fileKey][]*base.LogRecord, 4)
	for _, record := range records {
		key := fileKey{application: record.Application, day: time.Now().Format(dayLayout)}
		groups[key] = append(groups[key], record)
	}

	var lastErr error
	for key, group := range groups {
		handle, err := storage.getHandle(key)
		if err != nil {
			storage.logger.Errorf("failed to open file for %s/%s, dropping %d records: %s",
				key.application, key.day, len(group), err.Error())
			lastErr = err
			continue
		}
		if err := storage.writeGroup(handle, group); err != nil {
			storage.logger.Errorf("failed to write %d records for %s/%s: %s",
				len(group), key.application, key.day, err.Error())
			lastErr = err
		}
	}
	return lastErr
}

func (storage *FileStorage) writeGroup(handle *appendHandle, records []*base.LogRecord) error {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()

	for _, record := range records {
		line := FormatRecord(record)
		if _, err := handle.writer.WriteString(line); err != nil {
			return err
		}
		if err := handle.writer.WriteByte('\n'); err != nil {
			return err
		}
		storage.metrics.storedTotal.Inc()
		storage.metrics.writtenBytes.Add(uint64(len(line) + 1))
	}
	if err := handle.writer.Flush(); err != nil {
		return err
	}
	if handle.gzip != nil {
		return handle.gzip.Flush()
	}
	return nil
}

func (storage *FileStorage) getHandle(key fileKey) (*appendHandle, error) {
	storage.handleLock.RLock()
	handle, ok := storage.handles[key]
	storage.handleLock.RUnlock()
	if ok {
		return handle, nil
	}

	storage.handleLock.Lock()
	defer storage.handleLock.Unlock()
	if handle, ok := storage.handles[key]; ok {
		return handle, nil
	}

	path := filepath.Join(storage.baseDir, storage.fileName(key))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	handle = &appendHandle{file: file}
	if storage.compress {
		handle.gzip, _ = gzip.NewWriterLevel(file, gzip.BestSpeed)
		handle.writer = bufio.NewWriter(handle.gzip)
	} else {
		handle.writer = bufio.NewWriter(file)
	}
	storage.handles[key] = handle
	storage.metrics.openedFilesTotal.Inc()
	storage.metrics.openFiles.Inc()
	storage.logger.Infof("opened log file %s", path)
	return handle, nil
}

func (storage *FileStorage) fileName(key fileKey) string {
	// application names may not escape the base directory
	application := strings.ReplaceAll(key.application, string(os.PathSeparator), "_")
	name := application + "_" + key.day + ".log"
	if storage.compress {
		name += ".gz"
	}
	return name
}

// Stats returns a snapshot of storage counters
func (storage *FileStorage) Stats() base.StorageStats {
	return base.StorageStats{
		OpenFiles:     int(storage.metrics.openFiles.Get()),
		StoredRecords: storage.metrics.storedTotal.Get(),
		WrittenBytes:  storage.metrics.writtenBytes.Get(),
	}
}

// Close flushes and closes all handles; the storage must not be written afterwards
func (storage *FileStorage) Close() error {
	storage.handleLock.Lock()
	defer storage.handleLock.Unlock()

	var lastErr error
	for key, handle := range storage.handles {
		handle.mutex.Lock()
		if err := handle.writer.Flush(); err != nil {
			lastErr = err
		}
		if handle.gzip != nil {
			if err := handle.gzip.Close(); err != nil {
				lastErr = err
			}
		}
		if err := handle.file.Close(); err != nil {
			lastErr = err
		}
		handle.mutex.Unlock()
		delete(storage.handles, key)
		storage.metrics.openFiles.Dec()
	}
	storage.logger.Infof("closed storage - %s", storage.Stats())
	return lastErr
}
