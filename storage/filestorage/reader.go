package filestorage

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/klauspost/compress/gzip"

	"github.com/logtide/logtide/base"
)

// Read-back of stored files for diagnostics and tests; not a query path. Lines that
// fail to re-parse are skipped silently.

// GetByApplication re-reads stored records of one application, up to limit
func (storage *FileStorage) GetByApplication(application string, limit int) ([]*base.LogRecord, error) {
	pattern, err := glob.Compile(application + "_*.log")
	if err != nil {
		return nil, err
	}
	return storage.scanFiles(pattern, limit, func(record *base.LogRecord) bool {
		return record.Application == application
	})
}

// GetByLevel re-reads stored records of one level across all applications, up to limit
func (storage *FileStorage) GetByLevel(level base.LogLevel, limit int) ([]*base.LogRecord, error) {
	pattern, err := glob.Compile("*_*.log")
	if err != nil {
		return nil, err
	}
	return storage.scanFiles(pattern, limit, func(record *base.LogRecord) bool {
		return record.Level == level
	})
}

func (storage *FileStorage) scanFiles(pattern glob.Glob, limit int, accept func(*base.LogRecord) bool) ([]*base.LogRecord, error) {
	entries, err := os.ReadDir(storage.baseDir)
	if err != nil {
		return nil, err
	}

	records := make([]*base.LogRecord, 0, limit)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// compressed files match by their plain name
		if !pattern.Match(strings.TrimSuffix(entry.Name(), ".gz")) {
			continue
		}
		if err := storage.scanFile(filepath.Join(storage.baseDir, entry.Name()), limit, accept, &records); err != nil {
			storage.logger.Warnf("failed to read %s: %s", entry.Name(), err.Error())
		}
		if len(records) >= limit {
			break
		}
	}
	return records, nil
}

func (storage *FileStorage) scanFile(path string, limit int, accept func(*base.LogRecord) bool, records *[]*base.LogRecord) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gzipReader, gerr := gzip.NewReader(file)
		if gerr != nil {
			return gerr
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() && len(*records) < limit {
		record := ParseStoredLine(scanner.Text())
		if record != nil && accept(record) {
			*records = append(*records, record)
		}
	}
	return scanner.Err()
}
