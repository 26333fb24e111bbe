package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

// sink receives batches of stats rows.
type sink interface {
	insertAll(ctx context.Context, table string, rows []interface{}) error
	Close() error
}

// logSink only reports batch sizes. It is used when no stats directory
// is configured.
type logSink struct {
	log logrus.FieldLogger
}

func (s logSink) insertAll(_ context.Context, table string, rows []interface{}) error {
	s.log.WithFields(logrus.Fields{"table": table, "rows": len(rows)}).Info("stats batch")
	return nil
}

func (logSink) Close() error { return nil }

// fileSink appends each batch as one gzip member of newline delimited JSON
// to <dir>/<table>.ndjson.gz. Concatenated members read back as one stream.
type fileSink struct {
	dir string
	mu  sync.Mutex
}

func newFileSink(dir string) (*fileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("stats dir: %w", err)
	}
	return &fileSink{dir: dir}, nil
}

func (s *fileSink) path(table string) string {
	return filepath.Join(s.dir, table+".ndjson.gz")
}

func (s *fileSink) insertAll(ctx context.Context, table string, rows []interface{}) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(table), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", table, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			zw.Close()
			return fmt.Errorf("encode %s row: %w", table, err)
		}
	}
	return zw.Close()
}

func (*fileSink) Close() error { return nil }
