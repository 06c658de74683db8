package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
)

// JSONLConfig configures the file sink. Sizes are in megabytes.
type JSONLConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// JSONLSink appends one JSON document per line to a rotated file.
type JSONLSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	enc *json.Encoder
}

type jsonlLine struct {
	Collection string `json:"collection"`
	coremetrics.Record
}

// NewJSONLSink opens the file lazily on the first write.
func NewJSONLSink(cfg JSONLConfig) (*JSONLSink, error) {
	if cfg.Path == "" {
		return nil, errors.New("jsonl sink: path is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	out := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &JSONLSink{out: out, enc: json.NewEncoder(out)}, nil
}

// Save appends r.
func (s *JSONLSink) Save(_ context.Context, collection string, r coremetrics.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(jsonlLine{Collection: collection, Record: r})
}

// Close closes the current file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}
