// Package output renders runner results as text, JSONL or Parquet.
package output

import (
	"errors"
	"fmt"
	"os"

	"github.com/velemoonkon/echoping/pkg/config"
	"github.com/velemoonkon/echoping/pkg/runner"
	"github.com/velemoonkon/echoping/pkg/stats"
)

// Supported output formats
const (
	FormatText    = "text"
	FormatJSONL   = "jsonl"
	FormatParquet = "parquet"
)

var ErrUnknownFormat = errors.New("unknown output format")

// Sink consumes runner output. Attempt may be called concurrently for
// different targets.
type Sink interface {
	Attempt(target string, a stats.Attempt)
	Write(res *runner.Result) error
	Close() error
}

// Handlers wires a sink into a runner
func Handlers(s Sink) runner.Handlers {
	return runner.Handlers{
		OnAttempt: s.Attempt,
		OnResult:  s.Write,
	}
}

// New opens the sink selected by cfg.Format. multi prefixes text lines
// with their target.
func New(cfg config.OutputConfig, probe string, multi bool) (Sink, error) {
	switch cfg.Format {
	case FormatText, "":
		if cfg.File == "" || cfg.File == "-" {
			return NewTextWriter(os.Stdout, probe, multi), nil
		}
		file, err := os.Create(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		tw := NewTextWriter(file, probe, multi)
		tw.file = file
		return tw, nil
	case FormatJSONL:
		return NewWriter(cfg.File, cfg.BufferSize)
	case FormatParquet:
		if cfg.File == "" || cfg.File == "-" {
			return nil, errors.New("parquet output needs a file")
		}
		return NewParquetWriter(cfg.File, cfg.RowGroup)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.Format)
}
