package output

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/velemoonkon/echoping/pkg/runner"
	"github.com/velemoonkon/echoping/pkg/stats"
)

// AttemptRow is one attempt flattened for Parquet storage. Run-level
// fields repeat on every row; a run that failed before any attempt is
// stored as a single row with Seq 0 and RunError set.
type AttemptRow struct {
	RunID  string `parquet:"run_id,zstd,dict"`
	Probe  string `parquet:"probe,zstd,dict"`
	Target string `parquet:"target,zstd,dict"`
	Addr   string `parquet:"addr,zstd,dict"`

	Seq        int32   `parquet:"seq"`
	Status     string  `parquet:"status,zstd,dict"`
	RTTMs      float64 `parquet:"rtt_ms"`
	TTL        int32   `parquet:"ttl"`
	Peer       string  `parquet:"peer,zstd,dict"`
	Bytes      int32   `parquet:"bytes"`
	Error      string  `parquet:"error,zstd"`
	Diagnostic string  `parquet:"diagnostic,zstd"`

	StartedAtMs int64  `parquet:"started_at_ms"`
	RunError    string `parquet:"run_error,zstd"`
}

// ParquetWriter writes attempts to a Parquet file
type ParquetWriter struct {
	file     *os.File
	writer   *parquet.GenericWriter[AttemptRow]
	rowGroup int
	pending  int
	count    int
}

// NewParquetWriter creates a zstd-compressed Parquet writer. rowGroup
// rows are buffered before a row group is cut (0 leaves it to the library).
func NewParquetWriter(filename string, rowGroup int) (*ParquetWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[AttemptRow](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.CreatedBy("echoping", "1.0.0", "go"),
	)

	return &ParquetWriter{
		file:     file,
		writer:   writer,
		rowGroup: rowGroup,
	}, nil
}

// Attempt implements Sink; rows are written once the run's report is known
func (w *ParquetWriter) Attempt(string, stats.Attempt) {}

// Write flattens a result into rows and writes them
func (w *ParquetWriter) Write(res *runner.Result) error {
	rows := resultToRows(res)
	if _, err := w.writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}

	w.count += len(rows)
	w.pending += len(rows)
	if w.rowGroup > 0 && w.pending >= w.rowGroup {
		w.pending = 0
		return w.writer.Flush()
	}
	return nil
}

// Flush forces buffered data to be written
func (w *ParquetWriter) Flush() error {
	return w.writer.Flush()
}

// Close finalizes and closes the Parquet file
func (w *ParquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the number of rows written
func (w *ParquetWriter) Count() int {
	return w.count
}

// resultToRows flattens a runner.Result into one row per attempt
func resultToRows(res *runner.Result) []AttemptRow {
	base := AttemptRow{
		Target:   res.Target,
		RunError: res.Error,
	}
	r := res.Report
	if r == nil {
		return []AttemptRow{base}
	}

	base.RunID = r.RunID
	base.Probe = r.Probe
	base.Addr = r.Addr
	base.StartedAtMs = r.StartedAt.UnixMilli()
	if len(r.Attempts) == 0 {
		return []AttemptRow{base}
	}

	rows := make([]AttemptRow, len(r.Attempts))
	for i, a := range r.Attempts {
		row := base
		row.Seq = int32(a.Seq)
		row.Status = string(a.Status)
		row.RTTMs = a.RTTMs
		row.TTL = int32(a.TTL)
		row.Peer = a.Peer
		row.Bytes = int32(a.Bytes)
		row.Error = a.Error
		row.Diagnostic = a.Diagnostic
		rows[i] = row
	}
	return rows
}
