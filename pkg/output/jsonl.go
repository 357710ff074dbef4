package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/velemoonkon/echoping/pkg/runner"
	"github.com/velemoonkon/echoping/pkg/stats"
)

const defaultBufferSize = 64 * 1024

// Writer writes one JSON object per finished target (JSON Lines).
// Attempts are carried inside each report, so Attempt is a no-op.
type Writer struct {
	file   *os.File
	writer *bufio.Writer
	count  int
}

// NewWriter creates a JSONL writer to the specified file
// Use "-" or "" for stdout
func NewWriter(filename string, bufferSize int) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	var file *os.File
	if filename == "-" || filename == "" {
		file = os.Stdout
	} else {
		var err error
		file, err = os.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
	}

	return &Writer{
		file:   file,
		writer: bufio.NewWriterSize(file, bufferSize),
	}, nil
}

// NewWriterFromWriter creates a JSONL writer from an existing io.Writer
func NewWriterFromWriter(w io.Writer) *Writer {
	return &Writer{
		writer: bufio.NewWriterSize(w, defaultBufferSize),
	}
}

// Attempt implements Sink
func (w *Writer) Attempt(string, stats.Attempt) {}

// Write writes a single result as a JSON line
func (w *Writer) Write(res *runner.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}

	w.count++

	// A run takes seconds, so flushing per target keeps pipes responsive
	return w.writer.Flush()
}

// Flush forces any buffered data to be written
func (w *Writer) Flush() error {
	return w.writer.Flush()
}

// Close flushes and closes the writer
func (w *Writer) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}

	// Don't close stdout
	if w.file != nil && w.file != os.Stdout {
		return w.file.Close()
	}

	return nil
}

// Count returns the number of results written
func (w *Writer) Count() int {
	return w.count
}
