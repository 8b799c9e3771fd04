package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Output formats accepted by New.
const (
	FormatText  = "text"
	FormatJSONL = "jsonl"
)

// Writer outputs validation results.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits complete lines; output from
// concurrent callers never interleaves within a line.
type Writer interface {
	// WriteStart announces the root being validated.
	WriteStart(ctx context.Context, start *StartRecord) error

	// WriteFile emits the verdict for one file.
	WriteFile(ctx context.Context, file *FileRecord) error

	// WriteError emits a fatal error.
	WriteError(ctx context.Context, err *ErrorRecord) error

	// WriteSummary emits the final summary.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// New returns a Writer for the named format.
func New(format string, w io.Writer, runID, provider string) (Writer, error) {
	switch format {
	case "", FormatText:
		return NewTextWriter(w), nil
	case FormatJSONL:
		return NewJSONLWriter(w, runID, provider), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// TextWriter prints the human-readable result lines.
//
// TextWriter is safe for concurrent use. Writes are serialized using
// a mutex so each line is written atomically.
type TextWriter struct {
	w      io.Writer
	mu     sync.Mutex
	closed bool
}

// NewTextWriter creates a text writer on w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

// WriteStart prints "Validating YAML files in <root>...".
func (tw *TextWriter) WriteStart(ctx context.Context, start *StartRecord) error {
	return tw.writeLine(ctx, fmt.Sprintf("Validating YAML files in %s...\n", start.Root))
}

// WriteFile prints "✓ <path>" or "✗ Schema error in <path>: <error>".
func (tw *TextWriter) WriteFile(ctx context.Context, file *FileRecord) error {
	if file.Valid {
		return tw.writeLine(ctx, fmt.Sprintf("✓ %s\n", file.Path))
	}
	return tw.writeLine(ctx, fmt.Sprintf("✗ Schema error in %s: %s\n", file.Path, file.Error))
}

// WriteError prints "ERROR: <message>".
func (tw *TextWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return tw.writeLine(ctx, fmt.Sprintf("ERROR: %s\n", rec.Message))
}

// WriteSummary prints a blank line followed by the verdict line.
func (tw *TextWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	if sum.FilesFailed > 0 {
		return tw.writeLine(ctx, fmt.Sprintf("\n%d files failed validation\n", sum.FilesFailed))
	}
	return tw.writeLine(ctx, "\n✓ All YAML files are valid\n")
}

// Close marks the writer as closed. The underlying writer is not closed.
func (tw *TextWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.closed = true
	return nil
}

func (tw *TextWriter) writeLine(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return ErrWriterClosed
	}

	if err := writeAll(tw.w, []byte(line)); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w        io.Writer
	runID    string
	provider string
	mu       sync.Mutex

	// closed indicates the writer has been closed.
	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - runID: Correlation ID for this invocation
//   - provider: Storage provider identifier ("file" or "s3")
func NewJSONLWriter(w io.Writer, runID, provider string) *JSONLWriter {
	return &JSONLWriter{
		w:        w,
		runID:    runID,
		provider: provider,
	}
}

// WriteStart emits a start record.
func (jw *JSONLWriter) WriteStart(ctx context.Context, start *StartRecord) error {
	return jw.writeRecord(ctx, TypeStart, start)
}

// WriteFile emits a file record.
func (jw *JSONLWriter) WriteFile(ctx context.Context, file *FileRecord) error {
	return jw.writeRecord(ctx, TypeFile, file)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	if sum.DurationMs == 0 && sum.Duration > 0 {
		cp := *sum
		cp.DurationMs = sum.Duration.Milliseconds()
		sum = &cp
	}
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the payload outside the lock.
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:     recordType,
		TS:       time.Now().UTC(),
		RunID:    jw.runID,
		Provider: jw.provider,
		Data:     dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, handling short writes.
//
// io.Writer.Write may return n < len(p) with a nil error. This loops
// until all bytes are written or an error occurs so lines are never
// silently truncated.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Compile-time checks.
var (
	_ Writer = (*TextWriter)(nil)
	_ Writer = (*JSONLWriter)(nil)
)
