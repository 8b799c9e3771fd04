package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	w, err := New("", &buf, "run-1", "file")
	require.NoError(t, err)
	assert.IsType(t, &TextWriter{}, w)

	w, err = New(FormatJSONL, &buf, "run-1", "file")
	require.NoError(t, err)
	assert.IsType(t, &JSONLWriter{}, w)

	_, err = New("xml", &buf, "run-1", "file")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestTextWriter_Lines(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)
	ctx := context.Background()

	require.NoError(t, w.WriteStart(ctx, &StartRecord{Root: "specs"}))
	require.NoError(t, w.WriteFile(ctx, &FileRecord{Path: "specs/a.yaml", Valid: true}))
	require.NoError(t, w.WriteFile(ctx, &FileRecord{
		Path:  "specs/b.yaml",
		Error: "yaml: line 1: did not find expected node content",
	}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{FilesFailed: 1}))

	expected := "Validating YAML files in specs...\n" +
		"✓ specs/a.yaml\n" +
		"✗ Schema error in specs/b.yaml: yaml: line 1: did not find expected node content\n" +
		"\n" +
		"1 files failed validation\n"
	assert.Equal(t, expected, buf.String())
}

func TestTextWriter_SummaryAllValid(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)

	require.NoError(t, w.WriteSummary(context.Background(), &SummaryRecord{FilesValid: 3}))
	assert.Equal(t, "\n✓ All YAML files are valid\n", buf.String())
}

func TestTextWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)

	err := w.WriteError(context.Background(), &ErrorRecord{
		Code:    ErrCodeNotFound,
		Message: "Root directory not found: missing",
	})
	require.NoError(t, err)
	assert.Equal(t, "ERROR: Root directory not found: missing\n", buf.String())
}

func TestTextWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)
	require.NoError(t, w.Close())

	err := w.WriteFile(context.Background(), &FileRecord{Path: "a.yaml", Valid: true})
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.Empty(t, buf.String())
}

func TestTextWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)

	const numWriters = 8
	const writesPerWriter = 50

	var wg sync.WaitGroup
	wg.Add(numWriters)
	for i := 0; i < numWriters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteFile(context.Background(), &FileRecord{Path: "specs/file.yaml", Valid: true})
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)
	for _, line := range lines {
		assert.Equal(t, "✓ specs/file.yaml", line)
	}
}

func TestJSONLWriter_WriteFile(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "file")

	err := w.WriteFile(context.Background(), &FileRecord{
		Path:  "specs/bad.yaml",
		Key:   "bad.yaml",
		Size:  12,
		Error: "yaml: unmarshal errors",
	})
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeFile, record.Type)
	assert.Equal(t, "run-123", record.RunID)
	assert.Equal(t, "file", record.Provider)
	assert.False(t, record.TS.IsZero())

	var file FileRecord
	require.NoError(t, json.Unmarshal(record.Data, &file))
	assert.Equal(t, "specs/bad.yaml", file.Path)
	assert.Equal(t, "bad.yaml", file.Key)
	assert.False(t, file.Valid)
	assert.Equal(t, "yaml: unmarshal errors", file.Error)
}

func TestJSONLWriter_WriteSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "s3")

	err := w.WriteSummary(context.Background(), &SummaryRecord{
		Root:         "s3://bucket/specs/",
		FilesListed:  10,
		FilesMatched: 4,
		FilesValid:   3,
		FilesFailed:  1,
		Duration:     1500 * time.Millisecond,
	})
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeSummary, record.Type)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(record.Data, &raw))
	assert.EqualValues(t, 1500, raw["duration_ms"])
	assert.EqualValues(t, 1, raw["files_failed"])
	assert.NotContains(t, raw, "Duration")
}

func TestJSONLWriter_StartAndError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "file")
	ctx := context.Background()

	require.NoError(t, w.WriteStart(ctx, &StartRecord{Root: "specs"}))
	require.NoError(t, w.WriteError(ctx, &ErrorRecord{Code: ErrCodeAccessDenied, Message: "denied"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, TypeStart, first.Type)
	assert.Equal(t, TypeError, second.Type)
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "file")

	require.NoError(t, w.Close())

	err := w.WriteFile(context.Background(), &FileRecord{Path: "a.yaml"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "file")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteFile(ctx, &FileRecord{Path: "a.yaml"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "run-123", "file")

	err := w.WriteFile(context.Background(), &FileRecord{Path: "a.yaml"})
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	sw := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(sw, "run-123", "file")

	require.NoError(t, w.WriteFile(context.Background(), &FileRecord{Path: "specs/a.yaml", Valid: true}))

	lines := strings.Split(strings.TrimSpace(sw.buf.String()), "\n")
	require.Len(t, lines, 1)

	var record Record
	assert.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, TypeFile, record.Type)
}

func TestTextWriter_ZeroWrite(t *testing.T) {
	w := NewTextWriter(&zeroWriteWriter{})

	err := w.WriteFile(context.Background(), &FileRecord{Path: "a.yaml", Valid: true})
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

type failingWriter struct {
	err error
}

func (fw *failingWriter) Write(p []byte) (int, error) {
	return 0, fw.err
}

// shortWriteWriter writes at most bytesPerWrite bytes per call, returning nil error.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (n int, err error) {
	toWrite := len(p)
	if toWrite > sw.bytesPerWrite {
		toWrite = sw.bytesPerWrite
	}
	return sw.buf.Write(p[:toWrite])
}

// zeroWriteWriter always returns 0 bytes written with nil error.
type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}
