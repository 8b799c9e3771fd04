// Package output renders validation results.
//
// Two renderings share one Writer interface: TextWriter prints the
// human-readable contract lines ("✓ path", "✗ Schema error in ..."), and
// JSONLWriter emits typed record envelopes, one self-contained JSON object
// per line, for machine consumption.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: specguard.<type>.v<version>
const (
	// TypeStart identifies the record emitted before a scan begins.
	TypeStart = "specguard.start.v1"

	// TypeFile identifies per-file verdict records.
	TypeFile = "specguard.file.v1"

	// TypeError identifies fatal error records.
	TypeError = "specguard.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "specguard.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "specguard.file.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this invocation.
	RunID string `json:"run_id"`

	// Provider identifies the storage provider ("file" or "s3").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// StartRecord announces the root being validated.
type StartRecord struct {
	Root string `json:"root"`
}

// FileRecord is the verdict for a single YAML file.
type FileRecord struct {
	// Path is the display path: the root joined with the relative key.
	Path string `json:"path"`

	// Key is the path relative to the root (slash separated).
	Key string `json:"key"`

	// Size is the file size in bytes, when known.
	Size int64 `json:"size,omitempty"`

	// Valid reports whether every document in the file parsed.
	Valid bool `json:"valid"`

	// Error is the parser (or read) error for an invalid file.
	Error string `json:"error,omitempty"`
}

// ErrorRecord describes a failure that stops the run.
type ErrorRecord struct {
	// Code is a machine-readable error code (see ErrCode* constants).
	Code string `json:"code"`

	// Message is the human-readable message, without the "ERROR: " prefix.
	Message string `json:"message"`

	// Key is the affected path, when applicable.
	Key string `json:"key,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeNotFound indicates the root does not exist.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeThrottled indicates rate limiting by the provider.
	ErrCodeThrottled = "THROTTLED"

	// ErrCodeTimeout indicates the configured run timeout expired.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeInternal indicates any other failure.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is emitted once when a scan completes.
type SummaryRecord struct {
	Root         string        `json:"root"`
	FilesListed  int64         `json:"files_listed"`
	FilesMatched int64         `json:"files_matched"`
	FilesValid   int64         `json:"files_valid"`
	FilesFailed  int64         `json:"files_failed"`
	Duration     time.Duration `json:"-"`
	DurationMs   int64         `json:"duration_ms"`
}

// Errors
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")

	// ErrUnknownFormat is returned by New for an unsupported format name.
	ErrUnknownFormat = errors.New("unknown output format")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
