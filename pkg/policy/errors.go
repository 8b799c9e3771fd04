package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for policy operations.
var (
	// ErrNotFound indicates the policy file does not exist.
	ErrNotFound = errors.New("backup policy file not found")

	// ErrValidationFailed indicates the policy failed a structural or
	// semantic check.
	ErrValidationFailed = errors.New("backup policy validation failed")

	// ErrSchemaNotFound indicates the embedded schema is missing.
	ErrSchemaNotFound = errors.New("backup policy schema not found")
)

// Validation messages.
const (
	MsgMissingSnapshots = "Missing snapshot policy"
	MsgNoSchedules      = "No snapshot schedules defined"
	MsgNotMapping       = "policy document must be a mapping"
	WarnNoOffsite       = "No off-site backup or replication configured"
)

// ParseError reports YAML that could not be parsed.
type ParseError struct {
	// Path is the file path or URI the data came from (may be empty).
	Path string

	// Err is the underlying parser error.
	Err error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "invalid YAML: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid YAML in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError represents a single validation issue.
type ValidationError struct {
	// Path is the JSON pointer to the problematic field (e.g., "/snapshots").
	// Empty for document-level checks.
	Path string

	// Message describes the validation failure.
	Message string
}

// Error implements error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap returns ErrValidationFailed.
func (e ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "policy failed schema validation with %d errors:\n", len(e))
	for i, err := range e {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error type.
func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}
