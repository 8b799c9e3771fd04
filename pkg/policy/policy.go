// Package policy loads backup-policy documents and checks that they define
// snapshot schedules and some form of off-site protection.
//
// A policy is a YAML mapping. Only three top-level keys are recognized:
//
//	snapshots:        # required, non-empty sequence
//	  - daily
//	replication:      # optional sequence
//	  - us-east
//	offsite-backup:   # optional sequence
//	  - glacier
//
// Entries inside the sequences are opaque. Unknown keys are kept in
// Document.Raw and ignored by Check.
package policy

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/3leaps/specguard/pkg/yamldoc"
)

// Recognized top-level keys.
const (
	KeySnapshots     = "snapshots"
	KeyReplication   = "replication"
	KeyOffsiteBackup = "offsite-backup"
)

// Document is a parsed backup policy.
//
// Raw is nil when the YAML stream was empty or held a null document.
type Document struct {
	// Path is the source path or URI, for messages.
	Path string

	// Raw holds every top-level key with JSON-compatible values.
	Raw map[string]any
}

// Snapshots returns the snapshot schedules, or nil if the key is absent or
// not a sequence.
func (d *Document) Snapshots() []any { return d.sequence(KeySnapshots) }

// Replication returns the replication targets, or nil.
func (d *Document) Replication() []any { return d.sequence(KeyReplication) }

// OffsiteBackup returns the off-site backup targets, or nil.
func (d *Document) OffsiteBackup() []any { return d.sequence(KeyOffsiteBackup) }

func (d *Document) sequence(key string) []any {
	if d == nil || d.Raw == nil {
		return nil
	}
	seq, _ := d.Raw[key].([]any)
	return seq
}

// Load reads a policy from the given file path.
//
// Returns an error wrapping ErrNotFound if the file does not exist, a
// *ParseError if the content is not valid YAML, and a ValidationError if
// the document is not a mapping.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("permission denied reading policy: %s", path)
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return LoadFromBytes(data, path)
}

// LoadFromReader reads a policy from r. The path is used for messages.
func LoadFromReader(r io.Reader, path string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses a policy from raw bytes.
//
// The stream must hold at most one YAML document. A repeated key keeps its
// last value. An empty stream yields a Document with a nil Raw map, which
// Check rejects.
func LoadFromBytes(data []byte, path string) (*Document, error) {
	value, err := decodeSingle(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	doc := &Document{Path: path}
	if value == nil {
		return doc, nil
	}

	raw, ok := value.(map[string]any)
	if !ok {
		return nil, ValidationError{Message: MsgNotMapping}
	}
	doc.Raw = raw
	return doc, nil
}

// decodeSingle decodes the only document in data into JSON-compatible values.
func decodeSingle(data []byte) (any, error) {
	return yamldoc.DecodeBytes(data)
}
