// Package match selects documents to validate by doublestar glob patterns
// evaluated against slash-separated keys relative to the scan root.
package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude matches .yml and .yaml files (and any other ".y*ml"
// extension) at every depth of the tree. Matching is case-sensitive.
const DefaultInclude = "**/*.y*ml"

// Matcher evaluates patterns against relative document keys.
//
// A key matches when it matches at least one include pattern and no
// exclude pattern. Hidden keys (any segment starting with '.') are
// skipped unless IncludeHidden is set.
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes      []pattern
	excludes      []pattern
	prefixes      []string
	includeHidden bool
}

// pattern holds a validated, normalized pattern.
type pattern struct {
	raw string
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns that keys must match (at least one).
	// Empty means DefaultInclude.
	Includes []string

	// Excludes are glob patterns that keys must not match (any).
	Excludes []string

	// IncludeHidden controls whether hidden files and directories are matched.
	IncludeHidden bool
}

// Errors returned by Matcher operations.
var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Matcher from the given configuration.
//
// Patterns are normalized so Windows-style separators work, while escape
// sequences for literal glob metacharacters are preserved.
func New(cfg Config) (*Matcher, error) {
	rawIncludes := cfg.Includes
	if len(rawIncludes) == 0 {
		rawIncludes = []string{DefaultInclude}
	}

	includes, err := compile(rawIncludes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}

	normalizedIncludes := make([]string, len(includes))
	for i, p := range includes {
		normalizedIncludes[i] = p.raw
	}

	return &Matcher{
		includes:      includes,
		excludes:      excludes,
		prefixes:      DerivePrefixes(normalizedIncludes),
		includeHidden: cfg.IncludeHidden,
	}, nil
}

func compile(raws []string) ([]pattern, error) {
	out := make([]pattern, 0, len(raws))
	for _, raw := range raws {
		normalized := NormalizePattern(raw)
		if !doublestar.ValidatePattern(normalized) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		out = append(out, pattern{raw: normalized})
	}
	return out, nil
}

// Match reports whether key should be validated.
func (m *Matcher) Match(key string) bool {
	if !m.includeHidden && IsHidden(key) {
		return false
	}

	matched := false
	for _, inc := range m.includes {
		if matchPattern(inc.raw, key) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, exc := range m.excludes {
		if matchPattern(exc.raw, key) {
			return false
		}
	}

	return true
}

// Prefixes returns the deduplicated listing prefixes derived from the
// include patterns. An empty string means the whole tree is listed.
func (m *Matcher) Prefixes() []string {
	return m.prefixes
}

// IncludePatterns returns the normalized include patterns.
func (m *Matcher) IncludePatterns() []string {
	return raws(m.includes)
}

// ExcludePatterns returns the normalized exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return raws(m.excludes)
}

func raws(ps []pattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.raw
	}
	return out
}

// matchPattern matches a key against a doublestar pattern.
func matchPattern(pattern, key string) bool {
	matched, err := doublestar.Match(pattern, key)
	if err != nil {
		// Patterns are validated in New.
		return false
	}
	return matched
}
