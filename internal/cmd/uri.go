package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/3leaps/specguard/pkg/match"
	"github.com/3leaps/specguard/pkg/provider"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates the URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// Location is where a policy file or a spec tree lives: a local path or an
// object-store URI.
//
// Example locations:
//   - policies/backup.yaml
//   - ./specs
//   - s3://bucket/policies/backup.yaml
//   - s3://bucket/specs/
type Location struct {
	// Raw is the argument exactly as given.
	Raw string

	// Provider is ProviderFile for local paths.
	Provider provider.ProviderType

	// Path is the local filesystem path (file provider only).
	Path string

	// Bucket is the bucket name (object stores only).
	Bucket string

	// Key is the object key or prefix within the bucket. May be empty for
	// the bucket root.
	Key string
}

// IsRemote reports whether the location is in an object store.
func (l *Location) IsRemote() bool {
	return l.Provider != provider.ProviderFile
}

// String returns the location in canonical form.
func (l *Location) String() string {
	if !l.IsRemote() {
		return l.Path
	}
	if l.Key != "" {
		return fmt.Sprintf("%s://%s/%s", l.Provider, l.Bucket, l.Key)
	}
	return fmt.Sprintf("%s://%s/", l.Provider, l.Bucket)
}

// AsPrefix returns a copy whose Key ends in '/', so the location names a
// directory-like tree. Local locations are returned unchanged.
func (l *Location) AsPrefix() *Location {
	cp := *l
	if cp.IsRemote() && cp.Key != "" && !strings.HasSuffix(cp.Key, "/") {
		cp.Key += "/"
	}
	return &cp
}

// ParseLocation parses a command-line path argument.
//
// Arguments containing "://" are parsed as object-store URIs; anything
// else is a local path, cleaned with filepath.Clean.
func ParseLocation(arg string) (*Location, error) {
	if arg == "" {
		return nil, fmt.Errorf("%w: empty location", ErrInvalidURI)
	}
	if !strings.Contains(arg, "://") {
		return &Location{
			Raw:      arg,
			Provider: provider.ProviderFile,
			Path:     filepath.Clean(arg),
		}, nil
	}
	return ParseURI(arg)
}

// ParseURI parses a cloud storage URI into its components.
//
// Supported formats:
//   - s3://bucket
//   - s3://bucket/
//   - s3://bucket/key.yaml
//   - s3://bucket/prefix/
//
// Glob characters are rejected: use --include and --exclude to select
// files under a prefix.
func ParseURI(uri string) (*Location, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	// Parse manually: url.Parse treats '?' and '#' in keys as delimiters.
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3://...)", ErrInvalidURI)
	}

	scheme := strings.ToLower(uri[:schemeEnd])
	if scheme != string(provider.ProviderS3) {
		return nil, fmt.Errorf("%w: %s (supported: s3)", ErrUnsupportedProvider, scheme)
	}

	remainder := uri[schemeEnd+3:]
	if remainder == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}

	bucket, key, _ := strings.Cut(remainder, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}

	// Basic validation: bucket names can't contain most special characters.
	if _, err := url.Parse("s3://" + bucket + "/"); err != nil {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	if match.IsGlobPattern(key) {
		return nil, fmt.Errorf("%w: glob patterns are not supported in %s (use --include)", ErrInvalidURI, uri)
	}

	// No glob: unescape for the object key (e.g. "what\?.yaml" -> "what?.yaml").
	return &Location{
		Raw:      uri,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      match.DerivePrefix(key),
	}, nil
}
