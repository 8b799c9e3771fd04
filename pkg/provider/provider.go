// Package provider is the read-only storage layer behind both tools.
//
// A policy file or a spec tree is addressed by key under a root: a local
// directory (package file) or a bucket (package s3). The scanner and the
// policy loader only see this package, so local and remote runs share one
// code path. Credentials are resolved by each backend's SDK.
package provider

import (
	"context"
	"time"
)

// Provider lists and describes the documents under a root.
//
// Keys are '/'-separated and relative to the root. Listings page through
// ContinuationToken. Implementations are used from several scan workers at
// once and must be safe for concurrent use.
type Provider interface {
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Head fails with ErrNotFound for a missing key.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	Close() error
}

// ListOptions selects one page of a listing.
type ListOptions struct {
	// Prefix restricts keys; it may end mid-name.
	Prefix string

	// ContinuationToken is taken from the previous page; empty starts over.
	ContinuationToken string

	// MaxKeys caps the page; zero leaves the choice to the backend.
	MaxKeys int
}

// ListResult is one page of a listing. IsTruncated is set, together with a
// non-empty ContinuationToken, while more pages remain.
type ListResult struct {
	Objects           []ObjectSummary
	ContinuationToken string
	IsTruncated       bool
}

// ObjectSummary describes a listed document. ETag is empty for local files.
type ObjectSummary struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectMeta is what Head knows about a document.
type ObjectMeta struct {
	ObjectSummary
	ContentType string
}

// ProviderType names a backend in records and errors.
type ProviderType string

// Known backends.
const (
	ProviderFile ProviderType = "file"
	ProviderS3   ProviderType = "s3"
)

func (p ProviderType) String() string {
	return string(p)
}
