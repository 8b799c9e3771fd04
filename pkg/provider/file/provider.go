// Package file implements the provider interface for local directory trees.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/3leaps/specguard/pkg/provider"
)

// defaultPageSize matches the S3 page size so both sources page alike.
const defaultPageSize = 1000

// errInvalidKey is returned for keys that would escape the base directory.
var errInvalidKey = errors.New("invalid key path")

// Provider serves a local directory through the provider interfaces.
//
// Keys are slash-separated paths relative to BaseDir. Listings are sorted,
// which makes single-worker scans deterministic. The first page of a
// listing walks the tree once; continuation pages are served from that
// walk.
type Provider struct {
	baseDir string
	fsys    fs.FS

	mu       sync.Mutex
	listings map[string][]provider.ObjectSummary
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ObjectGetter = (*Provider)(nil)
)

// Config configures a local file provider.
type Config struct {
	// BaseDir is the root directory. It must exist and be a directory.
	BaseDir string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return errors.New("base dir is required")
	}
	return nil
}

// New creates a provider rooted at cfg.BaseDir.
//
// Returns a *provider.ProviderError wrapping provider.ErrNotFound when the
// directory does not exist, or provider.ErrNotDirectory when it is a file.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)

	st, err := os.Stat(base)
	if err != nil {
		return nil, wrapError("New", base, "", err)
	}
	if !st.IsDir() {
		return nil, wrapError("New", base, "", provider.ErrNotDirectory)
	}
	return &Provider{
		baseDir:  base,
		fsys:     os.DirFS(base),
		listings: make(map[string][]provider.ObjectSummary),
	}, nil
}

// BaseDir returns the cleaned root directory.
func (p *Provider) BaseDir() string { return p.baseDir }

// Close is a no-op for local files.
func (p *Provider) Close() error { return nil }

// List returns a page of files whose keys start with opts.Prefix. The
// continuation token is the last key of the previous page.
//
// Entries that cannot be stat'ed, such as dangling symlinks, are listed
// with zero size so that GetObject reports the failure.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	pageSize := opts.MaxKeys
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	prefix := strings.TrimPrefix(opts.Prefix, "/")
	objs, err := p.listing(ctx, prefix, opts.ContinuationToken)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	start := 0
	if tok := opts.ContinuationToken; tok != "" {
		i, found := slices.BinarySearchFunc(objs, tok, func(o provider.ObjectSummary, key string) int {
			return strings.Compare(o.Key, key)
		})
		if found {
			i++
		}
		start = i
	}
	end := min(start+pageSize, len(objs))

	res := &provider.ListResult{Objects: slices.Clone(objs[start:end])}
	if end < len(objs) {
		res.IsTruncated = true
		res.ContinuationToken = objs[end-1].Key
	} else {
		p.mu.Lock()
		delete(p.listings, prefix)
		p.mu.Unlock()
	}
	return res, nil
}

// listing returns the walk for prefix. A first page (empty token) always
// walks again.
func (p *Provider) listing(ctx context.Context, prefix, token string) ([]provider.ObjectSummary, error) {
	if token != "" {
		p.mu.Lock()
		objs, ok := p.listings[prefix]
		p.mu.Unlock()
		if ok {
			return objs, nil
		}
	}

	objs, err := p.walk(ctx, prefix)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.listings[prefix] = objs
	p.mu.Unlock()
	return objs, nil
}

// Head returns metadata for a single file.
func (p *Provider) Head(_ context.Context, key string) (*provider.ObjectMeta, error) {
	name, err := toName(key)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	st, err := fs.Stat(p.fsys, name)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	if st.IsDir() {
		return nil, p.wrapError("Head", key, provider.ErrNotFound)
	}

	meta := &provider.ObjectMeta{}
	meta.Key = name
	meta.Size = st.Size()
	meta.LastModified = st.ModTime()
	return meta, nil
}

// GetObject opens a file for reading.
func (p *Provider) GetObject(_ context.Context, key string) (io.ReadCloser, int64, error) {
	name, err := toName(key)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	f, err := p.fsys.Open(name)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, fmt.Errorf("%s is a directory", key))
	}
	return f, st.Size(), nil
}

// toName converts a key to an io/fs name, rejecting keys that leave the
// root.
func toName(key string) (string, error) {
	name := path.Clean("/" + strings.TrimSpace(key))[1:]
	if name == "" {
		name = "."
	}
	if !fs.ValidPath(name) {
		return "", errInvalidKey
	}
	return name, nil
}

// walk returns the sorted non-directory entries whose keys start with
// prefix. The prefix may end mid-name ("specs/api" matches
// "specs/api.yaml" and "specs/api-v2/x.yaml"). Unreadable subdirectories
// are skipped.
func (p *Provider) walk(ctx context.Context, prefix string) ([]provider.ObjectSummary, error) {
	dir := "."
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}
	dir, err := toName(dir)
	if err != nil {
		return nil, err
	}

	var objs []provider.ObjectSummary
	err = fs.WalkDir(p.fsys, dir, func(name string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			switch {
			case name == dir && errors.Is(err, fs.ErrNotExist):
				return fs.SkipAll
			case name == dir:
				return err
			case d != nil && d.IsDir():
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if name != dir && !strings.HasPrefix(name+"/", prefix) && !strings.HasPrefix(prefix, name+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(name, prefix) {
			return nil
		}

		obj := provider.ObjectSummary{Key: name}
		info, err := p.entryInfo(name, d)
		switch {
		case err != nil:
			// Listed anyway; reading it will fail.
		case info.IsDir():
			return nil
		default:
			obj.Size = info.Size()
			obj.LastModified = info.ModTime()
		}
		objs = append(objs, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(objs, func(a, b provider.ObjectSummary) int {
		return strings.Compare(a.Key, b.Key)
	})
	return objs, nil
}

// entryInfo follows symlinks; other entries use the walk's own info.
func (p *Provider) entryInfo(name string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		return fs.Stat(p.fsys, name)
	}
	return d.Info()
}

func (p *Provider) wrapError(op, key string, err error) error {
	return wrapError(op, p.baseDir, key, err)
}

// wrapError maps filesystem errors to provider sentinels.
func wrapError(op, base, key string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		err = fmt.Errorf("%w: %w", provider.ErrAccessDenied, err)
	}
	return &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: base, Key: key, Err: err}
}
