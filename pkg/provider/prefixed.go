package provider

import (
	"context"
	"io"
	"strings"
)

// WithPrefix returns a Source rooted at prefix within src.
//
// Keys passed in and returned are relative to prefix, so a bucket
// sub-tree such as "specs/" behaves like a local directory root. An empty
// prefix returns src unchanged.
func WithPrefix(src Source, prefix string) Source {
	if prefix == "" {
		return src
	}
	return &prefixedSource{src: src, prefix: prefix}
}

type prefixedSource struct {
	src    Source
	prefix string
}

func (p *prefixedSource) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	opts.Prefix = p.prefix + opts.Prefix

	res, err := p.src.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	out := &ListResult{
		ContinuationToken: res.ContinuationToken,
		IsTruncated:       res.IsTruncated,
		Objects:           make([]ObjectSummary, 0, len(res.Objects)),
	}
	for _, obj := range res.Objects {
		rel, ok := strings.CutPrefix(obj.Key, p.prefix)
		if !ok || rel == "" {
			continue
		}
		obj.Key = rel
		out.Objects = append(out.Objects, obj)
	}
	return out, nil
}

func (p *prefixedSource) Head(ctx context.Context, key string) (*ObjectMeta, error) {
	meta, err := p.src.Head(ctx, p.prefix+key)
	if err != nil {
		return nil, err
	}
	meta.Key = key
	return meta, nil
}

func (p *prefixedSource) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return p.src.GetObject(ctx, p.prefix+key)
}

func (p *prefixedSource) Close() error {
	return p.src.Close()
}
