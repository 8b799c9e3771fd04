package provider

import (
	"context"
	"io"
)

// ObjectGetter can download objects as a stream.
//
// The scanner and the policy checker read document bodies through this
// capability. Callers must close the returned body.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}

// Source is a Provider that can also read object bodies.
//
// Both built-in providers satisfy Source.
type Source interface {
	Provider
	ObjectGetter
}
