package store

import (
	"context"
)

// Layer wraps an Accessor into another Accessor adding cross-cutting
// behavior. A Layer holds no reference to the accessor it wrapped last time:
// the same Layer value can wrap any number of backends.
type Layer interface {
	Layer(inner Accessor) Accessor
}

// LayerFunc adapts a function to the Layer interface.
type LayerFunc func(inner Accessor) Accessor

// Layer implements Layer.
func (f LayerFunc) Layer(inner Accessor) Accessor {
	return f(inner)
}

// Apply wraps acc with layers so that the first layer is the outermost one:
// Apply(acc, A, B, C) calls A, then B, then C, then acc on the way in, and
// sees the results in the reverse order on the way out.
func Apply(acc Accessor, layers ...Layer) Accessor {
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] == nil {
			continue
		}
		acc = layers[i].Layer(acc)
	}
	return acc
}

// LayeredAccessor forwards every call to Inner. Layers embed it and override
// only the operations they intercept.
type LayeredAccessor struct {
	Inner Accessor
}

// NewLayeredAccessor wraps inner.
func NewLayeredAccessor(inner Accessor) LayeredAccessor {
	return LayeredAccessor{Inner: inner}
}

func (l LayeredAccessor) Info() *Info {
	return l.Inner.Info()
}

func (l LayeredAccessor) CreateDir(ctx context.Context, path string, args OpCreateDir) (RpCreateDir, error) {
	return l.Inner.CreateDir(ctx, path, args)
}

func (l LayeredAccessor) Stat(ctx context.Context, path string, args OpStat) (RpStat, error) {
	return l.Inner.Stat(ctx, path, args)
}

func (l LayeredAccessor) Read(ctx context.Context, path string, args OpRead) (RpRead, Reader, error) {
	return l.Inner.Read(ctx, path, args)
}

func (l LayeredAccessor) Write(ctx context.Context, path string, args OpWrite) (RpWrite, Writer, error) {
	return l.Inner.Write(ctx, path, args)
}

func (l LayeredAccessor) Delete(ctx context.Context) (RpDelete, Deleter, error) {
	return l.Inner.Delete(ctx)
}

func (l LayeredAccessor) List(ctx context.Context, path string, args OpList) (RpList, Lister, error) {
	return l.Inner.List(ctx, path, args)
}

func (l LayeredAccessor) Copy(ctx context.Context, from, to string, args OpCopy) (RpCopy, error) {
	return l.Inner.Copy(ctx, from, to, args)
}

func (l LayeredAccessor) Rename(ctx context.Context, from, to string, args OpRename) (RpRename, error) {
	return l.Inner.Rename(ctx, from, to, args)
}
