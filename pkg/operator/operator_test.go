package operator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/marmos91/dittostore/pkg/services/memory"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLayer counts every call reaching the accessor below it.
type countingLayer struct {
	calls *atomic.Int64
}

func (l countingLayer) Layer(inner store.Accessor) store.Accessor {
	return &countingAccessor{LayeredAccessor: store.NewLayeredAccessor(inner), calls: l.calls}
}

type countingAccessor struct {
	store.LayeredAccessor
	calls *atomic.Int64
}

func (a *countingAccessor) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	a.calls.Add(1)
	return a.Inner.Stat(ctx, path, args)
}

func (a *countingAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	a.calls.Add(1)
	return a.Inner.Read(ctx, path, args)
}

func (a *countingAccessor) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	a.calls.Add(1)
	return a.Inner.Write(ctx, path, args)
}

func (a *countingAccessor) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	a.calls.Add(1)
	return a.Inner.List(ctx, path, args)
}

// ignoreRangeLayer serves the whole object whatever range was asked for.
type ignoreRangeLayer struct {
	knownSize bool
}

func (l ignoreRangeLayer) Layer(inner store.Accessor) store.Accessor {
	return &ignoreRangeAccessor{LayeredAccessor: store.NewLayeredAccessor(inner), knownSize: l.knownSize}
}

type ignoreRangeAccessor struct {
	store.LayeredAccessor
	knownSize bool
}

func (a *ignoreRangeAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	args.Range = store.FullRange()
	rp, r, err := a.Inner.Read(ctx, path, args)
	if err != nil || a.knownSize {
		return rp, r, err
	}
	return store.RpRead{Size: -1}, r, nil
}

func newMemory(t *testing.T, cfg memory.Config) *memory.Backend {
	t.Helper()
	b, err := memory.New(context.Background(), cfg)
	require.NoError(t, err)
	return b
}

func TestWriteStatRead(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{Root: "/data"}))

	payload := []byte("hello world")
	meta, err := op.Write(ctx, "dir/file.txt", payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), meta.ContentLength)

	stat, err := op.Stat(ctx, "/dir//file.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), stat.ContentLength)
	assert.True(t, stat.IsFile())

	data, err := op.Read(ctx, "dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	data, err = op.ReadWith(ctx, "dir/file.txt", store.OpRead{Range: store.NewRange(6, 100)})
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), data)

	// ".." never escapes the root.
	data, err = op.Read(ctx, "../../dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	ok, err := op.Exists(ctx, "dir/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadTruncatesToRange(t *testing.T) {
	ctx := context.Background()
	backend := newMemory(t, memory.Config{})
	_, err := New(backend).Write(ctx, "f", []byte("0123456789"))
	require.NoError(t, err)

	for _, knownSize := range []bool{true, false} {
		op := New(backend, ignoreRangeLayer{knownSize: knownSize})

		data, err := op.ReadWith(ctx, "f", store.OpRead{Range: store.NewRange(2, 3)})
		require.NoError(t, err)
		assert.Len(t, data, 3, "knownSize=%v", knownSize)

		data, err = op.ReadWith(ctx, "f", store.OpRead{Range: store.RangeFrom(2)})
		require.NoError(t, err)
		assert.Len(t, data, 10, "unbounded ranges are not capped")
	}
}

func TestReadEmptyRange(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{}))
	meta, err := op.Write(ctx, "f", []byte("0123456789"))
	require.NoError(t, err)

	data, err := op.ReadWith(ctx, "f", store.OpRead{Range: store.NewRange(5, 0)})
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = op.ReadWith(ctx, "f", store.OpRead{Range: store.NewRange(10, 0)})
	require.NoError(t, err)
	assert.Empty(t, data)

	// Offset 0 with size 0 is the zero value: the whole object.
	data, err = op.ReadWith(ctx, "f", store.OpRead{Range: store.NewRange(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = op.ReadWith(ctx, "f", store.OpRead{Range: store.NewRange(11, 0)})
	assert.ErrorIs(t, err, store.ErrRangeNotSatisfied)

	_, err = op.ReadWith(ctx, "missing", store.OpRead{Range: store.NewRange(5, 0)})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = op.ReadWith(ctx, "f", store.OpRead{Range: store.NewRange(5, 0), IfNoneMatch: meta.ETag})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)
}

func TestAppendWithConditions(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{}))

	meta, err := op.Write(ctx, "f", []byte("abc"))
	require.NoError(t, err)

	_, err = op.WriteWith(ctx, "f", []byte("def"), store.OpWrite{Append: true, IfMatch: `"not-the-etag"`})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.WriteWith(ctx, "f", []byte("def"), store.OpWrite{Append: true, IfNotExists: true})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.WriteWith(ctx, "f", []byte("def"), store.OpWrite{Append: true, IfNoneMatch: meta.ETag})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	data, err := op.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	// The condition holds for the object as the writer opened it; later
	// chunks of the same writer are not rejected by the ETag they produce.
	w, err := op.Writer(ctx, "f", store.OpWrite{Append: true, IfMatch: meta.ETag})
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, []byte("def")))
	require.NoError(t, w.Write(ctx, []byte("ghi")))
	_, err = w.Close(ctx)
	require.NoError(t, err)

	_, err = op.WriteWith(ctx, "new", []byte("x"), store.OpWrite{Append: true, IfNotExists: true})
	require.NoError(t, err)

	data, err = op.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "abcdefghi", string(data))
}

func TestRootIsolation(t *testing.T) {
	ctx := context.Background()
	backend := newMemory(t, memory.Config{Root: "/tenant"})
	op := New(backend)

	_, err := op.Write(ctx, "a", []byte("x"))
	require.NoError(t, err)

	// The backend sees the rooted path.
	_, err = backend.Stat(ctx, "tenant/a", store.OpStat{})
	require.NoError(t, err)

	entries, err := op.List(ctx, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Path)
}

func TestErrorsCarryContext(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{Root: "/r"}))

	_, err := op.Read(ctx, "missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)

	var e *store.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "read", e.Operation)
	assert.Equal(t, "missing.txt", e.Path)
	assert.Equal(t, "memory", e.Context["service"])
	assert.Equal(t, "r/missing.txt", e.Context["backend_path"])
}

func TestUndeclaredVariantRejectedBeforeDispatch(t *testing.T) {
	ctx := context.Background()
	backend := newMemory(t, memory.Config{})
	backend.Info().SetNativeCapability(store.Capability{
		Stat:  true,
		Read:  true,
		Write: true,
		List:  true,
	})

	var calls atomic.Int64
	op := New(backend, countingLayer{calls: &calls})

	cases := map[string]func() error{
		"stat if_match": func() error {
			_, err := op.StatWith(ctx, "f", store.OpStat{IfMatch: `"x"`})
			return err
		},
		"stat version": func() error {
			_, err := op.StatWith(ctx, "f", store.OpStat{Version: "1"})
			return err
		},
		"read if_none_match": func() error {
			_, err := op.ReadWith(ctx, "f", store.OpRead{IfNoneMatch: "*"})
			return err
		},
		"write if_not_exists": func() error {
			_, err := op.WriteWith(ctx, "f", []byte("x"), store.OpWrite{IfNotExists: true})
			return err
		},
		"write append": func() error {
			_, err := op.WriteWith(ctx, "f", []byte("x"), store.OpWrite{Append: true})
			return err
		},
		"write multipart": func() error {
			_, err := op.WriteWith(ctx, "f", []byte("x"), store.OpWrite{Concurrent: 4})
			return err
		},
		"list recursive": func() error {
			_, err := op.ListWith(ctx, "/", store.OpList{Recursive: true})
			return err
		},
		"delete": func() error {
			return op.Delete(ctx, "f")
		},
		"copy": func() error {
			return op.Copy(ctx, "a", "b")
		},
		"create_dir": func() error {
			return op.CreateDir(ctx, "d/")
		},
	}

	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrUnsupported)
			assert.ErrorIs(t, err, store.ErrCapabilityMissing)
		})
	}
	assert.Zero(t, calls.Load())
}

func TestWriteEmptyRequiresCapability(t *testing.T) {
	ctx := context.Background()
	backend := newMemory(t, memory.Config{})
	c := backend.Info().NativeCapability()
	c.WriteCanEmpty = false
	backend.Info().SetNativeCapability(c)

	_, err := New(backend).Write(ctx, "empty", nil)
	assert.ErrorIs(t, err, store.ErrCapabilityMissing)

	ok, err := New(backend).Exists(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteTotalMaxSize(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{WriteTotalMaxSize: 8}))

	w, err := op.Writer(ctx, "f", store.OpWrite{})
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, []byte("12345")))
	err = w.Write(ctx, []byte("6789"))
	assert.ErrorIs(t, err, store.ErrUnsupported)
	require.NoError(t, w.Abort(ctx))
}

func TestPathKindChecks(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{}))

	_, err := op.Write(ctx, "dir/", []byte("x"))
	assert.ErrorIs(t, err, store.ErrIsADirectory)

	_, err = op.Read(ctx, "dir/")
	assert.ErrorIs(t, err, store.ErrIsADirectory)

	_, err = op.List(ctx, "file")
	assert.ErrorIs(t, err, store.ErrNotADirectory)

	assert.ErrorIs(t, op.CreateDir(ctx, "file"), store.ErrNotADirectory)
	assert.ErrorIs(t, op.Copy(ctx, "a", "a"), store.ErrIsSameFile)
	assert.ErrorIs(t, op.Rename(ctx, "/a", "a"), store.ErrIsSameFile)
}

func TestAppendThroughOperator(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{}))

	_, err := op.Write(ctx, "log", []byte("one,"))
	require.NoError(t, err)

	w, err := op.Writer(ctx, "log", store.OpWrite{Append: true})
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, []byte("two,")))

	// A concurrent writer moves the end of the object.
	_, err = op.WriteWith(ctx, "log", []byte("three,"), store.OpWrite{Append: true})
	require.NoError(t, err)

	err = w.Write(ctx, []byte("four"))
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	data, err := op.Read(ctx, "log")
	require.NoError(t, err)
	assert.Equal(t, "one,two,three,", string(data))
}

func TestMultipartThroughOperator(t *testing.T) {
	ctx := context.Background()
	backend := newMemory(t, memory.Config{})
	op := New(backend)

	const partSize = 4096
	payload := make([]byte, 10*partSize)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	w, err := op.Writer(ctx, "big.bin", store.OpWrite{Chunk: partSize, Concurrent: 4})
	require.NoError(t, err)
	for off := 0; off < len(payload); off += 3000 {
		require.NoError(t, w.Write(ctx, payload[off:min(off+3000, len(payload))]))
	}
	meta, err := w.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), meta.ContentLength)

	data, err := op.Read(ctx, "big.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, data))
	assert.Zero(t, backend.PendingUploads())
}

func TestDeleteSemantics(t *testing.T) {
	ctx := context.Background()

	for _, strict := range []bool{false, true} {
		op := New(newMemory(t, memory.Config{DeleteStrict: strict}))
		_, err := op.Write(ctx, "f", []byte("x"))
		require.NoError(t, err)

		require.NoError(t, op.Delete(ctx, "f"))
		err = op.Delete(ctx, "f")
		if strict {
			assert.ErrorIs(t, err, store.ErrNotFound)
		} else {
			assert.NoError(t, err)
		}
		assert.Equal(t, strict, op.Info().FullCapability().DeleteStrict)
	}
}

func TestDeleteVersion(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{}))

	first, err := op.Write(ctx, "f", []byte("v1"))
	require.NoError(t, err)
	_, err = op.Write(ctx, "f", []byte("v2"))
	require.NoError(t, err)

	data, err := op.ReadWith(ctx, "f", store.OpRead{Version: first.Version})
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, op.DeleteWith(ctx, "f", store.OpDelete{Version: first.Version}))
	_, err = op.StatWith(ctx, "f", store.OpStat{Version: first.Version})
	assert.ErrorIs(t, err, store.ErrNotFound)

	data, err = op.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestConditionalReadAndWrite(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{}))

	meta, err := op.Write(ctx, "f", []byte("data"))
	require.NoError(t, err)

	_, err = op.ReadWith(ctx, "f", store.OpRead{IfMatch: meta.ETag})
	require.NoError(t, err)
	_, err = op.ReadWith(ctx, "f", store.OpRead{IfNoneMatch: meta.ETag})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.WriteWith(ctx, "f", []byte("again"), store.OpWrite{IfNotExists: true})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.WriteWith(ctx, "f", []byte("swap"), store.OpWrite{IfMatch: `"stale"`})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.WriteWith(ctx, "f", []byte("swap"), store.OpWrite{IfMatch: meta.ETag})
	require.NoError(t, err)
}

func TestListAndRemoveAll(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{}))

	for _, p := range []string{"d/a", "d/b", "d/sub/c", "other"} {
		_, err := op.Write(ctx, p, []byte(p))
		require.NoError(t, err)
	}

	entries, err := op.List(ctx, "d/")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Path)
	}
	assert.Equal(t, []string{"d/a", "d/b", "d/sub/"}, names)

	l, err := op.Lister(ctx, "d/", store.OpList{Recursive: true, Limit: 1})
	require.NoError(t, err)
	all, err := stream.Collect(ctx, l)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = l.Next(ctx)
	assert.True(t, errors.Is(err, io.EOF))

	require.NoError(t, op.RemoveAll(ctx, "d/"))
	entries, err = op.List(ctx, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "other", entries[0].Path)

	// Missing directories list as empty and remove without error.
	entries, err = op.List(ctx, "nowhere/")
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, op.RemoveAll(ctx, "nowhere/"))
}

func TestCopyRenameCreateDir(t *testing.T) {
	ctx := context.Background()
	op := New(newMemory(t, memory.Config{}))

	_, err := op.Write(ctx, "src", []byte("content"))
	require.NoError(t, err)

	require.NoError(t, op.Copy(ctx, "src", "copy"))
	require.NoError(t, op.Rename(ctx, "copy", "dir/moved"))

	data, err := op.Read(ctx, "dir/moved")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	ok, err := op.Exists(ctx, "copy")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, op.CreateDir(ctx, "empty/"))
	meta, err := op.Stat(ctx, "empty/")
	require.NoError(t, err)
	assert.True(t, meta.IsDir())
}
