package operator

import (
	"context"

	"github.com/marmos91/dittostore/pkg/executor"
	"github.com/marmos91/dittostore/pkg/store"
)

// BlockingOperator is the synchronous face of an Operator, for callers that
// do not carry a context (bindings, scripts).
//
// Every call is spawned on the executor and awaited. Calling a
// BlockingOperator from inside a task of the same executor can deadlock:
// the awaiting task occupies the worker the awaited one needs.
type BlockingOperator struct {
	op   *Operator
	exec *executor.Executor
	ctx  context.Context
}

// Blocking returns a blocking operator running on the default executor.
func (o *Operator) Blocking() *BlockingOperator {
	return NewBlocking(o, executor.Default())
}

// NewBlocking returns a blocking operator running on exec.
func NewBlocking(op *Operator, exec *executor.Executor) *BlockingOperator {
	return &BlockingOperator{op: op, exec: exec, ctx: context.Background()}
}

// WithContext returns a copy whose calls run with ctx.
func (b *BlockingOperator) WithContext(ctx context.Context) *BlockingOperator {
	cp := *b
	cp.ctx = ctx
	return &cp
}

// Operator returns the underlying operator.
func (b *BlockingOperator) Operator() *Operator {
	return b.op
}

// Info returns the backend metadata.
func (b *BlockingOperator) Info() *store.Info {
	return b.op.Info()
}

func run[T any](b *BlockingOperator, fn func(ctx context.Context) (T, error)) (T, error) {
	return executor.Run(b.exec, b.ctx, fn)
}

func runErr(b *BlockingOperator, fn func(ctx context.Context) error) error {
	_, err := executor.Run(b.exec, b.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (b *BlockingOperator) Stat(path string) (store.Metadata, error) {
	return b.StatWith(path, store.OpStat{})
}

func (b *BlockingOperator) StatWith(path string, args store.OpStat) (store.Metadata, error) {
	return run(b, func(ctx context.Context) (store.Metadata, error) {
		return b.op.StatWith(ctx, path, args)
	})
}

func (b *BlockingOperator) Exists(path string) (bool, error) {
	return run(b, func(ctx context.Context) (bool, error) {
		return b.op.Exists(ctx, path)
	})
}

func (b *BlockingOperator) Read(path string) ([]byte, error) {
	return b.ReadWith(path, store.OpRead{})
}

func (b *BlockingOperator) ReadWith(path string, args store.OpRead) ([]byte, error) {
	return run(b, func(ctx context.Context) ([]byte, error) {
		return b.op.ReadWith(ctx, path, args)
	})
}

func (b *BlockingOperator) Write(path string, data []byte) (store.Metadata, error) {
	return b.WriteWith(path, data, store.OpWrite{})
}

func (b *BlockingOperator) WriteWith(path string, data []byte, args store.OpWrite) (store.Metadata, error) {
	return run(b, func(ctx context.Context) (store.Metadata, error) {
		return b.op.WriteWith(ctx, path, data, args)
	})
}

func (b *BlockingOperator) Delete(path string) error {
	return b.DeleteWith(path, store.OpDelete{})
}

func (b *BlockingOperator) DeleteWith(path string, args store.OpDelete) error {
	return runErr(b, func(ctx context.Context) error {
		return b.op.DeleteWith(ctx, path, args)
	})
}

func (b *BlockingOperator) RemoveAll(path string) error {
	return runErr(b, func(ctx context.Context) error {
		return b.op.RemoveAll(ctx, path)
	})
}

func (b *BlockingOperator) List(path string) ([]store.Entry, error) {
	return b.ListWith(path, store.OpList{})
}

func (b *BlockingOperator) ListWith(path string, args store.OpList) ([]store.Entry, error) {
	return run(b, func(ctx context.Context) ([]store.Entry, error) {
		return b.op.ListWith(ctx, path, args)
	})
}

func (b *BlockingOperator) Copy(from, to string) error {
	return runErr(b, func(ctx context.Context) error {
		return b.op.Copy(ctx, from, to)
	})
}

func (b *BlockingOperator) Rename(from, to string) error {
	return runErr(b, func(ctx context.Context) error {
		return b.op.Rename(ctx, from, to)
	})
}

func (b *BlockingOperator) CreateDir(path string) error {
	return runErr(b, func(ctx context.Context) error {
		return b.op.CreateDir(ctx, path)
	})
}

// ============================================================================
// Start / Await
// ============================================================================

// ReadStart starts reading path and returns immediately. Await on the task
// yields what Read would have returned.
func (b *BlockingOperator) ReadStart(path string) *executor.Task[[]byte] {
	return executor.Spawn(b.exec, b.ctx, func(ctx context.Context) ([]byte, error) {
		return b.op.Read(ctx, path)
	})
}

// WriteStart starts writing data to path and returns immediately.
func (b *BlockingOperator) WriteStart(path string, data []byte) *executor.Task[store.Metadata] {
	return executor.Spawn(b.exec, b.ctx, func(ctx context.Context) (store.Metadata, error) {
		return b.op.Write(ctx, path, data)
	})
}

// StatStart starts a stat of path and returns immediately.
func (b *BlockingOperator) StatStart(path string) *executor.Task[store.Metadata] {
	return executor.Spawn(b.exec, b.ctx, func(ctx context.Context) (store.Metadata, error) {
		return b.op.Stat(ctx, path)
	})
}
