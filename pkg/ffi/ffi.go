// Package ffi backs the C exports of libdittostore.
//
// Foreign callers cannot hold Go pointers, so operators and pending reads
// live in a table and cross the boundary as opaque uint64 handles. Every
// call goes through the blocking operator; this package adds no behaviour of
// its own beyond handle bookkeeping.
package ffi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/config"
	"github.com/marmos91/dittostore/pkg/executor"
	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/store"
)

// Handle identifies an operator or a pending read. Zero is never issued.
type Handle uint64

// ErrInvalidHandle is returned for handles never issued, already destroyed
// or already awaited.
var ErrInvalidHandle = errors.New("ffi: invalid handle")

type entry struct {
	backend store.Accessor
	op      *operator.BlockingOperator
}

// Table maps handles to live operators and pending reads.
type Table struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]*entry
	reads   map[Handle]*executor.Task[[]byte]
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[Handle]*entry),
		reads:   make(map[Handle]*executor.Task[[]byte]),
	}
}

func (t *Table) issue() Handle {
	t.next++
	return t.next
}

// Construct builds an operator for scheme from string options.
//
// The "root" option sets the service root; every other key is decoded into
// the service configuration the same way the config file options are, so
// "part_size=10485760" or "in_memory=true" work as expected.
func (t *Table) Construct(scheme string, options map[string]string) (Handle, error) {
	svc := config.ServiceConfig{
		Name:    scheme,
		Type:    scheme,
		Root:    "/",
		Options: make(map[string]any, len(options)),
	}
	for k, v := range options {
		if k == "root" {
			svc.Root = v
			continue
		}
		svc.Options[k] = v
	}

	backend, err := config.CreateService(context.Background(), svc)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.issue()
	t.entries[h] = &entry{backend: backend, op: operator.New(backend).Blocking()}
	logger.Debug("ffi: constructed %s operator %d", scheme, h)
	return h, nil
}

// Destroy releases the operator behind h.
func (t *Table) Destroy(h Handle) error {
	t.mu.Lock()
	e, ok := t.entries[h]
	delete(t.entries, h)
	t.mu.Unlock()

	if !ok {
		return ErrInvalidHandle
	}
	if c, ok := e.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *Table) lookup(h Handle) (*operator.BlockingOperator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	if !ok {
		return nil, fmt.Errorf("%w: operator %d", ErrInvalidHandle, h)
	}
	return e.op, nil
}

// Read returns the whole content of path.
func (t *Table) Read(h Handle, path string) ([]byte, error) {
	op, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	return op.Read(path)
}

// Write replaces the content of path.
func (t *Table) Write(h Handle, path string, data []byte) error {
	op, err := t.lookup(h)
	if err != nil {
		return err
	}
	_, err = op.Write(path, data)
	return err
}

// ReadStart starts reading path in the background and returns the handle
// to pass to ReadAwait.
func (t *Table) ReadStart(h Handle, path string) (Handle, error) {
	op, err := t.lookup(h)
	if err != nil {
		return 0, err
	}
	task := op.ReadStart(path)

	t.mu.Lock()
	defer t.mu.Unlock()
	rh := t.issue()
	t.reads[rh] = task
	return rh, nil
}

// ReadAwait blocks until the read behind rh finishes. The handle is
// consumed: a second call fails with ErrInvalidHandle.
func (t *Table) ReadAwait(rh Handle) ([]byte, error) {
	t.mu.Lock()
	task, ok := t.reads[rh]
	delete(t.reads, rh)
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: read %d", ErrInvalidHandle, rh)
	}
	return task.Await()
}

// Len returns the number of live operators.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

var global = NewTable()

// Construct builds an operator in the process-wide table.
func Construct(scheme string, options map[string]string) (Handle, error) {
	return global.Construct(scheme, options)
}

// Destroy releases an operator of the process-wide table.
func Destroy(h Handle) error { return global.Destroy(h) }

// Read reads path through an operator of the process-wide table.
func Read(h Handle, path string) ([]byte, error) { return global.Read(h, path) }

// Write writes path through an operator of the process-wide table.
func Write(h Handle, path string, data []byte) error { return global.Write(h, path, data) }

// ReadStart starts a background read in the process-wide table.
func ReadStart(h Handle, path string) (Handle, error) { return global.ReadStart(h, path) }

// ReadAwait awaits a background read of the process-wide table.
func ReadAwait(rh Handle) ([]byte, error) { return global.ReadAwait(rh) }

// Buffer returns a copy of data followed by a NUL byte: the layout handed to
// C callers. The length reported alongside excludes the terminator, so
// binary payloads survive while text payloads still read as C strings.
func Buffer(data []byte) []byte {
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	return buf
}

// Ping lets bindings check the library is loaded.
func Ping() int32 { return 1 }
