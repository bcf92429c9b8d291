package executor

import (
	"errors"
	"sync"
)

// ErrAlreadyInitialized is returned by Init once the default executor exists.
var ErrAlreadyInitialized = errors.New("executor: default executor already initialized")

var (
	defaultMu   sync.Mutex
	defaultOpts Options
	defaultExec *Executor
)

// Init sets the options of the process-wide executor. It must run before the
// first call to Default; afterwards it fails with ErrAlreadyInitialized.
func Init(opts Options) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultExec != nil {
		return ErrAlreadyInitialized
	}
	defaultOpts = opts
	return nil
}

// Default returns the process-wide executor, starting it on first use.
//
// After Shutdown it keeps returning the stopped executor, so every
// submission fails with ErrShutdown until Restart.
func Default() *Executor {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultExec == nil {
		defaultExec = New(defaultOpts)
	}
	return defaultExec
}

// Shutdown stops the process-wide executor, if it was started.
func Shutdown() {
	defaultMu.Lock()
	exec := defaultExec
	defaultMu.Unlock()

	if exec != nil {
		exec.Shutdown()
	}
}

// Restart replaces the process-wide executor with a fresh one and shuts
// the previous one down. Tasks still running on the old executor see the
// new one through Default.
func Restart() *Executor {
	defaultMu.Lock()
	old := defaultExec
	exec := New(defaultOpts)
	defaultExec = exec
	defaultMu.Unlock()

	if old != nil {
		old.Shutdown()
	}
	return exec
}
