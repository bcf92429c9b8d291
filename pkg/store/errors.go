package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// Error Kinds
// ============================================================================

// ErrorKind classifies every failure produced by a backend, a layer or the
// operator. The set is closed: backends must translate their native errors
// (HTTP status codes, SDK error types, driver errors) into one of these kinds
// at their boundary. Everything above the backend branches on kind only.
//
// ErrorKind implements error, which lets callers match any *Error by kind:
//
//	if errors.Is(err, store.ErrNotFound) {
//	    // object is missing
//	}
type ErrorKind int

const (
	// KindUnexpected is the catch-all for failures that fit nowhere else.
	KindUnexpected ErrorKind = iota

	// KindUnsupported means the backend (or the operator's capability check)
	// does not support the requested operation variant.
	KindUnsupported

	// KindConfigInvalid means the backend configuration is invalid.
	KindConfigInvalid

	// KindNotFound means the path does not exist.
	KindNotFound

	// KindPermissionDenied means the credentials are not allowed to perform
	// the operation.
	KindPermissionDenied

	// KindIsADirectory means a file operation targeted a directory.
	KindIsADirectory

	// KindNotADirectory means a directory operation targeted a file.
	KindNotADirectory

	// KindAlreadyExists means the target already exists.
	KindAlreadyExists

	// KindRateLimited means the service throttled the request.
	// Errors of this kind are always temporary.
	KindRateLimited

	// KindIsSameFile means copy or rename was asked to use the same source
	// and destination.
	KindIsSameFile

	// KindConditionNotMatch means a conditional predicate (if-match,
	// if-none-match, if-modified-since, if-unmodified-since, version, append
	// offset) did not hold against the current state of the resource.
	KindConditionNotMatch

	// KindRangeNotSatisfied means the requested byte range lies outside the
	// object.
	KindRangeNotSatisfied
)

var kindNames = map[ErrorKind]string{
	KindUnexpected:        "Unexpected",
	KindUnsupported:       "Unsupported",
	KindConfigInvalid:     "ConfigInvalid",
	KindNotFound:          "NotFound",
	KindPermissionDenied:  "PermissionDenied",
	KindIsADirectory:      "IsADirectory",
	KindNotADirectory:     "NotADirectory",
	KindAlreadyExists:     "AlreadyExists",
	KindRateLimited:       "RateLimited",
	KindIsSameFile:        "IsSameFile",
	KindConditionNotMatch: "ConditionNotMatch",
	KindRangeNotSatisfied: "RangeNotSatisfied",
}

// String returns the kind name.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error implements error so a kind can be used as an errors.Is target.
func (k ErrorKind) Error() string {
	return k.String()
}

// Sentinels for errors.Is matching. They are the kinds themselves.
var (
	ErrUnexpected        error = KindUnexpected
	ErrUnsupported       error = KindUnsupported
	ErrConfigInvalid     error = KindConfigInvalid
	ErrNotFound          error = KindNotFound
	ErrPermissionDenied  error = KindPermissionDenied
	ErrIsADirectory      error = KindIsADirectory
	ErrNotADirectory     error = KindNotADirectory
	ErrAlreadyExists     error = KindAlreadyExists
	ErrRateLimited       error = KindRateLimited
	ErrIsSameFile        error = KindIsSameFile
	ErrConditionNotMatch error = KindConditionNotMatch
	ErrRangeNotSatisfied error = KindRangeNotSatisfied
)

// ErrCapabilityMissing is wrapped by every Unsupported error raised by the
// operator's capability check, before any backend call was made. It lets
// callers tell a façade rejection apart from a backend-reported Unsupported:
//
//	errors.Is(err, store.ErrUnsupported)       // true for both
//	errors.Is(err, store.ErrCapabilityMissing) // true only for the pre-check
var ErrCapabilityMissing = errors.New("capability not declared by backend")

// ============================================================================
// Error
// ============================================================================

// Error is the single error type returned across the storage stack.
//
// Backends create it with NewError and decorate it with the operation, path
// and free-form context. The operator adds its own operation context on the
// way out so a failure message always names what was attempted and where.
type Error struct {
	// Kind is the classification used for every branching decision.
	Kind ErrorKind

	// Message is a human readable description.
	Message string

	// Operation is the operation that failed (e.g. "stat", "Writer::close").
	Operation string

	// Path is the path the operation targeted, if any.
	Path string

	// Context carries extra key/value diagnostics (service, bucket, part).
	Context map[string]string

	// Source is the underlying native error, if any.
	Source error

	// Temporary marks the error as safe to retry.
	Temporary bool

	// Persistent marks an error that was retried and still failed.
	Persistent bool
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Temporary: kind == KindRateLimited,
	}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// WithOperation records the failing operation. If an operation is already
// recorded it is kept in context as "called" so the chain stays visible.
func (e *Error) WithOperation(op string) *Error {
	if e.Operation != "" && e.Operation != op {
		e.WithContext("called", e.Operation)
	}
	e.Operation = op
	return e
}

// WithPath records the path the operation targeted.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithContext adds one key/value diagnostic.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithSource attaches the native error.
func (e *Error) WithSource(err error) *Error {
	e.Source = err
	return e
}

// SetTemporary marks the error as retryable.
func (e *Error) SetTemporary() *Error {
	e.Temporary = true
	e.Persistent = false
	return e
}

// SetPersistent marks the error as no longer retryable.
func (e *Error) SetPersistent() *Error {
	e.Temporary = false
	e.Persistent = true
	return e
}

// Error formats the error as "Kind (temporary) at op, context: k: v => message, source: ...".
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())

	switch {
	case e.Temporary:
		b.WriteString(" (temporary)")
	case e.Persistent:
		b.WriteString(" (persistent)")
	}

	if e.Operation != "" {
		b.WriteString(" at ")
		b.WriteString(e.Operation)
	}

	if e.Path != "" || len(e.Context) > 0 {
		b.WriteString(", context: { ")
		parts := make([]string, 0, len(e.Context)+1)
		if e.Path != "" {
			parts = append(parts, "path: "+e.Path)
		}
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+": "+e.Context[k])
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(" }")
	}

	if e.Message != "" {
		b.WriteString(" => ")
		b.WriteString(e.Message)
	}

	if e.Source != nil {
		b.WriteString(", source: ")
		b.WriteString(e.Source.Error())
	}

	return b.String()
}

// Unwrap exposes the native source for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Source
}

// Is matches an ErrorKind target against the error's kind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// ============================================================================
// Helpers
// ============================================================================

// KindOf returns the kind of err. Errors that are not *Error (context
// cancellation, raw I/O errors) report KindUnexpected.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return KindUnexpected
}

// IsTemporary reports whether err may succeed if retried.
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary && !e.Persistent
	}
	return false
}

// AsError converts any error into *Error, keeping an existing *Error intact.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(KindUnexpected, "unexpected error").WithSource(err)
}

// Unsupportedf builds the error raised by the operator's capability check.
func Unsupportedf(format string, args ...any) *Error {
	return Errorf(KindUnsupported, format, args...).WithSource(ErrCapabilityMissing)
}
