// Command libdittostore builds the C shared library used by language
// bindings:
//
//	go build -buildmode=c-shared -o libdittostore.so ./cmd/libdittostore
//
// Operators and pending reads are opaque uint64 handles; 0 signals failure.
// Reads return a buffer and store its length in the out parameter; the
// buffer is NUL-terminated past that length and must be released with
// dittostore_string_free.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"net/url"
	"unsafe"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/ffi"
)

func main() {}

// parseOptions decodes "key=value&key=value" query-string options.
func parseOptions(raw string) (map[string]string, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	opts := make(map[string]string, len(values))
	for k, v := range values {
		opts[k] = v[len(v)-1]
	}
	return opts, nil
}

//export dittostore_operator_construct
func dittostore_operator_construct(scheme *C.char, options *C.char) C.uint64_t {
	if scheme == nil {
		return 0
	}
	var raw string
	if options != nil {
		raw = C.GoString(options)
	}
	opts, err := parseOptions(raw)
	if err != nil {
		logger.Error("dittostore_operator_construct: invalid options: %v", err)
		return 0
	}

	h, err := ffi.Construct(C.GoString(scheme), opts)
	if err != nil {
		logger.Error("dittostore_operator_construct: %v", err)
		return 0
	}
	return C.uint64_t(h)
}

//export dittostore_operator_destroy
func dittostore_operator_destroy(op C.uint64_t) {
	if err := ffi.Destroy(ffi.Handle(op)); err != nil {
		logger.Error("dittostore_operator_destroy: %v", err)
	}
}

//export dittostore_operator_write
func dittostore_operator_write(op C.uint64_t, path *C.char, content *C.char, length C.size_t) C.int {
	if path == nil || (content == nil && length > 0) {
		return -1
	}
	var data []byte
	if length > 0 {
		data = C.GoBytes(unsafe.Pointer(content), C.int(length))
	}
	if err := ffi.Write(ffi.Handle(op), C.GoString(path), data); err != nil {
		logger.Error("dittostore_operator_write: %v", err)
		return -1
	}
	return 0
}

// buffer copies data to C memory and reports its length.
func buffer(data []byte, length *C.size_t) *C.char {
	if length != nil {
		*length = C.size_t(len(data))
	}
	return (*C.char)(C.CBytes(ffi.Buffer(data)))
}

//export dittostore_operator_read
func dittostore_operator_read(op C.uint64_t, path *C.char, length *C.size_t) *C.char {
	if path == nil {
		return nil
	}
	data, err := ffi.Read(ffi.Handle(op), C.GoString(path))
	if err != nil {
		logger.Error("dittostore_operator_read: %v", err)
		return nil
	}
	return buffer(data, length)
}

//export dittostore_operator_read_start
func dittostore_operator_read_start(op C.uint64_t, path *C.char) C.uint64_t {
	if path == nil {
		return 0
	}
	rh, err := ffi.ReadStart(ffi.Handle(op), C.GoString(path))
	if err != nil {
		logger.Error("dittostore_operator_read_start: %v", err)
		return 0
	}
	return C.uint64_t(rh)
}

//export dittostore_operator_read_await
func dittostore_operator_read_await(handle C.uint64_t, length *C.size_t) *C.char {
	data, err := ffi.ReadAwait(ffi.Handle(handle))
	if err != nil {
		logger.Error("dittostore_operator_read_await: %v", err)
		return nil
	}
	return buffer(data, length)
}

//export dittostore_string_free
func dittostore_string_free(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

//export dittostore_ping
func dittostore_ping() C.int32_t {
	return C.int32_t(ffi.Ping())
}
