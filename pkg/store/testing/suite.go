// Package testing provides a conformance suite for storage services.
//
// The suite drives a service through an operator and checks the behavior
// every service must share regardless of how it stores data. Cases that
// need a capability the service does not declare are skipped.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/stretchr/testify/require"
)

// OperatorTestSuite is a conformance test suite for store.Accessor
// implementations.
//
// Usage:
//
//	func TestMyService(t *testing.T) {
//	    suite := &storetesting.OperatorTestSuite{
//	        New: func(t *testing.T) store.Accessor {
//	            b, err := myservice.New(context.Background(), myservice.Config{})
//	            require.NoError(t, err)
//	            return b
//	        },
//	    }
//	    suite.Run(t)
//	}
type OperatorTestSuite struct {
	// New creates a fresh, empty service for each test.
	New func(t *testing.T) store.Accessor

	// Seed stores a file directly into the service most recently returned
	// by New. Read-only services must set it; writable services may leave
	// it nil and the suite writes through the operator.
	Seed func(t *testing.T, path string, data []byte)
}

// Run executes all tests in the suite.
func (suite *OperatorTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("ListOperations", suite.RunListTests)
	t.Run("TransferOperations", suite.RunTransferTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

func (suite *OperatorTestSuite) newOperator(t *testing.T) *operator.Operator {
	t.Helper()
	return operator.New(suite.New(t))
}

// seed stores path with data, directly when Seed is set.
func (suite *OperatorTestSuite) seed(t *testing.T, op *operator.Operator, path string, data []byte) {
	t.Helper()
	if suite.Seed != nil {
		suite.Seed(t, path, data)
		return
	}
	_, err := op.Write(testContext(), path, data)
	require.NoError(t, err)
}

func capability(op *operator.Operator) store.Capability {
	return op.Info().FullCapability()
}

func requireWrite(t *testing.T, op *operator.Operator) {
	t.Helper()
	if !capability(op).Write {
		t.Skip("service does not support write")
	}
}

func requireList(t *testing.T, op *operator.Operator) {
	t.Helper()
	if !capability(op).List {
		t.Skip("service does not support list")
	}
}

func entryPaths(entries []store.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}
