package testing

import (
	"testing"

	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTransferTests executes delete, copy and rename tests.
func (suite *OperatorTestSuite) RunTransferTests(t *testing.T) {
	t.Run("Delete_File", suite.testDeleteFile)
	t.Run("Delete_Twice", suite.testDeleteTwice)
	t.Run("RemoveAll", suite.testRemoveAll)
	t.Run("Copy", suite.testCopy)
	t.Run("Copy_SameFile", suite.testCopySameFile)
	t.Run("Rename", suite.testRename)
}

func requireDelete(t *testing.T, op *operator.Operator) {
	t.Helper()
	if !capability(op).Delete {
		t.Skip("service does not support delete")
	}
}

func (suite *OperatorTestSuite) testDeleteFile(t *testing.T) {
	op := suite.newOperator(t)
	requireDelete(t, op)
	suite.seed(t, op, "victim", []byte("bye"))

	require.NoError(t, op.Delete(testContext(), "victim"))

	_, err := op.Stat(testContext(), "victim")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *OperatorTestSuite) testDeleteTwice(t *testing.T) {
	op := suite.newOperator(t)
	requireDelete(t, op)
	suite.seed(t, op, "victim", []byte("bye"))

	require.NoError(t, op.Delete(testContext(), "victim"))

	err := op.Delete(testContext(), "victim")
	if capability(op).DeleteStrict {
		assert.ErrorIs(t, err, store.ErrNotFound)
	} else {
		assert.NoError(t, err)
	}
}

func (suite *OperatorTestSuite) testRemoveAll(t *testing.T) {
	op := suite.newOperator(t)
	requireDelete(t, op)
	requireList(t, op)
	for _, p := range []string{"tree/1", "tree/deep/2", "tree/deep/er/3", "keep"} {
		suite.seed(t, op, p, []byte("x"))
	}

	require.NoError(t, op.RemoveAll(testContext(), "tree/"))

	entries, err := op.List(testContext(), "tree/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = op.Stat(testContext(), "tree/deep/er/3")
	assert.ErrorIs(t, err, store.ErrNotFound)

	data, err := op.Read(testContext(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	require.NoError(t, op.RemoveAll(testContext(), "tree/"), "removing a missing tree succeeds")
}

func (suite *OperatorTestSuite) testCopy(t *testing.T) {
	op := suite.newOperator(t)
	if !capability(op).Copy {
		t.Skip("service does not support copy")
	}
	suite.seed(t, op, "src", []byte("payload"))

	require.NoError(t, op.Copy(testContext(), "src", "dst/copy"))

	for _, p := range []string{"src", "dst/copy"} {
		data, err := op.Read(testContext(), p)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	}

	err := op.Copy(testContext(), "missing", "dst/other")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *OperatorTestSuite) testCopySameFile(t *testing.T) {
	op := suite.newOperator(t)
	if !capability(op).Copy {
		t.Skip("service does not support copy")
	}

	err := op.Copy(testContext(), "same", "same")
	assert.ErrorIs(t, err, store.ErrIsSameFile)
}

func (suite *OperatorTestSuite) testRename(t *testing.T) {
	op := suite.newOperator(t)
	if !capability(op).Rename {
		t.Skip("service does not support rename")
	}
	suite.seed(t, op, "old", []byte("moving"))

	require.NoError(t, op.Rename(testContext(), "old", "new/place"))

	_, err := op.Stat(testContext(), "old")
	assert.ErrorIs(t, err, store.ErrNotFound)

	data, err := op.Read(testContext(), "new/place")
	require.NoError(t, err)
	assert.Equal(t, "moving", string(data))
}
