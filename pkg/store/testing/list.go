package testing

import (
	"testing"

	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListTests executes list and create_dir tests.
func (suite *OperatorTestSuite) RunListTests(t *testing.T) {
	t.Run("List_Direct", suite.testListDirect)
	t.Run("List_Recursive", suite.testListRecursive)
	t.Run("List_Paged", suite.testListPaged)
	t.Run("List_StartAfter", suite.testListStartAfter)
	t.Run("List_MissingDir", suite.testListMissingDir)
	t.Run("List_Snapshot", suite.testListSnapshot)
	t.Run("CreateDir", suite.testCreateDir)
}

// tree is the fixture shared by the list tests.
var tree = []string{"a/1", "a/2", "a/sub/3", "b"}

// newTree returns an operator seeded with tree.
func (suite *OperatorTestSuite) newTree(t *testing.T) *operator.Operator {
	t.Helper()
	op := suite.newOperator(t)
	requireList(t, op)
	for _, p := range tree {
		suite.seed(t, op, p, []byte("x"))
	}
	return op
}

func (suite *OperatorTestSuite) testListDirect(t *testing.T) {
	op := suite.newTree(t)

	entries, err := op.List(testContext(), "a/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/1", "a/2", "a/sub/"}, entryPaths(entries))

	for _, e := range entries {
		if e.Path == "a/sub/" {
			assert.True(t, e.Metadata.IsDir())
		} else {
			assert.True(t, e.Metadata.IsFile())
		}
	}

	entries, err = op.List(testContext(), "/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/", "b"}, entryPaths(entries))
}

func (suite *OperatorTestSuite) testListRecursive(t *testing.T) {
	op := suite.newTree(t)
	if !capability(op).ListWithRecursive {
		t.Skip("service does not support recursive list")
	}

	entries, err := op.ListWith(testContext(), "a/", store.OpList{Recursive: true})
	require.NoError(t, err)

	var files []string
	for _, e := range entries {
		if e.Metadata.IsFile() {
			files = append(files, e.Path)
		}
	}
	assert.ElementsMatch(t, []string{"a/1", "a/2", "a/sub/3"}, files)
}

func (suite *OperatorTestSuite) testListPaged(t *testing.T) {
	op := suite.newTree(t)
	if !capability(op).ListWithLimit {
		t.Skip("service does not support list limit")
	}

	entries, err := op.ListWith(testContext(), "a/", store.OpList{Limit: 1})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/1", "a/2", "a/sub/"}, entryPaths(entries))
}

func (suite *OperatorTestSuite) testListStartAfter(t *testing.T) {
	op := suite.newTree(t)
	if !capability(op).ListWithStartAfter {
		t.Skip("service does not support start_after")
	}

	entries, err := op.ListWith(testContext(), "a/", store.OpList{StartAfter: "a/1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/2", "a/sub/"}, entryPaths(entries))
}

func (suite *OperatorTestSuite) testListMissingDir(t *testing.T) {
	op := suite.newOperator(t)
	requireList(t, op)

	entries, err := op.List(testContext(), "nowhere/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (suite *OperatorTestSuite) testListSnapshot(t *testing.T) {
	op := suite.newTree(t)

	first, err := op.List(testContext(), "a/")
	require.NoError(t, err)
	second, err := op.List(testContext(), "a/")
	require.NoError(t, err)
	assert.Equal(t, entryPaths(first), entryPaths(second))

	seen := make(map[string]bool)
	for _, p := range entryPaths(first) {
		assert.False(t, seen[p], "entry %s listed twice", p)
		seen[p] = true
	}
}

func (suite *OperatorTestSuite) testCreateDir(t *testing.T) {
	op := suite.newOperator(t)
	if !capability(op).CreateDir {
		t.Skip("service does not support create_dir")
	}

	require.NoError(t, op.CreateDir(testContext(), "newdir/"))
	require.NoError(t, op.CreateDir(testContext(), "newdir/"), "create_dir must be idempotent")

	meta, err := op.Stat(testContext(), "newdir/")
	require.NoError(t, err)
	assert.True(t, meta.IsDir())

	if capability(op).List {
		entries, err := op.List(testContext(), "/")
		require.NoError(t, err)
		assert.Contains(t, entryPaths(entries), "newdir/")
	}
}
