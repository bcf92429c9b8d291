package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes stat, read and write tests.
func (suite *OperatorTestSuite) RunBasicTests(t *testing.T) {
	t.Run("Stat_NotFound", suite.testStatNotFound)
	t.Run("Stat_File", suite.testStatFile)
	t.Run("Stat_Root", suite.testStatRoot)
	t.Run("Read_NotFound", suite.testReadNotFound)
	t.Run("Read_Full", suite.testReadFull)
	t.Run("Read_Range", suite.testReadRange)
	t.Run("Read_Streaming", suite.testReadStreaming)
	t.Run("Write_Overwrite", suite.testWriteOverwrite)
	t.Run("Write_Empty", suite.testWriteEmpty)
	t.Run("Write_Large", suite.testWriteLarge)
	t.Run("Write_Streaming", suite.testWriteStreaming)
	t.Run("Write_Append", suite.testWriteAppend)
	t.Run("Write_Multipart", suite.testWriteMultipart)
}

// ============================================================================
// Stat
// ============================================================================

func (suite *OperatorTestSuite) testStatNotFound(t *testing.T) {
	op := suite.newOperator(t)

	_, err := op.Stat(testContext(), "missing/file")
	assert.ErrorIs(t, err, store.ErrNotFound)

	exists, err := op.Exists(testContext(), "missing/file")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *OperatorTestSuite) testStatFile(t *testing.T) {
	op := suite.newOperator(t)
	suite.seed(t, op, "dir/file.txt", []byte("hello"))

	meta, err := op.Stat(testContext(), "dir/file.txt")
	require.NoError(t, err)
	assert.True(t, meta.IsFile())
	assert.Equal(t, uint64(5), meta.ContentLength)

	exists, err := op.Exists(testContext(), "dir/file.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func (suite *OperatorTestSuite) testStatRoot(t *testing.T) {
	op := suite.newOperator(t)

	meta, err := op.Stat(testContext(), "/")
	require.NoError(t, err)
	assert.True(t, meta.IsDir())
}

// ============================================================================
// Read
// ============================================================================

func (suite *OperatorTestSuite) testReadNotFound(t *testing.T) {
	op := suite.newOperator(t)

	_, err := op.Read(testContext(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *OperatorTestSuite) testReadFull(t *testing.T) {
	op := suite.newOperator(t)
	suite.seed(t, op, "file", []byte("Hello, World!"))

	data, err := op.Read(testContext(), "file")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(data))
}

func (suite *OperatorTestSuite) testReadRange(t *testing.T) {
	op := suite.newOperator(t)
	suite.seed(t, op, "digits", []byte("0123456789"))

	data, err := op.ReadWith(testContext(), "digits", store.OpRead{Range: store.NewRange(2, 3)})
	require.NoError(t, err)
	assert.Equal(t, "234", string(data))

	data, err = op.ReadWith(testContext(), "digits", store.OpRead{Range: store.RangeFrom(7)})
	require.NoError(t, err)
	assert.Equal(t, "789", string(data))
}

func (suite *OperatorTestSuite) testReadStreaming(t *testing.T) {
	op := suite.newOperator(t)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	suite.seed(t, op, "stream", payload)

	r, err := op.Reader(testContext(), "stream", store.OpRead{})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

// ============================================================================
// Write
// ============================================================================

func (suite *OperatorTestSuite) testWriteOverwrite(t *testing.T) {
	op := suite.newOperator(t)
	requireWrite(t, op)

	_, err := op.Write(testContext(), "file", []byte("first version"))
	require.NoError(t, err)
	_, err = op.Write(testContext(), "file", []byte("second"))
	require.NoError(t, err)

	data, err := op.Read(testContext(), "file")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	meta, err := op.Stat(testContext(), "file")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), meta.ContentLength)
}

func (suite *OperatorTestSuite) testWriteEmpty(t *testing.T) {
	op := suite.newOperator(t)
	requireWrite(t, op)

	_, err := op.Write(testContext(), "empty", nil)
	if !capability(op).WriteCanEmpty {
		assert.ErrorIs(t, err, store.ErrUnsupported)
		return
	}
	require.NoError(t, err)

	meta, err := op.Stat(testContext(), "empty")
	require.NoError(t, err)
	assert.Zero(t, meta.ContentLength)
}

func (suite *OperatorTestSuite) testWriteLarge(t *testing.T) {
	op := suite.newOperator(t)
	requireWrite(t, op)

	payload := bytes.Repeat([]byte{0xAB}, 1<<20)
	_, err := op.Write(testContext(), "large", payload)
	require.NoError(t, err)

	data, err := op.Read(testContext(), "large")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func (suite *OperatorTestSuite) testWriteStreaming(t *testing.T) {
	op := suite.newOperator(t)
	requireWrite(t, op)

	w, err := op.Writer(testContext(), "chunks", store.OpWrite{})
	require.NoError(t, err)
	for _, chunk := range []string{"alpha-", "beta-", "gamma"} {
		require.NoError(t, w.Write(testContext(), []byte(chunk)))
	}
	_, err = w.Close(testContext())
	require.NoError(t, err)

	data, err := op.Read(testContext(), "chunks")
	require.NoError(t, err)
	assert.Equal(t, "alpha-beta-gamma", string(data))
}

func (suite *OperatorTestSuite) testWriteAppend(t *testing.T) {
	op := suite.newOperator(t)
	requireWrite(t, op)
	if !capability(op).WriteCanAppend {
		t.Skip("service does not support append")
	}

	for _, part := range []string{"one,", "two,", "three"} {
		w, err := op.Writer(testContext(), "log", store.OpWrite{Append: true})
		require.NoError(t, err)
		require.NoError(t, w.Write(testContext(), []byte(part)))
		_, err = w.Close(testContext())
		require.NoError(t, err)
	}

	data, err := op.Read(testContext(), "log")
	require.NoError(t, err)
	assert.Equal(t, "one,two,three", string(data))
}

func (suite *OperatorTestSuite) testWriteMultipart(t *testing.T) {
	op := suite.newOperator(t)
	requireWrite(t, op)
	if !capability(op).WriteCanMulti {
		t.Skip("service does not support multipart")
	}

	chunk := 1024
	if min := capability(op).WriteMultiMinSize; min > int64(chunk) {
		chunk = int(min)
	}
	var expected []byte
	w, err := op.Writer(testContext(), "multi", store.OpWrite{Chunk: chunk, Concurrent: 4})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		part := bytes.Repeat([]byte{byte('a' + i)}, chunk)
		expected = append(expected, part...)
		require.NoError(t, w.Write(testContext(), part))
	}
	_, err = w.Close(testContext())
	require.NoError(t, err)

	data, err := op.Read(testContext(), "multi")
	require.NoError(t, err)
	assert.Equal(t, expected, data)
}
