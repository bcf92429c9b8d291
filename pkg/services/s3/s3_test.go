package s3

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
	storetesting "github.com/marmos91/dittostore/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, fake *fakeS3, cfg Config) *Backend {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	cfg.Bucket = testBucket
	cfg.AccessKeyID = "test"
	cfg.SecretAccessKey = "test"
	cfg.MaxRetries = 1
	b, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return b
}

func TestS3Conformance(t *testing.T) {
	suite := &storetesting.OperatorTestSuite{
		New: func(t *testing.T) store.Accessor {
			return newService(t, newFakeS3(), Config{DeleteMaxSize: 2})
		},
	}
	suite.Run(t)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConfigInvalid)
}

func TestNewRejectsSmallParts(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "b", PartSize: 1024})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConfigInvalid)
}

func TestNewChecksBucket(t *testing.T) {
	srv := httptest.NewServer(newFakeS3())
	t.Cleanup(srv.Close)

	_, err := New(context.Background(), Config{
		Bucket:          "missing-bucket",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxRetries:      1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing-bucket")
}

func TestRootPrefix(t *testing.T) {
	fake := newFakeS3()
	op := operator.New(newService(t, fake, Config{Root: "/tenant/"}))
	ctx := context.Background()

	_, err := op.Write(ctx, "dir/file", []byte("hello"))
	require.NoError(t, err)

	_, ok := fake.object("tenant/dir/file")
	assert.True(t, ok)

	entries, err := op.List(ctx, "dir/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dir/file", entries[0].Path)
}

func TestStatMetadata(t *testing.T) {
	op := operator.New(newService(t, newFakeS3(), Config{}))
	ctx := context.Background()

	written, err := op.WriteWith(ctx, "doc.txt", []byte("hello"), store.OpWrite{ContentType: "text/plain"})
	require.NoError(t, err)
	assert.NotEmpty(t, written.ETag)

	meta, err := op.Stat(ctx, "doc.txt")
	require.NoError(t, err)
	assert.True(t, meta.IsFile())
	assert.Equal(t, uint64(5), meta.ContentLength)
	assert.Equal(t, written.ETag, meta.ETag)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.NotEmpty(t, meta.Version)
	assert.False(t, meta.LastModified.IsZero())
}

func TestStatImpliedDirectory(t *testing.T) {
	op := operator.New(newService(t, newFakeS3(), Config{}))
	ctx := context.Background()

	_, err := op.Write(ctx, "implied/child", []byte("x"))
	require.NoError(t, err)

	meta, err := op.Stat(ctx, "implied/")
	require.NoError(t, err)
	assert.True(t, meta.IsDir())

	_, err = op.Stat(ctx, "absent/")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConditionalReads(t *testing.T) {
	op := operator.New(newService(t, newFakeS3(), Config{}))
	ctx := context.Background()

	written, err := op.Write(ctx, "f", []byte("payload"))
	require.NoError(t, err)

	data, err := op.ReadWith(ctx, "f", store.OpRead{IfMatch: written.ETag})
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = op.ReadWith(ctx, "f", store.OpRead{IfMatch: `"other"`})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.ReadWith(ctx, "f", store.OpRead{IfNoneMatch: written.ETag})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.StatWith(ctx, "f", store.OpStat{IfMatch: `"other"`})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.StatWith(ctx, "f", store.OpStat{IfModifiedSince: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)
}

func TestReadVersion(t *testing.T) {
	op := operator.New(newService(t, newFakeS3(), Config{}))
	ctx := context.Background()

	written, err := op.Write(ctx, "f", []byte("v1"))
	require.NoError(t, err)

	data, err := op.ReadWith(ctx, "f", store.OpRead{Version: written.Version})
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	_, err = op.ReadWith(ctx, "f", store.OpRead{Version: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConditionalWrites(t *testing.T) {
	op := operator.New(newService(t, newFakeS3(), Config{}))
	ctx := context.Background()

	first, err := op.WriteWith(ctx, "f", []byte("one"), store.OpWrite{IfNotExists: true})
	require.NoError(t, err)

	_, err = op.WriteWith(ctx, "f", []byte("two"), store.OpWrite{IfNotExists: true})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.WriteWith(ctx, "f", []byte("two"), store.OpWrite{IfMatch: `"stale"`})
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)

	_, err = op.WriteWith(ctx, "f", []byte("two"), store.OpWrite{IfMatch: first.ETag})
	require.NoError(t, err)

	data, err := op.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestMultipartUpload(t *testing.T) {
	fake := newFakeS3()
	op := operator.New(newService(t, fake, Config{}))
	ctx := context.Background()

	payload := make([]byte, 2*MinPartSize+100)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	meta, err := op.WriteWith(ctx, "big", payload, store.OpWrite{Chunk: MinPartSize, Concurrent: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), meta.ContentLength)

	obj, ok := fake.object("big")
	require.True(t, ok)
	assert.Equal(t, payload, obj.data)
	assert.Zero(t, fake.pendingUploads())
}

func TestMultipartAbort(t *testing.T) {
	fake := newFakeS3()
	op := operator.New(newService(t, fake, Config{}))
	ctx := context.Background()

	w, err := op.Writer(ctx, "big", store.OpWrite{Chunk: MinPartSize})
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, make([]byte, MinPartSize+1)))
	require.NoError(t, w.Abort(ctx))

	_, ok := fake.object("big")
	assert.False(t, ok)
	assert.Zero(t, fake.pendingUploads())
}

func TestRangeNotSatisfiable(t *testing.T) {
	acc := newService(t, newFakeS3(), Config{})
	op := operator.New(acc)
	ctx := context.Background()

	_, err := op.Write(ctx, "f", []byte("abc"))
	require.NoError(t, err)

	_, _, err = acc.Read(ctx, "f", store.OpRead{Range: store.RangeFrom(10)})
	assert.ErrorIs(t, err, store.ErrRangeNotSatisfied)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		want      error
		temporary bool
	}{
		{"access denied", http.StatusForbidden, "AccessDenied", store.ErrPermissionDenied, false},
		{"slow down", http.StatusServiceUnavailable, "SlowDown", store.ErrRateLimited, true},
		{"too many requests", http.StatusTooManyRequests, "TooManyRequests", store.ErrRateLimited, true},
		{"internal error", http.StatusInternalServerError, "InternalError", store.ErrUnexpected, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeS3()
			fake.failStatus, fake.failCode = tt.status, tt.code
			op := operator.New(newService(t, fake, Config{}))

			_, err := op.Read(context.Background(), "f")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.temporary, store.IsTemporary(err))
		})
	}
}

func TestParseError(t *testing.T) {
	assert.NoError(t, parseError(nil, "p"))
	assert.ErrorIs(t, parseError(context.Canceled, "p"), context.Canceled)

	err := parseError(&smithy.GenericAPIError{Code: "NoSuchBucket", Message: "gone"}, "p")
	assert.ErrorIs(t, err, store.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "gone")

	err = parseError(&smithy.GenericAPIError{Code: "PreconditionFailed"}, "p")
	assert.ErrorIs(t, err, store.ErrConditionNotMatch)
	assert.False(t, store.IsTemporary(err))

	// No HTTP response at all.
	err = parseError(errors.New("connection reset"), "p")
	assert.ErrorIs(t, err, store.ErrUnexpected)
	assert.True(t, store.IsTemporary(err))
}

func TestBatchDeleteSkipsMissing(t *testing.T) {
	fake := newFakeS3()
	acc := newService(t, fake, Config{})
	d := &deleter{b: acc}
	ctx := context.Background()

	_, err := operator.New(acc).Write(ctx, "a", []byte("x"))
	require.NoError(t, err)

	result, err := d.DeleteBatch(ctx, []stream.DeleteItem{{Path: "a"}, {Path: "missing"}})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)

	_, ok := fake.object("a")
	assert.False(t, ok)
}

func TestBatchError(t *testing.T) {
	err := batchError(types.Error{Code: aws.String("AccessDenied"), Message: aws.String("no")}, "p")
	assert.ErrorIs(t, err, store.ErrPermissionDenied)

	err = batchError(types.Error{Code: aws.String("SlowDown")}, "p")
	assert.ErrorIs(t, err, store.ErrRateLimited)
	assert.True(t, store.IsTemporary(err))
}

func TestHTTPClientSwap(t *testing.T) {
	acc := newService(t, newFakeS3(), Config{})
	calls := 0
	acc.Info().UpdateHTTPClient(func(c *store.HTTPClient) *store.HTTPClient {
		return store.HTTPClientWith(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return http.DefaultTransport.RoundTrip(r)
		})})
	})

	_, err := operator.New(acc).Write(context.Background(), "f", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestEscapeKey(t *testing.T) {
	assert.Equal(t, "dir/a%20b/c", escapeKey("dir/a b/c"))
	assert.Equal(t, "plain", escapeKey("plain"))
}
