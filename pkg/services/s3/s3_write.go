package s3

import (
	"bytes"
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
)

func (b *Backend) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	if err := ctx.Err(); err != nil {
		return store.RpWrite{}, nil, err
	}
	w := &writer{b: b, path: path, args: args}
	if !args.IsMultipart() {
		return store.RpWrite{}, stream.NewOneShotWriter(w), nil
	}

	partSize := args.Chunk
	if partSize <= 0 {
		partSize = b.cfg.PartSize
	}
	return store.RpWrite{}, stream.NewMultipartWriter(w, stream.MultipartOptions{
		PartSize:       partSize,
		Concurrency:    args.Concurrent,
		AbortOnFailure: !b.cfg.KeepMultipartOnFailure,
	}), nil
}

// writer implements both the one-shot and multipart primitives.
type writer struct {
	b    *Backend
	path string
	args store.OpWrite
}

func (w *writer) ifNoneMatch() *string {
	if w.args.IfNotExists {
		return aws.String("*")
	}
	return optional(w.args.IfNoneMatch)
}

func (w *writer) WriteOnce(ctx context.Context, data []byte) (store.Metadata, error) {
	out, err := w.b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.b.bucket),
		Key:           aws.String(w.path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   optional(w.args.ContentType),
		IfMatch:       optional(w.args.IfMatch),
		IfNoneMatch:   w.ifNoneMatch(),
	})
	if err != nil {
		return store.Metadata{}, parseError(err, w.path)
	}

	meta := store.NewMetadata(store.ModeFile)
	meta.ContentLength = uint64(len(data))
	meta.ETag = aws.ToString(out.ETag)
	meta.Version = aws.ToString(out.VersionId)
	meta.ContentType = w.args.ContentType
	return meta, nil
}

func (w *writer) InitiateUpload(ctx context.Context) (string, error) {
	out, err := w.b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(w.b.bucket),
		Key:         aws.String(w.path),
		ContentType: optional(w.args.ContentType),
	})
	if err != nil {
		return "", parseError(err, w.path)
	}
	if out.UploadId == nil {
		return "", store.NewError(store.KindUnexpected, "CreateMultipartUpload returned no upload id").WithPath(w.path)
	}
	return *out.UploadId, nil
}

func (w *writer) WritePart(ctx context.Context, uploadID string, partNumber int, data []byte) (stream.Part, error) {
	out, err := w.b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(w.b.bucket),
		Key:           aws.String(w.path),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(partNumber)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return stream.Part{}, parseError(err, w.path)
	}
	return stream.Part{Number: partNumber, ETag: aws.ToString(out.ETag), Size: len(data)}, nil
}

func (w *writer) CompleteUpload(ctx context.Context, uploadID string, parts []stream.Part) (store.Metadata, error) {
	completed := make([]types.CompletedPart, len(parts))
	var size uint64
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.Number)),
		}
		size += uint64(p.Size)
	}

	out, err := w.b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(w.b.bucket),
		Key:             aws.String(w.path),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
		IfMatch:         optional(w.args.IfMatch),
		IfNoneMatch:     w.ifNoneMatch(),
	})
	if err != nil {
		return store.Metadata{}, parseError(err, w.path)
	}

	meta := store.NewMetadata(store.ModeFile)
	meta.ContentLength = size
	meta.ETag = aws.ToString(out.ETag)
	meta.Version = aws.ToString(out.VersionId)
	meta.ContentType = w.args.ContentType
	return meta, nil
}

func (w *writer) AbortUpload(ctx context.Context, uploadID string) error {
	_, err := w.b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.b.bucket),
		Key:      aws.String(w.path),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		err = parseError(err, w.path)
		// Already gone: completed concurrently or expired.
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// ============================================================================
// Delete
// ============================================================================

func (b *Backend) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	if err := ctx.Err(); err != nil {
		return store.RpDelete{}, nil, err
	}
	return store.RpDelete{}, stream.NewBatchDeleter(&deleter{b: b}, b.cfg.DeleteMaxSize), nil
}

// deleter deletes single objects with DeleteObject and batches with
// DeleteObjects. S3 never reports a missing key, so deletes are lenient.
type deleter struct {
	b *Backend
}

func (d *deleter) DeleteOnce(ctx context.Context, path string, args store.OpDelete) error {
	_, err := d.b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(d.b.bucket),
		Key:       aws.String(path),
		VersionId: optional(args.Version),
	})
	if err != nil {
		err = parseError(err, path)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (d *deleter) DeleteBatch(ctx context.Context, batch []stream.DeleteItem) (stream.BatchResult, error) {
	objects := make([]types.ObjectIdentifier, len(batch))
	for i, item := range batch {
		objects[i] = types.ObjectIdentifier{
			Key:       aws.String(item.Path),
			VersionId: optional(item.Args.Version),
		}
	}

	out, err := d.b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(d.b.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return stream.BatchResult{}, parseError(err, "")
	}

	failed := make(map[string]types.Error, len(out.Errors))
	for _, e := range out.Errors {
		if aws.ToString(e.Code) == "NoSuchKey" {
			continue
		}
		failed[aws.ToString(e.Key)] = e
	}

	var result stream.BatchResult
	for _, item := range batch {
		e, ok := failed[item.Path]
		if !ok {
			result.Succeeded = append(result.Succeeded, item)
			continue
		}
		result.Failed = append(result.Failed, stream.BatchFailure{
			Item: item,
			Err:  batchError(e, item.Path),
		})
	}
	return result, nil
}

func batchError(e types.Error, path string) error {
	code := aws.ToString(e.Code)
	kind := store.KindUnexpected
	temporary := false
	switch code {
	case "AccessDenied":
		kind = store.KindPermissionDenied
	case "SlowDown":
		kind, temporary = store.KindRateLimited, true
	case "InternalError":
		temporary = true
	}
	err := store.NewError(kind, aws.ToString(e.Message)).
		WithPath(path).
		WithOperation("delete").
		WithContext("s3_code", code)
	if temporary {
		err.SetTemporary()
	}
	return err
}
