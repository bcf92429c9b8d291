package s3

import (
	"context"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
)

func (b *Backend) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	if err := ctx.Err(); err != nil {
		return store.RpList{}, nil, err
	}
	return store.RpList{}, stream.NewPageLister(&lister{b: b, path: path, args: args}), nil
}

// lister walks ListObjectsV2 pages. Without Recursive the "/" delimiter
// folds deeper keys into common prefixes, reported as directories.
type lister struct {
	b    *Backend
	path string
	args store.OpList
}

func (l *lister) NextPage(ctx context.Context, pc *stream.PageContext) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.b.bucket),
		Prefix: aws.String(l.path),
	}
	if !l.args.Recursive {
		input.Delimiter = aws.String("/")
	}
	if l.args.Limit > 0 {
		input.MaxKeys = aws.Int32(int32(min(l.args.Limit, 1000)))
	}
	if pc.Token != "" {
		input.ContinuationToken = aws.String(pc.Token)
	} else if l.args.StartAfter != "" {
		input.StartAfter = aws.String(l.args.StartAfter)
	}

	out, err := l.b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return parseError(err, l.path)
	}

	entries := make([]store.Entry, 0, len(out.Contents)+len(out.CommonPrefixes))
	for _, p := range out.CommonPrefixes {
		prefix := aws.ToString(p.Prefix)
		if prefix == l.path {
			continue
		}
		entries = append(entries, store.NewEntry(prefix, store.NewMetadata(store.ModeDir)))
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		// The directory marker of the listed path itself.
		if key == l.path {
			continue
		}
		mode := store.ModeFromPath(key)
		meta := store.NewMetadata(mode)
		if mode == store.ModeFile {
			meta.ContentLength = uint64(aws.ToInt64(obj.Size))
			meta.ETag = aws.ToString(obj.ETag)
			if obj.LastModified != nil {
				meta.LastModified = obj.LastModified.UTC()
			}
		}
		entries = append(entries, store.NewEntry(key, meta))
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.Compare(entries[i].Path, entries[j].Path) < 0
	})
	for _, e := range entries {
		pc.Push(e)
	}

	if !aws.ToBool(out.IsTruncated) || aws.ToString(out.NextContinuationToken) == "" {
		pc.Done = true
		return nil
	}
	pc.Token = aws.ToString(out.NextContinuationToken)
	return nil
}
