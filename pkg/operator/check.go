package operator

import (
	"github.com/marmos91/dittostore/pkg/store"
)

// The checks below run before any dispatch. A variant the backend did not
// declare is rejected with an Unsupported error wrapping
// store.ErrCapabilityMissing, so the backend is never invoked for it.

func checkStat(c store.Capability, args store.OpStat) error {
	if !c.Stat {
		return store.Unsupportedf("stat is not supported")
	}
	if args.IfMatch != "" && !c.StatWithIfMatch {
		return store.Unsupportedf("stat with if_match is not supported")
	}
	if args.IfNoneMatch != "" && !c.StatWithIfNoneMatch {
		return store.Unsupportedf("stat with if_none_match is not supported")
	}
	if !args.IfModifiedSince.IsZero() && !c.StatWithIfModifiedSince {
		return store.Unsupportedf("stat with if_modified_since is not supported")
	}
	if !args.IfUnmodifiedSince.IsZero() && !c.StatWithIfUnmodifiedSince {
		return store.Unsupportedf("stat with if_unmodified_since is not supported")
	}
	if args.Version != "" && !c.StatWithVersion {
		return store.Unsupportedf("stat with version is not supported")
	}
	return nil
}

func checkRead(c store.Capability, args store.OpRead) error {
	if !c.Read {
		return store.Unsupportedf("read is not supported")
	}
	if args.IfMatch != "" && !c.ReadWithIfMatch {
		return store.Unsupportedf("read with if_match is not supported")
	}
	if args.IfNoneMatch != "" && !c.ReadWithIfNoneMatch {
		return store.Unsupportedf("read with if_none_match is not supported")
	}
	if !args.IfModifiedSince.IsZero() && !c.ReadWithIfModifiedSince {
		return store.Unsupportedf("read with if_modified_since is not supported")
	}
	if !args.IfUnmodifiedSince.IsZero() && !c.ReadWithIfUnmodifiedSince {
		return store.Unsupportedf("read with if_unmodified_since is not supported")
	}
	if args.Version != "" && !c.ReadWithVersion {
		return store.Unsupportedf("read with version is not supported")
	}
	return nil
}

func checkWrite(c store.Capability, args store.OpWrite) error {
	if !c.Write {
		return store.Unsupportedf("write is not supported")
	}
	if args.Append && !c.WriteCanAppend {
		return store.Unsupportedf("write with append is not supported")
	}
	if args.IsMultipart() && !c.WriteCanMulti {
		return store.Unsupportedf("write with concurrent or chunked upload is not supported")
	}
	if args.IfMatch != "" && !c.WriteWithIfMatch {
		return store.Unsupportedf("write with if_match is not supported")
	}
	if args.IfNoneMatch != "" && !c.WriteWithIfNoneMatch {
		return store.Unsupportedf("write with if_none_match is not supported")
	}
	if args.IfNotExists && !c.WriteWithIfNotExists {
		return store.Unsupportedf("write with if_not_exists is not supported")
	}
	if args.ContentType != "" && !c.WriteWithContentType {
		return store.Unsupportedf("write with content_type is not supported")
	}
	if args.Chunk > 0 {
		if c.WriteMultiMinSize > 0 && int64(args.Chunk) < c.WriteMultiMinSize {
			return store.Unsupportedf("chunk %d is below write_multi_min_size %d", args.Chunk, c.WriteMultiMinSize)
		}
		if c.WriteMultiMaxSize > 0 && int64(args.Chunk) > c.WriteMultiMaxSize {
			return store.Unsupportedf("chunk %d is above write_multi_max_size %d", args.Chunk, c.WriteMultiMaxSize)
		}
	}
	return nil
}

func checkDelete(c store.Capability, args store.OpDelete) error {
	if !c.Delete {
		return store.Unsupportedf("delete is not supported")
	}
	if args.Version != "" && !c.DeleteWithVersion {
		return store.Unsupportedf("delete with version is not supported")
	}
	return nil
}

func checkList(c store.Capability, args store.OpList) error {
	if !c.List {
		return store.Unsupportedf("list is not supported")
	}
	if args.Recursive && !c.ListWithRecursive {
		return store.Unsupportedf("list with recursive is not supported")
	}
	if args.Limit > 0 && !c.ListWithLimit {
		return store.Unsupportedf("list with limit is not supported")
	}
	if args.StartAfter != "" && !c.ListWithStartAfter {
		return store.Unsupportedf("list with start_after is not supported")
	}
	return nil
}
