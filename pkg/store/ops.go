package store

import (
	"time"
)

// ============================================================================
// Operation Parameters
// ============================================================================

// Operation parameters are plain values: they are built by the caller, passed
// by value down the stack and never mutated once dispatched. A backend that
// receives a predicate it did not declare in its Capability must reject it;
// the operator already does so before dispatch.

// OpCreateDir carries create_dir parameters.
type OpCreateDir struct{}

// OpStat carries stat parameters.
type OpStat struct {
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
	Version           string
}

// HasConditions reports whether any conditional predicate is set.
func (o OpStat) HasConditions() bool {
	return o.Conditions().Any()
}

// Conditions extracts the conditional predicates.
func (o OpStat) Conditions() Conditions {
	return Conditions{
		IfMatch:           o.IfMatch,
		IfNoneMatch:       o.IfNoneMatch,
		IfModifiedSince:   o.IfModifiedSince,
		IfUnmodifiedSince: o.IfUnmodifiedSince,
		Version:           o.Version,
	}
}

// OpRead carries read parameters.
type OpRead struct {
	Range             BytesRange
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
	Version           string

	// Concurrent is a hint for backends able to fetch chunks in parallel.
	Concurrent int
	// Chunk is a hint for the fetch size.
	Chunk int
}

// Conditions extracts the conditional predicates.
func (o OpRead) Conditions() Conditions {
	return Conditions{
		IfMatch:           o.IfMatch,
		IfNoneMatch:       o.IfNoneMatch,
		IfModifiedSince:   o.IfModifiedSince,
		IfUnmodifiedSince: o.IfUnmodifiedSince,
		Version:           o.Version,
	}
}

// ToStat derives the stat needed to resolve a read's conditions and range.
func (o OpRead) ToStat() OpStat {
	return OpStat{
		IfMatch:           o.IfMatch,
		IfNoneMatch:       o.IfNoneMatch,
		IfModifiedSince:   o.IfModifiedSince,
		IfUnmodifiedSince: o.IfUnmodifiedSince,
		Version:           o.Version,
	}
}

// OpWrite carries write parameters.
type OpWrite struct {
	// Append appends to the existing object instead of replacing it.
	Append bool

	// Concurrent is the number of parts uploaded in parallel by a multipart
	// writer. Values above 1 select the multipart writer.
	Concurrent int

	// Chunk is the part size of a multipart writer. A positive value selects
	// the multipart writer.
	Chunk int

	ContentType string

	IfMatch     string
	IfNoneMatch string

	// IfNotExists makes the write fail with ConditionNotMatch if the object
	// already exists.
	IfNotExists bool
}

// IsConditional reports whether the write carries a precondition. Such
// writes are not idempotent and must not be replayed blindly.
func (o OpWrite) IsConditional() bool {
	return o.IfMatch != "" || o.IfNoneMatch != "" || o.IfNotExists
}

// IsMultipart reports whether the caller asked for a multipart writer.
func (o OpWrite) IsMultipart() bool {
	return !o.Append && (o.Concurrent > 1 || o.Chunk > 0)
}

// OpDelete carries delete parameters.
type OpDelete struct {
	Version string
}

// OpList carries list parameters.
type OpList struct {
	// Limit is the page size hint.
	Limit int
	// StartAfter skips every entry up to and including this path.
	StartAfter string
	// Recursive lists every descendant instead of direct children.
	Recursive bool
}

// OpCopy carries copy parameters.
type OpCopy struct{}

// OpRename carries rename parameters.
type OpRename struct{}

// ============================================================================
// Operation Replies
// ============================================================================

// RpCreateDir is the reply of create_dir.
type RpCreateDir struct{}

// RpStat is the reply of stat.
type RpStat struct {
	Metadata Metadata
}

// NewRpStat creates a stat reply.
func NewRpStat(meta Metadata) RpStat {
	return RpStat{Metadata: meta}
}

// RpRead is the reply of read.
type RpRead struct {
	// Size is the exact number of bytes the reader will yield, or -1 when
	// the backend cannot tell in advance.
	Size int64
}

// RpWrite is the reply of write.
type RpWrite struct{}

// RpDelete is the reply of delete.
type RpDelete struct{}

// RpList is the reply of list.
type RpList struct{}

// RpCopy is the reply of copy.
type RpCopy struct{}

// RpRename is the reply of rename.
type RpRename struct{}
