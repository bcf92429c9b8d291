package store

import (
	"time"
)

// Conditions groups the conditional predicates shared by stat and read.
// Backends that evaluate predicates themselves (instead of delegating to a
// remote service) evaluate them against the current Metadata with Check.
type Conditions struct {
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
	Version           string
}

// Any reports whether at least one predicate is set.
func (c Conditions) Any() bool {
	return c.IfMatch != "" || c.IfNoneMatch != "" ||
		!c.IfModifiedSince.IsZero() || !c.IfUnmodifiedSince.IsZero() ||
		c.Version != ""
}

// Check evaluates the predicates against meta. Every mismatch is a
// ConditionNotMatch error naming the failed predicate.
//
// "*" matches any existing etag for IfMatch and IfNoneMatch.
func (c Conditions) Check(meta Metadata) error {
	if c.IfMatch != "" && c.IfMatch != "*" && c.IfMatch != meta.ETag {
		return NewError(KindConditionNotMatch, "doesn't match the condition if_match").
			WithContext("etag", meta.ETag)
	}
	if c.IfNoneMatch != "" && (c.IfNoneMatch == "*" || c.IfNoneMatch == meta.ETag) {
		return NewError(KindConditionNotMatch, "doesn't match the condition if_none_match").
			WithContext("etag", meta.ETag)
	}
	if !c.IfModifiedSince.IsZero() {
		if !meta.HasLastModified() || !meta.LastModified.After(c.IfModifiedSince) {
			return NewError(KindConditionNotMatch, "doesn't match the condition if_modified_since")
		}
	}
	if !c.IfUnmodifiedSince.IsZero() {
		if !meta.HasLastModified() || meta.LastModified.After(c.IfUnmodifiedSince) {
			return NewError(KindConditionNotMatch, "doesn't match the condition if_unmodified_since")
		}
	}
	if c.Version != "" && c.Version != meta.Version {
		return NewError(KindConditionNotMatch, "doesn't match the condition version").
			WithContext("version", meta.Version)
	}
	return nil
}
