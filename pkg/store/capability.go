package store

import (
	"github.com/mitchellh/mapstructure"
)

// Capability declares which operation variants a backend instance supports.
//
// Backends fill it once at construction and store it in their Info. The
// operator consults it before every dispatch: a variant the backend did not
// declare is rejected with Unsupported before any backend code runs, so a
// backend never has to defend against predicates it never advertised.
//
// Limits use zero for "no limit / not declared".
type Capability struct {
	// Stat
	Stat                      bool `mapstructure:"stat"`
	StatWithIfMatch           bool `mapstructure:"stat_with_if_match"`
	StatWithIfNoneMatch       bool `mapstructure:"stat_with_if_none_match"`
	StatWithIfModifiedSince   bool `mapstructure:"stat_with_if_modified_since"`
	StatWithIfUnmodifiedSince bool `mapstructure:"stat_with_if_unmodified_since"`
	StatWithVersion           bool `mapstructure:"stat_with_version"`

	// Read
	Read                      bool `mapstructure:"read"`
	ReadWithIfMatch           bool `mapstructure:"read_with_if_match"`
	ReadWithIfNoneMatch       bool `mapstructure:"read_with_if_none_match"`
	ReadWithIfModifiedSince   bool `mapstructure:"read_with_if_modified_since"`
	ReadWithIfUnmodifiedSince bool `mapstructure:"read_with_if_unmodified_since"`
	ReadWithVersion           bool `mapstructure:"read_with_version"`

	// Write
	Write                bool  `mapstructure:"write"`
	WriteCanEmpty        bool  `mapstructure:"write_can_empty"`
	WriteCanMulti        bool  `mapstructure:"write_can_multi"`
	WriteCanAppend       bool  `mapstructure:"write_can_append"`
	WriteWithIfMatch     bool  `mapstructure:"write_with_if_match"`
	WriteWithIfNoneMatch bool  `mapstructure:"write_with_if_none_match"`
	WriteWithIfNotExists bool  `mapstructure:"write_with_if_not_exists"`
	WriteWithContentType bool  `mapstructure:"write_with_content_type"`
	WriteMultiMinSize    int64 `mapstructure:"write_multi_min_size"`
	WriteMultiMaxSize    int64 `mapstructure:"write_multi_max_size"`
	WriteTotalMaxSize    int64 `mapstructure:"write_total_max_size"`

	// CreateDir
	CreateDir bool `mapstructure:"create_dir"`

	// Delete
	Delete            bool `mapstructure:"delete"`
	DeleteWithVersion bool `mapstructure:"delete_with_version"`
	DeleteMaxSize     int  `mapstructure:"delete_max_size"`

	// DeleteStrict declares that deleting a missing path reports NotFound.
	// When false, deleting a missing path succeeds. Backends must behave the
	// same way on every call.
	DeleteStrict bool `mapstructure:"delete_strict"`

	// Copy / Rename
	Copy   bool `mapstructure:"copy"`
	Rename bool `mapstructure:"rename"`

	// List
	List               bool `mapstructure:"list"`
	ListWithLimit      bool `mapstructure:"list_with_limit"`
	ListWithStartAfter bool `mapstructure:"list_with_start_after"`
	ListWithRecursive  bool `mapstructure:"list_with_recursive"`

	// Shared means the storage is shared between processes (remote service).
	Shared bool `mapstructure:"shared"`
}

// Map returns the capability as an operation-variant name to value mapping,
// keyed by the snake_case names used in configuration and diagnostics.
func (c Capability) Map() map[string]any {
	out := make(map[string]any)
	// Decoding a flat struct of bools and ints into a map cannot fail.
	_ = mapstructure.Decode(c, &out)
	return out
}
