package store

import (
	"time"
)

// EntryMode tells files and directories apart.
type EntryMode int

const (
	ModeUnknown EntryMode = iota
	ModeFile
	ModeDir
)

// String returns "file", "dir" or "unknown".
func (m EntryMode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDir:
		return "dir"
	default:
		return "unknown"
	}
}

// ModeFromPath infers the mode from the trailing slash convention.
func ModeFromPath(p string) EntryMode {
	if IsDirPath(p) {
		return ModeDir
	}
	return ModeFile
}

// Metadata describes one object. It is a value: once returned it is never
// mutated by the stack.
type Metadata struct {
	Mode          EntryMode
	ContentLength uint64
	LastModified  time.Time
	ETag          string
	Version       string
	ContentType   string
	ContentMD5    string
}

// NewMetadata creates metadata of the given mode.
func NewMetadata(mode EntryMode) Metadata {
	return Metadata{Mode: mode}
}

// IsFile reports whether the entry is a file.
func (m Metadata) IsFile() bool { return m.Mode == ModeFile }

// IsDir reports whether the entry is a directory.
func (m Metadata) IsDir() bool { return m.Mode == ModeDir }

// HasLastModified reports whether the backend returned a modification time.
func (m Metadata) HasLastModified() bool { return !m.LastModified.IsZero() }

// Entry is one listing result: an absolute path and its metadata.
type Entry struct {
	Path     string
	Metadata Metadata
}

// NewEntry creates an entry.
func NewEntry(path string, meta Metadata) Entry {
	return Entry{Path: path, Metadata: meta}
}

// Name returns the last path segment (with trailing slash for directories).
func (e Entry) Name() string {
	return Basename(e.Path)
}
