package store

import (
	"path"
	"strings"
)

// NormalizeRoot normalizes a backend root.
//
// The result has exactly one leading slash and no trailing slash, except for
// the root itself which is "/". Dot segments are resolved and "..", once it
// reaches the top, stays there.
//
//	NormalizeRoot("")          == "/"
//	NormalizeRoot("data//x/")  == "/data/x"
//	NormalizeRoot("/../a")     == "/a"
func NormalizeRoot(root string) string {
	return path.Clean("/" + strings.TrimSpace(root))
}

// NormalizePath normalizes a user supplied relative path.
//
// The returned path never has a leading slash. A trailing slash is kept
// because it marks a directory. The empty path, "/" and anything that
// resolves to the root return "/".
//
//	NormalizePath("")            == "/"
//	NormalizePath("/a//b")       == "a/b"
//	NormalizePath("a/./b/")      == "a/b/"
//	NormalizePath("../../etc")   == "etc"
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}

	isDir := strings.HasSuffix(p, "/")
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "/"
	}

	cleaned = strings.TrimPrefix(cleaned, "/")
	if isDir {
		cleaned += "/"
	}
	return cleaned
}

// BuildAbsPath joins a normalized root and a normalized relative path into
// the absolute path handed to backends. The result has no leading slash
// (storage keys rarely want one), and "" denotes the root when root is "/".
//
//	BuildAbsPath("/", "a/b")      == "a/b"
//	BuildAbsPath("/data", "a/")   == "data/a/"
//	BuildAbsPath("/data", "/")    == "data/"
func BuildAbsPath(root, p string) string {
	root = strings.Trim(root, "/")
	if p == "/" {
		if root == "" {
			return ""
		}
		return root + "/"
	}
	if root == "" {
		return p
	}
	return root + "/" + p
}

// BuildRelPath strips the root from an absolute path produced by a backend,
// returning the caller-facing relative path ("/" for the root itself).
func BuildRelPath(root, abs string) string {
	root = strings.Trim(root, "/")
	abs = strings.TrimPrefix(abs, "/")
	if root != "" {
		if abs == root || abs == root+"/" {
			return "/"
		}
		abs = strings.TrimPrefix(abs, root+"/")
	}
	if abs == "" {
		return "/"
	}
	return abs
}

// IsDirPath reports whether a path denotes a directory.
func IsDirPath(p string) bool {
	return p == "" || p == "/" || strings.HasSuffix(p, "/")
}

// ParentPath returns the parent directory of p, with a trailing slash.
// The parent of a top level entry is "".
//
//	ParentPath("a/b/c.txt") == "a/b/"
//	ParentPath("a/b/")      == "a/"
//	ParentPath("a")         == ""
func ParentPath(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// Basename returns the last segment of p, keeping a trailing slash for
// directories.
func Basename(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	isDir := strings.HasSuffix(p, "/")
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	name := trimmed[idx+1:]
	if isDir {
		name += "/"
	}
	return name
}
