package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoot(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"data", "/data"},
		{"data//x/", "/data/x"},
		{"/../a", "/a"},
		{"  /a/./b/  ", "/a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRoot(tt.in))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"..", "/"},
		{"/a//b", "a/b"},
		{"a/./b/", "a/b/"},
		{"../../etc", "etc"},
		{"a/../../b/", "b/"},
		{"dir/", "dir/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.in))
		})
	}
}

func TestBuildAbsAndRelPath(t *testing.T) {
	tests := []struct {
		root string
		rel  string
		abs  string
	}{
		{"/", "a/b", "a/b"},
		{"/", "/", ""},
		{"/data", "a/", "data/a/"},
		{"/data", "/", "data/"},
		{"/data/x", "f.txt", "data/x/f.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.root+"|"+tt.rel, func(t *testing.T) {
			abs := BuildAbsPath(tt.root, tt.rel)
			assert.Equal(t, tt.abs, abs)
			assert.Equal(t, tt.rel, BuildRelPath(tt.root, abs))
		})
	}
}

func TestParentAndBasename(t *testing.T) {
	assert.Equal(t, "a/b/", ParentPath("a/b/c.txt"))
	assert.Equal(t, "a/", ParentPath("a/b/"))
	assert.Equal(t, "", ParentPath("a"))

	assert.Equal(t, "c.txt", Basename("a/b/c.txt"))
	assert.Equal(t, "b/", Basename("a/b/"))
	assert.Equal(t, "/", Basename(""))

	assert.True(t, IsDirPath(""))
	assert.True(t, IsDirPath("x/"))
	assert.False(t, IsDirPath("x"))
	assert.Equal(t, ModeDir, ModeFromPath("x/"))
	assert.Equal(t, ModeFile, ModeFromPath("x"))
}
