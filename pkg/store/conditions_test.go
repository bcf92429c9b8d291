package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConditionsCheck(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	meta := Metadata{
		Mode:         ModeFile,
		ETag:         `"v1"`,
		Version:      "3",
		LastModified: modified,
	}

	tests := []struct {
		name string
		cond Conditions
		ok   bool
	}{
		{"no conditions", Conditions{}, true},
		{"if_match hit", Conditions{IfMatch: `"v1"`}, true},
		{"if_match star", Conditions{IfMatch: "*"}, true},
		{"if_match miss", Conditions{IfMatch: `"v2"`}, false},
		{"if_none_match hit", Conditions{IfNoneMatch: `"v1"`}, false},
		{"if_none_match star", Conditions{IfNoneMatch: "*"}, false},
		{"if_none_match miss", Conditions{IfNoneMatch: `"v2"`}, true},
		{"modified since before", Conditions{IfModifiedSince: modified.Add(-time.Hour)}, true},
		{"modified since after", Conditions{IfModifiedSince: modified.Add(time.Hour)}, false},
		{"unmodified since after", Conditions{IfUnmodifiedSince: modified.Add(time.Hour)}, true},
		{"unmodified since before", Conditions{IfUnmodifiedSince: modified.Add(-time.Hour)}, false},
		{"version hit", Conditions{Version: "3"}, true},
		{"version miss", Conditions{Version: "2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cond.Check(meta)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrConditionNotMatch)
		})
	}
}

func TestConditionsWithoutLastModified(t *testing.T) {
	cond := Conditions{IfModifiedSince: time.Now()}
	assert.ErrorIs(t, cond.Check(Metadata{}), ErrConditionNotMatch)
}

func TestOpConditions(t *testing.T) {
	assert.False(t, OpStat{}.HasConditions())
	assert.True(t, OpStat{Version: "1"}.HasConditions())

	read := OpRead{IfMatch: "x", Range: NewRange(0, 1)}
	assert.Equal(t, "x", read.ToStat().IfMatch)
	assert.True(t, read.Conditions().Any())

	assert.True(t, OpWrite{IfNotExists: true}.IsConditional())
	assert.False(t, OpWrite{}.IsConditional())
	assert.True(t, OpWrite{Chunk: 5}.IsMultipart())
	assert.True(t, OpWrite{Concurrent: 4}.IsMultipart())
	assert.False(t, OpWrite{Append: true, Chunk: 5}.IsMultipart())
}
