package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/zonestore/pkg/provider"
)

func entry(key string, size int64, mod time.Time) provider.ListEntry {
	return provider.ListEntry{
		Key:      key,
		Metadata: &provider.FileMetadata{Name: key, Size: size, LastModified: mod.UnixMilli()},
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"1024", 1024, false},
		{"1KB", 1000, false},
		{"1kb", 1000, false},
		{"1KiB", 1024, false},
		{"100MiB", 100 * MiB, false},
		{"1.5GB", 1500 * MB, false},
		{" 2 TB ", 2 * TB, false},
		{"", 0, true},
		{"KB", 0, true},
		{"10XB", 0, true},
		{"99999999999999999999", 0, true},
		{"9999999999TiB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512B", FormatSize(512))
	assert.Equal(t, "1.0KiB", FormatSize(KiB))
	assert.Equal(t, "1.5MiB", FormatSize(MiB+MiB/2))
	assert.Equal(t, "2.0GiB", FormatSize(2*GiB))
	assert.Equal(t, "1.0TiB", FormatSize(TiB))
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("2024-01-15T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC), got)

	got, err = ParseDate("2024-01-15T10:30:00.250Z")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))

	_, err = ParseDate("15/01/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestSizeFilter(t *testing.T) {
	f, err := NewSizeFilter("10", "100")
	require.NoError(t, err)
	mod := time.Now()

	assert.False(t, f.Match(entry("/a", 9, mod)))
	assert.True(t, f.Match(entry("/a", 10, mod)))
	assert.True(t, f.Match(entry("/a", 100, mod)))
	assert.False(t, f.Match(entry("/a", 101, mod)))
	assert.False(t, f.Match(provider.ListEntry{Key: "/a"}), "no metadata")
	assert.True(t, f.RequiresMetadata())
	assert.Equal(t, "size: 10B - 100B", f.String())

	f, err = NewSizeFilter("", "")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = NewSizeFilter("1MB", "1KB")
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestDateFilter(t *testing.T) {
	f, err := NewDateFilter("2024-01-01", "2024-02-01")
	require.NoError(t, err)

	assert.False(t, f.Match(entry("/a", 1, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC))))
	assert.True(t, f.Match(entry("/a", 1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	assert.False(t, f.Match(entry("/a", 1, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))), "before is exclusive")
	assert.Equal(t, "modified: 2024-01-01 to 2024-02-01", f.String())

	_, err = NewDateFilter("2024-02-01", "2024-01-01")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = NewDateFilter("yesterday", "")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestNewFilterFromConfig(t *testing.T) {
	f, err := NewFilterFromConfig(FilterConfig{})
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, f.Match(provider.ListEntry{Key: "/x"}), "nil filter matches")
	assert.False(t, f.RequiresMetadata())

	f, err = NewFilterFromConfig(FilterConfig{KeyRegex: `^/logs/\d+\.log$`})
	require.NoError(t, err)
	assert.False(t, f.RequiresMetadata())
	assert.True(t, f.Match(provider.ListEntry{Key: "/logs/42.log"}))
	assert.False(t, f.Match(provider.ListEntry{Key: "/logs/x.log"}))

	f, err = NewFilterFromConfig(FilterConfig{MinSize: "1KiB", After: "2024-01-01", KeyRegex: `\.bin$`})
	require.NoError(t, err)
	assert.True(t, f.RequiresMetadata())
	assert.Equal(t, "size: >= 1.0KiB, modified: on/after 2024-01-01, key_regex: \\.bin$", f.String())
	assert.True(t, f.Match(entry("/a.bin", 2048, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))))
	assert.False(t, f.Match(entry("/a.bin", 10, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))))

	_, err = NewFilterFromConfig(FilterConfig{KeyRegex: "("})
	assert.ErrorIs(t, err, ErrInvalidRegex)
}
