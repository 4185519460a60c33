package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Size
		wantErr  bool
	}{
		{"bare number is bytes", "4096", 4096, false},
		{"bytes with B", "512B", 512, false},
		{"kilobytes", "8KB", 8 * KB, false},
		{"kilobytes short unit", "8K", 8 * KB, false},
		{"kibibytes", "8KiB", 8 * KB, false},
		{"megabytes", "64MB", 64 * MB, false},
		{"megabytes with space", "64 MB", 64 * MB, false},
		{"megabytes lowercase", "64mb", 64 * MB, false},
		{"gigabytes", "2GB", 2 * GB, false},
		{"terabytes", "1TB", TB, false},
		{"fractional", "1.5GB", Size(1.5 * float64(GB)), false},
		{"leading whitespace", "  10MB  ", 10 * MB, false},

		{"empty string", "", 0, true},
		{"unknown unit", "5XB", 0, true},
		{"no number", "MB", 0, true},
		{"negative", "-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    Size
		expected string
	}{
		{"zero", 0, "0B"},
		{"bytes", 512, "512B"},
		{"whole kilobytes", 8 * KB, "8KB"},
		{"whole megabytes", 64 * MB, "64MB"},
		{"fractional gigabytes", Size(1.5 * float64(GB)), "1.5GB"},
		{"negative", -2 * MB, "-2MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.input))
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []Size{1, KB, 5 * MB, 2 * GB} {
		parsed, err := Parse(Format(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, 64*MB, MustParse("64MB"))
	assert.Panics(t, func() { MustParse("bogus") })
}
