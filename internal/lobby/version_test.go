package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.2", "1.2.0", 0},
		{"1.2.0.0", "1.2", 0},
		{"1.10.0", "1.9.9", 1},
		{"1.1.0", "1.2.0", -1},
		{"2", "1.99", 1},
		{"0.9", "1", -1},
		// non-numeric components fall back to string order
		{"1.2.0-beta", "1.2.0", 1},
		{"abc", "abd", -1},
		{"1.2.", "1.2", 1},
		{"", "1.0", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
