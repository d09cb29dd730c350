package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		raw      string
		expected int
		wantErr  bool
	}{
		{raw: "30", expected: 30},
		{raw: "30%", expected: 30},
		{raw: " 45 % ", expected: 45},
		{raw: "0%", expected: 0},
		{raw: "150", expected: 150},
		{raw: "-5", expected: -5},
		{raw: "", wantErr: true},
		{raw: "half", wantErr: true},
		{raw: "30%%", wantErr: true},
		{raw: "3 0", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseLevel(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestFormatLevel(t *testing.T) {
	assert.Equal(t, "30%", FormatLevel(30))
	assert.Equal(t, "100%", FormatLevel(100))
}

func TestClamp(t *testing.T) {
	for l := -20; l <= 120; l++ {
		got := Clamp(l)
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, 100)
		if l >= 0 && l <= 100 {
			assert.Equal(t, l, got)
		}
	}
}
