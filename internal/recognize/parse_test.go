package recognize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *int
	}{
		{name: "plain three digits", raw: "825", want: intPtr(825)},
		{name: "spaced digits concatenate", raw: "8 2 5", want: intPtr(825)},
		{name: "digits with stray punctuation", raw: " 1.250 ", want: intPtr(1250)},
		{name: "four digit value", raw: "2980", want: intPtr(2980)},
		{name: "minimum of range", raw: "20", want: intPtr(20)},
		{name: "maximum of range", raw: "3000", want: intPtr(3000)},
		{name: "below range", raw: "19", want: nil},
		{name: "above range", raw: "3001", want: nil},
		{name: "way above range", raw: "8500", want: nil},
		{name: "merged noise rejected", raw: "42500", want: nil},
		{name: "merged run with consistent suffixes", raw: "11825", want: intPtr(1825)},
		{name: "no digits", raw: "kWh", want: nil},
		{name: "empty", raw: "", want: nil},
		{name: "zero padded noise", raw: "000", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLabel(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got, "raw %q", tt.raw)
				return
			}
			require.NotNil(t, got, "raw %q", tt.raw)
			assert.Equal(t, *tt.want, *got, "raw %q", tt.raw)
		})
	}
}

// Values outside [20,3000] must never be clamped into validity.
func TestParseLabelNeverClamps(t *testing.T) {
	for _, raw := range []string{"5", "19", "3001", "9999"} {
		assert.Nil(t, ParseLabel(raw), "raw %q", raw)
	}
}

func intPtr(v int) *int { return &v }
