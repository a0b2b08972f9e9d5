package recognize

import (
	"strconv"
	"strings"
	"unicode"
)

// Valid monthly residential consumption range in kWh. Values outside this
// range are recognition noise, never clamped into validity.
const (
	MinKwh = 20
	MaxKwh = 3000
)

// LabelCandidate is the outcome of recognizing one label region. Value is
// nil when no integer in [MinKwh, MaxKwh] could be parsed.
type LabelCandidate struct {
	Value      *int
	Confidence float64 // 0-100
	RawText    string
	XCenter    float64 // source bar center, set before any reordering
}

// ParseLabel extracts a validated kWh integer from raw recognition text.
// All digits are concatenated first (engines often split a label into
// spaced groups). Runs of at most 4 digits are tried directly. Longer runs
// had noise merged in; those are trusted only when the last 4, 3 and 2
// digit suffixes all fall inside the valid range, in which case the longest
// suffix wins. A single out-of-range suffix marks the whole run as noise.
// Returns nil when no candidate qualifies.
func ParseLabel(raw string) *int {
	digits := keepDigits(raw)
	if digits == "" {
		return nil
	}

	if len(digits) <= 4 {
		if v, ok := parseInRange(digits); ok {
			return &v
		}
		return nil
	}

	suffixes := []string{
		digits[len(digits)-4:],
		digits[len(digits)-3:],
		digits[len(digits)-2:],
	}
	first := 0
	for i, s := range suffixes {
		v, ok := parseInRange(s)
		if !ok {
			return nil
		}
		if i == 0 {
			first = v
		}
	}
	return &first
}

func parseInRange(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	if v < MinKwh || v > MaxKwh {
		return 0, false
	}
	return v, true
}

// IsHighNoise reports whether the raw text reads as a number above the
// valid range. Such labels are excluded from the series but counted toward
// the commercial-usage advisory.
func IsHighNoise(raw string) bool {
	v, err := strconv.Atoi(keepDigits(raw))
	return err == nil && v > MaxKwh
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
