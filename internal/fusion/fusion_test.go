package fusion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmetric/billscan/internal/recognize"
)

func candidate(value int, conf, x float64) recognize.LabelCandidate {
	v := value
	return recognize.LabelCandidate{Value: &v, Confidence: conf, RawText: fmt.Sprintf("%d", value), XCenter: x}
}

func nullCandidate(x float64) recognize.LabelCandidate {
	return recognize.LabelCandidate{Confidence: 10, RawText: "??", XCenter: x}
}

// Thirteen recognized bars: the oldest is dropped and the remaining twelve
// sum exactly.
func TestFuseThirteenMonths(t *testing.T) {
	values := []int{300, 320, 310, 330, 340, 350, 360, 370, 380, 390, 400, 410, 450}
	cands := make([]recognize.LabelCandidate, len(values))
	for i, v := range values {
		cands[i] = candidate(v, 90, float64(i*40))
	}

	est := Fuse(cands, 0, DefaultConfig())
	require.Equal(t, StatusOk, est.Status)
	assert.Equal(t, 12, est.MonthsUsed)
	assert.Equal(t, values[1:], est.ValuesUsed, "oldest month must be dropped")

	sum := 0
	for _, v := range values[1:] {
		sum += v
	}
	require.NotNil(t, est.AnnualKwh)
	assert.InDelta(t, float64(sum), *est.AnnualKwh, 1e-9, "annual is the exact sum at twelve months")
	assert.False(t, est.Estimated)
	require.NotNil(t, est.AvgMonthlyKwh)
	assert.InDelta(t, float64(sum)/12, *est.AvgMonthlyKwh, 1e-9)
}

// Five bars, one unreadable: four values yield an estimated annual figure.
func TestFusePartialSeriesEstimates(t *testing.T) {
	cands := []recognize.LabelCandidate{
		candidate(200, 80, 0),
		candidate(210, 85, 40),
		nullCandidate(80),
		candidate(220, 90, 120),
		candidate(230, 95, 160),
	}

	est := Fuse(cands, 0, DefaultConfig())
	require.Equal(t, StatusOk, est.Status)
	assert.Equal(t, 4, est.MonthsUsed)
	assert.Equal(t, []int{200, 210, 220, 230}, est.ValuesUsed)
	assert.True(t, est.Estimated)

	avg := float64(200+210+220+230) / 4
	require.NotNil(t, est.AvgMonthlyKwh)
	assert.InDelta(t, avg, *est.AvgMonthlyKwh, 1e-9)
	require.NotNil(t, est.AnnualKwh)
	assert.InDelta(t, avg*12, *est.AnnualKwh, 1e-9)
	assert.InDelta(t, (80.0+85+90+95)/4, est.Confidence, 1e-9)
}

// Three valid values is below the hard floor.
func TestFuseFloorEnforcement(t *testing.T) {
	cands := []recognize.LabelCandidate{
		candidate(200, 80, 0),
		candidate(210, 85, 40),
		candidate(220, 90, 80),
	}

	est := Fuse(cands, 0, DefaultConfig())
	assert.Equal(t, StatusInsufficient, est.Status)
	assert.Nil(t, est.AvgMonthlyKwh)
	assert.Nil(t, est.AnnualKwh)
	assert.Zero(t, est.MonthsUsed)
	assert.Contains(t, est.Message, "manually")
}

func TestFuseNoCandidates(t *testing.T) {
	est := Fuse(nil, 0, DefaultConfig())
	assert.Equal(t, StatusInsufficient, est.Status)
}

// Values must stay in left-to-right temporal order, never reordered by
// value or confidence.
func TestFuseOrderingInvariant(t *testing.T) {
	cands := []recognize.LabelCandidate{
		candidate(900, 50, 120),
		candidate(100, 99, 0),
		candidate(500, 70, 80),
		candidate(300, 90, 40),
	}

	est := Fuse(cands, 0, DefaultConfig())
	require.Equal(t, StatusOk, est.Status)
	assert.Equal(t, []int{100, 300, 500, 900}, est.ValuesUsed)
}

func TestFuseDeduplicatesCloseCandidates(t *testing.T) {
	cands := []recognize.LabelCandidate{
		candidate(200, 80, 0),
		candidate(210, 85, 40),
		// Two recognitions of the same bar, 2px apart; higher confidence wins.
		candidate(400, 60, 80),
		candidate(420, 95, 82),
		candidate(230, 90, 120),
		candidate(240, 90, 160),
	}

	est := Fuse(cands, 0, DefaultConfig())
	require.Equal(t, StatusOk, est.Status)
	assert.Equal(t, []int{200, 210, 420, 230, 240}, est.ValuesUsed)
	assert.Equal(t, 5, est.MonthsUsed)
}

func TestFuseIdempotent(t *testing.T) {
	cands := []recognize.LabelCandidate{
		candidate(200, 80, 0),
		candidate(210, 85, 40),
		candidate(220, 90, 80),
		candidate(230, 95, 120),
	}
	first := Fuse(cands, 0, DefaultConfig())
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Fuse(cands, 0, DefaultConfig()))
	}
}

func TestFuseCommercialAdvisory(t *testing.T) {
	cands := []recognize.LabelCandidate{
		nullCandidate(0), nullCandidate(40), nullCandidate(80),
	}
	est := Fuse(cands, 5, DefaultConfig())
	assert.Equal(t, StatusInsufficient, est.Status)
	assert.True(t, est.CommercialAdvisory)

	est = Fuse(cands, 1, DefaultConfig())
	assert.False(t, est.CommercialAdvisory)
}

func TestErrorEstimate(t *testing.T) {
	est := ErrorEstimate("image decode failed: bad header")
	assert.Equal(t, StatusError, est.Status)
	assert.Equal(t, "image decode failed: bad header", est.Message)
	assert.Nil(t, est.AnnualKwh)
}

func TestInsufficientEstimate(t *testing.T) {
	est := InsufficientEstimate("only 2 bars detected where at least 4 are required")
	assert.Equal(t, StatusInsufficient, est.Status)
	assert.Equal(t, "only 2 bars detected where at least 4 are required", est.Message)
	assert.Nil(t, est.AvgMonthlyKwh)
	assert.False(t, est.CommercialAdvisory)
}
