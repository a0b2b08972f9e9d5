// Package fusion orders recognized label candidates into a temporal series
// and produces the final consumption estimate.
package fusion

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/voltmetric/billscan/internal/recognize"
)

// Status is the terminal state of one estimation run.
type Status string

const (
	StatusOk           Status = "ok"
	StatusInsufficient Status = "insufficient"
	StatusError        Status = "error"
)

// Config holds fusion tuning constants.
type Config struct {
	MinMonths      int     // hard floor below which no estimate is produced
	MaxMonths      int     // most recent months considered
	DupSpacingFrac float64 // adjacent candidates closer than this fraction of the expected bar spacing are duplicates
}

// DefaultConfig returns the default fusion configuration.
func DefaultConfig() Config {
	return Config{
		MinMonths:      4,
		MaxMonths:      12,
		DupSpacingFrac: 0.5,
	}
}

// ConsumptionEstimate is the pipeline's final output, consumed by the
// sizing calculator. Immutable after construction.
type ConsumptionEstimate struct {
	MonthsUsed    int      `json:"months_used"`
	ValuesUsed    []int    `json:"values_used"`
	AvgMonthlyKwh *float64 `json:"avg_monthly_kwh"`
	AnnualKwh     *float64 `json:"annual_kwh"`
	Confidence    float64  `json:"confidence"`
	Status        Status   `json:"status"`
	// Estimated is true when AnnualKwh is extrapolated from fewer than
	// twelve months rather than summed exactly.
	Estimated bool   `json:"estimated"`
	Message   string `json:"message,omitempty"`
	// CommercialAdvisory is set when out-of-range-high readings dominate,
	// suggesting commercial-scale usage the residential range filter
	// excluded. Advisory only; values are never fabricated from it.
	CommercialAdvisory bool `json:"commercial_advisory,omitempty"`
}

// ErrorEstimate builds the terminal estimate for an unrecoverable pipeline
// failure. The message is surfaced verbatim, never swallowed into a bogus
// zero estimate.
func ErrorEstimate(msg string) ConsumptionEstimate {
	return ConsumptionEstimate{Status: StatusError, Message: msg}
}

// InsufficientEstimate builds the terminal estimate for a run that ended
// before recognition, with a message describing what little structure was
// found. The generic "values could be read" wording would be misleading
// when no label was ever sent to an engine.
func InsufficientEstimate(msg string) ConsumptionEstimate {
	return ConsumptionEstimate{Status: StatusInsufficient, Message: msg}
}

// Fuse turns recognized candidates into a consumption estimate.
// highRejections counts labels discarded for exceeding the valid range,
// feeding the commercial-usage advisory.
func Fuse(candidates []recognize.LabelCandidate, highRejections int, cfg Config) ConsumptionEstimate {
	valid := make([]recognize.LabelCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Value != nil {
			valid = append(valid, c)
		}
	}
	// Left-to-right is oldest-to-newest on this chart layout.
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].XCenter < valid[j].XCenter })
	valid = dedupe(valid, cfg.DupSpacingFrac)

	est := ConsumptionEstimate{
		CommercialAdvisory: highRejections > len(valid) && highRejections >= 2,
	}

	if len(valid) < cfg.MinMonths {
		est.Status = StatusInsufficient
		est.Message = fmt.Sprintf(
			"only %d of the required %d monthly values could be read; please enter your average monthly consumption manually",
			len(valid), cfg.MinMonths)
		slog.Info("fusion: insufficient recognized labels", "valid", len(valid), "floor", cfg.MinMonths)
		return est
	}

	// The rightmost values are the most recent months.
	if len(valid) > cfg.MaxMonths {
		valid = valid[len(valid)-cfg.MaxMonths:]
	}

	sum := 0
	conf := 0.0
	values := make([]int, len(valid))
	for i, c := range valid {
		values[i] = *c.Value
		sum += *c.Value
		conf += c.Confidence
	}

	est.Status = StatusOk
	est.MonthsUsed = len(values)
	est.ValuesUsed = values
	est.Confidence = conf / float64(len(valid))

	avg := float64(sum) / float64(len(values))
	est.AvgMonthlyKwh = &avg
	var annual float64
	if len(values) == cfg.MaxMonths {
		// A full year of readings sums exactly.
		annual = float64(sum)
	} else {
		annual = avg * float64(cfg.MaxMonths)
		est.Estimated = true
		est.Message = fmt.Sprintf("annual figure estimated from %d recognized months", len(values))
	}
	est.AnnualKwh = &annual

	slog.Debug("fusion complete",
		"months_used", est.MonthsUsed, "avg_kwh", avg, "annual_kwh", annual,
		"estimated", est.Estimated, "confidence", est.Confidence)
	return est
}

// dedupe removes double recognitions of the same bar: adjacent candidates
// closer than spacingFrac of the expected bar spacing collapse to the one
// with higher confidence. Input must be sorted by XCenter.
func dedupe(sorted []recognize.LabelCandidate, spacingFrac float64) []recognize.LabelCandidate {
	if len(sorted) < 2 {
		return sorted
	}
	spacing := (sorted[len(sorted)-1].XCenter - sorted[0].XCenter) / float64(len(sorted)-1)
	if spacing <= 0 {
		return sorted
	}
	minGap := spacing * spacingFrac

	out := sorted[:1]
	for _, c := range sorted[1:] {
		last := &out[len(out)-1]
		if c.XCenter-last.XCenter < minGap {
			if c.Confidence > last.Confidence {
				*last = c
			}
			continue
		}
		out = append(out, c)
	}
	return out
}
