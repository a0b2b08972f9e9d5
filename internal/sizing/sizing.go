// Package sizing turns a consumption estimate into a PV array and battery
// recommendation. The arithmetic is deliberately transparent; installers
// adjust the parameters per site, not the code.
package sizing

import (
	"errors"
	"log/slog"
	"math"

	"github.com/voltmetric/billscan/internal/fusion"
)

// Parameters tune the recommendation to the installed hardware line.
type Parameters struct {
	PanelWattPeak  int     // nameplate watt-peak per panel
	YieldKwhPerKwp float64 // site-specific annual yield per installed kWp
	CoverageTarget float64 // fraction of annual consumption the array should produce
	AutonomyDays   float64 // days of average consumption the battery should carry
	BatteryStepKwh float64 // batteries ship in increments of this capacity
	MaxPanels      int     // roof bound; 0 means unbounded
	MinBatteryKwh  float64 // smallest shippable battery
}

// DefaultParameters returns sizing defaults for a typical central-European
// residential installation.
func DefaultParameters() Parameters {
	return Parameters{
		PanelWattPeak:  430,
		YieldKwhPerKwp: 1000,
		CoverageTarget: 1.0,
		AutonomyDays:   1.0,
		BatteryStepKwh: 2.5,
		MinBatteryKwh:  5.0,
	}
}

// Source records where the consumption figure came from.
type Source string

const (
	SourceScan   Source = "scan"
	SourceManual Source = "manual"
)

// Recommendation is the sizing output shown to the customer.
type Recommendation struct {
	Source        Source  `json:"source"`
	AnnualKwh     float64 `json:"annual_kwh"`
	AvgMonthlyKwh float64 `json:"avg_monthly_kwh"`
	ArrayKwp      float64 `json:"array_kwp"`
	PanelCount    int     `json:"panel_count"`
	BatteryKwh    float64 `json:"battery_kwh"`
	RoofLimited   bool    `json:"roof_limited,omitempty"`
}

// ErrNoConsumption is returned when neither the scan nor a manual entry
// yields a usable consumption figure.
var ErrNoConsumption = errors.New("no usable consumption figure: scan unusable and no manual value given")

// Recommend sizes the system. manualAvgKwh overrides the scanned estimate
// whenever it is positive; a failed or insufficient scan with no manual
// value is an error rather than a guessed system.
func Recommend(est fusion.ConsumptionEstimate, manualAvgKwh float64, p Parameters) (Recommendation, error) {
	var avg float64
	source := SourceScan
	switch {
	case manualAvgKwh > 0:
		avg = manualAvgKwh
		source = SourceManual
	case est.Status == fusion.StatusOk && est.AvgMonthlyKwh != nil:
		avg = *est.AvgMonthlyKwh
	default:
		return Recommendation{}, ErrNoConsumption
	}
	if avg <= 0 {
		return Recommendation{}, ErrNoConsumption
	}

	annual := avg * 12
	if source == SourceScan && est.AnnualKwh != nil {
		// The fused annual figure is exact for a full year of readings.
		annual = *est.AnnualKwh
	}

	rec := Recommendation{Source: source, AnnualKwh: annual, AvgMonthlyKwh: avg}

	targetKwp := annual * p.CoverageTarget / p.YieldKwhPerKwp
	rec.PanelCount = int(math.Ceil(targetKwp * 1000 / float64(p.PanelWattPeak)))
	if p.MaxPanels > 0 && rec.PanelCount > p.MaxPanels {
		rec.PanelCount = p.MaxPanels
		rec.RoofLimited = true
	}
	rec.ArrayKwp = float64(rec.PanelCount*p.PanelWattPeak) / 1000

	daily := annual / 365
	battery := math.Ceil(daily*p.AutonomyDays/p.BatteryStepKwh) * p.BatteryStepKwh
	if battery < p.MinBatteryKwh {
		battery = p.MinBatteryKwh
	}
	rec.BatteryKwh = battery

	slog.Debug("sizing computed",
		"source", source, "annual_kwh", annual,
		"panels", rec.PanelCount, "array_kwp", rec.ArrayKwp, "battery_kwh", battery)
	return rec, nil
}
