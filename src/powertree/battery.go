package powertree

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// HoursPerDay is the day length a usage profile is expected to cover
const HoursPerDay = 24.0

// LifeState says whether a battery-life figure is a number, unbounded, or unknowable
type LifeState int

const (
	LifeFinite LifeState = iota
	LifeInfinite
	LifeUnknown // Rail voltage not positive, so current cannot be derived
)

// Estimate is the projected daily average draw and battery runtime of a usage profile
type Estimate struct {
	AvgPowerMW   float64
	AvgCurrentMA float64 // 0 when Life is LifeUnknown
	LifeDays     float64 // Only meaningful when Life is LifeFinite
	Life         LifeState
	TotalHours   float64
	HoursWarning bool // Profile hours do not total 24; the estimate still proceeds
}

func (e Estimate) String() string {
	switch e.Life {
	case LifeInfinite:
		return "Infinite"
	case LifeUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("%.2f Days", e.LifeDays)
	}
}

// LifeHours returns the runtime in hours, +Inf when unbounded and 0 when unknown
func (e Estimate) LifeHours() float64 {
	switch e.Life {
	case LifeInfinite:
		return math.Inf(1)
	case LifeUnknown:
		return 0
	default:
		return e.LifeDays * HoursPerDay
	}
}

// EstimateLife combines per-use-case total power with a usage profile.
// Average power is energy-weighted over a 24 hour day, whatever the profile's
// hours add up to. Use cases missing from powerMW contribute nothing.
func EstimateLife(
	profile UsageProfile,
	powerMW map[string]float64,
	capacityMAh float64,
	railVoltage float64,
) Estimate {
	var energyMWh float64
	for _, useCase := range slices.Sorted(maps.Keys(profile)) {
		energyMWh += powerMW[useCase] * profile[useCase]
	}

	e := Estimate{
		AvgPowerMW: energyMWh / HoursPerDay,
		TotalHours: profile.TotalHours(),
	}
	e.HoursWarning = math.Abs(e.TotalHours-HoursPerDay) > 1e-9

	if railVoltage <= 0 {
		e.Life = LifeUnknown
		return e
	}
	e.AvgCurrentMA = e.AvgPowerMW / railVoltage

	if e.AvgCurrentMA <= 0 {
		e.Life = LifeInfinite
		return e
	}

	// mAh / mA = hours
	e.LifeDays = capacityMAh / e.AvgCurrentMA / HoursPerDay
	e.Life = LifeFinite
	return e
}
