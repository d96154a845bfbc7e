package powertree

import (
	"context"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Evaluation holds every use case's propagation result and every profile's
// battery-life estimate for one model snapshot
type Evaluation struct {
	Results     map[string]*Result
	Estimates   map[string]Estimate
	RailVoltage float64 // Battery rail On voltage used for the estimates
}

// EvaluateAll propagates every use case concurrently and estimates battery
// life for every usage profile. Use cases are independent and only read the
// model, so no locking is needed. workers <= 0 runs one goroutine per use case.
func EvaluateAll(ctx context.Context, m *Model, workers int) (*Evaluation, error) {
	names := m.UseCaseNames()
	results := make([]*Result, len(names))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = Propagate(ResolveUseCase(m, name, m.UseCases[name]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ev := &Evaluation{
		Results:     make(map[string]*Result, len(names)),
		Estimates:   make(map[string]Estimate, len(m.Profiles)),
		RailVoltage: m.RailVoltage(),
	}
	for i, name := range names {
		ev.Results[name] = results[i]
	}

	powerMW := ev.PowerByUseCase()
	for name, profile := range m.Profiles {
		ev.Estimates[name] = EstimateLife(profile, powerMW, m.BatteryCapacityMAh, ev.RailVoltage)
	}
	return ev, nil
}

// PowerByUseCase returns total system power (mW) keyed by use case name
func (ev *Evaluation) PowerByUseCase() map[string]float64 {
	powerMW := make(map[string]float64, len(ev.Results))
	for name, res := range ev.Results {
		powerMW[name] = res.TotalPowerMW
	}
	return powerMW
}

// Issues returns the distinct issues raised across every use case
func (ev *Evaluation) Issues() []Issue {
	seen := make(map[Issue]bool)
	var issues []Issue
	for _, name := range slices.Sorted(maps.Keys(ev.Results)) {
		for _, issue := range ev.Results[name].Issues {
			if !seen[issue] {
				seen[issue] = true
				issues = append(issues, issue)
			}
		}
	}
	sortIssues(issues)
	return issues
}
