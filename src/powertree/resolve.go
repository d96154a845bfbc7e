package powertree

import (
	"fmt"
	"maps"
	"slices"
)

// ResolvedSource is a power source's electrical state under one use case
type ResolvedSource struct {
	Mode               string
	OutputVoltage      float64 // V
	Efficiency         float64 // 0-1
	QuiescentCurrentMA float64 // mA
}

// Resolved holds the concrete per-node parameters of one use case.
// It references the model it was resolved from and never modifies it.
type Resolved struct {
	UseCase          string
	Model            *Model
	Sources          map[string]ResolvedSource
	ComponentPowerMW map[string]float64
	Issues           []Issue

	idx *index
}

// Voltage returns the resolved output voltage of a source, 0 when unknown
func (r *Resolved) Voltage(sourceID string) float64 {
	return r.Sources[sourceID].OutputVoltage
}

// Resolve applies the named use case to the model
func Resolve(m *Model, useCase string) (*Resolved, error) {
	uc, ok := m.UseCases[useCase]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUseCase, useCase)
	}
	return ResolveUseCase(m, useCase, uc), nil
}

// ResolveUseCase applies a use case definition to the model.
// Every source is resolved before any component, because a component's power
// depends on its source's voltage in this scenario.
func ResolveUseCase(m *Model, name string, uc UseCase) *Resolved {
	r := &Resolved{
		UseCase:          name,
		Model:            m,
		Sources:          make(map[string]ResolvedSource),
		ComponentPowerMW: make(map[string]float64),
		idx:              newIndex(m),
	}
	seen := make(map[Issue]bool)
	note := func(issue Issue) {
		if !seen[issue] {
			seen[issue] = true
			r.Issues = append(r.Issues, issue)
		}
	}

	for _, id := range r.idx.order {
		n := r.idx.nodes[id]
		if !n.IsSource() {
			continue
		}
		r.Sources[id] = resolveSource(m, n, uc, note)
	}

	for _, id := range r.idx.order {
		n := r.idx.nodes[id]
		if n.IsSource() {
			continue
		}
		r.ComponentPowerMW[id] = r.componentPower(n, uc, note)
	}

	sortIssues(r.Issues)
	return r
}

// resolveSource picks the selected mode, falling back to On when the
// selection is unset or no longer exists in the library
func resolveSource(m *Model, n *Node, uc UseCase, note func(Issue)) ResolvedSource {
	modes := m.SourceModes[n.ID]

	name := uc.PowerSources[n.ID]
	mode, ok := modes[name]
	if !ok {
		if name != "" && name != ModeOn {
			note(Issue{
				Kind:   IssueMissingSourceMode,
				NodeID: n.ID,
				Detail: fmt.Sprintf("mode %q not found, using %s", name, ModeOn),
			})
		}
		name = ModeOn
		mode, ok = modes[ModeOn]
		if !ok {
			note(Issue{
				Kind:   IssueMissingOnMode,
				NodeID: n.ID,
				Detail: "no On mode defined, treating source as dead",
			})
			mode = SourceMode{}
		}
	}

	return ResolvedSource{
		Mode:               name,
		OutputVoltage:      mode.OutputVoltage,
		Efficiency:         mode.Efficiency,
		QuiescentCurrentMA: mode.QuiescentCurrentMA,
	}
}

// componentPower blends the group's modes at the supplying source's resolved voltage
func (r *Resolved) componentPower(n *Node, uc UseCase, note func(Issue)) float64 {
	blend, ok := uc.Components[n.Group]
	if !ok {
		note(Issue{
			Kind:   IssueMissingGroupBlend,
			NodeID: n.Group,
			Detail: "group has no mode selection, components are inert",
		})
		return 0
	}

	var voltage float64
	if src := r.idx.source(n); src != nil {
		voltage = r.Sources[src.ID].OutputVoltage
	}

	library := r.Model.ComponentModes[n.Group]

	// Fixed mode order keeps the floating-point sum deterministic
	var powerMW float64
	for _, modeName := range slices.Sorted(maps.Keys(blend)) {
		weight := blend[modeName]
		if weight <= 0 {
			continue
		}
		mode, ok := library[modeName]
		if !ok {
			note(Issue{
				Kind:   IssueUnknownComponentMode,
				NodeID: n.Group,
				Detail: fmt.Sprintf("mode %q not found, contributes nothing", modeName),
			})
			continue
		}
		currentMA := mode.CurrentsMA[n.ID]
		powerMW += voltage * currentMA * (weight / 100)
	}
	return powerMW
}
