package powertree

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Validate inspects a model for structural faults and configuration gaps.
// The engine tolerates every gap it reports; the list explains where defaults
// will be substituted. Errors (cycles, duplicate ids, dangling sources) mean
// part of the tree will not reach the total.
func Validate(m *Model) []Issue {
	v := &validator{m: m, idx: newIndex(m), seen: make(map[Issue]bool)}

	v.checkNodes()
	v.checkCycles()
	v.checkSourceModes()
	v.checkComponentModes()
	v.checkUseCases()
	v.checkProfiles()

	sortIssues(v.issues)
	return v.issues
}

type validator struct {
	m      *Model
	idx    *index
	issues []Issue
	seen   map[Issue]bool
}

func (v *validator) add(kind IssueKind, subject, format string, args ...any) {
	issue := Issue{Kind: kind, NodeID: subject, Detail: fmt.Sprintf(format, args...)}
	if !v.seen[issue] {
		v.seen[issue] = true
		v.issues = append(v.issues, issue)
	}
}

func (v *validator) checkNodes() {
	ids := make(map[string]bool, len(v.m.Nodes))
	for _, n := range v.m.Nodes {
		if ids[n.ID] {
			v.add(IssueDuplicateID, n.ID, "node id is used more than once")
		}
		ids[n.ID] = true

		if n.Type != TypePowerSource && n.Type != TypeComponent {
			v.add(IssueUnknownReference, n.ID, "unknown node type %q, treated as a component", n.Type)
		}

		if n.InputSourceID == "" {
			continue
		}
		parent := v.idx.nodes[n.InputSourceID]
		switch {
		case parent == nil:
			v.add(IssueDanglingSource, n.ID, "input source %q does not exist", n.InputSourceID)
		case !parent.IsSource():
			v.add(IssueDanglingSource, n.ID, "input source %q is not a power source", n.InputSourceID)
		}
	}

	if v.m.BatteryNodeID != "" && v.idx.nodes[v.m.BatteryNodeID] == nil {
		v.add(IssueUnknownReference, v.m.BatteryNodeID, "battery node does not exist, using the first root source")
	}
	if v.m.BatteryCapacityMAh < 0 {
		v.add(IssueNegativeValue, "", "battery capacity %.3f mAh is negative", v.m.BatteryCapacityMAh)
	}
}

// checkCycles follows every node's input source chain, reporting each cycle once
func (v *validator) checkCycles() {
	inCycle := make(map[string]bool)
	for _, id := range v.idx.order {
		path := make(map[string]int)
		var chain []string
		for cur := id; cur != ""; {
			if inCycle[cur] {
				break
			}
			if at, ok := path[cur]; ok {
				loop := chain[at:]
				for _, c := range loop {
					inCycle[c] = true
				}
				v.add(IssueCycleDetected, slices.Min(loop), "input source cycle through %v", loop)
				break
			}
			path[cur] = len(chain)
			chain = append(chain, cur)

			n := v.idx.nodes[cur]
			if n == nil {
				break
			}
			cur = n.InputSourceID
		}
	}
}

func (v *validator) checkSourceModes() {
	for _, id := range v.idx.order {
		n := v.idx.nodes[id]
		if !n.IsSource() {
			continue
		}
		modes := v.m.SourceModes[id]
		if _, ok := modes[ModeOn]; !ok {
			v.add(IssueMissingOnMode, id, "power source has no On mode")
		}
		for _, name := range slices.Sorted(maps.Keys(modes)) {
			mode := modes[name]
			if mode.OutputVoltage < 0 {
				v.add(IssueNegativeValue, id, "mode %q output voltage %.3f V is negative", name, mode.OutputVoltage)
			}
			if mode.QuiescentCurrentMA < 0 {
				v.add(IssueNegativeValue, id, "mode %q quiescent current %.3f mA is negative", name, mode.QuiescentCurrentMA)
			}
			switch {
			case mode.Efficiency < 0 || mode.Efficiency > 1:
				v.add(IssueEfficiencyRange, id, "mode %q efficiency %.3f is outside (0, 1]", name, mode.Efficiency)
			case mode.Efficiency == 0 && mode.OutputVoltage > 0:
				v.add(IssueEfficiencyRange, id, "mode %q has output voltage but efficiency 0, it passes no load power", name)
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(v.m.SourceModes)) {
		if n := v.idx.nodes[id]; n == nil || !n.IsSource() {
			v.add(IssueUnknownReference, id, "source mode library entry for a node that is not a power source")
		}
	}
}

func (v *validator) checkComponentModes() {
	members := make(map[string]map[string]bool)
	for _, id := range v.idx.order {
		n := v.idx.nodes[id]
		if n.IsSource() {
			continue
		}
		if members[n.Group] == nil {
			members[n.Group] = make(map[string]bool)
		}
		members[n.Group][id] = true
	}

	for _, group := range slices.Sorted(maps.Keys(members)) {
		if len(v.m.ComponentModes[group]) == 0 {
			v.add(IssueUnknownComponentMode, group, "component group has no operating modes")
		}
	}

	for _, group := range slices.Sorted(maps.Keys(v.m.ComponentModes)) {
		if members[group] == nil {
			v.add(IssueUnknownReference, group, "operating modes defined for a group with no components")
			continue
		}
		modes := v.m.ComponentModes[group]
		for _, name := range slices.Sorted(maps.Keys(modes)) {
			currents := modes[name].CurrentsMA
			for _, id := range slices.Sorted(maps.Keys(currents)) {
				if !members[group][id] {
					v.add(IssueUnknownReference, group, "mode %q has a current for %q, which is not in the group", name, id)
				}
				if currents[id] < 0 {
					v.add(IssueNegativeValue, id, "mode %q current %.3f mA is negative", name, currents[id])
				}
			}
		}
	}
}

func (v *validator) checkUseCases() {
	groups := v.m.Groups()

	for _, name := range v.m.UseCaseNames() {
		uc := v.m.UseCases[name]

		for _, id := range slices.Sorted(maps.Keys(uc.PowerSources)) {
			n := v.idx.nodes[id]
			if n == nil || !n.IsSource() {
				v.add(IssueUnknownReference, name, "selects a mode for %q, which is not a power source", id)
				continue
			}
			mode := uc.PowerSources[id]
			if _, ok := v.m.SourceModes[id][mode]; !ok {
				v.add(IssueMissingSourceMode, name, "source %q mode %q not found, On will be used", id, mode)
			}
		}

		for _, group := range groups {
			if _, ok := uc.Components[group]; !ok {
				v.add(IssueMissingGroupBlend, name, "group %q has no mode selection, its components draw nothing", group)
			}
		}

		for _, group := range slices.Sorted(maps.Keys(uc.Components)) {
			if !slices.Contains(groups, group) {
				v.add(IssueUnknownReference, name, "blend for group %q, which has no components", group)
				continue
			}
			blend := uc.Components[group]
			for _, mode := range slices.Sorted(maps.Keys(blend)) {
				if blend[mode] < 0 {
					v.add(IssueNegativeValue, name, "group %q mode %q weight %.1f is negative", group, mode, blend[mode])
				}
				if _, ok := v.m.ComponentModes[group][mode]; !ok {
					v.add(IssueUnknownComponentMode, name, "group %q mode %q not found, it contributes nothing", group, mode)
				}
			}
			if total := blend.TotalWeight(); math.Abs(total-100) > 1e-9 {
				v.add(IssueBlendNot100, name, "group %q weights total %.1f%%", group, total)
			}
		}
	}
}

func (v *validator) checkProfiles() {
	for _, name := range v.m.ProfileNames() {
		profile := v.m.Profiles[name]
		for _, useCase := range slices.Sorted(maps.Keys(profile)) {
			if _, ok := v.m.UseCases[useCase]; !ok {
				v.add(IssueUnknownUseCase, name, "use case %q does not exist, its hours draw nothing", useCase)
			}
			if profile[useCase] < 0 {
				v.add(IssueNegativeValue, name, "use case %q has %.1f hours", useCase, profile[useCase])
			}
		}
		if total := profile.TotalHours(); math.Abs(total-HoursPerDay) > 1e-9 {
			v.add(IssueHoursNotDay, name, "hours total %.1f / 24", total)
		}
	}
}
