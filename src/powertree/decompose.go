package powertree

import (
	"cmp"
	"fmt"
	"slices"
)

// ContributionKind classifies a breakdown row
type ContributionKind int

const (
	ComponentLoad ContributionKind = iota
	QuiescentLoss
	EfficiencyLoss
	OtherContributions
)

func (k ContributionKind) String() string {
	switch k {
	case ComponentLoad:
		return "Component Load"
	case QuiescentLoss:
		return "Quiescent Loss"
	case EfficiencyLoss:
		return "Efficiency Loss"
	case OtherContributions:
		return "Others"
	default:
		return "Unknown"
	}
}

// Contribution is one row of the battery-rail power breakdown
type Contribution struct {
	Source  string // Component group, or "<source label> (Iq Loss)" style label
	Kind    ContributionKind
	NodeID  string // Loss rows only: the regulator responsible
	PowerMW float64
}

// DecomposeOptions selects the breakdown view
type DecomposeOptions struct {
	// SplitEfficiencyLoss reports loads and quiescent draws at the rail that
	// feeds them and lists every conversion stage's loss as its own row.
	// Otherwise each load and quiescent draw is root-referred through every
	// efficiency between it and the battery, absorbing those losses.
	SplitEfficiencyLoss bool
}

// Decompose re-expresses every load and loss of a propagation result as
// battery-rail power. Only positive loads and losses get rows, so with no
// negative currents in the model both views sum to the total system power.
// Loads behind a dead conversion stage (efficiency 0) or outside any rooted
// tree contribute nothing, matching Propagate.
func Decompose(res *Result, opts DecomposeOptions) []Contribution {
	d := decomposer{r: res.Resolved, split: opts.SplitEfficiencyLoss}
	idx := res.Resolved.idx

	groupPower := make(map[string]float64)
	var groupOrder []string
	var rows []Contribution

	for _, id := range idx.order {
		n := idx.nodes[id]
		np, ok := res.Nodes[id]
		if !ok || !np.Reachable {
			continue
		}

		if !n.IsSource() {
			if np.InputPowerMW <= 0 {
				continue
			}
			referredMW := d.toRoot(np.InputPowerMW, n.InputSourceID)
			if referredMW == 0 {
				continue
			}
			if _, seen := groupPower[n.Group]; !seen {
				groupOrder = append(groupOrder, n.Group)
			}
			groupPower[n.Group] += referredMW
			continue
		}

		src := d.r.Sources[id]

		// Quiescent draw bypasses the source's own conversion stage,
		// so it is referred from the parent rail
		if iqMW := d.toRoot(np.QuiescentPowerMW, n.InputSourceID); np.QuiescentPowerMW > 0 && iqMW != 0 {
			rows = append(rows, Contribution{
				Source:  n.DisplayName() + " (Iq Loss)",
				Kind:    QuiescentLoss,
				NodeID:  id,
				PowerMW: iqMW,
			})
		}

		if d.split && src.Efficiency > 0 && src.Efficiency < 1 && np.OutputPowerMW > 0 {
			lossMW := np.OutputPowerMW * (1/src.Efficiency - 1)
			rows = append(rows, Contribution{
				Source:  n.DisplayName() + " (Efficiency Loss)",
				Kind:    EfficiencyLoss,
				NodeID:  id,
				PowerMW: d.toRoot(lossMW, n.InputSourceID),
			})
		}
	}

	for _, group := range groupOrder {
		rows = append(rows, Contribution{
			Source:  group,
			Kind:    ComponentLoad,
			PowerMW: groupPower[group],
		})
	}

	sortContributions(rows)
	return rows
}

type decomposer struct {
	r     *Resolved
	split bool
}

// toRoot walks from startID up to a root, dividing by each efficiency on the
// way (root included) unless losses are split out. An efficiency of 0, a
// dangling reference or a cycle makes the path unreachable and yields 0.
// An empty startID means the power is already on a root's input.
func (d decomposer) toRoot(powerMW float64, startID string) float64 {
	factor := 1.0
	cur := startID
	for steps := 0; cur != ""; steps++ {
		n := d.r.idx.nodes[cur]
		if n == nil || !n.IsSource() || steps > len(d.r.idx.order) {
			return 0
		}
		eff := d.r.Sources[cur].Efficiency
		if eff <= 0 {
			return 0
		}
		if !d.split {
			factor /= eff
		}
		cur = n.InputSourceID
	}
	return powerMW * factor
}

// Total sums the power of every row
func Total(rows []Contribution) float64 {
	var total float64
	for _, row := range rows {
		total += row.PowerMW
	}
	return total
}

// Share returns a row's fraction of the total, 0 when the total is not positive
func Share(row Contribution, totalMW float64) float64 {
	if totalMW <= 0 {
		return 0
	}
	return row.PowerMW / totalMW
}

// Collapse merges rows below minShare of the total into a single Others row.
// This is presentational; the merged row keeps the merged power.
// Rows are returned unchanged when the total is not positive.
func Collapse(rows []Contribution, minShare float64, label string) []Contribution {
	if label == "" {
		label = fmt.Sprintf("Others (<%g%%)", minShare*100)
	}
	total := Total(rows)
	if total <= 0 {
		return rows
	}

	kept := make([]Contribution, 0, len(rows))
	var otherMW float64
	var merged int
	for _, row := range rows {
		if Share(row, total) < minShare {
			otherMW += row.PowerMW
			merged++
			continue
		}
		kept = append(kept, row)
	}

	if merged > 0 && otherMW != 0 {
		kept = append(kept, Contribution{
			Source:  label,
			Kind:    OtherContributions,
			PowerMW: otherMW,
		})
	}
	return kept
}

// sortContributions orders rows by descending power, then source label
func sortContributions(rows []Contribution) {
	slices.SortStableFunc(rows, func(a, b Contribution) int {
		return cmp.Or(
			cmp.Compare(b.PowerMW, a.PowerMW),
			cmp.Compare(a.Source, b.Source),
		)
	})
}
