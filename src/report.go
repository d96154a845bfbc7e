package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/ryansname/powertree/src/powertree"
)

// writeSummary prints every use case's total power and battery rail current
func writeSummary(w io.Writer, ev *powertree.Evaluation) {
	names := slices.Sorted(maps.Keys(ev.Results))
	width := len("Use case")
	for _, name := range names {
		width = max(width, len(name))
	}

	fmt.Fprintf(w, "%-*s %12s %12s\n", width, "Use case", "Power (mW)", "Rail (mA)")
	for _, name := range names {
		res := ev.Results[name]
		fmt.Fprintf(w, "%-*s %12.3f %12.3f\n", width, name, res.TotalPowerMW, res.RailCurrentMA())
	}
}

// writeTree prints the tree of one use case with each node's power
func writeTree(w io.Writer, res *powertree.Result) {
	m := res.Model()
	visited := make(map[string]bool)

	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		n := m.Node(id)
		if n == nil || visited[id] {
			return
		}
		visited[id] = true

		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), describeNode(res, n))
		for _, child := range m.Children(id) {
			walk(child, depth+1)
		}
	}

	for _, id := range m.Roots() {
		walk(id, 0)
	}

	var unreached []string
	for _, n := range m.Nodes {
		if !visited[n.ID] {
			unreached = append(unreached, n.DisplayName())
		}
	}
	if len(unreached) > 0 {
		fmt.Fprintf(w, "Not connected: %s\n", strings.Join(unreached, ", "))
	}
}

func describeNode(res *powertree.Result, n *powertree.Node) string {
	np := res.Nodes[n.ID]
	if !n.IsSource() {
		var voltage float64
		if src := res.Model().Node(n.InputSourceID); src != nil {
			voltage = res.Resolved.Voltage(src.ID)
		}
		return fmt.Sprintf("%s: %.3f mW (%.3f mA)", n.DisplayName(), np.InputPowerMW, np.CurrentMA(voltage))
	}

	src := res.Resolved.Sources[n.ID]
	return fmt.Sprintf("%s [%s %.2f V, %.0f%%, Iq %.3f mA]: in %.3f mW, out %.3f mW",
		n.DisplayName(), src.Mode, src.OutputVoltage, src.Efficiency*100, src.QuiescentCurrentMA,
		np.InputPowerMW, np.OutputPowerMW)
}

// writeBreakdown prints the battery-rail breakdown, merging rows below othersShare
func writeBreakdown(w io.Writer, res *powertree.Result, opts powertree.DecomposeOptions, othersShare float64) {
	rows := powertree.Decompose(res, opts)
	if othersShare > 0 {
		rows = powertree.Collapse(rows, othersShare, "")
	}
	total := powertree.Total(rows)

	width := len("Total")
	for _, row := range rows {
		width = max(width, len(row.Source))
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%-*s %12.3f mW %6.1f%%\n", width, row.Source, row.PowerMW, powertree.Share(row, total)*100)
	}
	fmt.Fprintf(w, "%-*s %12.3f mW\n", width, "Total", total)
}

// writeLife prints each usage profile's average draw and battery life
func writeLife(w io.Writer, m *powertree.Model, ev *powertree.Evaluation) {
	fmt.Fprintf(w, "Battery %.1f mAh at %.2f V\n", m.BatteryCapacityMAh, ev.RailVoltage)
	for _, name := range m.ProfileNames() {
		e := ev.Estimates[name]
		line := fmt.Sprintf("%s: %.3f mW, %.3f mA, %s", name, e.AvgPowerMW, e.AvgCurrentMA, e)
		if e.HoursWarning {
			line += fmt.Sprintf(" (hours total %.1f / %.0f)", e.TotalHours, powertree.HoursPerDay)
		}
		fmt.Fprintln(w, line)
	}
}

func writeIssues(w io.Writer, issues []powertree.Issue) {
	for _, issue := range issues {
		fmt.Fprintln(w, issue.String())
	}
}

// writeReport prints the full report for the selected use case
func writeReport(w io.Writer, m *powertree.Model, ev *powertree.Evaluation, useCase string, cfg Config) {
	writeSummary(w, ev)

	if res, ok := ev.Results[useCase]; ok {
		fmt.Fprintf(w, "\n%s\n", useCase)
		writeTree(w, res)
		fmt.Fprintln(w)
		writeBreakdown(w, res, powertree.DecomposeOptions{SplitEfficiencyLoss: cfg.Losses}, cfg.OthersShare)
	}

	if len(m.Profiles) > 0 {
		fmt.Fprintln(w)
		writeLife(w, m, ev)
	}
}

// selectUseCase picks the configured use case, or the first by name
func selectUseCase(m *powertree.Model, want string) (string, error) {
	if want != "" {
		if _, ok := m.UseCases[want]; !ok {
			return "", fmt.Errorf("%w: %q", powertree.ErrUnknownUseCase, want)
		}
		return want, nil
	}
	names := m.UseCaseNames()
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}
