// Package powertree computes power flow through a device's power-distribution
// tree: regulators feeding sub-regulators and end components, per-scenario
// mode resolution, loss propagation up to the battery rail, root-referred
// breakdowns and battery-life projection.
//
// Units follow the saved model files: volts, milliamps and milliwatts.
package powertree

import (
	"maps"
	"slices"
)

// NodeType distinguishes regulators from end loads
type NodeType string

const (
	TypePowerSource NodeType = "power_source"
	TypeComponent   NodeType = "component"
)

// Standard power source mode names
const (
	ModeOn  = "On"
	ModeOff = "Off"
)

// DefaultComponentMode is the mode every new component group starts with
const DefaultComponentMode = "Default"

// Node is a power source or a component in the tree.
// An empty InputSourceID marks a root.
type Node struct {
	ID            string   `json:"id" yaml:"id"`
	Label         string   `json:"label,omitempty" yaml:"label,omitempty"`
	Type          NodeType `json:"type" yaml:"type"`
	InputSourceID string   `json:"input_source_id,omitempty" yaml:"input_source_id,omitempty"`
	Group         string   `json:"group,omitempty" yaml:"group,omitempty"`       // Components only
	Endpoint      string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"` // Components only
	Note          string   `json:"note,omitempty" yaml:"note,omitempty"`
}

// IsSource reports whether the node is a power source
func (n *Node) IsSource() bool {
	return n.Type == TypePowerSource
}

// IsRoot reports whether the node has no supplying source
func (n *Node) IsRoot() bool {
	return n.InputSourceID == ""
}

// DisplayName returns the label, falling back to group/endpoint or id
func (n *Node) DisplayName() string {
	switch {
	case n.Label != "":
		return n.Label
	case n.Type == TypeComponent && n.Group != "":
		if n.Endpoint != "" {
			return n.Group + " " + n.Endpoint
		}
		return n.Group
	default:
		return n.ID
	}
}

// SourceMode is one named operating variant of a power source
type SourceMode struct {
	OutputVoltage      float64 `json:"output_voltage" yaml:"output_voltage"`             // V
	Efficiency         float64 `json:"efficiency" yaml:"efficiency"`                     // 0-1
	QuiescentCurrentMA float64 `json:"quiescent_current_mA" yaml:"quiescent_current_mA"` // mA
	Note               string  `json:"note" yaml:"note"`
}

// OffMode derives the Off variant of an On mode.
// A regulator still sinks its housekeeping current when nominally off.
func OffMode(on SourceMode) SourceMode {
	return SourceMode{
		OutputVoltage:      0,
		Efficiency:         0,
		QuiescentCurrentMA: on.QuiescentCurrentMA,
		Note:               "Device is off",
	}
}

// ComponentMode is a named current profile for every component of a group
type ComponentMode struct {
	CurrentsMA map[string]float64 `json:"currents_mA" yaml:"currents_mA"` // node id -> mA
	Note       string             `json:"note" yaml:"note"`
}

// ModeBlend maps component mode names to percentage weights.
// Weights are not required to total 100.
type ModeBlend map[string]float64

// Single returns a blend running one mode 100% of the time
func Single(mode string) ModeBlend {
	return ModeBlend{mode: 100}
}

// TotalWeight sums every weight in the blend
func (b ModeBlend) TotalWeight() float64 {
	var total float64
	for _, w := range b {
		total += w
	}
	return total
}

// UseCase selects source modes and component mode blends for one scenario
type UseCase struct {
	PowerSources map[string]string    `json:"power_sources" yaml:"power_sources"` // source id -> mode
	Components   map[string]ModeBlend `json:"components" yaml:"components"`       // group -> blend
}

// UsageProfile maps use case names to hours per day
type UsageProfile map[string]float64

// TotalHours sums the hours of every use case in the profile
func (p UsageProfile) TotalHours() float64 {
	var total float64
	for _, h := range p {
		total += h
	}
	return total
}

// Model is the full authored state: graph, mode libraries, use cases and profiles.
// The engine treats a Model as read-only.
type Model struct {
	Nodes              []Node                              `json:"nodes" yaml:"nodes"`
	SourceModes        map[string]map[string]SourceMode    `json:"power_source_modes" yaml:"power_source_modes"`
	ComponentModes     map[string]map[string]ComponentMode `json:"operating_modes" yaml:"operating_modes"`
	UseCases           map[string]UseCase                  `json:"device_modes" yaml:"device_modes"`
	Profiles           map[string]UsageProfile             `json:"user_profiles" yaml:"user_profiles"`
	BatteryCapacityMAh float64                             `json:"battery_capacity_mAh" yaml:"battery_capacity_mAh"`
	BatteryNodeID      string                              `json:"battery_node_id,omitempty" yaml:"battery_node_id,omitempty"`
	GroupColors        map[string]string                   `json:"group_colors,omitempty" yaml:"group_colors,omitempty"`
	GroupNotes         map[string]string                   `json:"component_group_notes,omitempty" yaml:"component_group_notes,omitempty"`
	MaxID              int                                 `json:"max_id" yaml:"max_id"`
}

// Node returns the node with the given id, or nil
func (m *Model) Node(id string) *Node {
	if id == "" {
		return nil
	}
	for i := range m.Nodes {
		if m.Nodes[i].ID == id {
			return &m.Nodes[i]
		}
	}
	return nil
}

// Children returns the ids of nodes fed by the given source, in model order
func (m *Model) Children(id string) []string {
	var children []string
	for _, n := range m.Nodes {
		if n.InputSourceID == id && id != "" {
			children = append(children, n.ID)
		}
	}
	return children
}

// Roots returns the ids of every node without a supplying source, in model order
func (m *Model) Roots() []string {
	var roots []string
	for _, n := range m.Nodes {
		if n.IsRoot() {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

// Groups returns the sorted set of component groups present in the graph
func (m *Model) Groups() []string {
	seen := make(map[string]bool)
	for _, n := range m.Nodes {
		if n.Type == TypeComponent {
			seen[n.Group] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// UseCaseNames returns use case names in sorted order
func (m *Model) UseCaseNames() []string {
	return slices.Sorted(maps.Keys(m.UseCases))
}

// ProfileNames returns usage profile names in sorted order
func (m *Model) ProfileNames() []string {
	return slices.Sorted(maps.Keys(m.Profiles))
}

// BatteryNode returns the node whose rail the battery-life estimate is referred to.
// Falls back to the first root power source when BatteryNodeID is unset or stale.
func (m *Model) BatteryNode() *Node {
	if n := m.Node(m.BatteryNodeID); n != nil {
		return n
	}
	for i := range m.Nodes {
		if m.Nodes[i].IsRoot() && m.Nodes[i].IsSource() {
			return &m.Nodes[i]
		}
	}
	return nil
}

// RailVoltage returns the battery rail's nominal (On mode) voltage
func (m *Model) RailVoltage() float64 {
	n := m.BatteryNode()
	if n == nil {
		return 0
	}
	return m.SourceModes[n.ID][ModeOn].OutputVoltage
}

// Clone returns a deep copy of the model
func (m *Model) Clone() *Model {
	c := *m
	c.Nodes = slices.Clone(m.Nodes)

	if m.SourceModes != nil {
		c.SourceModes = make(map[string]map[string]SourceMode, len(m.SourceModes))
		for id, modes := range m.SourceModes {
			c.SourceModes[id] = maps.Clone(modes)
		}
	}

	if m.ComponentModes != nil {
		c.ComponentModes = make(map[string]map[string]ComponentMode, len(m.ComponentModes))
		for group, modes := range m.ComponentModes {
			cm := make(map[string]ComponentMode, len(modes))
			for name, mode := range modes {
				cm[name] = ComponentMode{CurrentsMA: maps.Clone(mode.CurrentsMA), Note: mode.Note}
			}
			c.ComponentModes[group] = cm
		}
	}

	if m.UseCases != nil {
		c.UseCases = make(map[string]UseCase, len(m.UseCases))
		for name, uc := range m.UseCases {
			c.UseCases[name] = uc.clone()
		}
	}

	if m.Profiles != nil {
		c.Profiles = make(map[string]UsageProfile, len(m.Profiles))
		for name, p := range m.Profiles {
			c.Profiles[name] = maps.Clone(p)
		}
	}

	c.GroupColors = maps.Clone(m.GroupColors)
	c.GroupNotes = maps.Clone(m.GroupNotes)
	return &c
}

func (uc UseCase) clone() UseCase {
	c := UseCase{PowerSources: maps.Clone(uc.PowerSources)}
	if uc.Components != nil {
		c.Components = make(map[string]ModeBlend, len(uc.Components))
		for group, blend := range uc.Components {
			c.Components[group] = maps.Clone(blend)
		}
	}
	return c
}

// index is a call-scoped lookup over a model's nodes
type index struct {
	nodes    map[string]*Node
	children map[string][]string
	order    []string
}

func newIndex(m *Model) *index {
	idx := &index{
		nodes:    make(map[string]*Node, len(m.Nodes)),
		children: make(map[string][]string),
		order:    make([]string, 0, len(m.Nodes)),
	}
	for i := range m.Nodes {
		n := &m.Nodes[i]
		if _, dup := idx.nodes[n.ID]; dup {
			// First definition wins; Validate reports the duplicate
			continue
		}
		idx.nodes[n.ID] = n
		idx.order = append(idx.order, n.ID)
		if n.InputSourceID != "" {
			idx.children[n.InputSourceID] = append(idx.children[n.InputSourceID], n.ID)
		}
	}
	return idx
}

// source returns the supplying power source of a node, or nil when the
// node is a root or its reference is dangling
func (idx *index) source(n *Node) *Node {
	if n.InputSourceID == "" {
		return nil
	}
	parent := idx.nodes[n.InputSourceID]
	if parent == nil || !parent.IsSource() {
		return nil
	}
	return parent
}
