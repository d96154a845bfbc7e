// Package snapshot reads and writes the full power model as JSON or YAML.
// The JSON layout keeps the legacy power_tree_data configuration files
// loadable unchanged.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ryansname/powertree/src/powertree"
)

// ErrUnsupportedFormat is returned for file extensions other than .json, .yaml and .yml
var ErrUnsupportedFormat = errors.New("unsupported snapshot format")

// Format selects the serialization
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// FormatFromPath picks the format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// file is the on-disk layout
type file struct {
	PowerTreeData       treeData                                      `json:"power_tree_data" yaml:"power_tree_data"`
	MaxID               int                                           `json:"max_id" yaml:"max_id"`
	GroupColors         map[string]string                             `json:"group_colors,omitempty" yaml:"group_colors,omitempty"`
	OperatingModes      map[string]map[string]powertree.ComponentMode `json:"operating_modes" yaml:"operating_modes"`
	PowerSourceModes    map[string]map[string]powertree.SourceMode    `json:"power_source_modes" yaml:"power_source_modes"`
	DeviceModes         map[string]powertree.UseCase                  `json:"device_modes" yaml:"device_modes"`
	BatteryCapacityMAh  float64                                       `json:"battery_capacity_mAh" yaml:"battery_capacity_mAh"`
	UserProfiles        map[string]powertree.UsageProfile             `json:"user_profiles" yaml:"user_profiles"`
	ComponentGroupNotes map[string]string                             `json:"component_group_notes,omitempty" yaml:"component_group_notes,omitempty"`
	BatteryNodeID       string                                        `json:"battery_node_id,omitempty" yaml:"battery_node_id,omitempty"`
}

type treeData struct {
	Nodes []fileNode `json:"nodes" yaml:"nodes"`
}

// fileNode carries the On-mode attributes older files store on power source
// nodes. They only seed the mode library when a file has none for that source.
type fileNode struct {
	powertree.Node `yaml:",inline"`

	OutputVoltage      *float64 `json:"output_voltage,omitempty" yaml:"output_voltage,omitempty"`
	Efficiency         *float64 `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
	QuiescentCurrentMA *float64 `json:"quiescent_current_mA,omitempty" yaml:"quiescent_current_mA,omitempty"`
}

// Load reads a model from a .json, .yaml or .yml file
func Load(path string) (*powertree.Model, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	m, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return m, nil
}

// Save writes a model to path in the format given by its extension
func Save(path string, m *powertree.Model) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Encode(tmp, m, format); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("saving %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Decode reads a model in the given format
func Decode(r io.Reader, format Format) (*powertree.Model, error) {
	var f file
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&f); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&f); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}
	return f.model(), nil
}

// Encode writes a model in the given format
func Encode(w io.Writer, m *powertree.Model, format Format) error {
	f := fromModel(m)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		return enc.Encode(f)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}
}

func (f *file) model() *powertree.Model {
	m := &powertree.Model{
		Nodes:              make([]powertree.Node, 0, len(f.PowerTreeData.Nodes)),
		SourceModes:        f.PowerSourceModes,
		ComponentModes:     f.OperatingModes,
		UseCases:           f.DeviceModes,
		Profiles:           f.UserProfiles,
		BatteryCapacityMAh: f.BatteryCapacityMAh,
		BatteryNodeID:      f.BatteryNodeID,
		GroupColors:        f.GroupColors,
		GroupNotes:         f.ComponentGroupNotes,
		MaxID:              f.MaxID,
	}

	for _, fn := range f.PowerTreeData.Nodes {
		m.Nodes = append(m.Nodes, fn.Node)
		if fn.Type != powertree.TypePowerSource || fn.OutputVoltage == nil {
			continue
		}
		if _, ok := m.SourceModes[fn.ID]; ok {
			continue
		}
		if m.SourceModes == nil {
			m.SourceModes = make(map[string]map[string]powertree.SourceMode)
		}
		on := powertree.SourceMode{
			OutputVoltage:      *fn.OutputVoltage,
			Efficiency:         valueOr(fn.Efficiency, 1),
			QuiescentCurrentMA: valueOr(fn.QuiescentCurrentMA, 0),
			Note:               fn.Note,
		}
		m.SourceModes[fn.ID] = map[string]powertree.SourceMode{
			powertree.ModeOn:  on,
			powertree.ModeOff: powertree.OffMode(on),
		}
	}
	return m
}

// fromModel writes each source's On mode onto its node as well, so the
// older readers that only know the node attributes can still draw the tree
func fromModel(m *powertree.Model) *file {
	f := &file{
		PowerTreeData:       treeData{Nodes: make([]fileNode, 0, len(m.Nodes))},
		MaxID:               m.MaxID,
		GroupColors:         m.GroupColors,
		OperatingModes:      m.ComponentModes,
		PowerSourceModes:    m.SourceModes,
		DeviceModes:         m.UseCases,
		BatteryCapacityMAh:  m.BatteryCapacityMAh,
		UserProfiles:        m.Profiles,
		ComponentGroupNotes: m.GroupNotes,
		BatteryNodeID:       m.BatteryNodeID,
	}
	for _, n := range m.Nodes {
		fn := fileNode{Node: n}
		if on, ok := m.SourceModes[n.ID][powertree.ModeOn]; ok && n.IsSource() {
			fn.OutputVoltage = &on.OutputVoltage
			fn.Efficiency = &on.Efficiency
			fn.QuiescentCurrentMA = &on.QuiescentCurrentMA
		}
		f.PowerTreeData.Nodes = append(f.PowerTreeData.Nodes, fn)
	}
	return f
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
