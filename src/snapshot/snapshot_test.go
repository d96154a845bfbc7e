package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansname/powertree/src/powertree"
)

func sampleModel() *powertree.Model {
	return &powertree.Model{
		Nodes: []powertree.Node{
			{ID: "node_1", Label: "Vsys", Type: powertree.TypePowerSource, Note: "Li-ion cell"},
			{ID: "node_2", Label: "Buck", Type: powertree.TypePowerSource, InputSourceID: "node_1"},
			{ID: "node_3", Type: powertree.TypeComponent, InputSourceID: "node_2", Group: "MCU", Endpoint: "VDD"},
			{ID: "node_4", Type: powertree.TypeComponent, InputSourceID: "node_1", Group: "Radio"},
		},
		SourceModes: map[string]map[string]powertree.SourceMode{
			"node_1": {
				powertree.ModeOn:  {OutputVoltage: 3.85, Efficiency: 1, Note: "Nominal"},
				powertree.ModeOff: {Note: "Device is off"},
			},
			"node_2": {
				powertree.ModeOn:  {OutputVoltage: 1.8, Efficiency: 0.95, QuiescentCurrentMA: 0.05},
				powertree.ModeOff: {QuiescentCurrentMA: 0.05, Note: "Device is off"},
				"Eco":             {OutputVoltage: 1.8, Efficiency: 0.9, QuiescentCurrentMA: 0.01},
			},
		},
		ComponentModes: map[string]map[string]powertree.ComponentMode{
			"MCU": {
				"Active": {CurrentsMA: map[string]float64{"node_3": 2.5}, Note: "Running"},
				"Sleep":  {CurrentsMA: map[string]float64{"node_3": 0.01}},
			},
			"Radio": {
				"Tx":   {CurrentsMA: map[string]float64{"node_4": 25}},
				"Idle": {CurrentsMA: map[string]float64{"node_4": 0.4}},
			},
		},
		UseCases: map[string]powertree.UseCase{
			"Active": {
				PowerSources: map[string]string{"node_1": powertree.ModeOn, "node_2": powertree.ModeOn},
				Components: map[string]powertree.ModeBlend{
					"MCU":   powertree.Single("Active"),
					"Radio": {"Tx": 10, "Idle": 90},
				},
			},
			"Sleep": {
				PowerSources: map[string]string{"node_1": powertree.ModeOn, "node_2": "Eco"},
				Components: map[string]powertree.ModeBlend{
					"MCU":   powertree.Single("Sleep"),
					"Radio": powertree.Single("Idle"),
				},
			},
		},
		Profiles: map[string]powertree.UsageProfile{
			"Typical": {"Active": 1.5, "Sleep": 22.5},
		},
		BatteryCapacityMAh: 64.5,
		BatteryNodeID:      "node_1",
		GroupColors:        map[string]string{"MCU": "#1f77b4"},
		GroupNotes:         map[string]string{"Radio": "BLE"},
		MaxID:              4,
	}
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(format.String(), func(t *testing.T) {
			m := sampleModel()

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, m, format))

			decoded, err := Decode(&buf, format)
			require.NoError(t, err)
			assert.Equal(t, m, decoded)

			for _, uc := range m.UseCaseNames() {
				want, err := powertree.Calculate(m, uc)
				require.NoError(t, err)
				got, err := powertree.Calculate(decoded, uc)
				require.NoError(t, err)

				assert.Equal(t, want.TotalPowerMW, got.TotalPowerMW)
				assert.Equal(t, want.Nodes, got.Nodes)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"model.json", "model.yaml", "model.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			m := sampleModel()

			require.NoError(t, Save(path, m))
			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, m, loaded)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "No temporary files left behind")
}

func TestFormatFromPath(t *testing.T) {
	format, err := FormatFromPath("a/b/Model.JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)

	format, err = FormatFromPath("model.yml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, format)

	_, err = FormatFromPath("model.toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load("model.toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncode_JSONLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleModel(), FormatJSON))
	out := buf.String()

	for _, key := range []string{
		`"power_tree_data"`,
		`"power_source_modes"`,
		`"operating_modes"`,
		`"device_modes"`,
		`"user_profiles"`,
		`"battery_capacity_mAh"`,
		`"currents_mA"`,
		`"max_id": 4`,
	} {
		assert.Contains(t, out, key)
	}
	// Source nodes also carry their On values for older readers
	assert.Contains(t, out, `"output_voltage": 3.85`)
}

// A file saved before source modes existed: voltages live on the nodes and
// use cases select a single mode per group
const legacyJSON = `{
    "power_tree_data": {
        "nodes": [
            {"id": "node_1", "label": "Battery", "type": "power_source", "input_source_id": null,
             "output_voltage": 3.7, "efficiency": 1.0, "quiescent_current_mA": 0.0},
            {"id": "node_2", "label": "LDO", "type": "power_source", "input_source_id": "node_1",
             "output_voltage": 3.3, "efficiency": 0.8, "quiescent_current_mA": 0.1, "note": "TPS7A02"},
            {"id": "node_3", "type": "component", "input_source_id": "node_2",
             "group": "Sensor", "endpoint": "VDD", "power_consumption": 0}
        ]
    },
    "max_id": 3,
    "operating_modes": {
        "Sensor": {"Measure": {"currents_mA": {"node_3": 4.0}, "note": ""}}
    },
    "device_modes": {
        "Measure": {"power_sources": {}, "components": {"Sensor": "Measure"}}
    },
    "battery_capacity_mAh": 220,
    "user_profiles": {"Always": {"Measure": 24}}
}`

func TestDecode_LegacyFile(t *testing.T) {
	m, err := Decode(strings.NewReader(legacyJSON), FormatJSON)
	require.NoError(t, err)

	require.Len(t, m.Nodes, 3)
	assert.Equal(t, "", m.Nodes[0].InputSourceID)

	ldo := m.SourceModes["node_2"]
	assert.Equal(t, powertree.SourceMode{OutputVoltage: 3.3, Efficiency: 0.8, QuiescentCurrentMA: 0.1, Note: "TPS7A02"}, ldo[powertree.ModeOn])
	assert.Equal(t, 0.1, ldo[powertree.ModeOff].QuiescentCurrentMA)
	assert.Equal(t, 0.0, ldo[powertree.ModeOff].OutputVoltage)

	assert.Equal(t, powertree.Single("Measure"), m.UseCases["Measure"].Components["Sensor"])

	res, err := powertree.Calculate(m, "Measure")
	require.NoError(t, err)
	// 3.3 V x 4 mA through 80%, plus 0.1 mA at 3.7 V
	assert.InDelta(t, 13.2/0.8+0.37, res.TotalPowerMW, 1e-9)
	assert.Empty(t, res.Issues)
}

func TestDecode_ExistingModesWin(t *testing.T) {
	m := sampleModel()
	m.SourceModes["node_2"][powertree.ModeOn] = powertree.SourceMode{OutputVoltage: 1.2, Efficiency: 0.7}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m, FormatJSON))
	// Node attributes now say 1.2 V; corrupt them to prove they are not read back
	raw := strings.Replace(buf.String(), `"output_voltage": 1.2`, `"output_voltage": 9.9`, 1)

	decoded, err := Decode(strings.NewReader(raw), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1.2, decoded.SourceModes["node_2"][powertree.ModeOn].OutputVoltage)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(strings.NewReader("{"), FormatJSON)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("power_tree_data: [1"), FormatYAML)
	assert.Error(t, err)
}
