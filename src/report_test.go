package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansname/powertree/src/powertree"
)

// Helper to build a small tracker: a cell feeding a buck and a radio
func trackerModel() *powertree.Model {
	return &powertree.Model{
		Nodes: []powertree.Node{
			{ID: "node_1", Label: "Cell", Type: powertree.TypePowerSource},
			{ID: "node_2", Label: "Buck", Type: powertree.TypePowerSource, InputSourceID: "node_1"},
			{ID: "node_3", Type: powertree.TypeComponent, InputSourceID: "node_2", Group: "MCU"},
			{ID: "node_4", Type: powertree.TypeComponent, InputSourceID: "node_1", Group: "Radio"},
		},
		SourceModes: map[string]map[string]powertree.SourceMode{
			"node_1": {powertree.ModeOn: {OutputVoltage: 3.85, Efficiency: 1}},
			"node_2": {powertree.ModeOn: {OutputVoltage: 1.8, Efficiency: 0.95, QuiescentCurrentMA: 0.05}},
		},
		ComponentModes: map[string]map[string]powertree.ComponentMode{
			"MCU": {
				"Active": {CurrentsMA: map[string]float64{"node_3": 2.5}},
				"Sleep":  {CurrentsMA: map[string]float64{"node_3": 0.005}},
			},
			"Radio": {
				"Tx":  {CurrentsMA: map[string]float64{"node_4": 10}},
				"Off": {CurrentsMA: map[string]float64{"node_4": 0}},
			},
		},
		UseCases: map[string]powertree.UseCase{
			"Active": {Components: map[string]powertree.ModeBlend{
				"MCU":   powertree.Single("Active"),
				"Radio": {"Tx": 10, "Off": 90},
			}},
			"Sleep": {Components: map[string]powertree.ModeBlend{
				"MCU":   powertree.Single("Sleep"),
				"Radio": powertree.Single("Off"),
			}},
		},
		Profiles: map[string]powertree.UsageProfile{
			"Daily":   {"Active": 4, "Sleep": 20},
			"Partial": {"Active": 4},
		},
		BatteryCapacityMAh: 500,
		MaxID:              4,
	}
}

func evaluate(t *testing.T, m *powertree.Model) *powertree.Evaluation {
	t.Helper()
	ev, err := powertree.EvaluateAll(context.Background(), m, 0)
	require.NoError(t, err)
	return ev
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, evaluate(t, trackerModel()))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "Power (mW)")
	assert.Contains(t, string(lines[1]), "Active")
	assert.Contains(t, string(lines[2]), "Sleep")
}

func TestWriteTree(t *testing.T) {
	m := trackerModel()
	m.Nodes = append(m.Nodes, powertree.Node{ID: "node_5", Label: "Stray", Type: powertree.TypePowerSource, InputSourceID: "node_9"})

	ev := evaluate(t, m)
	var buf bytes.Buffer
	writeTree(&buf, ev.Results["Active"])
	out := buf.String()

	assert.Contains(t, out, "Cell [On 3.85 V, 100%, Iq 0.000 mA]")
	assert.Contains(t, out, "\n  Buck [On 1.80 V, 95%, Iq 0.050 mA]: in 4.929 mW, out 4.500 mW\n")
	assert.Contains(t, out, "\n    MCU: 4.500 mW (2.500 mA)\n")
	assert.Contains(t, out, "\n  Radio: 3.850 mW (1.000 mA)\n")
	assert.Contains(t, out, "Not connected: Stray\n")
}

func TestWriteBreakdown(t *testing.T) {
	ev := evaluate(t, trackerModel())
	res := ev.Results["Active"]

	t.Run("root referred", func(t *testing.T) {
		var buf bytes.Buffer
		writeBreakdown(&buf, res, powertree.DecomposeOptions{}, 0.01)
		out := buf.String()

		assert.Contains(t, out, "MCU")
		assert.Contains(t, out, "Radio")
		assert.Contains(t, out, "Buck (Iq Loss)")
		assert.NotContains(t, out, "Efficiency Loss")
		assert.Contains(t, out, "Total")
		assert.Contains(t, out, "8.779 mW")
	})

	t.Run("split losses", func(t *testing.T) {
		var buf bytes.Buffer
		writeBreakdown(&buf, res, powertree.DecomposeOptions{SplitEfficiencyLoss: true}, 0)
		assert.Contains(t, buf.String(), "Buck (Efficiency Loss)")
	})
}

func TestWriteLife(t *testing.T) {
	m := trackerModel()
	ev := evaluate(t, m)

	var buf bytes.Buffer
	writeLife(&buf, m, ev)
	out := buf.String()

	assert.Contains(t, out, "Battery 500.0 mAh at 3.85 V\n")
	assert.Contains(t, out, "Daily: ")
	assert.Contains(t, out, ev.Estimates["Daily"].String())
	assert.Contains(t, out, "Partial: ")
	assert.Contains(t, out, "(hours total 4.0 / 24)")
}

func TestSelectUseCase(t *testing.T) {
	m := trackerModel()

	name, err := selectUseCase(m, "")
	require.NoError(t, err)
	assert.Equal(t, "Active", name)

	name, err = selectUseCase(m, "Sleep")
	require.NoError(t, err)
	assert.Equal(t, "Sleep", name)

	_, err = selectUseCase(m, "Missing")
	assert.ErrorIs(t, err, powertree.ErrUnknownUseCase)

	name, err = selectUseCase(&powertree.Model{}, "")
	require.NoError(t, err)
	assert.Equal(t, "", name)
}

func TestWriteReport(t *testing.T) {
	m := trackerModel()
	ev := evaluate(t, m)

	var buf bytes.Buffer
	writeReport(&buf, m, ev, "Active", Config{OthersShare: 0.01})
	out := buf.String()

	assert.Contains(t, out, "Use case")
	assert.Contains(t, out, "\nActive\n")
	assert.Contains(t, out, "Total")
	assert.Contains(t, out, "Battery 500.0 mAh")
}
