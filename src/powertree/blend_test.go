package powertree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestModeBlend_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ModeBlend
	}{
		{"weights", `{"Active": 25, "Sleep": 75}`, ModeBlend{"Active": 25, "Sleep": 75}},
		{"legacy single mode", `"Active"`, Single("Active")},
		{"empty name", `""`, ModeBlend{}},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ModeBlend
			require.NoError(t, json.Unmarshal([]byte(tt.input), &b))
			assert.Equal(t, tt.want, b)
		})
	}

	t.Run("bad value", func(t *testing.T) {
		var b ModeBlend
		assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &b))
	})
}

func TestModeBlend_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ModeBlend
	}{
		{"weights", "Active: 25\nSleep: 75\n", ModeBlend{"Active": 25, "Sleep": 75}},
		{"legacy single mode", "Active\n", Single("Active")},
		{"null", "~\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ModeBlend
			require.NoError(t, yaml.Unmarshal([]byte(tt.input), &b))
			assert.Equal(t, tt.want, b)
		})
	}

	t.Run("sequence is rejected", func(t *testing.T) {
		var b ModeBlend
		assert.Error(t, yaml.Unmarshal([]byte("- Active\n"), &b))
	})
}

func TestUseCase_LegacyComponentsDecode(t *testing.T) {
	input := `{"power_sources": {"buck": "Off"}, "components": {"MCU": "Sleep", "Radio": {"Tx": 5, "Idle": 95}}}`

	var uc UseCase
	require.NoError(t, json.Unmarshal([]byte(input), &uc))

	assert.Equal(t, "Off", uc.PowerSources["buck"])
	assert.Equal(t, Single("Sleep"), uc.Components["MCU"])
	assert.Equal(t, ModeBlend{"Tx": 5, "Idle": 95}, uc.Components["Radio"])
}

func TestNode_DisplayName(t *testing.T) {
	tests := []struct {
		node Node
		want string
	}{
		{Node{ID: "node_1", Label: "Buck", Type: TypePowerSource}, "Buck"},
		{Node{ID: "node_2", Type: TypeComponent, Group: "Radio", Endpoint: "VDD_PA"}, "Radio VDD_PA"},
		{Node{ID: "node_3", Type: TypeComponent, Group: "Radio"}, "Radio"},
		{Node{ID: "node_4", Type: TypePowerSource}, "node_4"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.node.DisplayName())
	}
}

func TestModel_Topology(t *testing.T) {
	m := buckModel()

	assert.Equal(t, []string{"vsys"}, m.Roots())
	assert.Equal(t, []string{"buck"}, m.Children("vsys"))
	assert.Equal(t, []string{"mcu"}, m.Children("buck"))
	assert.Nil(t, m.Children(""))
	assert.Equal(t, []string{"MCU"}, m.Groups())
	assert.Equal(t, []string{"Active", "Sleep"}, m.UseCaseNames())
	assert.Nil(t, m.Node("missing"))
}
