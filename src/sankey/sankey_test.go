package sankey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansname/powertree/src/powertree"
)

func buckResult(t *testing.T) *powertree.Result {
	t.Helper()
	m := &powertree.Model{
		Nodes: []powertree.Node{
			{ID: "vsys", Label: "Vsys", Type: powertree.TypePowerSource},
			{ID: "buck", Label: "Buck", Type: powertree.TypePowerSource, InputSourceID: "vsys"},
			{ID: "mcu", Type: powertree.TypeComponent, InputSourceID: "buck", Group: "MCU"},
			{ID: "orphan", Type: powertree.TypeComponent, InputSourceID: "gone", Group: "MCU"},
		},
		SourceModes: map[string]map[string]powertree.SourceMode{
			"vsys": {powertree.ModeOn: {OutputVoltage: 3.85, Efficiency: 1}},
			"buck": {powertree.ModeOn: {OutputVoltage: 1.8, Efficiency: 0.95, QuiescentCurrentMA: 0.05}},
		},
		ComponentModes: map[string]map[string]powertree.ComponentMode{
			"MCU": {"Active": {CurrentsMA: map[string]float64{"mcu": 2.5}}},
		},
		UseCases: map[string]powertree.UseCase{
			"Active": {Components: map[string]powertree.ModeBlend{"MCU": powertree.Single("Active")}},
		},
	}
	res, err := powertree.Calculate(m, "Active")
	require.NoError(t, err)
	return res
}

func TestFromResult(t *testing.T) {
	cfg := FromResult(buckResult(t), "Power Tree Active")

	names := make([]string, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"total", "vsys", "buck", "mcu", "buck_losses"}, names, "Unreached nodes are left out")
	assert.Equal(t, 4, cfg.Sections())

	assert.Equal(t, []string{"vsys"}, cfg.Groups[0].Children)
	assert.Equal(t, []string{"buck"}, cfg.Groups[1].Children, "Vsys is lossless")
	assert.Equal(t, []string{"mcu", "buck_losses"}, cfg.Groups[2].Children)

	loss := cfg.Groups[4]
	assert.Equal(t, Section(3), loss.Section)
	require.NotNil(t, loss.Other)
	assert.Equal(t, "sensor.power_tree_active_buck_losses", loss.Other.Key)
	assert.Equal(t, "Buck losses", loss.Other.Label)

	require.Len(t, cfg.Sensors, 4)
	assert.Equal(t, TemplateSum, cfg.Sensors[0].Type)
	assert.Equal(t, []string{"sensor.power_tree_active_vsys"}, cfg.Sensors[0].Entities)
	assert.Equal(t, "power_tree_active_mcu", cfg.Sensors[3].Name)
	assert.Equal(t, "4.5000", cfg.Sensors[3].Formula)
}

func TestGenerate(t *testing.T) {
	out := Generate(buckResult(t), "pt")

	assert.True(t, strings.HasPrefix(out.SankeyConfig, "sections:\n"))
	assert.Equal(t, 4, strings.Count(out.SankeyConfig, "- sort_group_by_parent: true"))
	assert.Contains(t, out.SankeyConfig, "    - type: entity\n      entity_id: sensor.pt_buck\n      name: Buck\n")
	assert.Contains(t, out.SankeyConfig, "    - type: remaining_parent_state\n      entity_id: sensor.pt_buck_losses\n")
	assert.Contains(t, out.SankeyConfig, "type: custom:sankey-chart\n")

	assert.Contains(t, out.Templates, "- name: \"pt_total\"\n  unique_id: pt_total\n")
	assert.Contains(t, out.Templates, "  state: \"{{ ['sensor.pt_vsys'] | map('states') | map('float') | sum }}\"\n")
	assert.Contains(t, out.Templates, "  state: \"{{ 4.9293 }}\"\n")
	assert.Contains(t, out.Templates, "  unit_of_measurement: mW\n")
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "node_12", slug("node_12"))
	assert.Equal(t, "usb_c_5v", slug("USB-C 5V"))
}

func TestFromResult_ChildrenSum(t *testing.T) {
	cfg := FromResult(buckResult(t), "pt")

	byName := make(map[string]Group)
	for _, g := range cfg.Groups {
		byName[g.Name] = g
	}

	assert.Equal(t, &Reconcile{ShouldBe: ShouldBeEqual, ReconcileTo: ReconcileToMax}, byName["total"].ChildrenSum)
	assert.Equal(t, &Reconcile{ShouldBe: ShouldBeEqualOrLess, ReconcileTo: ReconcileToMax}, byName["vsys"].ChildrenSum)
	assert.Equal(t, &Reconcile{ShouldBe: ShouldBeEqualOrLess, ReconcileTo: ReconcileToMax}, byName["buck"].ChildrenSum)
	assert.Nil(t, byName["mcu"].ChildrenSum, "Components have no children")
	assert.Nil(t, byName["buck_losses"].ChildrenSum)
}

func TestGenerate_ChildrenSum(t *testing.T) {
	out := Generate(buckResult(t), "pt")

	assert.Contains(t, out.SankeyConfig, "    - type: entity\n"+
		"      entity_id: sensor.pt_buck\n"+
		"      name: Buck\n"+
		"      children_sum:\n"+
		"        should_be: equal_or_less\n"+
		"        reconcile_to: max\n"+
		"      children:\n"+
		"        - sensor.pt_mcu\n"+
		"        - sensor.pt_buck_losses\n")
	assert.Contains(t, out.SankeyConfig, "      entity_id: sensor.pt_total\n"+
		"      name: Active\n"+
		"      children_sum:\n"+
		"        should_be: equal\n"+
		"        reconcile_to: max\n")
	assert.NotContains(t, out.SankeyConfig, "parents_sum")
	assert.Equal(t, 3, strings.Count(out.SankeyConfig, "children_sum:"))
}
