package powertree

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalJSON accepts either a weight map or a single mode name.
// Older saved models select exactly one mode per group, which runs 100% of the time.
func (b *ModeBlend) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var mode string
		if err := json.Unmarshal(data, &mode); err != nil {
			return err
		}
		*b = blendFromName(mode)
		return nil
	}

	var weights map[string]float64
	if err := json.Unmarshal(data, &weights); err != nil {
		return fmt.Errorf("mode blend: %w", err)
	}
	*b = weights
	return nil
}

// UnmarshalYAML accepts either a weight mapping or a single mode name
func (b *ModeBlend) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*b = nil
			return nil
		}
		*b = blendFromName(node.Value)
		return nil
	case yaml.MappingNode:
		var weights map[string]float64
		if err := node.Decode(&weights); err != nil {
			return fmt.Errorf("mode blend: %w", err)
		}
		*b = weights
		return nil
	default:
		return fmt.Errorf("mode blend: unexpected YAML node kind %d at line %d", node.Kind, node.Line)
	}
}

func blendFromName(mode string) ModeBlend {
	if mode == "" {
		return ModeBlend{}
	}
	return Single(mode)
}
