package powertree

import (
	"fmt"
	"maps"
	"slices"
)

// The editing helpers below belong to the model's owner, not the engine.
// They mutate the model in place and keep use cases and profiles consistent
// with renamed or removed modes.

// nextID allocates a node id in the node_<n> scheme of saved models
func (m *Model) nextID() string {
	for {
		m.MaxID++
		id := fmt.Sprintf("node_%d", m.MaxID)
		if m.Node(id) == nil {
			return id
		}
	}
}

func (m *Model) requireSource(id string) error {
	if id == "" {
		return nil
	}
	n := m.Node(id)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	if !n.IsSource() {
		return fmt.Errorf("%w: %q", ErrNotPowerSource, id)
	}
	return nil
}

// AddPowerSource appends a regulator fed by inputSourceID (empty for a root),
// seeds its On and Off modes and selects On in every use case
func (m *Model) AddPowerSource(label, inputSourceID string, on SourceMode) (string, error) {
	if err := m.requireSource(inputSourceID); err != nil {
		return "", err
	}

	id := m.nextID()
	m.Nodes = append(m.Nodes, Node{
		ID:            id,
		Label:         label,
		Type:          TypePowerSource,
		InputSourceID: inputSourceID,
	})

	if m.SourceModes == nil {
		m.SourceModes = make(map[string]map[string]SourceMode)
	}
	m.SourceModes[id] = map[string]SourceMode{
		ModeOn:  on,
		ModeOff: OffMode(on),
	}

	for name, uc := range m.UseCases {
		if uc.PowerSources == nil {
			uc.PowerSources = make(map[string]string)
		}
		uc.PowerSources[id] = ModeOn
		m.UseCases[name] = uc
	}
	return id, nil
}

// UpdatePowerSource relabels and reparents a source and replaces its On mode,
// keeping the On note. Off follows the new quiescent current.
func (m *Model) UpdatePowerSource(id, label, inputSourceID string, on SourceMode) error {
	n := m.Node(id)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	if !n.IsSource() {
		return fmt.Errorf("%w: %q", ErrNotPowerSource, id)
	}
	if err := m.requireSource(inputSourceID); err != nil {
		return err
	}
	if m.feeds(id, inputSourceID) {
		return fmt.Errorf("%w: %q cannot be fed by %q", ErrWouldCycle, id, inputSourceID)
	}

	n.Label = label
	n.InputSourceID = inputSourceID

	if m.SourceModes == nil {
		m.SourceModes = make(map[string]map[string]SourceMode)
	}
	modes := m.SourceModes[id]
	if modes == nil {
		modes = make(map[string]SourceMode)
		m.SourceModes[id] = modes
	}
	on.Note = modes[ModeOn].Note
	modes[ModeOn] = on
	if off, ok := modes[ModeOff]; ok {
		off.QuiescentCurrentMA = on.QuiescentCurrentMA
		modes[ModeOff] = off
	}
	return nil
}

// feeds reports whether source id is on the supply path of target (or is target)
func (m *Model) feeds(id, target string) bool {
	for cur, steps := target, 0; cur != "" && steps <= len(m.Nodes); steps++ {
		if cur == id {
			return true
		}
		n := m.Node(cur)
		if n == nil {
			return false
		}
		cur = n.InputSourceID
	}
	return false
}

// AddComponent appends a component to a group, recording its current in the
// group's Default mode (created along with the group when missing)
func (m *Model) AddComponent(group, endpoint, inputSourceID string, defaultCurrentMA float64) (string, error) {
	if err := m.requireSource(inputSourceID); err != nil {
		return "", err
	}

	id := m.nextID()
	m.Nodes = append(m.Nodes, Node{
		ID:            id,
		Type:          TypeComponent,
		InputSourceID: inputSourceID,
		Group:         group,
		Endpoint:      endpoint,
	})

	m.setDefaultCurrent(group, id, defaultCurrentMA)

	// A brand new group runs its Default mode wherever it has no selection yet
	for name, uc := range m.UseCases {
		if _, ok := uc.Components[group]; ok {
			continue
		}
		if uc.Components == nil {
			uc.Components = make(map[string]ModeBlend)
		}
		uc.Components[group] = Single(DefaultComponentMode)
		m.UseCases[name] = uc
	}
	return id, nil
}

// UpdateComponent edits a component's endpoint, supply and Default current,
// moving it to another group when group differs. A moved component takes its
// Default current along and leaves the old group's modes. Once the old group
// has no members its selection is dropped from every use case, carried over
// to the new group when the new group has no selection and knows every mode
// in it; otherwise the new group runs Default.
func (m *Model) UpdateComponent(id, group, endpoint, inputSourceID string, defaultCurrentMA float64) error {
	n := m.Node(id)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	if n.IsSource() {
		return fmt.Errorf("%w: %q", ErrNotComponent, id)
	}
	if err := m.requireSource(inputSourceID); err != nil {
		return err
	}

	n.Endpoint = endpoint
	n.InputSourceID = inputSourceID
	from := n.Group
	if group == "" || group == from {
		m.setDefaultCurrent(from, id, defaultCurrentMA)
		return nil
	}

	for name, mode := range m.ComponentModes[from] {
		delete(mode.CurrentsMA, id)
		m.ComponentModes[from][name] = mode
	}
	n.Group = group
	m.setDefaultCurrent(group, id, defaultCurrentMA)

	emptied := !slices.ContainsFunc(m.Nodes, func(other Node) bool {
		return !other.IsSource() && other.Group == from
	})
	known := func(blend ModeBlend) bool {
		for mode := range blend {
			if _, ok := m.ComponentModes[group][mode]; !ok {
				return false
			}
		}
		return len(blend) > 0
	}

	for name, uc := range m.UseCases {
		old, hadOld := uc.Components[from]
		if emptied {
			delete(uc.Components, from)
		}
		if _, ok := uc.Components[group]; ok {
			continue
		}
		if uc.Components == nil {
			uc.Components = make(map[string]ModeBlend)
		}
		if emptied && hadOld && known(old) {
			uc.Components[group] = old
		} else {
			uc.Components[group] = Single(DefaultComponentMode)
		}
		m.UseCases[name] = uc
	}
	return nil
}

// setDefaultCurrent records a member's current in the group's Default mode,
// creating the group when missing. Other modes get an explicit 0 mA entry.
func (m *Model) setDefaultCurrent(group, id string, currentMA float64) {
	if m.ComponentModes == nil {
		m.ComponentModes = make(map[string]map[string]ComponentMode)
	}
	modes := m.ComponentModes[group]
	if modes == nil {
		modes = make(map[string]ComponentMode)
		m.ComponentModes[group] = modes
	}
	def, ok := modes[DefaultComponentMode]
	if !ok {
		def = ComponentMode{Note: "Default operating mode."}
	}
	if def.CurrentsMA == nil {
		def.CurrentsMA = make(map[string]float64)
	}
	def.CurrentsMA[id] = currentMA
	modes[DefaultComponentMode] = def

	for name, mode := range modes {
		if name == DefaultComponentMode {
			continue
		}
		if mode.CurrentsMA == nil {
			mode.CurrentsMA = make(map[string]float64)
		}
		if _, ok := mode.CurrentsMA[id]; !ok {
			mode.CurrentsMA[id] = 0
		}
		modes[name] = mode
	}
}

// AddSourceMode adds a blank mode to a source: 0 V, 90% efficiency, no quiescent draw
func (m *Model) AddSourceMode(sourceID, name string) error {
	if sourceID == "" {
		return fmt.Errorf("%w: %q", ErrUnknownNode, sourceID)
	}
	if err := m.requireSource(sourceID); err != nil {
		return err
	}
	if m.SourceModes == nil {
		m.SourceModes = make(map[string]map[string]SourceMode)
	}
	modes := m.SourceModes[sourceID]
	if _, exists := modes[name]; exists || name == "" {
		return fmt.Errorf("%w: %q on %q", ErrModeExists, name, sourceID)
	}
	if modes == nil {
		modes = make(map[string]SourceMode)
		m.SourceModes[sourceID] = modes
	}
	modes[name] = SourceMode{Efficiency: 0.9}
	return nil
}

// RenameSourceMode renames a source mode and retargets every use case selecting it
func (m *Model) RenameSourceMode(sourceID, from, to string) error {
	modes := m.SourceModes[sourceID]
	mode, ok := modes[from]
	if !ok {
		return fmt.Errorf("%w: %q on %q", ErrUnknownMode, from, sourceID)
	}
	if _, exists := modes[to]; exists || to == "" {
		return fmt.Errorf("%w: %q on %q", ErrModeExists, to, sourceID)
	}

	delete(modes, from)
	modes[to] = mode
	for _, uc := range m.UseCases {
		if uc.PowerSources[sourceID] == from {
			uc.PowerSources[sourceID] = to
		}
	}
	return nil
}

// DeleteSourceMode removes a custom source mode; use cases selecting it fall back to On.
// On and Off cannot be removed.
func (m *Model) DeleteSourceMode(sourceID, name string) error {
	if name == ModeOn || name == ModeOff {
		return fmt.Errorf("%w: %q", ErrProtectedMode, name)
	}
	modes := m.SourceModes[sourceID]
	if _, ok := modes[name]; !ok {
		return fmt.Errorf("%w: %q on %q", ErrUnknownMode, name, sourceID)
	}

	delete(modes, name)
	fallback := ModeOn
	if _, ok := modes[ModeOn]; !ok && len(modes) > 0 {
		fallback = slices.Min(slices.Collect(maps.Keys(modes)))
	}
	for _, uc := range m.UseCases {
		if uc.PowerSources[sourceID] == name {
			uc.PowerSources[sourceID] = fallback
		}
	}
	return nil
}

// AddComponentMode adds a mode to a group drawing 0 mA on every current member
func (m *Model) AddComponentMode(group, name string) error {
	if m.ComponentModes == nil {
		m.ComponentModes = make(map[string]map[string]ComponentMode)
	}
	modes := m.ComponentModes[group]
	if _, exists := modes[name]; exists || name == "" {
		return fmt.Errorf("%w: %q in group %q", ErrModeExists, name, group)
	}
	if modes == nil {
		modes = make(map[string]ComponentMode)
		m.ComponentModes[group] = modes
	}

	currents := make(map[string]float64)
	for _, n := range m.Nodes {
		if !n.IsSource() && n.Group == group {
			currents[n.ID] = 0
		}
	}
	modes[name] = ComponentMode{CurrentsMA: currents}
	return nil
}

// RenameComponentMode renames a group mode, carrying its weight in every use case
func (m *Model) RenameComponentMode(group, from, to string) error {
	modes := m.ComponentModes[group]
	mode, ok := modes[from]
	if !ok {
		return fmt.Errorf("%w: %q in group %q", ErrUnknownMode, from, group)
	}
	if _, exists := modes[to]; exists || to == "" {
		return fmt.Errorf("%w: %q in group %q", ErrModeExists, to, group)
	}

	delete(modes, from)
	modes[to] = mode
	for _, uc := range m.UseCases {
		blend := uc.Components[group]
		if w, ok := blend[from]; ok {
			delete(blend, from)
			blend[to] += w
		}
	}
	return nil
}

// DeleteComponentMode removes a group mode. Its weight moves to Default, or
// to the first remaining mode by name. The last mode of a group cannot be removed.
func (m *Model) DeleteComponentMode(group, name string) error {
	modes := m.ComponentModes[group]
	if _, ok := modes[name]; !ok {
		return fmt.Errorf("%w: %q in group %q", ErrUnknownMode, name, group)
	}
	if len(modes) == 1 {
		return fmt.Errorf("%w: %q is the only mode of group %q", ErrProtectedMode, name, group)
	}

	delete(modes, name)
	fallback := DefaultComponentMode
	if _, ok := modes[DefaultComponentMode]; !ok {
		fallback = slices.Min(slices.Collect(maps.Keys(modes)))
	}
	for _, uc := range m.UseCases {
		blend := uc.Components[group]
		if w, ok := blend[name]; ok {
			delete(blend, name)
			blend[fallback] += w
		}
	}
	return nil
}

// AddUseCase creates a use case with every source On and every group running
// its Default (or first) mode, and adds it to every profile at 0 hours
func (m *Model) AddUseCase(name string) error {
	if _, exists := m.UseCases[name]; exists || name == "" {
		return fmt.Errorf("%w: %q", ErrUseCaseExists, name)
	}

	uc := UseCase{
		PowerSources: make(map[string]string),
		Components:   make(map[string]ModeBlend),
	}
	for _, n := range m.Nodes {
		if n.IsSource() {
			uc.PowerSources[n.ID] = ModeOn
		}
	}
	for _, group := range m.Groups() {
		modes := m.ComponentModes[group]
		if len(modes) == 0 {
			continue
		}
		mode := DefaultComponentMode
		if _, ok := modes[mode]; !ok {
			mode = slices.Min(slices.Collect(maps.Keys(modes)))
		}
		uc.Components[group] = Single(mode)
	}

	if m.UseCases == nil {
		m.UseCases = make(map[string]UseCase)
	}
	m.UseCases[name] = uc
	for _, profile := range m.Profiles {
		if _, ok := profile[name]; !ok {
			profile[name] = 0
		}
	}
	return nil
}

// DeleteUseCase removes a use case and its hours from every profile
func (m *Model) DeleteUseCase(name string) error {
	if _, ok := m.UseCases[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUseCase, name)
	}
	delete(m.UseCases, name)
	for _, profile := range m.Profiles {
		delete(profile, name)
	}
	return nil
}
