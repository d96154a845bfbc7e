package powertree

import (
	"fmt"
	"maps"
	"strings"
)

// NodePower is the call-scoped power annotation of one node
type NodePower struct {
	InputPowerMW     float64 // Drawn from the supplying rail; a component's load
	OutputPowerMW    float64 // Sources only: sum of everything they feed
	LoadInputPowerMW float64 // Sources only: OutputPowerMW / efficiency
	QuiescentPowerMW float64 // Sources only: quiescent current at the input voltage
	Reachable        bool    // Fed, directly or not, by a root
}

// CurrentMA returns the current drawn from the given rail voltage
func (p NodePower) CurrentMA(voltage float64) float64 {
	if voltage <= 0 {
		return 0
	}
	return p.InputPowerMW / voltage
}

// Result is the outcome of propagating one use case through the tree
type Result struct {
	UseCase      string
	TotalPowerMW float64
	Nodes        map[string]NodePower
	Issues       []Issue
	Resolved     *Resolved
}

// Model returns the model the result was computed from
func (res *Result) Model() *Model {
	return res.Resolved.Model
}

// RailCurrentMA returns the battery rail current in this use case, 0 when the rail is dead
func (res *Result) RailCurrentMA() float64 {
	battery := res.Model().BatteryNode()
	if battery == nil {
		return 0
	}
	v := res.Resolved.Voltage(battery.ID)
	if v <= 0 {
		return 0
	}
	return res.TotalPowerMW / v
}

// Calculate resolves and propagates the named use case
func Calculate(m *Model, useCase string) (*Result, error) {
	r, err := Resolve(m, useCase)
	if err != nil {
		return nil, err
	}
	return Propagate(r), nil
}

// Propagate computes power flow bottom-up through every tree in the forest.
// Total system power is the sum of the roots' input power. Cycles are reported
// and cut (the revisited node contributes 0); the rest still completes.
func Propagate(r *Resolved) *Result {
	p := &propagator{
		r:        r,
		memo:     make(map[string]float64),
		nodes:    make(map[string]NodePower),
		reported: make(map[Issue]bool),
	}

	res := &Result{UseCase: r.UseCase, Resolved: r}

	p.reachable = true
	for _, id := range r.idx.order {
		if r.idx.nodes[id].IsRoot() {
			res.TotalPowerMW += p.power(id, make(map[string]bool))
		}
	}

	// Anything left was not fed by a root: a dangling reference or a cycle.
	// Walk it anyway so cycles are reported; none of it reaches the total.
	p.reachable = false
	for _, id := range r.idx.order {
		if _, done := p.memo[id]; done {
			continue
		}
		n := r.idx.nodes[id]
		if !n.IsRoot() && r.idx.source(n) == nil {
			p.note(Issue{
				Kind:   IssueDanglingSource,
				NodeID: id,
				Detail: fmt.Sprintf("input source %q is missing or not a power source", n.InputSourceID),
			})
		}
		p.power(id, make(map[string]bool))
	}

	res.Nodes = p.nodes
	res.Issues = append(append([]Issue(nil), r.Issues...), p.issues...)
	sortIssues(res.Issues)
	return res
}

type propagator struct {
	r         *Resolved
	memo      map[string]float64
	nodes     map[string]NodePower
	issues    []Issue
	reported  map[Issue]bool
	reachable bool
}

func (p *propagator) note(issue Issue) {
	if !p.reported[issue] {
		p.reported[issue] = true
		p.issues = append(p.issues, issue)
	}
}

// power returns the node's contribution to its supplying rail.
// branch holds the ids on the current path; each child gets its own copy so
// a node shared between branches is not mistaken for a cycle.
func (p *propagator) power(id string, branch map[string]bool) float64 {
	if v, ok := p.memo[id]; ok {
		return v
	}
	if branch[id] {
		p.note(Issue{
			Kind:   IssueCycleDetected,
			NodeID: id,
			Detail: "input source chain " + p.cycleChain(id),
		})
		return 0
	}

	n := p.r.idx.nodes[id]
	if n == nil {
		return 0
	}
	branch[id] = true

	if !n.IsSource() {
		load := p.componentLoad(n)
		p.memo[id] = load
		p.nodes[id] = NodePower{InputPowerMW: load, Reachable: p.reachable}
		return load
	}

	src := p.r.Sources[id]

	var outputMW float64
	for _, child := range p.r.idx.children[id] {
		outputMW += p.power(child, maps.Clone(branch))
	}

	// Efficiency 0 blocks the load entirely
	var fromLoadMW float64
	if src.Efficiency > 0 {
		fromLoadMW = outputMW / src.Efficiency
	}
	quiescentMW := p.inputVoltage(n) * src.QuiescentCurrentMA
	inputMW := fromLoadMW + quiescentMW

	p.memo[id] = inputMW
	p.nodes[id] = NodePower{
		InputPowerMW:     inputMW,
		OutputPowerMW:    outputMW,
		LoadInputPowerMW: fromLoadMW,
		QuiescentPowerMW: quiescentMW,
		Reachable:        p.reachable,
	}
	return inputMW
}

// componentLoad applies the dead-rail rule: a component on a 0 V rail draws nothing
func (p *propagator) componentLoad(n *Node) float64 {
	if src := p.r.idx.source(n); src != nil && p.r.Sources[src.ID].OutputVoltage == 0 {
		return 0
	}
	return p.r.ComponentPowerMW[n.ID]
}

// inputVoltage is the voltage a source draws its quiescent current at:
// its parent's output, or its own output when it is a root
func (p *propagator) inputVoltage(n *Node) float64 {
	if n.IsRoot() {
		return p.r.Sources[n.ID].OutputVoltage
	}
	if parent := p.r.idx.source(n); parent != nil {
		return p.r.Sources[parent.ID].OutputVoltage
	}
	return 0
}

// cycleChain renders the input source chain starting at id until it repeats
func (p *propagator) cycleChain(id string) string {
	chain := []string{id}
	seen := map[string]bool{id: true}
	for cur := p.r.idx.nodes[id]; cur != nil && cur.InputSourceID != ""; {
		next := cur.InputSourceID
		chain = append(chain, next)
		if seen[next] {
			break
		}
		seen[next] = true
		cur = p.r.idx.nodes[next]
	}
	return strings.Join(chain, " -> ")
}
