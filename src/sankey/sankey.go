package sankey

import (
	"fmt"
	"strings"

	"github.com/ryansname/powertree/src/powertree"
)

// GeneratedConfigs holds both generated YAML outputs
type GeneratedConfigs struct {
	SankeyConfig string
	Templates    string
}

// Generate produces both YAML configurations for one use case
func Generate(res *powertree.Result, prefix string) GeneratedConfigs {
	cfg := FromResult(res, prefix)
	return GeneratedConfigs{
		SankeyConfig: GenerateSankeyYAML(cfg),
		Templates:    GenerateTemplatesYAML(cfg),
	}
}

// FromResult lays out a propagation result as a sankey config. Every node fed
// by a root gets a template sensor holding its input power in mW; regulator
// losses are drawn as the remainder of their input.
func FromResult(res *powertree.Result, prefix string) Config {
	b := &builder{
		res:     res,
		m:       res.Model(),
		prefix:  slug(prefix),
		visited: make(map[string]bool),
	}

	// The total template is the sum of the roots
	total := Group{
		Name:        "total",
		Section:     0,
		Sensors:     []Sensor{{Name: b.entityID("total"), Label: res.UseCase}},
		ChildrenSum: &Reconcile{ShouldBe: ShouldBeEqual, ReconcileTo: ReconcileToMax},
	}
	var rootEntities []string
	for _, id := range b.m.Roots() {
		if b.add(id, 1) {
			total.Children = append(total.Children, id)
			rootEntities = append(rootEntities, b.entityID(id))
		}
	}

	b.cfg.Sensors = append([]SensorTemplate{{
		Name:     b.objectID("total"),
		Type:     TemplateSum,
		Entities: rootEntities,
	}}, b.cfg.Sensors...)
	b.cfg.Groups = append([]Group{total}, b.cfg.Groups...)
	return b.cfg
}

type builder struct {
	res     *powertree.Result
	m       *powertree.Model
	prefix  string
	visited map[string]bool
	cfg     Config
}

// add appends the group for id and its subtree, reporting whether it was drawn
func (b *builder) add(id string, section Section) bool {
	np, ok := b.res.Nodes[id]
	n := b.m.Node(id)
	if !ok || !np.Reachable || n == nil || b.visited[id] {
		return false
	}
	b.visited[id] = true

	b.cfg.Sensors = append(b.cfg.Sensors, SensorTemplate{
		Name:    b.objectID(id),
		Type:    TemplateFormula,
		Formula: fmt.Sprintf("%.4f", np.InputPowerMW),
	})

	// Reserve the slot so parents come before children
	at := len(b.cfg.Groups)
	b.cfg.Groups = append(b.cfg.Groups, Group{})

	g := Group{
		Name:    id,
		Section: section,
		Sensors: []Sensor{{Name: b.entityID(id), Label: n.DisplayName()}},
	}
	if n.IsSource() {
		for _, child := range b.m.Children(id) {
			if b.add(child, section+1) {
				g.Children = append(g.Children, child)
			}
		}
		if np.InputPowerMW-np.OutputPowerMW > 0 {
			loss := id + "_losses"
			b.cfg.Groups = append(b.cfg.Groups, Group{
				Name:    loss,
				Section: section + 1,
				Other: &RemainderStrategy{
					Key:   b.entityID(loss),
					Label: n.DisplayName() + " losses",
				},
			})
			g.Children = append(g.Children, loss)
		}
		// A regulator's input covers its children
		if len(g.Children) > 0 {
			g.ChildrenSum = &Reconcile{ShouldBe: ShouldBeEqualOrLess, ReconcileTo: ReconcileToMax}
		}
	}
	b.cfg.Groups[at] = g
	return true
}

func (b *builder) objectID(id string) string {
	return b.prefix + "_" + slug(id)
}

func (b *builder) entityID(id string) string {
	return "sensor." + b.objectID(id)
}

// slug lowercases s and replaces anything outside [a-z0-9] with underscores
func slug(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		default:
			return '_'
		}
	}, s)
}
