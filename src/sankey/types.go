package sankey

// Section is a column of the sankey diagram: 0 holds the system total,
// 1 the roots, and each further section one level deeper into the tree
type Section int

// TemplateType represents the type of template calculation
type TemplateType int

const (
	TemplateFormula TemplateType = iota
	TemplateSum
)

// SensorTemplate defines a calculated sensor template
type SensorTemplate struct {
	Name     string
	Type     TemplateType
	Formula  string   // Used when Type == TemplateFormula
	Entities []string // Used when Type == TemplateSum
}

// Sensor represents a sensor entity in a group
type Sensor struct {
	Name  string
	Label string // Optional display label
}

// ShouldBe is how a node's state compares to the sum of its children
type ShouldBe string

const (
	ShouldBeEqual       ShouldBe = "equal"
	ShouldBeEqualOrLess ShouldBe = "equal_or_less" // children may draw less than the parent
)

// ReconcileTo is the side the chart trusts when a sum check fails
type ReconcileTo string

const ReconcileToMax ReconcileTo = "max"

// Reconcile is a sum check the chart applies to an entity and its children
type Reconcile struct {
	ShouldBe    ShouldBe
	ReconcileTo ReconcileTo
}

// RemainderStrategy is a remaining_parent_state entity: whatever of the
// parent's state its other children do not account for.
// A regulator's conversion and quiescent losses are drawn this way.
type RemainderStrategy struct {
	Key   string
	Label string
}

// Group represents a group of sensors in a section
type Group struct {
	Name        string
	Section     Section
	Sensors     []Sensor
	ChildrenSum *Reconcile         // Optional check on the sensors' children
	Other       *RemainderStrategy // Optional remainder entity
	Children    []string           // Child group names
}

// Config holds the complete sankey configuration
type Config struct {
	Sensors []SensorTemplate
	Groups  []Group
}

// Sections returns the number of sections the groups span
func (c Config) Sections() int {
	var n int
	for _, g := range c.Groups {
		n = max(n, int(g.Section)+1)
	}
	return n
}
