package weave

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ExecutorRole identifies which executor handles a node. The set of roles is
// closed: adding a role means adding an executor implementation.
type ExecutorRole string

const (
	RoleAgent      ExecutorRole = "agent"
	RoleFunction   ExecutorRole = "function"
	RoleCondition  ExecutorRole = "condition"
	RoleHumanInput ExecutorRole = "human_input"
	RoleCustom     ExecutorRole = "custom"
)

// Position is a 2-D layout hint for visual editors. It has no effect on
// execution and is carried only for round-trip fidelity.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a single computation step in a workflow graph.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Role     ExecutorRole   `json:"role" yaml:"role"`
	AgentID  string         `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	IsStart  bool           `json:"is_start,omitempty" yaml:"is_start,omitempty"`
	IsOutput bool           `json:"is_output,omitempty" yaml:"is_output,omitempty"`
	Position Position       `json:"position,omitempty" yaml:"position,omitempty"`
}

// ConfigString returns a string config value, or "" if unset.
func (n *Node) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}
	s, _ := n.Config[key].(string)
	return s
}

// Edge connects two nodes. An edge with a Condition is followed only when the
// expression evaluates truthy against the payload; an edge without one is an
// unconditional fallback.
type Edge struct {
	Source    string         `json:"source" yaml:"source"`
	Target    string         `json:"target" yaml:"target"`
	Label     string         `json:"label,omitempty" yaml:"label,omitempty"`
	Condition string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// GraphOptions are used to construct a Graph snapshot.
type GraphOptions struct {
	WorkflowID string  `json:"workflow_id" yaml:"workflow_id"`
	Name       string  `json:"name" yaml:"name"`
	Nodes      []*Node `json:"nodes" yaml:"nodes"`
	Edges      []*Edge `json:"edges" yaml:"edges"`
}

// Graph is an immutable snapshot of a workflow's nodes and edges. A Graph is
// rebuilt from storage on each validate or execute call; edits produce a new
// snapshot rather than mutating one in place.
type Graph struct {
	workflowID string
	name       string
	nodes      []*Node
	edges      []*Edge
	nodesByID  map[string]*Node
	outgoing   map[string][]*Edge
}

// NewGraph builds a Graph from the given options. Node IDs must be non-empty
// and unique; deeper structural checks belong to Validate.
func NewGraph(opts GraphOptions) (*Graph, error) {
	if opts.WorkflowID == "" {
		return nil, fmt.Errorf("workflow id required")
	}
	nodesByID := make(map[string]*Node, len(opts.Nodes))
	for _, node := range opts.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("node id required")
		}
		if _, exists := nodesByID[node.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}
		nodesByID[node.ID] = node
	}
	outgoing := make(map[string][]*Edge)
	for _, edge := range opts.Edges {
		outgoing[edge.Source] = append(outgoing[edge.Source], edge)
	}
	return &Graph{
		workflowID: opts.WorkflowID,
		name:       opts.Name,
		nodes:      opts.Nodes,
		edges:      opts.Edges,
		nodesByID:  nodesByID,
		outgoing:   outgoing,
	}, nil
}

// WorkflowID returns the identity of the workflow this graph belongs to.
func (g *Graph) WorkflowID() string {
	return g.workflowID
}

// Name returns the workflow name.
func (g *Graph) Name() string {
	return g.name
}

// Nodes returns the graph nodes in definition order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Edges returns the graph edges.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// NodeByID returns a node by its id.
func (g *Graph) NodeByID(id string) (*Node, bool) {
	node, ok := g.nodesByID[id]
	return node, ok
}

// StartNode returns the node marked as the start node, if exactly one exists.
func (g *Graph) StartNode() (*Node, bool) {
	var start *Node
	for _, node := range g.nodes {
		if node.IsStart {
			if start != nil {
				return nil, false
			}
			start = node
		}
	}
	return start, start != nil
}

// OutgoingEdges returns the edges leaving the given node, in definition order.
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	return g.outgoing[nodeID]
}

// NodeIDs returns the ids of all nodes in the graph, sorted.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodesByID))
	for id := range g.nodesByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadFile loads a graph definition from a YAML file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	return LoadString(string(data))
}

// LoadString loads a graph definition from a YAML string.
func LoadString(data string) (*Graph, error) {
	var opts GraphOptions
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph definition: %w", err)
	}
	return NewGraph(opts)
}
