package weave

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tessellate-ai/weave/script"
)

// GraphStats summarizes the structure of a validated graph.
type GraphStats struct {
	NodeCount    int                  `json:"node_count"`
	EdgeCount    int                  `json:"edge_count"`
	NodesByRole  map[ExecutorRole]int `json:"nodes_by_role"`
	StartNodes   int                  `json:"start_nodes"`
	OutputNodes  int                  `json:"output_nodes"`
	MaxDepth     int                  `json:"max_depth"`
	AvgOutDegree float64              `json:"avg_out_degree"`
}

// ValidationResult aggregates validation diagnostics. Valid is true exactly
// when Errors is empty; warnings never affect validity.
type ValidationResult struct {
	Valid    bool       `json:"valid"`
	Errors   []string   `json:"errors"`
	Warnings []string   `json:"warnings"`
	Stats    GraphStats `json:"stats"`
}

// Validate checks a graph's structure and returns all diagnostics in one
// pass. It is pure and deterministic: validating the same graph twice yields
// identical results.
func Validate(graph *Graph) *ValidationResult {
	return ValidateWithCompiler(context.Background(), graph, nil)
}

// ValidateWithCompiler behaves like Validate and additionally compiles edge
// condition expressions with the given compiler, reporting malformed
// expressions as errors. A nil compiler skips the syntax checks.
func ValidateWithCompiler(ctx context.Context, graph *Graph, compiler script.Compiler) *ValidationResult {
	result := &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if len(graph.Nodes()) == 0 {
		result.Errors = append(result.Errors, "workflow must have at least one node")
		result.Stats = computeStats(graph)
		return result
	}

	checkStartNode(graph, result)
	checkNodeConfigs(graph, result)
	checkEdges(ctx, graph, compiler, result)
	checkCycles(graph, result)
	checkReachability(graph, result)
	checkDeadEnds(graph, result)
	checkOutputNodes(graph, result)

	result.Valid = len(result.Errors) == 0
	result.Stats = computeStats(graph)
	return result
}

func checkStartNode(graph *Graph, result *ValidationResult) {
	count := 0
	for _, node := range graph.Nodes() {
		if node.IsStart {
			count++
		}
	}
	if count == 0 {
		result.Errors = append(result.Errors, "workflow must have exactly one start node")
	} else if count > 1 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("workflow has %d start nodes, but must have exactly one", count))
	}
}

func checkNodeConfigs(graph *Graph, result *ValidationResult) {
	for _, node := range graph.Nodes() {
		switch node.Role {
		case RoleAgent:
			if node.AgentID == "" && node.ConfigString("instructions") == "" {
				result.Errors = append(result.Errors,
					fmt.Sprintf("agent node %q requires either an agent reference or instructions", node.Name))
			}
		case RoleFunction:
			if node.ConfigString("function_code") == "" && node.ConfigString("function_name") == "" {
				result.Errors = append(result.Errors,
					fmt.Sprintf("function node %q requires function_code or function_name", node.Name))
			}
		case RoleCondition:
			if node.ConfigString("condition") == "" {
				result.Errors = append(result.Errors,
					fmt.Sprintf("condition node %q requires a condition expression", node.Name))
			}
		case RoleHumanInput:
			if node.ConfigString("prompt") == "" {
				result.Errors = append(result.Errors,
					fmt.Sprintf("human input node %q requires a prompt", node.Name))
			}
		}
	}
}

func checkEdges(ctx context.Context, graph *Graph, compiler script.Compiler, result *ValidationResult) {
	for _, edge := range graph.Edges() {
		if _, ok := graph.NodeByID(edge.Source); !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("edge references non-existent source node %q", edge.Source))
		}
		if _, ok := graph.NodeByID(edge.Target); !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("edge references non-existent target node %q", edge.Target))
		}
		if edge.Source == edge.Target {
			name := edge.Source
			if node, ok := graph.NodeByID(edge.Source); ok {
				name = node.Name
			}
			result.Errors = append(result.Errors,
				fmt.Sprintf("edge creates a self-loop on node %q", name))
		}
		if edge.Condition != "" && compiler != nil {
			if err := script.CheckSyntax(ctx, compiler, edge.Condition); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("edge %s -> %s has an invalid condition: %v", edge.Source, edge.Target, err))
			}
		}
	}
}

// checkCycles detects back-edges with a depth-first traversal carrying a
// recursion stack, and reports the full cycle by node name.
func checkCycles(graph *Graph, result *ValidationResult) {
	visited := map[string]bool{}
	onStack := map[string]bool{}

	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, edge := range graph.OutgoingEdges(id) {
			next := edge.Target
			if _, ok := graph.NodeByID(next); !ok {
				continue // reported by checkEdges
			}
			if !visited[next] {
				if visit(next, path) {
					return true
				}
			} else if onStack[next] {
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), next)
				names := make([]string, len(cycle))
				for i, nodeID := range cycle {
					names[i] = nodeID
					if node, ok := graph.NodeByID(nodeID); ok {
						names[i] = node.Name
					}
				}
				result.Errors = append(result.Errors,
					fmt.Sprintf("cycle detected: %s", strings.Join(names, " -> ")))
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, node := range graph.Nodes() {
		if !visited[node.ID] {
			visit(node.ID, nil)
		}
	}
}

// checkReachability walks breadth-first from the start node. Unreachable
// nodes are a warning: the run will simply never touch them.
func checkReachability(graph *Graph, result *ValidationResult) {
	start, ok := graph.StartNode()
	if !ok {
		return // missing or ambiguous start is already an error
	}

	reachable := reachableFrom(graph, start.ID)

	var unreachable []string
	for _, node := range graph.Nodes() {
		if !reachable[node.ID] {
			unreachable = append(unreachable, node.Name)
		}
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("unreachable nodes: %s", strings.Join(unreachable, ", ")))
	}
}

func checkDeadEnds(graph *Graph, result *ValidationResult) {
	incoming := map[string]int{}
	for _, edge := range graph.Edges() {
		incoming[edge.Target]++
	}
	for _, node := range graph.Nodes() {
		hasOutgoing := len(graph.OutgoingEdges(node.ID)) > 0
		hasIncoming := incoming[node.ID] > 0
		if !hasOutgoing && !hasIncoming && len(graph.Nodes()) > 1 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("node %q is orphaned - it has no connections", node.Name))
		} else if !hasOutgoing && !node.IsOutput {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("node %q has no outgoing edges and is not an output node - it may be a dead end", node.Name))
		}
	}
}

func checkOutputNodes(graph *Graph, result *ValidationResult) {
	for _, node := range graph.Nodes() {
		if node.IsOutput {
			return
		}
	}
	result.Warnings = append(result.Warnings,
		"workflow has no output nodes - workflow output may be empty")
}

func reachableFrom(graph *Graph, startID string) map[string]bool {
	reachable := map[string]bool{startID: true}
	queue := []string{startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, edge := range graph.OutgoingEdges(current) {
			if _, ok := graph.NodeByID(edge.Target); !ok {
				continue
			}
			if !reachable[edge.Target] {
				reachable[edge.Target] = true
				queue = append(queue, edge.Target)
			}
		}
	}
	return reachable
}

func computeStats(graph *Graph) GraphStats {
	stats := GraphStats{
		NodeCount:   len(graph.Nodes()),
		EdgeCount:   len(graph.Edges()),
		NodesByRole: map[ExecutorRole]int{},
	}
	for _, node := range graph.Nodes() {
		stats.NodesByRole[node.Role]++
		if node.IsStart {
			stats.StartNodes++
		}
		if node.IsOutput {
			stats.OutputNodes++
		}
	}

	// Max depth via BFS from the start node, counting the start as depth 1.
	if start, ok := graph.StartNode(); ok {
		type item struct {
			id    string
			depth int
		}
		visited := map[string]bool{}
		queue := []item{{start.ID, 1}}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if visited[current.id] {
				continue
			}
			visited[current.id] = true
			if current.depth > stats.MaxDepth {
				stats.MaxDepth = current.depth
			}
			for _, edge := range graph.OutgoingEdges(current.id) {
				if _, ok := graph.NodeByID(edge.Target); ok {
					queue = append(queue, item{edge.Target, current.depth + 1})
				}
			}
		}
	}

	// Average out-degree over nodes with at least one outgoing edge.
	var withOutgoing, totalOutgoing int
	for _, node := range graph.Nodes() {
		if n := len(graph.OutgoingEdges(node.ID)); n > 0 {
			withOutgoing++
			totalOutgoing += n
		}
	}
	if withOutgoing > 0 {
		stats.AvgOutDegree = float64(totalOutgoing) / float64(withOutgoing)
	}
	return stats
}
