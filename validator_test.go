package weave

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessellate-ai/weave/script"
)

func mustGraph(t *testing.T, opts GraphOptions) *Graph {
	t.Helper()
	graph, err := NewGraph(opts)
	require.NoError(t, err)
	return graph
}

func functionNode(id, name string) *Node {
	return &Node{
		ID:     id,
		Name:   name,
		Role:   RoleFunction,
		Config: map[string]any{"function_name": "noop"},
	}
}

func TestValidateEmptyWorkflow(t *testing.T) {
	graph := mustGraph(t, GraphOptions{WorkflowID: "wf-empty"})
	result := Validate(graph)
	require.False(t, result.Valid)
	require.Equal(t, []string{"workflow must have at least one node"}, result.Errors)
	require.Zero(t, result.Stats.NodeCount)
}

func TestValidateStartNodes(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		graph := mustGraph(t, GraphOptions{
			WorkflowID: "wf-1",
			Nodes:      []*Node{functionNode("a", "A")},
		})
		result := Validate(graph)
		require.False(t, result.Valid)
		require.Contains(t, result.Errors, "workflow must have exactly one start node")
	})

	t.Run("Multiple", func(t *testing.T) {
		a := functionNode("a", "A")
		a.IsStart = true
		b := functionNode("b", "B")
		b.IsStart = true
		graph := mustGraph(t, GraphOptions{
			WorkflowID: "wf-1",
			Nodes:      []*Node{a, b},
			Edges:      []*Edge{{Source: "a", Target: "b"}},
		})
		result := Validate(graph)
		require.False(t, result.Valid)
		require.Contains(t, result.Errors, "workflow has 2 start nodes, but must have exactly one")
	})
}

func TestValidateNodeConfigs(t *testing.T) {
	start := functionNode("start", "Start")
	start.IsStart = true
	graph := mustGraph(t, GraphOptions{
		WorkflowID: "wf-1",
		Nodes: []*Node{
			start,
			{ID: "agent", Name: "Agent", Role: RoleAgent},
			{ID: "fn", Name: "Fn", Role: RoleFunction},
			{ID: "cond", Name: "Cond", Role: RoleCondition},
			{ID: "gate", Name: "Gate", Role: RoleHumanInput},
		},
		Edges: []*Edge{
			{Source: "start", Target: "agent"},
			{Source: "agent", Target: "fn"},
			{Source: "fn", Target: "cond"},
			{Source: "cond", Target: "gate"},
		},
	})
	result := Validate(graph)
	require.False(t, result.Valid)
	require.Contains(t, result.Errors, `agent node "Agent" requires either an agent reference or instructions`)
	require.Contains(t, result.Errors, `function node "Fn" requires function_code or function_name`)
	require.Contains(t, result.Errors, `condition node "Cond" requires a condition expression`)
	require.Contains(t, result.Errors, `human input node "Gate" requires a prompt`)
}

func TestValidateEdges(t *testing.T) {
	a := functionNode("a", "A")
	a.IsStart = true
	graph := mustGraph(t, GraphOptions{
		WorkflowID: "wf-1",
		Nodes:      []*Node{a},
		Edges: []*Edge{
			{Source: "a", Target: "ghost"},
			{Source: "phantom", Target: "a"},
			{Source: "a", Target: "a"},
		},
	})
	result := Validate(graph)
	require.False(t, result.Valid)
	require.Contains(t, result.Errors, `edge references non-existent target node "ghost"`)
	require.Contains(t, result.Errors, `edge references non-existent source node "phantom"`)
	require.Contains(t, result.Errors, `edge creates a self-loop on node "A"`)
}

func TestValidateConditionSyntax(t *testing.T) {
	a := functionNode("a", "A")
	a.IsStart = true
	b := functionNode("b", "B")
	b.IsOutput = true
	graph := mustGraph(t, GraphOptions{
		WorkflowID: "wf-1",
		Nodes:      []*Node{a, b},
		Edges: []*Edge{
			{Source: "a", Target: "b", Condition: "data['x' >"},
		},
	})

	// Without a compiler the malformed condition is not detected.
	require.True(t, Validate(graph).Valid)

	compiler := script.NewRisorEngine(script.DefaultGlobals())
	result := ValidateWithCompiler(context.Background(), graph, compiler)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "edge a -> b has an invalid condition")
}

func TestValidateCycles(t *testing.T) {
	a := functionNode("a", "A")
	a.IsStart = true
	b := functionNode("b", "B")
	graph := mustGraph(t, GraphOptions{
		WorkflowID: "wf-1",
		Nodes:      []*Node{a, b},
		Edges: []*Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	})
	result := Validate(graph)
	require.False(t, result.Valid)
	require.Contains(t, result.Errors, "cycle detected: A -> B -> A")
}

func TestValidateWarnings(t *testing.T) {
	t.Run("UnreachableNodes", func(t *testing.T) {
		a := functionNode("a", "A")
		a.IsStart = true
		a.IsOutput = true
		b := functionNode("b", "B")
		c := functionNode("c", "C")
		graph := mustGraph(t, GraphOptions{
			WorkflowID: "wf-1",
			Nodes:      []*Node{a, b, c},
			Edges:      []*Edge{{Source: "b", Target: "c"}},
		})
		result := Validate(graph)
		require.True(t, result.Valid)
		require.Contains(t, result.Warnings, "unreachable nodes: B, C")
	})

	t.Run("OrphanedNode", func(t *testing.T) {
		a := functionNode("a", "A")
		a.IsStart = true
		b := functionNode("b", "B")
		c := functionNode("c", "C")
		graph := mustGraph(t, GraphOptions{
			WorkflowID: "wf-1",
			Nodes:      []*Node{a, b, c},
			Edges:      []*Edge{{Source: "a", Target: "b"}},
		})
		result := Validate(graph)
		require.Contains(t, result.Warnings, `node "C" is orphaned - it has no connections`)
	})

	t.Run("DeadEnd", func(t *testing.T) {
		a := functionNode("a", "A")
		a.IsStart = true
		b := functionNode("b", "B")
		graph := mustGraph(t, GraphOptions{
			WorkflowID: "wf-1",
			Nodes:      []*Node{a, b},
			Edges:      []*Edge{{Source: "a", Target: "b"}},
		})
		result := Validate(graph)
		require.Contains(t, result.Warnings,
			`node "B" has no outgoing edges and is not an output node - it may be a dead end`)
	})

	t.Run("NoOutputNodes", func(t *testing.T) {
		a := functionNode("a", "A")
		a.IsStart = true
		graph := mustGraph(t, GraphOptions{
			WorkflowID: "wf-1",
			Nodes:      []*Node{a},
		})
		result := Validate(graph)
		require.Contains(t, result.Warnings, "workflow has no output nodes - workflow output may be empty")
	})
}

func TestValidateDeterministic(t *testing.T) {
	a := functionNode("a", "A")
	a.IsStart = true
	nodes := []*Node{a}
	var edges []*Edge
	for i := 0; i < 6; i++ {
		node := functionNode(fmt.Sprintf("n%d", i), fmt.Sprintf("N%d", i))
		nodes = append(nodes, node)
	}
	edges = append(edges,
		&Edge{Source: "a", Target: "n0"},
		&Edge{Source: "n0", Target: "n1"},
		&Edge{Source: "n1", Target: "n0"})
	graph := mustGraph(t, GraphOptions{WorkflowID: "wf-1", Nodes: nodes, Edges: edges})

	first := Validate(graph)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Validate(graph))
	}
}

func TestGraphStats(t *testing.T) {
	a := &Node{ID: "a", Name: "A", Role: RoleFunction, IsStart: true,
		Config: map[string]any{"function_name": "noop"}}
	b := &Node{ID: "b", Name: "B", Role: RoleCondition,
		Config: map[string]any{"condition": "true"}}
	c := &Node{ID: "c", Name: "C", Role: RoleFunction, IsOutput: true,
		Config: map[string]any{"function_name": "noop"}}
	d := &Node{ID: "d", Name: "D", Role: RoleFunction, IsOutput: true,
		Config: map[string]any{"function_name": "noop"}}
	graph := mustGraph(t, GraphOptions{
		WorkflowID: "wf-stats",
		Nodes:      []*Node{a, b, c, d},
		Edges: []*Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c", Condition: "true"},
			{Source: "b", Target: "d"},
		},
	})

	result := Validate(graph)
	require.True(t, result.Valid)

	stats := result.Stats
	require.Equal(t, 4, stats.NodeCount)
	require.Equal(t, 3, stats.EdgeCount)
	require.Equal(t, 1, stats.StartNodes)
	require.Equal(t, 2, stats.OutputNodes)
	require.Equal(t, 3, stats.NodesByRole[RoleFunction])
	require.Equal(t, 1, stats.NodesByRole[RoleCondition])
	require.Equal(t, 3, stats.MaxDepth)
	require.InDelta(t, 1.5, stats.AvgOutDegree, 0.001)
}
