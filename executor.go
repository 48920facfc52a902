package weave

import (
	"context"
	"fmt"
	"sync"

	"github.com/tessellate-ai/weave/script"
)

// NodeExecutor runs one node. The input is the payload flowing into the node;
// the returned map is the node's output, which the engine merges into the
// payload for downstream nodes.
type NodeExecutor interface {
	Execute(ctx context.Context, node *Node, input map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a function to the NodeExecutor interface.
type ExecutorFunc func(ctx context.Context, node *Node, input map[string]any) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, node *Node, input map[string]any) (map[string]any, error) {
	return f(ctx, node, input)
}

// ExecutorRegistry maps executor roles to implementations. The role set is
// closed; an unknown role is a node configuration defect, not a runtime
// lookup failure.
type ExecutorRegistry struct {
	mutex     sync.RWMutex
	executors map[ExecutorRole]NodeExecutor
}

// NewExecutorRegistry creates a registry with no executors registered.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: map[ExecutorRole]NodeExecutor{}}
}

// Register installs an executor for a role, replacing any previous one.
func (r *ExecutorRegistry) Register(role ExecutorRole, executor NodeExecutor) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.executors[role] = executor
}

// Lookup returns the executor registered for a role.
func (r *ExecutorRegistry) Lookup(role ExecutorRole) (NodeExecutor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	executor, ok := r.executors[role]
	return executor, ok
}

// AgentClient is the boundary to an agent backend. The engine does not know
// how agents run; it hands over an agent id, a prompt and the current payload
// and gets text back.
type AgentClient interface {
	Invoke(ctx context.Context, agentID, prompt string, input map[string]any) (string, error)
}

// AgentExecutor runs agent nodes by delegating to an AgentClient.
type AgentExecutor struct {
	client AgentClient
}

func NewAgentExecutor(client AgentClient) *AgentExecutor {
	return &AgentExecutor{client: client}
}

func (e *AgentExecutor) Execute(ctx context.Context, node *Node, input map[string]any) (map[string]any, error) {
	if e.client == nil {
		return nil, NewConfigError(node.ID, "no agent client configured")
	}
	instructions := node.ConfigString("instructions")
	if node.AgentID == "" && instructions == "" {
		return nil, NewConfigError(node.ID, "agent node requires either an agent reference or instructions")
	}
	response, err := e.client.Invoke(ctx, node.AgentID, instructions, input)
	if err != nil {
		return nil, fmt.Errorf("agent node %s failed: %w", node.ID, err)
	}
	output := map[string]any{"response": response}
	if node.AgentID != "" {
		output["agent_id"] = node.AgentID
	}
	return output, nil
}

// NamedFunction is a Go function callable from a function node by name.
type NamedFunction func(ctx context.Context, input map[string]any) (map[string]any, error)

// FunctionExecutor runs function nodes. A node either names a registered Go
// function via the "function_name" config key or carries an inline script in
// the "function_code" config key. Scripts see the flowing payload as "input".
type FunctionExecutor struct {
	compiler  script.Compiler
	functions map[string]NamedFunction
}

func NewFunctionExecutor(compiler script.Compiler, functions map[string]NamedFunction) *FunctionExecutor {
	if functions == nil {
		functions = map[string]NamedFunction{}
	}
	return &FunctionExecutor{compiler: compiler, functions: functions}
}

func (e *FunctionExecutor) Execute(ctx context.Context, node *Node, input map[string]any) (map[string]any, error) {
	if name := node.ConfigString("function_name"); name != "" {
		fn, ok := e.functions[name]
		if !ok {
			return nil, NewConfigError(node.ID, fmt.Sprintf("unknown function %q", name))
		}
		return fn(ctx, input)
	}

	code := node.ConfigString("function_code")
	if code == "" {
		return nil, NewConfigError(node.ID, "function node requires function_code or function_name")
	}
	if e.compiler == nil {
		return nil, NewConfigError(node.ID, "no script compiler configured")
	}
	compiled, err := e.compiler.Compile(ctx, code)
	if err != nil {
		return nil, NewConfigError(node.ID, fmt.Sprintf("invalid code: %s", err))
	}
	value, err := compiled.Evaluate(ctx, map[string]any{
		"input": input,
		"data":  input,
	})
	if err != nil {
		return nil, fmt.Errorf("function node %s failed: %w", node.ID, err)
	}
	if result, ok := value.Value().(map[string]any); ok {
		return result, nil
	}
	return map[string]any{"result": value.Value()}, nil
}

// ConditionExecutor runs condition nodes. The node's "condition" config is
// evaluated against the input payload; the output records the boolean result
// alongside the unchanged data so downstream edges can branch on it.
type ConditionExecutor struct {
	compiler script.Compiler
}

func NewConditionExecutor(compiler script.Compiler) *ConditionExecutor {
	return &ConditionExecutor{compiler: compiler}
}

func (e *ConditionExecutor) Execute(ctx context.Context, node *Node, input map[string]any) (map[string]any, error) {
	expression := node.ConfigString("condition")
	if expression == "" {
		return nil, NewConfigError(node.ID, "condition node requires a condition expression")
	}
	if e.compiler == nil {
		return nil, NewConfigError(node.ID, "no script compiler configured")
	}
	result, err := script.EvaluateCondition(ctx, e.compiler, expression, input)
	if err != nil {
		return nil, fmt.Errorf("condition node %s failed: %w", node.ID, err)
	}
	return map[string]any{
		"condition_result": result,
		"data":             input,
	}, nil
}

// humanInputExecutor is a registry placeholder. Human input nodes suspend on
// the approval gate inside the engine and never reach the registry; reaching
// this executor means the engine was built without a gate.
type humanInputExecutor struct{}

func (e *humanInputExecutor) Execute(ctx context.Context, node *Node, input map[string]any) (map[string]any, error) {
	return nil, NewConfigError(node.ID, "human input node requires an approval gate")
}
