package weave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tessellate-ai/weave/script"
)

// EngineOptions configures an Engine. All fields are optional; zero values
// fall back to in-memory stores, a discard logger and the default risor
// compiler.
type EngineOptions struct {
	RunStore        RunStore
	CheckpointStore CheckpointStore
	Gate            *Gate
	Notifier        Notifier
	Registry        *ExecutorRegistry
	AgentClient     AgentClient
	Functions       map[string]NamedFunction
	Compiler        script.Compiler
	RunLogger       RunLogger
	Logger          *slog.Logger
}

// Engine validates workflow graphs and drives their runs. Run state is
// durable through the RunStore and CheckpointStore; liveness (the goroutine
// walking a run, its cancellation) exists only in engine memory and dies with
// the process.
type Engine struct {
	runStore        RunStore
	checkpointStore CheckpointStore
	gate            *Gate
	notifier        Notifier
	registry        *ExecutorRegistry
	compiler        script.Compiler
	runLogger       RunLogger
	logger          *slog.Logger

	mutex  sync.Mutex
	tasks  map[string]*runTask
	paused map[string]*pausedRun
}

// runTask is the in-memory liveness record of a running workflow.
type runTask struct {
	runID  string
	cancel context.CancelFunc
	done   chan struct{}

	mutex           sync.Mutex
	pauseRequested  bool
	cancelRequested bool
	currentNode     string
	visited         int
	total           int
}

func (t *runTask) requestPause() {
	t.mutex.Lock()
	t.pauseRequested = true
	t.mutex.Unlock()
	t.cancel()
}

func (t *runTask) requestCancel() {
	t.mutex.Lock()
	t.cancelRequested = true
	t.mutex.Unlock()
	t.cancel()
}

func (t *runTask) interrupted() (paused, cancelled bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.pauseRequested, t.cancelRequested
}

func (t *runTask) enterNode(nodeID string) {
	t.mutex.Lock()
	t.currentNode = nodeID
	t.mutex.Unlock()
}

func (t *runTask) completeNode() {
	t.mutex.Lock()
	t.visited++
	t.currentNode = ""
	t.mutex.Unlock()
}

func (t *runTask) snapshot() (currentNode string, visited, total int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.currentNode, t.visited, t.total
}

// pausedRun retains what a warm resume needs: the graph is not persisted, so
// resuming is only possible on the engine instance that paused the run.
type pausedRun struct {
	graph *Graph
	state *RunState
	total int
}

// RunStatusInfo is a point-in-time view of a run for callers polling status.
type RunStatusInfo struct {
	RunID       string    `json:"run_id"`
	WorkflowID  string    `json:"workflow_id"`
	Status      RunStatus `json:"status"`
	TaskLive    bool      `json:"task_live"`
	Progress    float64   `json:"progress"`
	CurrentNode string    `json:"current_node,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOptions) *Engine {
	if opts.RunStore == nil {
		opts.RunStore = NewMemoryRunStore()
	}
	if opts.CheckpointStore == nil {
		opts.CheckpointStore = NewMemoryCheckpointStore()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNullNotifier()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Compiler == nil {
		opts.Compiler = script.NewRisorEngine(script.DefaultGlobals())
	}
	if opts.Gate == nil {
		opts.Gate = NewGate(GateOptions{
			Notifier: opts.Notifier,
			Logger:   opts.Logger,
		})
	}
	if opts.RunLogger == nil {
		opts.RunLogger = NewNullRunLogger()
	}
	if opts.Registry == nil {
		opts.Registry = NewExecutorRegistry()
	}
	registerDefaultExecutors(opts.Registry, opts.AgentClient, opts.Compiler, opts.Functions)
	return &Engine{
		runStore:        opts.RunStore,
		checkpointStore: opts.CheckpointStore,
		gate:            opts.Gate,
		notifier:        opts.Notifier,
		registry:        opts.Registry,
		compiler:        opts.Compiler,
		runLogger:       opts.RunLogger,
		logger:          opts.Logger,
		tasks:           map[string]*runTask{},
		paused:          map[string]*pausedRun{},
	}
}

// registerDefaultExecutors fills unregistered roles so dispatch stays closed
// over the role set. Caller registrations win.
func registerDefaultExecutors(registry *ExecutorRegistry, client AgentClient, compiler script.Compiler, functions map[string]NamedFunction) {
	if _, ok := registry.Lookup(RoleAgent); !ok {
		registry.Register(RoleAgent, NewAgentExecutor(client))
	}
	if _, ok := registry.Lookup(RoleFunction); !ok {
		registry.Register(RoleFunction, NewFunctionExecutor(compiler, functions))
	}
	if _, ok := registry.Lookup(RoleCondition); !ok {
		registry.Register(RoleCondition, NewConditionExecutor(compiler))
	}
	if _, ok := registry.Lookup(RoleHumanInput); !ok {
		registry.Register(RoleHumanInput, &humanInputExecutor{})
	}
	if _, ok := registry.Lookup(RoleCustom); !ok {
		registry.Register(RoleCustom, ExecutorFunc(func(ctx context.Context, node *Node, input map[string]any) (map[string]any, error) {
			return nil, NewConfigError(node.ID, "no custom executor registered")
		}))
	}
}

// Gate returns the engine's approval gate, for responding to pending
// requests.
func (e *Engine) Gate() *Gate {
	return e.gate
}

// Start validates a graph and begins a new run with the given input payload.
// A graph that fails validation produces an error and no run: nothing is
// stored and no state changes. The run proceeds in the background; use
// GetStatus or Wait to observe it.
func (e *Engine) Start(ctx context.Context, graph *Graph, input map[string]any) (*Run, error) {
	result := e.ValidateGraph(ctx, graph)
	if !result.Valid {
		return nil, NewEngineError(ErrorTypeValidation,
			fmt.Sprintf("graph is invalid: %s", strings.Join(result.Errors, "; ")))
	}
	start, ok := graph.StartNode()
	if !ok {
		return nil, NewEngineError(ErrorTypeValidation, "graph has no start node")
	}

	run := NewRun(graph.WorkflowID(), input)
	if err := e.runStore.CreateRun(ctx, run); err != nil {
		return nil, NewEngineError(ErrorTypeStore, err.Error())
	}
	run.Status = RunStatusRunning
	run.StartedAt = time.Now()
	e.logEvent(run, EventExecutionStarted, "", graph.Name())
	if err := e.runStore.UpdateRun(ctx, run); err != nil {
		return nil, NewEngineError(ErrorTypeStore, err.Error())
	}

	state := &RunState{
		RunID:       run.ID,
		Cursor:      start.ID,
		Payload:     copyMap(input),
		NodeOutputs: map[string]map[string]any{},
	}
	if state.Payload == nil {
		state.Payload = map[string]any{}
	}
	e.spawn(graph, run, state, countReachable(graph, start.ID))
	return run.Copy(), nil
}

// ValidateGraph validates a graph, including edge condition syntax.
func (e *Engine) ValidateGraph(ctx context.Context, graph *Graph) *ValidationResult {
	return ValidateWithCompiler(ctx, graph, e.compiler)
}

// Pause stops a running run after its in-flight node and blocks until the
// walker has yielded. A node blocked on approval is interrupted; its request
// stays pending and is re-attached on resume. A run that finishes before the
// pause takes effect reports an invalid transition from its final status.
func (e *Engine) Pause(ctx context.Context, runID string) error {
	e.mutex.Lock()
	task, live := e.tasks[runID]
	e.mutex.Unlock()
	if live {
		task.requestPause()
		select {
		case <-task.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		run, err := e.runStore.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status != RunStatusPaused {
			return NewInvalidTransitionError(runID, run.Status, "pause")
		}
		return nil
	}
	run, err := e.runStore.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return NewInvalidTransitionError(runID, run.Status, "pause")
}

// Resume continues a paused run from its latest checkpoint, falling back to
// the in-memory pause state when no checkpoint for the run exists. Resume
// picks up where the run left off; completed nodes are not re-executed.
func (e *Engine) Resume(ctx context.Context, runID string) error {
	run, err := e.runStore.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != RunStatusPaused {
		return NewInvalidTransitionError(runID, run.Status, "resume")
	}

	e.mutex.Lock()
	record, ok := e.paused[runID]
	if ok {
		delete(e.paused, runID)
	}
	e.mutex.Unlock()
	if !ok {
		return NewEngineError(ErrorTypeInvalidTransition,
			fmt.Sprintf("run %s has no resumable state on this engine", runID))
	}

	state := record.state
	if checkpoint, err := e.checkpointStore.Load(ctx, run.WorkflowID, ""); err == nil {
		if restored, err := UnmarshalState(checkpoint.State); err == nil && restored.RunID == runID {
			state = restored
		}
	}

	run.Status = RunStatusRunning
	e.logEvent(run, EventExecutionResumed, state.Cursor, "")
	if err := e.runStore.UpdateRun(ctx, run); err != nil {
		return NewEngineError(ErrorTypeStore, err.Error())
	}
	e.spawn(record.graph, run, state, record.total)
	return nil
}

// Cancel stops a run. Cancelling a run that is already terminal is a no-op
// and returns false. Cancelling a paused run finalizes it directly; a live
// run is interrupted and finalizes from its walker.
func (e *Engine) Cancel(ctx context.Context, runID string) (bool, error) {
	e.mutex.Lock()
	task, live := e.tasks[runID]
	delete(e.paused, runID)
	e.mutex.Unlock()

	if live {
		task.requestCancel()
		return true, nil
	}

	run, err := e.runStore.GetRun(ctx, runID)
	if err != nil {
		return false, err
	}
	if run.Status.Terminal() {
		return false, nil
	}
	run.Status = RunStatusCancelled
	run.CompletedAt = time.Now()
	e.logEvent(run, EventExecutionCancelled, "", "")
	if err := e.runStore.UpdateRun(ctx, run); err != nil {
		return false, NewEngineError(ErrorTypeStore, err.Error())
	}
	e.withdrawApprovals(ctx, run)
	e.publish(run, EventExecutionCancelled, "", "")
	return true, nil
}

// GetStatus returns a point-in-time view of a run.
func (e *Engine) GetStatus(ctx context.Context, runID string) (*RunStatusInfo, error) {
	run, err := e.runStore.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	info := &RunStatusInfo{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Status:     run.Status,
		Error:      run.Error,
	}
	e.mutex.Lock()
	task, live := e.tasks[runID]
	record, isPaused := e.paused[runID]
	e.mutex.Unlock()
	switch {
	case live:
		info.TaskLive = true
		current, visited, total := task.snapshot()
		info.CurrentNode = current
		info.Progress = progress(visited, total)
	case isPaused:
		info.CurrentNode = record.state.Cursor
		info.Progress = progress(len(record.state.Visited), record.total)
	case run.Status.Terminal():
		info.Progress = 1
	}
	return info, nil
}

// Wait blocks until the run's walker yields (completion, failure,
// cancellation or pause), then returns the stored run. Returns immediately
// for runs with no live walker.
func (e *Engine) Wait(ctx context.Context, runID string) (*Run, error) {
	e.mutex.Lock()
	task, live := e.tasks[runID]
	e.mutex.Unlock()
	if live {
		select {
		case <-task.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.runStore.GetRun(ctx, runID)
}

// DeleteRun removes a run from the store, cancelling it first if it is still
// live. Returns false if the run did not exist.
func (e *Engine) DeleteRun(ctx context.Context, runID string) (bool, error) {
	e.mutex.Lock()
	task, live := e.tasks[runID]
	delete(e.paused, runID)
	e.mutex.Unlock()
	if live {
		task.requestCancel()
		select {
		case <-task.done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if run, err := e.runStore.GetRun(ctx, runID); err == nil {
		e.withdrawApprovals(ctx, run)
	}
	return e.runStore.DeleteRun(ctx, runID)
}

func (e *Engine) spawn(graph *Graph, run *Run, state *RunState, total int) {
	runCtx, cancel := context.WithCancel(context.Background())
	task := &runTask{
		runID:   run.ID,
		cancel:  cancel,
		done:    make(chan struct{}),
		visited: len(state.Visited),
		total:   total,
	}
	e.mutex.Lock()
	e.tasks[run.ID] = task
	e.mutex.Unlock()
	go e.walk(runCtx, task, graph, run, state)
}

// walk drives one run to completion, pause, failure or cancellation. It is
// the only goroutine touching the run after spawn.
func (e *Engine) walk(ctx context.Context, task *runTask, graph *Graph, run *Run, state *RunState) {
	defer func() {
		e.mutex.Lock()
		delete(e.tasks, run.ID)
		e.mutex.Unlock()
		close(task.done)
	}()

	for state.Cursor != "" {
		if e.yieldIfInterrupted(task, graph, run, state) {
			return
		}
		node, ok := graph.NodeByID(state.Cursor)
		if !ok {
			e.failRun(run, state.Cursor, NewEngineError(ErrorTypeExecutor,
				fmt.Sprintf("unknown node %q", state.Cursor)))
			return
		}
		task.enterNode(node.ID)
		e.logEvent(run, EventNodeEntered, node.ID, node.Name)

		output, err := e.executeNode(ctx, graph, run, node, state)
		if err != nil {
			if e.yieldIfInterrupted(task, graph, run, state) {
				return
			}
			e.logEvent(run, EventNodeFailed, node.ID, err.Error())
			e.failRun(run, node.ID, err)
			return
		}

		state.NodeOutputs[node.ID] = output
		state.Payload = mergePayload(state.Payload, output)
		state.Visited = append(state.Visited, node.ID)
		task.completeNode()
		e.logEvent(run, EventNodeCompleted, node.ID, "")

		next, err := e.nextNode(ctx, node, graph, state.Payload)
		if err != nil {
			e.failRun(run, node.ID, err)
			return
		}
		state.Cursor = next

		// Checkpoint with the cursor already advanced, so a resume picks up
		// at the next node instead of re-executing this one.
		if err := e.checkpoint(ctx, graph, run, state, node.ID); err != nil {
			e.failRun(run, node.ID, NewEngineError(ErrorTypeStore, err.Error()))
			return
		}
		if err := e.runStore.UpdateRun(ctx, run); err != nil {
			e.logger.Error("failed to persist run", "run_id", run.ID, "error", err)
		}
	}

	run.Status = RunStatusCompleted
	run.CompletedAt = time.Now()
	run.Output = collectOutput(graph, state)
	e.logEvent(run, EventExecutionCompleted, "", "")
	if err := e.runStore.UpdateRun(context.Background(), run); err != nil {
		e.logger.Error("failed to persist completed run", "run_id", run.ID, "error", err)
	}
	e.publish(run, EventExecutionCompleted, "", "")
}

// yieldIfInterrupted finalizes a pause or cancel request and reports whether
// the walker should stop.
func (e *Engine) yieldIfInterrupted(task *runTask, graph *Graph, run *Run, state *RunState) bool {
	pauseRequested, cancelRequested := task.interrupted()
	if cancelRequested {
		run.Status = RunStatusCancelled
		run.CompletedAt = time.Now()
		e.logEvent(run, EventExecutionCancelled, state.Cursor, "")
		if err := e.runStore.UpdateRun(context.Background(), run); err != nil {
			e.logger.Error("failed to persist cancelled run", "run_id", run.ID, "error", err)
		}
		e.withdrawApprovals(context.Background(), run)
		e.publish(run, EventExecutionCancelled, state.Cursor, "")
		return true
	}
	if pauseRequested {
		ctx := context.Background()
		e.recordPendingApprovals(ctx, run, state)
		run.Status = RunStatusPaused
		e.logEvent(run, EventExecutionPaused, state.Cursor, "")
		if err := e.checkpoint(ctx, graph, run, state, state.Cursor); err != nil {
			e.logger.Error("failed to checkpoint paused run", "run_id", run.ID, "error", err)
		}
		if err := e.runStore.UpdateRun(ctx, run); err != nil {
			e.logger.Error("failed to persist paused run", "run_id", run.ID, "error", err)
		}
		e.mutex.Lock()
		e.paused[run.ID] = &pausedRun{graph: graph, state: state, total: task.total}
		e.mutex.Unlock()
		e.publish(run, EventExecutionPaused, state.Cursor, "")
		return true
	}
	return false
}

func (e *Engine) recordPendingApprovals(ctx context.Context, run *Run, state *RunState) {
	pending, err := e.gate.Pending(ctx, run.WorkflowID)
	if err != nil {
		return
	}
	state.PendingApprovals = nil
	for _, request := range pending {
		if request.RunID == run.ID {
			state.PendingApprovals = append(state.PendingApprovals, request.ID)
		}
	}
}

// withdrawApprovals cancels the run's outstanding approval requests so a
// dead run cannot be "approved" to no effect.
func (e *Engine) withdrawApprovals(ctx context.Context, run *Run) {
	pending, err := e.gate.Pending(ctx, run.WorkflowID)
	if err != nil {
		e.logger.Warn("failed to list pending approvals", "run_id", run.ID, "error", err)
		return
	}
	for _, request := range pending {
		if request.RunID != run.ID {
			continue
		}
		if err := e.gate.Withdraw(ctx, request.ID); err != nil && !errors.Is(err, ErrAlreadyProcessed) {
			e.logger.Warn("failed to withdraw approval request",
				"run_id", run.ID, "request_id", request.ID, "error", err)
		}
	}
}

func (e *Engine) executeNode(ctx context.Context, graph *Graph, run *Run, node *Node, state *RunState) (map[string]any, error) {
	if node.Role == RoleHumanInput {
		return e.executeHumanInput(ctx, graph, run, node, state)
	}
	executor, ok := e.registry.Lookup(node.Role)
	if !ok {
		return nil, NewConfigError(node.ID, fmt.Sprintf("no executor registered for role %q", node.Role))
	}
	return executor.Execute(ctx, node, state.Payload)
}

// executeHumanInput suspends the run on the approval gate. An approval's
// modified data merges into the node output, so approvers can adjust the
// payload the rest of the workflow sees. Rejection and timeout fail the run.
// A request left pending by a pause is re-attached rather than duplicated,
// so responses that arrived while the run was paused still count.
func (e *Engine) executeHumanInput(ctx context.Context, graph *Graph, run *Run, node *Node, state *RunState) (map[string]any, error) {
	if response, ok, err := e.reattachApproval(ctx, run, node, state); ok {
		return e.approvalOutcome(run, node, response, err)
	}

	title := node.ConfigString("prompt")
	if title == "" {
		title = node.Name
	}
	requestType := ApprovalRequestType(node.ConfigString("request_type"))
	if requestType == "" {
		requestType = RequestTypeFunctionApproval
	}
	e.logEvent(run, EventApprovalRequested, node.ID, title)
	response, err := e.gate.RequestApproval(ctx, ApprovalInput{
		WorkflowID:  graph.WorkflowID(),
		RunID:       run.ID,
		NodeID:      node.ID,
		RequestType: requestType,
		Title:       title,
		Description: node.ConfigString("description"),
		Payload:     state.Payload,
		Timeout:     configDuration(node, "timeout_seconds"),
	})
	return e.approvalOutcome(run, node, response, err)
}

// reattachApproval resumes a wait on an approval request recorded before a
// pause. The request keeps its original deadline.
func (e *Engine) reattachApproval(ctx context.Context, run *Run, node *Node, state *RunState) (*ApprovalResponse, bool, error) {
	for i, requestID := range state.PendingApprovals {
		request, err := e.gate.Get(ctx, requestID)
		if err != nil || request.NodeID != node.ID {
			continue
		}
		state.PendingApprovals = append(state.PendingApprovals[:i], state.PendingApprovals[i+1:]...)
		e.logEvent(run, EventApprovalRequested, node.ID, request.Title)
		response, err := e.gate.AwaitApproval(ctx, requestID)
		return response, true, err
	}
	return nil, false, nil
}

func (e *Engine) approvalOutcome(run *Run, node *Node, response *ApprovalResponse, err error) (map[string]any, error) {
	if err != nil {
		if errors.Is(err, ErrApprovalTimeout) {
			e.logEvent(run, EventApprovalResolved, node.ID, string(ApprovalStatusTimeout))
			return nil, &EngineError{
				Type:    ErrorTypeApprovalTimeout,
				NodeID:  node.ID,
				Cause:   "approval request timed out",
				Wrapped: ErrApprovalTimeout,
			}
		}
		return nil, err
	}
	if response == nil || !response.Approved {
		cause := "not approved"
		feedback := ""
		if response != nil {
			feedback = response.Feedback
		}
		if feedback != "" {
			cause = fmt.Sprintf("not approved: %s", feedback)
		}
		e.logEvent(run, EventApprovalResolved, node.ID, string(ApprovalStatusRejected))
		return nil, &EngineError{
			Type:    ErrorTypeApprovalRejected,
			NodeID:  node.ID,
			Cause:   cause,
			Wrapped: ErrNotApproved,
		}
	}
	e.logEvent(run, EventApprovalResolved, node.ID, string(ApprovalStatusApproved))
	output := map[string]any{"approved": true}
	if response.Feedback != "" {
		output["feedback"] = response.Feedback
	}
	for key, value := range response.ModifiedData {
		output[key] = value
	}
	return output, nil
}

// nextNode selects the next node: edges are checked in definition order, the
// first truthy condition wins, and an unconditional edge is the fallback when
// no condition matches. No matching edge ends the run.
func (e *Engine) nextNode(ctx context.Context, node *Node, graph *Graph, payload map[string]any) (string, error) {
	fallback := ""
	for _, edge := range graph.OutgoingEdges(node.ID) {
		if edge.Condition == "" {
			if fallback == "" {
				fallback = edge.Target
			}
			continue
		}
		matched, err := script.EvaluateCondition(ctx, e.compiler, edge.Condition, payload)
		if err != nil {
			return "", fmt.Errorf("edge %s -> %s: %w", edge.Source, edge.Target, err)
		}
		if matched {
			return edge.Target, nil
		}
	}
	return fallback, nil
}

func (e *Engine) checkpoint(ctx context.Context, graph *Graph, run *Run, state *RunState, nodeID string) error {
	blob, err := MarshalState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	metadata := map[string]any{
		"run_id": run.ID,
		"node":   nodeID,
	}
	return e.checkpointStore.Save(ctx, graph.WorkflowID(), NewCheckpointID(), blob, metadata)
}

func (e *Engine) failRun(run *Run, nodeID string, err error) {
	engineErr := ClassifyError(err)
	if engineErr.RunID == "" {
		engineErr.RunID = run.ID
	}
	if engineErr.NodeID == "" {
		engineErr.NodeID = nodeID
	}
	run.Status = RunStatusFailed
	run.Error = engineErr.Error()
	run.CompletedAt = time.Now()
	e.logEvent(run, EventExecutionFailed, nodeID, engineErr.Error())
	if updateErr := e.runStore.UpdateRun(context.Background(), run); updateErr != nil {
		e.logger.Error("failed to persist failed run", "run_id", run.ID, "error", updateErr)
	}
	e.publish(run, EventExecutionFailed, nodeID, engineErr.Error())
	e.logger.Error("run failed",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"node_id", nodeID,
		"error", engineErr.Error())
}

// logEvent appends to the run's in-memory log and forwards the entry to the
// run logger. Run logger failures are logged, never fatal.
func (e *Engine) logEvent(run *Run, event, node, message string) {
	run.AppendLog(event, node, message)
	entry := run.Log[len(run.Log)-1]
	if err := e.runLogger.Append(context.Background(), run.ID, entry); err != nil {
		e.logger.Warn("failed to append run log entry", "run_id", run.ID, "error", err)
	}
}

func (e *Engine) publish(run *Run, event, nodeID, message string) {
	e.notifier.Publish(context.Background(), &Event{
		Type:       event,
		WorkflowID: run.WorkflowID,
		RunID:      run.ID,
		NodeID:     nodeID,
		Message:    message,
		Timestamp:  time.Now(),
	})
}

// mergePayload overlays a node's output onto the flowing payload without
// mutating either.
func mergePayload(payload, output map[string]any) map[string]any {
	merged := make(map[string]any, len(payload)+len(output))
	for key, value := range payload {
		merged[key] = value
	}
	for key, value := range output {
		merged[key] = value
	}
	return merged
}

// collectOutput picks the run's output: the merged outputs of visited output
// nodes when the graph marks any, otherwise the final payload.
func collectOutput(graph *Graph, state *RunState) map[string]any {
	var output map[string]any
	for _, nodeID := range state.Visited {
		node, ok := graph.NodeByID(nodeID)
		if !ok || !node.IsOutput {
			continue
		}
		if output == nil {
			output = map[string]any{}
		}
		for key, value := range state.NodeOutputs[nodeID] {
			output[key] = value
		}
	}
	if output != nil {
		return output
	}
	return copyMap(state.Payload)
}

// countReachable sizes the progress denominator: nodes reachable from the
// start node, conditions ignored.
func countReachable(graph *Graph, startID string) int {
	return len(reachableFrom(graph, startID))
}

func progress(visited, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(visited) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}

// configDuration reads a numeric "<key>" config value in seconds. YAML and
// JSON decode numbers as int or float64 depending on source.
func configDuration(node *Node, key string) time.Duration {
	if node.Config == nil {
		return 0
	}
	switch v := node.Config[key].(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		return 0
	}
}
