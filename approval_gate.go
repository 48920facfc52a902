package weave

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultApprovalTimeout applies when an approval request does not specify
// its own timeout.
const DefaultApprovalTimeout = time.Hour

// DefaultApprovalPollInterval is how often a suspended request re-reads its
// store entry, as a backstop for responses recorded out of process.
const DefaultApprovalPollInterval = time.Second

// ApprovalInput describes a request for human input at a workflow node.
type ApprovalInput struct {
	WorkflowID  string
	RunID       string
	NodeID      string
	RequestType ApprovalRequestType
	Title       string
	Description string
	Payload     map[string]any

	// Timeout bounds how long the request stays pending. Zero means
	// DefaultApprovalTimeout.
	Timeout time.Duration
}

// GateOptions configures a Gate.
type GateOptions struct {
	Store          ApprovalStore
	Notifier       Notifier
	Logger         *slog.Logger
	PollInterval   time.Duration
	DefaultTimeout time.Duration
}

// Gate suspends workflow execution until a human approves, rejects or lets an
// approval request expire. Each request is resolved exactly once; later
// responses are rejected with ErrAlreadyProcessed.
type Gate struct {
	store          ApprovalStore
	notifier       Notifier
	logger         *slog.Logger
	pollInterval   time.Duration
	defaultTimeout time.Duration

	mutex   sync.Mutex
	waiters map[string]chan struct{}
}

// NewGate creates an approval gate. A nil store defaults to an in-memory
// store; a nil notifier discards events.
func NewGate(opts GateOptions) *Gate {
	if opts.Store == nil {
		opts.Store = NewMemoryApprovalStore()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNullNotifier()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultApprovalPollInterval
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultApprovalTimeout
	}
	return &Gate{
		store:          opts.Store,
		notifier:       opts.Notifier,
		logger:         opts.Logger,
		pollInterval:   opts.PollInterval,
		defaultTimeout: opts.DefaultTimeout,
		waiters:        map[string]chan struct{}{},
	}
}

// RequestApproval creates a pending approval request, notifies side channels
// and blocks until the request is resolved, times out or ctx is cancelled.
// On timeout the request is marked expired and ErrApprovalTimeout is
// returned. Cancelling ctx only unwinds the wait: the stored request stays
// pending so a later AwaitApproval can pick it back up; callers that will not
// return must Withdraw it instead. The returned response may carry modified
// data chosen by the approver.
func (g *Gate) RequestApproval(ctx context.Context, input ApprovalInput) (*ApprovalResponse, error) {
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}
	requestType := input.RequestType
	if requestType == "" {
		requestType = RequestTypeCustom
	}
	now := time.Now()
	request := &ApprovalRequest{
		ID:          NewApprovalID(),
		WorkflowID:  input.WorkflowID,
		RunID:       input.RunID,
		NodeID:      input.NodeID,
		RequestType: requestType,
		Title:       input.Title,
		Description: input.Description,
		Payload:     copyMap(input.Payload),
		Status:      ApprovalStatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(timeout),
	}
	if err := g.store.CreateRequest(ctx, request); err != nil {
		return nil, NewEngineError(ErrorTypeStore, err.Error())
	}

	wake := make(chan struct{})
	g.mutex.Lock()
	g.waiters[request.ID] = wake
	g.mutex.Unlock()
	defer func() {
		g.mutex.Lock()
		delete(g.waiters, request.ID)
		g.mutex.Unlock()
	}()

	g.logger.Info("approval requested",
		"request_id", request.ID,
		"workflow_id", request.WorkflowID,
		"node_id", request.NodeID,
		"expires_at", request.ExpiresAt)
	g.notifier.Publish(ctx, &Event{
		Type:       EventApprovalRequested,
		WorkflowID: request.WorkflowID,
		RunID:      request.RunID,
		NodeID:     request.NodeID,
		RequestID:  request.ID,
		Message:    request.Title,
		Payload:    copyMap(request.Payload),
		Timestamp:  now,
	})

	return g.await(ctx, request.ID, wake, timeout)
}

func (g *Gate) await(ctx context.Context, requestID string, wake chan struct{}, timeout time.Duration) (*ApprovalResponse, error) {
	expiry := time.NewTimer(timeout)
	defer expiry.Stop()
	poll := time.NewTicker(g.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
			return g.resolution(ctx, requestID)
		case <-poll.C:
			request, err := g.store.GetRequest(ctx, requestID)
			if err != nil {
				return nil, NewEngineError(ErrorTypeStore, err.Error())
			}
			if request.Status.Terminal() {
				return g.finish(ctx, request)
			}
		case <-expiry.C:
			return g.expire(ctx, requestID)
		}
	}
}

// AwaitApproval blocks on an existing request, re-attaching a wait that was
// unwound by context cancellation. An already resolved request returns its
// resolution immediately; one past its deadline expires. The original
// deadline holds: waiting again does not extend it.
func (g *Gate) AwaitApproval(ctx context.Context, requestID string) (*ApprovalResponse, error) {
	request, err := g.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return g.finish(ctx, request)
	}
	timeout := time.Until(request.ExpiresAt)
	if timeout <= 0 {
		return g.expire(ctx, requestID)
	}

	wake := make(chan struct{})
	g.mutex.Lock()
	g.waiters[request.ID] = wake
	g.mutex.Unlock()
	defer func() {
		g.mutex.Lock()
		if g.waiters[request.ID] == wake {
			delete(g.waiters, request.ID)
		}
		g.mutex.Unlock()
	}()

	return g.await(ctx, request.ID, wake, timeout)
}

func (g *Gate) resolution(ctx context.Context, requestID string) (*ApprovalResponse, error) {
	request, err := g.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, NewEngineError(ErrorTypeStore, err.Error())
	}
	return g.finish(ctx, request)
}

func (g *Gate) finish(ctx context.Context, request *ApprovalRequest) (*ApprovalResponse, error) {
	switch request.Status {
	case ApprovalStatusTimeout:
		return nil, ErrApprovalTimeout
	case ApprovalStatusCancelled:
		return nil, ErrApprovalCancelled
	}
	return request.Response, nil
}

// expire marks a request as timed out. A response that lands while the timer
// fires wins: the store is re-read and a terminal resolution is honored.
func (g *Gate) expire(ctx context.Context, requestID string) (*ApprovalResponse, error) {
	request, err := g.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, NewEngineError(ErrorTypeStore, err.Error())
	}
	if request.Status.Terminal() {
		return g.finish(ctx, request)
	}
	request.Status = ApprovalStatusTimeout
	request.ResolvedAt = time.Now()
	if err := g.store.UpdateRequest(ctx, request); err != nil {
		return nil, NewEngineError(ErrorTypeStore, err.Error())
	}
	g.logger.Warn("approval request timed out", "request_id", request.ID)
	g.notifier.Publish(ctx, &Event{
		Type:       EventApprovalResolved,
		WorkflowID: request.WorkflowID,
		RunID:      request.RunID,
		NodeID:     request.NodeID,
		RequestID:  request.ID,
		Message:    "timed out",
		Timestamp:  request.ResolvedAt,
	})
	return nil, ErrApprovalTimeout
}

// Withdraw cancels a pending request without a human response, used when the
// run that asked for it will never consume a resolution. Responding to a
// withdrawn request returns ErrAlreadyProcessed, as does withdrawing a
// request that is already resolved.
func (g *Gate) Withdraw(ctx context.Context, requestID string) error {
	request, err := g.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status.Terminal() {
		return ErrAlreadyProcessed
	}
	request.Status = ApprovalStatusCancelled
	request.ResolvedAt = time.Now()
	if err := g.store.UpdateRequest(ctx, request); err != nil {
		return NewEngineError(ErrorTypeStore, err.Error())
	}

	g.mutex.Lock()
	if wake, ok := g.waiters[requestID]; ok {
		close(wake)
		delete(g.waiters, requestID)
	}
	g.mutex.Unlock()

	g.logger.Info("approval request withdrawn", "request_id", request.ID)
	g.notifier.Publish(ctx, &Event{
		Type:       EventApprovalResolved,
		WorkflowID: request.WorkflowID,
		RunID:      request.RunID,
		NodeID:     request.NodeID,
		RequestID:  request.ID,
		Message:    string(ApprovalStatusCancelled),
		Timestamp:  request.ResolvedAt,
	})
	return nil
}

// Respond resolves a pending approval request. The first response wins:
// responding to an already resolved or expired request returns
// ErrAlreadyProcessed and leaves the stored resolution untouched.
func (g *Gate) Respond(ctx context.Context, requestID string, response *ApprovalResponse) error {
	request, err := g.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status.Terminal() {
		return ErrAlreadyProcessed
	}

	resolved := *response
	if resolved.RespondedAt.IsZero() {
		resolved.RespondedAt = time.Now()
	}
	if resolved.Approved {
		request.Status = ApprovalStatusApproved
	} else {
		request.Status = ApprovalStatusRejected
	}
	request.Response = &resolved
	request.ResolvedAt = resolved.RespondedAt
	if err := g.store.UpdateRequest(ctx, request); err != nil {
		return NewEngineError(ErrorTypeStore, err.Error())
	}

	g.mutex.Lock()
	if wake, ok := g.waiters[requestID]; ok {
		close(wake)
		delete(g.waiters, requestID)
	}
	g.mutex.Unlock()

	g.logger.Info("approval resolved",
		"request_id", request.ID,
		"status", request.Status,
		"responded_by", resolved.RespondedBy)
	g.notifier.Publish(ctx, &Event{
		Type:       EventApprovalResolved,
		WorkflowID: request.WorkflowID,
		RunID:      request.RunID,
		NodeID:     request.NodeID,
		RequestID:  request.ID,
		Message:    string(request.Status),
		Timestamp:  request.ResolvedAt,
	})
	return nil
}

// Get returns an approval request by id.
func (g *Gate) Get(ctx context.Context, requestID string) (*ApprovalRequest, error) {
	return g.store.GetRequest(ctx, requestID)
}

// Pending lists unresolved requests, newest-first. An empty workflowID lists
// across all workflows.
func (g *Gate) Pending(ctx context.Context, workflowID string) ([]*ApprovalRequest, error) {
	return g.store.ListPending(ctx, workflowID)
}
