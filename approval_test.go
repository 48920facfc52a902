package weave

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForPending(t *testing.T, gate *Gate, workflowID string) *ApprovalRequest {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		pending, err := gate.Pending(context.Background(), workflowID)
		require.NoError(t, err)
		if len(pending) > 0 {
			return pending[0]
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a pending approval request")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestGateApprove(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx := context.Background()

	type result struct {
		response *ApprovalResponse
		err      error
	}
	done := make(chan result, 1)
	go func() {
		response, err := gate.RequestApproval(ctx, ApprovalInput{
			WorkflowID:  "wf-1",
			RunID:       "run-1",
			NodeID:      "gate",
			RequestType: RequestTypeDataReview,
			Title:       "review",
			Payload:     map[string]any{"x": 0},
		})
		done <- result{response, err}
	}()

	request := waitForPending(t, gate, "wf-1")
	require.Equal(t, ApprovalStatusPending, request.Status)
	require.Equal(t, RequestTypeDataReview, request.RequestType)

	err := gate.Respond(ctx, request.ID, &ApprovalResponse{
		Approved:     true,
		Feedback:     "go ahead",
		ModifiedData: map[string]any{"x": 1},
	})
	require.NoError(t, err)

	// The wake channel resolves the wait well before the poll interval.
	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.True(t, r.response.Approved)
		require.Equal(t, "go ahead", r.response.Feedback)
		require.Equal(t, 1, r.response.ModifiedData["x"])
	case <-time.After(2 * time.Second):
		t.Fatal("RequestApproval did not return after Respond")
	}

	stored, err := gate.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, ApprovalStatusApproved, stored.Status)
	require.False(t, stored.ResolvedAt.IsZero())
}

func TestGateReject(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx := context.Background()

	done := make(chan *ApprovalResponse, 1)
	go func() {
		response, err := gate.RequestApproval(ctx, ApprovalInput{
			WorkflowID: "wf-1",
			RunID:      "run-1",
			NodeID:     "gate",
			Title:      "risky step",
		})
		require.NoError(t, err)
		done <- response
	}()

	request := waitForPending(t, gate, "wf-1")
	require.NoError(t, gate.Respond(ctx, request.ID, &ApprovalResponse{
		Approved: false,
		Feedback: "too risky",
	}))

	select {
	case response := <-done:
		require.False(t, response.Approved)
		require.Equal(t, "too risky", response.Feedback)
	case <-time.After(2 * time.Second):
		t.Fatal("RequestApproval did not return after Respond")
	}

	stored, err := gate.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, ApprovalStatusRejected, stored.Status)
}

func TestGateRespondExactlyOnce(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx := context.Background()

	go func() {
		gate.RequestApproval(ctx, ApprovalInput{
			WorkflowID: "wf-1",
			RunID:      "run-1",
			Title:      "once",
		})
	}()

	request := waitForPending(t, gate, "wf-1")
	require.NoError(t, gate.Respond(ctx, request.ID, &ApprovalResponse{
		Approved: true,
		Feedback: "first",
	}))

	err := gate.Respond(ctx, request.ID, &ApprovalResponse{
		Approved: false,
		Feedback: "second",
	})
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	// First response is preserved untouched.
	stored, err := gate.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, ApprovalStatusApproved, stored.Status)
	require.Equal(t, "first", stored.Response.Feedback)
}

func TestGateTimeout(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx := context.Background()

	start := time.Now()
	_, err := gate.RequestApproval(ctx, ApprovalInput{
		WorkflowID: "wf-1",
		RunID:      "run-1",
		Title:      "expires",
		Timeout:    50 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrApprovalTimeout)
	require.Less(t, time.Since(start), 2*time.Second)

	pending, err := gate.Pending(ctx, "wf-1")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestGateTimeoutRejectsLateResponse(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := gate.RequestApproval(ctx, ApprovalInput{
			WorkflowID: "wf-1",
			Title:      "late",
			Timeout:    30 * time.Millisecond,
		})
		errCh <- err
	}()

	request := waitForPending(t, gate, "wf-1")
	require.ErrorIs(t, <-errCh, ErrApprovalTimeout)

	err := gate.Respond(ctx, request.ID, &ApprovalResponse{Approved: true})
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	stored, err := gate.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, ApprovalStatusTimeout, stored.Status)
}

func TestGateContextCancellation(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := gate.RequestApproval(ctx, ApprovalInput{
			WorkflowID: "wf-1",
			Title:      "interrupted",
		})
		errCh <- err
	}()

	request := waitForPending(t, gate, "wf-1")
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RequestApproval did not observe cancellation")
	}

	// Cancellation only unwound the wait: the request is still pending and a
	// fresh wait re-attaches to it.
	stored, err := gate.Get(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, ApprovalStatusPending, stored.Status)

	type result struct {
		response *ApprovalResponse
		err      error
	}
	done := make(chan result, 1)
	go func() {
		response, err := gate.AwaitApproval(context.Background(), request.ID)
		done <- result{response, err}
	}()

	require.NoError(t, gate.Respond(context.Background(), request.ID, &ApprovalResponse{
		Approved: true,
		Feedback: "picked back up",
	}))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.True(t, r.response.Approved)
		require.Equal(t, "picked back up", r.response.Feedback)
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitApproval did not return after Respond")
	}
}

func TestGateWithdraw(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := gate.RequestApproval(ctx, ApprovalInput{WorkflowID: "wf-1", Title: "doomed"})
		errCh <- err
	}()

	request := waitForPending(t, gate, "wf-1")
	require.NoError(t, gate.Withdraw(ctx, request.ID))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrApprovalCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("RequestApproval did not observe the withdrawal")
	}

	// Withdrawal is a terminal resolution: later responses are rejected.
	err := gate.Respond(ctx, request.ID, &ApprovalResponse{Approved: true})
	require.ErrorIs(t, err, ErrAlreadyProcessed)
	require.ErrorIs(t, gate.Withdraw(ctx, request.ID), ErrAlreadyProcessed)

	stored, err := gate.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, ApprovalStatusCancelled, stored.Status)

	pending, err := gate.Pending(ctx, "wf-1")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestGateAwaitExpiredRequest(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := gate.RequestApproval(ctx, ApprovalInput{
			WorkflowID: "wf-1",
			Title:      "stale",
			Timeout:    200 * time.Millisecond,
		})
		errCh <- err
	}()

	request := waitForPending(t, gate, "wf-1")
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// Re-attaching after the original deadline expires the request.
	time.Sleep(250 * time.Millisecond)
	_, err := gate.AwaitApproval(context.Background(), request.ID)
	require.ErrorIs(t, err, ErrApprovalTimeout)

	stored, err := gate.Get(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, ApprovalStatusTimeout, stored.Status)
}

func TestGateDefaultTimeout(t *testing.T) {
	gate := NewGate(GateOptions{PollInterval: time.Minute})
	ctx := context.Background()

	go func() {
		gate.RequestApproval(ctx, ApprovalInput{WorkflowID: "wf-1", Title: "defaulted"})
	}()

	request := waitForPending(t, gate, "wf-1")
	require.WithinDuration(t, request.CreatedAt.Add(DefaultApprovalTimeout), request.ExpiresAt, time.Second)
}
