// Package scheduler executes a batch of model-requested tool calls
// concurrently, tracking a per-call state machine and surfacing progress
// through callbacks. Approval-gated calls park until resolved; one parked
// call never blocks its siblings.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"conductor/internal/logging"
	"conductor/internal/tools"
	"conductor/internal/types"
)

// Status is the lifecycle state of one tool call.
type Status int32

const (
	StatusValidating Status = iota
	StatusAwaitingApproval
	StatusScheduled
	StatusExecuting
	StatusSuccess
	StatusError
	StatusCancelled
)

// String returns the lowercase wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusValidating:
		return "validating"
	case StatusAwaitingApproval:
		return "awaiting_approval"
	case StatusScheduled:
		return "scheduled"
	case StatusExecuting:
		return "executing"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Response is the terminal outcome of one call. Err and Kind are set only
// for error/cancelled outcomes.
type Response struct {
	Content string
	Err     string
	Kind    string
}

// ToolCall pairs an immutable request with its mutable execution state.
// Instances are owned by the scheduler that created them; readers use the
// accessor methods, which are safe during execution.
type ToolCall struct {
	Request types.ToolCallRequest

	status atomic.Int32

	mu         sync.Mutex
	output     []string
	response   *Response
	durationMs int64
}

// Status returns the current lifecycle state.
func (c *ToolCall) Status() Status {
	return Status(c.status.Load())
}

// Response returns the terminal response, or nil while the call is live.
func (c *ToolCall) Response() *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// Output returns the accumulated streamed output chunks, in emission order.
func (c *ToolCall) Output() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.output))
	copy(out, c.output)
	return out
}

// DurationMs returns execution wall time, 0 until the call ran.
func (c *ToolCall) DurationMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationMs
}

func (c *ToolCall) appendOutput(chunk string) {
	c.mu.Lock()
	c.output = append(c.output, chunk)
	c.mu.Unlock()
}

// setStatus moves to next unless the call is already terminal. Returns
// whether the transition happened.
func (c *ToolCall) setStatus(next Status) bool {
	for {
		cur := c.status.Load()
		if Status(cur).Terminal() {
			return false
		}
		if c.status.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

// finish moves the call to a terminal status and records its response.
// The first terminal transition wins; later attempts are dropped.
func (c *ToolCall) finish(status Status, resp Response, durationMs int64) bool {
	if !c.setStatus(status) {
		return false
	}
	c.mu.Lock()
	c.response = &resp
	c.durationMs = durationMs
	c.mu.Unlock()
	return true
}

// Callbacks observe a batch. All fields are optional. OnOutputUpdate chunks
// are strictly ordered within a call. OnToolCallsUpdate fires after every
// status change with the full batch. OnAllComplete fires exactly once, when
// every call is terminal; the batch's calls are handed over for draining.
type Callbacks struct {
	OnOutputUpdate    func(callID, chunk string)
	OnToolCallsUpdate func(calls []*ToolCall)
	OnAllComplete     func(calls []*ToolCall)
}

// ApprovalPolicy decides whether a call needs explicit confirmation before
// executing. The default policy gates on Tool.RequiresApproval.
type ApprovalPolicy func(tool *tools.Tool, req types.ToolCallRequest) bool

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithApprovalPolicy replaces the default approval gate.
func WithApprovalPolicy(p ApprovalPolicy) Option {
	return func(s *Scheduler) { s.approvalPolicy = p }
}

// WithAutoApprove disables approval gating entirely. Used by sub-agent runs
// whose tool whitelist was approved up front.
func WithAutoApprove() Option {
	return func(s *Scheduler) {
		s.approvalPolicy = func(*tools.Tool, types.ToolCallRequest) bool { return false }
	}
}

// Scheduler runs batches of tool calls against a registry. A scheduler holds
// no global state; each batch tracks its own completion and fires its own
// OnAllComplete.
type Scheduler struct {
	registry       *tools.Registry
	callbacks      Callbacks
	approvalPolicy ApprovalPolicy

	mu       sync.Mutex
	approval map[string]chan bool // call ID -> pending confirmation
}

// New creates a scheduler over the given registry.
func New(registry *tools.Registry, callbacks Callbacks, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:  registry,
		callbacks: callbacks,
		approvalPolicy: func(tool *tools.Tool, _ types.ToolCallRequest) bool {
			return tool.RequiresApproval
		},
		approval: make(map[string]chan bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule starts a batch and returns immediately. Progress and completion
// are reported through the callbacks. An empty batch completes immediately.
func (s *Scheduler) Schedule(ctx context.Context, requests []types.ToolCallRequest) []*ToolCall {
	calls := make([]*ToolCall, len(requests))
	for i, req := range requests {
		calls[i] = &ToolCall{Request: req}
	}

	if len(calls) == 0 {
		logging.SchedulerDebug("Empty batch, completing immediately")
		s.allComplete(calls)
		return calls
	}

	logging.Scheduler("Scheduling batch of %d calls", len(calls))

	go func() {
		var wg sync.WaitGroup
		for _, call := range calls {
			wg.Add(1)
			go func(call *ToolCall) {
				defer wg.Done()
				s.runCall(ctx, call, calls)
			}(call)
		}
		wg.Wait()
		s.allComplete(calls)
	}()

	return calls
}

// Resolve answers a pending approval. approved=false drives the call to
// cancelled with a denial response. The first resolution wins; resolving an
// unknown or already-resolved call is an error.
func (s *Scheduler) Resolve(callID string, approved bool) error {
	s.mu.Lock()
	ch, ok := s.approval[callID]
	if ok {
		delete(s.approval, callID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending approval for call %s", callID)
	}

	ch <- approved
	logging.Scheduler("Call %s resolved: approved=%v", callID, approved)
	return nil
}

// runCall drives one call through its state machine.
func (s *Scheduler) runCall(ctx context.Context, call *ToolCall, batch []*ToolCall) {
	id := call.Request.ID
	name := call.Request.Name

	// validating
	s.notifyUpdate(batch)

	tool := s.registry.Get(name)
	if tool == nil {
		err := &types.ToolNotFoundError{Tool: name}
		logging.SchedulerWarn("Call %s: %v", id, err)
		s.finishCall(call, batch, StatusError, Response{
			Err:  err.Error(),
			Kind: types.ErrKindToolNotFound,
		}, 0)
		return
	}

	if err := tools.ValidateArgs(tool, call.Request.Arguments); err != nil {
		verr := &types.ValidationError{Field: name, Reason: err.Error()}
		logging.SchedulerWarn("Call %s: %v", id, verr)
		s.finishCall(call, batch, StatusError, Response{
			Err:  verr.Error(),
			Kind: types.ErrKindValidation,
		}, 0)
		return
	}

	if ctx.Err() != nil {
		s.cancelCall(call, batch, "context cancelled")
		return
	}

	// awaiting_approval, when gated
	if s.approvalPolicy(tool, call.Request) {
		if !s.awaitApproval(ctx, call, batch) {
			return // terminal state already recorded
		}
	}

	call.setStatus(StatusScheduled)
	s.notifyUpdate(batch)

	if ctx.Err() != nil {
		s.cancelCall(call, batch, "context cancelled")
		return
	}

	call.setStatus(StatusExecuting)
	s.notifyUpdate(batch)

	emit := func(chunk string) {
		call.appendOutput(chunk)
		if s.callbacks.OnOutputUpdate != nil {
			s.callbacks.OnOutputUpdate(id, chunk)
		}
	}

	result, err := s.registry.ExecuteTool(ctx, tool, call.Request.Arguments, emit)
	if err != nil {
		if ctx.Err() != nil {
			s.cancelCall(call, batch, "context cancelled")
			return
		}
		eerr := &types.ExecutionError{Tool: name, Cause: err}
		logging.SchedulerWarn("Call %s: %v", id, eerr)
		s.finishCall(call, batch, StatusError, Response{
			Content: result.Result,
			Err:     eerr.Error(),
			Kind:    types.ErrKindExecution,
		}, result.DurationMs)
		return
	}

	logging.SchedulerDebug("Call %s (%s) succeeded in %dms", id, name, result.DurationMs)
	s.finishCall(call, batch, StatusSuccess, Response{Content: result.Result}, result.DurationMs)
}

// awaitApproval parks the call until Resolve or ctx cancellation. Returns
// true when approved; otherwise the call has reached a terminal state.
func (s *Scheduler) awaitApproval(ctx context.Context, call *ToolCall, batch []*ToolCall) bool {
	id := call.Request.ID

	ch := make(chan bool, 1)
	s.mu.Lock()
	s.approval[id] = ch
	s.mu.Unlock()

	call.setStatus(StatusAwaitingApproval)
	s.notifyUpdate(batch)
	logging.Scheduler("Call %s (%s) awaiting approval", id, call.Request.Name)

	select {
	case approved := <-ch:
		if !approved {
			s.finishCall(call, batch, StatusCancelled, Response{
				Err: "confirmation denied",
			}, 0)
			return false
		}
		return true
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.approval, id)
		s.mu.Unlock()
		s.cancelCall(call, batch, "context cancelled")
		return false
	}
}

func (s *Scheduler) cancelCall(call *ToolCall, batch []*ToolCall, reason string) {
	logging.SchedulerDebug("Call %s cancelled: %s", call.Request.ID, reason)
	s.finishCall(call, batch, StatusCancelled, Response{Err: reason}, 0)
}

func (s *Scheduler) finishCall(call *ToolCall, batch []*ToolCall, status Status, resp Response, durationMs int64) {
	if call.finish(status, resp, durationMs) {
		s.notifyUpdate(batch)
	}
}

func (s *Scheduler) notifyUpdate(batch []*ToolCall) {
	if s.callbacks.OnToolCallsUpdate != nil {
		s.callbacks.OnToolCallsUpdate(batch)
	}
}

func (s *Scheduler) allComplete(calls []*ToolCall) {
	logging.SchedulerDebug("Batch complete (%d calls)", len(calls))
	if s.callbacks.OnAllComplete != nil {
		s.callbacks.OnAllComplete(calls)
	}
}
