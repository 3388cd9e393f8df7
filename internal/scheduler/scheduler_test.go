package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"conductor/internal/tools"
	"conductor/internal/types"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestRegistry builds a registry with a few synthetic tools.
func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()

	r.MustRegister(&tools.Tool{
		Name:        "echo",
		Description: "echoes its input",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return msg, nil
		},
		Schema: tools.ToolSchema{
			Required:   []string{"message"},
			Properties: map[string]tools.Property{"message": {Type: "string"}},
		},
	})

	r.MustRegister(&tools.Tool{
		Name:        "fail",
		Description: "always fails",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", fmt.Errorf("synthetic failure")
		},
	})

	r.MustRegister(&tools.Tool{
		Name:        "slow",
		Description: "waits for ctx or a long sleep",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "done", nil
			}
		},
	})

	r.MustRegister(&tools.Tool{
		Name:             "guarded",
		Description:      "requires approval",
		RequiresApproval: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "guarded ran", nil
		},
	})

	r.MustRegister(&tools.Tool{
		Name:        "stream",
		Description: "streams three chunks",
		ExecuteStream: func(ctx context.Context, args map[string]any, emit func(chunk string)) (string, error) {
			for _, chunk := range []string{"one", "two", "three"} {
				emit(chunk)
			}
			return "one two three", nil
		},
	})

	return r
}

// collector gathers callback activity for assertions.
type collector struct {
	mu       sync.Mutex
	chunks   map[string][]string
	updates  int
	done     chan []*ToolCall
	awaiting chan string // call IDs observed entering awaiting_approval
}

func newCollector() *collector {
	return &collector{
		chunks:   make(map[string][]string),
		done:     make(chan []*ToolCall, 1),
		awaiting: make(chan string, 16),
	}
}

func (c *collector) callbacks() Callbacks {
	seen := make(map[string]bool)
	return Callbacks{
		OnOutputUpdate: func(callID, chunk string) {
			c.mu.Lock()
			c.chunks[callID] = append(c.chunks[callID], chunk)
			c.mu.Unlock()
		},
		OnToolCallsUpdate: func(calls []*ToolCall) {
			c.mu.Lock()
			c.updates++
			for _, call := range calls {
				if call.Status() == StatusAwaitingApproval && !seen[call.Request.ID] {
					seen[call.Request.ID] = true
					c.awaiting <- call.Request.ID
				}
			}
			c.mu.Unlock()
		},
		OnAllComplete: func(calls []*ToolCall) {
			c.done <- calls
		},
	}
}

func (c *collector) wait(t *testing.T) []*ToolCall {
	t.Helper()
	select {
	case calls := <-c.done:
		return calls
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnAllComplete")
		return nil
	}
}

func findCall(t *testing.T, calls []*ToolCall, id string) *ToolCall {
	t.Helper()
	for _, call := range calls {
		if call.Request.ID == id {
			return call
		}
	}
	t.Fatalf("call %s not found", id)
	return nil
}

func TestEmptyBatchCompletesImmediately(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), nil)

	calls := c.wait(t)
	if len(calls) != 0 {
		t.Errorf("expected empty batch, got %d calls", len(calls))
	}
}

func TestSingleCallSuccess(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "echo", Arguments: map[string]any{"message": "hello"}},
	})

	calls := c.wait(t)
	call := findCall(t, calls, "c1")
	if call.Status() != StatusSuccess {
		t.Errorf("status = %s, want success", call.Status())
	}
	if resp := call.Response(); resp == nil || resp.Content != "hello" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestBatchRunsConcurrently(t *testing.T) {
	// Tools block until all have started; a serial scheduler would deadlock.
	const n = 4
	barrier := make(chan struct{})
	var started sync.WaitGroup
	started.Add(n)

	r := tools.NewRegistry()
	r.MustRegister(&tools.Tool{
		Name: "rendezvous",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			started.Done()
			<-barrier
			return "met", nil
		},
	})
	go func() {
		started.Wait()
		close(barrier)
	}()

	c := newCollector()
	s := New(r, c.callbacks())

	var reqs []types.ToolCallRequest
	for i := 0; i < n; i++ {
		reqs = append(reqs, types.ToolCallRequest{ID: fmt.Sprintf("c%d", i), Name: "rendezvous"})
	}
	s.Schedule(context.Background(), reqs)

	calls := c.wait(t)
	for _, call := range calls {
		if call.Status() != StatusSuccess {
			t.Errorf("call %s status = %s, want success", call.Request.ID, call.Status())
		}
	}
}

func TestUnknownToolNeverExecutes(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "no_such_tool"},
		{ID: "c2", Name: "echo", Arguments: map[string]any{"message": "ok"}},
	})

	calls := c.wait(t)
	bad := findCall(t, calls, "c1")
	if bad.Status() != StatusError {
		t.Errorf("status = %s, want error", bad.Status())
	}
	if resp := bad.Response(); resp == nil || resp.Kind != types.ErrKindToolNotFound {
		t.Errorf("unexpected response: %+v", bad.Response())
	}

	// The sibling still succeeded.
	good := findCall(t, calls, "c2")
	if good.Status() != StatusSuccess {
		t.Errorf("sibling status = %s, want success", good.Status())
	}
}

func TestArgumentValidationFailure(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "echo", Arguments: map[string]any{}}, // message missing
	})

	calls := c.wait(t)
	call := findCall(t, calls, "c1")
	if call.Status() != StatusError {
		t.Errorf("status = %s, want error", call.Status())
	}
	if resp := call.Response(); resp == nil || resp.Kind != types.ErrKindValidation {
		t.Errorf("unexpected response: %+v", call.Response())
	}
}

func TestExecutionErrorDoesNotCancelSiblings(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "fail"},
		{ID: "c2", Name: "echo", Arguments: map[string]any{"message": "fine"}},
	})

	calls := c.wait(t)
	failed := findCall(t, calls, "c1")
	if failed.Status() != StatusError {
		t.Errorf("status = %s, want error", failed.Status())
	}
	if resp := failed.Response(); resp == nil || resp.Kind != types.ErrKindExecution || !strings.Contains(resp.Err, "synthetic failure") {
		t.Errorf("unexpected response: %+v", failed.Response())
	}
	if findCall(t, calls, "c2").Status() != StatusSuccess {
		t.Error("sibling should succeed")
	}
}

func TestApprovalGrantedThenExecutes(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "guarded"},
	})

	select {
	case id := <-c.awaiting:
		if err := s.Resolve(id, true); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("call never reached awaiting_approval")
	}

	calls := c.wait(t)
	call := findCall(t, calls, "c1")
	if call.Status() != StatusSuccess {
		t.Errorf("status = %s, want success", call.Status())
	}
	if resp := call.Response(); resp == nil || resp.Content != "guarded ran" {
		t.Errorf("unexpected response: %+v", call.Response())
	}
}

func TestApprovalDeniedCancelsOnlyThatCall(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "guarded"},
		{ID: "c2", Name: "echo", Arguments: map[string]any{"message": "free"}},
	})

	select {
	case id := <-c.awaiting:
		if err := s.Resolve(id, false); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("call never reached awaiting_approval")
	}

	calls := c.wait(t)
	denied := findCall(t, calls, "c1")
	if denied.Status() != StatusCancelled {
		t.Errorf("status = %s, want cancelled", denied.Status())
	}
	if resp := denied.Response(); resp == nil || resp.Err != "confirmation denied" {
		t.Errorf("unexpected response: %+v", denied.Response())
	}
	if findCall(t, calls, "c2").Status() != StatusSuccess {
		t.Error("unrelated call should succeed")
	}
}

func TestParkedApprovalDoesNotBlockSiblings(t *testing.T) {
	c := newCollector()
	sibDone := make(chan struct{})

	r := newTestRegistry(t)
	r.MustRegister(&tools.Tool{
		Name: "signal",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			close(sibDone)
			return "ran", nil
		},
	})
	s := New(r, c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "parked", Name: "guarded"},
		{ID: "free", Name: "signal"},
	})

	// The sibling finishes while the guarded call is still parked.
	select {
	case <-sibDone:
	case <-time.After(5 * time.Second):
		t.Fatal("sibling blocked behind a parked approval")
	}

	id := <-c.awaiting
	if err := s.Resolve(id, true); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	c.wait(t)
}

func TestResolveUnknownCall(t *testing.T) {
	s := New(newTestRegistry(t), Callbacks{})
	if err := s.Resolve("ghost", true); err == nil {
		t.Fatal("expected error resolving unknown call")
	}
}

func TestResolveTwiceSecondFails(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "guarded"},
	})

	id := <-c.awaiting
	if err := s.Resolve(id, true); err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	if err := s.Resolve(id, false); err == nil {
		t.Fatal("second Resolve should fail")
	}
	c.wait(t)
}

func TestContextCancellationDrivesCallsToCancelled(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	ctx, cancel := context.WithCancel(context.Background())
	s.Schedule(ctx, []types.ToolCallRequest{
		{ID: "c1", Name: "slow"},
		{ID: "c2", Name: "guarded"}, // parked on approval
	})

	// Let both calls get going, then cancel the batch.
	<-c.awaiting
	time.Sleep(20 * time.Millisecond)
	cancel()

	calls := c.wait(t)
	for _, call := range calls {
		if call.Status() != StatusCancelled {
			t.Errorf("call %s status = %s, want cancelled", call.Request.ID, call.Status())
		}
	}
}

func TestPreCancelledContextCancelsWholeBatch(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Schedule(ctx, []types.ToolCallRequest{
		{ID: "c1", Name: "echo", Arguments: map[string]any{"message": "never"}},
		{ID: "c2", Name: "stream"},
		{ID: "c3", Name: "guarded"},
	})

	calls := c.wait(t)
	for _, call := range calls {
		if call.Status() != StatusCancelled {
			t.Errorf("call %s status = %s, want cancelled", call.Request.ID, call.Status())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, chunks := range c.chunks {
		if len(chunks) != 0 {
			t.Errorf("call %s emitted output despite never executing: %v", id, chunks)
		}
	}
}

func TestStreamingOutputOrderedPerCall(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "stream"},
	})

	calls := c.wait(t)
	call := findCall(t, calls, "c1")
	if call.Status() != StatusSuccess {
		t.Fatalf("status = %s, want success", call.Status())
	}

	want := []string{"one", "two", "three"}
	c.mu.Lock()
	got := c.chunks["c1"]
	c.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("chunks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunks = %v, want %v", got, want)
		}
	}

	buffered := call.Output()
	for i := range want {
		if buffered[i] != want[i] {
			t.Fatalf("buffered output = %v, want %v", buffered, want)
		}
	}
}

func TestNonStreamingToolProducesNoOutputUpdates(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "echo", Arguments: map[string]any{"message": "quiet"}},
	})

	c.wait(t)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chunks["c1"]) != 0 {
		t.Errorf("expected no output updates, got %v", c.chunks["c1"])
	}
}

func TestAutoApproveSkipsGating(t *testing.T) {
	c := newCollector()
	s := New(newTestRegistry(t), c.callbacks(), WithAutoApprove())

	s.Schedule(context.Background(), []types.ToolCallRequest{
		{ID: "c1", Name: "guarded"},
	})

	calls := c.wait(t)
	if findCall(t, calls, "c1").Status() != StatusSuccess {
		t.Error("auto-approved call should succeed without Resolve")
	}
	select {
	case id := <-c.awaiting:
		t.Errorf("call %s unexpectedly awaited approval", id)
	default:
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusValidating:       "validating",
		StatusAwaitingApproval: "awaiting_approval",
		StatusScheduled:        "scheduled",
		StatusExecuting:        "executing",
		StatusSuccess:          "success",
		StatusError:            "error",
		StatusCancelled:        "cancelled",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
	if !StatusSuccess.Terminal() || StatusExecuting.Terminal() {
		t.Error("Terminal misclassified a status")
	}
}
