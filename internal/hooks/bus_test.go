package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"conductor/internal/types"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		bus.Subscribe("evt", func(msg Message) {
			order = append(order, i)
		})
	}

	bus.Publish(Message{Type: "evt"})

	for i, got := range order {
		if got != i {
			t.Fatalf("delivery order %v, want ascending", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(order))
	}
}

func TestPublishNoSubscribersIsSilent(t *testing.T) {
	bus := NewBus()
	bus.Publish(Message{Type: "nobody-home"}) // must not panic
}

func TestRequestResponseRoundTrip(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeExecutionRequest, func(msg Message) {
		req := msg.Payload.(ExecutionRequest)
		bus.Respond(ExecutionResponse{
			CorrelationID: req.CorrelationID,
			Success:       true,
			Output:        fmt.Sprintf("handled %s", req.EventName),
		})
	})

	resp, err := bus.Request(context.Background(), "BeforeModel", "payload")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !resp.Success || resp.Output != "handled BeforeModel" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRequestNoSubscribers(t *testing.T) {
	bus := NewBus()

	_, err := bus.Request(context.Background(), "BeforeModel", nil)
	if !errors.Is(err, ErrNoSubscribers) {
		t.Fatalf("expected ErrNoSubscribers, got %v", err)
	}
}

func TestRequestCancellation(t *testing.T) {
	bus := NewBus()

	// Subscriber that never responds.
	bus.Subscribe(TypeExecutionRequest, func(msg Message) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bus.Request(ctx, "BeforeModel", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLateResponseDropped(t *testing.T) {
	bus := NewBus()

	var correlationID string
	bus.Subscribe(TypeExecutionRequest, func(msg Message) {
		correlationID = msg.CorrelationID
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := bus.Request(ctx, "BeforeModel", nil); err == nil {
		t.Fatal("expected cancellation")
	}

	// The waiter is gone; this must be dropped without panic.
	bus.Respond(ExecutionResponse{CorrelationID: correlationID, Success: true})
}

func TestDuplicateResponseFirstWins(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeExecutionRequest, func(msg Message) {
		req := msg.Payload.(ExecutionRequest)
		bus.Respond(ExecutionResponse{CorrelationID: req.CorrelationID, Output: "first"})
		bus.Respond(ExecutionResponse{CorrelationID: req.CorrelationID, Output: "second"})
	})

	resp, err := bus.Request(context.Background(), "evt", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.Output != "first" {
		t.Errorf("expected first response to win, got %v", resp.Output)
	}
}

func TestConcurrentRequestsCorrelateIndependently(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeExecutionRequest, func(msg Message) {
		req := msg.Payload.(ExecutionRequest)
		bus.Respond(ExecutionResponse{
			CorrelationID: req.CorrelationID,
			Success:       true,
			Output:        req.Input,
		})
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("payload-%d", i)
			resp, err := bus.Request(context.Background(), "evt", want)
			if err != nil {
				t.Errorf("Request %d failed: %v", i, err)
				return
			}
			if resp.Output != want {
				t.Errorf("request %d got %v, want %v", i, resp.Output, want)
			}
		}(i)
	}
	wg.Wait()
}

func TestInjectorRewritesCommandTurn(t *testing.T) {
	dir := t.TempDir()
	instructions := "Review the changed files and summarize risks."
	if err := os.WriteFile(filepath.Join(dir, "review.md"), []byte(instructions+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	bus := NewBus()
	NewInjector(FileSource{Dir: dir}).Install(bus)

	original := ModelRequest{
		Turns: []types.Turn{
			{Role: "assistant", Content: "previous answer"},
			{Role: "user", Content: "/review the scheduler package"},
		},
	}

	rewritten := TransformRequest(context.Background(), bus, original)

	got := rewritten.Turns[len(rewritten.Turns)-1].Content
	lines := strings.SplitN(got, "\n", 2)
	if lines[0] != "/review" {
		t.Errorf("expected token as first line, got %q", lines[0])
	}
	if !strings.Contains(got, instructions) {
		t.Errorf("expected injected instructions in %q", got)
	}
	if !strings.Contains(got, "the scheduler package") {
		t.Errorf("expected original body preserved in %q", got)
	}

	// Original request untouched.
	if original.Turns[1].Content != "/review the scheduler package" {
		t.Error("original request was mutated")
	}
}

func TestInjectorPassThrough(t *testing.T) {
	bus := NewBus()
	NewInjector(FileSource{Dir: t.TempDir()}).Install(bus)

	cases := []struct {
		name string
		req  ModelRequest
	}{
		{"no turns", ModelRequest{}},
		{"final turn not user", ModelRequest{Turns: []types.Turn{{Role: "assistant", Content: "/review x"}}}},
		{"no command token", ModelRequest{Turns: []types.Turn{{Role: "user", Content: "plain question"}}}},
		{"unknown command", ModelRequest{Turns: []types.Turn{{Role: "user", Content: "/nosuch thing"}}}},
		{"bare slash", ModelRequest{Turns: []types.Turn{{Role: "user", Content: "/ leading slash"}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TransformRequest(context.Background(), bus, tc.req)
			if len(got.Turns) != len(tc.req.Turns) {
				t.Fatalf("turn count changed")
			}
			for i := range got.Turns {
				if got.Turns[i].Content != tc.req.Turns[i].Content {
					t.Errorf("turn %d rewritten: %q", i, got.Turns[i].Content)
				}
			}
		})
	}
}

func TestTransformRequestAbsorbsMissingHooks(t *testing.T) {
	req := ModelRequest{Turns: []types.Turn{{Role: "user", Content: "/review x"}}}

	got := TransformRequest(context.Background(), NewBus(), req)
	if got.Turns[0].Content != req.Turns[0].Content {
		t.Error("request changed with no hooks installed")
	}

	got = TransformRequest(context.Background(), nil, req)
	if got.Turns[0].Content != req.Turns[0].Content {
		t.Error("request changed with nil bus")
	}
}

func TestSplitCommandToken(t *testing.T) {
	cases := []struct {
		content string
		token   string
		body    string
		ok      bool
	}{
		{"/review the code", "/review", "the code", true},
		{"/fix-bug", "/fix-bug", "", true},
		{"/cmd_x\nmultiline body", "/cmd_x", "multiline body", true},
		{"no command", "", "", false},
		{"/", "", "", false},
		{"/bad!token x", "", "", false},
		{"  /spaced out  ", "/spaced", "out", true},
	}

	for _, tc := range cases {
		token, body, ok := splitCommandToken(tc.content)
		if token != tc.token || body != tc.body || ok != tc.ok {
			t.Errorf("splitCommandToken(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.content, token, body, ok, tc.token, tc.body, tc.ok)
		}
	}
}
