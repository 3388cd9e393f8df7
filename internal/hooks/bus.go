// Package hooks implements the in-process publish-subscribe bus that sits
// between components and the model layer. Subscribers register per message
// type; the Request/Respond pair layers a correlation-id request/response
// protocol on top of plain publish.
package hooks

import (
	"context"
	"errors"
	"sync"

	"conductor/internal/logging"

	"github.com/google/uuid"
)

// Message types carried on the bus.
const (
	TypeExecutionRequest  = "HOOK_EXECUTION_REQUEST"
	TypeExecutionResponse = "HOOK_EXECUTION_RESPONSE"
)

// Well-known event names for ExecutionRequest payloads.
const (
	EventBeforeModel = "BeforeModel"
)

// ErrNoSubscribers is returned by Request when nothing is subscribed to the
// request type. Callers treat it as "no hook installed" and proceed.
var ErrNoSubscribers = errors.New("hooks: no subscribers for message type")

// Message is the unit of delivery on the bus.
type Message struct {
	Type          string
	CorrelationID string
	Payload       any
}

// ExecutionRequest asks subscribers to run the hook for an event and respond
// on the same correlation id.
type ExecutionRequest struct {
	EventName     string
	Input         any
	CorrelationID string
}

// ExecutionResponse carries a hook's result back to the requester.
type ExecutionResponse struct {
	CorrelationID string
	Success       bool
	Output        any
}

// Handler receives published messages. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(msg Message)

// Bus is the process-wide hook bus. One instance is created at startup and
// injected into every component that talks to the model layer. Subscriptions
// live for the process lifetime; there is no unsubscribe.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler

	// pending maps correlation id -> buffered response channel for in-flight
	// Request calls. Entries are removed when the request resolves; responses
	// arriving after that are dropped.
	pending sync.Map
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a message type. Delivery order among
// handlers of the same type follows registration order.
func (b *Bus) Subscribe(msgType string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subs[msgType] = append(b.subs[msgType], h)
	count := len(b.subs[msgType])
	b.mu.Unlock()

	logging.HooksDebug("Subscribed to %s (%d handlers)", msgType, count)
}

// Publish delivers a message to every subscriber of its type, in
// registration order, on the caller's goroutine. Messages with no
// subscribers are dropped silently.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	handlers := b.subs[msg.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

// subscriberCount reports how many handlers are registered for a type.
func (b *Bus) subscriberCount(msgType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[msgType])
}

// Request publishes an ExecutionRequest and blocks until a matching
// ExecutionResponse arrives or ctx is done. A fresh correlation id is
// generated per call. When nothing subscribes to the request type the call
// fails fast with ErrNoSubscribers instead of waiting for a response that
// can never come.
func (b *Bus) Request(ctx context.Context, eventName string, input any) (*ExecutionResponse, error) {
	if b.subscriberCount(TypeExecutionRequest) == 0 {
		return nil, ErrNoSubscribers
	}

	correlationID := uuid.New().String()
	ch := make(chan *ExecutionResponse, 1)
	b.pending.Store(correlationID, ch)
	defer b.pending.Delete(correlationID)

	rlog := logging.WithRequestID(logging.CategoryHooks, correlationID)
	rlog.Debug("request event=%s", eventName)

	b.Publish(Message{
		Type:          TypeExecutionRequest,
		CorrelationID: correlationID,
		Payload: ExecutionRequest{
			EventName:     eventName,
			Input:         input,
			CorrelationID: correlationID,
		},
	})

	select {
	case resp := <-ch:
		rlog.Debug("resolved success=%v", resp.Success)
		return resp, nil
	case <-ctx.Done():
		rlog.Warn("cancelled: %v", ctx.Err())
		return nil, ctx.Err()
	}
}

// Respond delivers a response for a correlation id. The first response wins;
// late or duplicate responses for an id with no waiter are dropped. Respond
// never blocks.
func (b *Bus) Respond(resp ExecutionResponse) {
	v, ok := b.pending.Load(resp.CorrelationID)
	if !ok {
		logging.HooksDebug("Dropping response for unknown correlation %s", resp.CorrelationID)
		return
	}

	ch := v.(chan *ExecutionResponse)
	r := resp
	select {
	case ch <- &r:
	default:
		// A response already landed for this id.
		logging.HooksDebug("Dropping duplicate response for %s", resp.CorrelationID)
	}

	b.Publish(Message{
		Type:          TypeExecutionResponse,
		CorrelationID: resp.CorrelationID,
		Payload:       r,
	})
}
