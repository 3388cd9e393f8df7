package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"conductor/internal/logging"
	"conductor/internal/types"
)

// ModelRequest is the BeforeModel payload: the outgoing request as the caller
// intends to send it. Hooks rewrite a copy; the original is never mutated.
type ModelRequest struct {
	System string
	Turns  []types.Turn
}

// InstructionSource resolves a command name to its workflow instructions.
type InstructionSource interface {
	// Lookup returns the instructions for a command, and whether the command
	// is known.
	Lookup(name string) (string, bool)
}

// FileSource reads workflow instructions from <dir>/<name>.md.
type FileSource struct {
	Dir string
}

// Lookup implements InstructionSource. Unknown or unreadable files report
// the command as unknown.
func (s FileSource) Lookup(name string) (string, bool) {
	if name == "" || strings.ContainsAny(name, "/\\.") {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name+".md"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Injector rewrites outgoing model requests whose final user turn begins with
// a /command token, splicing the command's workflow instructions into the
// turn. It subscribes to execution requests for the BeforeModel event.
type Injector struct {
	source InstructionSource
}

// NewInjector creates an injector backed by the given instruction source.
func NewInjector(source InstructionSource) *Injector {
	return &Injector{source: source}
}

// Install subscribes the injector on the bus. Call once at startup.
func (inj *Injector) Install(bus *Bus) {
	bus.Subscribe(TypeExecutionRequest, func(msg Message) {
		req, ok := msg.Payload.(ExecutionRequest)
		if !ok || req.EventName != EventBeforeModel {
			return
		}

		modelReq, ok := req.Input.(ModelRequest)
		if !ok {
			bus.Respond(ExecutionResponse{
				CorrelationID: req.CorrelationID,
				Success:       false,
				Output:        "unexpected BeforeModel payload",
			})
			return
		}

		rewritten := inj.Rewrite(modelReq)
		bus.Respond(ExecutionResponse{
			CorrelationID: req.CorrelationID,
			Success:       true,
			Output:        rewritten,
		})
	})
}

// Rewrite returns the request with workflow instructions injected into the
// final turn, when that turn is user-authored and starts with a known
// /command token. All other requests pass through unchanged.
func (inj *Injector) Rewrite(req ModelRequest) ModelRequest {
	if len(req.Turns) == 0 {
		return req
	}

	last := req.Turns[len(req.Turns)-1]
	if last.Role != "user" {
		return req
	}

	token, body, ok := splitCommandToken(last.Content)
	if !ok {
		return req
	}

	instructions, known := inj.source.Lookup(strings.TrimPrefix(token, "/"))
	if !known {
		logging.HooksDebug("Unknown command token %s, leaving turn untouched", token)
		return req
	}

	// The token leads the rewritten turn so downstream consumers still see
	// which command was invoked, followed by the command's instructions and
	// the original request body.
	var sb strings.Builder
	sb.WriteString(token)
	sb.WriteString("\n\n")
	sb.WriteString(instructions)
	if body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(body)
	}

	out := req
	out.Turns = make([]types.Turn, len(req.Turns))
	copy(out.Turns, req.Turns)
	rewrittenTurn := last
	rewrittenTurn.Content = sb.String()
	out.Turns[len(out.Turns)-1] = rewrittenTurn

	logging.Hooks("Injected workflow instructions for %s (%d chars)", token, sb.Len())
	return out
}

// splitCommandToken splits "/name rest of prompt" into its token and body.
// Content that does not start with a slash command reports ok=false.
func splitCommandToken(content string) (token, body string, ok bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "/") || len(trimmed) < 2 {
		return "", "", false
	}

	token = trimmed
	if idx := strings.IndexAny(trimmed, " \t\n"); idx >= 0 {
		token = trimmed[:idx]
		body = strings.TrimSpace(trimmed[idx:])
	}

	// A bare "/" or "/ text" is not a command.
	name := strings.TrimPrefix(token, "/")
	if name == "" {
		return "", "", false
	}
	for _, r := range name {
		if !isCommandRune(r) {
			return "", "", false
		}
	}
	return token, body, true
}

func isCommandRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

// TransformRequest is the model-layer helper: it passes the outgoing request
// through the bus and returns the (possibly rewritten) request. Hook
// failures of any kind are absorbed: the original request is returned so a
// broken hook can never block a model call.
func TransformRequest(ctx context.Context, bus *Bus, req ModelRequest) ModelRequest {
	if bus == nil {
		return req
	}

	resp, err := bus.Request(ctx, EventBeforeModel, req)
	if err != nil {
		if !errors.Is(err, ErrNoSubscribers) {
			logging.HooksWarn("BeforeModel hook failed: %v", err)
		}
		return req
	}
	if !resp.Success {
		logging.HooksWarn("BeforeModel hook reported failure: %v", resp.Output)
		return req
	}

	rewritten, ok := resp.Output.(ModelRequest)
	if !ok {
		logging.HooksWarn("BeforeModel hook returned %T, ignoring", resp.Output)
		return req
	}
	return rewritten
}
