package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced in tool-call responses and run results. Every
// tool-facing failure carries one of these so the orchestrating model can
// react without parsing prose.
const (
	ErrKindValidation     = "validation_error"
	ErrKindToolNotFound   = "tool_not_found"
	ErrKindExecution      = "execution_error"
	ErrKindBudgetExceeded = "budget_exceeded"
	ErrKindUpstreamCall   = "upstream_call_error"
)

// ValidationError reports bad or missing structured input or output.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

// ToolNotFoundError reports a request naming a tool absent from the registry.
type ToolNotFoundError struct {
	Tool string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Tool)
}

// ExecutionError reports a tool body that ran and failed.
type ExecutionError struct {
	Tool  string
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// BudgetExceededError marks a time or turn bound being hit. This is a normal
// terminal outcome of a bounded run, not a failure.
type BudgetExceededError struct {
	Kind  string // "time" or "turns"
	Limit string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded (limit %s)", e.Kind, e.Limit)
}

// UpstreamCallError reports that the model backend call itself failed or was
// cancelled.
type UpstreamCallError struct {
	Op    string
	Cause error
}

func (e *UpstreamCallError) Error() string {
	return fmt.Sprintf("upstream call %s failed: %v", e.Op, e.Cause)
}

func (e *UpstreamCallError) Unwrap() error { return e.Cause }

// ErrorKind classifies err into one of the kind constants, or "" when the
// error does not belong to the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrKindValidation
	}
	var tnf *ToolNotFoundError
	if errors.As(err, &tnf) {
		return ErrKindToolNotFound
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ErrKindExecution
	}
	var be *BudgetExceededError
	if errors.As(err, &be) {
		return ErrKindBudgetExceeded
	}
	var ue *UpstreamCallError
	if errors.As(err, &ue) {
		return ErrKindUpstreamCall
	}
	return ""
}

// IsToolNotFound reports whether err is a ToolNotFoundError.
func IsToolNotFound(err error) bool {
	var tnf *ToolNotFoundError
	return errors.As(err, &tnf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsBudgetExceeded reports whether err is a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// IsUpstream reports whether err is an UpstreamCallError.
func IsUpstream(err error) bool {
	var ue *UpstreamCallError
	return errors.As(err, &ue)
}
