package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &ValidationError{Field: "task", Reason: "required"}, ErrKindValidation},
		{"tool not found", &ToolNotFoundError{Tool: "nope"}, ErrKindToolNotFound},
		{"execution", &ExecutionError{Tool: "shell", Cause: errors.New("exit 1")}, ErrKindExecution},
		{"budget", &BudgetExceededError{Kind: "turns", Limit: "10"}, ErrKindBudgetExceeded},
		{"upstream", &UpstreamCallError{Op: "complete", Cause: errors.New("429")}, ErrKindUpstreamCall},
		{"wrapped", fmt.Errorf("run failed: %w", &ToolNotFoundError{Tool: "x"}), ErrKindToolNotFound},
		{"unclassified", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("batch: %w", &UpstreamCallError{Op: "classify", Cause: cause})

	if !errors.Is(err, cause) {
		t.Error("UpstreamCallError should unwrap to its cause")
	}

	execErr := &ExecutionError{Tool: "web_fetch", Cause: cause}
	if !errors.Is(execErr, cause) {
		t.Error("ExecutionError should unwrap to its cause")
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsToolNotFound(&ToolNotFoundError{Tool: "x"}) {
		t.Error("IsToolNotFound should match")
	}
	if IsToolNotFound(errors.New("other")) {
		t.Error("IsToolNotFound should not match plain errors")
	}
	if !IsValidation(fmt.Errorf("wrap: %w", &ValidationError{Reason: "bad"})) {
		t.Error("IsValidation should match through wrapping")
	}
	if !IsBudgetExceeded(&BudgetExceededError{Kind: "time", Limit: "5m"}) {
		t.Error("IsBudgetExceeded should match")
	}
}

func TestDelegationSnapshotUsable(t *testing.T) {
	tests := []struct {
		name string
		snap DelegationSnapshot
		want bool
	}{
		{"both set", DelegationSnapshot{BeforeID: "a", AfterID: "b"}, true},
		{"before only", DelegationSnapshot{BeforeID: "a"}, false},
		{"after only", DelegationSnapshot{AfterID: "b"}, false},
		{"neither", DelegationSnapshot{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Usable(); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}
