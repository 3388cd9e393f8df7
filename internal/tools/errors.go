package tools

import "errors"

// Sentinel errors from the registry and argument validation. They are wrapped
// with the offending tool or argument name, so callers match with errors.Is.
var (
	// ErrToolNotFound: the requested name is not in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty: a tool was registered without a name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil: a tool has neither Execute nor ExecuteStream.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered: a second tool claimed an existing name.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg: a call omitted an argument the schema requires.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType: an argument value does not match its schema type.
	ErrInvalidArgType = errors.New("invalid argument type")
)
