package engine

import (
	"errors"
	"fmt"
)

// errNoChoices is wrapped into a BackendError when a backend returns an
// empty choice list.
var errNoChoices = errors.New("no choices in response")

// AuthError indicates a missing or rejected credential at initialize time.
// The adapter stays Uninitialized; the caller may try another backend.
type AuthError struct {
	Backend Backend
	Reason  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Backend, e.Reason)
}

// SchemaError indicates a tool definition that cannot be normalized. Raised
// before any network call so a malformed tool is never silently omitted
// from a request.
type SchemaError struct {
	Tool   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tool %q: invalid schema: %s", e.Tool, e.Reason)
}

// BackendError wraps a transport or API failure with the backend name and
// call context. Backend calls are never retried automatically, except for
// the documented reasoning-mode fallback.
type BackendError struct {
	Backend Backend
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ParseError records a tool-call argument blob that is not valid structured
// data. It is logged and the raw string is kept as the arguments; the turn
// loop continues.
type ParseError struct {
	Tool string
	Raw  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tool %q: arguments are not valid JSON", e.Tool)
}

// ToolCallIDMismatchError is a protocol error: a tool-role message
// references an id with no matching prior ToolCall. The conversation is
// aborted, never silently repaired.
type ToolCallIDMismatchError struct {
	ToolCallID string
}

func (e *ToolCallIDMismatchError) Error() string {
	return fmt.Sprintf("tool result references unknown tool_call_id %q", e.ToolCallID)
}

// CacheValidationError is raised in strict caching mode when a request that
// marked cacheable content came back with neither cache creation nor cache
// read activity.
type CacheValidationError struct {
	Model string
}

func (e *CacheValidationError) Error() string {
	return fmt.Sprintf("model %s: expected cache activity but response reported none", e.Model)
}

// IterationLimitError aborts a turn whose tool-call loop exceeded its
// cap. Partial holds whatever content had been produced.
type IterationLimitError struct {
	Limit   int
	Partial string
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("turn exceeded %d tool-call rounds without converging", e.Limit)
}
