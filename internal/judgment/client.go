// Package judgment abstracts the opaque external judgment capability: a
// service that, given a prompt, returns free text or structured JSON. It is
// fallible and non-deterministic; every consuming stage defines its own
// deterministic fallback and never depends on it being available.
package judgment

import (
	"context"
	"errors"
	"fmt"
)

// Client is the single capability interface consumed by pipeline stages.
// structured requests the output as JSON; free-text calls leave formatting
// to the capability.
type Client interface {
	Judge(ctx context.Context, systemInstruction, prompt string, structured bool) (string, error)
}

// CapabilityError marks a transport, timeout, or empty-response failure of
// the judgment capability. Stages recover from it locally via their
// deterministic fallbacks.
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("judgment capability %s: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// IsCapabilityError reports whether err is (or wraps) a CapabilityError.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}

// SchemaError marks capability output that failed structured validation
// after the bounded re-prompt retries were exhausted. It is distinct from
// CapabilityError: the capability answered, but not in the required shape.
type SchemaError struct {
	Attempts int
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("judgment output failed schema validation after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
