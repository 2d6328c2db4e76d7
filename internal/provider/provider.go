// Package provider defines the model-provider boundary used by generator
// and retriever workers, with typed errors so the retry controller can
// tell transient provider failures from fatal ones.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	// KindTimeout indicates the call exceeded its deadline.
	KindTimeout ErrorKind = iota
	// KindRateLimited indicates the provider rejected the call with a
	// rate-limit response.
	KindRateLimited
	// KindConnection indicates a network-level failure.
	KindConnection
	// KindAuth indicates the provider rejected the credentials.
	KindAuth
	// KindBadRequest indicates the provider rejected the request shape.
	KindBadRequest
	// KindUnknown covers unclassified provider failures.
	KindUnknown
)

// String returns a human-readable error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Backend names the provider that failed.
	Backend string
	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Backend, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Transient reports whether retrying the same call may succeed.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindConnection, KindUnknown:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a transient provider error.
// Non-provider errors are treated as transient; anything that escapes
// classification at this boundary is network-shaped.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return true
}

// Request is one inference call. Instruction is the full derived
// instruction for the worker's task; Schema, when set, is a JSON-schema
// description of the required output appended to the instruction so the
// model emits structured output.
type Request struct {
	// System is the role preamble for the call.
	System string
	// Instruction is the task instruction.
	Instruction string
	// Schema is an optional JSON schema the output must conform to.
	Schema string
	// MaxTokens bounds the response size; 0 uses the backend default.
	MaxTokens int
}

// Response is the raw inference result plus token accounting.
type Response struct {
	// Text is the model output.
	Text string
	// InputTokens is the prompt token count reported by the provider.
	InputTokens int64
	// OutputTokens is the completion token count reported by the provider.
	OutputTokens int64
}

// Provider is an opaque inference backend. Implementations must return
// *Error for every failure so callers can classify, and must honor
// context cancellation and deadlines.
type Provider interface {
	// Name identifies the backend for logging and error reporting.
	Name() string
	// Infer runs one inference call.
	Infer(ctx context.Context, req Request) (Response, error)
}

// classifyContext maps context termination to a provider error, or
// returns nil when ctx is still live.
func classifyContext(ctx context.Context, backend string) *Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Backend: backend, Cause: ctx.Err()}
	case ctx.Err() != nil:
		return &Error{Kind: KindConnection, Backend: backend, Cause: ctx.Err()}
	default:
		return nil
	}
}
