// Package backend defines the completion client used to turn prompts into
// text. This allows easy extension with new backend types (e.g., Azure or
// local OpenAI-compatible servers) and facilitates testing through mock
// implementations.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Chat roles understood by every backend.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// DefaultTemperature is the sampling temperature used for documentation runs.
const DefaultTemperature float32 = 0.6

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Request is a single completion call.
type Request struct {
	// Model selects the model; empty means the backend default.
	Model       string
	Temperature float32
	Messages    []Message
	// JSON asks the backend to constrain the answer to a JSON object.
	JSON bool
}

// NewRequest builds a request from a system instruction and user content.
func NewRequest(model string, temperature float32, system, user string) Request {
	return Request{
		Model:       model,
		Temperature: temperature,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
	}
}

// LLMBackend is the interface for completion backends.
type LLMBackend interface {
	// Complete sends one request and returns the model's text.
	Complete(ctx context.Context, req Request) (string, error)

	// Name returns a human-readable name for the backend.
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// Func adapts a plain function to LLMBackend.
type Func func(ctx context.Context, req Request) (string, error)

// Complete implements LLMBackend.
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Name implements LLMBackend.
func (f Func) Name() string { return "func" }

// Close implements LLMBackend.
func (f Func) Close() error { return nil }

var (
	// ErrServiceUnavailable classifies connectivity and service-side failures.
	ErrServiceUnavailable = errors.New("completion service unavailable")
	// ErrUnknownFailure classifies everything else.
	ErrUnknownFailure = errors.New("unexpected completion failure")
)

// CompletionError wraps a backend failure with its classification.
type CompletionError struct {
	// Kind is ErrServiceUnavailable or ErrUnknownFailure.
	Kind error
	// Transient is true when repeating the same request may succeed.
	Transient bool
	Err       error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap exposes both the classification and the cause to errors.Is/As.
func (e *CompletionError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether err is a completion failure worth retrying.
func IsTransient(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce) && ce.Transient
}
