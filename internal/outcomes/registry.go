package outcomes

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrUnknownOutcomeType     = errors.New("outcomes: unknown outcome type")
	ErrValidationFailed       = errors.New("outcomes: validation failed")
	ErrOutcomeExecutionFailed = errors.New("outcomes: execution failed")
)

// ValidationError carries per-field feedback back to the agent verbatim.
type ValidationError struct {
	Type     Type
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return "outcomes: validation failed for " + string(e.Type) + ": " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// ExecutionError reports a handler that ran but did not succeed.
type ExecutionError struct {
	Type    Type
	Message string
}

func (e *ExecutionError) Error() string {
	if e.Message == "" {
		return "outcomes: execution failed for " + string(e.Type)
	}
	return "outcomes: execution failed for " + string(e.Type) + ": " + e.Message
}

func (e *ExecutionError) Unwrap() error { return ErrOutcomeExecutionFailed }

// Dispatched is a successful handler run.
type Dispatched struct {
	Definition Definition
	Result     Result
	Warnings   []string
}

// Registry maps outcome types to handlers. It performs no I/O; callers own
// every side effect of a dispatch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[Type]Handler{}}
}

// DefaultRegistry returns a registry with every catalog handler registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, h := range DefaultHandlers() {
		r.Register(h)
	}
	return r
}

// Register stores h under its type. A later registration for the same type wins.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

func (r *Registry) Handler(t Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Definition returns the registered handler's catalog row.
func (r *Registry) Definition(t Type) (Definition, bool) {
	h, ok := r.Handler(t)
	if !ok {
		return Definition{}, false
	}
	return h.Def, true
}

// Rule implements the scoring engine's rule lookup.
func (r *Registry) Rule(t Type) (ScoringRule, bool) {
	d, ok := r.Definition(t)
	return d.Rule, ok
}

// Dispatch validates and executes the handler for t.
// Execute is never invoked when validation fails.
func (r *Registry) Dispatch(c Context, t Type, p Payload) (Dispatched, error) {
	h, ok := r.Handler(t)
	if !ok {
		return Dispatched{}, ErrUnknownOutcomeType
	}

	v := h.Validate(c, p)
	if !v.IsValid {
		return Dispatched{}, &ValidationError{Type: t, Errors: v.Errors, Warnings: v.Warnings}
	}

	res := h.Execute(c, p)
	if !res.Success {
		return Dispatched{}, &ExecutionError{Type: t, Message: res.ErrorMessage}
	}
	return Dispatched{Definition: h.Def, Result: res, Warnings: v.Warnings}, nil
}
