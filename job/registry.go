package job

import (
	"context"
	"encoding/json"
	"sync"

	aether "github.com/nmang004/projectaether"
)

// Reporter receives progress envelopes from a running handler. The
// executor supplies one; handlers never mutate the job record directly.
type Reporter interface {
	Report(ctx context.Context, p ProgressUpdate)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, p ProgressUpdate)

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, p ProgressUpdate) { f(ctx, p) }

// HandlerFunc is a type-erased job handler. It receives the raw payload
// and a Reporter, and returns the opaque result recorded on success.
// The typed Definition[T] is converted to a HandlerFunc at registration
// time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, payload []byte, rep Reporter) ([]byte, error)

// ValidateFunc checks a raw payload for structural well-formedness before
// a job record is created.
type ValidateFunc func(payload []byte) error

// Validator is implemented by payload types that carry their own
// structural checks. Validation failures reject the submission before any
// record exists.
type Validator interface {
	Validate() error
}

// Registry maps job kinds to type-erased handlers, validators, and
// per-kind options. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[string]HandlerFunc
	validators map[string]ValidateFunc
	options    map[string]Options
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:   make(map[string]HandlerFunc),
		validators: make(map[string]ValidateFunc),
		options:    make(map[string]Options),
	}
}

// RegisterDefinition registers a typed job definition. The generic handler
// is wrapped in a closure that JSON-unmarshals the payload into T before
// calling the typed handler; an undecodable payload is a serialization
// error and never retried.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, payload []byte, rep Reporter) ([]byte, error) {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return nil, aether.Serializationf("decode payload for job kind %q: %v", def.Kind, err)
			}
		}
		return def.Handler(ctx, t, rep)
	}

	validate := func(payload []byte) error {
		var t T
		if err := json.Unmarshal(payload, &t); err != nil {
			return aether.Validationf("malformed payload for job kind %q: %v", def.Kind, err)
		}
		if v, ok := any(t).(Validator); ok {
			return v.Validate()
		}
		if v, ok := any(&t).(Validator); ok {
			return v.Validate()
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Kind] = handler
	r.validators[def.Kind] = validate
	r.options[def.Kind] = def.Opts
}

// Get returns the handler for the given job kind.
// Returns false if no handler is registered.
func (r *Registry) Get(kind string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Validate checks a raw payload against the registered kind's validator.
// An unregistered kind is a submission error.
func (r *Registry) Validate(kind string, payload []byte) error {
	r.mu.RLock()
	v, ok := r.validators[kind]
	r.mu.RUnlock()
	if !ok {
		return aether.ErrUnknownJobKind
	}
	return v(payload)
}

// OptionsFor returns the registered options for a kind, falling back to
// defaults for unregistered kinds.
func (r *Registry) OptionsFor(kind string) Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if o, ok := r.options[kind]; ok {
		return o
	}
	return DefaultOptions()
}

// Kinds returns all registered job kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
