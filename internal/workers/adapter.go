// Package workers provides the worker adapters that perform the external work
// of each pipeline stage.
//
// Every stage is served by one Adapter selected by role from a Registry. An
// adapter receives the run's topic, configuration and the payloads produced by
// earlier stages, and returns its own payload as JSON. Adapters classify their
// failures: errors wrapped with domain.Fatal abort the run, anything else is
// retried within the stage's budget.
package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// Input is the work handed to an adapter for one stage attempt.
type Input struct {
	RunID   uuid.UUID
	Topic   string
	Config  domain.RunConfig
	Stage   domain.Stage
	Attempt int
	// Prior holds the latest successful payload of each earlier stage.
	Prior map[domain.Stage]json.RawMessage
}

// Output is an adapter's successful result.
type Output struct {
	Payload json.RawMessage
}

// Adapter performs the work of one stage.
type Adapter interface {
	// Role identifies the stage this adapter serves.
	Role() domain.WorkerRole

	// Execute performs one attempt. It must return promptly once ctx is done.
	Execute(ctx context.Context, in Input) (Output, error)
}

// FuncAdapter adapts a function to the Adapter interface.
type FuncAdapter struct {
	role domain.WorkerRole
	fn   func(ctx context.Context, in Input) (Output, error)
}

// NewFuncAdapter creates an adapter for role backed by fn.
func NewFuncAdapter(role domain.WorkerRole, fn func(ctx context.Context, in Input) (Output, error)) *FuncAdapter {
	return &FuncAdapter{role: role, fn: fn}
}

// Role implements Adapter.
func (a *FuncAdapter) Role() domain.WorkerRole { return a.role }

// Execute implements Adapter.
func (a *FuncAdapter) Execute(ctx context.Context, in Input) (Output, error) {
	return a.fn(ctx, in)
}

// Registry maps each worker role to its adapter.
type Registry struct {
	adapters map[domain.WorkerRole]Adapter
}

// NewRegistry creates a registry from adapters. Every role must be served
// exactly once.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[domain.WorkerRole]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("workers: nil adapter")
		}
		if _, dup := r.adapters[a.Role()]; dup {
			return nil, fmt.Errorf("workers: duplicate adapter for role %s", a.Role())
		}
		r.adapters[a.Role()] = a
	}
	for _, stage := range domain.WorkStages() {
		role, _ := domain.RoleForStage(stage)
		if _, ok := r.adapters[role]; !ok {
			return nil, fmt.Errorf("workers: no adapter for role %s", role)
		}
	}
	return r, nil
}

// ForStage returns the adapter serving stage.
func (r *Registry) ForStage(stage domain.Stage) (Adapter, error) {
	role, ok := domain.RoleForStage(stage)
	if !ok {
		return nil, fmt.Errorf("%w: stage %s has no worker", domain.ErrInvalidTransition, stage)
	}
	return r.adapters[role], nil
}

// EncodeOutput marshals v as an adapter payload.
func EncodeOutput(v any) (Output, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Output{}, domain.Fatal(fmt.Errorf("encode output: %w", err))
	}
	return Output{Payload: data}, nil
}

// decodePrior unmarshals the payload produced by an earlier stage. A missing
// or corrupt payload cannot be fixed by retrying and is fatal.
func decodePrior[T any](in Input, stage domain.Stage) (T, error) {
	var out T
	raw, ok := in.Prior[stage]
	if !ok || len(raw) == 0 {
		return out, domain.Fatal(fmt.Errorf("missing %s output", stage))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, domain.Fatal(fmt.Errorf("decode %s output: %w", stage, err))
	}
	return out, nil
}
