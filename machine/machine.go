// Package machine defines the six finite-state machines that together
// execute a process: one per instance, and one per sequence, gateway, task,
// event and job occurrence within it.
//
// The machines cooperate only through persisted events and queued commands.
// An element machine never touches instance state directly; it reports
// outcomes back to its owning instance, which is the single owner of the
// shared business-data context.
package machine

import (
	"context"
	"fmt"

	"github.com/rite-engine/rite/expression"
	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/process"
)

// Handler keys of the six machines, used to partition persisted aggregate
// state.
const (
	InstanceHandlerKey = "instance"
	SequenceHandlerKey = "sequence"
	GatewayHandlerKey  = "gateway"
	TaskHandlerKey     = "task"
	EventHandlerKey    = "event"
	JobHandlerKey      = "job"
)

// DefaultJobRetryLimit is the number of attempts a worker job is allowed
// before its task's error boundary is activated.
const DefaultJobRetryLimit = 3

// ProcessLookup resolves deployed process versions.
type ProcessLookup interface {
	// Version returns the given deployment of a process, with its lookup
	// tables built.
	Version(ctx context.Context, owner, processID, versionID string) (*process.Version, error)
}

// Machines builds the machine definitions for one engine.
type Machines struct {
	// Processes resolves the process graphs the machines execute.
	Processes ProcessLookup

	// Evaluator evaluates guard conditions and data-mapping expressions.
	Evaluator expression.Evaluator

	// TimerShards is the shard count used when timer events schedule
	// wake-ups.
	TimerShards uint32

	// JobRetryLimit is the retry limit assigned to worker jobs. If it is
	// zero, DefaultJobRetryLimit is used.
	JobRetryLimit int
}

// Definitions returns the six machine definitions.
func (m *Machines) Definitions() []*fsm.Definition {
	return []*fsm.Definition{
		m.Instance(),
		m.Sequence(),
		m.Gateway(),
		m.Task(),
		m.Event(),
		m.Job(),
	}
}

// ElementUID returns the aggregate uid of an element occurrence within an
// instance.
func ElementUID(instanceID, elementID string) string {
	return instanceID + "/" + elementID
}

// JobUID returns the aggregate uid of the worker job backing a task. It is
// deterministic so that redelivered dispatches address the same job.
func JobUID(instanceID, elementID string) string {
	return instanceID + "/" + elementID + "/job"
}

func (m *Machines) retryLimit() int {
	if m.JobRetryLimit == 0 {
		return DefaultJobRetryLimit
	}

	return m.JobRetryLimit
}

// scopeInput builds the scoped input context handed to an element when it is
// activated.
//
// An element with input mappings starts from the instance's context: a
// mapping without a target replaces the whole scoped context with its
// result, a mapping with a target assigns the result to that field. An
// element that declares outputs but no inputs computes those outputs against
// the current context instead. An element with neither receives the current
// context unchanged.
func (m *Machines) scopeInput(
	ctx context.Context,
	e *process.Element,
	data map[string]any,
) (map[string]any, error) {
	mappings := e.Inputs
	if len(mappings) == 0 {
		mappings = e.Outputs
	}

	if len(mappings) == 0 {
		return cloneContext(data), nil
	}

	return m.applyMappings(ctx, mappings, data)
}

// applyMappings evaluates data mappings in declaration order. Each mapping's
// expression is evaluated against the unscoped source context.
func (m *Machines) applyMappings(
	ctx context.Context,
	mappings []process.Mapping,
	data map[string]any,
) (map[string]any, error) {
	scoped := cloneContext(data)

	for _, mp := range mappings {
		v, err := m.Evaluator.Evaluate(ctx, mp.Expression, data)
		if err != nil {
			return nil, fmt.Errorf("cannot evaluate mapping %q: %w", mp.Expression, err)
		}

		if mp.Target != "" {
			scoped[mp.Target] = v
			continue
		}

		if r, ok := v.(map[string]any); ok {
			scoped = r
		} else {
			scoped = map[string]any{"value": v}
		}
	}

	return scoped, nil
}

func cloneContext(data map[string]any) map[string]any {
	c := make(map[string]any, len(data))
	for k, v := range data {
		c[k] = v
	}

	return c
}
