package fixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/rite-engine/rite/process"
)

const (
	// DefaultOwner is the owner of fixture deployments.
	DefaultOwner = "<owner>"

	// DefaultProcessID is the process uid of fixture deployments.
	DefaultProcessID = "<process>"

	// DefaultVersionID is the version uid of fixture deployments.
	DefaultVersionID = "<version>"
)

// NewVersion builds a fixture deployment of the given definition.
func NewVersion(def *process.Definition) *process.Version {
	v, err := process.NewVersion(DefaultOwner, DefaultProcessID, DefaultVersionID, def)
	if err != nil {
		panic(err)
	}

	return v
}

// ProcessLookupStub is a test implementation of the machine.ProcessLookup
// interface, serving versions registered with Add().
type ProcessLookupStub struct {
	VersionFunc func(context.Context, string, string, string) (*process.Version, error)

	m        sync.Mutex
	versions map[string]*process.Version
}

// Add registers a version with the stub.
func (s *ProcessLookupStub) Add(v *process.Version) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.versions == nil {
		s.versions = map[string]*process.Version{}
	}

	s.versions[v.ProcessID+"/"+v.VersionID] = v
}

// Version returns the given deployment of a process.
func (s *ProcessLookupStub) Version(
	ctx context.Context,
	owner, processID, versionID string,
) (*process.Version, error) {
	if s.VersionFunc != nil {
		return s.VersionFunc(ctx, owner, processID, versionID)
	}

	s.m.Lock()
	defer s.m.Unlock()

	if v, ok := s.versions[processID+"/"+versionID]; ok {
		return v, nil
	}

	return nil, fmt.Errorf("unknown process version %s/%s", processID, versionID)
}

// NewLinearDefinition returns a minimal straight-through process:
//
//	start --> work --> end
func NewLinearDefinition() *process.Definition {
	return &process.Definition{
		ProcessID: "linear",
		Events: []*process.Element{
			{ID: "start", Type: process.StartEvent},
			{ID: "end", Type: process.EndEvent},
		},
		Tasks: []*process.Element{
			{ID: "work", Type: process.Task},
		},
		Sequences: []*process.Element{
			{ID: "s1", Type: process.SequenceFlow, From: "start", To: "work"},
			{ID: "s2", Type: process.SequenceFlow, From: "work", To: "end"},
		},
	}
}

// NewGatewayDefinition returns a process with an exclusive gateway:
//
//	start --> gate --[route_a]--> a --> end
//	               --[route_b]--> b --> end
//	               --(default)--> c --> end
func NewGatewayDefinition() *process.Definition {
	return &process.Definition{
		ProcessID: "routed",
		Events: []*process.Element{
			{ID: "start", Type: process.StartEvent},
			{ID: "end", Type: process.EndEvent},
		},
		Tasks: []*process.Element{
			{ID: "a", Type: process.Task},
			{ID: "b", Type: process.Task},
			{ID: "c", Type: process.Task},
		},
		Gateways: []*process.Element{
			{ID: "gate", Type: process.ExclusiveGateway},
		},
		Sequences: []*process.Element{
			{ID: "s1", Type: process.SequenceFlow, From: "start", To: "gate"},
			{ID: "sa", Type: process.SequenceFlow, From: "gate", To: "a", Condition: "route_a"},
			{ID: "sb", Type: process.SequenceFlow, From: "gate", To: "b", Condition: "route_b"},
			{ID: "sc", Type: process.SequenceFlow, From: "gate", To: "c", IsDefault: true},
			{ID: "sa2", Type: process.SequenceFlow, From: "a", To: "end"},
			{ID: "sb2", Type: process.SequenceFlow, From: "b", To: "end"},
			{ID: "sc2", Type: process.SequenceFlow, From: "c", To: "end"},
		},
	}
}

// NewJobDefinition returns a process whose single task dispatches a worker
// job:
//
//	start --> ship (job type "ship-order") --> end
func NewJobDefinition() *process.Definition {
	return &process.Definition{
		ProcessID: "jobbed",
		Events: []*process.Element{
			{ID: "start", Type: process.StartEvent},
			{ID: "end", Type: process.EndEvent},
		},
		Tasks: []*process.Element{
			{ID: "ship", Type: process.ServiceTask, JobType: "ship-order"},
		},
		Sequences: []*process.Element{
			{ID: "s1", Type: process.SequenceFlow, From: "start", To: "ship"},
			{ID: "s2", Type: process.SequenceFlow, From: "ship", To: "end"},
		},
	}
}

// NewCatchDefinition returns a process that waits for an external message:
//
//	start --> wait (message "order.paid") --> end
func NewCatchDefinition() *process.Definition {
	return &process.Definition{
		ProcessID: "catching",
		Events: []*process.Element{
			{ID: "start", Type: process.StartEvent},
			{ID: "wait", Type: process.IntermediateCatchEvent, MessageRef: "order.paid"},
			{ID: "end", Type: process.EndEvent},
		},
		Sequences: []*process.Element{
			{ID: "s1", Type: process.SequenceFlow, From: "start", To: "wait"},
			{ID: "s2", Type: process.SequenceFlow, From: "wait", To: "end"},
		},
	}
}

// NewTimerDefinition returns a process that waits on an intermediate timer:
//
//	start --> delay (10s) --> end
func NewTimerDefinition() *process.Definition {
	return &process.Definition{
		ProcessID: "timed",
		Events: []*process.Element{
			{ID: "start", Type: process.StartEvent},
			{ID: "delay", Type: process.IntermediateCatchEvent, TimerDescriptor: "10s"},
			{ID: "end", Type: process.EndEvent},
		},
		Sequences: []*process.Element{
			{ID: "s1", Type: process.SequenceFlow, From: "start", To: "delay"},
			{ID: "s2", Type: process.SequenceFlow, From: "delay", To: "end"},
		},
	}
}

// NewBoundaryDefinition returns a process with an interrupting error
// boundary on its worker task:
//
//	start --> ship (job type "ship-order") --> end
//	            \-- on error --> recover --> end
func NewBoundaryDefinition() *process.Definition {
	return &process.Definition{
		ProcessID: "guarded",
		Events: []*process.Element{
			{ID: "start", Type: process.StartEvent},
			{
				ID:            "on-error",
				Type:          process.BoundaryEvent,
				AttachedToRef: "ship",
				MessageRef:    "error",
				Interrupting:  true,
			},
			{ID: "end", Type: process.EndEvent},
		},
		Tasks: []*process.Element{
			{ID: "ship", Type: process.ServiceTask, JobType: "ship-order"},
			{ID: "recover", Type: process.Task},
		},
		Sequences: []*process.Element{
			{ID: "s1", Type: process.SequenceFlow, From: "start", To: "ship"},
			{ID: "s2", Type: process.SequenceFlow, From: "ship", To: "end"},
			{ID: "s3", Type: process.SequenceFlow, From: "on-error", To: "recover"},
			{ID: "s4", Type: process.SequenceFlow, From: "recover", To: "end"},
		},
	}
}

// NewStartTriggerDefinition returns a process started by an external
// message:
//
//	start (message "order.placed") --> work --> end
func NewStartTriggerDefinition() *process.Definition {
	return &process.Definition{
		ProcessID: "triggered",
		Events: []*process.Element{
			{ID: "start", Type: process.StartEvent, MessageRef: "order.placed"},
			{ID: "end", Type: process.EndEvent},
		},
		Tasks: []*process.Element{
			{ID: "work", Type: process.Task},
		},
		Sequences: []*process.Element{
			{ID: "s1", Type: process.SequenceFlow, From: "start", To: "work"},
			{ID: "s2", Type: process.SequenceFlow, From: "work", To: "end"},
		},
	}
}
