package machine

import (
	"context"

	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
)

// Job machine states.
const (
	jobIdle      = "idle"
	jobActivated = "activated"
	jobCompleted = "completed"
	jobFailed    = "failed"
)

// JobRoot is the state of one worker job.
type JobRoot struct {
	State      string `json:"state"`
	ProcessID  string `json:"processId"`
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
	JobID      string `json:"jobId"`
	JobType    string `json:"jobType"`
	RetryLimit int    `json:"retryLimit"`
	Attempts   int    `json:"attempts"`
}

// CurrentState returns the name of the state the job is in.
func (r *JobRoot) CurrentState() string { return r.State }

// ProcessUID returns the uid of the process the job executes under, so that
// the runtime can index its archive record.
func (r *JobRoot) ProcessUID() string { return r.ProcessID }

// Job returns the machine that tracks worker jobs.
//
// A job stays activated across failed attempts until its retry limit is
// exhausted, at which point the owning task's error boundary is activated.
func (m *Machines) Job() *fsm.Definition {
	return &fsm.Definition{
		HandlerKey:   JobHandlerKey,
		InitialState: jobIdle,
		NewRoot: func() fsm.Root {
			return &JobRoot{State: jobIdle}
		},
		States: map[string]fsm.State{
			jobIdle: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.CreateJob{}.MessageType(): m.createJob,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.JobActivated{}.MessageType(): applyJobActivated,
				},
			},
			jobActivated: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.CommitJob{}.MessageType(): m.commitJob,
					message.FailJob{}.MessageType():   m.failJob,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.JobCompleted{}.MessageType(): applyJobCompleted,
					message.JobFailed{}.MessageType():    applyJobFailed,
				},
			},
			jobCompleted: {},
			jobFailed:    {},
		},
	}
}

func (m *Machines) createJob(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.CreateJob)

	return s.Emit(ctx, message.JobActivated{
		ProcessID:  cmd.ProcessID,
		InstanceID: cmd.InstanceID,
		ElementID:  cmd.ElementID,
		JobID:      cmd.JobID,
		JobType:    cmd.JobType,
		RetryLimit: cmd.RetryLimit,
		Input:      cmd.Input,
	})
}

func (m *Machines) commitJob(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.CommitJob)
	root := r.(*JobRoot)

	if err := s.Emit(ctx, message.JobCompleted{
		InstanceID: root.InstanceID,
		ElementID:  root.ElementID,
		JobID:      root.JobID,
		Output:     cmd.Output,
	}); err != nil {
		return err
	}

	if err := s.Execute(ctx, message.CommitTask{
		Owner:      cmd.Owner,
		InstanceID: root.InstanceID,
		ElementID:  root.ElementID,
		Output:     cmd.Output,
	}); err != nil {
		return err
	}

	s.Retire()

	return nil
}

func (m *Machines) failJob(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.FailJob)
	root := r.(*JobRoot)

	if err := s.Emit(ctx, message.JobFailed{
		InstanceID: root.InstanceID,
		ElementID:  root.ElementID,
		JobID:      root.JobID,
		Reason:     cmd.Reason,
		Attempt:    root.Attempts + 1,
	}); err != nil {
		return err
	}

	if root.CurrentState() != jobFailed {
		// Attempts remain; the worker retries against the same job.
		s.Log("job attempt %d of %d failed: %s", root.Attempts, root.RetryLimit, cmd.Reason)
		return nil
	}

	if err := s.Execute(ctx, message.ActivateBoundary{
		Owner:      cmd.Owner,
		InstanceID: root.InstanceID,
		ElementID:  root.ElementID,
		EventType:  "error",
		Data: map[string]any{
			"error": cmd.Reason,
		},
	}); err != nil {
		return err
	}

	s.Retire()

	return nil
}

func applyJobActivated(r fsm.Root, msg message.Message) {
	m := msg.(message.JobActivated)
	root := r.(*JobRoot)

	root.State = jobActivated
	root.ProcessID = m.ProcessID
	root.InstanceID = m.InstanceID
	root.ElementID = m.ElementID
	root.JobID = m.JobID
	root.JobType = m.JobType
	root.RetryLimit = m.RetryLimit
}

func applyJobFailed(r fsm.Root, msg message.Message) {
	m := msg.(message.JobFailed)
	root := r.(*JobRoot)

	root.Attempts = m.Attempt
	if root.Attempts >= root.RetryLimit {
		root.State = jobFailed
	}
}

func applyJobCompleted(r fsm.Root, msg message.Message) {
	r.(*JobRoot).State = jobCompleted
}
