package machine

import (
	"context"
	"fmt"

	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
)

// Task machine states.
const (
	taskIdle      = "idle"
	taskActivated = "activated"
	taskCompleted = "completed"
)

// TaskRoot is the state of one task occurrence.
type TaskRoot struct {
	State      string `json:"state"`
	ProcessID  string `json:"processId"`
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
	JobID      string `json:"jobId,omitempty"`
}

// CurrentState returns the name of the state the task is in.
func (r *TaskRoot) CurrentState() string { return r.State }

// ProcessUID returns the uid of the process the task executes under, so that
// the runtime can index its archive record.
func (r *TaskRoot) ProcessUID() string { return r.ProcessID }

// Task returns the machine that executes tasks.
//
// A task with a worker job type dispatches a job and waits for CommitTask;
// a plain task passes straight through to completion.
func (m *Machines) Task() *fsm.Definition {
	return &fsm.Definition{
		HandlerKey:   TaskHandlerKey,
		InitialState: taskIdle,
		NewRoot: func() fsm.Root {
			return &TaskRoot{State: taskIdle}
		},
		States: map[string]fsm.State{
			taskIdle: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.ActivateElement{}.MessageType(): m.activateTask,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.TaskActivated{}.MessageType(): applyTaskActivated,
				},
			},
			taskActivated: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.CommitTask{}.MessageType(): m.commitTask,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.TaskCompleted{}.MessageType(): applyTaskCompleted,
				},
			},
			taskCompleted: {},
		},
	}
}

func (m *Machines) activateTask(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.ActivateElement)

	v, err := m.Processes.Version(ctx, cmd.Owner, cmd.ProcessID, cmd.VersionID)
	if err != nil {
		return err
	}

	e, ok := v.ElementByID(cmd.ElementID)
	if !ok {
		return fmt.Errorf(
			"process %s has no element with ID %q",
			v.NaturalID(),
			cmd.ElementID,
		)
	}

	if e.JobType == "" {
		// Pass-through: no worker involvement, complete immediately.
		if err := s.Emit(ctx, message.TaskActivated{
			ProcessID:  cmd.ProcessID,
			InstanceID: cmd.InstanceID,
			ElementID:  cmd.ElementID,
			Input:      cmd.Input,
		}); err != nil {
			return err
		}

		if err := s.Emit(ctx, message.TaskCompleted{
			InstanceID: cmd.InstanceID,
			ElementID:  cmd.ElementID,
		}); err != nil {
			return err
		}

		if err := s.Execute(ctx, message.ActivateNext{
			Owner:      cmd.Owner,
			InstanceID: cmd.InstanceID,
			ElementID:  cmd.ElementID,
		}); err != nil {
			return err
		}

		s.Retire()

		return nil
	}

	jobID := JobUID(cmd.InstanceID, cmd.ElementID)

	if err := s.Emit(ctx, message.TaskActivated{
		ProcessID:  cmd.ProcessID,
		InstanceID: cmd.InstanceID,
		ElementID:  cmd.ElementID,
		JobID:      jobID,
		Input:      cmd.Input,
	}); err != nil {
		return err
	}

	return s.Execute(ctx, message.CreateJob{
		Owner:      cmd.Owner,
		ProcessID:  cmd.ProcessID,
		InstanceID: cmd.InstanceID,
		ElementID:  cmd.ElementID,
		JobID:      jobID,
		JobType:    e.JobType,
		RetryLimit: m.retryLimit(),
		Input:      cmd.Input,
	})
}

func (m *Machines) commitTask(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.CommitTask)
	root := r.(*TaskRoot)

	if err := s.Emit(ctx, message.TaskCompleted{
		InstanceID: root.InstanceID,
		ElementID:  root.ElementID,
		Output:     cmd.Output,
	}); err != nil {
		return err
	}

	if err := s.Execute(ctx, message.ActivateNext{
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

func applyTaskActivated(r fsm.Root, msg message.Message) {
	m := msg.(message.TaskActivated)
	root := r.(*TaskRoot)

	root.State = taskActivated
	root.ProcessID = m.ProcessID
	root.InstanceID = m.InstanceID
	root.ElementID = m.ElementID
	root.JobID = m.JobID
}

func applyTaskCompleted(r fsm.Root, msg message.Message) {
	r.(*TaskRoot).State = taskCompleted
}
