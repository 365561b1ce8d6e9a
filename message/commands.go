package message

import (
	"fmt"

	"github.com/rite-engine/rite/process"
)

func init() {
	register(CreateInstance{}, CommandRole)
	register(RaiseEvent{}, CommandRole)
	register(AddContext{}, CommandRole)
	register(ActivateNext{}, CommandRole)
	register(ActivateBoundary{}, CommandRole)
	register(ConditionalNext{}, CommandRole)
	register(ActivateElement{}, CommandRole)
	register(TriggerEvent{}, CommandRole)
	register(CommitTask{}, CommandRole)
	register(CommitEvent{}, CommandRole)
	register(CreateJob{}, CommandRole)
	register(CommitJob{}, CommandRole)
	register(FailJob{}, CommandRole)
}

// CreateInstance starts execution of a new process instance.
//
// The instance uid is assigned by the caller so that the command can be
// retried without creating a second instance.
type CreateInstance struct {
	Owner          string         `json:"owner"`
	ProcessID      string         `json:"processId"`
	VersionID      string         `json:"versionId"`
	InstanceID     string         `json:"instanceId"`
	StartElementID string         `json:"startElementId,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m CreateInstance) MessageType() Type { return "command.instance.create" }

// PartitionKey returns the key used to order delivery of this message.
func (m CreateInstance) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m CreateInstance) MessageDescription() string {
	return fmt.Sprintf("creating instance of process %s", m.ProcessID)
}

// RaiseEvent delivers an external event, message or signal to a running
// instance. The trigger is matched against event elements by local ID first,
// then by message code.
type RaiseEvent struct {
	Owner      string         `json:"owner"`
	InstanceID string         `json:"instanceId"`
	Trigger    string         `json:"trigger"`
	Data       map[string]any `json:"data,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m RaiseEvent) MessageType() Type { return "command.instance.raise-event" }

// PartitionKey returns the key used to order delivery of this message.
func (m RaiseEvent) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m RaiseEvent) MessageDescription() string {
	return fmt.Sprintf("raising event %s", m.Trigger)
}

// AddContext merges data into the instance's business-data context, either
// verbatim or by evaluating a mapping expression.
type AddContext struct {
	Owner      string         `json:"owner"`
	InstanceID string         `json:"instanceId"`
	Key        string         `json:"key,omitempty"`
	Expression string         `json:"expression,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m AddContext) MessageType() Type { return "command.instance.add-context" }

// PartitionKey returns the key used to order delivery of this message.
func (m AddContext) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m AddContext) MessageDescription() string {
	if m.Key == "" {
		return "merging data into instance context"
	}
	return fmt.Sprintf("adding %s to instance context", m.Key)
}

// ActivateNext asks the instance to activate the elements downstream of the
// element that just completed.
type ActivateNext struct {
	Owner      string         `json:"owner"`
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	Output     map[string]any `json:"output,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m ActivateNext) MessageType() Type { return "command.instance.activate-next" }

// PartitionKey returns the key used to order delivery of this message.
func (m ActivateNext) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m ActivateNext) MessageDescription() string {
	return fmt.Sprintf("activating elements after %s", m.ElementID)
}

// ActivateBoundary asks the instance to activate the boundary events of the
// given type attached to an element.
type ActivateBoundary struct {
	Owner      string         `json:"owner"`
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	EventType  string         `json:"eventType,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m ActivateBoundary) MessageType() Type { return "command.instance.activate-boundary" }

// PartitionKey returns the key used to order delivery of this message.
func (m ActivateBoundary) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m ActivateBoundary) MessageDescription() string {
	return fmt.Sprintf("activating boundary events of %s", m.ElementID)
}

// ConditionalNext asks the instance to evaluate the conditional sequences
// leaving a gateway and activate exactly one of them.
type ConditionalNext struct {
	Owner      string `json:"owner"`
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
}

// MessageType returns the explicit tag for this kind of message.
func (m ConditionalNext) MessageType() Type { return "command.instance.conditional-next" }

// PartitionKey returns the key used to order delivery of this message.
func (m ConditionalNext) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m ConditionalNext) MessageDescription() string {
	return fmt.Sprintf("routing conditionally after %s", m.ElementID)
}

// ActivateElement activates a single element occurrence within an instance.
//
// The input context has already been scoped by the instance's input/output
// mapping rules.
type ActivateElement struct {
	Owner        string              `json:"owner"`
	ProcessID    string              `json:"processId"`
	VersionID    string              `json:"versionId"`
	InstanceID   string              `json:"instanceId"`
	ElementID    string              `json:"elementId"`
	Kind         process.ElementKind `json:"kind"`
	Interrupting bool                `json:"interrupting,omitempty"`
	Input        map[string]any      `json:"input,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m ActivateElement) MessageType() Type { return "command.element.activate" }

// PartitionKey returns the key used to order delivery of this message.
func (m ActivateElement) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m ActivateElement) MessageDescription() string {
	return fmt.Sprintf("activating %s %s", m.Kind, m.ElementID)
}

// TriggerEvent informs a waiting event element that its trigger occurred.
type TriggerEvent struct {
	Owner      string         `json:"owner"`
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	Data       map[string]any `json:"data,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m TriggerEvent) MessageType() Type { return "command.event.trigger" }

// PartitionKey returns the key used to order delivery of this message.
func (m TriggerEvent) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m TriggerEvent) MessageDescription() string {
	return fmt.Sprintf("triggering event %s", m.ElementID)
}

// CommitTask completes an activated task, usually because the job it
// dispatched has reported a result.
type CommitTask struct {
	Owner      string         `json:"owner"`
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	Output     map[string]any `json:"output,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m CommitTask) MessageType() Type { return "command.task.commit" }

// PartitionKey returns the key used to order delivery of this message.
func (m CommitTask) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m CommitTask) MessageDescription() string {
	return fmt.Sprintf("committing task %s", m.ElementID)
}

// CommitEvent completes an activated event element.
type CommitEvent struct {
	Owner      string         `json:"owner"`
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	Data       map[string]any `json:"data,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m CommitEvent) MessageType() Type { return "command.event.commit" }

// PartitionKey returns the key used to order delivery of this message.
func (m CommitEvent) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m CommitEvent) MessageDescription() string {
	return fmt.Sprintf("committing event %s", m.ElementID)
}

// CreateJob creates the worker job backing a service or business-rule task.
//
// The job uid is assigned by the dispatching task so that redelivery of the
// command does not create a second job.
type CreateJob struct {
	Owner      string         `json:"owner"`
	ProcessID  string         `json:"processId"`
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	JobID      string         `json:"jobId"`
	JobType    string         `json:"jobType"`
	RetryLimit int            `json:"retryLimit,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m CreateJob) MessageType() Type { return "command.job.create" }

// PartitionKey returns the key used to order delivery of this message.
func (m CreateJob) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m CreateJob) MessageDescription() string {
	return fmt.Sprintf("creating %s job for task %s", m.JobType, m.ElementID)
}

// CommitJob reports successful completion of a job, usually from an external
// worker.
type CommitJob struct {
	Owner      string         `json:"owner"`
	InstanceID string         `json:"instanceId"`
	JobID      string         `json:"jobId"`
	Output     map[string]any `json:"output,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m CommitJob) MessageType() Type { return "command.job.commit" }

// PartitionKey returns the key used to order delivery of this message.
func (m CommitJob) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m CommitJob) MessageDescription() string {
	return fmt.Sprintf("committing job %s", m.JobID)
}

// FailJob reports a failed job attempt. The job retries until its retry
// limit is exhausted.
type FailJob struct {
	Owner      string `json:"owner"`
	InstanceID string `json:"instanceId"`
	JobID      string `json:"jobId"`
	Reason     string `json:"reason,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m FailJob) MessageType() Type { return "command.job.fail" }

// PartitionKey returns the key used to order delivery of this message.
func (m FailJob) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m FailJob) MessageDescription() string {
	return fmt.Sprintf("failing job %s: %s", m.JobID, m.Reason)
}
