package message

import (
	"fmt"
)

func init() {
	register(InstanceCreated{}, EventRole)
	register(ContextAdded{}, EventRole)
	register(InstanceCompleted{}, EventRole)
	register(SequenceActivated{}, EventRole)
	register(SequenceCompleted{}, EventRole)
	register(GatewayActivated{}, EventRole)
	register(GatewayCompleted{}, EventRole)
	register(TaskActivated{}, EventRole)
	register(TaskCompleted{}, EventRole)
	register(EventActivated{}, EventRole)
	register(EventSubscriptionAdded{}, EventRole)
	register(EventOccurred{}, EventRole)
	register(EventCompleted{}, EventRole)
	register(JobActivated{}, EventRole)
	register(JobCompleted{}, EventRole)
	register(JobFailed{}, EventRole)
}

// InstanceCreated records that a process instance began execution.
type InstanceCreated struct {
	Owner          string         `json:"owner"`
	ProcessID      string         `json:"processId"`
	VersionID      string         `json:"versionId"`
	InstanceID     string         `json:"instanceId"`
	StartElementID string         `json:"startElementId,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m InstanceCreated) MessageType() Type { return "event.instance.created" }

// PartitionKey returns the key used to order delivery of this message.
func (m InstanceCreated) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m InstanceCreated) MessageDescription() string {
	return fmt.Sprintf("instance %s created", m.InstanceID)
}

// ContextAdded records a change to the instance's business-data context.
//
// An empty key merges the data into the top level of the context; a
// non-empty key assigns it to that field wholesale.
type ContextAdded struct {
	InstanceID string         `json:"instanceId"`
	Key        string         `json:"key,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Value      any            `json:"value,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m ContextAdded) MessageType() Type { return "event.instance.context-added" }

// PartitionKey returns the key used to order delivery of this message.
func (m ContextAdded) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m ContextAdded) MessageDescription() string {
	if m.Key == "" {
		return "instance context merged"
	}
	return fmt.Sprintf("instance context field %s set", m.Key)
}

// InstanceCompleted records that a process instance reached completion.
type InstanceCompleted struct {
	Owner      string `json:"owner"`
	ProcessID  string `json:"processId"`
	InstanceID string `json:"instanceId"`
}

// MessageType returns the explicit tag for this kind of message.
func (m InstanceCompleted) MessageType() Type { return "event.instance.completed" }

// PartitionKey returns the key used to order delivery of this message.
func (m InstanceCompleted) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m InstanceCompleted) MessageDescription() string {
	return fmt.Sprintf("instance %s completed", m.InstanceID)
}

// SequenceActivated records activation of a sequence flow.
type SequenceActivated struct {
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	Input      map[string]any `json:"input,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m SequenceActivated) MessageType() Type { return "event.sequence.activated" }

// PartitionKey returns the key used to order delivery of this message.
func (m SequenceActivated) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m SequenceActivated) MessageDescription() string {
	return fmt.Sprintf("sequence %s activated", m.ElementID)
}

// SequenceCompleted records completion of a sequence flow. Sequences have no
// intrinsic duration, so this immediately follows activation.
type SequenceCompleted struct {
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
}

// MessageType returns the explicit tag for this kind of message.
func (m SequenceCompleted) MessageType() Type { return "event.sequence.completed" }

// PartitionKey returns the key used to order delivery of this message.
func (m SequenceCompleted) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m SequenceCompleted) MessageDescription() string {
	return fmt.Sprintf("sequence %s completed", m.ElementID)
}

// GatewayActivated records activation of a gateway element.
type GatewayActivated struct {
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	Input      map[string]any `json:"input,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m GatewayActivated) MessageType() Type { return "event.gateway.activated" }

// PartitionKey returns the key used to order delivery of this message.
func (m GatewayActivated) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m GatewayActivated) MessageDescription() string {
	return fmt.Sprintf("gateway %s activated", m.ElementID)
}

// GatewayCompleted records completion of a gateway element.
type GatewayCompleted struct {
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
}

// MessageType returns the explicit tag for this kind of message.
func (m GatewayCompleted) MessageType() Type { return "event.gateway.completed" }

// PartitionKey returns the key used to order delivery of this message.
func (m GatewayCompleted) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m GatewayCompleted) MessageDescription() string {
	return fmt.Sprintf("gateway %s completed", m.ElementID)
}

// TaskActivated records activation of a task element.
type TaskActivated struct {
	ProcessID  string         `json:"processId"`
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	JobID      string         `json:"jobId,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m TaskActivated) MessageType() Type { return "event.task.activated" }

// PartitionKey returns the key used to order delivery of this message.
func (m TaskActivated) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m TaskActivated) MessageDescription() string {
	return fmt.Sprintf("task %s activated", m.ElementID)
}

// TaskCompleted records completion of a task element.
type TaskCompleted struct {
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	Output     map[string]any `json:"output,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m TaskCompleted) MessageType() Type { return "event.task.completed" }

// PartitionKey returns the key used to order delivery of this message.
func (m TaskCompleted) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m TaskCompleted) MessageDescription() string {
	return fmt.Sprintf("task %s completed", m.ElementID)
}

// EventActivated records activation of an event element.
type EventActivated struct {
	ProcessID    string         `json:"processId"`
	InstanceID   string         `json:"instanceId"`
	ElementID    string         `json:"elementId"`
	Interrupting bool           `json:"interrupting,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m EventActivated) MessageType() Type { return "event.event.activated" }

// PartitionKey returns the key used to order delivery of this message.
func (m EventActivated) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m EventActivated) MessageDescription() string {
	return fmt.Sprintf("event %s activated", m.ElementID)
}

// EventSubscriptionAdded records that a waiting event element registered a
// correlation subscription or timer.
type EventSubscriptionAdded struct {
	InstanceID      string `json:"instanceId"`
	ElementID       string `json:"elementId"`
	SubscriptionID  string `json:"subscriptionId"`
	CorrelationType string `json:"correlationType"`
	CorrelationHash string `json:"correlationHash"`
}

// MessageType returns the explicit tag for this kind of message.
func (m EventSubscriptionAdded) MessageType() Type { return "event.event.subscription-added" }

// PartitionKey returns the key used to order delivery of this message.
func (m EventSubscriptionAdded) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m EventSubscriptionAdded) MessageDescription() string {
	return fmt.Sprintf("event %s subscribed to %s", m.ElementID, m.CorrelationType)
}

// EventOccurred records that a waiting event element's trigger occurred.
type EventOccurred struct {
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	Data       map[string]any `json:"data,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m EventOccurred) MessageType() Type { return "event.event.occurred" }

// PartitionKey returns the key used to order delivery of this message.
func (m EventOccurred) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m EventOccurred) MessageDescription() string {
	return fmt.Sprintf("event %s occurred", m.ElementID)
}

// EventCompleted records completion of an event element.
type EventCompleted struct {
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
}

// MessageType returns the explicit tag for this kind of message.
func (m EventCompleted) MessageType() Type { return "event.event.completed" }

// PartitionKey returns the key used to order delivery of this message.
func (m EventCompleted) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m EventCompleted) MessageDescription() string {
	return fmt.Sprintf("event %s completed", m.ElementID)
}

// JobActivated records creation of a worker job.
type JobActivated struct {
	ProcessID  string         `json:"processId"`
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	JobID      string         `json:"jobId"`
	JobType    string         `json:"jobType"`
	RetryLimit int            `json:"retryLimit,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m JobActivated) MessageType() Type { return "event.job.activated" }

// PartitionKey returns the key used to order delivery of this message.
func (m JobActivated) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m JobActivated) MessageDescription() string {
	return fmt.Sprintf("job %s activated", m.JobID)
}

// JobCompleted records successful completion of a worker job.
type JobCompleted struct {
	InstanceID string         `json:"instanceId"`
	ElementID  string         `json:"elementId"`
	JobID      string         `json:"jobId"`
	Output     map[string]any `json:"output,omitempty"`
}

// MessageType returns the explicit tag for this kind of message.
func (m JobCompleted) MessageType() Type { return "event.job.completed" }

// PartitionKey returns the key used to order delivery of this message.
func (m JobCompleted) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m JobCompleted) MessageDescription() string {
	return fmt.Sprintf("job %s completed", m.JobID)
}

// JobFailed records a failed job attempt.
type JobFailed struct {
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
	JobID      string `json:"jobId"`
	Reason     string `json:"reason,omitempty"`
	Attempt    int    `json:"attempt"`
}

// MessageType returns the explicit tag for this kind of message.
func (m JobFailed) MessageType() Type { return "event.job.failed" }

// PartitionKey returns the key used to order delivery of this message.
func (m JobFailed) PartitionKey() string { return m.InstanceID }

// MessageDescription returns a human-readable description of the message.
func (m JobFailed) MessageDescription() string {
	return fmt.Sprintf("job %s failed on attempt %d: %s", m.JobID, m.Attempt, m.Reason)
}
