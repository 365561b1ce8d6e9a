package process

// ElementKind identifies which element machine executes an element.
type ElementKind string

const (
	// KindEvent is the kind of start, end, intermediate and boundary events.
	KindEvent ElementKind = "event"

	// KindTask is the kind of tasks (user, service, business-rule, etc).
	KindTask ElementKind = "task"

	// KindGateway is the kind of exclusive, parallel and event-based gateways.
	KindGateway ElementKind = "gateway"

	// KindSequence is the kind of sequence flows connecting other elements.
	KindSequence ElementKind = "sequence"
)

// ElementType is the BPMN type of an element, as declared in the diagram.
type ElementType string

const (
	StartEvent             ElementType = "startEvent"
	EndEvent               ElementType = "endEvent"
	IntermediateCatchEvent ElementType = "intermediateCatchEvent"
	BoundaryEvent          ElementType = "boundaryEvent"
	Task                   ElementType = "task"
	UserTask               ElementType = "userTask"
	ServiceTask            ElementType = "serviceTask"
	BusinessRuleTask       ElementType = "businessRuleTask"
	ExclusiveGateway       ElementType = "exclusiveGateway"
	ParallelGateway        ElementType = "parallelGateway"
	SequenceFlow           ElementType = "sequenceFlow"
)

// Mapping is an input or output data-mapping expression.
//
// A mapping without a target replaces the whole scoped context with the
// expression result. A mapping with a target assigns the result to a named
// field of the scoped context.
type Mapping struct {
	Target     string `json:"target,omitempty"`
	Expression string `json:"expression"`
}

// Element is one node of a process graph.
//
// Elements are immutable once the graph is deployed. They reference each
// other by ID; use the lookup tables on Version to resolve references.
type Element struct {
	// ID is the element's ID, unique within its process.
	ID string `json:"id"`

	// Type is the declared BPMN element type.
	Type ElementType `json:"type"`

	// Name is the element's display name, if any.
	Name string `json:"name,omitempty"`

	// Incoming and Outgoing are the IDs of connected elements. For a
	// non-sequence element they reference sequence flows; for a sequence flow
	// they are unused (see From and To).
	Incoming []string `json:"incoming,omitempty"`
	Outgoing []string `json:"outgoing,omitempty"`

	// From and To are the endpoints of a sequence flow.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Condition is a guard expression on a conditional sequence flow. An
	// empty condition means the flow is unconditional.
	Condition string `json:"condition,omitempty"`

	// IsDefault marks the default outgoing sequence of an exclusive gateway.
	IsDefault bool `json:"isDefault,omitempty"`

	// Inputs and Outputs are the element's data-mapping expressions,
	// evaluated in declaration order when the element is activated and
	// completed, respectively.
	Inputs  []Mapping `json:"inputs,omitempty"`
	Outputs []Mapping `json:"outputs,omitempty"`

	// AttachedToRef is the ID of the element a boundary event is attached
	// to. It is empty for all other element types.
	AttachedToRef string `json:"attachedToRef,omitempty"`

	// Interrupting reports whether a boundary event interrupts the element
	// it is attached to.
	Interrupting bool `json:"interrupting,omitempty"`

	// MessageRef is the message or signal code that triggers an event
	// element, if any.
	MessageRef string `json:"messageRef,omitempty"`

	// TimerDescriptor describes the schedule of a timer event element. It is
	// either an absolute time, a duration, or a recurring cycle.
	TimerDescriptor string `json:"timerDescriptor,omitempty"`

	// JobType is the worker job type of a service or business-rule task. A
	// task without a job type completes as soon as it is activated.
	JobType string `json:"jobType,omitempty"`
}

// Kind returns the element machine kind that executes this element.
func (e *Element) Kind() ElementKind {
	switch e.Type {
	case SequenceFlow:
		return KindSequence
	case ExclusiveGateway, ParallelGateway:
		return KindGateway
	case Task, UserTask, ServiceTask, BusinessRuleTask:
		return KindTask
	default:
		return KindEvent
	}
}

// IsConditional reports whether the element is a sequence flow with a guard
// condition.
func (e *Element) IsConditional() bool {
	return e.Type == SequenceFlow && e.Condition != ""
}
