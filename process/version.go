package process

// Version is an immutable deployment of a process definition.
//
// The lookup tables are built once, when the version is constructed, so that
// graph traversal during execution is O(1) per hop rather than a scan of the
// element collections.
type Version struct {
	// Owner is the identity key of the tenant that owns the deployment.
	Owner string

	// ProcessID is the uid assigned to the process on first deployment. All
	// versions of the same natural process ID share it.
	ProcessID string

	// VersionID is the uid of this specific deployment.
	VersionID string

	def      *Definition
	byID     map[string]*Element
	outgoing map[string][]*Element
	boundary map[string][]*Element
}

// NewVersion builds an immutable version around a validated definition.
func NewVersion(owner, processID, versionID string, def *Definition) (*Version, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	v := &Version{
		Owner:     owner,
		ProcessID: processID,
		VersionID: versionID,
		def:       def,
		byID:      map[string]*Element{},
		outgoing:  map[string][]*Element{},
		boundary:  map[string][]*Element{},
	}

	for _, e := range def.Elements() {
		v.byID[e.ID] = e
	}

	// Sequences are indexed under their source element, in declaration
	// order, so that conditional routing evaluates guards in the order they
	// were declared.
	for _, s := range def.Sequences {
		v.outgoing[s.From] = append(v.outgoing[s.From], s)
	}

	for _, e := range def.Events {
		if e.Type == BoundaryEvent {
			v.boundary[e.AttachedToRef] = append(v.boundary[e.AttachedToRef], e)
		}
	}

	return v, nil
}

// Definition returns the underlying process definition.
func (v *Version) Definition() *Definition {
	return v.def
}

// NaturalID returns the process ID declared in the diagram.
func (v *Version) NaturalID() string {
	return v.def.ProcessID
}

// ElementByID returns the element with the given ID.
func (v *Version) ElementByID(id string) (*Element, bool) {
	e, ok := v.byID[id]
	return e, ok
}

// Outgoing returns the sequence flows leaving the element with the given ID,
// in declaration order.
func (v *Version) Outgoing(id string) []*Element {
	return v.outgoing[id]
}

// BoundaryEvents returns the boundary events attached to the element with
// the given ID, in declaration order.
func (v *Version) BoundaryEvents(id string) []*Element {
	return v.boundary[id]
}

// StartEvents returns the start events of the process, in declaration order.
func (v *Version) StartEvents() []*Element {
	var events []*Element
	for _, e := range v.def.Events {
		if e.Type == StartEvent {
			events = append(events, e)
		}
	}

	return events
}

// EventByTrigger returns the first event element matching the given local ID
// or message code.
func (v *Version) EventByTrigger(trigger string) (*Element, bool) {
	if e, ok := v.byID[trigger]; ok && e.Kind() == KindEvent {
		return e, true
	}

	for _, e := range v.def.Events {
		if e.MessageRef != "" && e.MessageRef == trigger {
			return e, true
		}
	}

	return nil, false
}
