package process

import (
	"fmt"
)

// Definition is a parsed process graph, as produced by a diagram parser.
//
// It is the unit of deployment. The engine never mutates a definition; it
// builds an immutable Version around it with lookup tables for traversal.
type Definition struct {
	// ProcessID is the natural ID declared in the diagram.
	ProcessID string `json:"processId"`

	// Name is the process display name, if any.
	Name string `json:"name,omitempty"`

	// Events, Tasks, Gateways and Sequences are the typed element
	// collections of the graph.
	Events    []*Element `json:"events,omitempty"`
	Tasks     []*Element `json:"tasks,omitempty"`
	Gateways  []*Element `json:"gateways,omitempty"`
	Sequences []*Element `json:"sequences,omitempty"`
}

// Elements returns all elements of the definition in declaration order,
// grouped by collection.
func (d *Definition) Elements() []*Element {
	n := len(d.Events) + len(d.Tasks) + len(d.Gateways) + len(d.Sequences)
	elements := make([]*Element, 0, n)

	elements = append(elements, d.Events...)
	elements = append(elements, d.Tasks...)
	elements = append(elements, d.Gateways...)
	elements = append(elements, d.Sequences...)

	return elements
}

// Validate returns an error if the definition is not a well-formed graph.
func (d *Definition) Validate() error {
	if d.ProcessID == "" {
		return fmt.Errorf("process definition has no process ID")
	}

	seen := map[string]struct{}{}

	for _, e := range d.Elements() {
		if e.ID == "" {
			return fmt.Errorf("process %q contains an element with no ID", d.ProcessID)
		}

		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("process %q contains duplicate element ID %q", d.ProcessID, e.ID)
		}

		seen[e.ID] = struct{}{}
	}

	for _, s := range d.Sequences {
		if s.From == "" || s.To == "" {
			return fmt.Errorf("sequence %q of process %q is not fully connected", s.ID, d.ProcessID)
		}

		if _, ok := seen[s.From]; !ok {
			return fmt.Errorf("sequence %q references unknown element %q", s.ID, s.From)
		}

		if _, ok := seen[s.To]; !ok {
			return fmt.Errorf("sequence %q references unknown element %q", s.ID, s.To)
		}
	}

	for _, e := range d.Events {
		if e.Type == BoundaryEvent {
			if _, ok := seen[e.AttachedToRef]; !ok {
				return fmt.Errorf(
					"boundary event %q is attached to unknown element %q",
					e.ID,
					e.AttachedToRef,
				)
			}
		}
	}

	return nil
}
