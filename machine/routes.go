package machine

import (
	"fmt"

	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/process"
	"github.com/rite-engine/rite/router"
)

// Routes returns the routing table that maps every command type to the
// machine and aggregate uid it targets.
func (m *Machines) Routes() router.Table {
	instance := m.Instance()
	sequence := m.Sequence()
	gateway := m.Gateway()
	task := m.Task()
	event := m.Event()
	job := m.Job()

	byKind := map[process.ElementKind]*fsm.Definition{
		process.KindSequence: sequence,
		process.KindGateway:  gateway,
		process.KindTask:     task,
		process.KindEvent:    event,
	}

	t := router.Table{
		message.CreateInstance{}.MessageType(): router.To(
			instance,
			func(msg message.Message) (string, fsm.Meta) {
				c := msg.(message.CreateInstance)
				return c.InstanceID, fsm.Meta{
					Owner:      c.Owner,
					ProcessID:  c.ProcessID,
					VersionID:  c.VersionID,
					InstanceID: c.InstanceID,
				}
			},
		),

		// Every command addressed to a running instance resolves to the
		// instance aggregate itself; its remaining meta-data is carried by
		// the instance's own creation event.
		message.RaiseEvent{}.MessageType():       toInstance(instance, func(msg message.Message) (string, string) { c := msg.(message.RaiseEvent); return c.Owner, c.InstanceID }),
		message.AddContext{}.MessageType():       toInstance(instance, func(msg message.Message) (string, string) { c := msg.(message.AddContext); return c.Owner, c.InstanceID }),
		message.ActivateNext{}.MessageType():     toInstance(instance, func(msg message.Message) (string, string) { c := msg.(message.ActivateNext); return c.Owner, c.InstanceID }),
		message.ActivateBoundary{}.MessageType(): toInstance(instance, func(msg message.Message) (string, string) { c := msg.(message.ActivateBoundary); return c.Owner, c.InstanceID }),
		message.ConditionalNext{}.MessageType():  toInstance(instance, func(msg message.Message) (string, string) { c := msg.(message.ConditionalNext); return c.Owner, c.InstanceID }),

		message.ActivateElement{}.MessageType(): {
			Resolve: func(msg message.Message) (*fsm.Definition, string, fsm.Meta, error) {
				c := msg.(message.ActivateElement)

				def, ok := byKind[c.Kind]
				if !ok {
					return nil, "", fsm.Meta{}, fmt.Errorf(
						"no machine executes %q elements",
						c.Kind,
					)
				}

				return def, ElementUID(c.InstanceID, c.ElementID), fsm.Meta{
					Owner:      c.Owner,
					ProcessID:  c.ProcessID,
					VersionID:  c.VersionID,
					InstanceID: c.InstanceID,
					ElementID:  c.ElementID,
				}, nil
			},
		},

		message.TriggerEvent{}.MessageType(): toElement(event, func(msg message.Message) (string, string, string) {
			c := msg.(message.TriggerEvent)
			return c.Owner, c.InstanceID, c.ElementID
		}),
		message.CommitEvent{}.MessageType(): toElement(event, func(msg message.Message) (string, string, string) {
			c := msg.(message.CommitEvent)
			return c.Owner, c.InstanceID, c.ElementID
		}),
		message.CommitTask{}.MessageType(): toElement(task, func(msg message.Message) (string, string, string) {
			c := msg.(message.CommitTask)
			return c.Owner, c.InstanceID, c.ElementID
		}),

		message.CreateJob{}.MessageType(): toJob(job, func(msg message.Message) (string, string, string, string) {
			c := msg.(message.CreateJob)
			return c.Owner, c.InstanceID, c.ElementID, c.JobID
		}),
		message.CommitJob{}.MessageType(): toJob(job, func(msg message.Message) (string, string, string, string) {
			c := msg.(message.CommitJob)
			return c.Owner, c.InstanceID, "", c.JobID
		}),
		message.FailJob{}.MessageType(): toJob(job, func(msg message.Message) (string, string, string, string) {
			c := msg.(message.FailJob)
			return c.Owner, c.InstanceID, "", c.JobID
		}),
	}

	t.MustValidate()

	return t
}

func toInstance(
	def *fsm.Definition,
	key func(msg message.Message) (owner, instanceID string),
) router.Route {
	return router.To(def, func(msg message.Message) (string, fsm.Meta) {
		owner, id := key(msg)
		return id, fsm.Meta{
			Owner:      owner,
			InstanceID: id,
		}
	})
}

func toElement(
	def *fsm.Definition,
	key func(msg message.Message) (owner, instanceID, elementID string),
) router.Route {
	return router.To(def, func(msg message.Message) (string, fsm.Meta) {
		owner, instanceID, elementID := key(msg)
		return ElementUID(instanceID, elementID), fsm.Meta{
			Owner:      owner,
			InstanceID: instanceID,
			ElementID:  elementID,
		}
	})
}

func toJob(
	def *fsm.Definition,
	key func(msg message.Message) (owner, instanceID, elementID, jobID string),
) router.Route {
	return router.To(def, func(msg message.Message) (string, fsm.Meta) {
		owner, instanceID, elementID, jobID := key(msg)
		return jobID, fsm.Meta{
			Owner:      owner,
			InstanceID: instanceID,
			ElementID:  elementID,
		}
	})
}
